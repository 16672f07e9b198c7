package promstats

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trickstertwo/xcenter"
	"github.com/trickstertwo/xlog"
	"github.com/trickstertwo/xlog/adapter/zerolog"
)

type fixedStats xcenter.Stats

func (f fixedStats) Stats() xcenter.Stats { return xcenter.Stats(f) }

func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		out[f.GetName()] = f
	}
	return out
}

func TestCollector_ExportsSnapshot(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(NewCollector(fixedStats{
		Sent:              10,
		Delivered:         7,
		DeliveryFailed:    3,
		BroadcastsSent:    2,
		RequestsTimedOut:  1,
		LateResponses:     4,
		PendingRequests:   5,
		RegisteredModules: 6,
	}, "test"))

	got := gather(t, reg)
	require.Len(t, got, 10)

	counter := func(name string) float64 {
		f, ok := got[name]
		require.True(t, ok, name)
		return f.GetMetric()[0].GetCounter().GetValue()
	}
	gauge := func(name string) float64 {
		f, ok := got[name]
		require.True(t, ok, name)
		return f.GetMetric()[0].GetGauge().GetValue()
	}

	assert.Equal(t, float64(10), counter("test_xcenter_messages_sent_total"))
	assert.Equal(t, float64(7), counter("test_xcenter_messages_delivered_total"))
	assert.Equal(t, float64(3), counter("test_xcenter_delivery_failed_total"))
	assert.Equal(t, float64(2), counter("test_xcenter_broadcasts_total"))
	assert.Equal(t, float64(1), counter("test_xcenter_requests_timed_out_total"))
	assert.Equal(t, float64(0), counter("test_xcenter_requests_canceled_total"))
	assert.Equal(t, float64(4), counter("test_xcenter_late_responses_total"))
	assert.Equal(t, float64(5), gauge("test_xcenter_pending_requests"))
	assert.Equal(t, float64(6), gauge("test_xcenter_registered_modules"))
}

func TestCollectorAndObserver_LiveCenter(t *testing.T) {
	logger := zerolog.Use(zerolog.Config{MinLevel: xlog.LevelDebug, Console: false, Writer: io.Discard})
	c, closeFn, err := xcenter.New(func(b *xcenter.CenterBuilder) { b.WithLogger(logger) })
	require.NoError(t, err)
	defer func() { _ = closeFn() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(NewCollector(c, ""))
	c.AddObserver(NewObserver(reg, ""))

	echo := xcenter.HandlerFunc(func(_ context.Context, msg *xcenter.Message) (*xcenter.Response, error) {
		return msg.Reply("ok"), nil
	})
	require.NoError(t, c.RegisterModule("echo", echo))

	_, err = c.SendRequest(context.Background(), xcenter.Message{Type: "install", Target: "echo"}, time.Second)
	require.NoError(t, err)
	_, err = c.SendRequest(context.Background(), xcenter.Message{Type: "install", Target: "ghost"}, time.Second)
	require.Error(t, err)

	require.Eventually(t, func() bool {
		f, ok := gather(t, reg)["xcenter_request_duration_seconds"]
		if !ok {
			return false
		}
		var total uint64
		for _, m := range f.GetMetric() {
			total += m.GetHistogram().GetSampleCount()
		}
		return total == 2
	}, time.Second, 5*time.Millisecond)

	got := gather(t, reg)
	assert.Equal(t, float64(2), got["xcenter_messages_sent_total"].GetMetric()[0].GetCounter().GetValue())
	assert.Equal(t, float64(1), got["xcenter_registered_modules"].GetMetric()[0].GetGauge().GetValue())

	outcomes := map[string]uint64{}
	for _, m := range got["xcenter_request_duration_seconds"].GetMetric() {
		outcomes[m.GetLabel()[0].GetValue()] = m.GetHistogram().GetSampleCount()
	}
	assert.Equal(t, map[string]uint64{"ok": 1, "target_not_found": 1}, outcomes)

	handled := got["xcenter_handler_duration_seconds"].GetMetric()
	require.Len(t, handled, 1)
	assert.Equal(t, "install", handled[0].GetLabel()[0].GetValue())
}

func TestOutcome(t *testing.T) {
	wrap := func(err error) error { return &xcenter.DeliveryError{Op: "request", Target: "m", Err: err} }

	assert.Equal(t, "ok", outcome(nil))
	assert.Equal(t, "timeout", outcome(wrap(xcenter.ErrRequestTimeout)))
	assert.Equal(t, "target_not_found", outcome(wrap(xcenter.ErrTargetNotFound)))
	assert.Equal(t, "target_unregistered", outcome(wrap(xcenter.ErrTargetUnregistered)))
	assert.Equal(t, "handler_error", outcome(wrap(xcenter.ErrHandlerFailure)))
	assert.Equal(t, "canceled", outcome(wrap(context.Canceled)))
	assert.Equal(t, "canceled", outcome(errors.New("other")))
}
