package promstats

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/trickstertwo/xcenter"
)

// Observer records handler and request latencies from center events.
type Observer struct {
	handling *prometheus.HistogramVec
	requests *prometheus.HistogramVec
}

var _ xcenter.Observer = (*Observer)(nil)

// NewObserver registers its histograms on reg and returns the observer.
func NewObserver(reg prometheus.Registerer, namespace string) *Observer {
	o := &Observer{
		handling: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "xcenter",
			Name:      "handler_duration_seconds",
			Help:      "Time spent in module handlers by message type",
			Buckets:   prometheus.DefBuckets,
		}, []string{"message_type"}),
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "xcenter",
			Name:      "request_duration_seconds",
			Help:      "Request round-trip time by outcome",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}), // outcome=ok|timeout|target_not_found|target_unregistered|handler_error|canceled
	}
	reg.MustRegister(o.handling, o.requests)
	return o
}

func (o *Observer) OnEvent(e xcenter.Event) {
	switch e.Type {
	case xcenter.MessageDelivered:
		o.handling.WithLabelValues(e.MessageType).Observe(e.Duration.Seconds())
	case xcenter.RequestDone:
		o.requests.WithLabelValues(outcome(e.Err)).Observe(e.Duration.Seconds())
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, xcenter.ErrRequestTimeout):
		return "timeout"
	case errors.Is(err, xcenter.ErrTargetNotFound):
		return "target_not_found"
	case errors.Is(err, xcenter.ErrTargetUnregistered):
		return "target_unregistered"
	case errors.Is(err, xcenter.ErrHandlerFailure):
		return "handler_error"
	default:
		return "canceled"
	}
}
