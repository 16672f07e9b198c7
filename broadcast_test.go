package xcenter

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcastMessage_ExcludesSource(t *testing.T) {
	c := newTestCenter(t)
	m1, m2 := newRecorder("m1"), newRecorder("m2")
	require.NoError(t, c.RegisterModule("m1", m1))
	require.NoError(t, c.RegisterModule("m2", m2))

	require.NoError(t, c.BroadcastMessage(context.Background(), Message{Type: "ping", Source: "m1"}))

	assert.Empty(t, m1.received())
	got := m2.received()
	require.Len(t, got, 1)
	assert.Equal(t, "ping", got[0].Type)
	assert.Equal(t, "m1", got[0].Source)
	// Broadcast copies carry no target; the recipient is in the context.
	assert.Empty(t, got[0].Target)
	assert.Equal(t, []string{"m2"}, m2.addressedAs())

	s := c.Stats()
	assert.Equal(t, uint64(1), s.BroadcastsSent)
	assert.Equal(t, uint64(1), s.Sent)
	assert.Equal(t, uint64(1), s.Delivered)
}

func TestBroadcastMessage_ReachesEveryone(t *testing.T) {
	c := newTestCenter(t, func(b *CenterBuilder) { b.WithBroadcastConcurrency(2) })
	recs := make([]*recorder, 0, 6)
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		r := newRecorder(id)
		recs = append(recs, r)
		require.NoError(t, c.RegisterModule(id, r))
	}

	require.NoError(t, c.BroadcastMessage(context.Background(), Message{Type: "tick", Source: "outsider"}))

	for _, r := range recs {
		got := r.received()
		require.Len(t, got, 1, r.id)
		assert.Empty(t, got[0].Target)
		assert.Equal(t, []string{r.id}, r.addressedAs())
		// Every copy carries the same message id.
		assert.Equal(t, "id-1", got[0].ID)
	}
	assert.Equal(t, uint64(6), c.Stats().Delivered)
}

func TestBroadcastMessage_FailingRecipientIsolated(t *testing.T) {
	c := newTestCenter(t)
	failing := newRecorder("failing")
	failing.handle = func(context.Context, *Message) (*Response, error) { return nil, errors.New("nope") }
	ok := newRecorder("ok")
	require.NoError(t, c.RegisterModule("failing", failing))
	require.NoError(t, c.RegisterModule("panics", panicky{}))
	require.NoError(t, c.RegisterModule("ok", ok))

	require.NoError(t, c.BroadcastMessage(context.Background(), Message{Type: "ping"}))

	assert.Len(t, ok.received(), 1)
	s := c.Stats()
	assert.Equal(t, uint64(3), s.Sent)
	assert.Equal(t, uint64(1), s.Delivered)
	assert.Equal(t, uint64(2), s.DeliveryFailed)
}

func TestBroadcastMessage_RunsConcurrently(t *testing.T) {
	c := newTestCenter(t, func(b *CenterBuilder) { b.WithBroadcastConcurrency(-1) })
	var inFlight, peak atomic.Int32
	slow := func(context.Context, *Message) (*Response, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		return nil, nil
	}
	for _, id := range []string{"a", "b", "c", "d"} {
		r := newRecorder(id)
		r.handle = slow
		require.NoError(t, c.RegisterModule(id, r))
	}

	require.NoError(t, c.BroadcastMessage(context.Background(), Message{Type: "ping"}))
	assert.Greater(t, peak.Load(), int32(1))
}

func TestBroadcastMessage_NoRecipients(t *testing.T) {
	c := newTestCenter(t)
	require.NoError(t, c.RegisterModule("only", newRecorder("only")))

	require.NoError(t, c.BroadcastMessage(context.Background(), Message{Type: "ping", Source: "only"}))
	s := c.Stats()
	assert.Equal(t, uint64(1), s.BroadcastsSent)
	assert.Zero(t, s.Sent)
}

func TestBroadcastMessage_Validation(t *testing.T) {
	c := newTestCenter(t)

	assert.ErrorIs(t, c.BroadcastMessage(context.Background(), Message{Type: "ping", Target: "x"}), ErrBroadcastTarget)
	assert.ErrorIs(t, c.BroadcastMessage(context.Background(), Message{}), ErrInvalidMessageType)
	assert.Zero(t, c.Stats().BroadcastsSent)
}
