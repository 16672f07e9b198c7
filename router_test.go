package xcenter

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendMessage_Delivers(t *testing.T) {
	c := newTestCenter(t)
	target := newRecorder("target")
	require.NoError(t, c.RegisterModule("target", target))

	msg := Message{
		Type:     "install",
		Source:   "cli",
		Target:   "target",
		Payload:  "pkg",
		Metadata: map[string]string{"k": "v"},
	}
	require.NoError(t, c.SendMessage(context.Background(), msg))

	got := target.received()
	require.Len(t, got, 1)
	assert.Equal(t, "install", got[0].Type)
	assert.Equal(t, "cli", got[0].Source)
	assert.Equal(t, "pkg", got[0].Payload)
	assert.Equal(t, "id-1", got[0].ID)
	assert.False(t, got[0].Timestamp.IsZero())
	assert.Equal(t, "v", got[0].Metadata["k"])
	// The caller's message is never mutated.
	assert.Empty(t, msg.ID)

	s := c.Stats()
	assert.Equal(t, uint64(1), s.Sent)
	assert.Equal(t, uint64(1), s.Delivered)
	assert.Zero(t, s.DeliveryFailed)
}

func TestSendMessage_HandlerSeesModuleAndCodec(t *testing.T) {
	c := newTestCenter(t)
	var module string
	var hasCodec bool
	r := newRecorder("m")
	r.handle = func(ctx context.Context, msg *Message) (*Response, error) {
		module, _ = ModuleIDFromContext(ctx)
		_, hasCodec = CodecFromContext(ctx)
		return nil, nil
	}
	require.NoError(t, c.RegisterModule("m", r))
	require.NoError(t, c.SendMessage(context.Background(), Message{Type: "t", Target: "m"}))

	assert.Equal(t, "m", module)
	assert.True(t, hasCodec)
}

func TestSendMessage_UnknownTargetCounted(t *testing.T) {
	c := newTestCenter(t)

	require.NoError(t, c.SendMessage(context.Background(), Message{Type: "t", Source: "a", Target: "ghost"}))

	s := c.Stats()
	assert.Equal(t, uint64(1), s.Sent)
	assert.Equal(t, uint64(1), s.DeliveryFailed)
	assert.Zero(t, s.Delivered)
}

func TestSendMessage_Validation(t *testing.T) {
	c := newTestCenter(t)

	assert.ErrorIs(t, c.SendMessage(context.Background(), Message{Type: "t"}), ErrMissingTarget)
	assert.ErrorIs(t, c.SendMessage(context.Background(), Message{Target: "x"}), ErrInvalidMessageType)
	assert.Zero(t, c.Stats().Sent)

	require.NoError(t, c.Close(context.Background()))
	assert.ErrorIs(t, c.SendMessage(context.Background(), Message{Type: "t", Target: "x"}), ErrCenterClosed)
}

func TestSendMessage_HandlerFailureIsolated(t *testing.T) {
	c := newTestCenter(t)
	failing := newRecorder("failing")
	failing.handle = func(context.Context, *Message) (*Response, error) { return nil, errors.New("boom") }
	require.NoError(t, c.RegisterModule("failing", failing))
	require.NoError(t, c.RegisterModule("panics", panicky{}))
	ok := newRecorder("ok")
	require.NoError(t, c.RegisterModule("ok", ok))

	ctx := context.Background()
	require.NoError(t, c.SendMessage(ctx, Message{Type: "t", Target: "failing"}))
	require.NoError(t, c.SendMessage(ctx, Message{Type: "t", Target: "panics"}))
	require.NoError(t, c.SendMessage(ctx, Message{Type: "t", Target: "ok"}))

	s := c.Stats()
	assert.Equal(t, uint64(3), s.Sent)
	assert.Equal(t, uint64(2), s.DeliveryFailed)
	assert.Equal(t, uint64(1), s.Delivered)
	assert.Len(t, ok.received(), 1)
}

func TestSendMessage_PreservesOrderPerSender(t *testing.T) {
	c := newTestCenter(t)
	target := newRecorder("target")
	require.NoError(t, c.RegisterModule("target", target))

	for i := 0; i < 50; i++ {
		require.NoError(t, c.SendMessage(context.Background(), Message{Type: "seq", Source: "a", Target: "target", Payload: i}))
	}

	got := target.received()
	require.Len(t, got, 50)
	for i, m := range got {
		assert.Equal(t, i, m.Payload, fmt.Sprintf("message %d out of order", i))
	}
}

func TestSendMessage_MiddlewareChain(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, msg *Message) (*Response, error) {
				order = append(order, name)
				return next(ctx, msg)
			}
		}
	}
	c := newTestCenter(t, func(b *CenterBuilder) { b.WithMiddleware(mw("outer"), mw("inner")) })
	require.NoError(t, c.RegisterModule("m", newRecorder("m")))

	require.NoError(t, c.SendMessage(context.Background(), Message{Type: "t", Target: "m"}))
	assert.Equal(t, []string{"outer", "inner"}, order)
}

func TestSendMessage_PanickingMiddlewareRecovered(t *testing.T) {
	boom := func(HandlerFunc) HandlerFunc {
		return func(context.Context, *Message) (*Response, error) { panic("middleware") }
	}
	c := newTestCenter(t, func(b *CenterBuilder) { b.WithMiddleware(boom) })
	require.NoError(t, c.RegisterModule("m", newRecorder("m")))

	require.NoError(t, c.SendMessage(context.Background(), Message{Type: "t", Target: "m"}))
	assert.Equal(t, uint64(1), c.Stats().DeliveryFailed)
}
