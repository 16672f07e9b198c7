package xcenter

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/trickstertwo/xlog"
	"github.com/trickstertwo/xlog/adapter/zerolog"
)

func discardLogger() *xlog.Logger {
	return zerolog.Use(zerolog.Config{
		MinLevel: xlog.LevelDebug,
		Console:  false,
		Writer:   io.Discard,
	})
}

// newTestCenter builds an isolated center with a silent logger and
// sequential ids, closed at test end.
func newTestCenter(t *testing.T, init ...func(b *CenterBuilder)) *Center {
	t.Helper()
	var seq atomic.Uint64
	b := NewCenterBuilder().
		WithLogger(discardLogger()).
		WithIDGenerator(func() string { return fmt.Sprintf("id-%d", seq.Add(1)) })
	for _, fn := range init {
		fn(b)
	}
	c, err := b.Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c
}

// recorder is a module that remembers what it was told.
type recorder struct {
	id     string
	handle func(ctx context.Context, msg *Message) (*Response, error)

	mu           sync.Mutex
	messages     []Message
	addressed    []string // ModuleIDFromContext per message
	hookedAs     []string // ModuleIDFromContext per lifecycle hook
	registered   []string
	unregistered []string
}

func newRecorder(id string) *recorder {
	return &recorder{id: id}
}

func (r *recorder) HandleMessage(ctx context.Context, msg *Message) (*Response, error) {
	self, _ := ModuleIDFromContext(ctx)
	r.mu.Lock()
	r.messages = append(r.messages, *msg)
	r.addressed = append(r.addressed, self)
	r.mu.Unlock()
	if r.handle != nil {
		return r.handle(ctx, msg)
	}
	return msg.Reply(map[string]any{"message": "Processed by " + r.id}), nil
}

func (r *recorder) OnModuleRegistered(ctx context.Context, moduleID string) {
	self, _ := ModuleIDFromContext(ctx)
	r.mu.Lock()
	r.registered = append(r.registered, moduleID)
	r.hookedAs = append(r.hookedAs, self)
	r.mu.Unlock()
}

func (r *recorder) OnModuleUnregistered(ctx context.Context, moduleID string) {
	self, _ := ModuleIDFromContext(ctx)
	r.mu.Lock()
	r.unregistered = append(r.unregistered, moduleID)
	r.hookedAs = append(r.hookedAs, self)
	r.mu.Unlock()
}

func (r *recorder) received() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

func (r *recorder) addressedAs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.addressed...)
}

func (r *recorder) hooks() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.hookedAs...)
}

func (r *recorder) joins() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.registered...)
}

func (r *recorder) leaves() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.unregistered...)
}

// processedBy extracts data.message from a recorder reply.
func processedBy(t *testing.T, resp *Response) string {
	t.Helper()
	data, err := DecodeData[map[string]string](resp)
	require.NoError(t, err)
	return data["message"]
}

// deferred never answers inline; requests stay pending until Respond.
func deferred(context.Context, *Message) (*Response, error) { return nil, nil }
