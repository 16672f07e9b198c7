// Package mailbox wraps an xcenter.Handler with a queue drained by worker
// goroutines.
//
// One-way messages and broadcasts (no correlation id) are enqueued and the
// center's delivery call returns immediately. Requests are enqueued too; by
// default the call waits for the handler's answer. With WithResponder the call
// returns at once and the worker answers through the Responder, so
// SendRequestAsync does not block its caller on the queue.
//
// The center invokes handlers in each caller's call order. With the default
// single worker the mailbox handles messages in arrival order, so one caller's
// one-way messages and requests reach the wrapped module in the order they
// were sent.
//
//	mb := mailbox.New(myModule, mailbox.DefaultConfig(),
//		mailbox.WithLogger(logger), mailbox.WithResponder(center))
//	defer mb.Close(context.Background())
//	_ = center.RegisterModule("installer", mb)
package mailbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/trickstertwo/xcenter"
	"github.com/trickstertwo/xlog"
)

// ErrClosed is returned for messages offered to, or still queued in, a closed mailbox.
var ErrClosed = errors.New("mailbox: closed")

// Responder resolves a pending request out of band. *xcenter.Center
// implements it.
type Responder interface {
	Respond(resp xcenter.Response) bool
}

// Mailbox implements xcenter.Handler over a buffered queue.
type Mailbox struct {
	cfg       Config
	inner     xcenter.Handler
	logger    *xlog.Logger
	responder Responder

	queue  chan *task
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool

	metrics *mailboxMetrics
}

type mailboxMetrics struct {
	enqueued  atomic.Uint64
	processed atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

type task struct {
	ctx        context.Context
	cancel     context.CancelFunc // releases a detached request context
	msg        *xcenter.Message
	reply      chan result // nil for one-way and responder-answered messages
	respond    bool
	enqueuedAt time.Time
}

type result struct {
	resp *xcenter.Response
	err  error
}

var (
	_ xcenter.Handler = (*Mailbox)(nil)
	_ Responder       = (*xcenter.Center)(nil)
)

// New starts a mailbox in front of inner.
func New(inner xcenter.Handler, cfg Config, opts ...Option) *Mailbox {
	if cfg.BufferSize < 1 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = DefaultConfig().CloseTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Mailbox{
		cfg:     cfg,
		inner:   inner,
		logger:  xlog.Default(),
		queue:   make(chan *task, cfg.BufferSize),
		ctx:     ctx,
		cancel:  cancel,
		metrics: &mailboxMetrics{},
	}
	for _, o := range opts {
		if o != nil {
			o(m)
		}
	}

	for i := 0; i < cfg.Concurrency; i++ {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.worker()
		}()
	}
	return m
}

// HandleMessage enqueues msg. One-way messages return (nil, nil) as soon as
// they are queued. Requests wait for the inner handler's answer unless a
// Responder is configured, in which case they also return (nil, nil) and the
// answer is delivered through Responder.Respond.
func (m *Mailbox) HandleMessage(ctx context.Context, msg *xcenter.Message) (*xcenter.Response, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}

	t := &task{msg: msg, enqueuedAt: time.Now()}
	switch {
	case msg.CorrelationID != "" && m.responder != nil:
		// The sender's call returns before handling; keep values and the deadline.
		t.respond = true
		t.ctx, t.cancel = detach(ctx)
	case msg.CorrelationID != "":
		t.ctx = ctx
		t.reply = make(chan result, 1)
	default:
		t.ctx = context.WithoutCancel(ctx)
	}

	select {
	case m.queue <- t:
	default:
		// Queue full: blocking send to preserve ordering
		select {
		case m.queue <- t:
		case <-ctx.Done():
			m.metrics.dropped.Add(1)
			t.release()
			return nil, ctx.Err()
		case <-m.ctx.Done():
			m.metrics.dropped.Add(1)
			t.release()
			return nil, ErrClosed
		}
	}
	m.metrics.enqueued.Add(1)

	if t.reply == nil {
		return nil, nil
	}
	select {
	case r := <-t.reply:
		return r.resp, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// OnModuleRegistered forwards directly to the wrapped handler.
func (m *Mailbox) OnModuleRegistered(ctx context.Context, moduleID string) {
	m.inner.OnModuleRegistered(ctx, moduleID)
}

// OnModuleUnregistered forwards directly to the wrapped handler.
func (m *Mailbox) OnModuleUnregistered(ctx context.Context, moduleID string) {
	m.inner.OnModuleUnregistered(ctx, moduleID)
}

func (m *Mailbox) worker() {
	for {
		select {
		case <-m.ctx.Done():
			// Fail whatever is still queued
			for {
				select {
				case t := <-m.queue:
					m.reject(t)
				default:
					return
				}
			}
		case t := <-m.queue:
			m.process(t)
		}
	}
}

func (m *Mailbox) process(t *task) {
	defer t.release()
	if m.ctx.Err() != nil {
		m.reject(t)
		return
	}
	if err := t.ctx.Err(); err != nil && (t.reply != nil || t.respond) {
		// Requester already gave up.
		m.metrics.dropped.Add(1)
		m.answer(t, nil, err)
		return
	}

	resp, err := m.invoke(t)
	m.metrics.processed.Add(1)
	if err != nil {
		m.metrics.failed.Add(1)
	}

	if t.reply != nil || t.respond {
		m.answer(t, resp, err)
		return
	}
	if err != nil {
		m.logger.Warn().
			Str("message_id", t.msg.ID).
			Str("type", t.msg.Type).
			Str("source", t.msg.Source).
			Dur("queued", time.Since(t.enqueuedAt)).
			Err(err).
			Msg("mailbox: one-way handler failed")
	}
}

func (m *Mailbox) invoke(t *task) (resp *xcenter.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			resp = nil
			err = fmt.Errorf("panic recovered: %v", r)
		}
	}()
	return m.inner.HandleMessage(t.ctx, t.msg)
}

func (m *Mailbox) reject(t *task) {
	defer t.release()
	m.metrics.dropped.Add(1)
	if t.reply != nil || t.respond {
		m.answer(t, nil, ErrClosed)
	}
}

// answer hands a request outcome back to the waiting caller or the Responder.
// A nil response with a nil error means the inner handler answers later itself.
func (m *Mailbox) answer(t *task, resp *xcenter.Response, err error) {
	if t.reply != nil {
		t.reply <- result{resp: resp, err: err}
		return
	}
	switch {
	case err != nil:
		resp = &xcenter.Response{
			CorrelationID: t.msg.CorrelationID,
			MessageID:     t.msg.ID,
			Success:       false,
			Error:         err.Error(),
			Err:           err,
		}
	case resp == nil:
		return
	case resp.CorrelationID == "":
		resp.CorrelationID = t.msg.CorrelationID
	}
	if !m.responder.Respond(*resp) {
		m.logger.Debug().
			Str("correlation_id", t.msg.CorrelationID).
			Str("type", t.msg.Type).
			Msg("mailbox: answer for a request that is no longer pending")
	}
}

func (t *task) release() {
	if t.cancel != nil {
		t.cancel()
	}
}

// detach keeps ctx's values and deadline but not its cancellation.
func detach(ctx context.Context) (context.Context, context.CancelFunc) {
	base := context.WithoutCancel(ctx)
	if dl, ok := ctx.Deadline(); ok {
		return context.WithDeadline(base, dl)
	}
	return context.WithCancel(base)
}

// Close stops the workers after the message currently being handled and
// rejects everything still queued. Idempotent.
func (m *Mailbox) Close(ctx context.Context) error {
	if m.closed.Swap(true) {
		return nil
	}
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(m.cfg.CloseTimeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("mailbox: close timed out after %s", m.cfg.CloseTimeout)
	}
}

// Stats returns mailbox telemetry.
type Stats struct {
	Enqueued  uint64
	Processed uint64
	Failed    uint64
	Dropped   uint64
	Depth     int
}

// Stats returns current mailbox metrics.
func (m *Mailbox) Stats() Stats {
	return Stats{
		Enqueued:  m.metrics.enqueued.Load(),
		Processed: m.metrics.processed.Load(),
		Failed:    m.metrics.failed.Load(),
		Dropped:   m.metrics.dropped.Load(),
		Depth:     len(m.queue),
	}
}
