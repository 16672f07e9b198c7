package xcenter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// pendingRequest is an in-flight request awaiting exactly one resolution.
// It is owned by the correlator from open until it is taken out of the map;
// whoever takes it is the single resolver.
type pendingRequest struct {
	correlationID string
	messageID     string
	messageType   string
	source        string
	target        string
	createdAt     time.Time
	deadline      time.Time
	timeout       time.Duration

	// Guarded by correlator.mu until the entry is taken.
	timer   *time.Timer
	stopCtx func() bool

	complete func(p *pendingRequest, resp *Response, err error)
}

// correlator tracks pending requests keyed by correlation id.
type correlator struct {
	mu      sync.Mutex
	pending map[string]*pendingRequest
	drained bool // set by drain; open fails afterwards
}

func newCorrelator() *correlator {
	return &correlator{pending: make(map[string]*pendingRequest)}
}

// open registers p and arms its two expiry sources: the deadline timer and
// cancellation of ctx. expire runs only if the source wins the race for p.
func (k *correlator) open(ctx context.Context, p *pendingRequest, timeout time.Duration, expire func(p *pendingRequest, cause error)) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.drained {
		return ErrCenterClosed
	}
	if _, exists := k.pending[p.correlationID]; exists {
		return ErrDuplicateCorrelationID
	}
	k.pending[p.correlationID] = p

	p.timer = time.AfterFunc(timeout, func() {
		if k.takeExact(p) {
			expire(p, ErrRequestTimeout)
		}
	})
	if ctx.Done() != nil {
		p.stopCtx = context.AfterFunc(ctx, func() {
			if k.takeExact(p) {
				expire(p, ctx.Err())
			}
		})
	}
	return nil
}

// take removes the request registered under id, if any.
func (k *correlator) take(id string) (*pendingRequest, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()

	p, ok := k.pending[id]
	if !ok {
		return nil, false
	}
	k.removeLocked(p)
	return p, true
}

// takeExact removes p only if it is still the entry under its id. A stale
// resolver (late timer, late response) finds nothing and must do nothing.
func (k *correlator) takeExact(p *pendingRequest) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.pending[p.correlationID] != p {
		return false
	}
	k.removeLocked(p)
	return true
}

// cancelTarget removes every request addressed to target.
func (k *correlator) cancelTarget(target string) []*pendingRequest {
	k.mu.Lock()
	defer k.mu.Unlock()

	var out []*pendingRequest
	for _, p := range k.pending {
		if p.target == target {
			out = append(out, p)
		}
	}
	for _, p := range out {
		k.removeLocked(p)
	}
	return out
}

// drain removes every pending request and refuses new ones.
func (k *correlator) drain() []*pendingRequest {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.drained = true
	out := make([]*pendingRequest, 0, len(k.pending))
	for _, p := range k.pending {
		out = append(out, p)
	}
	for _, p := range out {
		k.removeLocked(p)
	}
	return out
}

func (k *correlator) len() int {
	k.mu.Lock()
	n := len(k.pending)
	k.mu.Unlock()
	return n
}

func (k *correlator) removeLocked(p *pendingRequest) {
	delete(k.pending, p.correlationID)
	if p.timer != nil {
		p.timer.Stop()
	}
	if p.stopCtx != nil {
		p.stopCtx()
	}
}

type requestOutcome struct {
	resp *Response
	err  error
}

// SendRequest delivers msg to msg.Target and waits for the correlated response.
//
// A correlation id is generated when msg.CorrelationID is empty. timeout <= 0
// uses Config.DefaultTimeout. The request fails with ErrTargetNotFound
// immediately when the target is unknown, with ErrHandlerFailure when the
// handler returns an error, with ErrRequestTimeout once the deadline passes,
// with ErrTargetUnregistered when the target leaves, and with ctx.Err() when
// ctx is canceled. Failures are *DeliveryError values.
//
// The handler runs in the caller's goroutine, so handlers see requests and
// one-way messages from one caller in call order. A handler that needs to
// block should return (nil, nil) and answer later through Respond.
//
// A response with Success=false is returned as-is with a nil error.
func (c *Center) SendRequest(ctx context.Context, msg Message, timeout time.Duration) (*Response, error) {
	done := make(chan requestOutcome, 1)
	err := c.startRequest(ctx, msg, timeout, func(_ *pendingRequest, resp *Response, err error) {
		done <- requestOutcome{resp: resp, err: err}
	})
	if err != nil {
		return nil, err
	}
	o := <-done
	return o.resp, o.err
}

// SendRequestAsync is SendRequest delivering its outcome to cb instead of
// waiting for it. The handler is still invoked before SendRequestAsync
// returns; only the response is awaited asynchronously. cb is invoked exactly
// once, with the response or with a synthesized failure response whose Err
// field holds the cause. It may run before SendRequestAsync returns when the
// handler answers inline. Errors returned synchronously (invalid message,
// closed center, duplicate correlation id) mean cb will never be invoked.
func (c *Center) SendRequestAsync(ctx context.Context, msg Message, timeout time.Duration, cb Callback) error {
	if cb == nil {
		return ErrNilCallback
	}
	return c.startRequest(ctx, msg, timeout, func(p *pendingRequest, resp *Response, err error) {
		out := failureResponse(p, err, c.clock.Now())
		if err == nil {
			out = *resp
		}
		defer func() {
			if r := recover(); r != nil {
				c.metrics.errorCount.Add(1)
				c.logger.Warn().
					Str("correlation_id", p.correlationID).
					Str("panic", fmt.Sprint(r)).
					Msg("xcenter: request callback panic (recovered)")
				c.notifyAsync(Event{Type: Error, CorrelationID: p.correlationID, Target: p.target, Err: fmt.Errorf("callback panic: %v", r)})
			}
		}()
		cb(out)
	})
}

// Respond resolves the pending request whose correlation id matches resp.
// It lets handlers answer later than their HandleMessage call. It reports
// false when nothing is waiting, e.g. the request already timed out.
func (c *Center) Respond(resp Response) bool {
	p, ok := c.correlator.take(resp.CorrelationID)
	if !ok {
		c.metrics.lateCount.Add(1)
		c.logger.Debug().
			Str("correlation_id", resp.CorrelationID).
			Msg("xcenter: response for unknown correlation id discarded")
		return false
	}
	c.fillResponse(p, &resp)
	c.finish(p, &resp, nil)
	return true
}

func (c *Center) startRequest(ctx context.Context, msg Message, timeout time.Duration, complete func(*pendingRequest, *Response, error)) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.closed.Load() {
		return ErrCenterClosed
	}
	if err := validatePointToPoint(msg); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return &DeliveryError{Op: "request", Target: msg.Target, CorrelationID: msg.CorrelationID, Err: err}
	}
	if timeout <= 0 {
		timeout = c.cfg.DefaultTimeout
	}

	m := c.stamp(msg)
	if m.CorrelationID == "" {
		m.CorrelationID = c.newID()
	}
	now := c.clock.Now()
	p := &pendingRequest{
		correlationID: m.CorrelationID,
		messageID:     m.ID,
		messageType:   m.Type,
		source:        m.Source,
		target:        m.Target,
		createdAt:     now,
		deadline:      now.Add(timeout),
		timeout:       timeout,
		complete:      complete,
	}
	if err := c.correlator.open(ctx, p, timeout, c.expire); err != nil {
		return &DeliveryError{Op: "request", Target: m.Target, CorrelationID: m.CorrelationID, Err: err}
	}

	c.metrics.sentCount.Add(1)
	c.notifyAsync(Event{Type: RequestStart, MessageID: m.ID, MessageType: m.Type, Source: m.Source, Target: m.Target, CorrelationID: m.CorrelationID})

	// Lookup after open: an unregister racing with us finds p and cancels it.
	h, ok := c.registry.lookup(m.Target)
	if !ok {
		c.recordFailure(m, m.Target, ErrTargetNotFound)
		if c.correlator.takeExact(p) {
			c.finish(p, nil, &DeliveryError{Op: "request", Target: m.Target, CorrelationID: m.CorrelationID, Err: ErrTargetNotFound})
		}
		return nil
	}

	c.dispatch(ctx, h, m, p)
	return nil
}

// dispatch runs the target handler in the caller's goroutine and intercepts
// its response.
func (c *Center) dispatch(ctx context.Context, h Handler, m *Message, p *pendingRequest) {
	hctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := c.deliver(hctx, p.target, h, m)
	switch {
	case err != nil:
		if c.correlator.takeExact(p) {
			c.finish(p, nil, &DeliveryError{Op: "request", Target: p.target, CorrelationID: p.correlationID, Err: err})
		}
	case resp == nil:
		// Deferred reply: the handler answers later through Respond.
	default:
		if resp.CorrelationID == "" {
			resp.CorrelationID = p.correlationID
		}
		if resp.CorrelationID != p.correlationID {
			c.logger.Warn().
				Str("correlation_id", p.correlationID).
				Str("response_correlation_id", resp.CorrelationID).
				Str("target", p.target).
				Msg("xcenter: response correlation id mismatch ignored")
			return
		}
		if !c.correlator.takeExact(p) {
			c.metrics.lateCount.Add(1)
			c.logger.Debug().
				Str("correlation_id", p.correlationID).
				Msg("xcenter: late response discarded")
			return
		}
		c.fillResponse(p, resp)
		c.finish(p, resp, nil)
	}
}

// expire resolves p after its deadline or its caller context won the race.
func (c *Center) expire(p *pendingRequest, cause error) {
	if errors.Is(cause, ErrRequestTimeout) {
		c.metrics.timedOutCount.Add(1)
		c.logger.Warn().
			Str("correlation_id", p.correlationID).
			Str("target", p.target).
			Dur("elapsed", c.clock.Since(p.createdAt)).
			Msg("xcenter: request timed out")
	} else {
		c.metrics.canceledCount.Add(1)
	}
	c.finish(p, nil, &DeliveryError{Op: "request", Target: p.target, CorrelationID: p.correlationID, Err: cause})
}

func (c *Center) fillResponse(p *pendingRequest, resp *Response) {
	if resp.MessageID == "" {
		resp.MessageID = p.messageID
	}
	if resp.Timestamp.IsZero() {
		resp.Timestamp = c.clock.Now()
	}
}

// finish hands the single outcome of p to its waiter.
func (c *Center) finish(p *pendingRequest, resp *Response, err error) {
	c.notifyAsync(Event{
		Type:          RequestDone,
		MessageID:     p.messageID,
		MessageType:   p.messageType,
		Source:        p.source,
		Target:        p.target,
		CorrelationID: p.correlationID,
		Duration:      c.clock.Since(p.createdAt),
		Err:           err,
	})
	p.complete(p, resp, err)
}
