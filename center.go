package xcenter

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

// Center is the Message Center: a Facade over the module registry, router,
// request correlator, broadcast dispatcher and stats collector.
//
// Obtain the process-wide instance with Default, or build an isolated one with
// NewCenterBuilder for tests and embedded use.
type Center struct {
	codec        Codec
	clock        xclock.Clock
	logger       *xlog.Logger
	middlewares  []Middleware
	cfg          Config
	newID        func() string
	registry     *registry
	correlator   *correlator
	observerPool *ObserverPool
	observersMu  sync.RWMutex
	observers    []observerEntry
	observerSeq  uint64
	metrics      *centerMetrics
	closed       atomic.Bool
	closeOnce    sync.Once
}

// Codec returns the configured codec (Strategy).
func (c *Center) Codec() Codec { return c.codec }

// Config returns the effective configuration.
func (c *Center) Config() Config { return c.cfg }

// Health checks center health.
// Implements HealthChecker interface.
func (c *Center) Health(ctx context.Context) HealthStatus {
	if c.closed.Load() {
		return HealthStatus{
			Status:    "unhealthy",
			Timestamp: c.clock.Now(),
			Message:   "center is closed",
		}
	}

	stats := c.Stats()
	status := "healthy"

	// Degraded if failure rate > 5%
	if stats.DeliveryFailed > 0 && stats.Sent > 0 {
		failureRate := float64(stats.DeliveryFailed) / float64(stats.Sent)
		if failureRate > 0.05 {
			status = "degraded"
		}
	}

	return HealthStatus{
		Status:    status,
		Stats:     stats,
		Timestamp: c.clock.Now(),
	}
}

// Close fails every pending request with ErrCenterClosed, drains the observer
// pool and rejects further operations. Registered modules are kept so that
// late Stats calls still report them.
// CRITICAL: Idempotent via sync.Once.
func (c *Center) Close(ctx context.Context) error {
	var closeErr error

	c.closeOnce.Do(func() {
		c.closed.Store(true)

		// 1. Stop accepting new work (closed flag above)
		// 2. Resolve everything still waiting
		for _, p := range c.correlator.drain() {
			c.metrics.canceledCount.Add(1)
			c.finish(p, nil, &DeliveryError{Op: "request", Target: p.target, CorrelationID: p.correlationID, Err: ErrCenterClosed})
		}

		// 3. Drain observer pool
		if c.observerPool != nil {
			timeout := 5 * time.Second
			if dl, ok := ctx.Deadline(); ok {
				timeout = time.Until(dl)
			}
			if err := c.observerPool.Close(timeout); err != nil {
				c.logger.Warn().Err(err).Msg("xcenter: observer pool shutdown timeout")
				closeErr = err
			}
		}
	})

	return closeErr
}

type observerEntry struct {
	id  uint64
	obs Observer
}

// AddObserver registers an observer (thread-safe) and returns a func that
// removes exactly this registration. It works for every observer, including
// func-based ones such as ObserverFunc that RemoveObserver cannot match.
func (c *Center) AddObserver(obs Observer) (remove func()) {
	if obs == nil {
		return func() {}
	}
	c.observersMu.Lock()
	c.observerSeq++
	id := c.observerSeq
	c.observers = append(c.observers, observerEntry{id: id, obs: obs})
	c.observersMu.Unlock()

	return func() {
		c.observersMu.Lock()
		defer c.observersMu.Unlock()
		for i, e := range c.observers {
			if e.id == id {
				c.observers = append(c.observers[:i], c.observers[i+1:]...)
				return
			}
		}
	}
}

// RemoveObserver removes the first registration equal to obs. Observers of
// an uncomparable dynamic type (ObserverFunc, structs holding funcs or maps)
// never match; remove those with the func returned by AddObserver.
func (c *Center) RemoveObserver(obs Observer) {
	if obs == nil || !reflect.ValueOf(obs).Comparable() {
		return
	}
	c.observersMu.Lock()
	defer c.observersMu.Unlock()

	for i, e := range c.observers {
		if reflect.ValueOf(e.obs).Comparable() && e.obs == obs {
			c.observers = append(c.observers[:i], c.observers[i+1:]...)
			break
		}
	}
}

// notifyAsync dispatches events asynchronously (non-blocking).
// CRITICAL: Fails fast on closed center, avoids observer copy if no observers.
func (c *Center) notifyAsync(e Event) {
	if c.observerPool == nil || c.closed.Load() {
		return
	}

	c.observersMu.RLock()
	observerCount := len(c.observers)
	if observerCount == 0 {
		c.observersMu.RUnlock()
		return
	}

	// OPTIMIZATION: Avoid slice copy if only one observer
	if observerCount == 1 {
		obs := c.observers[0].obs
		c.observersMu.RUnlock()
		c.observerPool.Notify(e, []Observer{obs})
		return
	}

	observers := make([]Observer, observerCount)
	for i, entry := range c.observers {
		observers[i] = entry.obs
	}
	c.observersMu.RUnlock()

	c.observerPool.Notify(e, observers)
}

// handlerContext injects the active codec/logger/clock and the receiving module
// id for downstream decoding and observability.
func (c *Center) handlerContext(ctx context.Context, moduleID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = InjectAll(ctx, c.codec, c.logger, c.clock)
	return injectModuleID(ctx, moduleID)
}

// stamp prepares a caller message for delivery: private copy, id and timestamp.
func (c *Center) stamp(msg Message) *Message {
	m := msg.clone()
	if m.ID == "" {
		m.ID = c.newID()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = c.clock.Now()
	}
	return m
}
