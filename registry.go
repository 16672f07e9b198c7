package xcenter

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// registry maps module ids to their handlers.
type registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func newRegistry() *registry {
	return &registry{handlers: make(map[string]Handler)}
}

// put stores h under id and returns the peers that must learn about it.
func (r *registry) put(id string, h Handler) (peers map[string]Handler, replaced bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, replaced = r.handlers[id]
	r.handlers[id] = h
	peers = make(map[string]Handler, len(r.handlers)-1)
	for pid, ph := range r.handlers {
		if pid != id {
			peers[pid] = ph
		}
	}
	return peers, replaced
}

// remove deletes id and returns the remaining modules, or ok=false if id was unknown.
func (r *registry) remove(id string) (remaining map[string]Handler, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok = r.handlers[id]; !ok {
		return nil, false
	}
	delete(r.handlers, id)
	return maps.Clone(r.handlers), true
}

func (r *registry) lookup(id string) (Handler, bool) {
	r.mu.RLock()
	h, ok := r.handlers[id]
	r.mu.RUnlock()
	return h, ok
}

// recipients returns every registered (id, handler) pair except exclude.
func (r *registry) recipients(exclude string) map[string]Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Handler, len(r.handlers))
	for id, h := range r.handlers {
		if id != exclude {
			out[id] = h
		}
	}
	return out
}

func (r *registry) ids() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.handlers))
	for id := range r.handlers {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

func (r *registry) len() int {
	r.mu.RLock()
	n := len(r.handlers)
	r.mu.RUnlock()
	return n
}

// RegisterModule stores h under moduleID and tells every other registered
// module about the newcomer. The newcomer is not told about existing peers;
// it can discover them with Modules. Re-registering an id replaces the
// previous handler silently.
func (c *Center) RegisterModule(moduleID string, h Handler) error {
	if c.closed.Load() {
		return ErrCenterClosed
	}
	if moduleID == "" {
		return ErrInvalidModuleID
	}
	if h == nil {
		return ErrNilHandler
	}

	peers, replaced := c.registry.put(moduleID, h)
	c.logger.Debug().
		Str("module", moduleID).
		Str("replaced", fmt.Sprint(replaced)).
		Msg("xcenter: module registered")
	c.notifyAsync(Event{Type: ModuleRegistered, ModuleID: moduleID})

	c.notifyPeers(moduleID, peers, func(ctx context.Context, p Handler) {
		p.OnModuleRegistered(ctx, moduleID)
	})
	return nil
}

// UnregisterModule removes moduleID, fails its pending requests with
// ErrTargetUnregistered and notifies the remaining modules. Unknown ids are a no-op.
func (c *Center) UnregisterModule(moduleID string) {
	remaining, ok := c.registry.remove(moduleID)
	if !ok {
		return
	}

	// CRITICAL: cancel before notifying so waiters never outlive their target.
	for _, p := range c.correlator.cancelTarget(moduleID) {
		c.metrics.canceledCount.Add(1)
		c.finish(p, nil, &DeliveryError{Op: "request", Target: moduleID, CorrelationID: p.correlationID, Err: ErrTargetUnregistered})
	}

	c.logger.Debug().Str("module", moduleID).Msg("xcenter: module unregistered")
	c.notifyAsync(Event{Type: ModuleUnregistered, ModuleID: moduleID})

	if c.closed.Load() {
		return
	}
	c.notifyPeers(moduleID, remaining, func(ctx context.Context, p Handler) {
		p.OnModuleUnregistered(ctx, moduleID)
	})
}

// Modules returns the sorted ids of every registered module.
func (c *Center) Modules() []string {
	return c.registry.ids()
}

// notifyPeers runs fn for every peer concurrently, isolating panics, and waits
// at most NotifyTimeout. Peers still running after that keep running on their own.
// Each hook sees its own module id in ModuleIDFromContext; subject is the
// module that joined or left.
func (c *Center) notifyPeers(subject string, peers map[string]Handler, fn func(ctx context.Context, p Handler)) {
	if len(peers) == 0 {
		return
	}

	var g errgroup.Group
	for pid, p := range peers {
		ctx := c.handlerContext(context.Background(), pid)
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					c.metrics.errorCount.Add(1)
					c.logger.Warn().
						Str("module", subject).
						Str("peer", pid).
						Str("panic", fmt.Sprint(r)).
						Msg("xcenter: lifecycle notification panic (recovered)")
					c.notifyAsync(Event{Type: Error, ModuleID: subject, Err: fmt.Errorf("lifecycle hook panic: %v", r)})
				}
			}()
			fn(ctx, p)
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	timer := time.NewTimer(c.cfg.NotifyTimeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		c.logger.Warn().
			Str("module", subject).
			Dur("timeout", c.cfg.NotifyTimeout).
			Msg("xcenter: lifecycle notification still running, continuing")
	}
}
