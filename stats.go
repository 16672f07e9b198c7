package xcenter

import "sync/atomic"

// centerMetrics uses lock-free atomics for production-grade telemetry.
type centerMetrics struct {
	sentCount      atomic.Uint64
	deliveredCount atomic.Uint64
	failedCount    atomic.Uint64
	broadcastCount atomic.Uint64
	timedOutCount  atomic.Uint64
	canceledCount  atomic.Uint64
	lateCount      atomic.Uint64
	errorCount     atomic.Uint64
	processingNs   atomic.Int64
}

// Stats returns a snapshot of the center counters. PendingRequests and
// RegisteredModules are read from live state, never cached.
func (c *Center) Stats() Stats {
	s := Stats{
		Sent:                c.metrics.sentCount.Load(),
		Delivered:           c.metrics.deliveredCount.Load(),
		DeliveryFailed:      c.metrics.failedCount.Load(),
		BroadcastsSent:      c.metrics.broadcastCount.Load(),
		RequestsTimedOut:    c.metrics.timedOutCount.Load(),
		RequestsCanceled:    c.metrics.canceledCount.Load(),
		LateResponses:       c.metrics.lateCount.Load(),
		Errors:              c.metrics.errorCount.Load(),
		PendingRequests:     c.correlator.len(),
		RegisteredModules:   c.registry.len(),
		AvgProcessingTimeMs: float64(c.metrics.processingNs.Load()) / 1e6,
	}
	if c.observerPool != nil {
		s.EventsDropped = c.observerPool.Stats().Dropped
	}
	return s
}

// recordProcessingTime records handler time using exponential moving average.
// OPTIMIZATION: More accurate than simple average.
func (c *Center) recordProcessingTime(ns int64) {
	const alpha = 0.2 // 20% weight to new sample
	for {
		current := c.metrics.processingNs.Load()
		next := ns
		if current != 0 {
			// EMA: new = (alpha * sample) + (1-alpha) * old
			next = int64(float64(ns)*alpha + float64(current)*(1-alpha))
		}
		if c.metrics.processingNs.CompareAndSwap(current, next) {
			return
		}
	}
}
