package xcenter

import (
	"context"
	"fmt"
)

// SendMessage delivers msg to msg.Target without expecting a response.
//
// The handler runs in the caller's goroutine, so one caller's messages reach a
// target in call order. Delivery failures (unknown target, handler error or
// panic) are logged and counted in Stats but never returned: the only errors
// are caller mistakes and a closed center.
func (c *Center) SendMessage(ctx context.Context, msg Message) error {
	if c.closed.Load() {
		return ErrCenterClosed
	}
	if err := validatePointToPoint(msg); err != nil {
		return err
	}

	m := c.stamp(msg)
	c.metrics.sentCount.Add(1)
	c.notifyAsync(Event{Type: MessageSent, MessageID: m.ID, MessageType: m.Type, Source: m.Source, Target: m.Target})

	h, ok := c.registry.lookup(m.Target)
	if !ok {
		c.recordFailure(m, m.Target, ErrTargetNotFound)
		return nil
	}
	// One-way: a returned response is discarded.
	_, _ = c.deliver(ctx, m.Target, h, m)
	return nil
}

// deliver invokes h, registered as moduleID, for m through the middleware chain
// with panic recovery and records the outcome. moduleID differs from m.Target
// for broadcasts, whose copies carry no target. The returned error is already
// wrapped with ErrHandlerFailure.
func (c *Center) deliver(ctx context.Context, moduleID string, h Handler, m *Message) (*Response, error) {
	// CRITICAL: Always enable panic recovery first for dependability;
	// the outer recover covers the configured middlewares.
	base := RecoveryMiddleware()(h.HandleMessage)
	wh := RecoveryMiddleware()(Chain(base, c.middlewares...))

	start := c.clock.Now()
	resp, err := wh(c.handlerContext(ctx, moduleID), m)
	duration := c.clock.Since(start)
	c.recordProcessingTime(duration.Nanoseconds())

	if err != nil {
		err = handlerError(err)
		c.recordFailure(m, moduleID, err)
		return nil, err
	}

	c.metrics.deliveredCount.Add(1)
	c.notifyAsync(Event{
		Type:          MessageDelivered,
		MessageID:     m.ID,
		MessageType:   m.Type,
		Source:        m.Source,
		Target:        moduleID,
		CorrelationID: m.CorrelationID,
		Duration:      duration,
	})
	return resp, nil
}

func (c *Center) recordFailure(m *Message, target string, err error) {
	c.metrics.failedCount.Add(1)
	c.logger.Warn().
		Str("message_id", m.ID).
		Str("type", m.Type).
		Str("source", m.Source).
		Str("target", target).
		Err(err).
		Msg("xcenter: delivery failed")
	c.notifyAsync(Event{
		Type:          DeliveryFailed,
		MessageID:     m.ID,
		MessageType:   m.Type,
		Source:        m.Source,
		Target:        target,
		CorrelationID: m.CorrelationID,
		Err:           err,
	})
}

func validatePointToPoint(msg Message) error {
	if msg.Target == "" {
		return ErrMissingTarget
	}
	if msg.Type == "" {
		return fmt.Errorf("%w (target %s)", ErrInvalidMessageType, msg.Target)
	}
	return nil
}
