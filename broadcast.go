package xcenter

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// BroadcastMessage delivers msg to every registered module except msg.Source.
//
// Recipients run concurrently (bounded by Config.BroadcastConcurrency) in an
// unspecified order. Each delivery is counted like SendMessage; a failing
// recipient never affects the others or the broadcaster, and responses are
// ignored. BroadcastMessage returns once every delivery has finished.
func (c *Center) BroadcastMessage(ctx context.Context, msg Message) error {
	if c.closed.Load() {
		return ErrCenterClosed
	}
	if msg.Target != "" {
		return ErrBroadcastTarget
	}
	if msg.Type == "" {
		return ErrInvalidMessageType
	}

	m := c.stamp(msg)
	recipients := c.registry.recipients(m.Source)

	c.metrics.broadcastCount.Add(1)
	c.notifyAsync(Event{Type: BroadcastSent, MessageID: m.ID, MessageType: m.Type, Source: m.Source})

	var g errgroup.Group
	if c.cfg.BroadcastConcurrency > 0 {
		g.SetLimit(c.cfg.BroadcastConcurrency)
	}
	for id, h := range recipients {
		// Each recipient gets its own copy; Target stays empty so handlers can
		// tell a broadcast from a direct send. The recipient id is in the context.
		rm := m.clone()
		g.Go(func() error {
			c.metrics.sentCount.Add(1)
			_, _ = c.deliver(ctx, id, h, rm)
			return nil
		})
	}
	_ = g.Wait()

	c.logger.Debug().
		Str("message_id", m.ID).
		Str("type", m.Type).
		Str("source", m.Source).
		Msg("xcenter: broadcast done")
	return nil
}
