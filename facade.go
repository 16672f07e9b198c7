package xcenter

import (
	"context"
	"fmt"
	"sync"
	"time"
)

var (
	defaultCenter   *Center
	defaultCenterMu sync.Mutex
)

// Default returns the process-wide Center, creating it with defaults on first
// access. It lives until process exit.
func Default() *Center {
	defaultCenterMu.Lock()
	defer defaultCenterMu.Unlock()

	if defaultCenter != nil {
		return defaultCenter
	}

	c, err := NewCenterBuilder().Build()
	if err != nil {
		panic(fmt.Sprintf("xcenter: failed to initialize default center: %v", err))
	}
	defaultCenter = c
	return defaultCenter
}

// SetDefault replaces the process-wide default Center. Intended for the
// composition root, before modules start using the facade.
func SetDefault(c *Center) {
	if c == nil {
		panic("xcenter: SetDefault called with nil Center")
	}
	defaultCenterMu.Lock()
	defaultCenter = c
	defaultCenterMu.Unlock()
}

// Use builds a Center via Builder, installs it as the process-wide default and
// returns it.
func Use(init func(b *CenterBuilder)) (*Center, error) {
	b := NewCenterBuilder()
	if init != nil {
		init(b)
	}
	c, err := b.Build()
	if err != nil {
		return nil, err
	}
	SetDefault(c)
	return c, nil
}

// RegisterModule is the Facade using the default center.
func RegisterModule(moduleID string, h Handler) error {
	return Default().RegisterModule(moduleID, h)
}

// UnregisterModule is the Facade using the default center.
func UnregisterModule(moduleID string) {
	Default().UnregisterModule(moduleID)
}

// SendMessage is the Facade using the default center.
func SendMessage(ctx context.Context, msg Message) error {
	return Default().SendMessage(ctx, msg)
}

// SendRequest is the Facade using the default center.
func SendRequest(ctx context.Context, msg Message, timeout time.Duration) (*Response, error) {
	return Default().SendRequest(ctx, msg, timeout)
}

// SendRequestAsync is the Facade using the default center.
func SendRequestAsync(ctx context.Context, msg Message, timeout time.Duration, cb Callback) error {
	return Default().SendRequestAsync(ctx, msg, timeout, cb)
}

// BroadcastMessage is the Facade using the default center.
func BroadcastMessage(ctx context.Context, msg Message) error {
	return Default().BroadcastMessage(ctx, msg)
}

// Respond is the Facade using the default center.
func Respond(resp Response) bool {
	return Default().Respond(resp)
}

// GetStats is the Facade using the default center.
func GetStats() Stats {
	return Default().Stats()
}
