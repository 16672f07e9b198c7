package mailbox

import (
	"time"

	"github.com/trickstertwo/xlog"
)

// Config controls mailbox behavior.
type Config struct {
	// BufferSize is the queue capacity (default: 1024).
	BufferSize int
	// Concurrency is the number of worker goroutines (default: 1).
	// Only Concurrency == 1 keeps strict FIFO handling.
	Concurrency int
	// CloseTimeout bounds how long Close waits for in-flight handling (default: 5s).
	CloseTimeout time.Duration
}

// DefaultConfig returns the strict-FIFO configuration.
func DefaultConfig() Config {
	return Config{
		BufferSize:   1024,
		Concurrency:  1,
		CloseTimeout: 5 * time.Second,
	}
}

// ConfigFromMap safely converts cfg into Config with defaults.
func ConfigFromMap(cfg map[string]any) Config {
	getInt := func(k string, d int) int {
		switch v := cfg[k].(type) {
		case int:
			return v
		case int32:
			return int(v)
		case int64:
			return int(v)
		case float64:
			return int(v)
		default:
			return d
		}
	}

	getDur := func(k string, d time.Duration) time.Duration {
		switch v := cfg[k].(type) {
		case time.Duration:
			return v
		case string:
			if p, err := time.ParseDuration(v); err == nil {
				return p
			}
		case float64:
			return time.Duration(v)
		}
		return d
	}

	def := DefaultConfig()
	return Config{
		BufferSize:   maxInt(1, getInt("buffer_size", def.BufferSize)),
		Concurrency:  maxInt(1, getInt("concurrency", def.Concurrency)),
		CloseTimeout: getDur("close_timeout", def.CloseTimeout),
	}
}

// Option configures a Mailbox.
type Option func(*Mailbox)

// WithLogger injects a custom xlog logger used for one-way handler failures.
func WithLogger(l *xlog.Logger) Option {
	return func(m *Mailbox) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithResponder makes requests non-blocking: HandleMessage queues them and
// returns, and the worker answers through r. Pass the *xcenter.Center the
// mailbox is registered with.
func WithResponder(r Responder) Option {
	return func(m *Mailbox) {
		if r != nil {
			m.responder = r
		}
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
