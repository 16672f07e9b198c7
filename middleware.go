package xcenter

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// RetryConfig controls retry behavior for processing middleware.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts including the first execution.
	MaxAttempts int
	// Backoff computes the base wait before the next attempt (e.g., exponential backoff).
	Backoff func(attempt int) time.Duration
	// RetryIf, when provided, returns true if the error should be retried.
	// If nil, all errors are retried (bounded by MaxAttempts).
	RetryIf func(err error) bool
	// Jitter adds up to [0, Jitter] random delay to the base backoff to avoid thundering herds.
	Jitter time.Duration
}

// RetryMiddleware provides bounded, selective retries around a handler.
func RetryMiddleware(cfg RetryConfig) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, msg *Message) (*Response, error) {
			var lastErr error
			attempts := cfg.MaxAttempts
			if attempts < 1 {
				attempts = 1
			}
			shouldRetry := cfg.RetryIf
			if shouldRetry == nil {
				shouldRetry = func(error) bool { return true }
			}
			for i := 1; i <= attempts; i++ {
				var resp *Response
				resp, lastErr = next(ctx, msg)
				if lastErr == nil {
					return resp, nil
				}
				// Stop if context is canceled or deadline exceeded.
				if errors.Is(ctx.Err(), context.Canceled) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
					return nil, lastErr
				}
				if i == attempts || !shouldRetry(lastErr) {
					return nil, lastErr
				}
				if cfg.Backoff != nil {
					wait := cfg.Backoff(i)
					if cfg.Jitter > 0 {
						wait += time.Duration(rand.Int63n(int64(cfg.Jitter)))
					}
					select {
					case <-ctx.Done():
						return nil, lastErr
					case <-time.After(wait):
					}
				}
			}
			return nil, lastErr
		}
	}
}

// TimeoutMiddleware enforces a maximum processing time for a handler.
// When exceeded, it returns context.DeadlineExceeded; the handler goroutine is
// left to observe its canceled context.
func TimeoutMiddleware(d time.Duration) Middleware {
	if d <= 0 {
		return func(next HandlerFunc) HandlerFunc { return next }
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, msg *Message) (*Response, error) {
			tctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			type result struct {
				resp *Response
				err  error
			}
			resCh := make(chan result, 1)
			go func() {
				defer func() {
					if r := recover(); r != nil {
						resCh <- result{err: fmt.Errorf("panic recovered: %v", r)}
					}
				}()
				resp, err := next(tctx, msg)
				resCh <- result{resp: resp, err: err}
			}()

			select {
			case <-tctx.Done():
				return nil, tctx.Err()
			case r := <-resCh:
				return r.resp, r.err
			}
		}
	}
}

// RecoveryMiddleware prevents handler panics from crashing the center and
// converts them into errors.
func RecoveryMiddleware() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, msg *Message) (resp *Response, err error) {
			defer func() {
				if r := recover(); r != nil {
					resp = nil
					err = fmt.Errorf("panic recovered: %v", r)
				}
			}()
			return next(ctx, msg)
		}
	}
}

// Chain composes middlewares around a handler in order.
func Chain(h HandlerFunc, mws ...Middleware) HandlerFunc {
	if len(mws) == 0 {
		return h
	}
	wrapped := h
	// Apply in reverse so that first middleware wraps last.
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] == nil {
			continue
		}
		wrapped = mws[i](wrapped)
	}
	return wrapped
}
