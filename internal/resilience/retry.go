// Package resilience provides bounded retry with exponential backoff for
// idempotent-safe remote calls.
package resilience

import (
	"context"
	"math/rand"
	"time"
)

// RetryConfig defines retry behavior.
type RetryConfig struct {
	MaxRetries      int              // retries after the first attempt
	InitialDelay    time.Duration    // delay before the first retry
	MaxDelay        time.Duration    // backoff cap
	Multiplier      float64          // exponential growth factor
	RandomizeFactor float64          // jitter fraction (0-1)
	RetryIf         func(error) bool // nil = retry every error
}

// DefaultRetryConfig returns the standard policy: two retries, 500ms
// initial delay doubling up to 5s, 10% jitter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      2,
		InitialDelay:    500 * time.Millisecond,
		MaxDelay:        5 * time.Second,
		Multiplier:      2.0,
		RandomizeFactor: 0.1,
	}
}

// Do executes fn, retrying per cfg. The last error is returned when
// retries are exhausted or fn fails with a non-retryable error. Context
// cancellation aborts both execution and backoff waits.
func Do(ctx context.Context, cfg RetryConfig, fn func() error) error {
	delay := cfg.InitialDelay
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if cfg.RetryIf != nil && !cfg.RetryIf(lastErr) {
			return lastErr
		}

		if attempt < cfg.MaxRetries {
			select {
			case <-time.After(jitter(delay, cfg.RandomizeFactor)):
			case <-ctx.Done():
				return ctx.Err()
			}
			delay = time.Duration(float64(delay) * cfg.Multiplier)
			if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
		}
	}

	return lastErr
}

// jitter spreads the delay within ±factor to avoid retry alignment
// across concurrent conversations.
func jitter(delay time.Duration, factor float64) time.Duration {
	if factor <= 0 {
		return delay
	}
	spread := float64(delay) * factor
	return time.Duration(float64(delay) - spread + rand.Float64()*2*spread)
}
