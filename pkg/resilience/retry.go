package resilience

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// RetryConfig controls bounded exponential backoff.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryConfig returns the retry policy used for external HTTP calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}
}

// Retry runs fn up to cfg.MaxAttempts times with exponential backoff and
// jitter. It stops early when ctx is cancelled or fn reports the error is
// not retryable.
func Retry(ctx context.Context, cfg RetryConfig, fn func() (retryable bool, err error)) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	delay := cfg.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		retryable, err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !retryable || attempt == cfg.MaxAttempts {
			break
		}

		var jitter time.Duration
		if half := int64(delay) / 2; half > 0 {
			jitter = time.Duration(rand.Int63n(half))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay + jitter):
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return fmt.Errorf("all %d attempts failed: %w", cfg.MaxAttempts, lastErr)
}
