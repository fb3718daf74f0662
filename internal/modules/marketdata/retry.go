package marketdata

import (
	"context"
	"math/rand"
	"time"
)

// RetryConfig bounds the exponential backoff used for transient provider
// failures. Delay for attempt n is BaseDelay × 2^n plus up to 25% jitter,
// capped at MaxDelay.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryConfig is tuned for nightly batch fetches: a few patient
// retries rather than hammering a rate-limited vendor.
var DefaultRetryConfig = RetryConfig{
	MaxAttempts: 4,
	BaseDelay:   2 * time.Second,
	MaxDelay:    30 * time.Second,
}

// RetryWithBackoff runs fn until it succeeds, attempts are exhausted, or
// the context is cancelled. The last error is returned.
func RetryWithBackoff(ctx context.Context, cfg RetryConfig, fn func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg = DefaultRetryConfig
	}

	var lastErr error
	delay := cfg.BaseDelay
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			// Add up to 25% jitter to avoid thundering-herd retries
			jitter := time.Duration(rand.Int63n(int64(delay)/4 + 1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay + jitter):
			}
			delay *= 2
			if delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
		}

		if err := fn(); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}
