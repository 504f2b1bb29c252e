// Package retry wraps outbound calls in bounded exponential backoff.
// Only errors the errors package classifies as retryable trigger another
// attempt; everything else surfaces immediately.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	oerrors "github.com/p-blackswan/opsengine/internal/errors"
)

// Config bounds a retry loop.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      bool
}

// DefaultConfig suits interactive calls to the inference endpoint: three
// attempts with sub-second initial delay.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Jitter:      true,
	}
}

// Do runs fn until it succeeds, fails non-retryably, or exhausts
// cfg.MaxAttempts. Context cancellation wins over any pending delay.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !oerrors.IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == cfg.MaxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff(cfg, attempt)):
		}
	}
	return lastErr
}

// backoff doubles per attempt up to MaxDelay. Jitter spreads concurrent
// retries over the back half of the delay.
func backoff(cfg Config, attempt int) time.Duration {
	delay := time.Duration(float64(cfg.BaseDelay) * math.Pow(2, float64(attempt)))
	if delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	if cfg.Jitter {
		delay = time.Duration(float64(delay) * (0.5 + rand.Float64()*0.5))
	}
	return delay
}
