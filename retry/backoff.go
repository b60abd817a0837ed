// Package retry wraps a single upstream call with a per-attempt timeout and
// bounded exponential back-off with jitter. Only the final failure is
// surfaced to the caller.
package retry

import (
	"math"
	"math/rand/v2"
	"time"
)

// backoff returns the delay after the given failed attempt (0-indexed):
// BaseDelay * 2^attempt, capped at MaxDelay when set, plus a random jitter
// in [0, Jitter).
func backoff(cfg Config, attempt int) time.Duration {
	delay := float64(cfg.BaseDelay) * math.Pow(2, float64(attempt))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter > 0 {
		delay += float64(rand.Int64N(int64(cfg.Jitter)))
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}
