package upstream

import (
	"context"
	"math"

	"golang.org/x/time/rate"
)

// Limiter is a token bucket shared by every outbound upstream request so
// that bursts of aggregation requests cannot exceed the upstream quota.
type Limiter struct {
	lim *rate.Limiter
}

// NewLimiter permits rps upstream requests per second with the given burst.
// A burst below 1 defaults to ceil(rps).
func NewLimiter(rps float64, burst int) *Limiter {
	if burst < 1 {
		burst = max(1, int(math.Ceil(rps)))
	}
	return &Limiter{lim: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Wait blocks until a request may be sent or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.lim.Wait(ctx)
}

// Allow reports whether a request may be sent right now without waiting.
func (l *Limiter) Allow() bool {
	return l.lim.Allow()
}
