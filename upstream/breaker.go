package upstream

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"
)

// BreakerState is the state of a [Breaker].
//
//   - BreakerClosed: requests flow normally; consecutive failures are counted.
//   - BreakerOpen: requests are rejected until OpenTimeout has passed.
//   - BreakerHalfOpen: a limited number of probe requests are let through;
//     enough successes close the breaker, any failure reopens it.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig holds the circuit breaker parameters.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive upstream failures that
	// trips the breaker.
	FailureThreshold int

	// OpenTimeout is how long the breaker rejects requests before letting
	// probes through.
	OpenTimeout time.Duration

	// HalfOpenProbes is both the number of concurrent probes allowed in
	// half-open state and the number of successes needed to close again.
	HalfOpenProbes int

	// OnStateChange, when set, is called with the new state after every
	// transition. It runs with the breaker's lock held and must not call
	// back into the breaker.
	OnStateChange func(BreakerState)
}

// Breaker guards the upstream API against request storms while it is
// failing. All methods are safe for concurrent use.
type Breaker struct {
	mu  sync.Mutex
	cfg BreakerConfig

	state     BreakerState
	failures  int // consecutive failures while closed
	successes int // probe successes while half-open
	probes    int // probes currently outstanding while half-open
	openedAt  time.Time
	nowFunc   func() time.Time
}

// NewBreaker creates a closed Breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = 1
	}
	if cfg.HalfOpenProbes < 1 {
		cfg.HalfOpenProbes = 1
	}
	return &Breaker{cfg: cfg, nowFunc: time.Now}
}

// State returns the current state, moving from open to half-open when the
// open timeout has elapsed.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpen()
	return b.state
}

// Allow reports whether a request may be sent. In half-open state each
// allowed request occupies a probe slot until [Breaker.Record] is called.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpen()

	switch b.state {
	case BreakerClosed:
		return true
	case BreakerHalfOpen:
		if b.probes >= b.cfg.HalfOpenProbes {
			return false
		}
		b.probes++
		return true
	default:
		return false
	}
}

// Record reports the outcome of a request admitted by Allow. Errors that say
// nothing about upstream health (caller cancellation, 4xx responses other
// than 429) count as successes.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	failed := isUpstreamFailure(err)
	switch b.state {
	case BreakerClosed:
		if !failed {
			b.failures = 0
			return
		}
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.trip()
		}
	case BreakerHalfOpen:
		if b.probes > 0 {
			b.probes--
		}
		if failed {
			b.trip()
			return
		}
		b.successes++
		if b.successes >= b.cfg.HalfOpenProbes {
			b.transition(BreakerClosed)
		}
	}
}

// maybeHalfOpen must be called with b.mu held.
func (b *Breaker) maybeHalfOpen() {
	if b.state == BreakerOpen && b.nowFunc().Sub(b.openedAt) >= b.cfg.OpenTimeout {
		b.transition(BreakerHalfOpen)
	}
}

func (b *Breaker) trip() {
	b.openedAt = b.nowFunc()
	b.transition(BreakerOpen)
}

func (b *Breaker) transition(s BreakerState) {
	b.state = s
	b.failures = 0
	b.successes = 0
	b.probes = 0
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(s)
	}
}

func isUpstreamFailure(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500 || se.Code == http.StatusTooManyRequests
	}
	return true
}
