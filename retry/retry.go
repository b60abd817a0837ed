package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is returned for an attempt that did not finish within
// Config.AttemptTimeout.
var ErrTimeout = errors.New("upstream attempt timed out")

// Config controls the behaviour of [Do].
type Config struct {
	// MaxAttempts is the maximum number of times fn is called (including the
	// first attempt). Values ≤ 1 mean no retries.
	MaxAttempts int

	// AttemptTimeout bounds a single attempt. Zero disables the timeout.
	AttemptTimeout time.Duration

	// BaseDelay is the delay before the first retry. Subsequent retries use
	// exponential back-off: BaseDelay * 2^attempt.
	BaseDelay time.Duration

	// MaxDelay caps the exponential part of the delay. Zero means no cap.
	MaxDelay time.Duration

	// Jitter adds a uniformly random delay in [0, Jitter) to every back-off.
	Jitter time.Duration

	// OnRetry, when set, is called after a failed attempt that will be
	// retried, with the 1-based attempt number and the chosen delay.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// ExhaustedError is returned when every attempt failed. It unwraps to the
// error of the last attempt.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("upstream failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// permanentError marks an error that must not be retried.
type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent wraps err so that [Do] returns it immediately instead of
// retrying. Do unwraps it before returning.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do calls fn up to cfg.MaxAttempts times. Each attempt runs under its own
// deadline of cfg.AttemptTimeout; an attempt that overruns it fails with
// [ErrTimeout]. The attempt's context is cancelled at that point, but fn is
// only abandoned, not stopped: it keeps running in the background until it
// returns and its result is discarded.
//
// Between failed attempts Do sleeps for the back-off delay. ctx is checked
// during every wait; if it is done Do returns ctx.Err() immediately. When all
// attempts fail the result is an [*ExhaustedError] wrapping the last error.
func Do[T any](ctx context.Context, cfg Config, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts := max(cfg.MaxAttempts, 1)

	var lastErr error
	for i := range attempts {
		result, err := attempt(ctx, cfg.AttemptTimeout, fn)
		if err == nil {
			return result, nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return zero, perm.err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}
		lastErr = err

		if i == attempts-1 {
			break
		}

		delay := backoff(cfg, i)
		if cfg.OnRetry != nil {
			cfg.OnRetry(i+1, err, delay)
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	return zero, &ExhaustedError{Attempts: attempts, Err: lastErr}
}

type outcome[T any] struct {
	val T
	err error
}

// attempt races fn against the per-attempt deadline.
func attempt[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if timeout <= 0 {
		return call(ctx, fn)
	}

	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Buffered so an abandoned attempt can still deliver and exit.
	done := make(chan outcome[T], 1)
	go func() {
		v, err := call(actx, fn)
		done <- outcome[T]{val: v, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil && ctx.Err() == nil && errors.Is(actx.Err(), context.DeadlineExceeded) {
			return zero, ErrTimeout
		}
		return o.val, o.err
	case <-actx.Done():
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		return zero, ErrTimeout
	}
}

// call invokes fn, turning a panic into an error.
func call[T any](ctx context.Context, fn func(context.Context) (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("retry: attempt panicked: %v", r)
		}
	}()
	return fn(ctx)
}
