// Package resilience bounds remote calls with per-attempt timeouts, retries
// with exponential backoff and an optional circuit breaker.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTimeout marks an attempt abandoned because it exceeded the per-attempt timeout.
	ErrTimeout = errors.New("attempt timed out")
	// ErrRetryExhausted matches any *RetryError.
	ErrRetryExhausted = errors.New("retry exhausted")
)

// =============================================================================
// Policy
// =============================================================================

// Policy configures Do.
type Policy struct {
	// Attempts is the total number of attempts, including the first.
	Attempts int
	// BaseDelay is the wait after the first failure; it doubles for each later failure.
	BaseDelay time.Duration
	// MaxDelay caps a single backoff wait. Zero means uncapped.
	MaxDelay time.Duration
	// Timeout bounds each attempt. Zero disables the per-attempt timeout.
	Timeout time.Duration
	// Breaker, when set, short-circuits calls while open.
	Breaker *CircuitBreaker
	// Observe is called after every attempt with its 1-based index and result.
	Observe func(attempt int, err error)
}

// DefaultPolicy returns three attempts, a one second base delay and a ten
// second per-attempt timeout.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:  3,
		BaseDelay: time.Second,
		MaxDelay:  10 * time.Second,
		Timeout:   10 * time.Second,
	}
}

// Backoff returns the wait after the given failed attempt: BaseDelay * 2^(attempt-1).
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 || p.BaseDelay <= 0 {
		return 0
	}
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// WorstCase returns the longest a call to Do can take with this policy.
func (p Policy) WorstCase() time.Duration {
	attempts := p.attempts()
	total := time.Duration(attempts) * p.Timeout
	for k := 1; k < attempts; k++ {
		total += p.Backoff(k)
	}
	return total
}

func (p Policy) attempts() int {
	if p.Attempts < 1 {
		return 1
	}
	return p.Attempts
}

// =============================================================================
// Errors
// =============================================================================

// RetryError is returned when every attempt failed. It carries the last failure.
type RetryError struct {
	Attempts int
	Last     error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts: %v", e.Attempts, e.Last)
}

// Unwrap exposes the last attempt's error.
func (e *RetryError) Unwrap() error {
	return e.Last
}

// Is reports whether target is ErrRetryExhausted.
func (e *RetryError) Is(target error) bool {
	return target == ErrRetryExhausted
}

// =============================================================================
// Execution
// =============================================================================

type result[T any] struct {
	value T
	err   error
}

// Do runs fn until it succeeds or the policy's attempts are used up. Every
// failure is retried the same way. Cancelling ctx stops immediately and
// returns ctx's error.
func Do[T any](ctx context.Context, p Policy, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	if p.Breaker != nil {
		if err := p.Breaker.Allow(); err != nil {
			return zero, err
		}
	}

	attempts := p.attempts()
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			timer := time.NewTimer(p.Backoff(attempt - 1))
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			case <-timer.C:
			}
		}

		value, err := runAttempt(ctx, p.Timeout, fn)
		if p.Observe != nil {
			p.Observe(attempt, err)
		}
		if err == nil {
			if p.Breaker != nil {
				p.Breaker.RecordSuccess()
			}
			return value, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		lastErr = err
	}

	if p.Breaker != nil {
		p.Breaker.RecordFailure(lastErr)
	}
	return zero, &RetryError{Attempts: attempts, Last: lastErr}
}

// runAttempt abandons fn when the timeout fires. fn keeps its own goroutine
// until it observes the cancelled context.
func runAttempt[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	if timeout <= 0 {
		return fn(ctx)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan result[T], 1)
	go func() {
		v, err := fn(attemptCtx)
		done <- result[T]{value: v, err: err}
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}
}
