// Package reliability guards extension backends with retries and circuit
// breakers.
package reliability

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

var (
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")
	ErrRetryAborted       = errors.New("retry aborted")
)

// RetryConfig holds configuration for retry logic
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	Jitter         bool
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 100 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 5 * time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	return c
}

// RetryFunc is a function that can be retried
type RetryFunc func(ctx context.Context) error

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying, e.g. a record the backend
// rejected as invalid.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Retry executes fn until it succeeds, returns a non-retryable error or
// MaxRetries retries have failed. MaxRetries of zero means one attempt.
func Retry(ctx context.Context, config RetryConfig, fn RetryFunc) error {
	config = config.withDefaults()

	var lastErr error
	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}
		if attempt == config.MaxRetries {
			break
		}

		backoff := ExponentialBackoff(attempt, config.InitialBackoff, config.Multiplier, config.MaxBackoff)
		if config.Jitter {
			backoff = addJitter(backoff)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrRetryAborted, ctx.Err())
		case <-time.After(backoff):
		}
	}

	if config.MaxRetries == 0 {
		return lastErr
	}
	return fmt.Errorf("%w: %w", ErrMaxRetriesExceeded, lastErr)
}

// isRetryable determines if an error should trigger a retry
func isRetryable(err error) bool {
	switch {
	case IsPermanent(err):
		return false
	case errors.Is(err, ErrCircuitOpen), errors.Is(err, ErrTooManyRequests):
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

// addJitter adds ±20% randomness to d
func addJitter(d time.Duration) time.Duration {
	jitter := float64(d) * 0.2
	return time.Duration(float64(d) - jitter + rand.Float64()*2*jitter)
}

// ExponentialBackoff calculates exponential backoff duration
func ExponentialBackoff(attempt int, initial time.Duration, multiplier float64, max time.Duration) time.Duration {
	backoff := time.Duration(float64(initial) * math.Pow(multiplier, float64(attempt)))
	if backoff > max || backoff <= 0 {
		backoff = max
	}
	return backoff
}

// Guard runs calls to one backend through a circuit breaker and retries.
type Guard struct {
	Breaker *CircuitBreaker
	Retry   RetryConfig
}

// NewGuard creates a guard with its own breaker.
func NewGuard(breaker CircuitBreakerConfig, retry RetryConfig) *Guard {
	return &Guard{Breaker: NewCircuitBreaker(breaker), Retry: retry}
}

// Status is the message shown to the user after a failed call: failure,
// followed by when delivery resumes if the breaker has opened.
func (g *Guard) Status(err error, failure string) string {
	if !errors.Is(err, ErrCircuitOpen) {
		return failure
	}
	wait := g.Breaker.RetryIn().Round(time.Second)
	if wait <= 0 {
		return failure
	}
	return fmt.Sprintf("%s, retrying in %s", failure, wait)
}

// Do calls fn with retries, every attempt passing through the breaker. An
// open breaker fails immediately.
func (g *Guard) Do(ctx context.Context, fn RetryFunc) error {
	return Retry(ctx, g.Retry, func(ctx context.Context) error {
		return g.Breaker.Execute(func() error { return fn(ctx) })
	})
}
