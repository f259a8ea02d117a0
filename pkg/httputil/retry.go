// Package httputil provides retry and backoff primitives shared by the
// DICOMweb transport client.
//
// Transient failures (network errors, 5xx responses, rate limiting) are
// wrapped with [RetryableError] so that [Retry] knows to attempt the
// operation again. Everything else fails fast.
package httputil

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RetryableError wraps an error to indicate it should trigger a retry.
// Wrap transient failures (network timeouts, 5xx responses) with this type
// so that [Retry] knows to attempt the operation again.
type RetryableError struct{ Err error }

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// RateLimitError indicates the remote end answered with HTTP 429.
// It is retryable; when the response carried a Retry-After header the
// suggested delay is recorded so [Retry] can honor it instead of the
// exponential schedule.
type RateLimitError struct {
	RetryAfter time.Duration // zero when the server gave no hint
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited: retry after %s", e.RetryAfter)
	}
	return "rate limited"
}

// Retry executes fn up to attempts times with exponential backoff.
// It only retries errors wrapped with [RetryableError] or [RateLimitError];
// other errors are returned immediately. The delay doubles after each failed
// attempt, except that a rate-limit response with a Retry-After hint uses
// that hint for the next wait. Returns the last error if all attempts fail,
// or ctx.Err() if cancelled.
func Retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	attempts = max(attempts, 1)
	var lastErr error

	for i := range attempts {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isRetryable(err) {
			return err
		}

		wait := delay
		var rl *RateLimitError
		if errors.As(err, &rl) && rl.RetryAfter > 0 {
			wait = rl.RetryAfter
		}

		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
				delay *= 2
			}
		}
	}
	return lastErr
}

// RetryWithBackoff is a convenience wrapper around [Retry] with sensible
// defaults: 3 attempts with 1 second initial delay (doubling each retry).
func RetryWithBackoff(ctx context.Context, fn func() error) error {
	return Retry(ctx, 3, time.Second, fn)
}

func isRetryable(err error) bool {
	return errors.As(err, new(*RetryableError)) || errors.As(err, new(*RateLimitError))
}
