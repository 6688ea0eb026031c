// Package retry provides an exponential-backoff retry wrapper for fallible operations.
package retry

import (
	"context"
	"fmt"
	"math"
	"time"

	apperrors "github.com/kestrel-ai/kestrel/internal/errors"
)

// Policy defines retry behavior.
type Policy struct {
	// Enabled disables retrying entirely when false; the operation runs exactly once.
	Enabled bool

	// MaxRetries is the number of retries after the first attempt
	// (MaxRetries+1 total attempts).
	MaxRetries int

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the backoff delay.
	MaxDelay time.Duration

	// ExponentialBase is the backoff multiplier base (default: 2).
	ExponentialBase float64

	// RetryIf determines if an error is retryable. Nil means retry everything.
	RetryIf func(error) bool

	// OnRetry, if set, is invoked before each retry sleep with the error and
	// the attempt number that just failed (1-based).
	OnRetry func(err error, attempt int)
}

// DefaultPolicy returns a reasonable default retry policy.
func DefaultPolicy() *Policy {
	return &Policy{
		Enabled:         true,
		MaxRetries:      3,
		InitialDelay:    1 * time.Second,
		MaxDelay:        60 * time.Second,
		ExponentialBase: 2.0,
		RetryIf:         apperrors.IsRetryable,
	}
}

// Delay computes the backoff delay before retry number attempt+1:
// min(InitialDelay * ExponentialBase^attempt, MaxDelay). attempt starts at 0.
func (p *Policy) Delay(attempt int) time.Duration {
	d := float64(p.InitialDelay) * math.Pow(p.ExponentialBase, float64(attempt))
	if max := float64(p.MaxDelay); d > max {
		d = max
	}
	return time.Duration(d)
}

// ExhaustedError is returned when all attempts have failed.
type ExhaustedError struct {
	// LastErr is the error from the final attempt.
	LastErr error

	// Attempts is the total number of attempts performed.
	Attempts int
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry failed after %d attempts: %v", e.Attempts, e.LastErr)
}

// Unwrap returns the last underlying error.
func (e *ExhaustedError) Unwrap() error {
	return e.LastErr
}

// Do executes fn with retry logic according to policy.
//
// Non-retryable errors propagate immediately without consuming a retry.
// When all MaxRetries+1 attempts fail, Do returns an *ExhaustedError wrapping
// the last error. Backoff sleeps respect ctx cancellation.
func Do[T any](ctx context.Context, p *Policy, fn func() (T, error)) (T, error) {
	var zero T

	if p == nil {
		p = DefaultPolicy()
	}
	if !p.Enabled {
		return fn()
	}

	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if p.RetryIf != nil && !p.RetryIf(err) {
			return zero, err
		}
		if attempt == p.MaxRetries {
			break
		}

		if p.OnRetry != nil {
			p.OnRetry(err, attempt+1)
		}

		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("retry canceled: %w", ctx.Err())
		case <-time.After(p.Delay(attempt)):
		}
	}

	return zero, &ExhaustedError{LastErr: lastErr, Attempts: p.MaxRetries + 1}
}
