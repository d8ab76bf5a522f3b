// Package retry wraps a single remote call with provider-specific error
// classification and bounded backoff. Each provider adapter supplies its own
// classifier; the policy itself knows nothing about any provider.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jpillora/backoff"

	"cryptofolio/logger"
)

// Class is the outcome of classifying one call failure.
type Class int

const (
	// Fatal errors propagate immediately.
	Fatal Class = iota
	// RateLimited waits out the delay and retries.
	RateLimited
	// Transient covers timeouts and connection resets; retried like RateLimited.
	Transient
	// Empty means the provider signalled "no data for this query". The call
	// succeeds with a zero result instead of failing.
	Empty
)

// Classifier maps a call error to a retry Class.
type Classifier func(error) Class

// Policy holds the per-provider retry limits. With Exponential unset every
// retry sleeps the fixed Delay; otherwise delays grow from Delay up to
// MaxDelay with jitter.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
	MaxDelay    time.Duration
	Exponential bool
	Classify    Classifier
}

// ExhaustedError reports that a call failed on every permitted attempt.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// Do invokes call under the policy. An Empty classification returns the zero
// value of T with a nil error, which callers treat as a successful empty
// response.
func Do[T any](ctx context.Context, p Policy, call func() (T, error)) (T, error) {
	var zero T

	classify := p.Classify
	if classify == nil {
		classify = func(error) Class { return Fatal }
	}

	var b *backoff.Backoff
	if p.Exponential {
		b = &backoff.Backoff{Min: p.Delay, Max: p.MaxDelay, Factor: 2, Jitter: true}
	}

	var last error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := call()
		if err == nil {
			return result, nil
		}

		switch classify(err) {
		case Empty:
			return zero, nil
		case RateLimited, Transient:
			last = err
		default:
			return zero, err
		}

		// No wait after the last permitted attempt.
		if attempt == p.MaxAttempts-1 {
			break
		}

		delay := p.Delay
		if b != nil {
			delay = b.Duration()
		}
		logger.IncrementRetryWait()
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}

	return zero, &ExhaustedError{Attempts: p.MaxAttempts, Last: last}
}

// IsExhausted reports whether err (or anything it wraps) is a retry
// exhaustion.
func IsExhausted(err error) bool {
	var e *ExhaustedError
	return errors.As(err, &e)
}
