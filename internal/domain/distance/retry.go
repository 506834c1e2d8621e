package distance

import (
	"context"
	"errors"
	"time"

	"github.com/okian/pitchside/pkg/metrics"
)

// Default retry policy values.
const (
	DefaultMaxAttempts = 2
	DefaultBackoff     = 500 * time.Millisecond
)

// RetryPolicy bounds automatic retries of resolver calls with a fixed backoff.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
	// Retryable decides whether an error is retried. Nil means IsRetryable.
	Retryable func(error) bool
}

// DefaultRetryPolicy returns two attempts with a fixed 500ms backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: DefaultMaxAttempts, Backoff: DefaultBackoff}
}

// NoRetry performs exactly one attempt.
func NoRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 1}
}

// IsRetryable reports whether err is transient. Errors that also carry
// ErrConfiguration or ErrUnresolvable are final even when a transient remote
// failure is among their causes.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient) &&
		!errors.Is(err, ErrConfiguration) &&
		!errors.Is(err, ErrUnresolvable)
}

// Retry runs fn until it succeeds, returns a non-retryable error, or attempts run out.
// The backoff wait honours ctx cancellation.
func Retry[T any](ctx context.Context, p RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsRetryable
	}

	var (
		out T
		err error
	)
	for attempt := 1; ; attempt++ {
		out, err = fn(ctx)
		if err == nil || attempt >= attempts || !retryable(err) {
			return out, err
		}
		metrics.RecordRetry()

		if p.Backoff > 0 {
			timer := time.NewTimer(p.Backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return out, errors.Join(err, ctx.Err())
			case <-timer.C:
			}
		} else if ctx.Err() != nil {
			return out, errors.Join(err, ctx.Err())
		}
	}
}
