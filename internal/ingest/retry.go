package ingest

import (
	"context"
	"errors"
	"time"
)

// RetryPolicy bounds attempts and shapes the exponential backoff between them.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy matches the scheduler's per-step policy: three attempts,
// exponential backoff starting at 500ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    30 * time.Second,
	}
}

// Backoff returns the wait before the given 1-based attempt's retry.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return d
}

// RetryValue runs fn up to p.MaxAttempts times, sleeping between attempts via
// the injected Sleeper. Context cancellation aborts immediately and is never
// retried. The last error is returned once attempts are exhausted.
func RetryValue[T any](ctx context.Context, sleeper Sleeper, p RetryPolicy, reason string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return zero, err
		}
		if attempt == attempts {
			break
		}
		if serr := sleeper.Sleep(ctx, reason, p.Backoff(attempt)); serr != nil {
			return zero, serr
		}
	}
	return zero, lastErr
}

// Retry is RetryValue for operations with no result.
func Retry(ctx context.Context, sleeper Sleeper, p RetryPolicy, reason string, fn func(context.Context) error) error {
	_, err := RetryValue(ctx, sleeper, p, reason, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
