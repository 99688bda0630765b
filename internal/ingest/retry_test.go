package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordingSleeper struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, _ string, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.sleeps = append(s.sleeps, d)
	s.mu.Unlock()
	return nil
}

func TestRetryValueSucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()
	sleeper := &recordingSleeper{}
	attempts := 0

	v, err := RetryValue(context.Background(), sleeper, DefaultRetryPolicy(), "test", func(context.Context) (int, error) {
		attempts++
		if attempts < 3 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})
	require.NoError(t, err)
	require.Equal(t, 42, v)
	require.Equal(t, 3, attempts)
	require.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, sleeper.sleeps)
}

func TestRetryValueExhaustsAttempts(t *testing.T) {
	t.Parallel()
	sleeper := &recordingSleeper{}
	boom := errors.New("boom")
	attempts := 0

	_, err := RetryValue(context.Background(), sleeper, DefaultRetryPolicy(), "test", func(context.Context) (int, error) {
		attempts++
		return 0, boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 3, attempts)
	require.Len(t, sleeper.sleeps, 2, "no sleep after the final attempt")
}

func TestRetryValueDoesNotRetryCancellation(t *testing.T) {
	t.Parallel()
	sleeper := &recordingSleeper{}
	attempts := 0

	_, err := RetryValue(context.Background(), sleeper, DefaultRetryPolicy(), "test", func(context.Context) (int, error) {
		attempts++
		return 0, context.Canceled
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, attempts)
	require.Empty(t, sleeper.sleeps)
}

func TestRetryPolicyBackoffCaps(t *testing.T) {
	t.Parallel()
	p := RetryPolicy{MaxAttempts: 10, BaseDelay: time.Second, MaxDelay: 4 * time.Second}
	require.Equal(t, time.Second, p.Backoff(1))
	require.Equal(t, 2*time.Second, p.Backoff(2))
	require.Equal(t, 4*time.Second, p.Backoff(3))
	require.Equal(t, 4*time.Second, p.Backoff(6))
}
