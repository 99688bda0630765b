package system

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClockNowIsUTC(t *testing.T) {
	t.Parallel()
	now := New().Now()
	require.Equal(t, time.UTC, now.Location())
}

func TestSleeperHonorsContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := NewSleeper().Sleep(ctx, "test", 5*time.Second)
	require.Error(t, err)
	require.Less(t, time.Since(start), time.Second, "sleep should exit immediately when context is done")
}

func TestSleeperZeroDuration(t *testing.T) {
	t.Parallel()
	require.NoError(t, NewSleeper().Sleep(context.Background(), "test", 0))
}
