package startup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrySucceedsFirstTry(t *testing.T) {
	calls := 0
	err := retry(context.Background(), "op", time.Minute, func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryGivesUpWithinDeadline(t *testing.T) {
	boom := errors.New("refused")
	calls := 0
	err := retry(context.Background(), "db connect", time.Second, func(context.Context) error {
		calls++
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls, "backoff exceeds the deadline, no sleep")
	assert.Contains(t, err.Error(), "db connect")
}

func TestRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := retry(ctx, "redis connect", time.Minute, func(context.Context) error {
		return errors.New("down")
	})
	require.ErrorIs(t, err, context.Canceled)
}
