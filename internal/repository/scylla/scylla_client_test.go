package scylla

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryWithBackoff_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := retryWithBackoff(context.Background(), 2, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return errors.New("timeout")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryWithBackoff_ReturnsLastError(t *testing.T) {
	calls := 0
	unavailable := errors.New("unavailable")
	err := retryWithBackoff(context.Background(), 2, time.Millisecond, func() error {
		calls++
		return unavailable
	})

	assert.ErrorIs(t, err, unavailable)
	assert.Equal(t, 3, calls)
}

func TestRetryWithBackoff_StopsWhenContextDone(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	calls := 0
	unavailable := errors.New("unavailable")
	start := time.Now()
	err := retryWithBackoff(ctx, 5, time.Hour, func() error {
		calls++
		return unavailable
	})

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, unavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRetryWithBackoff_CanceledContextSkipsBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := retryWithBackoff(ctx, 2, time.Hour, func() error {
		calls++
		return errors.New("unavailable")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
