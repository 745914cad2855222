package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryWithExponentialBackoff(t *testing.T) {
	busy := sqlite3.Error{Code: sqlite3.ErrBusy}

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := RetryWithExponentialBackoff(context.Background(), func(context.Context) error {
			calls++
			if calls < 3 {
				return busy
			}
			return nil
		}, WithBaseDelay(time.Millisecond))

		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("fails fast on non retryable errors", func(t *testing.T) {
		domain := errors.New("copy currently unavailable")
		calls := 0
		err := RetryWithExponentialBackoff(context.Background(), func(context.Context) error {
			calls++
			return domain
		}, WithBaseDelay(time.Millisecond))

		assert.ErrorIs(t, err, domain)
		assert.Equal(t, 1, calls)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		calls := 0
		retries := 0
		err := RetryWithExponentialBackoff(context.Background(), func(context.Context) error {
			calls++
			return busy
		}, WithMaxAttempts(3), WithBaseDelay(time.Millisecond), withOnRetry(func(int, error) { retries++ }))

		assert.True(t, IsRetryable(err))
		assert.Equal(t, 3, calls)
		assert.Equal(t, 2, retries)
	})

	t.Run("stops when context is cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		err := RetryWithExponentialBackoff(ctx, func(context.Context) error {
			calls++
			cancel()
			return busy
		}, WithBaseDelay(time.Second))

		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})
}

func TestRetryOptionsValidation(t *testing.T) {
	noop := func(context.Context) error { return nil }

	assert.ErrorIs(t, RetryWithExponentialBackoff(context.Background(), noop, WithMaxAttempts(0)), ErrInvalidMaxAttempts)
	assert.ErrorIs(t, RetryWithExponentialBackoff(context.Background(), noop, WithBaseDelay(-time.Second)), ErrNegativeBaseDelay)
	assert.ErrorIs(t, RetryWithExponentialBackoff(context.Background(), noop, WithJitterFactor(1.5)), ErrInvalidJitterFactor)
}
