package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fastBackoff records which attempts failed without sleeping.
func fastBackoff(record *[]int) BackoffFunc {
	return func(attempt int) time.Duration {
		*record = append(*record, attempt)
		return 0
	}
}

func TestDoSucceedsOnThirdAttempt(t *testing.T) {
	var delays []int
	calls := 0

	err := Do(context.Background(), "describe-instances", func(context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("throttled")
		}
		return nil
	}, WithBackoff(fastBackoff(&delays)))

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	// Exactly two backoff delays, one per failed attempt.
	assert.Equal(t, []int{1, 2}, delays)
}

func TestDoExhaustsAttempts(t *testing.T) {
	var delays []int
	calls := 0
	underlying := errors.New("rate limited")

	err := Do(context.Background(), "list-buckets", func(context.Context) error {
		calls++
		return underlying
	}, WithBackoff(fastBackoff(&delays)))

	require.Error(t, err)
	assert.Equal(t, 3, calls)

	var callErr *CallError
	require.ErrorAs(t, err, &callErr)
	assert.Equal(t, "list-buckets", callErr.Op)
	assert.Equal(t, 3, callErr.Attempts)
	assert.ErrorIs(t, err, underlying)
}

func TestLinearBackoffScalesWithAttempt(t *testing.T) {
	base := 2 * time.Second
	fn := Linear(base)

	// Delay after attempt n is (n+1)*base.
	assert.Equal(t, 4*time.Second, fn(1))
	assert.Equal(t, 6*time.Second, fn(2))
	assert.Equal(t, 8*time.Second, fn(3))
}

func TestDoRespectsMaxAttempts(t *testing.T) {
	calls := 0
	var delays []int

	err := Do(context.Background(), "probe", func(context.Context) error {
		calls++
		return errors.New("nope")
	}, WithMaxAttempts(1), WithBackoff(fastBackoff(&delays)))

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, delays)
}

func TestDoAttemptTimeoutConvertsToFailure(t *testing.T) {
	calls := 0
	var delays []int

	err := Do(context.Background(), "slow-probe", func(ctx context.Context) error {
		calls++
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	}, WithAttemptTimeout(5*time.Millisecond), WithBackoff(fastBackoff(&delays)))

	require.Error(t, err)
	assert.Equal(t, 3, calls)

	var callErr *CallError
	require.ErrorAs(t, err, &callErr)
	assert.ErrorIs(t, callErr.Err, context.DeadlineExceeded)
}

func TestDoStopsWhenContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	err := Do(ctx, "canceled", func(context.Context) error {
		calls++
		cancel()
		return errors.New("transient")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestValueReturnsResult(t *testing.T) {
	calls := 0

	n, err := Value(context.Background(), "count", func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("transient")
		}
		return 42, nil
	}, WithBackoff(func(int) time.Duration { return 0 }))

	require.NoError(t, err)
	assert.Equal(t, 42, n)
}
