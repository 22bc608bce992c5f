package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDoStopsOnSuccess(t *testing.T) {
	t.Parallel()

	calls := 0
	attempts, err := Do(context.Background(), NewFixedPolicy(3, time.Millisecond), func(_ context.Context, attempt int) error {
		calls++
		require.Equal(t, calls, attempt)
		if attempt < 3 {
			return errors.New("transient error")
		}
		return nil
	}, nil)

	require.NoError(t, err)
	require.Equal(t, 3, attempts)
	require.Equal(t, 3, calls)
}

func TestDoExhaustsFixedPolicy(t *testing.T) {
	t.Parallel()

	var retried []int
	finalErr := errors.New("attempt 4")
	attempts, err := Do(context.Background(), DefaultFixedPolicy(), func(_ context.Context, attempt int) error {
		if attempt == 4 {
			return finalErr
		}
		return fmt.Errorf("attempt %d", attempt)
	}, func(attempt int, delay time.Duration, _ error) {
		require.Equal(t, DefaultDelay, delay)
		retried = append(retried, attempt)
	})

	// Initial attempt + 3 retries = 4 attempts
	require.Equal(t, 4, attempts)
	require.Same(t, finalErr, err)
	require.Equal(t, []int{1, 2, 3}, retried)
}

func TestDoWithoutPolicyRunsOnce(t *testing.T) {
	t.Parallel()

	attempts, err := Do(context.Background(), nil, func(context.Context, int) error {
		return errors.New("boom")
	}, nil)
	require.Error(t, err)
	require.Equal(t, 1, attempts)
}

func TestDoAbortsWhenContextCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	opErr := errors.New("unavailable")
	attempts, err := Do(ctx, NewFixedPolicy(5, time.Hour), func(context.Context, int) error {
		return opErr
	}, func(int, time.Duration, error) {
		cancel()
	})

	require.Equal(t, 1, attempts)
	require.ErrorIs(t, err, opErr)
	require.ErrorIs(t, err, context.Canceled)
	require.Contains(t, err.Error(), "retry aborted")
}

func TestNewFixedPolicyClampsNegatives(t *testing.T) {
	t.Parallel()

	p := NewFixedPolicy(-1, -time.Second)
	require.Zero(t, p.MaxRetries)
	require.Zero(t, p.Backoff(1))
	require.False(t, p.ShouldRetry(errors.New("x"), 1))
	require.False(t, DefaultFixedPolicy().ShouldRetry(nil, 1))
}
