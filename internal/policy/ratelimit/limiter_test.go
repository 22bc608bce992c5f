package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/essaypub/internal/metrics"
)

func TestLimiter_Wait(t *testing.T) {
	t.Parallel()

	recorder := metrics.New()
	// 10 RPS with burst 1 is one token every 100ms.
	l := New(Config{DefaultRPS: 10, DefaultBurst: 1}, recorder)
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://docs.google.com/a"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://docs.google.com/b"))
	if dur := time.Since(start); dur < 80*time.Millisecond {
		t.Errorf("expected wait ~100ms, got %v", dur)
	}

	count, err := testutil.GatherAndCount(recorder.Registry(), "essaypub_rate_limit_delay_seconds")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestLimiter_DifferentHosts(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 1, DefaultBurst: 1}, nil)
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://a.com/1"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://b.com/1"))
	if time.Since(start) > 10*time.Millisecond {
		t.Errorf("host b blocked unexpectedly")
	}
}

func TestLimiter_Unlimited(t *testing.T) {
	t.Parallel()

	l := New(Config{}, nil)
	for range 5 {
		require.NoError(t, l.Wait(context.Background(), "https://a.com"))
	}
}

func TestLimiter_ContextCanceled(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 0.1, DefaultBurst: 1}, nil)
	require.NoError(t, l.Wait(context.Background(), "https://a.com"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.Error(t, l.Wait(ctx, "https://a.com"))
}
