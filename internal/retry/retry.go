// Package retry runs operations under a bounded retry policy.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Policy decides whether a failed attempt is retried and how long to wait first.
// attempt is the 1-based number of the attempt that just failed.
type Policy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// Hook observes a retry before the delay preceding the next attempt.
type Hook func(attempt int, delay time.Duration, err error)

// Operation is one attempt of a retried call.
type Operation func(ctx context.Context, attempt int) error

// Do runs op until it succeeds or policy gives up, returning the number of attempts made.
// The error of the final attempt is returned unchanged. A canceled context interrupts the
// delay between attempts.
func Do(ctx context.Context, policy Policy, op Operation, onRetry Hook) (int, error) {
	attempt := 0
	for {
		attempt++
		err := op(ctx, attempt)
		if err == nil {
			return attempt, nil
		}
		if policy == nil || !policy.ShouldRetry(err, attempt) {
			return attempt, err
		}
		delay := policy.Backoff(attempt)
		if onRetry != nil {
			onRetry(attempt, delay, err)
		}
		if waitErr := wait(ctx, delay); waitErr != nil {
			return attempt, fmt.Errorf("%w (retry aborted: %w)", err, waitErr)
		}
	}
}

func wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
