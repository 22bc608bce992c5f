// Package parallel joins independent operations that run concurrently.
package parallel

import "context"

type outcome[T any] struct {
	index int
	value T
	err   error
}

// All starts every op in its own goroutine and waits for them.
//
// On success the results are returned in input order, whatever order the ops finished in.
// The first failure is returned immediately without waiting for the remaining ops; they
// keep running (nothing is canceled) and their results are discarded.
func All[T any](ctx context.Context, ops ...func(context.Context) (T, error)) ([]T, error) {
	results := make([]T, len(ops))
	if len(ops) == 0 {
		return results, nil
	}

	// Buffered so ops finishing after an early return never block.
	done := make(chan outcome[T], len(ops))
	for i, op := range ops {
		go func(index int, op func(context.Context) (T, error)) {
			value, err := op(ctx)
			done <- outcome[T]{index: index, value: value, err: err}
		}(i, op)
	}

	for range ops {
		out := <-done
		if out.err != nil {
			return nil, out.err
		}
		results[out.index] = out.value
	}
	return results, nil
}
