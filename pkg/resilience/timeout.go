package resilience

import (
	"context"
	"fmt"
	"time"
)

type timeoutResult[T any] struct {
	val T
	err error
}

// WithTimeout runs fn under a deadline derived from ctx and returns its
// value. When the deadline passes first, the error wraps
// context.DeadlineExceeded and a late result from fn is discarded. A
// cancelled parent is reported as such rather than as a timeout. A
// non-positive timeout calls fn directly.
func WithTimeout[T any](ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan timeoutResult[T], 1)
	go func() {
		val, err := fn(attemptCtx)
		done <- timeoutResult[T]{val: val, err: err}
	}()

	var zero T
	select {
	case res := <-done:
		return res.val, res.err
	case <-attemptCtx.Done():
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("%s: parent context cancelled: %w", name, err)
		}
		return zero, fmt.Errorf("%s: %w after %v", name, context.DeadlineExceeded, timeout)
	}
}
