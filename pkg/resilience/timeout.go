package resilience

import (
	"context"
	"fmt"
	"time"
)

// Call runs fn with a deadline of timeout and returns as soon as either
// finishes. On overrun the error wraps context.DeadlineExceeded and fn is left
// to observe its cancelled context. A zero timeout calls fn directly.
func Call[T any](ctx context.Context, timeout time.Duration, name string, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	ctx2, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx2)
		done <- result{v, err}
	}()

	var zero T
	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx2.Done():
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("%s: %w", name, err)
		}
		return zero, fmt.Errorf("%s exceeded %v: %w", name, timeout, context.DeadlineExceeded)
	}
}
