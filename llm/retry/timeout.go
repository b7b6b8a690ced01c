package retry

import (
	"context"
	"time"

	"github.com/BaSui01/agentpipe/types"
)

// WithTimeout races fn against a wall-clock timeout. If the timer fires
// first, the operation's context is cancelled and a TIMEOUT-coded error is
// returned. fn must honor context cancellation for the goroutine to exit.
func WithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result T
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		result, err := fn(tctx)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-tctx.Done():
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, types.NewError(types.ErrTimeout, "operation timed out").
			WithRetryable(true).
			WithContext("timeout", timeout.String())
	}
}
