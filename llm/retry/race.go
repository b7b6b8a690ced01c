package retry

import (
	"context"
	"errors"
	"fmt"
)

// RaceSuccess tries ops in order and returns the first success. Despite the
// name this is a sequential fallback chain, not a concurrent race: a later
// op only runs after every earlier one has failed. If all fail, the joined
// errors are returned.
func RaceSuccess[T any](ctx context.Context, ops []Op[T]) (T, error) {
	var zero T
	if len(ops) == 0 {
		return zero, errors.New("race: no operations")
	}

	errs := make([]error, 0, len(ops))
	for i, op := range ops {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		value, err := op(ctx)
		if err == nil {
			return value, nil
		}
		errs = append(errs, fmt.Errorf("op %d: %w", i, err))
	}

	return zero, fmt.Errorf("race: all %d operations failed: %w", len(ops), errors.Join(errs...))
}
