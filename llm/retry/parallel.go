package retry

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Op is a single fallible operation producing a T.
type Op[T any] func(ctx context.Context) (T, error)

// ParallelOptions configures bounded-parallel execution.
type ParallelOptions struct {
	Concurrency     int           // max operations in flight (min 1)
	ContinueOnError bool          // keep running after a failure instead of cancelling the batch
	Delay           time.Duration // optional stagger between operation launches
}

// DefaultParallelOptions returns sensible defaults.
func DefaultParallelOptions() ParallelOptions {
	return ParallelOptions{Concurrency: 4}
}

// ParallelResult holds the outcome of one operation, in input order.
type ParallelResult[T any] struct {
	Index int
	Value T
	Err   error
}

// Parallel runs ops with at most opts.Concurrency in flight, preserving
// input order in the results. Unless ContinueOnError is set, the first
// failure cancels the remaining operations and is returned as the batch
// error; results collected so far keep their slots.
func Parallel[T any](ctx context.Context, ops []Op[T], opts ParallelOptions) ([]ParallelResult[T], error) {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}

	results := make([]ParallelResult[T], len(ops))
	sem := semaphore.NewWeighted(int64(opts.Concurrency))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)

	for i, op := range ops {
		if opts.Delay > 0 && i > 0 {
			select {
			case <-runCtx.Done():
			case <-time.After(opts.Delay):
			}
		}

		if err := sem.Acquire(runCtx, 1); err != nil {
			// Batch cancelled; mark the remaining slots.
			results[i] = ParallelResult[T]{Index: i, Err: err}
			continue
		}

		wg.Add(1)
		go func(i int, op Op[T]) {
			defer wg.Done()
			defer sem.Release(1)

			value, err := op(runCtx)
			results[i] = ParallelResult[T]{Index: i, Value: value, Err: err}

			if err != nil && !opts.ContinueOnError {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
					cancel()
				}
				mu.Unlock()
			}
		}(i, op)
	}

	wg.Wait()

	if firstErr != nil {
		return results, firstErr
	}
	return results, nil
}

// ParallelBatch runs ops in fixed-size batches, waiting for each batch to
// complete before starting the next.
func ParallelBatch[T any](ctx context.Context, ops []Op[T], batchSize int, opts ParallelOptions) ([]ParallelResult[T], error) {
	if batchSize < 1 {
		batchSize = 1
	}

	results := make([]ParallelResult[T], 0, len(ops))
	for start := 0; start < len(ops); start += batchSize {
		end := start + batchSize
		if end > len(ops) {
			end = len(ops)
		}

		batch, err := Parallel(ctx, ops[start:end], opts)
		for i := range batch {
			batch[i].Index += start
		}
		results = append(results, batch...)
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

// ParallelMap applies fn to every item with bounded concurrency and returns
// the mapped values in input order.
func ParallelMap[In, Out any](ctx context.Context, items []In, fn func(ctx context.Context, item In) (Out, error), opts ParallelOptions) ([]Out, error) {
	ops := make([]Op[Out], len(items))
	for i, item := range items {
		ops[i] = func(ctx context.Context) (Out, error) {
			return fn(ctx, item)
		}
	}

	results, err := Parallel(ctx, ops, opts)
	if err != nil {
		return nil, err
	}

	out := make([]Out, len(results))
	for i, r := range results {
		out[i] = r.Value
	}
	return out, nil
}

// ParallelFilter keeps the items for which pred returns true, preserving
// input order.
func ParallelFilter[T any](ctx context.Context, items []T, pred func(ctx context.Context, item T) (bool, error), opts ParallelOptions) ([]T, error) {
	keep, err := ParallelMap(ctx, items, pred, opts)
	if err != nil {
		return nil, err
	}

	out := make([]T, 0, len(items))
	for i, k := range keep {
		if k {
			out = append(out, items[i])
		}
	}
	return out, nil
}
