package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentpipe/types"
)

// Policy defines retry behavior for a fallible operation.
type Policy struct {
	MaxAttempts     int                                               // total attempts, including the first (min 1)
	Delay           time.Duration                                     // base delay between attempts
	Backoff         bool                                              // when true, wait Delay × attemptNumber instead of flat Delay
	MaxDelay        time.Duration                                     // cap on a single wait
	Jitter          bool                                              // add ±25% random jitter to each wait
	RetryableErrors []error                                           // retry only these when non-empty
	OnRetry         func(attempt int, err error, delay time.Duration) // observer, invoked before each re-attempt
}

// DefaultPolicy returns the policy used for backend calls.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxAttempts: 3,
		Delay:       1 * time.Second,
		Backoff:     true,
		MaxDelay:    30 * time.Second,
		Jitter:      true,
	}
}

// Retryer re-invokes fallible operations according to a Policy.
type Retryer interface {
	// Do executes fn, retrying on failure per the policy.
	Do(ctx context.Context, fn func() error) error

	// DoWithResult executes fn and returns its result, retrying on failure.
	DoWithResult(ctx context.Context, fn func() (any, error)) (any, error)
}

type backoffRetryer struct {
	policy *Policy
	logger *zap.Logger
	rng    *rand.Rand
}

// NewBackoffRetryer creates a Retryer with linear or flat backoff per the policy.
func NewBackoffRetryer(policy *Policy, logger *zap.Logger) Retryer {
	if policy == nil {
		policy = DefaultPolicy()
	}
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.Delay <= 0 {
		policy.Delay = 1 * time.Second
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &backoffRetryer{
		policy: policy,
		logger: logger,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *backoffRetryer) Do(ctx context.Context, fn func() error) error {
	_, err := r.DoWithResult(ctx, func() (any, error) {
		return nil, fn()
	})
	return err
}

func (r *backoffRetryer) DoWithResult(ctx context.Context, fn func() (any, error)) (any, error) {
	var lastErr error
	var result any

	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := r.calculateDelay(attempt)

			r.logger.Debug("retrying operation",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", r.policy.MaxAttempts),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)

			if r.policy.OnRetry != nil {
				r.policy.OnRetry(attempt, lastErr, delay)
			}

			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("retry cancelled: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		result, lastErr = fn()
		if lastErr == nil {
			if attempt > 1 {
				r.logger.Info("retry succeeded", zap.Int("attempt", attempt))
			}
			return result, nil
		}

		if !r.isRetryable(lastErr) {
			r.logger.Debug("error not retryable", zap.Error(lastErr))
			return nil, lastErr
		}
	}

	r.logger.Warn("retry attempts exhausted",
		zap.Int("attempts", r.policy.MaxAttempts),
		zap.Error(lastErr),
	)

	return nil, fmt.Errorf("failed after %d attempts: %w", r.policy.MaxAttempts, lastErr)
}

// calculateDelay returns the wait before the given attempt number (attempt ≥ 2).
func (r *backoffRetryer) calculateDelay(attempt int) time.Duration {
	delay := float64(r.policy.Delay)
	if r.policy.Backoff {
		delay *= float64(attempt - 1)
	}

	if delay > float64(r.policy.MaxDelay) {
		delay = float64(r.policy.MaxDelay)
	}

	// ±25% jitter to avoid retry stampedes.
	if r.policy.Jitter {
		jitter := delay * 0.25
		delay = delay + (r.rng.Float64()*2-1)*jitter
	}

	if delay < 0 {
		delay = 0
	}

	return time.Duration(delay)
}

func (r *backoffRetryer) isRetryable(err error) bool {
	if err == nil {
		return false
	}

	// A structured error that declares itself non-retryable is final,
	// regardless of the policy's allow-list.
	var terr *types.Error
	if errors.As(err, &terr) && !terr.Retryable {
		return false
	}

	if len(r.policy.RetryableErrors) == 0 {
		return true
	}

	for _, retryable := range r.policy.RetryableErrors {
		if errors.Is(err, retryable) {
			return true
		}
	}

	return false
}

// DoTyped is a type-safe generic wrapper around Retryer.DoWithResult.
// It eliminates the need for type assertions on the return value.
func DoTyped[T any](r Retryer, ctx context.Context, fn func() (T, error)) (T, error) {
	result, err := r.DoWithResult(ctx, func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result.(T), nil
}
