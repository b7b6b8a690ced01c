package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentpipe/types"
)

func testPolicy(maxAttempts int) *Policy {
	return &Policy{
		MaxAttempts: maxAttempts,
		Delay:       time.Millisecond,
		Backoff:     true,
	}
}

func TestBackoffRetryer_SucceedsAfterFailures(t *testing.T) {
	r := NewBackoffRetryer(testPolicy(3), zap.NewNop())

	calls := 0
	result, err := DoTyped(r, context.Background(), func() (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, calls)
}

func TestBackoffRetryer_ExhaustsAttempts(t *testing.T) {
	r := NewBackoffRetryer(testPolicy(3), zap.NewNop())

	calls := 0
	boom := errors.New("boom")
	err := r.Do(context.Background(), func() error {
		calls++
		return boom
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.Equal(t, 3, calls)
}

func TestBackoffRetryer_NonRetryableStructuredError(t *testing.T) {
	r := NewBackoffRetryer(testPolicy(5), zap.NewNop())

	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		return types.NewError(types.ErrProviderAuth, "bad key") // Retryable defaults to false
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestBackoffRetryer_RetryableErrorFilter(t *testing.T) {
	transient := errors.New("transient")
	policy := testPolicy(3)
	policy.RetryableErrors = []error{transient}
	r := NewBackoffRetryer(policy, zap.NewNop())

	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		return errors.New("fatal")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls, "non-listed error must not be retried")
}

func TestBackoffRetryer_OnRetryObserver(t *testing.T) {
	var observed []int
	policy := testPolicy(3)
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		observed = append(observed, attempt)
	}
	r := NewBackoffRetryer(policy, zap.NewNop())

	_ = r.Do(context.Background(), func() error { return errors.New("always") })

	assert.Equal(t, []int{2, 3}, observed)
}

func TestBackoffRetryer_ContextCancelled(t *testing.T) {
	policy := &Policy{MaxAttempts: 5, Delay: time.Hour}
	r := NewBackoffRetryer(policy, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := r.Do(ctx, func() error { return errors.New("always") })

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestCalculateDelay_LinearBackoff(t *testing.T) {
	r := &backoffRetryer{policy: &Policy{
		MaxAttempts: 5,
		Delay:       100 * time.Millisecond,
		Backoff:     true,
		MaxDelay:    250 * time.Millisecond,
	}}

	assert.Equal(t, 100*time.Millisecond, r.calculateDelay(2))
	assert.Equal(t, 200*time.Millisecond, r.calculateDelay(3))
	// Capped by MaxDelay.
	assert.Equal(t, 250*time.Millisecond, r.calculateDelay(4))
}

func TestCalculateDelay_FlatWithoutBackoff(t *testing.T) {
	r := &backoffRetryer{policy: &Policy{
		MaxAttempts: 5,
		Delay:       100 * time.Millisecond,
		MaxDelay:    time.Second,
	}}

	assert.Equal(t, 100*time.Millisecond, r.calculateDelay(2))
	assert.Equal(t, 100*time.Millisecond, r.calculateDelay(4))
}
