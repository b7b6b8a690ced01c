package pool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig() Config {
	return Config{
		MaxConnections: 3,
		IdleTimeout:    time.Minute,
		MaxLifetime:    5 * time.Minute,
	}
}

func TestPool_ReuseAfterRelease(t *testing.T) {
	p := New(testConfig(), zap.NewNop())
	defer p.Close()

	first, err := p.Acquire("x")
	require.NoError(t, err)
	p.Release("x")

	second, err := p.Acquire("x")
	require.NoError(t, err)

	assert.Equal(t, first.ID(), second.ID(), "released connection must be reused")

	stats := p.Stats()
	assert.Equal(t, int64(1), stats.Created)
	assert.Equal(t, int64(1), stats.Reused)
}

func TestPool_ExpiredConnectionReplaced(t *testing.T) {
	cfg := testConfig()
	cfg.MaxLifetime = 10 * time.Millisecond
	p := New(cfg, zap.NewNop())
	defer p.Close()

	first, err := p.Acquire("x")
	require.NoError(t, err)
	p.Release("x")

	time.Sleep(20 * time.Millisecond)

	second, err := p.Acquire("x")
	require.NoError(t, err)

	assert.NotEqual(t, first.ID(), second.ID(), "expired connection must not be reused")
	assert.Error(t, first.Context().Err(), "evicted connection must be cancelled")
}

func TestPool_EvictsLRUIdleAtCapacity(t *testing.T) {
	p := New(testConfig(), zap.NewNop())
	defer p.Close()

	for _, key := range []string{"a", "b", "c"} {
		_, err := p.Acquire(key)
		require.NoError(t, err)
		p.Release(key)
		time.Sleep(2 * time.Millisecond) // distinct lastUsed stamps
	}

	// "a" is least recently used; a fourth key must evict it.
	_, err := p.Acquire("d")
	require.NoError(t, err)

	stats := p.Stats()
	assert.Equal(t, 3, stats.Size)
	assert.Equal(t, int64(1), stats.Evicted)

	// "a" was evicted, so acquiring it again creates a new connection.
	_, err = p.Acquire("b")
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.Stats().Reused)
}

func TestPool_ExhaustedWhenAllInUse(t *testing.T) {
	p := New(testConfig(), zap.NewNop())
	defer p.Close()

	for _, key := range []string{"a", "b", "c"} {
		_, err := p.Acquire(key)
		require.NoError(t, err)
	}

	_, err := p.Acquire("d")
	assert.ErrorIs(t, err, ErrPoolExhausted)
}

func TestPool_SweepRemovesExpiredIdle(t *testing.T) {
	cfg := Config{
		MaxConnections: 3,
		IdleTimeout:    10 * time.Millisecond,
		MaxLifetime:    time.Minute,
	}
	p := New(cfg, zap.NewNop())
	defer p.Close()

	_, err := p.Acquire("x")
	require.NoError(t, err)
	p.Release("x")

	assert.Eventually(t, func() bool {
		return p.Stats().Size == 0
	}, time.Second, 5*time.Millisecond, "sweep must remove the expired idle connection")
}

func TestPool_Close(t *testing.T) {
	p := New(testConfig(), zap.NewNop())

	conn, err := p.Acquire("x")
	require.NoError(t, err)

	p.Close()

	assert.Error(t, conn.Context().Err(), "close must cancel open connections")
	_, err = p.Acquire("y")
	assert.ErrorIs(t, err, ErrPoolClosed)

	// Close is idempotent.
	p.Close()
}
