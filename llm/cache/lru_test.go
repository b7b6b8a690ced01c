package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentpipe/types"
)

func TestCache_RoundTrip(t *testing.T) {
	c := New[string](Config{MaxSize: 10, TTL: time.Hour})

	c.Set("k", "v")
	got, err := c.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestCache_MissOnAbsentKey(t *testing.T) {
	c := New[string](DefaultConfig())

	_, err := c.Get("nope")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Equal(t, int64(1), c.Stats().Misses)
}

func TestCache_TTLExpiry(t *testing.T) {
	c := New[string](Config{MaxSize: 10, TTL: 10 * time.Millisecond})

	c.Set("k", "v")
	time.Sleep(20 * time.Millisecond)

	_, err := c.Get("k")
	assert.ErrorIs(t, err, ErrCacheMiss)
	// Expiry discovery evicts, so the entry no longer counts toward size.
	assert.Equal(t, 0, c.Stats().Size)
}

func TestCache_EvictsLRUAtCapacity(t *testing.T) {
	c := New[int](Config{MaxSize: 3, TTL: time.Hour})

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	// Touch "a" and "c" so "b" is least recently used.
	_, _ = c.Get("a")
	_, _ = c.Get("c")

	c.Set("d", 4)

	_, err := c.Get("b")
	assert.ErrorIs(t, err, ErrCacheMiss, "LRU entry must be evicted")

	for _, key := range []string{"a", "c", "d"} {
		_, err := c.Get(key)
		assert.NoError(t, err, key)
	}

	stats := c.Stats()
	assert.Equal(t, 3, stats.Size)
	assert.Equal(t, int64(1), stats.Evictions)
}

func TestCache_EvictionTieBrokenByInsertionOrder(t *testing.T) {
	c := New[int](Config{MaxSize: 2, TTL: time.Hour})

	// Never accessed after insertion: recency order equals insertion order.
	c.Set("first", 1)
	c.Set("second", 2)
	c.Set("third", 3)

	_, err := c.Get("first")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = c.Get("second")
	assert.NoError(t, err)
}

func TestCache_UpdateExistingKeyDoesNotEvict(t *testing.T) {
	c := New[int](Config{MaxSize: 2, TTL: time.Hour})

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("a", 10)

	got, err := c.Get("a")
	require.NoError(t, err)
	assert.Equal(t, 10, got)
	assert.Equal(t, 2, c.Stats().Size)
	assert.Equal(t, int64(0), c.Stats().Evictions)
}

func TestCache_Cleanup(t *testing.T) {
	c := New[int](Config{MaxSize: 10, TTL: 10 * time.Millisecond})

	c.Set("a", 1)
	c.Set("b", 2)
	time.Sleep(20 * time.Millisecond)
	c.Set("c", 3)

	removed := c.Cleanup()
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, c.Stats().Size)
}

func TestCache_HitRate(t *testing.T) {
	c := New[int](DefaultConfig())

	c.Set("a", 1)
	_, _ = c.Get("a")
	_, _ = c.Get("a")
	_, _ = c.Get("missing")
	_, _ = c.Get("missing")

	stats := c.Stats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRate, 1e-9)
}

func TestFingerprint_Stable(t *testing.T) {
	msgs := []types.Message{
		types.NewSystemMessage("you are a coder"),
		types.NewUserMessage("write a parser"),
	}

	k1 := NewFingerprint(msgs, "m1", 0.2, 4096).Key()
	k2 := NewFingerprint(msgs, "m1", 0.2, 4096).Key()
	assert.Equal(t, k1, k2, "identical logical requests must hash identically")

	// Timestamps must not affect the key.
	later := []types.Message{
		types.NewSystemMessage("you are a coder"),
		types.NewUserMessage("write a parser"),
	}
	assert.Equal(t, k1, NewFingerprint(later, "m1", 0.2, 4096).Key())
}

func TestFingerprint_SensitiveToContent(t *testing.T) {
	msgs := []types.Message{
		types.NewSystemMessage("s"),
		types.NewUserMessage("u"),
	}
	base := NewFingerprint(msgs, "m1", 0.2, 4096).Key()

	reordered := []types.Message{
		types.NewUserMessage("u"),
		types.NewSystemMessage("s"),
	}
	assert.NotEqual(t, base, NewFingerprint(reordered, "m1", 0.2, 4096).Key())
	assert.NotEqual(t, base, NewFingerprint(msgs, "m2", 0.2, 4096).Key())
	assert.NotEqual(t, base, NewFingerprint(msgs, "m1", 0.7, 4096).Key())
	assert.NotEqual(t, base, NewFingerprint(msgs, "m1", 0.2, 1024).Key())
}
