package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type payload struct {
	Content string `json:"content"`
	Tokens  int    `json:"tokens"`
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestTiered_LocalFirst(t *testing.T) {
	rdb := newTestRedis(t)
	tc := NewTiered[payload](Config{MaxSize: 10, TTL: time.Hour}, rdb, zap.NewNop())

	ctx := context.Background()
	tc.Set(ctx, "k", payload{Content: "hello", Tokens: 5})

	got, err := tc.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Content)
	assert.Equal(t, int64(1), tc.Stats().Hits)
}

func TestTiered_RedisFallbackBackfillsLocal(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()

	writer := NewTiered[payload](Config{MaxSize: 10, TTL: time.Hour}, rdb, zap.NewNop())
	writer.Set(ctx, "k", payload{Content: "shared", Tokens: 3})

	// A fresh instance has a cold local tier but shares Redis.
	reader := NewTiered[payload](Config{MaxSize: 10, TTL: time.Hour}, rdb, zap.NewNop())
	got, err := reader.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "shared", got.Content)

	// Second read must be served locally.
	_, err = reader.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(1), reader.Stats().Hits)
}

func TestTiered_RedisDownFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	tc := NewTiered[payload](Config{MaxSize: 10, TTL: time.Hour}, rdb, zap.NewNop())

	mr.Close()

	ctx := context.Background()
	// Set must not raise even though Redis is gone.
	tc.Set(ctx, "k", payload{Content: "v"})

	got, err := tc.Get(ctx, "k")
	require.NoError(t, err, "local tier must still serve the value")
	assert.Equal(t, "v", got.Content)

	_, err = tc.Get(ctx, "absent")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestTiered_NilRedisIsLocalOnly(t *testing.T) {
	tc := NewTiered[payload](Config{MaxSize: 10, TTL: time.Hour}, nil, zap.NewNop())

	ctx := context.Background()
	tc.Set(ctx, "k", payload{Content: "v"})

	got, err := tc.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got.Content)

	tc.Delete(ctx, "k")
	_, err = tc.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}
