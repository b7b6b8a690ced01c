package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisKeyPrefix = "agentpipe:"

// Tiered layers the local LRU cache over a shared Redis tier. Reads go
// local-first with Redis fallback and local backfill; writes go to both.
// Redis failures are logged and treated as misses, never surfaced.
type Tiered[T any] struct {
	local  *Cache[T]
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewTiered creates a tiered cache. rdb may be nil, in which case the cache
// is purely local.
func NewTiered[T any](config Config, rdb *redis.Client, logger *zap.Logger) *Tiered[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.TTL <= 0 {
		config.TTL = DefaultConfig().TTL
	}
	return &Tiered[T]{
		local:  New[T](config),
		rdb:    rdb,
		ttl:    config.TTL,
		logger: logger.With(zap.String("component", "response_cache")),
	}
}

// Get returns the cached value for key, consulting the local tier first.
func (t *Tiered[T]) Get(ctx context.Context, key string) (T, error) {
	if value, err := t.local.Get(key); err == nil {
		t.logger.Debug("local cache hit", zap.String("key", key))
		return value, nil
	}

	var zero T
	if t.rdb == nil {
		return zero, ErrCacheMiss
	}

	data, err := t.rdb.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			t.logger.Warn("redis get failed", zap.Error(err))
		}
		return zero, ErrCacheMiss
	}

	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		t.logger.Warn("redis entry unmarshal failed", zap.Error(err))
		return zero, ErrCacheMiss
	}

	t.local.Set(key, value)
	t.logger.Debug("redis cache hit", zap.String("key", key))
	return value, nil
}

// Set writes the value to both tiers.
func (t *Tiered[T]) Set(ctx context.Context, key string, value T) {
	t.local.Set(key, value)

	if t.rdb == nil {
		return
	}

	data, err := json.Marshal(value)
	if err != nil {
		t.logger.Warn("cache value marshal failed", zap.Error(err))
		return
	}
	if err := t.rdb.Set(ctx, redisKeyPrefix+key, data, t.ttl).Err(); err != nil {
		t.logger.Warn("redis set failed", zap.Error(err))
	}
}

// Delete removes key from both tiers.
func (t *Tiered[T]) Delete(ctx context.Context, key string) {
	t.local.Delete(key)
	if t.rdb != nil {
		if err := t.rdb.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
			t.logger.Warn("redis delete failed", zap.Error(err))
		}
	}
}

// Cleanup purges expired entries from the local tier. Redis expires its own.
func (t *Tiered[T]) Cleanup() int {
	return t.local.Cleanup()
}

// Stats returns local-tier counters.
func (t *Tiered[T]) Stats() Stats {
	return t.local.Stats()
}
