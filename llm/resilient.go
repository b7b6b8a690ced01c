package llm

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/agentpipe/internal/metrics"
	"github.com/BaSui01/agentpipe/llm/cache"
	contextopt "github.com/BaSui01/agentpipe/llm/context"
	"github.com/BaSui01/agentpipe/llm/pool"
	"github.com/BaSui01/agentpipe/llm/retry"
	"github.com/BaSui01/agentpipe/types"
)

// ResilientConfig configures the resilience decorator.
type ResilientConfig struct {
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
	RateLimit      float64       `yaml:"rate_limit" json:"rate_limit"` // requests per second, 0 disables
	RateBurst      int           `yaml:"rate_burst" json:"rate_burst"`
	CacheEnabled   bool          `yaml:"cache_enabled" json:"cache_enabled"`
}

// DefaultResilientConfig returns the defaults used for remote backends.
func DefaultResilientConfig() ResilientConfig {
	return ResilientConfig{
		RequestTimeout: 5 * time.Minute,
		RateLimit:      0,
		RateBurst:      1,
		CacheEnabled:   true,
	}
}

// ResilientBackend decorates an AgentBackend with the shared resource
// managers: response cache, connection pool, context-window optimizer,
// retry with backoff, and an optional rate limiter. It satisfies
// AgentBackend itself, so callers see one uniform interface.
type ResilientBackend struct {
	backend   AgentBackend
	config    ResilientConfig
	cache     *cache.Tiered[*InvokeResponse]
	pool      *pool.Pool
	optimizer *contextopt.Optimizer
	retryer   retry.Retryer
	limiter   *rate.Limiter
	usage     UsageRecorder
	collector *metrics.Collector
	logger    *zap.Logger
}

// ResilientOption customizes a ResilientBackend.
type ResilientOption func(*ResilientBackend)

// WithCache sets the response cache.
func WithCache(c *cache.Tiered[*InvokeResponse]) ResilientOption {
	return func(b *ResilientBackend) { b.cache = c }
}

// WithPool sets the connection pool.
func WithPool(p *pool.Pool) ResilientOption {
	return func(b *ResilientBackend) { b.pool = p }
}

// WithOptimizer sets the context-window optimizer applied to request
// messages before invocation.
func WithOptimizer(o *contextopt.Optimizer) ResilientOption {
	return func(b *ResilientBackend) { b.optimizer = o }
}

// WithRetryer overrides the default retry policy.
func WithRetryer(r retry.Retryer) ResilientOption {
	return func(b *ResilientBackend) { b.retryer = r }
}

// WithUsageRecorder registers a sink for per-call token usage.
func WithUsageRecorder(u UsageRecorder) ResilientOption {
	return func(b *ResilientBackend) { b.usage = u }
}

// WithCollector registers the metrics collector.
func WithCollector(c *metrics.Collector) ResilientOption {
	return func(b *ResilientBackend) { b.collector = c }
}

// NewResilientBackend wraps backend with the configured resilience layers.
func NewResilientBackend(backend AgentBackend, config ResilientConfig, logger *zap.Logger, opts ...ResilientOption) *ResilientBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultResilientConfig().RequestTimeout
	}

	b := &ResilientBackend{
		backend: backend,
		config:  config,
		logger:  logger.With(zap.String("component", "resilient_backend"), zap.String("backend", backend.Name())),
	}
	for _, opt := range opts {
		opt(b)
	}

	if b.retryer == nil {
		b.retryer = retry.NewBackoffRetryer(retry.DefaultPolicy(), logger)
	}
	if config.RateLimit > 0 {
		burst := config.RateBurst
		if burst < 1 {
			burst = 1
		}
		b.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), burst)
	}

	return b
}

// Name returns the wrapped backend's name.
func (b *ResilientBackend) Name() string { return b.backend.Name() }

// SupportsStreaming reports the wrapped backend's capability.
func (b *ResilientBackend) SupportsStreaming() bool { return b.backend.SupportsStreaming() }

// Invoke performs a cached, pooled, rate-limited, retried invocation.
func (b *ResilientBackend) Invoke(ctx context.Context, req *InvokeRequest) (*InvokeResponse, error) {
	req = b.prepare(req)
	key := b.fingerprint(req)

	if resp, ok := b.lookup(ctx, key); ok {
		return resp, nil
	}

	resp, err := b.call(ctx, req, func(callCtx context.Context) (*InvokeResponse, error) {
		return b.backend.Invoke(callCtx, req)
	})
	if err != nil {
		return nil, err
	}

	b.store(ctx, key, req, resp)
	return resp, nil
}

// InvokeStream performs a streaming invocation when the wrapped backend
// supports it, otherwise falls back to the non-streaming path. Streamed
// responses are never served from cache since the caller observes chunks.
func (b *ResilientBackend) InvokeStream(ctx context.Context, req *InvokeRequest, onChunk ChunkFunc) (*InvokeResponse, error) {
	streamer, ok := b.backend.(StreamingBackend)
	if !ok || !b.backend.SupportsStreaming() {
		b.logger.Debug("backend does not stream, using synchronous path")
		resp, err := b.Invoke(ctx, req)
		if err != nil {
			return nil, err
		}
		if onChunk != nil {
			onChunk(resp.Content)
		}
		return resp, nil
	}

	req = b.prepare(req)

	resp, err := b.call(ctx, req, func(callCtx context.Context) (*InvokeResponse, error) {
		return streamer.InvokeStream(callCtx, req, onChunk)
	})
	if err != nil {
		return nil, err
	}

	b.store(ctx, b.fingerprint(req), req, resp)
	return resp, nil
}

// prepare applies the context-window optimizer to the request messages.
func (b *ResilientBackend) prepare(req *InvokeRequest) *InvokeRequest {
	if b.optimizer == nil || len(req.Messages) == 0 {
		return req
	}

	result := b.optimizer.Optimize(req.Messages)
	if result.MessagesRemoved == 0 {
		return req
	}

	b.logger.Debug("request history optimized",
		zap.Int("removed", result.MessagesRemoved),
		zap.Int("tokens", result.TokenCount),
	)

	optimized := *req
	optimized.Messages = result.Messages
	return &optimized
}

func (b *ResilientBackend) fingerprint(req *InvokeRequest) string {
	return cache.NewFingerprint(req.Messages, req.Model, req.Temperature, req.MaxTokens).Key()
}

func (b *ResilientBackend) lookup(ctx context.Context, key string) (*InvokeResponse, bool) {
	if !b.config.CacheEnabled || b.cache == nil {
		return nil, false
	}

	resp, err := b.cache.Get(ctx, key)
	if err != nil {
		b.collector.RecordCacheMiss()
		return nil, false
	}

	b.collector.RecordCacheHit()
	b.logger.Debug("response served from cache", zap.String("key", key))

	cached := *resp
	cached.Cached = true
	return &cached, true
}

func (b *ResilientBackend) store(ctx context.Context, key string, req *InvokeRequest, resp *InvokeResponse) {
	if b.config.CacheEnabled && b.cache != nil {
		b.cache.Set(ctx, key, resp)
	}
	if b.usage != nil {
		b.usage.RecordUsage(req.Role, req.Model, resp.Usage)
	}
	b.collector.RecordTokens(string(req.Role), resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
}

// call runs fn under the rate limiter, a pooled connection's cancellation
// token, the request timeout, and the retry policy.
func (b *ResilientBackend) call(ctx context.Context, req *InvokeRequest, fn func(ctx context.Context) (*InvokeResponse, error)) (*InvokeResponse, error) {
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	callCtx := ctx
	if b.pool != nil {
		conn, err := b.pool.Acquire(b.backend.Name())
		if err != nil {
			// Pool pressure must not fail the call; proceed unpooled.
			b.logger.Warn("connection pool unavailable", zap.Error(err))
		} else {
			defer b.pool.Release(b.backend.Name())

			var cancel context.CancelFunc
			callCtx, cancel = context.WithCancel(ctx)
			defer cancel()
			stop := context.AfterFunc(conn.Context(), cancel)
			defer stop()

			b.collector.SetPoolConnections(b.pool.Stats().Size)
		}
	}

	started := time.Now()
	resp, err := retry.DoTyped(b.retryer, callCtx, func() (*InvokeResponse, error) {
		return retry.WithTimeout(callCtx, b.config.RequestTimeout, fn)
	})
	duration := time.Since(started)

	if err != nil {
		b.collector.RecordAgentCall(string(req.Role), "error", duration)
		b.logger.Error("backend invocation failed",
			zap.String("role", string(req.Role)),
			zap.Duration("duration", duration),
			zap.Error(err),
		)

		var terr *types.Error
		if errors.As(err, &terr) {
			return nil, err
		}
		return nil, types.NewError(types.ErrProviderRequest, "backend invocation failed").
			WithProvider(b.backend.Name()).
			WithCause(err)
	}

	b.collector.RecordAgentCall(string(req.Role), "ok", duration)
	b.logger.Debug("backend invocation succeeded",
		zap.String("role", string(req.Role)),
		zap.Duration("duration", duration),
		zap.Int("tokens", resp.Usage.TotalTokens),
	)

	return resp, nil
}
