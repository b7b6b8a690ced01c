package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/agentpipe/types"
)

// DefaultConfig returns the full default configuration.
func DefaultConfig() *Config {
	return &Config{
		Workflow: DefaultWorkflowConfig(),
		Backend:  DefaultBackendConfig(),
		Pool:     DefaultPoolConfig(),
		Cache:    DefaultCacheConfig(),
		Context:  DefaultContextConfig(),
		Log:      DefaultLogConfig(),
		Metrics:  DefaultMetricsConfig(),
	}
}

// DefaultWorkflowConfig returns the default pipeline settings.
func DefaultWorkflowConfig() WorkflowConfig {
	return WorkflowConfig{
		MaxIterations: 5,
		Auto:          false,
		ProjectRoot:   ".",
		TestCommand:   "go",
		TestArgs:      []string{"test", "./..."},
		TestTimeout:   2 * time.Minute,
	}
}

// DefaultBackendConfig returns the default backend settings.
func DefaultBackendConfig() BackendConfig {
	return BackendConfig{
		Temperature:    0.2,
		MaxTokens:      4096,
		RequestTimeout: 5 * time.Minute,
		RateBurst:      1,
		MaxRetries:     3,
		RetryDelay:     time.Second,
	}
}

// DefaultPoolConfig returns the default connection-pool settings.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxConnections: 10,
		IdleTimeout:    60 * time.Second,
		MaxLifetime:    300 * time.Second,
	}
}

// DefaultCacheConfig returns the default response-cache settings.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled: true,
		MaxSize: 100,
		TTL:     time.Hour,
	}
}

// DefaultContextConfig returns the default context-budget settings.
func DefaultContextConfig() ContextConfig {
	return ContextConfig{
		MaxTokens:          8000,
		MinRecentTokens:    2000,
		KeepSystemMessages: true,
	}
}

// DefaultLogConfig returns the default logging settings.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:       "info",
		Format:      "json",
		OutputPaths: []string{"stderr"},
	}
}

// DefaultMetricsConfig returns the default metrics settings.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled: false,
		Addr:    ":9190",
	}
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Workflow.MaxIterations < 1 {
		errs = append(errs, "workflow.max_iterations must be at least 1")
	}
	if c.Workflow.TestTimeout < 0 {
		errs = append(errs, "workflow.test_timeout must not be negative")
	}
	if c.Backend.Temperature < 0 || c.Backend.Temperature > 2 {
		errs = append(errs, "backend.temperature must be in [0, 2]")
	}
	if c.Backend.MaxTokens < 0 {
		errs = append(errs, "backend.max_tokens must not be negative")
	}
	if c.Backend.RequestTimeout <= 0 {
		errs = append(errs, "backend.request_timeout must be positive")
	}
	if c.Backend.RateLimit < 0 {
		errs = append(errs, "backend.rate_limit must not be negative")
	}
	if c.Backend.MaxRetries < 1 {
		errs = append(errs, "backend.max_retries must be at least 1")
	}
	if c.Pool.MaxConnections < 1 {
		errs = append(errs, "pool.max_connections must be at least 1")
	}
	if c.Pool.IdleTimeout <= 0 || c.Pool.MaxLifetime <= 0 {
		errs = append(errs, "pool timeouts must be positive")
	}
	if c.Cache.MaxSize < 1 {
		errs = append(errs, "cache.max_size must be at least 1")
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, "cache.ttl must be positive")
	}
	if c.Context.MaxTokens < 1 {
		errs = append(errs, "context.max_tokens must be at least 1")
	}
	if c.Context.MinRecentTokens > c.Context.MaxTokens {
		errs = append(errs, "context.min_recent_tokens must not exceed context.max_tokens")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log.level %q is not one of debug/info/warn/error", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Sprintf("log.format %q is not json or console", c.Log.Format))
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		errs = append(errs, "metrics.addr required when metrics are enabled")
	}

	if len(errs) > 0 {
		return types.NewError(types.ErrConfigInvalid, strings.Join(errs, "; "))
	}
	return nil
}
