package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/agentpipe/types"
)

// Config is the complete agentpipe configuration.
type Config struct {
	// Workflow controls the pipeline itself.
	Workflow WorkflowConfig `yaml:"workflow" env:"WORKFLOW"`

	// Backend controls model invocations.
	Backend BackendConfig `yaml:"backend" env:"BACKEND"`

	// Pool bounds backend connections.
	Pool PoolConfig `yaml:"pool" env:"POOL"`

	// Cache controls response caching.
	Cache CacheConfig `yaml:"cache" env:"CACHE"`

	// Context controls context-window budgeting.
	Context ContextConfig `yaml:"context" env:"CONTEXT"`

	// Log controls logging output.
	Log LogConfig `yaml:"log" env:"LOG"`

	// Metrics controls the Prometheus endpoint.
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`
}

// WorkflowConfig controls how tasks are driven through the pipeline.
type WorkflowConfig struct {
	// MaxIterations bounds rework cycles per task.
	MaxIterations int `yaml:"max_iterations" env:"MAX_ITERATIONS"`
	// Auto disables the human-approval hook between steps.
	Auto bool `yaml:"auto" env:"AUTO"`
	// StopOnFailure skips remaining queued tasks after the first failure.
	StopOnFailure bool `yaml:"stop_on_failure" env:"STOP_ON_FAILURE"`
	// ProjectRoot is where generated files and checkpoints land.
	ProjectRoot string `yaml:"project_root" env:"PROJECT_ROOT"`
	// ContextPaths name reference documents handed to every agent.
	ContextPaths []string `yaml:"context_paths" env:"CONTEXT_PATHS"`
	// Streaming requests incremental output when supported.
	Streaming bool `yaml:"streaming" env:"STREAMING"`
	// TestCommand and TestArgs name the project's test command.
	TestCommand string   `yaml:"test_command" env:"TEST_COMMAND"`
	TestArgs    []string `yaml:"test_args" env:"TEST_ARGS"`
	// TestTimeout bounds one test-suite run.
	TestTimeout time.Duration `yaml:"test_timeout" env:"TEST_TIMEOUT"`
}

// BackendConfig controls model invocations.
type BackendConfig struct {
	// Model is the default model identifier.
	Model string `yaml:"model" env:"MODEL"`
	// Temperature and MaxTokens are passed through to the backend.
	Temperature float64 `yaml:"temperature" env:"TEMPERATURE"`
	MaxTokens   int     `yaml:"max_tokens" env:"MAX_TOKENS"`
	// RequestTimeout bounds one backend call, retries included.
	RequestTimeout time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
	// RateLimit is requests per second; zero disables limiting.
	RateLimit float64 `yaml:"rate_limit" env:"RATE_LIMIT"`
	RateBurst int     `yaml:"rate_burst" env:"RATE_BURST"`
	// MaxRetries and RetryDelay control the retry policy.
	MaxRetries int           `yaml:"max_retries" env:"MAX_RETRIES"`
	RetryDelay time.Duration `yaml:"retry_delay" env:"RETRY_DELAY"`
}

// PoolConfig bounds backend connections.
type PoolConfig struct {
	MaxConnections int           `yaml:"max_connections" env:"MAX_CONNECTIONS"`
	IdleTimeout    time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
	MaxLifetime    time.Duration `yaml:"max_lifetime" env:"MAX_LIFETIME"`
}

// CacheConfig controls the response cache.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled" env:"ENABLED"`
	MaxSize int           `yaml:"max_size" env:"MAX_SIZE"`
	TTL     time.Duration `yaml:"ttl" env:"TTL"`
	// Redis, when Addr is set, adds a shared second cache tier.
	Redis RedisConfig `yaml:"redis" env:"REDIS"`
}

// RedisConfig points at the optional shared cache tier.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"ADDR"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
}

// ContextConfig controls context-window budgeting.
type ContextConfig struct {
	MaxTokens          int  `yaml:"max_tokens" env:"MAX_TOKENS"`
	MinRecentTokens    int  `yaml:"min_recent_tokens" env:"MIN_RECENT_TOKENS"`
	KeepSystemMessages bool `yaml:"keep_system_messages" env:"KEEP_SYSTEM_MESSAGES"`
	// TokenizerModel selects the tiktoken encoding; empty falls back to
	// character-based estimation.
	TokenizerModel string `yaml:"tokenizer_model" env:"TOKENIZER_MODEL"`
}

// LogConfig controls logging output.
type LogConfig struct {
	// Level: debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format: json or console.
	Format string `yaml:"format" env:"FORMAT"`
	// OutputPaths default to stderr.
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Addr    string `yaml:"addr" env:"ADDR"`
}

// Loader loads configuration with builder-style options.
type Loader struct {
	configPath string
	envPrefix  string
}

// NewLoader creates a loader with the AGENTPIPE env prefix.
func NewLoader() *Loader {
	return &Loader{envPrefix: "AGENTPIPE"}
}

// WithConfigPath sets the YAML file path. A missing file is not an error;
// defaults plus environment apply.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix overrides the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// Load resolves the configuration: defaults, then file, then environment,
// then validation.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, err
		}
	}
	if err := l.loadFromEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return types.NewError(types.ErrConfigNotFound,
			fmt.Sprintf("read config file %q", l.configPath)).WithCause(err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return types.NewError(types.ErrConfigInvalid,
			fmt.Sprintf("parse config file %q", l.configPath)).WithCause(err)
	}
	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

func setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		envTag := t.Field(i).Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}
		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}
		if err := setFieldValue(field, envValue); err != nil {
			return types.NewError(types.ErrConfigInvalid,
				fmt.Sprintf("environment override %s", envKey)).WithCause(err)
		}
	}
	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(i)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}
	return nil
}

// MustLoad loads from path and panics on failure. For program startup only.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("load config: %v", err))
	}
	return cfg
}
