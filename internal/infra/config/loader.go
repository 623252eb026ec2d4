package config

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"mcpq/internal/domain"
)

// Config is the validated configuration of an orchestrator instance.
type Config struct {
	Server        ServerConfig        `mapstructure:"server" yaml:"server"`
	Queue         QueueConfig         `mapstructure:"queue" yaml:"queue"`
	Registry      RegistryConfig      `mapstructure:"registry" yaml:"registry"`
	Observability ObservabilityConfig `mapstructure:"observability" yaml:"observability"`
	Tools         []ToolPolicy        `mapstructure:"tools" yaml:"tools,omitempty"`
}

// ServerConfig describes the MCP server command to supervise.
type ServerConfig struct {
	Cmd []string          `mapstructure:"cmd" yaml:"cmd"`
	Env map[string]string `mapstructure:"env" yaml:"env,omitempty"`
	Cwd string            `mapstructure:"cwd" yaml:"cwd,omitempty"`
}

// QueueConfig carries the queue tunables. Durations are milliseconds in the
// file; accessors convert.
type QueueConfig struct {
	MaxSize           int  `mapstructure:"maxSize" yaml:"maxSize"`
	MaxConcurrent     int  `mapstructure:"maxConcurrent" yaml:"maxConcurrent"`
	ProcessIntervalMs int  `mapstructure:"processIntervalMs" yaml:"processIntervalMs"`
	EnablePriority    bool `mapstructure:"enablePriority" yaml:"enablePriority"`
	RequestTimeoutMs  int  `mapstructure:"requestTimeoutMs" yaml:"requestTimeoutMs"`
	MaxRetries        int  `mapstructure:"maxRetries" yaml:"maxRetries"`
	RetryBaseDelayMs  int  `mapstructure:"retryBaseDelayMs" yaml:"retryBaseDelayMs"`
	RetryMaxDelayMs   int  `mapstructure:"retryMaxDelayMs" yaml:"retryMaxDelayMs"`
	EnableDebugging   bool `mapstructure:"enableDebugging" yaml:"enableDebugging"`

	RateLimit RateLimitConfig `mapstructure:"rateLimit" yaml:"rateLimit"`
}

// RateLimitConfig bounds dispatches per window.
type RateLimitConfig struct {
	Enabled  bool `mapstructure:"enabled" yaml:"enabled"`
	Limit    int  `mapstructure:"limit" yaml:"limit"`
	WindowMs int  `mapstructure:"windowMs" yaml:"windowMs"`
}

// RegistryConfig carries registry defaults.
type RegistryConfig struct {
	DefaultTrustLevel string `mapstructure:"defaultTrustLevel" yaml:"defaultTrustLevel"`
}

// ObservabilityConfig configures the metrics endpoint.
type ObservabilityConfig struct {
	ListenAddress string `mapstructure:"listenAddress" yaml:"listenAddress"`
	Enabled       bool   `mapstructure:"enabled" yaml:"enabled"`
}

// ToolPolicy overrides governance fields for one tool by name. Policies are
// applied at registration time and re-applied on config reload.
type ToolPolicy struct {
	Name       string                 `mapstructure:"name" yaml:"name"`
	Enabled    *bool                  `mapstructure:"enabled" yaml:"enabled,omitempty"`
	TrustLevel string                 `mapstructure:"trustLevel" yaml:"trustLevel,omitempty"`
	Category   string                 `mapstructure:"category" yaml:"category,omitempty"`
	Tags       []string               `mapstructure:"tags" yaml:"tags,omitempty"`
	Security   *domain.SecurityPolicy `mapstructure:"security" yaml:"security,omitempty"`
}

func (q QueueConfig) ProcessInterval() time.Duration {
	return time.Duration(q.ProcessIntervalMs) * time.Millisecond
}

func (q QueueConfig) RequestTimeout() time.Duration {
	return time.Duration(q.RequestTimeoutMs) * time.Millisecond
}

func (q QueueConfig) RetryBaseDelay() time.Duration {
	return time.Duration(q.RetryBaseDelayMs) * time.Millisecond
}

func (q QueueConfig) RetryMaxDelay() time.Duration {
	return time.Duration(q.RetryMaxDelayMs) * time.Millisecond
}

func (r RateLimitConfig) Window() time.Duration {
	return time.Duration(r.WindowMs) * time.Millisecond
}

// Loader reads and validates config files.
type Loader struct {
	logger *zap.Logger
}

func NewLoader(logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{logger: logger.Named("config")}
}

func newConfigViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("queue.maxSize", domain.DefaultMaxQueueSize)
	v.SetDefault("queue.maxConcurrent", domain.DefaultMaxConcurrent)
	v.SetDefault("queue.processIntervalMs", int(domain.DefaultProcessInterval/time.Millisecond))
	v.SetDefault("queue.enablePriority", true)
	v.SetDefault("queue.requestTimeoutMs", int(domain.DefaultRequestTimeout/time.Millisecond))
	v.SetDefault("queue.maxRetries", domain.DefaultMaxRetries)
	v.SetDefault("queue.retryBaseDelayMs", int(domain.DefaultRetryBaseDelay/time.Millisecond))
	v.SetDefault("queue.retryMaxDelayMs", int(domain.DefaultRetryMaxDelay/time.Millisecond))
	v.SetDefault("queue.rateLimit.limit", domain.DefaultRateLimit)
	v.SetDefault("queue.rateLimit.windowMs", int(domain.DefaultRateLimitWindow/time.Millisecond))
	v.SetDefault("registry.defaultTrustLevel", string(domain.DefaultTrustLevel))
	v.SetDefault("observability.listenAddress", "127.0.0.1:9464")
	v.SetDefault("observability.enabled", true)
}

// Load reads, decodes, and validates the config file at path.
func (l *Loader) Load(ctx context.Context, path string) (Config, error) {
	v := newConfigViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config %s: %w", path, err)
	}
	if err := validate(cfg); err != nil {
		return Config{}, fmt.Errorf("validate config %s: %w", path, err)
	}
	l.logger.Debug("config loaded",
		zap.String("path", path),
		zap.Int("toolPolicies", len(cfg.Tools)),
	)
	return cfg, nil
}

var trustLevels = []string{
	string(domain.TrustTrusted),
	string(domain.TrustMedium),
	string(domain.TrustLow),
	string(domain.TrustUntrusted),
}

func validate(cfg Config) error {
	if cfg.Queue.MaxSize < 0 || cfg.Queue.MaxConcurrent < 0 {
		return fmt.Errorf("queue sizes must be non-negative")
	}
	if cfg.Queue.RateLimit.Enabled && cfg.Queue.RateLimit.Limit <= 0 {
		return fmt.Errorf("rateLimit.limit must be positive when enabled")
	}
	if level := cfg.Registry.DefaultTrustLevel; level != "" && !slices.Contains(trustLevels, level) {
		return fmt.Errorf("unknown trust level %q", level)
	}
	seen := make(map[string]struct{}, len(cfg.Tools))
	for _, policy := range cfg.Tools {
		if policy.Name == "" {
			return fmt.Errorf("tool policy requires a name")
		}
		if _, dup := seen[policy.Name]; dup {
			return fmt.Errorf("duplicate tool policy %q", policy.Name)
		}
		seen[policy.Name] = struct{}{}
		if policy.TrustLevel != "" && !slices.Contains(trustLevels, policy.TrustLevel) {
			return fmt.Errorf("tool policy %q: unknown trust level %q", policy.Name, policy.TrustLevel)
		}
	}
	return nil
}
