package config

import (
	"time"
)

// Config represents the complete application configuration.
// Values are layered: built-in defaults, then the config file, then
// LEAVEOPT_* environment variables and command-line flags.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Upstream  UpstreamConfig  `mapstructure:"upstream"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Store     StoreConfig     `mapstructure:"store"`
	Redis     RedisConfig     `mapstructure:"redis"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// TrustProxy derives the client address from X-Forwarded-For / X-Real-IP.
	// Enable only behind a reverse proxy that sets these headers.
	TrustProxy bool `mapstructure:"trust_proxy"`

	// AdminToken enables POST /admin/signal when set.
	AdminToken string `mapstructure:"admin_token"`
}

// UpstreamConfig describes the chat-completions provider.
type UpstreamConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`

	MaxTokens           int      `mapstructure:"max_tokens"`
	Temperature         float64  `mapstructure:"temperature"`
	TopP                float64  `mapstructure:"top_p"`
	TopK                int      `mapstructure:"top_k"`
	PresencePenalty     float64  `mapstructure:"presence_penalty"`
	FrequencyPenalty    float64  `mapstructure:"frequency_penalty"`
	SearchRecencyFilter string   `mapstructure:"search_recency_filter"`
	SearchDomainFilter  []string `mapstructure:"search_domain_filter"`

	// RequestsPerSecond paces outbound calls; 0 disables pacing.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`

	// PromptFile overrides the embedded prompt definition.
	PromptFile string `mapstructure:"prompt_file"`
}

// CacheConfig selects the plan cache backend and entry lifetime.
type CacheConfig struct {
	// Backend is one of memory, libsql, redis.
	Backend       string        `mapstructure:"backend"`
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// StoreConfig contains database configuration for libsql/Turso
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// RedisConfig configures the shared redis cache backend.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// RateLimitConfig configures the per-address fixed window.
type RateLimitConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Window        time.Duration `mapstructure:"window"`
	Max           int           `mapstructure:"max"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Profile selects the logging complexity level
	Profile string `mapstructure:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	// Enabled controls whether metrics are exposed
	Enabled bool `mapstructure:"enabled"`

	// Port is the dedicated metrics endpoint port (Prometheus format)
	Port int `mapstructure:"port"`
}
