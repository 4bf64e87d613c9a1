// Package config provides centralized configuration management for leaveopt.
// Defaults are registered on a viper instance, overlaid by an optional YAML
// config file and LEAVEOPT_* environment variables, then decoded into Config
// with mapstructure.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	// AppName names the binary, config directory and data file.
	AppName = "leaveopt"

	// EnvPrefix is prepended to every environment override (LEAVEOPT_SERVER_PORT).
	EnvPrefix = "LEAVEOPT"

	// LegacyAPIKeyEnv is the credential variable the original deployment used.
	LegacyAPIKeyEnv = "PERPLEXITY_API_KEY"
)

// Cache backends.
const (
	BackendMemory = "memory"
	BackendLibsql = "libsql"
	BackendRedis  = "redis"
)

// ErrMissingCredential is returned when no upstream API key is configured.
// The server must refuse to start in that case.
var ErrMissingCredential = errors.New("upstream api key is not set (LEAVEOPT_UPSTREAM_API_KEY or PERPLEXITY_API_KEY)")

var (
	// appConfig holds the current application configuration
	appConfig *Config
	configMu  sync.RWMutex
)

// SetDefaults registers default values and environment bindings on v.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "90s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.trust_proxy", false)
	v.SetDefault("server.admin_token", "")

	// Upstream defaults
	v.SetDefault("upstream.base_url", "https://api.perplexity.ai")
	v.SetDefault("upstream.api_key", "")
	v.SetDefault("upstream.model", "llama-3.1-sonar-large-128k-online")
	v.SetDefault("upstream.timeout", "60s")
	v.SetDefault("upstream.max_tokens", 1000)
	v.SetDefault("upstream.temperature", 0.2)
	v.SetDefault("upstream.top_p", 0.9)
	v.SetDefault("upstream.top_k", 0)
	v.SetDefault("upstream.presence_penalty", 0.0)
	v.SetDefault("upstream.frequency_penalty", 1.0)
	v.SetDefault("upstream.search_recency_filter", "month")
	v.SetDefault("upstream.search_domain_filter", []string{"perplexity.ai"})
	v.SetDefault("upstream.requests_per_second", 0.0)
	v.SetDefault("upstream.burst", 1)
	v.SetDefault("upstream.prompt_file", "")

	// Cache defaults
	v.SetDefault("cache.backend", BackendMemory)
	v.SetDefault("cache.ttl", "1h")
	v.SetDefault("cache.sweep_interval", "10m")

	// Store defaults
	v.SetDefault("store.driver", "libsql")
	v.SetDefault("store.path", DefaultStorePath())
	v.SetDefault("store.url", "")
	v.SetDefault("store.auth_token", "")

	// Redis defaults
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", AppName)

	// Rate limit defaults
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.window", "1h")
	v.SetDefault("rate_limit.max", 10)
	v.SetDefault("rate_limit.sweep_interval", "5m")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "structured")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("upstream.api_key", EnvPrefix+"_UPSTREAM_API_KEY", LegacyAPIKeyEnv)
}

// Load decodes the settings held by v into a Config.
// It does not validate; callers that serve traffic must call Validate.
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		return nil, errors.New("viper instance is required")
	}

	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.StringToFloat64HookFunc(),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Upstream.APIKey = strings.TrimSpace(cfg.Upstream.APIKey)
	cfg.Cache.Backend = strings.ToLower(strings.TrimSpace(cfg.Cache.Backend))
	if strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = DefaultStorePath()
	}

	setConfig(cfg)

	return cfg, nil
}

// Validate checks the settings required to serve traffic.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.Upstream.APIKey == "" {
		return ErrMissingCredential
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if strings.TrimSpace(c.Upstream.BaseURL) == "" {
		return errors.New("upstream base_url is required")
	}
	if strings.TrimSpace(c.Upstream.Model) == "" {
		return errors.New("upstream model is required")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache ttl must be positive, got %s", c.Cache.TTL)
	}
	switch c.Cache.Backend {
	case BackendMemory, BackendLibsql, BackendRedis:
	default:
		return fmt.Errorf("unsupported cache backend: %q", c.Cache.Backend)
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.Window <= 0 {
			return fmt.Errorf("rate limit window must be positive, got %s", c.RateLimit.Window)
		}
		if c.RateLimit.Max <= 0 {
			return fmt.Errorf("rate limit max must be positive, got %d", c.RateLimit.Max)
		}
	}
	if c.Upstream.RequestsPerSecond < 0 {
		return fmt.Errorf("upstream requests_per_second must not be negative")
	}
	return nil
}

// UpstreamTimeout returns the bounded timeout for one upstream call.
func (c *Config) UpstreamTimeout() time.Duration {
	if c == nil || c.Upstream.Timeout <= 0 {
		return 60 * time.Second
	}
	return c.Upstream.Timeout
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// setConfig updates the current configuration (thread-safe)
func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

// DefaultConfigDir returns the XDG-compliant config directory for the app.
func DefaultConfigDir() string {
	return gfconfig.GetAppConfigDir(AppName)
}

// DefaultStorePath returns the XDG-compliant path to the database file.
func DefaultStorePath() string {
	dataDir := gfconfig.GetAppDataDir(AppName)
	if strings.TrimSpace(dataDir) == "" {
		return "./" + AppName + ".db"
	}
	return filepath.Join(dataDir, AppName+".db")
}
