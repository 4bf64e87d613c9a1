package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestLoad(t *testing.T) {
	t.Run("LoadDefaults", func(t *testing.T) {
		t.Setenv(LegacyAPIKeyEnv, "")
		t.Setenv("LEAVEOPT_UPSTREAM_API_KEY", "")

		cfg, err := Load(newViper(t))
		require.NoError(t, err)
		require.NotNil(t, cfg)

		// Verify server defaults
		assert.Equal(t, "localhost", cfg.Server.Host)
		assert.Equal(t, 3000, cfg.Server.Port)
		assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
		assert.Equal(t, 120*time.Second, cfg.Server.IdleTimeout)
		assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
		assert.False(t, cfg.Server.TrustProxy)

		// Verify upstream defaults
		assert.Equal(t, "https://api.perplexity.ai", cfg.Upstream.BaseURL)
		assert.Equal(t, "llama-3.1-sonar-large-128k-online", cfg.Upstream.Model)
		assert.Equal(t, 1000, cfg.Upstream.MaxTokens)
		assert.InDelta(t, 0.2, cfg.Upstream.Temperature, 1e-9)
		assert.InDelta(t, 0.9, cfg.Upstream.TopP, 1e-9)
		assert.InDelta(t, 1.0, cfg.Upstream.FrequencyPenalty, 1e-9)
		assert.Equal(t, "month", cfg.Upstream.SearchRecencyFilter)
		assert.Equal(t, []string{"perplexity.ai"}, cfg.Upstream.SearchDomainFilter)
		assert.Equal(t, 60*time.Second, cfg.Upstream.Timeout)
		assert.Empty(t, cfg.Upstream.APIKey)

		// Verify cache and rate limit defaults
		assert.Equal(t, BackendMemory, cfg.Cache.Backend)
		assert.Equal(t, time.Hour, cfg.Cache.TTL)
		assert.True(t, cfg.RateLimit.Enabled)
		assert.Equal(t, time.Hour, cfg.RateLimit.Window)
		assert.Equal(t, 10, cfg.RateLimit.Max)

		assert.NotEmpty(t, cfg.Store.Path)
		assert.Equal(t, cfg, GetConfig())
	})

	t.Run("EnvironmentOverrides", func(t *testing.T) {
		t.Setenv("LEAVEOPT_SERVER_PORT", "8181")
		t.Setenv("LEAVEOPT_CACHE_TTL", "720h")
		t.Setenv("LEAVEOPT_CACHE_BACKEND", "Redis")
		t.Setenv("LEAVEOPT_RATE_LIMIT_MAX", "3")
		t.Setenv("LEAVEOPT_UPSTREAM_SEARCH_DOMAIN_FILTER", "a.example,b.example")
		t.Setenv("LEAVEOPT_UPSTREAM_API_KEY", "  key-from-env  ")

		cfg, err := Load(newViper(t))
		require.NoError(t, err)

		assert.Equal(t, 8181, cfg.Server.Port)
		assert.Equal(t, 720*time.Hour, cfg.Cache.TTL)
		assert.Equal(t, BackendRedis, cfg.Cache.Backend)
		assert.Equal(t, 3, cfg.RateLimit.Max)
		assert.Equal(t, []string{"a.example", "b.example"}, cfg.Upstream.SearchDomainFilter)
		assert.Equal(t, "key-from-env", cfg.Upstream.APIKey)
	})

	t.Run("LegacyCredentialVariable", func(t *testing.T) {
		t.Setenv("LEAVEOPT_UPSTREAM_API_KEY", "")
		t.Setenv(LegacyAPIKeyEnv, "pplx-legacy")

		cfg, err := Load(newViper(t))
		require.NoError(t, err)
		assert.Equal(t, "pplx-legacy", cfg.Upstream.APIKey)
	})

	t.Run("ConfigFile", func(t *testing.T) {
		t.Setenv(LegacyAPIKeyEnv, "")
		t.Setenv("LEAVEOPT_UPSTREAM_API_KEY", "")

		path := filepath.Join(t.TempDir(), "leaveopt.yaml")
		content := `
server:
  port: 9999
upstream:
  api_key: file-key
  timeout: 15s
cache:
  backend: libsql
  ttl: 30m
rate_limit:
  window: 15m
  max: 100
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		v := newViper(t)
		v.SetConfigFile(path)
		require.NoError(t, v.ReadInConfig())

		cfg, err := Load(v)
		require.NoError(t, err)
		assert.Equal(t, 9999, cfg.Server.Port)
		assert.Equal(t, "file-key", cfg.Upstream.APIKey)
		assert.Equal(t, 15*time.Second, cfg.UpstreamTimeout())
		assert.Equal(t, BackendLibsql, cfg.Cache.Backend)
		assert.Equal(t, 30*time.Minute, cfg.Cache.TTL)
		assert.Equal(t, 15*time.Minute, cfg.RateLimit.Window)
		assert.Equal(t, 100, cfg.RateLimit.Max)
		require.NoError(t, cfg.Validate())
	})

	t.Run("NilViper", func(t *testing.T) {
		_, err := Load(nil)
		require.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:    ServerConfig{Port: 3000},
			Upstream:  UpstreamConfig{APIKey: "k", BaseURL: "https://api.example", Model: "m"},
			Cache:     CacheConfig{Backend: BackendMemory, TTL: time.Hour},
			RateLimit: RateLimitConfig{Enabled: true, Window: time.Hour, Max: 10},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
		errText string
	}{
		{name: "Valid", mutate: func(*Config) {}},
		{name: "MissingCredential", mutate: func(c *Config) { c.Upstream.APIKey = "" }, wantErr: ErrMissingCredential},
		{name: "BadPort", mutate: func(c *Config) { c.Server.Port = 70000 }, errText: "port"},
		{name: "ZeroTTL", mutate: func(c *Config) { c.Cache.TTL = 0 }, errText: "ttl"},
		{name: "UnknownBackend", mutate: func(c *Config) { c.Cache.Backend = "memcached" }, errText: "backend"},
		{name: "ZeroWindow", mutate: func(c *Config) { c.RateLimit.Window = 0 }, errText: "window"},
		{name: "ZeroMax", mutate: func(c *Config) { c.RateLimit.Max = 0 }, errText: "max"},
		{name: "DisabledLimiterIgnoresWindow", mutate: func(c *Config) {
			c.RateLimit.Enabled = false
			c.RateLimit.Window = 0
		}},
		{name: "NegativePacing", mutate: func(c *Config) { c.Upstream.RequestsPerSecond = -1 }, errText: "requests_per_second"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			switch {
			case tt.wantErr != nil:
				require.ErrorIs(t, err, tt.wantErr)
			case tt.errText != "":
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errText)
			default:
				require.NoError(t, err)
			}
		})
	}
}
