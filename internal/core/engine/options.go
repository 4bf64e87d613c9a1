package engine

import (
	"golang.org/x/time/rate"

	"github.com/leaveopt/leaveopt/internal/ailink/driver"
	"github.com/leaveopt/leaveopt/internal/config"
)

// SamplingFromConfig maps the upstream section onto request parameters.
func SamplingFromConfig(cfg config.UpstreamConfig) driver.Sampling {
	return driver.Sampling{
		Temperature:      driver.Float64(cfg.Temperature),
		TopP:             driver.Float64(cfg.TopP),
		TopK:             driver.Int(cfg.TopK),
		MaxTokens:        driver.Int(cfg.MaxTokens),
		PresencePenalty:  driver.Float64(cfg.PresencePenalty),
		FrequencyPenalty: driver.Float64(cfg.FrequencyPenalty),
	}
}

// SearchFromConfig returns the search options, or nil when none are set.
func SearchFromConfig(cfg config.UpstreamConfig) *driver.Search {
	if len(cfg.SearchDomainFilter) == 0 && cfg.SearchRecencyFilter == "" {
		return nil
	}
	return &driver.Search{
		DomainFilter:  cfg.SearchDomainFilter,
		RecencyFilter: cfg.SearchRecencyFilter,
	}
}

// PacerFromConfig builds the outbound token bucket; nil when disabled.
func PacerFromConfig(cfg config.UpstreamConfig) *rate.Limiter {
	if cfg.RequestsPerSecond <= 0 {
		return nil
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
}
