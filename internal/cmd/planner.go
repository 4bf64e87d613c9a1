package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/leaveopt/leaveopt/internal/ailink/driver"
	"github.com/leaveopt/leaveopt/internal/ailink/driver/perplexity"
	"github.com/leaveopt/leaveopt/internal/ailink/prompt"
	"github.com/leaveopt/leaveopt/internal/config"
	"github.com/leaveopt/leaveopt/internal/core/cache"
	"github.com/leaveopt/leaveopt/internal/core/engine"
	"github.com/leaveopt/leaveopt/internal/observability"
)

// planStack is a Planner with the resources it owns.
type planStack struct {
	planner *engine.Planner
	store   cache.Store
	prompt  *prompt.Prompt
	tracer  *driver.Tracer
}

// buildPlanStack opens the configured cache and wires the upstream client,
// prompt and planner. tracePath enables request tracing when non-empty.
func buildPlanStack(ctx context.Context, cfg *config.Config, tracePath string) (*planStack, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	p, err := prompt.Resolve(cfg.Upstream.PromptFile)
	if err != nil {
		return nil, fmt.Errorf("load prompt: %w", err)
	}

	stack := &planStack{prompt: p}

	if tracePath != "" {
		tracer, err := driver.OpenTracer(tracePath)
		if err != nil {
			return nil, fmt.Errorf("open trace file: %w", err)
		}
		stack.tracer = tracer
		if logger := observability.Logger(); logger != nil {
			logger.Debug("Upstream tracing enabled", zap.String("file", tracePath))
		}
	}

	store, err := cache.Open(ctx, cfg)
	if err != nil {
		_ = stack.Close()
		return nil, err
	}
	stack.store = store

	client := perplexity.NewClient(cfg.Upstream.BaseURL, cfg.Upstream.APIKey)
	client.HTTPClient = &http.Client{}
	client.Timeout = cfg.UpstreamTimeout()
	client.Tracer = stack.tracer

	planner, err := engine.NewPlanner(engine.PlannerOptions{
		Cache:           store,
		Driver:          client,
		Prompt:          p,
		Model:           cfg.Upstream.Model,
		Sampling:        engine.SamplingFromConfig(cfg.Upstream),
		Search:          engine.SearchFromConfig(cfg.Upstream),
		TTL:             cfg.Cache.TTL,
		UpstreamTimeout: cfg.UpstreamTimeout(),
		Pacer:           engine.PacerFromConfig(cfg.Upstream),
		Backend:         cfg.Cache.Backend,
	})
	if err != nil {
		_ = stack.Close()
		return nil, err
	}
	stack.planner = planner

	return stack, nil
}

// Close releases the cache and trace file.
func (s *planStack) Close() error {
	if s == nil {
		return nil
	}
	var errs []error
	if s.store != nil {
		errs = append(errs, cache.Close(s.store))
	}
	if s.tracer != nil {
		errs = append(errs, s.tracer.Close())
	}
	return errors.Join(errs...)
}
