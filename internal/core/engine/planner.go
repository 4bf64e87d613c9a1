package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/leaveopt/leaveopt/internal/ailink/content"
	"github.com/leaveopt/leaveopt/internal/ailink/driver"
	"github.com/leaveopt/leaveopt/internal/ailink/prompt"
	"github.com/leaveopt/leaveopt/internal/config"
	"github.com/leaveopt/leaveopt/internal/core"
	"github.com/leaveopt/leaveopt/internal/core/cache"
	"github.com/leaveopt/leaveopt/internal/metrics"
	"github.com/leaveopt/leaveopt/internal/observability"
)

// DefaultPlanTTL is how long a generated plan is served from cache.
const DefaultPlanTTL = time.Hour

const cacheWriteTimeout = 5 * time.Second

// UpstreamErrorKind classifies upstream failures.
type UpstreamErrorKind string

const (
	// KindUpstream covers transport failures, timeouts and non-2xx responses.
	KindUpstream UpstreamErrorKind = "upstream"
	// KindMalformed is a 2xx response without choices[0].message.content.
	KindMalformed UpstreamErrorKind = "malformed"
)

// UpstreamError is returned by Plan when no plan could be produced. Nothing
// is cached for the request when it occurs.
type UpstreamError struct {
	Kind UpstreamErrorKind
	Err  error
}

func (e *UpstreamError) Error() string {
	if e == nil {
		return "upstream error"
	}
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// PlannerOptions wires a Planner.
type PlannerOptions struct {
	Cache  cache.Store
	Driver driver.Driver
	Prompt *prompt.Prompt

	Model    string
	Sampling driver.Sampling
	Search   *driver.Search

	TTL             time.Duration
	UpstreamTimeout time.Duration

	// Pacer throttles outbound calls; nil disables pacing.
	Pacer *rate.Limiter

	// Backend labels cache metrics.
	Backend string
}

// Planner serves leave plans from cache and calls upstream on a miss.
// Concurrent misses for the same key share one upstream call.
type Planner struct {
	opts  PlannerOptions
	group singleflight.Group
}

// NewPlanner validates opts and applies defaults.
func NewPlanner(opts PlannerOptions) (*Planner, error) {
	if opts.Cache == nil {
		return nil, errors.New("planner requires a cache store")
	}
	if opts.Driver == nil {
		return nil, errors.New("planner requires an upstream driver")
	}
	if opts.Prompt == nil {
		return nil, errors.New("planner requires a prompt")
	}
	if strings.TrimSpace(opts.Model) == "" {
		return nil, errors.New("planner requires a model")
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultPlanTTL
	}
	if opts.Backend == "" {
		opts.Backend = config.BackendMemory
	}
	return &Planner{opts: opts}, nil
}

// Plan returns the plan text for req. A cached, unexpired plan is returned
// without contacting upstream. Otherwise one upstream call is made, detached
// from ctx so a departing client still leaves a warm cache; ctx only bounds
// how long this caller waits.
func (p *Planner) Plan(ctx context.Context, req core.LeaveRequest) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	key := req.Key()

	value, hit := p.lookup(ctx, key)
	metrics.RecordCacheLookup(p.opts.Backend, hit)
	if hit {
		debug("plan cache hit", zap.String("cache_key", key.String()))
		return value, nil
	}
	debug("plan cache miss", zap.String("cache_key", key.String()))

	detached := context.WithoutCancel(ctx)
	ch := p.group.DoChan(key.String(), func() (v any, err error) {
		// DoChan re-panics on a fresh goroutine, out of reach of the HTTP
		// recovery middleware.
		defer func() {
			if r := recover(); r != nil {
				metrics.RecordPanic()
				err = &UpstreamError{Kind: KindUpstream, Err: fmt.Errorf("upstream call panicked: %v", r)}
				logError("plan request panicked", err,
					zap.String("cache_key", key.String()),
					zap.Stack("stack"))
			}
		}()
		return p.fill(detached, key, req)
	})

	select {
	case res := <-ch:
		if res.Shared {
			metrics.RecordSharedFlight()
		}
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// fill runs inside the flight. It re-checks the cache so a caller that
// missed just before another flight stored the value does not call upstream.
func (p *Planner) fill(ctx context.Context, key core.CacheKey, req core.LeaveRequest) (string, error) {
	if value, ok := p.lookup(ctx, key); ok {
		return value, nil
	}

	callCtx := ctx
	if p.opts.UpstreamTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.opts.UpstreamTimeout)
		defer cancel()
	}

	value, err := p.callUpstream(callCtx, req)
	if err != nil {
		logError("upstream plan request failed", err,
			zap.String("cache_key", key.String()),
			zap.String("country", req.Country),
			zap.String("state", req.State),
			zap.String("year", req.Year.String()))
		return "", err
	}

	setCtx, cancel := context.WithTimeout(ctx, cacheWriteTimeout)
	defer cancel()
	if err := p.opts.Cache.Set(setCtx, key, value, p.opts.TTL); err != nil {
		metrics.RecordCacheError(p.opts.Backend, "set")
		logError("plan cache store failed", err, zap.String("cache_key", key.String()))
	}

	return value, nil
}

func (p *Planner) callUpstream(ctx context.Context, req core.LeaveRequest) (string, error) {
	start := time.Now()

	system, user, err := p.opts.Prompt.Render(map[string]string{
		"country": req.Country,
		"state":   req.State,
		"year":    req.Year.String(),
	})
	if err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}

	if p.opts.Pacer != nil {
		if err := p.opts.Pacer.Wait(ctx); err != nil {
			metrics.RecordUpstreamCall("throttled", time.Since(start))
			return "", &UpstreamError{Kind: KindUpstream, Err: fmt.Errorf("upstream pacing: %w", err)}
		}
	}

	messages := []content.Message{content.TextMessage(content.RoleSystem, system)}
	if user != "" {
		messages = append(messages, content.TextMessage(content.RoleUser, user))
	}

	resp, err := p.opts.Driver.Complete(ctx, &driver.Request{
		Model:      p.opts.Model,
		Messages:   messages,
		Sampling:   p.opts.Sampling,
		Search:     p.opts.Search,
		PromptSlug: p.opts.Prompt.Slug(),
	})
	if err != nil {
		upstreamErr := classify(err)
		metrics.RecordUpstreamCall(upstreamStatus(upstreamErr), time.Since(start))
		return "", upstreamErr
	}
	if resp == nil {
		metrics.RecordUpstreamCall(string(KindMalformed), time.Since(start))
		return "", &UpstreamError{Kind: KindMalformed, Err: driver.ErrMalformedResponse}
	}

	metrics.RecordUpstreamCall("success", time.Since(start))
	return resp.Text(), nil
}

// lookup treats backend errors as misses so a flaky cache degrades to
// upstream calls instead of failing requests.
func (p *Planner) lookup(ctx context.Context, key core.CacheKey) (string, bool) {
	value, ok, err := p.opts.Cache.Get(ctx, key)
	if err != nil {
		metrics.RecordCacheError(p.opts.Backend, "get")
		logWarn("plan cache lookup failed", err, zap.String("cache_key", key.String()))
		return "", false
	}
	return value, ok
}

func classify(err error) *UpstreamError {
	var upstreamErr *UpstreamError
	if errors.As(err, &upstreamErr) {
		return upstreamErr
	}
	if errors.Is(err, driver.ErrMalformedResponse) {
		return &UpstreamError{Kind: KindMalformed, Err: err}
	}
	return &UpstreamError{Kind: KindUpstream, Err: err}
}

func upstreamStatus(err *UpstreamError) string {
	switch {
	case err.Kind == KindMalformed:
		return string(KindMalformed)
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}

func debug(msg string, fields ...zap.Field) {
	if logger := observability.Logger(); logger != nil {
		logger.Debug(msg, fields...)
	}
}

func logWarn(msg string, err error, fields ...zap.Field) {
	if logger := observability.Logger(); logger != nil {
		logger.Warn(msg, append(fields, zap.Error(err))...)
	}
}

func logError(msg string, err error, fields ...zap.Field) {
	if logger := observability.Logger(); logger != nil {
		logger.Error(msg, append(fields, zap.Error(err))...)
	}
}
