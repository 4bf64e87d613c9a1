package engine

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/leaveopt/leaveopt/internal/ailink/content"
	"github.com/leaveopt/leaveopt/internal/ailink/driver"
	"github.com/leaveopt/leaveopt/internal/ailink/prompt"
	"github.com/leaveopt/leaveopt/internal/config"
	"github.com/leaveopt/leaveopt/internal/core"
	"github.com/leaveopt/leaveopt/internal/core/cache"
)

type stubDriver struct {
	mu       sync.Mutex
	calls    atomic.Int32
	requests []*driver.Request
	text     string
	err      error
	panicked any
	release  chan struct{}
}

func (s *stubDriver) Complete(ctx context.Context, req *driver.Request) (*driver.Response, error) {
	s.calls.Add(1)
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.panicked != nil {
		panic(s.panicked)
	}
	if s.err != nil {
		return nil, s.err
	}
	return &driver.Response{Content: []content.ContentBlock{{Type: content.ContentTypeText, Text: s.text}}}, nil
}

func (s *stubDriver) Name() string { return "stub" }

func (s *stubDriver) lastRequest() *driver.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[len(s.requests)-1]
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(now time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestPlanner(t *testing.T, drv driver.Driver, clk *clock) *Planner {
	t.Helper()

	p, err := prompt.LoadDefault(prompt.LeavePlanSlug)
	require.NoError(t, err)

	store := cache.NewMemoryStore(cache.MemoryOptions{SweepInterval: -1, Clock: clk.Now})
	t.Cleanup(func() { _ = store.Close() })

	planner, err := NewPlanner(PlannerOptions{
		Cache:           store,
		Driver:          drv,
		Prompt:          p,
		Model:           "llama-3.1-sonar-large-128k-online",
		Sampling:        SamplingFromConfig(defaultUpstream()),
		Search:          SearchFromConfig(defaultUpstream()),
		TTL:             time.Hour,
		UpstreamTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	return planner
}

func defaultUpstream() config.UpstreamConfig {
	return config.UpstreamConfig{
		MaxTokens:           1000,
		Temperature:         0.2,
		TopP:                0.9,
		FrequencyPenalty:    1,
		SearchRecencyFilter: "month",
		SearchDomainFilter:  []string{"perplexity.ai"},
	}
}

func victoria() core.LeaveRequest {
	return core.LeaveRequest{Country: "Australia", State: "Victoria", Year: "2025"}
}

func TestPlannerCachesWithinTTL(t *testing.T) {
	clk := &clock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	drv := &stubDriver{text: "## Plan"}
	planner := newTestPlanner(t, drv, clk)

	first, err := planner.Plan(context.Background(), victoria())
	require.NoError(t, err)
	require.Equal(t, "## Plan", first)

	clk.Advance(time.Minute)
	second, err := planner.Plan(context.Background(), victoria())
	require.NoError(t, err)
	require.Equal(t, "## Plan", second)
	require.Equal(t, int32(1), drv.calls.Load())

	req := drv.lastRequest()
	require.Len(t, req.Messages, 2)
	assert.Equal(t, content.RoleSystem, req.Messages[0].Role)
	assert.Contains(t, content.JoinText(req.Messages[0].Content), "Victoria, Australia for the year 2025")
	assert.Equal(t, "What's the most efficient way to take annual leave in Victoria, Australia for the year 2025?",
		content.JoinText(req.Messages[1].Content))
	assert.Equal(t, 0.2, *req.Sampling.Temperature)
	assert.Equal(t, 0.9, *req.Sampling.TopP)
	assert.Equal(t, 1000, *req.Sampling.MaxTokens)
	assert.Equal(t, 0, *req.Sampling.TopK)
	assert.Equal(t, "month", req.Search.RecencyFilter)
	assert.Equal(t, prompt.LeavePlanSlug, req.PromptSlug)
}

func TestPlannerRefetchesAfterExpiry(t *testing.T) {
	clk := &clock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	drv := &stubDriver{text: "## Plan"}
	planner := newTestPlanner(t, drv, clk)

	_, err := planner.Plan(context.Background(), victoria())
	require.NoError(t, err)

	clk.Advance(time.Hour)
	drv.text = "## Plan v2"

	value, err := planner.Plan(context.Background(), victoria())
	require.NoError(t, err)
	require.Equal(t, "## Plan v2", value)
	require.Equal(t, int32(2), drv.calls.Load())
}

func TestPlannerNumericAndStringYearShareEntry(t *testing.T) {
	clk := &clock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	drv := &stubDriver{text: "## Plan"}
	planner := newTestPlanner(t, drv, clk)

	var numeric, text core.LeaveRequest
	require.NoError(t, decodeRequest(`{"country":"Australia","state":"Victoria","year":2025}`, &numeric))
	require.NoError(t, decodeRequest(`{"country":"Australia","state":"Victoria","year":"2025"}`, &text))

	_, err := planner.Plan(context.Background(), numeric)
	require.NoError(t, err)
	_, err = planner.Plan(context.Background(), text)
	require.NoError(t, err)
	require.Equal(t, int32(1), drv.calls.Load())
}

func TestPlannerDistinctKeysCallUpstreamSeparately(t *testing.T) {
	clk := &clock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	drv := &stubDriver{text: "plan"}
	planner := newTestPlanner(t, drv, clk)

	_, err := planner.Plan(context.Background(), victoria())
	require.NoError(t, err)
	_, err = planner.Plan(context.Background(), core.LeaveRequest{Country: "Australia", State: "Victoria", Year: "2026"})
	require.NoError(t, err)
	require.Equal(t, int32(2), drv.calls.Load())
}

func TestPlannerFailuresAreNotCached(t *testing.T) {
	clk := &clock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	drv := &stubDriver{err: &driver.ProviderError{Provider: "stub", StatusCode: 503, Message: "unavailable"}}
	planner := newTestPlanner(t, drv, clk)

	_, err := planner.Plan(context.Background(), victoria())
	require.Error(t, err)

	var upstreamErr *UpstreamError
	require.True(t, errors.As(err, &upstreamErr))
	require.Equal(t, KindUpstream, upstreamErr.Kind)

	var providerErr *driver.ProviderError
	require.True(t, errors.As(err, &providerErr))

	drv.err = nil
	drv.text = "## Recovered"
	value, err := planner.Plan(context.Background(), victoria())
	require.NoError(t, err)
	require.Equal(t, "## Recovered", value)
	require.Equal(t, int32(2), drv.calls.Load())
}

func TestPlannerFailureKeepsExpiredEntry(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := &clock{now: start}
	drv := &stubDriver{text: "## Original"}
	planner := newTestPlanner(t, drv, clk)
	key := victoria().Key()

	value, err := planner.Plan(context.Background(), victoria())
	require.NoError(t, err)
	require.Equal(t, "## Original", value)

	clk.Advance(time.Hour)
	drv.err = &driver.ProviderError{Provider: "stub", StatusCode: 500, Message: "boom"}
	_, err = planner.Plan(context.Background(), victoria())
	require.Error(t, err)
	require.Equal(t, int32(2), drv.calls.Load())

	has, err := planner.opts.Cache.Has(context.Background(), key)
	require.NoError(t, err)
	require.False(t, has)

	// Back inside the first window the original row must still be there.
	clk.Set(start.Add(59 * time.Minute))
	value, ok, err := planner.opts.Cache.Get(context.Background(), key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "## Original", value)
}

func TestPlannerRecoversFromDriverPanic(t *testing.T) {
	clk := &clock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	drv := &stubDriver{panicked: "driver bug"}
	planner := newTestPlanner(t, drv, clk)

	var (
		value string
		err   error
	)
	require.NotPanics(t, func() {
		value, err = planner.Plan(context.Background(), victoria())
	})
	require.Empty(t, value)

	var upstreamErr *UpstreamError
	require.True(t, errors.As(err, &upstreamErr))
	require.Equal(t, KindUpstream, upstreamErr.Kind)
	require.Contains(t, err.Error(), "driver bug")

	has, err := planner.opts.Cache.Has(context.Background(), victoria().Key())
	require.NoError(t, err)
	require.False(t, has)

	drv.panicked = nil
	drv.text = "## Plan"
	value, err = planner.Plan(context.Background(), victoria())
	require.NoError(t, err)
	require.Equal(t, "## Plan", value)
}

func TestPlannerMalformedResponse(t *testing.T) {
	clk := &clock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	drv := &stubDriver{err: driver.ErrMalformedResponse}
	planner := newTestPlanner(t, drv, clk)

	_, err := planner.Plan(context.Background(), victoria())
	var upstreamErr *UpstreamError
	require.True(t, errors.As(err, &upstreamErr))
	require.Equal(t, KindMalformed, upstreamErr.Kind)
	require.Contains(t, upstreamErr.Error(), "malformed")
}

func TestPlannerCollapsesConcurrentMisses(t *testing.T) {
	clk := &clock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	drv := &stubDriver{text: "## Plan", release: make(chan struct{})}
	planner := newTestPlanner(t, drv, clk)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = planner.Plan(context.Background(), victoria())
		}(i)
	}

	require.Eventually(t, func() bool { return drv.calls.Load() == 1 }, 2*time.Second, time.Millisecond)
	// Give the remaining callers time to join the in-flight call.
	time.Sleep(20 * time.Millisecond)
	close(drv.release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, "## Plan", results[i])
	}
	require.Equal(t, int32(1), drv.calls.Load())
}

func TestPlannerCallerCancelDoesNotAbortUpstream(t *testing.T) {
	clk := &clock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	drv := &stubDriver{text: "## Plan", release: make(chan struct{})}
	planner := newTestPlanner(t, drv, clk)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := planner.Plan(ctx, victoria())
		done <- err
	}()

	require.Eventually(t, func() bool { return drv.calls.Load() == 1 }, 2*time.Second, time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	close(drv.release)

	require.Eventually(t, func() bool {
		ok, err := planner.opts.Cache.Has(context.Background(), victoria().Key())
		return err == nil && ok
	}, 2*time.Second, 5*time.Millisecond)

	value, err := planner.Plan(context.Background(), victoria())
	require.NoError(t, err)
	require.Equal(t, "## Plan", value)
	require.Equal(t, int32(1), drv.calls.Load())
}

func TestPlannerUpstreamTimeout(t *testing.T) {
	clk := &clock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	drv := &stubDriver{text: "late", release: make(chan struct{})}
	defer close(drv.release)
	planner := newTestPlanner(t, drv, clk)
	planner.opts.UpstreamTimeout = 20 * time.Millisecond

	_, err := planner.Plan(context.Background(), victoria())
	require.Error(t, err)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	ok, err := planner.opts.Cache.Has(context.Background(), victoria().Key())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPlannerPacer(t *testing.T) {
	clk := &clock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	drv := &stubDriver{text: "plan"}
	planner := newTestPlanner(t, drv, clk)
	planner.opts.Pacer = rate.NewLimiter(rate.Every(time.Hour), 1)
	planner.opts.UpstreamTimeout = 50 * time.Millisecond

	_, err := planner.Plan(context.Background(), victoria())
	require.NoError(t, err)

	// The bucket is empty and the next token is an hour away.
	_, err = planner.Plan(context.Background(), core.LeaveRequest{Country: "Canada", State: "Ontario", Year: "2025"})
	var upstreamErr *UpstreamError
	require.True(t, errors.As(err, &upstreamErr))
	require.Equal(t, KindUpstream, upstreamErr.Kind)
	require.Equal(t, int32(1), drv.calls.Load())
}

type failingCache struct{ cache.Store }

func (failingCache) Get(context.Context, core.CacheKey) (string, bool, error) {
	return "", false, errors.New("cache down")
}

func (failingCache) Set(context.Context, core.CacheKey, string, time.Duration) error {
	return errors.New("cache down")
}

func TestPlannerCacheErrorsDegradeToUpstream(t *testing.T) {
	p, err := prompt.LoadDefault(prompt.LeavePlanSlug)
	require.NoError(t, err)
	drv := &stubDriver{text: "## Plan"}

	planner, err := NewPlanner(PlannerOptions{Cache: failingCache{}, Driver: drv, Prompt: p, Model: "m"})
	require.NoError(t, err)

	value, err := planner.Plan(context.Background(), victoria())
	require.NoError(t, err)
	require.Equal(t, "## Plan", value)
}

func TestNewPlannerValidation(t *testing.T) {
	p, err := prompt.LoadDefault(prompt.LeavePlanSlug)
	require.NoError(t, err)
	store := cache.NewMemoryStore(cache.MemoryOptions{SweepInterval: -1})
	drv := &stubDriver{}

	_, err = NewPlanner(PlannerOptions{Driver: drv, Prompt: p, Model: "m"})
	require.Error(t, err)
	_, err = NewPlanner(PlannerOptions{Cache: store, Prompt: p, Model: "m"})
	require.Error(t, err)
	_, err = NewPlanner(PlannerOptions{Cache: store, Driver: drv, Model: "m"})
	require.Error(t, err)
	_, err = NewPlanner(PlannerOptions{Cache: store, Driver: drv, Prompt: p})
	require.Error(t, err)

	planner, err := NewPlanner(PlannerOptions{Cache: store, Driver: drv, Prompt: p, Model: "m"})
	require.NoError(t, err)
	require.Equal(t, DefaultPlanTTL, planner.opts.TTL)
}

func TestOptionsFromConfig(t *testing.T) {
	require.Nil(t, PacerFromConfig(config.UpstreamConfig{}))
	pacer := PacerFromConfig(config.UpstreamConfig{RequestsPerSecond: 2})
	require.NotNil(t, pacer)
	require.Equal(t, 1, pacer.Burst())

	require.Nil(t, SearchFromConfig(config.UpstreamConfig{}))
	search := SearchFromConfig(defaultUpstream())
	require.Equal(t, []string{"perplexity.ai"}, search.DomainFilter)
}

func decodeRequest(body string, out *core.LeaveRequest) error {
	return json.Unmarshal([]byte(body), out)
}
