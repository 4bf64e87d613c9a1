package engine

import (
	"context"
	"sync"
	"time"

	"github.com/leaveopt/leaveopt/internal/core"
)

// Defaults for the inbound limiter.
const (
	DefaultRateLimitWindow = time.Hour
	DefaultRateLimitMax    = 10
	defaultSweepInterval   = time.Minute
)

// RateLimiter admits at most Max requests per client address in each fixed
// window of length Window. State lives in process memory only.
type RateLimiter struct {
	Window        time.Duration
	Max           int
	SweepInterval time.Duration
	Clock         func() time.Time

	mu      sync.Mutex
	windows map[string]*core.RateLimitWindow
}

// Decision is the outcome of a single admission check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

// RetryAfter is the time left until the window for this decision resets.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if wait := d.Reset.Sub(now); wait > 0 {
		return wait
	}
	return 0
}

// NewRateLimiter builds a limiter, substituting defaults for non-positive values.
func NewRateLimiter(window time.Duration, max int) *RateLimiter {
	if window <= 0 {
		window = DefaultRateLimitWindow
	}
	if max <= 0 {
		max = DefaultRateLimitMax
	}
	return &RateLimiter{
		Window:  window,
		Max:     max,
		windows: make(map[string]*core.RateLimitWindow),
	}
}

// Admit records one request from address at now. The request is admitted and
// counted while the window count is below Max; rejected requests are not counted.
func (r *RateLimiter) Admit(address string, now time.Time) Decision {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.windows == nil {
		r.windows = make(map[string]*core.RateLimitWindow)
	}

	window, ok := r.windows[address]
	if !ok || !now.Before(window.WindowStart.Add(r.window())) {
		window = &core.RateLimitWindow{Address: address, WindowStart: now}
		r.windows[address] = window
	}

	decision := Decision{
		Limit: r.max(),
		Reset: window.WindowStart.Add(r.window()),
	}

	if window.Count >= r.max() {
		return decision
	}

	window.Count++
	decision.Allowed = true
	decision.Remaining = r.max() - window.Count
	return decision
}

// Allow is Admit at the limiter's current time.
func (r *RateLimiter) Allow(address string) Decision {
	return r.Admit(address, r.now())
}

// Sweep drops windows that have fully elapsed at now and returns how many it removed.
func (r *RateLimiter) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for address, window := range r.windows {
		if !now.Before(window.WindowStart.Add(r.window())) {
			delete(r.windows, address)
			removed++
		}
	}
	return removed
}

// Windows reports the number of tracked client windows.
func (r *RateLimiter) Windows() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.windows)
}

// Start runs the sweeper until ctx is done. onSweep, when set, receives the
// number of windows still tracked after each pass.
func (r *RateLimiter) Start(ctx context.Context, onSweep func(active int)) {
	interval := r.SweepInterval
	if interval <= 0 {
		interval = defaultSweepInterval
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Sweep(r.now())
				if onSweep != nil {
					onSweep(r.Windows())
				}
			}
		}
	}()
}

func (r *RateLimiter) window() time.Duration {
	if r.Window <= 0 {
		return DefaultRateLimitWindow
	}
	return r.Window
}

func (r *RateLimiter) max() int {
	if r.Max <= 0 {
		return DefaultRateLimitMax
	}
	return r.Max
}

func (r *RateLimiter) now() time.Time {
	if r != nil && r.Clock != nil {
		return r.Clock()
	}
	return time.Now().UTC()
}
