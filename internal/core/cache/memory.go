package cache

import (
	"context"
	"sync"
	"time"

	"github.com/leaveopt/leaveopt/internal/core"
)

const defaultSweepInterval = 10 * time.Minute

// MemoryOptions configures a MemoryStore.
type MemoryOptions struct {
	// SweepInterval is how often the janitor drops expired entries.
	// Zero uses the default; negative disables the janitor.
	SweepInterval time.Duration
	Clock         func() time.Time
}

// MemoryStore keeps entries in process memory. Expired entries are hidden on
// read and removed by a background janitor.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[core.CacheKey]core.CacheEntry
	clock   func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewMemoryStore creates a store and starts its janitor.
func NewMemoryStore(opts MemoryOptions) *MemoryStore {
	m := &MemoryStore{
		entries: make(map[core.CacheKey]core.CacheEntry),
		clock:   opts.Clock,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	interval := opts.SweepInterval
	if interval == 0 {
		interval = defaultSweepInterval
	}
	if interval < 0 {
		close(m.done)
		return m
	}

	go m.janitor(interval)
	return m
}

// Get returns the value for key unless it is missing or expired.
func (m *MemoryStore) Get(_ context.Context, key core.CacheKey) (string, bool, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok || entry.Expired(m.now()) {
		return "", false, nil
	}
	return entry.Value, true, nil
}

// Has reports whether an unexpired entry exists for key.
func (m *MemoryStore) Has(ctx context.Context, key core.CacheKey) (bool, error) {
	_, ok, err := m.Get(ctx, key)
	return ok, err
}

// Set stores value until now+ttl, replacing any previous entry. A
// non-positive ttl stores nothing.
func (m *MemoryStore) Set(_ context.Context, key core.CacheKey, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	now := m.now()
	m.mu.Lock()
	m.entries[key] = core.CacheEntry{
		Key:       key,
		Value:     value,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, including expired ones not yet swept.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Sweep removes entries expired at now and returns how many were dropped.
func (m *MemoryStore) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, entry := range m.entries {
		if entry.Expired(now) {
			delete(m.entries, key)
			removed++
		}
	}
	return removed
}

// Close stops the janitor. The store stays readable.
func (m *MemoryStore) Close() error {
	m.stopOnce.Do(func() { close(m.stop) })
	<-m.done
	return nil
}

func (m *MemoryStore) janitor(interval time.Duration) {
	defer close(m.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.Sweep(m.now())
		}
	}
}

func (m *MemoryStore) now() time.Time {
	if m.clock != nil {
		return m.clock()
	}
	return time.Now()
}
