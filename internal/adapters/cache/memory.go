package cache

import (
	"context"
	"sync"
	"time"

	"github.com/okian/questrank/internal/domain/ranking"
)

type memoryEntry struct {
	standings *ranking.Standings
	expires   time.Time
}

// Memory is an in-process TTL cache.
type Memory struct {
	mu      sync.RWMutex
	gen     uint64
	entries map[Key]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// MemoryOption applies a configuration option to Memory.
type MemoryOption func(*Memory)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMemory returns an empty cache whose entries live for ttl.
func NewMemory(ttl time.Duration, opts ...MemoryOption) *Memory {
	m := &Memory{
		entries: make(map[Key]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Backend implements Cache.
func (m *Memory) Backend() string { return DriverMemory }

// Generation implements Cache.
func (m *Memory) Generation(context.Context) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gen, nil
}

// Get implements Cache. Expired entries are reported as misses.
func (m *Memory) Get(_ context.Context, gen uint64, key Key) (*ranking.Standings, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if gen != m.gen {
		return nil, false, nil
	}
	e, ok := m.entries[key]
	if !ok || !m.now().Before(e.expires) {
		return nil, false, nil
	}
	return e.standings, true, nil
}

// Set implements Cache.
func (m *Memory) Set(_ context.Context, gen uint64, key Key, s *ranking.Standings) error {
	if s == nil {
		return ErrNilStandings
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		return nil
	}
	now := m.now()
	m.entries[key] = memoryEntry{standings: s, expires: now.Add(m.ttl)}
	for k, e := range m.entries {
		if !now.Before(e.expires) {
			delete(m.entries, k)
		}
	}
	return nil
}

// Invalidate implements Cache.
func (m *Memory) Invalidate(context.Context) error {
	m.mu.Lock()
	m.gen++
	m.entries = make(map[Key]memoryEntry)
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
