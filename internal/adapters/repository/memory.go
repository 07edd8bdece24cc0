package repository

import (
	"context"
	"sync"

	"github.com/okian/questrank/internal/domain/model"
)

// MemoryStore keeps profiles and facts in process. It is the default driver
// for development and the fixture store in tests.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]model.Profile
	order    []string
	facts    []model.Fact
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{profiles: make(map[string]model.Profile)}
}

// UpsertProfile inserts or replaces a profile.
func (s *MemoryStore) UpsertProfile(ctx context.Context, p model.Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateProfile(p); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[p.UserID]; !ok {
		s.order = append(s.order, p.UserID)
	}
	s.profiles[p.UserID] = p
	return nil
}

// RecordFact appends a fact. Facts for unknown users are kept; readers
// decide what to do with them.
func (s *MemoryStore) RecordFact(ctx context.Context, f model.Fact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateFact(f); err != nil {
		return err
	}
	f.OccurredAt = f.OccurredAt.UTC()
	s.mu.Lock()
	s.facts = append(s.facts, f)
	s.mu.Unlock()
	return nil
}

// ListProfiles returns profiles in insertion order.
func (s *MemoryStore) ListProfiles(ctx context.Context) ([]model.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Profile, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.profiles[id])
	}
	return out, nil
}

// CountBadgesByUser implements AchievementReader.
func (s *MemoryStore) CountBadgesByUser(ctx context.Context, scope model.Scope) (map[string]int, error) {
	return s.count(ctx, model.BadgeEarned, scope)
}

// CountSubmissionsByUser implements AchievementReader.
func (s *MemoryStore) CountSubmissionsByUser(ctx context.Context, scope model.Scope) (map[string]int, error) {
	return s.count(ctx, model.SubmissionMade, scope)
}

func (s *MemoryStore) count(ctx context.Context, kind model.FactKind, scope model.Scope) (map[string]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int)
	for _, f := range s.facts {
		if f.Kind == kind && scope.Contains(f.OccurredAt) {
			out[f.UserID]++
		}
	}
	return out, nil
}

// Len returns the number of stored facts.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.facts)
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
