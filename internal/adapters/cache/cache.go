// Package cache holds computed Standings for a bounded time so a burst of
// leaderboard views does not re-read the achievement store.
//
// Entries are tagged with a generation. Invalidate bumps the generation, so a
// build that started before a fact change can never be served after it.
package cache

import (
	"context"
	"fmt"

	"github.com/okian/questrank/internal/domain/model"
	"github.com/okian/questrank/internal/domain/ranking"
)

// Key identifies one cached ranking.
type Key struct {
	Period     model.Period
	WindowSize int
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%d", k.Period, k.WindowSize)
}

// Cache stores immutable Standings.
type Cache interface {
	// Generation returns the current generation. Callers read it before
	// computing and pass it back to Get and Set.
	Generation(ctx context.Context) (uint64, error)
	// Get returns the standings stored for key under gen.
	Get(ctx context.Context, gen uint64, key Key) (*ranking.Standings, bool, error)
	// Set stores s for key under gen. A stale gen is silently dropped.
	Set(ctx context.Context, gen uint64, key Key, s *ranking.Standings) error
	// Invalidate drops every entry.
	Invalidate(ctx context.Context) error
	// Backend names the implementation for metrics and logs.
	Backend() string
}

// Cache drivers.
const (
	DriverNone   = "none"
	DriverMemory = "memory"
	DriverRedis  = "redis"
)
