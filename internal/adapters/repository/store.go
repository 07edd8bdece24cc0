// Package repository reads the achievement facts the leaderboard is computed
// from and, for seeding, writes them.
package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/okian/questrank/internal/domain/model"
)

// AchievementReader is the read side of the achievement store. Counts are
// keyed by user id; users without facts in scope are simply absent.
type AchievementReader interface {
	// ListProfiles returns every registered user.
	ListProfiles(ctx context.Context) ([]model.Profile, error)
	// CountBadgesByUser counts badges earned inside scope.
	CountBadgesByUser(ctx context.Context, scope model.Scope) (map[string]int, error)
	// CountSubmissionsByUser counts submissions made inside scope.
	CountSubmissionsByUser(ctx context.Context, scope model.Scope) (map[string]int, error)
}

// AchievementWriter inserts profiles and facts.
type AchievementWriter interface {
	UpsertProfile(ctx context.Context, p model.Profile) error
	RecordFact(ctx context.Context, f model.Fact) error
}

// Store is a readable and writable achievement store.
type Store interface {
	AchievementReader
	AchievementWriter
	Close() error
}

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open returns the store for driver. dsn is the SQLite path or the Postgres
// URL; it is ignored for the memory driver.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (Store, error) {
	switch strings.ToLower(driver) {
	case DriverMemory, "":
		return NewMemoryStore(), nil
	case DriverSQLite:
		return OpenSQLite(ctx, dsn, opts...)
	case DriverPostgres:
		return OpenPostgres(ctx, dsn, opts...)
	default:
		return nil, fmt.Errorf("%q: %w", driver, ErrUnknownDriver)
	}
}

func validateProfile(p model.Profile) error {
	if strings.TrimSpace(p.UserID) == "" {
		return fmt.Errorf("profile without user id: %w", ErrInvalidRecord)
	}
	return nil
}

func validateFact(f model.Fact) error {
	if strings.TrimSpace(f.UserID) == "" {
		return fmt.Errorf("fact without user id: %w", ErrInvalidRecord)
	}
	if !f.Kind.Valid() {
		return fmt.Errorf("fact kind %q: %w", f.Kind, ErrInvalidRecord)
	}
	if f.OccurredAt.IsZero() {
		return fmt.Errorf("fact without timestamp: %w", ErrInvalidRecord)
	}
	return nil
}
