package seeding

import (
	"context"
	"fmt"

	"github.com/okian/questrank/internal/adapters/repository"
	"github.com/okian/questrank/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// Write stores ds through w with cfg.Workers concurrent writers. Profiles
// are written before any fact.
func Write(ctx context.Context, w repository.AchievementWriter, ds Dataset, cfg *Config, stats *Stats) error {
	cfg = cfg.withDefaults()
	cfg.Log.Info(ctx, "writing seed data",
		logger.Int("profiles", len(ds.Profiles)),
		logger.Int("facts", len(ds.Facts)),
		logger.Int("workers", cfg.Workers),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for _, p := range ds.Profiles {
		g.Go(func() error { return w.UpsertProfile(gctx, p) })
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("write profiles: %w", err)
	}
	stats.ProfilesWritten = len(ds.Profiles)

	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for _, f := range ds.Facts {
		g.Go(func() error { return w.RecordFact(gctx, f) })
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("write facts: %w", err)
	}
	stats.FactsWritten = len(ds.Facts)
	return nil
}
