package seeding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/okian/questrank/internal/adapters/repository"
	"github.com/okian/questrank/internal/domain/model"
	"github.com/okian/questrank/pkg/logger"
)

const pollInterval = 250 * time.Millisecond

// Run seeds store with a generated population and, when cfg.BaseURL is
// set, verifies every period of the running service against it. The store
// must be empty before the run for verification to hold.
func Run(ctx context.Context, cfg *Config, store repository.AchievementWriter) (*Stats, error) {
	cfg = cfg.withDefaults()
	stats := &Stats{StartTime: time.Now()}

	cfg.Log.Info(ctx, "starting questrank seed",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("users", cfg.Users),
		logger.Int("maxBadges", cfg.MaxBadges),
		logger.Int("maxSubmissions", cfg.MaxSubmissions),
		logger.Int("workers", cfg.Workers),
	)

	now := time.Now()
	ds, err := Generate(ctx, cfg, now)
	if err != nil {
		return stats, err
	}
	if err := Write(ctx, store, ds, cfg, stats); err != nil {
		return stats, err
	}

	if cfg.BaseURL != "" {
		client := NewClient(cfg.BaseURL, cfg.Secret, cfg.Timeout)
		if err := client.Health(ctx); err != nil {
			return stats, fmt.Errorf("health check: %w", err)
		}
		if err := announce(ctx, cfg, client); err != nil {
			return stats, fmt.Errorf("notify: %w", err)
		}
		for _, period := range []model.Period{model.PeriodAll, model.PeriodMonth, model.PeriodWeek} {
			expected := Expected(ds, period, time.Now())
			if err := awaitPopulation(ctx, client, period, len(expected), cfg.Window, cfg.Settle); err != nil {
				return stats, err
			}
			if err := Verify(ctx, client, expected, period, cfg, stats); err != nil {
				return stats, fmt.Errorf("verify %s: %w", period, err)
			}
		}
	}

	stats.Duration = time.Since(stats.StartTime)
	cfg.Log.Info(ctx, "seed completed",
		logger.Int("profilesWritten", stats.ProfilesWritten),
		logger.Int("factsWritten", stats.FactsWritten),
		logger.Int("ranksChecked", stats.RanksChecked),
		logger.String("duration", stats.Duration.String()),
	)
	return stats, nil
}

// announce tells the service its cached standings are stale, over the fact
// channel when a publisher is configured and over HTTP otherwise.
func announce(ctx context.Context, cfg *Config, client *Client) error {
	if cfg.Publisher == nil {
		return client.NotifyChanged(ctx)
	}
	receivers, err := cfg.Publisher.Publish(ctx, model.FactChange{
		EventID: "seed-" + uuid.NewString(),
		Source:  "seed",
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if receivers == 0 {
		return fmt.Errorf("%w: nobody is subscribed to the fact channel", ErrUnavailable)
	}
	cfg.Log.Debug(ctx, "announced seed on the fact channel", logger.Int("receivers", int(receivers)))
	return nil
}

// awaitPopulation polls until the service reports population users for
// both the verified window and the default one, which also backs /rank.
// That means cached standings from before the seed are gone.
func awaitPopulation(ctx context.Context, client *Client, period model.Period, population, window int, settle time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, settle)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	var last error
	for {
		last = settled(ctx, client, period, population, window)
		if last == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.Join(fmt.Errorf("service did not settle within %s", settle), last)
		case <-ticker.C:
		}
	}
}

func settled(ctx context.Context, client *Client, period model.Period, population, window int) error {
	for _, limit := range []int{window, -1} {
		snap, err := client.Leaderboard(ctx, period, limit, "")
		if err != nil {
			return err
		}
		if snap.PopulationSize != population {
			return fmt.Errorf("%w: population %d, want %d", ErrMismatch, snap.PopulationSize, population)
		}
	}
	return nil
}
