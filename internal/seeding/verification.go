package seeding

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/okian/questrank/internal/domain/model"
	"github.com/okian/questrank/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// Verify checks the service against expected for period: the window
// contents, the population size, the caller entry of the last-ranked user,
// and every user's rank.
func Verify(ctx context.Context, client *Client, expected []ExpectedEntry, period model.Period, cfg *Config, stats *Stats) error {
	cfg = cfg.withDefaults()
	if len(expected) == 0 {
		return fmt.Errorf("%w: nothing to verify", ErrMismatch)
	}
	last := expected[len(expected)-1]

	snap, err := client.Leaderboard(ctx, period, cfg.Window, last.UserID)
	if err != nil {
		return err
	}
	if err := compareSnapshot(snap, expected, cfg.Window, last); err != nil {
		return err
	}

	var checked atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for _, want := range expected {
		g.Go(func() error {
			got, err := client.Rank(gctx, period, want.UserID)
			if err != nil {
				return err
			}
			if err := compareEntry(got, want); err != nil {
				return err
			}
			if n := checked.Add(1); cfg.Verbose {
				cfg.Log.Debug(gctx, "rank verified",
					logger.String("userID", want.UserID),
					logger.Int("rank", want.Rank),
					logger.Int("checked", int(n)),
				)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	stats.RanksChecked = int(checked.Load())
	cfg.Log.Info(ctx, "ranking verified",
		logger.String("period", string(period)),
		logger.Int("population", len(expected)),
		logger.Int("ranksChecked", stats.RanksChecked),
	)
	return nil
}

func compareSnapshot(snap model.Snapshot, expected []ExpectedEntry, window int, caller ExpectedEntry) error {
	if snap.PopulationSize != len(expected) {
		return fmt.Errorf("%w: population %d, want %d", ErrMismatch, snap.PopulationSize, len(expected))
	}
	want := min(window, len(expected))
	if len(snap.Entries) != want {
		return fmt.Errorf("%w: window holds %d entries, want %d", ErrMismatch, len(snap.Entries), want)
	}
	for i, got := range snap.Entries {
		if err := compareEntry(got, expected[i]); err != nil {
			return err
		}
	}
	if snap.CallerEntry == nil {
		return fmt.Errorf("%w: no caller entry for %s", ErrMismatch, caller.UserID)
	}
	return compareEntry(*snap.CallerEntry, caller)
}

func compareEntry(got model.RankedEntry, want ExpectedEntry) error {
	switch {
	case got.UserID != want.UserID:
		return fmt.Errorf("%w: rank %d is %s, want %s", ErrMismatch, want.Rank, got.UserID, want.UserID)
	case got.Rank != want.Rank:
		return fmt.Errorf("%w: %s ranked %d, want %d", ErrMismatch, want.UserID, got.Rank, want.Rank)
	case got.Score != want.Score:
		return fmt.Errorf("%w: %s scored %d, want %d", ErrMismatch, want.UserID, got.Score, want.Score)
	case got.BadgeCount != want.Badges || got.SubmissionCount != want.Submissions:
		return fmt.Errorf("%w: %s counts %d/%d, want %d/%d", ErrMismatch, want.UserID,
			got.BadgeCount, got.SubmissionCount, want.Badges, want.Submissions)
	case got.DisplayName != want.DisplayName:
		return fmt.Errorf("%w: %s named %q, want %q", ErrMismatch, want.UserID, got.DisplayName, want.DisplayName)
	}
	return nil
}
