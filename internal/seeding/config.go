package seeding

import (
	"context"
	"time"

	"github.com/okian/questrank/internal/domain/model"
	"github.com/okian/questrank/pkg/logger"
)

// Config holds configuration for a seeding run.
type Config struct {
	BaseURL        string        // Base URL of the service to verify; empty skips verification
	Users          int           // Number of profiles to generate
	MaxBadges      int           // Upper bound of badges per user
	MaxSubmissions int           // Upper bound of submissions per user
	Days           int           // Facts are spread over this many days back from now
	Workers        int           // Concurrent store writers and HTTP checkers
	Window         int           // Leaderboard window to verify
	Timeout        time.Duration // HTTP request timeout
	Settle         time.Duration // How long to wait for the service to reflect the seed
	Secret         string        // JWT secret used to sign the caller token; empty sends X-User-ID
	Verbose        bool          // Log every rank check
	Publisher      FactPublisher // Announces the seed on the fact channel; nil posts to /facts/changed
	Log            logger.Logger
}

// FactPublisher sends a fact-change notification and reports how many
// subscribers received it.
type FactPublisher interface {
	Publish(ctx context.Context, c model.FactChange) (int64, error)
}

func (c *Config) withDefaults() *Config {
	out := *c
	if out.Users <= 0 {
		out.Users = 200
	}
	if out.MaxBadges < 0 {
		out.MaxBadges = 0
	}
	if out.MaxSubmissions < 0 {
		out.MaxSubmissions = 0
	}
	if out.Days <= 0 {
		out.Days = 60
	}
	if out.Workers <= 0 {
		out.Workers = 4
	}
	if out.Window < 0 {
		out.Window = 50
	}
	if out.Timeout <= 0 {
		out.Timeout = 10 * time.Second
	}
	if out.Settle <= 0 {
		out.Settle = 30 * time.Second
	}
	if out.Log == nil {
		out.Log = logger.Nop()
	}
	return &out
}

// Dataset is a generated population.
type Dataset struct {
	Profiles []model.Profile
	Facts    []model.Fact
}

// Stats holds run statistics.
type Stats struct {
	ProfilesWritten int
	FactsWritten    int
	RanksChecked    int
	StartTime       time.Time
	Duration        time.Duration
}
