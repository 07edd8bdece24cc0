// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"strings"
	"time"
)

// AnonymousName is shown for profiles without a display name.
const AnonymousName = "Anonymous"

// Period selects which facts count toward a leaderboard.
type Period string

// Supported periods.
const (
	PeriodAll   Period = "all"
	PeriodMonth Period = "month"
	PeriodWeek  Period = "week"
)

// Lookback windows for the rolling periods.
const (
	MonthLookback = 30 * 24 * time.Hour
	WeekLookback  = 7 * 24 * time.Hour
)

// ParsePeriod maps a query value to a Period. Empty input means PeriodAll.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PeriodAll, nil
	case PeriodAll, PeriodMonth, PeriodWeek:
		return p, nil
	default:
		return "", fmt.Errorf("unknown period %q", s)
	}
}

// Scope is a resolved Period: facts with OccurredAt >= Since count.
// A zero Since means no lower bound.
type Scope struct {
	Period Period
	Since  time.Time
}

// ScopeAt resolves p relative to now.
func ScopeAt(p Period, now time.Time) Scope {
	switch p {
	case PeriodMonth:
		return Scope{Period: p, Since: now.Add(-MonthLookback).UTC()}
	case PeriodWeek:
		return Scope{Period: p, Since: now.Add(-WeekLookback).UTC()}
	default:
		return Scope{Period: PeriodAll}
	}
}

// Bounded reports whether the scope has a lower time bound.
func (s Scope) Bounded() bool {
	return !s.Since.IsZero()
}

// Contains reports whether a fact at t falls inside the scope.
func (s Scope) Contains(t time.Time) bool {
	return !s.Bounded() || !t.Before(s.Since)
}

// FactKind distinguishes the achievement facts that feed the score.
type FactKind string

// Fact kinds.
const (
	BadgeEarned    FactKind = "badge_earned"
	SubmissionMade FactKind = "submission_made"
)

// Valid reports whether k is a known kind.
func (k FactKind) Valid() bool {
	return k == BadgeEarned || k == SubmissionMade
}

// Fact is one immutable achievement record held by the achievement store.
type Fact struct {
	UserID     string
	Kind       FactKind
	OccurredAt time.Time
}

// Profile is a registered user as listed by the achievement store.
type Profile struct {
	UserID      string
	DisplayName string
	AvatarURL   string
}

// ScoreRecord aggregates one user's fact counts. The score is always derived
// from the counts, see Score.
type ScoreRecord struct {
	UserID                  string `json:"user_id"`
	DisplayName             string `json:"display_name"`
	AvatarURL               string `json:"avatar_url,omitempty"`
	BadgeCount              int    `json:"badge_count"`
	SubmissionCount         int    `json:"submission_count"`
	VerifiedSubmissionCount int    `json:"verified_submission_count"`
}

// RankedEntry is a ScoreRecord placed in the total order.
type RankedEntry struct {
	ScoreRecord
	Score int    `json:"score"`
	Rank  int    `json:"rank"`
	Tier  string `json:"tier,omitempty"`
}

// Snapshot is the immutable answer to one leaderboard query.
type Snapshot struct {
	Period         Period        `json:"period"`
	WindowSize     int           `json:"window_size"`
	Entries        []RankedEntry `json:"entries"`
	PopulationSize int           `json:"population_size"`
	CallerEntry    *RankedEntry  `json:"caller_entry"`
	GeneratedAt    time.Time     `json:"generated_at"`
}

// FactChange notifies that the achievement store gained or lost a fact.
type FactChange struct {
	EventID    string
	UserID     string
	Kind       FactKind
	OccurredAt time.Time
	Source     string
}
