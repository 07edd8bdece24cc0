// Package ranking imposes the total order over score records and answers
// window and per-user queries from that single ordering.
//
// Ordering: score DESC, then userID ASC. Every user gets a distinct rank;
// rank = position in the sorted population + 1.
package ranking

import (
	"fmt"
	"sort"
	"time"

	"github.com/okian/questrank/internal/domain/model"
	"github.com/okian/questrank/internal/domain/scoring"
)

// Podium tier labels.
const (
	TierChampion   = "Champion"
	TierRunnerUp   = "Runner-up"
	TierThirdPlace = "Third Place"
)

// Tier returns the display tier for rank, or "" below the podium.
func Tier(rank int) string {
	switch rank {
	case 1:
		return TierChampion
	case 2:
		return TierRunnerUp
	case 3:
		return TierThirdPlace
	default:
		return ""
	}
}

// less returns true if (aScore, aID) should appear before (bScore, bID).
func less(aScore int, aID string, bScore int, bID string) bool {
	if aScore != bScore {
		return aScore > bScore // higher score ranks earlier
	}
	return aID < bID // tie-breaker by id asc
}

// Standings is the full population in rank order for one window size. It is
// immutable after construction and safe for concurrent use; every query
// result is projected from it with Snapshot.
type Standings struct {
	period     model.Period
	windowSize int
	computedAt time.Time
	ranked     []model.RankedEntry
	index      map[string]int
}

// NewStandings sorts records once and assigns dense ranks. A negative
// windowSize or a malformed record set fails with ErrInvalidArgument.
func NewStandings(records []model.ScoreRecord, windowSize int) (*Standings, error) {
	if windowSize < 0 {
		return nil, fmt.Errorf("window size %d: %w", windowSize, ErrInvalidArgument)
	}

	ranked := make([]model.RankedEntry, len(records))
	index := make(map[string]int, len(records))
	for i, r := range records {
		if r.UserID == "" {
			return nil, fmt.Errorf("record %d has empty user id: %w", i, ErrInvalidArgument)
		}
		if r.BadgeCount < 0 || r.SubmissionCount < 0 {
			return nil, fmt.Errorf("record %q has negative counts: %w", r.UserID, ErrInvalidArgument)
		}
		if _, dup := index[r.UserID]; dup {
			return nil, fmt.Errorf("duplicate record for %q: %w", r.UserID, ErrInvalidArgument)
		}
		index[r.UserID] = i
		ranked[i] = model.RankedEntry{ScoreRecord: r, Score: scoring.Score(r)}
	}

	sort.Slice(ranked, func(i, j int) bool {
		return less(ranked[i].Score, ranked[i].UserID, ranked[j].Score, ranked[j].UserID)
	})

	for i := range ranked {
		ranked[i].Rank = i + 1
		ranked[i].Tier = Tier(ranked[i].Rank)
		index[ranked[i].UserID] = i
	}

	return &Standings{windowSize: windowSize, ranked: ranked, index: index}, nil
}

// Restore rebuilds Standings from an already ranked population, e.g. one
// read back from a cache. The entries must be in rank order with dense ranks
// 1..P and scores matching their counts.
func Restore(period model.Period, windowSize int, computedAt time.Time, ranked []model.RankedEntry) (*Standings, error) {
	if windowSize < 0 {
		return nil, fmt.Errorf("window size %d: %w", windowSize, ErrInvalidArgument)
	}
	index := make(map[string]int, len(ranked))
	out := make([]model.RankedEntry, len(ranked))
	for i, e := range ranked {
		if e.Rank != i+1 {
			return nil, fmt.Errorf("entry %q has rank %d at position %d: %w", e.UserID, e.Rank, i+1, ErrCorruptStandings)
		}
		if e.Score != scoring.Score(e.ScoreRecord) {
			return nil, fmt.Errorf("entry %q score %d does not match its counts: %w", e.UserID, e.Score, ErrCorruptStandings)
		}
		if i > 0 && !less(ranked[i-1].Score, ranked[i-1].UserID, e.Score, e.UserID) {
			return nil, fmt.Errorf("entry %q out of order: %w", e.UserID, ErrCorruptStandings)
		}
		if _, dup := index[e.UserID]; dup {
			return nil, fmt.Errorf("duplicate entry %q: %w", e.UserID, ErrCorruptStandings)
		}
		index[e.UserID] = i
		e.Tier = Tier(e.Rank)
		out[i] = e
	}
	return &Standings{period: period, windowSize: windowSize, computedAt: computedAt, ranked: out, index: index}, nil
}

// WithMeta returns a copy of s labelled with the period and computation time.
// The ranked population is shared, it is never mutated.
func (s *Standings) WithMeta(period model.Period, computedAt time.Time) *Standings {
	c := *s
	c.period = period
	c.computedAt = computedAt
	return &c
}

// Period returns the period the standings were computed for.
func (s *Standings) Period() model.Period { return s.period }

// WindowSize returns the configured window size.
func (s *Standings) WindowSize() int { return s.windowSize }

// ComputedAt returns when the underlying facts were read.
func (s *Standings) ComputedAt() time.Time { return s.computedAt }

// PopulationSize returns the number of ranked users.
func (s *Standings) PopulationSize() int { return len(s.ranked) }

// Ranked returns a copy of the full ranked population.
func (s *Standings) Ranked() []model.RankedEntry {
	out := make([]model.RankedEntry, len(s.ranked))
	copy(out, s.ranked)
	return out
}

// Window returns a copy of the top windowSize entries, or the whole
// population when it is smaller.
func (s *Standings) Window() []model.RankedEntry {
	n := s.windowSize
	if n > len(s.ranked) {
		n = len(s.ranked)
	}
	out := make([]model.RankedEntry, n)
	copy(out, s.ranked[:n])
	return out
}

// Lookup returns userID's entry from the full population, not just the window.
func (s *Standings) Lookup(userID string) (model.RankedEntry, bool) {
	i, ok := s.index[userID]
	if !ok {
		return model.RankedEntry{}, false
	}
	return s.ranked[i], true
}

// InWindow reports whether rank falls inside the window.
func (s *Standings) InWindow(rank int) bool {
	return rank >= 1 && rank <= s.windowSize
}

// Snapshot projects the standings for one caller. An empty callerID or a
// caller without a record yields a nil CallerEntry.
func (s *Standings) Snapshot(callerID string) model.Snapshot {
	snap := model.Snapshot{
		Period:         s.period,
		WindowSize:     s.windowSize,
		Entries:        s.Window(),
		PopulationSize: len(s.ranked),
		GeneratedAt:    s.computedAt,
	}
	if callerID == "" {
		return snap
	}
	if entry, ok := s.Lookup(callerID); ok {
		snap.CallerEntry = &entry
	}
	return snap
}

// BuildSnapshot ranks records and returns the window plus the caller's entry,
// both taken from the same ordering.
func BuildSnapshot(records []model.ScoreRecord, windowSize int, callerID string) (model.Snapshot, error) {
	s, err := NewStandings(records, windowSize)
	if err != nil {
		return model.Snapshot{}, err
	}
	return s.Snapshot(callerID), nil
}

// Records flattens an aggregation result. Order does not matter to ranking.
func Records(byUser map[string]model.ScoreRecord) []model.ScoreRecord {
	out := make([]model.ScoreRecord, 0, len(byUser))
	for _, r := range byUser {
		out = append(out, r)
	}
	return out
}
