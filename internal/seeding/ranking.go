package seeding

import (
	"sort"
	"time"

	"github.com/okian/questrank/internal/domain/model"
)

// ExpectedEntry is one row of the ranking the service should produce.
type ExpectedEntry struct {
	UserID      string
	DisplayName string
	Badges      int
	Submissions int
	Score       int
	Rank        int
}

// Expected ranks ds for period at now without going through the engine:
// 10 points per badge, 2 per submission, score descending then user id.
func Expected(ds Dataset, period model.Period, now time.Time) []ExpectedEntry {
	scope := model.ScopeAt(period, now)
	byUser := make(map[string]*ExpectedEntry, len(ds.Profiles))
	out := make([]ExpectedEntry, 0, len(ds.Profiles))
	for _, p := range ds.Profiles {
		name := p.DisplayName
		if name == "" {
			name = model.AnonymousName
		}
		out = append(out, ExpectedEntry{UserID: p.UserID, DisplayName: name})
	}
	for i := range out {
		byUser[out[i].UserID] = &out[i]
	}
	for _, f := range ds.Facts {
		e, ok := byUser[f.UserID]
		if !ok || !scope.Contains(f.OccurredAt) {
			continue
		}
		switch f.Kind {
		case model.BadgeEarned:
			e.Badges++
		case model.SubmissionMade:
			e.Submissions++
		}
	}
	for i := range out {
		out[i].Score = out[i].Badges*10 + out[i].Submissions*2
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].UserID < out[j].UserID
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}
