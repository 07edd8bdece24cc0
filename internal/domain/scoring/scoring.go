// Package scoring defines how fact counts turn into leaderboard points.
package scoring

import "github.com/okian/questrank/internal/domain/model"

// Point values per fact.
const (
	PointsPerBadge      = 10
	PointsPerSubmission = 2
)

// Score returns the points for r. It is the only place the formula lives;
// nothing stores a score next to the counts it is derived from.
func Score(r model.ScoreRecord) int {
	return r.BadgeCount*PointsPerBadge + r.SubmissionCount*PointsPerSubmission
}

// VerifiedSubmissions returns how many of total submissions count as
// verified. Every submission is verified until a verification predicate
// exists.
func VerifiedSubmissions(total int) int {
	return total
}

// NewRecord builds the ScoreRecord for a profile from its fact counts.
func NewRecord(p model.Profile, badges, submissions int) model.ScoreRecord {
	name := p.DisplayName
	if name == "" {
		name = model.AnonymousName
	}
	return model.ScoreRecord{
		UserID:                  p.UserID,
		DisplayName:             name,
		AvatarURL:               p.AvatarURL,
		BadgeCount:              badges,
		SubmissionCount:         submissions,
		VerifiedSubmissionCount: VerifiedSubmissions(submissions),
	}
}
