package seeding

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/okian/questrank/internal/domain/model"
)

// One in anonymousEvery profiles has no display name.
const anonymousEvery = 7

var names = []string{
	"Ada", "Grace", "Linus", "Barbara", "Ken", "Margaret", "Dennis", "Frances",
	"Edsger", "Radia", "Guido", "Hedy", "Donald", "Sophie", "Alan", "Katherine",
}

// randomInt returns a uniform value in [0, n) using crypto/rand.
func randomInt(n int) int {
	if n <= 1 {
		return 0
	}
	v, _ := rand.Int(rand.Reader, big.NewInt(int64(n)))
	return int(v.Int64())
}

// Generate builds cfg.Users profiles with random badge and submission
// histories. Fact times sit at noon offsets from now, so they never fall
// within hours of a week or month boundary.
func Generate(ctx context.Context, cfg *Config, now time.Time) (Dataset, error) {
	cfg = cfg.withDefaults()
	ds := Dataset{Profiles: make([]model.Profile, 0, cfg.Users)}

	for i := 0; i < cfg.Users; i++ {
		if err := ctx.Err(); err != nil {
			return Dataset{}, fmt.Errorf("generate: %w", err)
		}
		p := model.Profile{UserID: uuid.NewString()}
		if i%anonymousEvery != 0 {
			p.DisplayName = fmt.Sprintf("%s %d", names[randomInt(len(names))], i)
		}
		ds.Profiles = append(ds.Profiles, p)

		for b := randomInt(cfg.MaxBadges + 1); b > 0; b-- {
			ds.Facts = append(ds.Facts, model.Fact{UserID: p.UserID, Kind: model.BadgeEarned, OccurredAt: factTime(now, cfg.Days)})
		}
		for s := randomInt(cfg.MaxSubmissions + 1); s > 0; s-- {
			ds.Facts = append(ds.Facts, model.Fact{UserID: p.UserID, Kind: model.SubmissionMade, OccurredAt: factTime(now, cfg.Days)})
		}
	}
	return ds, nil
}

func factTime(now time.Time, days int) time.Time {
	back := time.Duration(randomInt(days))*24*time.Hour + 12*time.Hour
	return now.Add(-back).UTC()
}
