package repository_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/questrank/internal/adapters/repository"
	"github.com/okian/questrank/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

var now = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

func seed(ctx context.Context, s repository.Store) {
	for _, p := range []model.Profile{
		{UserID: "alice", DisplayName: "Alice", AvatarURL: "https://cdn.example/alice.png"},
		{UserID: "bob"},
		{UserID: "carol", DisplayName: "Carol"},
	} {
		So(s.UpsertProfile(ctx, p), ShouldBeNil)
	}
	facts := []model.Fact{
		{UserID: "alice", Kind: model.BadgeEarned, OccurredAt: now.Add(-2 * time.Hour)},
		{UserID: "alice", Kind: model.BadgeEarned, OccurredAt: now.Add(-40 * 24 * time.Hour)},
		{UserID: "alice", Kind: model.SubmissionMade, OccurredAt: now.Add(-model.WeekLookback)},
		{UserID: "carol", Kind: model.SubmissionMade, OccurredAt: now.Add(-10 * 24 * time.Hour)},
		{UserID: "ghost", Kind: model.BadgeEarned, OccurredAt: now},
	}
	for _, f := range facts {
		So(s.RecordFact(ctx, f), ShouldBeNil)
	}
}

// storeContract runs the same assertions against every driver.
func storeContract(open func() repository.Store) {
	ctx := context.Background()
	s := open()
	Reset(func() { _ = s.Close() })
	seed(ctx, s)

	Convey("Then every profile is listed", func() {
		profiles, err := s.ListProfiles(ctx)
		So(err, ShouldBeNil)
		So(len(profiles), ShouldEqual, 3)
		byID := map[string]model.Profile{}
		for _, p := range profiles {
			byID[p.UserID] = p
		}
		So(byID["alice"].AvatarURL, ShouldEqual, "https://cdn.example/alice.png")
		So(byID["bob"].DisplayName, ShouldEqual, "")
	})

	Convey("Then all-time counts include every fact", func() {
		badges, err := s.CountBadgesByUser(ctx, model.ScopeAt(model.PeriodAll, now))
		So(err, ShouldBeNil)
		So(badges, ShouldResemble, map[string]int{"alice": 2, "ghost": 1})

		subs, err := s.CountSubmissionsByUser(ctx, model.ScopeAt(model.PeriodAll, now))
		So(err, ShouldBeNil)
		So(subs, ShouldResemble, map[string]int{"alice": 1, "carol": 1})
	})

	Convey("Then the week scope keeps facts on its lower bound", func() {
		week := model.ScopeAt(model.PeriodWeek, now)
		badges, err := s.CountBadgesByUser(ctx, week)
		So(err, ShouldBeNil)
		So(badges, ShouldResemble, map[string]int{"alice": 1, "ghost": 1})

		subs, err := s.CountSubmissionsByUser(ctx, week)
		So(err, ShouldBeNil)
		So(subs, ShouldResemble, map[string]int{"alice": 1})
	})

	Convey("Then the month scope drops older facts", func() {
		subs, err := s.CountSubmissionsByUser(ctx, model.ScopeAt(model.PeriodMonth, now))
		So(err, ShouldBeNil)
		So(subs, ShouldResemble, map[string]int{"alice": 1, "carol": 1})
	})

	Convey("Then upserting a profile replaces it", func() {
		So(s.UpsertProfile(ctx, model.Profile{UserID: "bob", DisplayName: "Bob"}), ShouldBeNil)
		profiles, err := s.ListProfiles(ctx)
		So(err, ShouldBeNil)
		So(len(profiles), ShouldEqual, 3)
	})

	Convey("Then malformed writes are rejected", func() {
		err := s.RecordFact(ctx, model.Fact{UserID: "alice", Kind: "like", OccurredAt: now})
		So(errors.Is(err, repository.ErrInvalidRecord), ShouldBeTrue)
		err = s.RecordFact(ctx, model.Fact{UserID: "", Kind: model.BadgeEarned, OccurredAt: now})
		So(errors.Is(err, repository.ErrInvalidRecord), ShouldBeTrue)
		err = s.UpsertProfile(ctx, model.Profile{UserID: " "})
		So(errors.Is(err, repository.ErrInvalidRecord), ShouldBeTrue)
	})
}

func TestMemoryStore(t *testing.T) {
	Convey("Given a seeded memory store", t, func() {
		storeContract(func() repository.Store { return repository.NewMemoryStore() })
	})

	Convey("Given a cancelled context", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := repository.NewMemoryStore().ListProfiles(ctx)
		So(errors.Is(err, context.Canceled), ShouldBeTrue)
	})
}

func TestSQLiteStore(t *testing.T) {
	Convey("Given a seeded sqlite file store", t, func() {
		storeContract(func() repository.Store {
			s, err := repository.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "questrank.db"))
			So(err, ShouldBeNil)
			return s
		})
	})

	Convey("Given a seeded in-memory sqlite store with spaced table names", t, func() {
		storeContract(func() repository.Store {
			s, err := repository.OpenSQLite(context.Background(), ":memory:", repository.WithTables(repository.Tables{
				Profiles:    "profiles",
				Badges:      "User Badges",
				Submissions: "Submissions",
			}))
			So(err, ShouldBeNil)
			return s
		})
	})

	Convey("Given bad sqlite configuration", t, func() {
		_, err := repository.OpenSQLite(context.Background(), "")
		So(errors.Is(err, repository.ErrNotConfigured), ShouldBeTrue)

		_, err = repository.OpenSQLite(context.Background(), ":memory:", repository.WithTables(repository.Tables{
			Profiles: "p; DROP TABLE x", Badges: "b", Submissions: "s",
		}))
		So(errors.Is(err, repository.ErrInvalidTable), ShouldBeTrue)
	})
}

func TestOpen(t *testing.T) {
	Convey("Given driver names", t, func() {
		ctx := context.Background()

		s, err := repository.Open(ctx, repository.DriverMemory, "")
		So(err, ShouldBeNil)
		So(s, ShouldHaveSameTypeAs, &repository.MemoryStore{})

		s, err = repository.Open(ctx, repository.DriverSQLite, ":memory:")
		So(err, ShouldBeNil)
		So(s.Close(), ShouldBeNil)

		_, err = repository.Open(ctx, "mongo", "")
		So(errors.Is(err, repository.ErrUnknownDriver), ShouldBeTrue)

		_, err = repository.Open(ctx, repository.DriverPostgres, "")
		So(errors.Is(err, repository.ErrNotConfigured), ShouldBeTrue)
	})
}
