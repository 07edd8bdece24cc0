package aggregate_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/questrank/internal/adapters/repository"
	"github.com/okian/questrank/internal/domain/aggregate"
	"github.com/okian/questrank/internal/domain/model"
	"github.com/okian/questrank/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type stubReader struct {
	profiles    []model.Profile
	badges      map[string]int
	submissions map[string]int
	err         error
	block       bool
	lastScope   model.Scope
}

func (s *stubReader) wait(ctx context.Context) error {
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (s *stubReader) ListProfiles(ctx context.Context) ([]model.Profile, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	return s.profiles, nil
}

func (s *stubReader) CountBadgesByUser(ctx context.Context, scope model.Scope) (map[string]int, error) {
	s.lastScope = scope
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	return s.badges, nil
}

func (s *stubReader) CountSubmissionsByUser(ctx context.Context, _ model.Scope) (map[string]int, error) {
	if s.err != nil {
		return nil, s.err
	}
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	return s.submissions, nil
}

func abc() *stubReader {
	return &stubReader{
		profiles: []model.Profile{
			{UserID: "alice", DisplayName: "Alice"},
			{UserID: "bob", DisplayName: "Bob"},
			{UserID: "carol", DisplayName: ""},
		},
		badges:      map[string]int{"alice": 2, "carol": 5},
		submissions: map[string]int{"alice": 5, "carol": 1},
	}
}

func TestAggregate(t *testing.T) {
	Convey("Given alice, bob and carol in the store", t, func() {
		ctx := context.Background()
		reader := abc()
		agg := aggregate.New(reader)

		Convey("When aggregating all time", func() {
			records, err := agg.Aggregate(ctx, model.ScopeAt(model.PeriodAll, time.Now()))

			Convey("Then each profile gets exactly one record", func() {
				So(err, ShouldBeNil)
				So(len(records), ShouldEqual, 3)
				So(records["alice"].BadgeCount, ShouldEqual, 2)
				So(records["alice"].SubmissionCount, ShouldEqual, 5)
				So(records["carol"].BadgeCount, ShouldEqual, 5)
			})

			Convey("And a user without facts has zero counts", func() {
				So(records["bob"].BadgeCount, ShouldEqual, 0)
				So(records["bob"].SubmissionCount, ShouldEqual, 0)
				So(records["bob"].DisplayName, ShouldEqual, "Bob")
			})

			Convey("And an empty name falls back to Anonymous", func() {
				So(records["carol"].DisplayName, ShouldEqual, model.AnonymousName)
			})
		})

		Convey("When aggregating a week", func() {
			scope := model.ScopeAt(model.PeriodWeek, time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC))
			_, err := agg.Aggregate(ctx, scope)

			Convey("Then the scope reaches the store unchanged", func() {
				So(err, ShouldBeNil)
				So(reader.lastScope, ShouldResemble, scope)
			})
		})

		Convey("When called twice", func() {
			a, errA := agg.Aggregate(ctx, model.Scope{})
			b, errB := agg.Aggregate(ctx, model.Scope{})

			Convey("Then the results are equal", func() {
				So(errA, ShouldBeNil)
				So(errB, ShouldBeNil)
				So(b, ShouldResemble, a)
			})
		})
	})

	Convey("Given counts for a user without a profile", t, func() {
		core, logs := observer.New(zapcore.DebugLevel)
		reader := abc()
		reader.badges["ghost"] = 4
		agg := aggregate.New(reader, aggregate.WithLogger(logger.New(zap.New(core))))

		records, err := agg.Aggregate(context.Background(), model.Scope{})

		Convey("Then the orphan counts are dropped and logged", func() {
			So(err, ShouldBeNil)
			So(records, ShouldNotContainKey, "ghost")
			So(len(records), ShouldEqual, 3)
			dropped := logs.FilterMessage("dropping counts for users without a profile").All()
			So(len(dropped), ShouldEqual, 1)
			So(dropped[0].Level, ShouldEqual, zapcore.WarnLevel)
			So(dropped[0].ContextMap()["kind"], ShouldEqual, "badges")
		})
	})

	Convey("Given a failing store", t, func() {
		reader := abc()
		reader.err = errors.New("connection refused")
		records, err := aggregate.New(reader).Aggregate(context.Background(), model.Scope{})

		Convey("Then the failure is DataUnavailable and keeps its cause", func() {
			So(records, ShouldBeNil)
			So(errors.Is(err, aggregate.ErrDataUnavailable), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "connection refused")
		})
	})

	Convey("Given malformed store results", t, func() {
		ctx := context.Background()

		Convey("When a profile has an empty id", func() {
			reader := abc()
			reader.profiles = append(reader.profiles, model.Profile{})
			_, err := aggregate.New(reader).Aggregate(ctx, model.Scope{})
			So(errors.Is(err, aggregate.ErrDataUnavailable), ShouldBeTrue)
		})

		Convey("When a profile repeats", func() {
			reader := abc()
			reader.profiles = append(reader.profiles, model.Profile{UserID: "bob"})
			_, err := aggregate.New(reader).Aggregate(ctx, model.Scope{})
			So(errors.Is(err, aggregate.ErrDataUnavailable), ShouldBeTrue)
		})

		Convey("When a count is negative", func() {
			reader := abc()
			reader.submissions["bob"] = -1
			_, err := aggregate.New(reader).Aggregate(ctx, model.Scope{})
			So(errors.Is(err, aggregate.ErrDataUnavailable), ShouldBeTrue)
		})
	})

	Convey("Given a cancelled caller", t, func() {
		reader := abc()
		reader.block = true
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := aggregate.New(reader).Aggregate(ctx, model.Scope{})

		Convey("Then every read is abandoned", func() {
			So(errors.Is(err, aggregate.ErrDataUnavailable), ShouldBeTrue)
			So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
		})
	})

	Convey("Given a real memory store", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		now := time.Now()
		So(store.UpsertProfile(ctx, model.Profile{UserID: "u1", DisplayName: "One"}), ShouldBeNil)
		for i := 0; i < 3; i++ {
			So(store.RecordFact(ctx, model.Fact{UserID: "u1", Kind: model.BadgeEarned, OccurredAt: now}), ShouldBeNil)
		}
		for i := 0; i < 7; i++ {
			So(store.RecordFact(ctx, model.Fact{UserID: "u1", Kind: model.SubmissionMade, OccurredAt: now}), ShouldBeNil)
		}

		records, err := aggregate.New(store).Aggregate(ctx, model.ScopeAt(model.PeriodAll, now))

		Convey("Then counts come through and verified mirrors total", func() {
			So(err, ShouldBeNil)
			So(records["u1"].BadgeCount, ShouldEqual, 3)
			So(records["u1"].SubmissionCount, ShouldEqual, 7)
			So(records["u1"].VerifiedSubmissionCount, ShouldEqual, 7)
		})
	})
}
