// Package aggregate turns raw achievement facts into one ScoreRecord per
// registered user.
package aggregate

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/questrank/internal/adapters/repository"
	"github.com/okian/questrank/internal/domain/model"
	"github.com/okian/questrank/internal/domain/scoring"
	"github.com/okian/questrank/pkg/logger"
	"github.com/okian/questrank/pkg/metrics"
	"github.com/okian/questrank/pkg/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Store read names, used as metric and span labels.
const (
	readProfiles    = "profiles"
	readBadges      = "badges"
	readSubmissions = "submissions"
)

// Aggregator reads the store and builds score records. It holds no state
// between calls.
type Aggregator struct {
	reader repository.AchievementReader
	log    logger.Logger
	tracer trace.Tracer
}

// Option applies a configuration option to the Aggregator.
type Option func(*Aggregator)

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.log = l
		}
	}
}

// New returns an Aggregator reading from reader.
func New(reader repository.AchievementReader, opts ...Option) *Aggregator {
	a := &Aggregator{
		reader: reader,
		log:    logger.Nop(),
		tracer: tracing.Tracer("aggregate"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Aggregate returns one record per profile with counts restricted to scope.
// The three store reads run concurrently; the first failure cancels the rest.
func (a *Aggregator) Aggregate(ctx context.Context, scope model.Scope) (map[string]model.ScoreRecord, error) {
	ctx, span := a.tracer.Start(ctx, "aggregate.Aggregate",
		trace.WithAttributes(attribute.String("period", string(scope.Period))))
	defer span.End()
	start := time.Now()

	var (
		profiles    []model.Profile
		badges      map[string]int
		submissions map[string]int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.read(gctx, readProfiles, func(ctx context.Context) (err error) {
			profiles, err = a.reader.ListProfiles(ctx)
			return err
		})
	})
	g.Go(func() error {
		return a.read(gctx, readBadges, func(ctx context.Context) (err error) {
			badges, err = a.reader.CountBadgesByUser(ctx, scope)
			return err
		})
	})
	g.Go(func() error {
		return a.read(gctx, readSubmissions, func(ctx context.Context) (err error) {
			submissions, err = a.reader.CountSubmissionsByUser(ctx, scope)
			return err
		})
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store read failed")
		return nil, err
	}

	records, err := a.merge(ctx, profiles, badges, submissions)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "malformed store result")
		return nil, err
	}

	span.SetAttributes(attribute.Int("population", len(records)))
	metrics.RecordAggregationLatency(string(scope.Period), float64(time.Since(start).Milliseconds()))
	return records, nil
}

func (a *Aggregator) read(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := a.tracer.Start(ctx, "store."+name)
	defer span.End()
	start := time.Now()

	err := fn(ctx)
	metrics.RecordStoreRead(name, float64(time.Since(start).Milliseconds()), err != nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("read %s: %w: %w", name, ErrDataUnavailable, err)
	}
	return nil
}

func (a *Aggregator) merge(ctx context.Context, profiles []model.Profile, badges, submissions map[string]int) (map[string]model.ScoreRecord, error) {
	records := make(map[string]model.ScoreRecord, len(profiles))
	for _, p := range profiles {
		if p.UserID == "" {
			return nil, malformed("empty_user_id", "profile with empty user id")
		}
		if _, dup := records[p.UserID]; dup {
			return nil, malformed("duplicate_profile", fmt.Sprintf("duplicate profile %q", p.UserID))
		}
		records[p.UserID] = model.ScoreRecord{UserID: p.UserID}
	}

	if err := a.checkCounts(ctx, readBadges, badges, records); err != nil {
		return nil, err
	}
	if err := a.checkCounts(ctx, readSubmissions, submissions, records); err != nil {
		return nil, err
	}

	for _, p := range profiles {
		records[p.UserID] = scoring.NewRecord(p, badges[p.UserID], submissions[p.UserID])
	}
	return records, nil
}

// checkCounts rejects malformed counts and reports counts for users without
// a profile. Those orphan facts are dropped.
func (a *Aggregator) checkCounts(ctx context.Context, kind string, counts map[string]int, records map[string]model.ScoreRecord) error {
	orphans := 0
	for userID, n := range counts {
		if userID == "" {
			return malformed("empty_user_id", kind+" count with empty user id")
		}
		if n < 0 {
			return malformed("negative_count", fmt.Sprintf("negative %s count %d for %q", kind, n, userID))
		}
		if _, ok := records[userID]; !ok {
			orphans++
		}
	}
	if orphans > 0 {
		metrics.RecordOrphanFacts(kind, orphans)
		a.log.Warn(ctx, "dropping counts for users without a profile",
			logger.String("kind", kind),
			logger.Int("users", orphans),
		)
	}
	return nil
}

func malformed(reason, detail string) error {
	metrics.RecordMalformedResult(reason)
	return fmt.Errorf("%s: %w", detail, ErrDataUnavailable)
}
