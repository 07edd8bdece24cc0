// Package service answers leaderboard queries and reacts to fact-change
// notifications. It implements the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/okian/questrank/internal/adapters/cache"
	eventqueue "github.com/okian/questrank/internal/adapters/mq/queue"
	workerpool "github.com/okian/questrank/internal/adapters/mq/worker"
	"github.com/okian/questrank/internal/adapters/repository"
	"github.com/okian/questrank/internal/domain/aggregate"
	"github.com/okian/questrank/internal/domain/dedupe"
	"github.com/okian/questrank/internal/domain/model"
	"github.com/okian/questrank/internal/domain/ranking"
	"github.com/okian/questrank/pkg/logger"
	"github.com/okian/questrank/pkg/metrics"
	"github.com/okian/questrank/pkg/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

// Default configuration.
const (
	DefaultWindowSize    = 50
	DefaultMaxWindowSize = 500

	defaultWorkerCount  = 2
	defaultQueueSize    = 1024
	defaultDedupeSize   = 50000
	defaultDedupeTTL    = 24 * time.Hour
	defaultBuildTimeout = 10 * time.Second
)

// Snapshot sources, used as a metric label.
const (
	sourceStore  = "store"
	sourceCache  = "cache"
	sourceShared = "shared"
)

// Outcome of a fact-change notification.
type Outcome string

// Notification outcomes.
const (
	Accepted  Outcome = "accepted"
	Duplicate Outcome = "duplicate"
)

// Service computes leaderboards from the achievement store.
type Service struct {
	mu sync.RWMutex

	aggregator *aggregate.Aggregator
	cache      cache.Cache
	builds     singleflight.Group

	deduper    dedupe.Deduper
	queue      *eventqueue.InMemoryQueue
	workerPool *workerpool.Pool

	workerCount   int
	queueSize     int
	dedupeSize    int
	dedupeTTL     time.Duration
	defaultWindow int
	maxWindow     int
	buildTimeout  time.Duration
	now           func() time.Time

	started bool

	logger logger.Logger
	tracer trace.Tracer
}

// New constructs a Service reading from reader.
func New(reader repository.AchievementReader, opts ...Option) *Service {
	s := &Service{
		workerCount:   defaultWorkerCount,
		queueSize:     defaultQueueSize,
		dedupeSize:    defaultDedupeSize,
		dedupeTTL:     defaultDedupeTTL,
		defaultWindow: DefaultWindowSize,
		maxWindow:     DefaultMaxWindowSize,
		buildTimeout:  defaultBuildTimeout,
		now:           time.Now,
		logger:        logger.Nop(),
		tracer:        tracing.Tracer("service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.aggregator = aggregate.New(reader, aggregate.WithLogger(s.logger.Named("aggregate")))
	return s
}

// Start launches the notification pipeline: dedupe, queue and workers.
// Queries work without it.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.deduper = dedupe.NewInMemoryDeduper(
		dedupe.WithMaxSize(s.dedupeSize),
		dedupe.WithTTL(s.dedupeTTL),
	)
	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
	s.workerPool = workerpool.NewPool(s.workerCount, s.queue, s,
		workerpool.WithLogger(s.logger.Named("worker")))
	s.workerPool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "leaderboard service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.String("cache", s.cacheBackend()),
	)
	return nil
}

// Stop drains queued notifications and stops the workers.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	if err := s.workerPool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool shutdown", logger.Error(err))
	}
	s.started = false
	s.logger.Info(ctx, "leaderboard service stopped")
}

// DefaultWindowSize returns the window used when a query does not name one.
func (s *Service) DefaultWindowSize() int { return s.defaultWindow }

// MaxWindowSize returns the largest accepted window.
func (s *Service) MaxWindowSize() int { return s.maxWindow }

// GetLeaderboard returns the top windowSize entries for period plus the
// caller's own entry, both taken from one ranking of the full population.
// An empty callerID means an anonymous viewer.
func (s *Service) GetLeaderboard(ctx context.Context, period model.Period, windowSize int, callerID string) (model.Snapshot, error) {
	ctx, span := s.tracer.Start(ctx, "service.GetLeaderboard", trace.WithAttributes(
		attribute.String("period", string(period)),
		attribute.Int("window_size", windowSize),
	))
	defer span.End()
	start := time.Now()

	if err := s.validate(period, windowSize); err != nil {
		metrics.RecordInvalidArgument()
		span.SetStatus(codes.Error, err.Error())
		return model.Snapshot{}, err
	}

	st, source, err := s.standings(ctx, period, windowSize)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "standings unavailable")
		return model.Snapshot{}, err
	}

	snap := st.Snapshot(callerID)
	metrics.RecordSnapshot(string(period), source, float64(time.Since(start).Milliseconds()))
	metrics.UpdatePopulationSize(string(period), snap.PopulationSize)
	metrics.RecordCallerLookup(callerOutcome(st, callerID, snap.CallerEntry))
	span.SetAttributes(
		attribute.String("source", source),
		attribute.Int("population", snap.PopulationSize),
	)
	return snap, nil
}

// Rank returns userID's entry for period, wherever it falls in the ranking.
func (s *Service) Rank(ctx context.Context, period model.Period, userID string) (model.RankedEntry, error) {
	if strings.TrimSpace(userID) == "" {
		return model.RankedEntry{}, fmt.Errorf("empty user id: %w", ErrInvalidArgument)
	}
	if err := s.validate(period, s.defaultWindow); err != nil {
		return model.RankedEntry{}, err
	}
	// Share the standings of the default leaderboard view.
	st, _, err := s.standings(ctx, period, s.defaultWindow)
	if err != nil {
		return model.RankedEntry{}, err
	}
	entry, ok := st.Lookup(userID)
	if !ok {
		return model.RankedEntry{}, fmt.Errorf("%q: %w", userID, ErrNotFound)
	}
	return entry, nil
}

func (s *Service) validate(period model.Period, windowSize int) error {
	switch period {
	case model.PeriodAll, model.PeriodMonth, model.PeriodWeek:
	default:
		return fmt.Errorf("period %q: %w", period, ErrInvalidArgument)
	}
	if windowSize < 0 {
		return fmt.Errorf("window size %d is negative: %w", windowSize, ErrInvalidArgument)
	}
	if windowSize > s.maxWindow {
		return fmt.Errorf("window size %d exceeds %d: %w", windowSize, s.maxWindow, ErrInvalidArgument)
	}
	return nil
}

// standings returns the ranking for (period, windowSize), from the cache when
// possible. Cache failures fall back to a fresh build.
func (s *Service) standings(ctx context.Context, period model.Period, windowSize int) (*ranking.Standings, string, error) {
	if s.cache == nil {
		st, err := s.build(ctx, period, windowSize)
		return st, sourceStore, err
	}

	backend := s.cache.Backend()
	gen, err := s.cache.Generation(ctx)
	if err != nil {
		metrics.RecordCacheError(backend, "generation")
		s.logger.Warn(ctx, "cache generation unavailable, computing fresh", logger.Error(err))
		st, err := s.build(ctx, period, windowSize)
		return st, sourceStore, err
	}

	key := cache.Key{Period: period, WindowSize: windowSize}
	st, ok, err := s.cache.Get(ctx, gen, key)
	switch {
	case err != nil:
		metrics.RecordCacheError(backend, "get")
		s.logger.Warn(ctx, "cache read failed, computing fresh",
			logger.String("key", key.String()),
			logger.Error(err),
		)
	case ok:
		metrics.RecordCacheHit(backend)
		return st, sourceCache, nil
	default:
		metrics.RecordCacheMiss(backend)
	}

	// Concurrent misses share one build. The build outlives a single
	// cancelled waiter and is bounded by buildTimeout instead.
	flight := fmt.Sprintf("%d:%s", gen, key)
	ch := s.builds.DoChan(flight, func() (any, error) {
		bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.buildTimeout)
		defer cancel()
		st, err := s.build(bctx, period, windowSize)
		if err != nil {
			return nil, err
		}
		if err := s.cache.Set(bctx, gen, key, st); err != nil {
			metrics.RecordCacheError(backend, "set")
			s.logger.Warn(bctx, "cache write failed", logger.String("key", key.String()), logger.Error(err))
		}
		return st, nil
	})

	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("standings %s: %w", key, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, "", res.Err
		}
		source := sourceStore
		if res.Shared {
			metrics.RecordSharedBuild()
			source = sourceShared
		}
		return res.Val.(*ranking.Standings), source, nil
	}
}

func (s *Service) build(ctx context.Context, period model.Period, windowSize int) (*ranking.Standings, error) {
	now := s.now()
	records, err := s.aggregator.Aggregate(ctx, model.ScopeAt(period, now))
	if err != nil {
		s.logger.Error(ctx, "aggregation failed",
			logger.String("period", string(period)),
			logger.Error(err),
		)
		return nil, fmt.Errorf("aggregate %s: %w", period, err)
	}
	st, err := ranking.NewStandings(ranking.Records(records), windowSize)
	if err != nil {
		return nil, fmt.Errorf("rank %s: %w", period, err)
	}
	return st.WithMeta(period, now), nil
}

func callerOutcome(st *ranking.Standings, callerID string, entry *model.RankedEntry) string {
	switch {
	case callerID == "":
		return "anonymous"
	case entry == nil:
		return "absent"
	case st.InWindow(entry.Rank):
		return "in_window"
	default:
		return "outside_window"
	}
}

// HandleFactChange deduplicates a notification and queues it for the
// invalidation workers.
func (s *Service) HandleFactChange(ctx context.Context, c model.FactChange) (Outcome, error) {
	if strings.TrimSpace(c.EventID) == "" {
		return "", fmt.Errorf("empty event id: %w", ErrInvalidArgument)
	}
	if c.Kind != "" && !c.Kind.Valid() {
		return "", fmt.Errorf("fact kind %q: %w", c.Kind, ErrInvalidArgument)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return "", ErrNotStarted
	}

	if c.Source == "" {
		c.Source = "unknown"
	}
	metrics.RecordNotification(c.Source)
	if s.deduper.SeenAndRecord(ctx, c.EventID) {
		metrics.RecordNotificationDuplicate()
		s.logger.Debug(ctx, "duplicate notification", logger.String("eventID", c.EventID))
		return Duplicate, nil
	}

	if err := s.queue.Enqueue(ctx, c); err != nil {
		// Let the sender retry the same id.
		s.deduper.Unrecord(ctx, c.EventID)
		if errors.Is(err, eventqueue.ErrQueueFull) {
			return "", fmt.Errorf("%s: %w", c.EventID, ErrBusy)
		}
		return "", fmt.Errorf("enqueue %s: %w", c.EventID, err)
	}
	return Accepted, nil
}

// Invalidate drops every cached leaderboard. Workers call it for each
// accepted notification.
func (s *Service) Invalidate(ctx context.Context, _ model.FactChange) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		metrics.RecordCacheError(s.cache.Backend(), "invalidate")
		return err
	}
	metrics.RecordCacheInvalidation()
	return nil
}

func (s *Service) cacheBackend() string {
	if s.cache == nil {
		return cache.DriverNone
	}
	return s.cache.Backend()
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":           s.started,
		"workerCount":       s.workerCount,
		"queueSize":         s.queueSize,
		"dedupeSize":        s.dedupeSize,
		"cache":             s.cacheBackend(),
		"defaultWindowSize": s.defaultWindow,
		"maxWindowSize":     s.maxWindow,
	}
	if s.started {
		stats["queueLength"] = s.queue.Len()
		stats["seenNotifications"] = s.deduper.Size()
		stats["processedNotifications"] = s.workerPool.Processed()
		metrics.UpdateQueueSize(s.queue.Len())
	}
	return stats
}
