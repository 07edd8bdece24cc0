package service

import (
	"time"

	"github.com/okian/questrank/internal/adapters/cache"
	"github.com/okian/questrank/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithCache enables snapshot caching.
func WithCache(c cache.Cache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

// WithWorkerCount sets the number of invalidation workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the notification queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many notification ids are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithDedupeTTL sets how long notification ids are remembered.
func WithDedupeTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.dedupeTTL = ttl
		}
	}
}

// WithWindowSizes sets the default and the largest accepted window size.
func WithWindowSizes(def, max int) Option {
	return func(s *Service) {
		if def >= 0 && max >= def {
			s.defaultWindow = def
			s.maxWindow = max
		}
	}
}

// WithBuildTimeout bounds a shared standings build.
func WithBuildTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.buildTimeout = d
		}
	}
}

// WithClock overrides time.Now as the query clock for rolling periods.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
