package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/okian/questrank/internal/domain/model"
	"github.com/okian/questrank/internal/domain/ranking"
	"github.com/redis/go-redis/v9"
)

// RedisClient is the subset of *redis.Client the cache uses.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
}

// DefaultPrefix namespaces every key written by the Redis cache.
const DefaultPrefix = "questrank"

// Redis shares cached standings between replicas. Entries are JSON encoded
// and expire on their own; Invalidate bumps a shared generation counter.
type Redis struct {
	client RedisClient
	ttl    time.Duration
	prefix string
}

// RedisOption applies a configuration option to Redis.
type RedisOption func(*Redis)

// WithPrefix overrides DefaultPrefix.
func WithPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

// NewRedis returns a cache over client whose entries live for ttl.
func NewRedis(client RedisClient, ttl time.Duration, opts ...RedisOption) *Redis {
	r := &Redis{client: client, ttl: ttl, prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type wireStandings struct {
	Period     model.Period        `json:"period"`
	WindowSize int                 `json:"window_size"`
	ComputedAt time.Time           `json:"computed_at"`
	Ranked     []model.RankedEntry `json:"ranked"`
}

// Backend implements Cache.
func (r *Redis) Backend() string { return DriverRedis }

func (r *Redis) generationKey() string {
	return r.prefix + ":generation"
}

func (r *Redis) entryKey(gen uint64, key Key) string {
	return fmt.Sprintf("%s:standings:%d:%s:%d", r.prefix, gen, key.Period, key.WindowSize)
}

// Generation implements Cache. A missing counter is generation zero.
func (r *Redis) Generation(ctx context.Context) (uint64, error) {
	raw, err := r.client.Get(ctx, r.generationKey()).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read generation: %w", err)
	}
	gen, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse generation %q: %w", raw, err)
	}
	return gen, nil
}

// Get implements Cache.
func (r *Redis) Get(ctx context.Context, gen uint64, key Key) (*ranking.Standings, bool, error) {
	raw, err := r.client.Get(ctx, r.entryKey(gen, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	var w wireStandings
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if w.Period != key.Period || w.WindowSize != key.WindowSize {
		return nil, false, fmt.Errorf("%w: entry for %s/%d stored under %s", ErrDecode, w.Period, w.WindowSize, key)
	}
	s, err := ranking.Restore(w.Period, w.WindowSize, w.ComputedAt, w.Ranked)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return s, true, nil
}

// Set implements Cache. Stale generations land under keys nobody reads and
// expire with the TTL.
func (r *Redis) Set(ctx context.Context, gen uint64, key Key, s *ranking.Standings) error {
	if s == nil {
		return ErrNilStandings
	}
	raw, err := json.Marshal(wireStandings{
		Period:     s.Period(),
		WindowSize: s.WindowSize(),
		ComputedAt: s.ComputedAt(),
		Ranked:     s.Ranked(),
	})
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := r.client.Set(ctx, r.entryKey(gen, key), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Invalidate implements Cache.
func (r *Redis) Invalidate(ctx context.Context) error {
	if err := r.client.Incr(ctx, r.generationKey()).Err(); err != nil {
		return fmt.Errorf("bump generation: %w", err)
	}
	return nil
}
