// Package config defines service configuration and how it is loaded.
package config

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// AllowedOrigins lists CORS origins; "*" allows any.
	AllowedOrigins []string `koanf:"allowed_origins"`

	// StoreDriver selects the achievement store: memory, sqlite or postgres.
	StoreDriver string `koanf:"store_driver"`
	SQLitePath  string `koanf:"sqlite_path"`
	PostgresURL string `koanf:"postgres_url"`

	// RedisURL is shared by the redis cache and the fact-change subscriber.
	RedisURL string `koanf:"redis_url"`

	// CacheDriver selects the snapshot cache: none, memory or redis.
	CacheDriver string        `koanf:"cache_driver"`
	CacheTTL    time.Duration `koanf:"cache_ttl"`

	// DefaultWindowSize applies when GET /leaderboard has no limit.
	DefaultWindowSize int `koanf:"default_window_size"`
	// MaxWindowSize caps GET /leaderboard?limit.
	MaxWindowSize int `koanf:"max_window_size"`

	// QueueSize bounds the fact-change notification queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of invalidation workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize and DedupeTTL bound the notification id memory.
	DedupeSize int           `koanf:"dedupe_size"`
	DedupeTTL  time.Duration `koanf:"dedupe_ttl"`

	// JWTSecret verifies bearer tokens. Empty trusts the X-User-ID header.
	JWTSecret string `koanf:"jwt_secret"`

	// OTelEndpoint is the OTLP/HTTP traces URL. Empty disables tracing.
	OTelEndpoint string `koanf:"otel_endpoint"`

	// FactChannel is the redis pub/sub channel carrying fact changes. Empty
	// disables the subscriber.
	FactChannel string `koanf:"fact_channel"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// New creates a Config with defaults. Context is accepted first to satisfy
// the project-wide convention.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:          "info",
		Addr:              ":9080",
		AllowedOrigins:    []string{"*"},
		StoreDriver:       "memory",
		SQLitePath:        "questrank.db",
		CacheDriver:       "memory",
		CacheTTL:          30 * time.Second,
		DefaultWindowSize: 50,
		MaxWindowSize:     500,
		QueueSize:         1024,
		WorkerCount:       2,
		DedupeSize:        50_000,
		DedupeTTL:         24 * time.Hour,
		ShutdownTimeout:   10 * time.Second,
	}
}

// Validate checks the configuration is internally consistent.
func (c *Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Addr) == "" {
		problems = append(problems, "addr must not be empty")
	}
	switch c.StoreDriver {
	case "memory":
	case "sqlite":
		if c.SQLitePath == "" {
			problems = append(problems, "sqlite_path is required for the sqlite store")
		}
	case "postgres":
		if c.PostgresURL == "" {
			problems = append(problems, "postgres_url is required for the postgres store")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown store_driver %q", c.StoreDriver))
	}
	switch c.CacheDriver {
	case "none", "memory":
	case "redis":
		if c.RedisURL == "" {
			problems = append(problems, "redis_url is required for the redis cache")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown cache_driver %q", c.CacheDriver))
	}
	if c.CacheDriver != "none" && c.CacheTTL <= 0 {
		problems = append(problems, "cache_ttl must be positive")
	}
	if c.FactChannel != "" && c.RedisURL == "" {
		problems = append(problems, "redis_url is required to subscribe to fact_channel")
	}
	if c.DefaultWindowSize < 0 || c.MaxWindowSize < c.DefaultWindowSize {
		problems = append(problems, "window sizes must satisfy 0 <= default_window_size <= max_window_size")
	}
	if c.QueueSize <= 0 || c.WorkerCount <= 0 {
		problems = append(problems, "queue_size and worker_count must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
