package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/questrank/internal/adapters/notify"
	"github.com/okian/questrank/internal/adapters/repository"
	"github.com/okian/questrank/internal/seeding"
	"github.com/okian/questrank/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const (
	defaultUsers       = 200
	defaultBadges      = 8
	defaultSubmissions = 20
	defaultDays        = 60
	defaultWorkers     = 4
	defaultWindow      = 50
	defaultRunTimeout  = 10 * time.Minute
)

func main() {
	var (
		driver      = flag.String("store", repository.DriverSQLite, "Store driver: sqlite or postgres")
		dsn         = flag.String("dsn", "questrank.db", "SQLite path or Postgres URL")
		users       = flag.Int("users", defaultUsers, "Number of profiles to generate")
		badges      = flag.Int("badges", defaultBadges, "Maximum badges per user")
		submissions = flag.Int("submissions", defaultSubmissions, "Maximum submissions per user")
		days        = flag.Int("days", defaultDays, "Spread facts over this many days")
		workers     = flag.Int("workers", defaultWorkers, "Concurrent writers and rank checkers")
		baseURL     = flag.String("url", "", "Base URL of a running service to verify")
		window      = flag.Int("window", defaultWindow, "Leaderboard window to verify")
		secret      = flag.String("secret", "", "JWT secret of the service")
		redisURL    = flag.String("redis", "", "Redis URL used to announce the seed on the fact channel")
		channel     = flag.String("channel", "", "Fact channel the service subscribes to")
		settle      = flag.Duration("settle", 30*time.Second, "How long to wait for the service to pick up the seed")
		timeout     = flag.Duration("timeout", 10*time.Second, "HTTP request timeout")
		verbose     = flag.Bool("verbose", false, "Log every rank check")
		help        = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		seeding.ShowHelp()
		return
	}

	cfg := &seeding.Config{
		BaseURL:        *baseURL,
		Users:          *users,
		MaxBadges:      *badges,
		MaxSubmissions: *submissions,
		Days:           *days,
		Workers:        *workers,
		Window:         *window,
		Timeout:        *timeout,
		Settle:         *settle,
		Secret:         *secret,
		Verbose:        *verbose,
	}
	if err := run(*driver, *dsn, *redisURL, *channel, cfg); err != nil {
		os.Stderr.WriteString("seed failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func run(driver, dsn, redisURL, channel string, cfg *seeding.Config) error {
	if err := logger.Init(); err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	if cfg.Verbose {
		_ = logger.SetLevelString("debug")
	}
	cfg.Log = logger.Named("seed")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultRunTimeout)
	defer cancel()

	store, err := repository.Open(ctx, driver, dsn)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = store.Close() }()

	if redisURL != "" && channel != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			return fmt.Errorf("redis url: %w", err)
		}
		rdb := redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()
		cfg.Publisher = notify.NewPublisher(rdb, channel)
	}

	_, err = seeding.Run(ctx, cfg, store)
	return err
}
