package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/questrank/internal/adapters/cache"
	"github.com/okian/questrank/internal/adapters/http/api"
	"github.com/okian/questrank/internal/adapters/http/identity"
	"github.com/okian/questrank/internal/adapters/notify"
	"github.com/okian/questrank/internal/adapters/repository"
	service "github.com/okian/questrank/internal/app"
	"github.com/okian/questrank/internal/config"
	"github.com/okian/questrank/pkg/logger"
	"github.com/okian/questrank/pkg/metrics"
	"github.com/okian/questrank/pkg/tracing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

const (
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	redisDialTimeout          = 3 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	// Disable default Go metrics collection to avoid duplicate metrics
	// We collect our own custom system metrics instead
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := run(); err != nil {
		os.Stderr.WriteString("questrank: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func run() error {
	if err := logger.Init(); err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	shutdownTracing, err := tracing.Setup(ctx, cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn(ctx, "tracing shutdown failed", logger.Error(err))
		}
	}()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = newRedis(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer func() { _ = rdb.Close() }()
	}

	snapshots, err := openCache(cfg, rdb)
	if err != nil {
		return err
	}

	svc := service.New(store,
		service.WithLogger(log.Named("service")),
		service.WithCache(snapshots),
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithQueueSize(cfg.QueueSize),
		service.WithDedupeSize(cfg.DedupeSize),
		service.WithDedupeTTL(cfg.DedupeTTL),
		service.WithWindowSizes(cfg.DefaultWindowSize, cfg.MaxWindowSize),
	)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()

	if cfg.FactChannel != "" {
		sub := notify.NewSubscriber(svc, notify.WithLogger(log.Named("notify")))
		go func() {
			if err := sub.Run(ctx, rdb, cfg.FactChannel); err != nil {
				log.Error(ctx, "fact-change subscription ended", logger.Error(err))
			}
		}()
	}

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, svc)

	auth := identity.New(cfg.JWTSecret, identity.WithLogger(log.Named("identity")))
	if !auth.Verifying() {
		log.Warn(ctx, "no jwt_secret configured; trusting the X-User-ID header")
	}
	server := api.NewServer(svc, svc,
		api.WithAuthenticator(auth.Middleware),
		api.WithAllowedOrigins(cfg.AllowedOrigins...),
		api.WithLogger(log.Named("http")),
	)

	log.Info(ctx, "starting questrank",
		logger.String("addr", cfg.Addr),
		logger.String("store", cfg.StoreDriver),
		logger.String("cache", cfg.CacheDriver),
	)
	if err := server.ListenAndServe(ctx, cfg.Addr, cfg.ShutdownTimeout); err != nil {
		return err
	}
	log.Info(ctx, "server stopped")
	return nil
}

// openStore connects the configured achievement store.
func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	var dsn string
	switch cfg.StoreDriver {
	case repository.DriverSQLite:
		dsn = cfg.SQLitePath
	case repository.DriverPostgres:
		dsn = cfg.PostgresURL
	}
	store, err := repository.Open(ctx, cfg.StoreDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreDriver, err)
	}
	return store, nil
}

// newRedis parses url and checks the server answers.
func newRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis url: %w", err)
	}
	client := redis.NewClient(opts)
	pctx, cancel := context.WithTimeout(ctx, redisDialTimeout)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// openCache selects the snapshot cache. A nil Cache disables caching.
func openCache(cfg *config.Config, rdb *redis.Client) (cache.Cache, error) {
	switch cfg.CacheDriver {
	case cache.DriverNone:
		return nil, nil
	case cache.DriverMemory:
		return cache.NewMemory(cfg.CacheTTL), nil
	case cache.DriverRedis:
		if rdb == nil {
			return nil, fmt.Errorf("redis cache: %w", config.ErrInvalidConfig)
		}
		return cache.NewRedis(rdb, cfg.CacheTTL), nil
	default:
		return nil, fmt.Errorf("cache driver %q: %w", cfg.CacheDriver, config.ErrInvalidConfig)
	}
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater starts a background goroutine that updates service metrics.
func startServiceMetricsUpdater(ctx context.Context, svc *service.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(svc)
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

// updateServiceMetrics updates service-level metrics.
func updateServiceMetrics(svc *service.Service) {
	stats := svc.GetStats()

	if queueLen, ok := stats["queueLength"].(int); ok {
		metrics.UpdateQueueSize(queueLen)
	}
	if workerCount, ok := stats["workerCount"].(int); ok {
		metrics.UpdateWorkerCount(workerCount)
	}
}
