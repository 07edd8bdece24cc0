package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/questrank/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

// setEnv sets a variable for the current Convey leaf only.
func setEnv(key, value string) {
	_ = os.Setenv(key, value)
	convey.Reset(func() { _ = os.Unsetenv(key) })
}

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "questrank.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with defaults", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.StoreDriver, convey.ShouldEqual, "memory")
			convey.So(cfg.CacheDriver, convey.ShouldEqual, "memory")
			convey.So(cfg.CacheTTL, convey.ShouldEqual, 30*time.Second)
			convey.So(cfg.DefaultWindowSize, convey.ShouldEqual, 50)
			convey.So(cfg.MaxWindowSize, convey.ShouldEqual, 500)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()

		convey.Convey("When loading with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 1024)
				convey.So(cfg.AllowedOrigins, convey.ShouldResemble, []string{"*"})
			})
		})

		convey.Convey("When loading with environment variables", func() {
			setEnv("QUESTRANK_ADDR", ":8080")
			setEnv("QUESTRANK_WORKER_COUNT", "8")
			setEnv("QUESTRANK_CACHE_TTL", "2m")
			setEnv("QUESTRANK_ALLOWED_ORIGINS", "https://a.example,https://b.example")
			setEnv("QUESTRANK_STORE_DRIVER", "sqlite")
			setEnv("QUESTRANK_SQLITE_PATH", "/tmp/q.db")

			cfg, err := config.Load(ctx)

			convey.Convey("Then they override defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 8)
				convey.So(cfg.CacheTTL, convey.ShouldEqual, 2*time.Minute)
				convey.So(cfg.AllowedOrigins, convey.ShouldResemble, []string{"https://a.example", "https://b.example"})
				convey.So(cfg.StoreDriver, convey.ShouldEqual, "sqlite")
				convey.So(cfg.SQLitePath, convey.ShouldEqual, "/tmp/q.db")
			})
		})

		convey.Convey("When a list variable has padding and empty items", func() {
			setEnv("QUESTRANK_ALLOWED_ORIGINS", " https://a.example , ,https://b.example,")

			cfg, err := config.Load(ctx)

			convey.Convey("Then each origin is trimmed and blanks are skipped", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.AllowedOrigins, convey.ShouldResemble, []string{"https://a.example", "https://b.example"})
			})
		})

		convey.Convey("When the file lists origins and env does not", func() {
			setEnv(config.EnvConfigPath, writeConfig(t, `
allowed_origins:
  - https://c.example
  - https://d.example
`))

			cfg, err := config.Load(ctx)

			convey.Convey("Then the file list is used as is", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.AllowedOrigins, convey.ShouldResemble, []string{"https://c.example", "https://d.example"})
			})
		})

		convey.Convey("When loading with a YAML file and env together", func() {
			setEnv(config.EnvConfigPath, writeConfig(t, `
# leaderboard service
addr: ":9090"
max_window_size: 200
default_window_size: 25
cache_driver: none
fact_channel: questrank:facts
redis_url: redis://localhost:6379/0
`))
			setEnv("QUESTRANK_ADDR", ":7070")

			cfg, err := config.Load(ctx)

			convey.Convey("Then env wins over the file and the file over defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":7070")
				convey.So(cfg.MaxWindowSize, convey.ShouldEqual, 200)
				convey.So(cfg.DefaultWindowSize, convey.ShouldEqual, 25)
				convey.So(cfg.CacheDriver, convey.ShouldEqual, "none")
				convey.So(cfg.FactChannel, convey.ShouldEqual, "questrank:facts")
				convey.So(cfg.DedupeSize, convey.ShouldEqual, 50_000)
			})
		})

		convey.Convey("When the file does not exist", func() {
			setEnv(config.EnvConfigPath, filepath.Join(t.TempDir(), "missing.yaml"))
			_, err := config.Load(ctx)

			convey.Convey("Then it is a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the file is not YAML", func() {
			setEnv(config.EnvConfigPath, writeConfig(t, "addr: [unclosed"))
			_, err := config.Load(ctx)
			convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When a numeric variable is not a number", func() {
			setEnv("QUESTRANK_QUEUE_SIZE", "lots")
			_, err := config.Load(ctx)
			convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given invalid combinations", t, func() {
		ctx := context.Background()
		cases := map[string]func(*config.Config){
			"empty addr":              func(c *config.Config) { c.Addr = "" },
			"unknown store":           func(c *config.Config) { c.StoreDriver = "mongo" },
			"postgres without url":    func(c *config.Config) { c.StoreDriver = "postgres" },
			"redis cache without url": func(c *config.Config) { c.CacheDriver = "redis" },
			"channel without redis":   func(c *config.Config) { c.FactChannel = "facts" },
			"default above max":       func(c *config.Config) { c.DefaultWindowSize = 600 },
			"zero cache ttl":          func(c *config.Config) { c.CacheTTL = 0 },
			"no workers":              func(c *config.Config) { c.WorkerCount = 0 },
		}
		for name, mutate := range cases {
			cfg := config.New(ctx)
			mutate(cfg)
			err := cfg.Validate()
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			convey.So(err.Error(), convey.ShouldNotBeEmpty)
			_ = name
		}
	})

	convey.Convey("Given the cache is disabled", t, func() {
		cfg := config.New(context.Background())
		cfg.CacheDriver = "none"
		cfg.CacheTTL = 0
		convey.So(cfg.Validate(), convey.ShouldBeNil)
	})
}
