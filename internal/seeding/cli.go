package seeding

import "os"

// ShowHelp prints usage information for the seed tool.
func ShowHelp() {
	_, _ = os.Stdout.WriteString(`questrank seed
==============

Writes a random population of profiles, badges and submissions into an
achievement store and optionally verifies a running service against an
independently computed ranking.

Usage:
  go run ./cmd/seed [options]

Options:
  -store string
        Store driver: sqlite or postgres (default "sqlite")
  -dsn string
        SQLite path or Postgres URL (default "questrank.db")
  -users int
        Number of profiles to generate (default 200)
  -badges int
        Maximum badges per user (default 8)
  -submissions int
        Maximum submissions per user (default 20)
  -days int
        Spread facts over this many days (default 60)
  -workers int
        Concurrent writers and rank checkers (default 4)
  -url string
        Base URL of a running service to verify; empty skips verification
  -window int
        Leaderboard window to verify (default 50)
  -redis string
        Redis URL used to announce the seed on the fact channel
  -channel string
        Fact channel the service subscribes to; with -redis replaces the
        POST /facts/changed notification
  -secret string
        JWT secret of the service; empty sends X-User-ID
  -settle duration
        How long to wait for the service to pick up the seed (default 30s)
  -timeout duration
        HTTP request timeout (default 10s)
  -verbose
        Log every rank check
  -help
        Show this help message

Examples:
  # Seed a local SQLite file
  go run ./cmd/seed -dsn questrank.db -users 1000

  # Seed and verify a service reading the same file
  go run ./cmd/seed -dsn questrank.db -url http://localhost:9080

  # Announce the seed over Redis pub/sub instead of HTTP
  go run ./cmd/seed -url http://localhost:9080 -redis redis://localhost:6379/0 -channel questrank:facts
`)
}
