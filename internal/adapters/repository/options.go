package repository

import (
	"fmt"
	"regexp"
)

// Tables names the three SQL tables holding profiles and facts.
type Tables struct {
	Profiles    string
	Badges      string
	Submissions string
}

// DefaultTables is the schema created by the SQL stores.
var DefaultTables = Tables{
	Profiles:    "profiles",
	Badges:      "user_badges",
	Submissions: "submissions",
}

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_ ]*$`)

func (t Tables) validate() error {
	for _, n := range []string{t.Profiles, t.Badges, t.Submissions} {
		if !tableName.MatchString(n) {
			return fmt.Errorf("%q: %w", n, ErrInvalidTable)
		}
	}
	return nil
}

// quote returns a double-quoted identifier; names are validated first.
func quote(name string) string {
	return `"` + name + `"`
}

type options struct {
	tables       Tables
	migrate      bool
	maxOpenConns int
}

func defaultOptions() options {
	return options{tables: DefaultTables, migrate: true}
}

// Option applies a configuration option to the SQL stores.
type Option func(*options)

// WithTables points the store at existing tables, e.g. ones named with
// spaces such as "User Badges".
func WithTables(t Tables) Option {
	return func(o *options) {
		o.tables = t
	}
}

// WithoutMigrations skips schema creation for stores managed elsewhere.
func WithoutMigrations() Option {
	return func(o *options) {
		o.migrate = false
	}
}

// WithMaxOpenConns caps the SQLite connection pool.
func WithMaxOpenConns(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxOpenConns = n
		}
	}
}
