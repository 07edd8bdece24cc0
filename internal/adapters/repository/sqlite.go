package repository

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/okian/questrank/internal/domain/model"
	_ "modernc.org/sqlite"
)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// SQLiteStore reads and writes achievement facts in a SQLite file.
// Timestamps are stored as unix milliseconds.
type SQLiteStore struct {
	db     *sql.DB
	tables Tables
}

// OpenSQLite opens (and unless disabled, migrates) the database at path.
// ":memory:" opens a private in-memory database on a single connection.
func OpenSQLite(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required: %w", ErrNotConfigured)
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.tables.validate(); err != nil {
		return nil, err
	}

	dsn := ":memory:"
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	} else {
		o.maxOpenConns = 1
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if o.maxOpenConns > 0 {
		db.SetMaxOpenConns(o.maxOpenConns)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	s := &SQLiteStore{db: db, tables: o.tables}
	if o.migrate {
		if err := s.migrate(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + quote(s.tables.Profiles) + ` (
		   id TEXT PRIMARY KEY,
		   full_name TEXT,
		   avatar_url TEXT
		 )`,
		`CREATE TABLE IF NOT EXISTS ` + quote(s.tables.Badges) + ` (
		   user_id TEXT NOT NULL,
		   earned_at INTEGER NOT NULL
		 )`,
		`CREATE INDEX IF NOT EXISTS idx_badges_earned_at ON ` + quote(s.tables.Badges) + ` (earned_at)`,
		`CREATE TABLE IF NOT EXISTS ` + quote(s.tables.Submissions) + ` (
		   user_id TEXT NOT NULL,
		   created_at INTEGER NOT NULL
		 )`,
		`CREATE INDEX IF NOT EXISTS idx_submissions_created_at ON ` + quote(s.tables.Submissions) + ` (created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the SQLite handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// UpsertProfile inserts or replaces a profile row.
func (s *SQLiteStore) UpsertProfile(ctx context.Context, p model.Profile) error {
	if err := validateProfile(p); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO `+quote(s.tables.Profiles)+` (id, full_name, avatar_url) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET full_name = excluded.full_name, avatar_url = excluded.avatar_url`,
		p.UserID, nullString(p.DisplayName), nullString(p.AvatarURL),
	)
	if err != nil {
		return fmt.Errorf("upsert profile %q: %w", p.UserID, err)
	}
	return nil
}

// RecordFact inserts one badge or submission row.
func (s *SQLiteStore) RecordFact(ctx context.Context, f model.Fact) error {
	if err := validateFact(f); err != nil {
		return err
	}
	table, column := s.tables.Badges, "earned_at"
	if f.Kind == model.SubmissionMade {
		table, column = s.tables.Submissions, "created_at"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO `+quote(table)+` (user_id, `+column+`) VALUES (?, ?)`,
		f.UserID, toMillis(f.OccurredAt),
	)
	if err != nil {
		return fmt.Errorf("insert %s: %w", f.Kind, err)
	}
	return nil
}

// ListProfiles implements AchievementReader.
func (s *SQLiteStore) ListProfiles(ctx context.Context) ([]model.Profile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, full_name, avatar_url FROM `+quote(s.tables.Profiles))
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Profile
	for rows.Next() {
		var (
			id           string
			name, avatar sql.NullString
		)
		if err := rows.Scan(&id, &name, &avatar); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		out = append(out, model.Profile{UserID: id, DisplayName: name.String, AvatarURL: avatar.String})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	return out, nil
}

// CountBadgesByUser implements AchievementReader.
func (s *SQLiteStore) CountBadgesByUser(ctx context.Context, scope model.Scope) (map[string]int, error) {
	return s.count(ctx, s.tables.Badges, "earned_at", scope)
}

// CountSubmissionsByUser implements AchievementReader.
func (s *SQLiteStore) CountSubmissionsByUser(ctx context.Context, scope model.Scope) (map[string]int, error) {
	return s.count(ctx, s.tables.Submissions, "created_at", scope)
}

func (s *SQLiteStore) count(ctx context.Context, table, column string, scope model.Scope) (map[string]int, error) {
	query := `SELECT user_id, COUNT(*) FROM ` + quote(table)
	var args []any
	if scope.Bounded() {
		query += ` WHERE ` + column + ` >= ?`
		args = append(args, toMillis(scope.Since))
	}
	query += ` GROUP BY user_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("count %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]int)
	for rows.Next() {
		var (
			userID sql.NullString
			n      int
		)
		if err := rows.Scan(&userID, &n); err != nil {
			return nil, fmt.Errorf("scan %s count: %w", table, err)
		}
		if !userID.Valid {
			return nil, fmt.Errorf("count %s: null user id: %w", table, ErrInvalidRecord)
		}
		out[userID.String] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("count %s: %w", table, err)
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
