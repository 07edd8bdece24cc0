package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/okian/questrank/internal/domain/model"
)

// PgPool is the subset of *pgxpool.Pool the Postgres store uses.
type PgPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore reads and writes achievement facts in Postgres.
type PostgresStore struct {
	pg     PgPool
	tables Tables
	close  func()
}

// OpenPostgres connects a pool to url and wraps it in a store.
func OpenPostgres(ctx context.Context, url string, opts ...Option) (*PostgresStore, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("postgres url is required: %w", ErrNotConfigured)
	}
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s, err := NewPostgresStore(ctx, pool, opts...)
	if err != nil {
		pool.Close()
		return nil, err
	}
	s.close = pool.Close
	return s, nil
}

// NewPostgresStore wraps an existing pool. The caller keeps ownership of pg.
func NewPostgresStore(ctx context.Context, pg PgPool, opts ...Option) (*PostgresStore, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.tables.validate(); err != nil {
		return nil, err
	}
	s := &PostgresStore{pg: pg, tables: o.tables}
	if o.migrate {
		if err := s.migrate(ctx); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + quote(s.tables.Profiles) + ` (
		   id TEXT PRIMARY KEY,
		   full_name TEXT,
		   avatar_url TEXT
		 )`,
		`CREATE TABLE IF NOT EXISTS ` + quote(s.tables.Badges) + ` (
		   user_id TEXT NOT NULL,
		   earned_at TIMESTAMPTZ NOT NULL
		 )`,
		`CREATE TABLE IF NOT EXISTS ` + quote(s.tables.Submissions) + ` (
		   user_id TEXT NOT NULL,
		   created_at TIMESTAMPTZ NOT NULL
		 )`,
	}
	for _, stmt := range stmts {
		if _, err := s.pg.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the pool when the store opened it.
func (s *PostgresStore) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}

// UpsertProfile inserts or replaces a profile row.
func (s *PostgresStore) UpsertProfile(ctx context.Context, p model.Profile) error {
	if err := validateProfile(p); err != nil {
		return err
	}
	_, err := s.pg.Exec(ctx,
		`INSERT INTO `+quote(s.tables.Profiles)+` (id, full_name, avatar_url) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET full_name = EXCLUDED.full_name, avatar_url = EXCLUDED.avatar_url`,
		p.UserID, nullable(p.DisplayName), nullable(p.AvatarURL),
	)
	if err != nil {
		return fmt.Errorf("upsert profile %q: %w", p.UserID, err)
	}
	return nil
}

// RecordFact inserts one badge or submission row.
func (s *PostgresStore) RecordFact(ctx context.Context, f model.Fact) error {
	if err := validateFact(f); err != nil {
		return err
	}
	table, column := s.tables.Badges, "earned_at"
	if f.Kind == model.SubmissionMade {
		table, column = s.tables.Submissions, "created_at"
	}
	_, err := s.pg.Exec(ctx,
		`INSERT INTO `+quote(table)+` (user_id, `+column+`) VALUES ($1, $2)`,
		f.UserID, f.OccurredAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert %s: %w", f.Kind, err)
	}
	return nil
}

// ListProfiles implements AchievementReader.
func (s *PostgresStore) ListProfiles(ctx context.Context) ([]model.Profile, error) {
	rows, err := s.pg.Query(ctx, `SELECT id, full_name, avatar_url FROM `+quote(s.tables.Profiles))
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var out []model.Profile
	for rows.Next() {
		var (
			id           string
			name, avatar *string
		)
		if err := rows.Scan(&id, &name, &avatar); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		p := model.Profile{UserID: id}
		if name != nil {
			p.DisplayName = *name
		}
		if avatar != nil {
			p.AvatarURL = *avatar
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	return out, nil
}

// CountBadgesByUser implements AchievementReader.
func (s *PostgresStore) CountBadgesByUser(ctx context.Context, scope model.Scope) (map[string]int, error) {
	return s.count(ctx, s.tables.Badges, "earned_at", scope)
}

// CountSubmissionsByUser implements AchievementReader.
func (s *PostgresStore) CountSubmissionsByUser(ctx context.Context, scope model.Scope) (map[string]int, error) {
	return s.count(ctx, s.tables.Submissions, "created_at", scope)
}

func (s *PostgresStore) count(ctx context.Context, table, column string, scope model.Scope) (map[string]int, error) {
	query := `SELECT user_id, COUNT(*) FROM ` + quote(table)
	var args []any
	if scope.Bounded() {
		query += ` WHERE ` + column + ` >= $1`
		args = append(args, scope.Since)
	}
	query += ` GROUP BY user_id`

	rows, err := s.pg.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("count %s: %w", table, err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var (
			userID string
			n      int64
		)
		if err := rows.Scan(&userID, &n); err != nil {
			return nil, fmt.Errorf("scan %s count: %w", table, err)
		}
		out[userID] = int(n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("count %s: %w", table, err)
	}
	return out, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
