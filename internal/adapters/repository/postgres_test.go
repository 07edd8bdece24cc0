package repository_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/okian/questrank/internal/adapters/repository"
	"github.com/okian/questrank/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

type mockPgPool struct {
	queries []string
	args    [][]any
	execs   []string
	rows    map[string][][]any // keyed by a substring of the query
	err     error
}

func (m *mockPgPool) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	m.queries = append(m.queries, sql)
	m.args = append(m.args, args)
	if m.err != nil {
		return nil, m.err
	}
	for key, data := range m.rows {
		if strings.Contains(sql, key) {
			return &mockPgRows{data: data}, nil
		}
	}
	return &mockPgRows{}, nil
}

func (m *mockPgPool) QueryRow(context.Context, string, ...any) pgx.Row { return nil }

func (m *mockPgPool) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	m.execs = append(m.execs, sql)
	return pgconn.CommandTag{}, m.err
}

type mockPgRows struct {
	data [][]any
	curr int
}

func (r *mockPgRows) Close()                                       {}
func (r *mockPgRows) Err() error                                   { return nil }
func (r *mockPgRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *mockPgRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *mockPgRows) Values() ([]any, error)                       { return nil, nil }
func (r *mockPgRows) RawValues() [][]byte                          { return nil }
func (r *mockPgRows) Conn() *pgx.Conn                              { return nil }

func (r *mockPgRows) Next() bool {
	r.curr++
	return r.curr <= len(r.data)
}

func (r *mockPgRows) Scan(dest ...any) error {
	row := r.data[r.curr-1]
	for i, d := range dest {
		switch ptr := d.(type) {
		case *string:
			*ptr = row[i].(string)
		case **string:
			if row[i] != nil {
				v := row[i].(string)
				*ptr = &v
			}
		case *int64:
			*ptr = row[i].(int64)
		default:
			return errors.New("unexpected scan target")
		}
	}
	return nil
}

func TestPostgresStore(t *testing.T) {
	Convey("Given a postgres store over a mocked pool", t, func() {
		ctx := context.Background()
		pool := &mockPgPool{rows: map[string][][]any{
			`"profiles"`:    {{"alice", "Alice", nil}, {"bob", nil, nil}},
			`"user_badges"`: {{"alice", int64(3)}},
			`"submissions"`: {{"alice", int64(7)}, {"bob", int64(1)}},
		}}
		store, err := repository.NewPostgresStore(ctx, pool)
		So(err, ShouldBeNil)

		Convey("Then the schema is created", func() {
			So(len(pool.execs), ShouldEqual, 3)
		})

		Convey("When profiles are listed", func() {
			profiles, err := store.ListProfiles(ctx)

			Convey("Then NULL columns become empty strings", func() {
				So(err, ShouldBeNil)
				So(profiles, ShouldResemble, []model.Profile{
					{UserID: "alice", DisplayName: "Alice"},
					{UserID: "bob"},
				})
			})
		})

		Convey("When counting all-time badges", func() {
			badges, err := store.CountBadgesByUser(ctx, model.ScopeAt(model.PeriodAll, time.Now()))

			Convey("Then no time predicate is sent", func() {
				So(err, ShouldBeNil)
				So(badges, ShouldResemble, map[string]int{"alice": 3})
				last := pool.queries[len(pool.queries)-1]
				So(last, ShouldNotContainSubstring, "WHERE")
				So(last, ShouldContainSubstring, "GROUP BY user_id")
			})
		})

		Convey("When counting weekly submissions", func() {
			now := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)
			scope := model.ScopeAt(model.PeriodWeek, now)
			subs, err := store.CountSubmissionsByUser(ctx, scope)

			Convey("Then the lower bound is bound as a parameter", func() {
				So(err, ShouldBeNil)
				So(subs, ShouldResemble, map[string]int{"alice": 7, "bob": 1})
				last := pool.queries[len(pool.queries)-1]
				So(last, ShouldContainSubstring, "created_at >= $1")
				So(pool.args[len(pool.args)-1], ShouldResemble, []any{scope.Since})
			})
		})

		Convey("When the pool fails", func() {
			pool.err = errors.New("connection reset")
			_, err := store.CountBadgesByUser(ctx, model.Scope{})

			Convey("Then the error is wrapped", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "connection reset")
			})
		})

		Convey("When writing facts", func() {
			err := store.RecordFact(ctx, model.Fact{UserID: "alice", Kind: model.SubmissionMade, OccurredAt: time.Now()})

			Convey("Then the submissions table is targeted", func() {
				So(err, ShouldBeNil)
				So(pool.execs[len(pool.execs)-1], ShouldContainSubstring, `INSERT INTO "submissions"`)
			})
		})
	})

	Convey("Given migrations are disabled", t, func() {
		pool := &mockPgPool{}
		_, err := repository.NewPostgresStore(context.Background(), pool, repository.WithoutMigrations())
		So(err, ShouldBeNil)
		So(pool.execs, ShouldBeEmpty)
	})
}
