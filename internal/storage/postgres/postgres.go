// Package postgres implements storage.Store on PostgreSQL.
//
// Transactions run at REPEATABLE READ. Serialization failures and
// deadlocks reported by the server, as well as stale team versions, are
// returned as storage.ErrConflict so the runner retries them.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/mmynk/teamsync/internal/feed"
	"github.com/mmynk/teamsync/internal/storage"
	"github.com/mmynk/teamsync/internal/storage/migrations"
)

var _ storage.Store = (*Store)(nil)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements persistence on PostgreSQL.
type Store struct {
	reader
	pool   *pgxpool.Pool
	runner storage.Runner
}

// New connects to connString, applies migrations and returns a Store.
func New(ctx context.Context, connString string, opts storage.Options) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	runner := storage.NewRunner(opts)
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()
	m, err := migrations.New(db, migrations.Postgres, runner.Logger())
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := m.Up(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &Store{reader: reader{q: pool}, pool: pool, runner: runner}, nil
}

// Pool exposes the connection pool.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Close releases underlying connections.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// RunInTx runs fn in a REPEATABLE READ transaction.
func (s *Store) RunInTx(ctx context.Context, fn storage.TxFunc) error {
	return s.runner.Run(ctx, func(ctx context.Context) ([]feed.Event, error) {
		pgTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
		if err != nil {
			return nil, fmt.Errorf("begin transaction: %w", mapErr(err))
		}
		defer pgTx.Rollback(ctx)

		t := &tx{reader: reader{q: pgTx}}
		if err := fn(ctx, t); err != nil {
			return nil, mapErr(err)
		}

		if err := pgTx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("commit transaction: %w", mapErr(err))
		}
		return t.events, nil
	})
}

// TouchUser raises last_active without ever lowering it.
func (s *Store) TouchUser(ctx context.Context, id string, at int64) error {
	var teamID *string
	err := s.pool.QueryRow(ctx,
		`UPDATE users SET last_active = GREATEST(last_active, $1) WHERE id = $2 RETURNING team_id`,
		at, id,
	).Scan(&teamID)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("touch user: %w", err)
	}

	if teamID != nil {
		s.runner.Publish(ctx, []feed.Event{storage.TeamEvent(*teamID, feed.OpPut)})
	}
	return nil
}

type tx struct {
	reader
	events []feed.Event
}

var _ storage.Tx = (*tx)(nil)

func (t *tx) emit(ev feed.Event) {
	t.events = append(t.events, ev)
}

type reader struct {
	q querier
}

// mapErr turns serialization failures into storage.ErrConflict.
func mapErr(err error) error {
	if isRetryable(err) {
		return fmt.Errorf("%w: %v", storage.ErrConflict, err)
	}
	return err
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return true
		}
	}
	return false
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
