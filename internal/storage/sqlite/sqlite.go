// Package sqlite provides a SQLite-backed implementation of the storage.Store interface.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	moderncsqlite "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/mmynk/teamsync/internal/feed"
	"github.com/mmynk/teamsync/internal/storage"
	"github.com/mmynk/teamsync/internal/storage/migrations"
)

// Ensure SQLiteStore implements storage.Store
var _ storage.Store = (*SQLiteStore)(nil)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore implements storage.Store using SQLite.
//
// The database is used through a single connection, so transactions are
// serialized. Code running inside RunInTx must use the Tx it was given;
// calling back into the store from there blocks forever.
type SQLiteStore struct {
	reader
	db     *sql.DB
	runner storage.Runner
}

// New creates a new SQLiteStore with the given database path.
// It creates the parent directories and runs migrations automatically.
func New(ctx context.Context, dbPath string, opts storage.Options) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		// Create parent directory if it doesn't exist
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// Open database with pure Go driver; pragmas apply to every connection.
	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	runner := storage.NewRunner(opts)
	m, err := migrations.New(db, migrations.SQLite, runner.Logger())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure migrations: %w", err)
	}
	if err := m.Up(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{reader: reader{q: db}, db: db, runner: runner}, nil
}

// DB exposes the underlying handle for migration commands.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// RunInTx runs fn inside a database transaction.
func (s *SQLiteStore) RunInTx(ctx context.Context, fn storage.TxFunc) error {
	return s.runner.Run(ctx, func(ctx context.Context) ([]feed.Event, error) {
		sqlTx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer sqlTx.Rollback()

		t := &tx{reader: reader{q: sqlTx}}
		if err := fn(ctx, t); err != nil {
			return nil, err
		}

		if err := sqlTx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit transaction: %w", err)
		}
		return t.events, nil
	})
}

// TouchUser raises last_active without ever lowering it.
func (s *SQLiteStore) TouchUser(ctx context.Context, id string, at int64) error {
	var teamID sql.NullString
	err := s.db.QueryRowContext(ctx,
		"UPDATE users SET last_active = MAX(last_active, ?) WHERE id = ? RETURNING team_id",
		at, id,
	).Scan(&teamID)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to touch user: %w", err)
	}

	if teamID.Valid {
		s.runner.Publish(ctx, []feed.Event{storage.TeamEvent(teamID.String, feed.OpPut)})
	}
	return nil
}

// tx implements storage.Tx on top of *sql.Tx.
type tx struct {
	reader
	events []feed.Event
}

var _ storage.Tx = (*tx)(nil)

func (t *tx) emit(ev feed.Event) {
	t.events = append(t.events, ev)
}

// reader implements storage.Reader for any querier.
type reader struct {
	q querier
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr *moderncsqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
