// Package migrations holds the embedded schema migrations for the SQL
// backends and a goose-backed runner to apply them.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/pressly/goose/v3"
)

//go:embed sqlite/*.sql postgres/*.sql
var files embed.FS

// Dialect selects the migration set.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

func (d Dialect) goose() (goose.Dialect, error) {
	switch d {
	case SQLite:
		return goose.DialectSQLite3, nil
	case Postgres:
		return goose.DialectPostgres, nil
	default:
		return "", fmt.Errorf("unsupported migration dialect %q", d)
	}
}

// FS returns the migration files for dialect.
func FS(d Dialect) (fs.FS, error) {
	return fs.Sub(files, string(d))
}

// Runner wraps database migration capabilities.
type Runner struct {
	provider *goose.Provider
	dialect  Dialect
	log      *slog.Logger
}

// New returns a migration runner backed by goose.
func New(db *sql.DB, dialect Dialect, log *slog.Logger) (*Runner, error) {
	if db == nil {
		return nil, errors.New("nil database provided")
	}
	gd, err := dialect.goose()
	if err != nil {
		return nil, err
	}
	fsys, err := FS(dialect)
	if err != nil {
		return nil, fmt.Errorf("locate migrations: %w", err)
	}
	provider, err := goose.NewProvider(gd, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("configure goose: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Runner{provider: provider, dialect: dialect, log: log}, nil
}

// Up applies pending migrations.
func (r *Runner) Up(ctx context.Context) error {
	runCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	results, err := r.provider.Up(runCtx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	for _, res := range results {
		r.log.Info("migration applied",
			"dialect", r.dialect,
			"version", res.Source.Version,
			"duration_ms", res.Duration.Milliseconds(),
		)
	}
	return nil
}

// Status describes one known migration.
type Status struct {
	Version   int64
	Path      string
	Applied   bool
	AppliedAt time.Time
}

// Status reports applied and pending migrations.
func (r *Runner) Status(ctx context.Context) ([]Status, error) {
	statuses, err := r.provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("migration status: %w", err)
	}
	out := make([]Status, 0, len(statuses))
	for _, st := range statuses {
		out = append(out, Status{
			Version:   st.Source.Version,
			Path:      st.Source.Path,
			Applied:   st.State == goose.StateApplied,
			AppliedAt: st.AppliedAt,
		})
	}
	return out, nil
}

// Down rolls back migrations either to the previous version or a specific target version.
func (r *Runner) Down(ctx context.Context, targetVersion int64) error {
	runCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	if targetVersion > 0 {
		r.log.Info("rolling back migrations", "target", targetVersion)
		if _, err := r.provider.DownTo(runCtx, targetVersion); err != nil {
			return fmt.Errorf("rollback to version %d: %w", targetVersion, err)
		}
	} else {
		r.log.Info("rolling back latest migration")
		if _, err := r.provider.Down(runCtx); err != nil {
			return fmt.Errorf("rollback latest migration: %w", err)
		}
	}

	r.log.Info("rollback complete")
	return nil
}

// Version returns the current schema version.
func (r *Runner) Version(ctx context.Context) (int64, error) {
	v, err := r.provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}
