package cli

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/mmynk/teamsync/internal/config"
	"github.com/mmynk/teamsync/internal/storage/migrations"
	"github.com/mmynk/teamsync/pkg/logging"
)

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
		Long: `Apply, inspect or roll back the schema of the configured SQL store.
The server applies pending migrations on start, so "up" is only needed
when preparing a database ahead of time.`,
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrations(cmd.Context(), opts, func(r *migrations.Runner) error {
				if err := r.Up(cmd.Context()); err != nil {
					return err
				}
				v, err := r.Version(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d\n", v)
				return nil
			})
		},
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "List applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrations(cmd.Context(), opts, func(r *migrations.Runner) error {
				statuses, err := r.Status(cmd.Context())
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "VERSION\tSTATE\tAPPLIED AT\tFILE")
				for _, st := range statuses {
					state, at := "pending", "-"
					if st.Applied {
						state, at = "applied", st.AppliedAt.Format("2006-01-02 15:04:05")
					}
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", st.Version, state, at, st.Path)
				}
				return w.Flush()
			})
		},
	}

	var target int64
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the latest migration, or down to --to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrations(cmd.Context(), opts, func(r *migrations.Runner) error {
				if err := r.Down(cmd.Context(), target); err != nil {
					return err
				}
				v, err := r.Version(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d\n", v)
				return nil
			})
		},
	}
	down.Flags().Int64Var(&target, "to", 0, "roll back to this version instead of one step")

	cmd.AddCommand(up, status, down)
	return cmd
}

// withMigrations opens the configured database without applying anything
// and runs fn against its migration runner.
func withMigrations(ctx context.Context, opts *rootOptions, fn func(*migrations.Runner) error) error {
	cfg, err := opts.load()
	if err != nil {
		return err
	}
	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	db, dialect, err := openSQL(cfg.Store)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("connect to %s: %w", dialect, err)
	}

	r, err := migrations.New(db, dialect, logger)
	if err != nil {
		return err
	}
	return fn(r)
}

func openSQL(sc config.StoreConfig) (*sql.DB, migrations.Dialect, error) {
	switch sc.Driver {
	case config.DriverSQLite:
		if err := os.MkdirAll(filepath.Dir(sc.SQLitePath), 0o755); err != nil {
			return nil, "", fmt.Errorf("create database directory: %w", err)
		}
		db, err := sql.Open("sqlite", sc.SQLitePath+"?_pragma=foreign_keys(1)")
		if err != nil {
			return nil, "", fmt.Errorf("open sqlite: %w", err)
		}
		db.SetMaxOpenConns(1)
		return db, migrations.SQLite, nil
	case config.DriverPostgres:
		db, err := sql.Open("pgx", sc.PostgresURL)
		if err != nil {
			return nil, "", fmt.Errorf("open postgres: %w", err)
		}
		return db, migrations.Postgres, nil
	default:
		return nil, "", fmt.Errorf("store driver %q has no schema to migrate", sc.Driver)
	}
}
