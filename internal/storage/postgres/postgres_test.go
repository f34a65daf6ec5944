package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/teamsync/internal/storage"
	"github.com/mmynk/teamsync/internal/storage/storagetest"
)

// TEAMSYNC_TEST_POSTGRES_URL points at a disposable database; the suite
// truncates every table before each case.
func TestPostgresStore(t *testing.T) {
	url := os.Getenv("TEAMSYNC_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("TEAMSYNC_TEST_POSTGRES_URL not set")
	}

	storagetest.Run(t, func(t *testing.T, opts storage.Options) storage.Store {
		ctx := context.Background()
		s, err := New(ctx, url, opts)
		require.NoError(t, err)
		_, err = s.Pool().Exec(ctx, `TRUNCATE schedules, team_members, users, teams`)
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestMapErr(t *testing.T) {
	serialization := &pgconn.PgError{Code: "40001"}
	require.ErrorIs(t, mapErr(serialization), storage.ErrConflict)

	deadlock := fmt.Errorf("update: %w", &pgconn.PgError{Code: "40P01"})
	require.ErrorIs(t, mapErr(deadlock), storage.ErrConflict)

	other := errors.New("connection refused")
	require.Equal(t, other, mapErr(other))

	require.True(t, isUniqueViolation(&pgconn.PgError{Code: "23505"}))
	require.False(t, isUniqueViolation(other))
}
