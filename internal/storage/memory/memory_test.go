package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mmynk/teamsync/internal/models"
	"github.com/mmynk/teamsync/internal/storage"
	"github.com/mmynk/teamsync/internal/storage/storagetest"
)

func TestConformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T, opts storage.Options) storage.Store {
		s := New(opts)
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestReadsAreValidatedAtCommit(t *testing.T) {
	s := New(storage.Options{Retry: storage.RetryPolicy{MaxAttempts: 1}})
	ctx := context.Background()

	err := s.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.PutUser(ctx, &models.User{ID: "u1", Email: "u1@example.com"})
	})
	require.NoError(t, err)

	// A write that lands between this transaction's read and its commit
	// invalidates the read.
	err = s.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		u, err := tx.GetUser(ctx, "u1")
		if err != nil {
			return err
		}
		inner := s.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
			return tx.PutUser(ctx, &models.User{ID: "u1", Email: "changed@example.com"})
		})
		require.NoError(t, inner)

		u.TeamID = "t1"
		return tx.PutUser(ctx, u)
	})
	require.ErrorIs(t, err, storage.ErrConflict)

	got, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "changed@example.com", got.Email)
	require.Empty(t, got.TeamID)
}

func TestReadYourWrites(t *testing.T) {
	s := New(storage.Options{})
	ctx := context.Background()

	err := s.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		team := &models.Team{ID: "t1", Name: "Alpha", OwnerID: "u1", Members: []string{"u1"}}
		if err := tx.CreateTeam(ctx, team); err != nil {
			return err
		}
		got, err := tx.GetTeam(ctx, "t1")
		if err != nil {
			return err
		}
		require.Equal(t, "Alpha", got.Name)

		sc := &models.Schedule{ID: "s1", TeamID: "t1", Title: "Plan", Date: "2024-06-01"}
		if err := tx.CreateSchedule(ctx, sc); err != nil {
			return err
		}
		list, err := tx.ListSchedulesByTeam(ctx, "t1")
		if err != nil {
			return err
		}
		require.Len(t, list, 1)
		return nil
	})
	require.NoError(t, err)

	// Outside the transaction nothing was visible before commit, and
	// everything is visible after.
	list, err := s.ListSchedulesByTeam(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestClosedStore(t *testing.T) {
	s := New(storage.Options{})
	require.NoError(t, s.Close())
	ctx := context.Background()

	_, err := s.GetUser(ctx, "u1")
	require.ErrorIs(t, err, storage.ErrClosed)
	require.NotErrorIs(t, err, storage.ErrNotFound)

	_, err = s.GetUserByEmail(ctx, "u1@example.com")
	require.ErrorIs(t, err, storage.ErrClosed)

	err = s.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.PutUser(ctx, &models.User{ID: "u1", Email: "u1@example.com"})
	})
	require.ErrorIs(t, err, storage.ErrClosed)
}
