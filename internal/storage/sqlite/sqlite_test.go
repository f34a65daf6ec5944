package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/mmynk/teamsync/internal/models"
	"github.com/mmynk/teamsync/internal/storage"
	"github.com/mmynk/teamsync/internal/storage/storagetest"
)

func newTestStore(t *testing.T, opts storage.Options) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := New(context.Background(), dbPath, opts)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func putUser(ctx context.Context, store *SQLiteStore, u *models.User) error {
	return store.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.PutUser(ctx, u)
	})
}

func TestSQLiteStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T, opts storage.Options) storage.Store {
		return newTestStore(t, opts)
	})
}

func TestSQLiteSpecifics(t *testing.T) {
	ctx := context.Background()

	t.Run("Reopening keeps data and migrations stay applied", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "nested", "dir", "test.db")

		store, err := New(ctx, dbPath, storage.Options{})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		if err := putUser(ctx, store, &models.User{ID: "u1", Email: "u1@example.com", CreatedAt: 1}); err != nil {
			t.Fatalf("PutUser failed: %v", err)
		}
		if err := store.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}

		store, err = New(ctx, dbPath, storage.Options{})
		if err != nil {
			t.Fatalf("Reopen failed: %v", err)
		}
		defer store.Close()

		u, err := store.GetUser(ctx, "u1")
		if err != nil {
			t.Fatalf("GetUser failed: %v", err)
		}
		if u.Email != "u1@example.com" {
			t.Errorf("Expected email u1@example.com, got %q", u.Email)
		}
	})

	t.Run("Deleting a team clears users pointing at it", func(t *testing.T) {
		store := newTestStore(t, storage.Options{})
		owner := &models.User{ID: "owner", Email: "owner@example.com", CreatedAt: 1}
		if err := putUser(ctx, store, owner); err != nil {
			t.Fatalf("PutUser failed: %v", err)
		}
		team := storagetest.Seed(t, store, owner)

		err := store.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
			return tx.DeleteTeam(ctx, team.ID)
		})
		if err != nil {
			t.Fatalf("DeleteTeam failed: %v", err)
		}

		u, err := store.GetUser(ctx, owner.ID)
		if err != nil {
			t.Fatalf("GetUser failed: %v", err)
		}
		if u.TeamID != "" {
			t.Errorf("Expected team_id to be cleared, got %q", u.TeamID)
		}
	})

	t.Run("Email index violation maps to ErrDuplicate", func(t *testing.T) {
		store := newTestStore(t, storage.Options{})
		if err := putUser(ctx, store, &models.User{ID: "a", Email: "shared@example.com", CreatedAt: 1}); err != nil {
			t.Fatalf("PutUser failed: %v", err)
		}

		err := putUser(ctx, store, &models.User{ID: "b", Email: "shared@example.com", CreatedAt: 1})
		if !errors.Is(err, storage.ErrDuplicate) {
			t.Fatalf("Expected ErrDuplicate, got %v", err)
		}
		if _, err := store.GetUser(ctx, "b"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("Expected rejected user to be absent, got %v", err)
		}
	})

	t.Run("Users without an email do not collide", func(t *testing.T) {
		store := newTestStore(t, storage.Options{})
		for _, id := range []string{"x", "y"} {
			if err := putUser(ctx, store, &models.User{ID: id, CreatedAt: 1}); err != nil {
				t.Fatalf("PutUser(%s) failed: %v", id, err)
			}
		}
	})
}

func TestPlaceholders(t *testing.T) {
	tests := map[int]string{0: "", 1: "?", 3: "?, ?, ?"}
	for n, want := range tests {
		if got := placeholders(n); got != want {
			t.Errorf("placeholders(%d) = %q, want %q", n, got, want)
		}
	}
}
