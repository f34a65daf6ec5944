// Package storagetest is a conformance suite shared by every storage backend.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/teamsync/internal/feed"
	"github.com/mmynk/teamsync/internal/models"
	"github.com/mmynk/teamsync/internal/storage"
)

// Factory opens an empty store configured with opts.
type Factory func(t *testing.T, opts storage.Options) storage.Store

// Run exercises a backend against the storage contract.
func Run(t *testing.T, open Factory) {
	t.Run("users", func(t *testing.T) { testUsers(t, open) })
	t.Run("emails", func(t *testing.T) { testEmails(t, open) })
	t.Run("teams", func(t *testing.T) { testTeams(t, open) })
	t.Run("schedules", func(t *testing.T) { testSchedules(t, open) })
	t.Run("rollback", func(t *testing.T) { testRollback(t, open) })
	t.Run("stale version", func(t *testing.T) { testStaleVersion(t, open) })
	t.Run("touch", func(t *testing.T) { testTouch(t, open) })
	t.Run("events after commit", func(t *testing.T) { testEvents(t, open) })
	t.Run("concurrent member adds", func(t *testing.T) { testConcurrentAdds(t, open) })
}

func testEmails(t *testing.T, open Factory) {
	store := open(t, storage.Options{})
	ctx := context.Background()
	put := func(u *models.User) error {
		return store.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
			return tx.PutUser(ctx, u)
		})
	}

	taken := newUser("taken@example.com")
	require.NoError(t, put(taken))

	// A second user cannot take a registered email.
	err := put(newUser("taken@example.com"))
	require.ErrorIs(t, err, storage.ErrDuplicate)
	require.NotErrorIs(t, err, storage.ErrConflict)

	// Rewriting the holder keeps its email.
	again := taken.Clone()
	again.LastActive = 10
	require.NoError(t, put(again))

	// Users without an email never collide, and no lookup finds them.
	for i := 0; i < 3; i++ {
		require.NoError(t, put(newUser("")))
	}
	_, err = store.GetUserByEmail(ctx, "")
	require.ErrorIs(t, err, storage.ErrNotFound)

	// Two writes in one transaction with the same email fail together.
	err = store.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.PutUser(ctx, newUser("pair@example.com")); err != nil {
			return err
		}
		return tx.PutUser(ctx, newUser("pair@example.com"))
	})
	require.ErrorIs(t, err, storage.ErrDuplicate)
	_, err = store.GetUserByEmail(ctx, "pair@example.com")
	require.ErrorIs(t, err, storage.ErrNotFound)

	// Concurrent claims of one email: exactly one wins, the rest see
	// ErrDuplicate rather than a retryable conflict.
	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- put(newUser("race@example.com"))
		}()
	}
	wg.Wait()
	close(errs)
	wins := 0
	for err := range errs {
		if err == nil {
			wins++
			continue
		}
		require.ErrorIs(t, err, storage.ErrDuplicate)
	}
	require.Equal(t, 1, wins)
}

func newUser(email string) *models.User {
	return &models.User{
		ID:        uuid.NewString(),
		Email:     email,
		CreatedAt: time.Now().Unix(),
	}
}

// Seed creates users and a team owned by the first user, with every user
// as a member. It returns the committed team.
func Seed(t *testing.T, store storage.Store, users ...*models.User) *models.Team {
	t.Helper()
	team := &models.Team{ID: uuid.NewString(), Name: "Alpha", CreatedAt: time.Now().Unix()}
	err := store.RunInTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		created := team.Clone()
		created.OwnerID = users[0].ID
		for _, u := range users {
			created.AddMember(u.ID)
		}
		if err := tx.CreateTeam(ctx, created); err != nil {
			return err
		}
		for _, u := range users {
			u := u.Clone()
			u.TeamID = created.ID
			if err := tx.PutUser(ctx, u); err != nil {
				return err
			}
		}
		team = created
		return nil
	})
	require.NoError(t, err)
	for _, u := range users {
		u.TeamID = team.ID
	}
	return team
}

func putUsers(t *testing.T, store storage.Store, users ...*models.User) {
	t.Helper()
	err := store.RunInTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		for _, u := range users {
			if err := tx.PutUser(ctx, u); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func testUsers(t *testing.T, open Factory) {
	store := open(t, storage.Options{})
	ctx := context.Background()

	alice := newUser("alice@example.com")
	bob := newUser("bob@example.com")
	putUsers(t, store, alice, bob)

	got, err := store.GetUser(ctx, alice.ID)
	require.NoError(t, err)
	require.Equal(t, alice.Email, got.Email)
	require.Empty(t, got.TeamID)

	byEmail, err := store.GetUserByEmail(ctx, "bob@example.com")
	require.NoError(t, err)
	require.Equal(t, bob.ID, byEmail.ID)

	_, err = store.GetUser(ctx, "missing")
	require.ErrorIs(t, err, storage.ErrNotFound)
	_, err = store.GetUserByEmail(ctx, "nobody@example.com")
	require.ErrorIs(t, err, storage.ErrNotFound)

	users, err := store.GetUsersByIDs(ctx, []string{alice.ID, bob.ID, "missing"})
	require.NoError(t, err)
	require.Len(t, users, 2)
	require.Equal(t, "alice@example.com", users[alice.ID].Email)

	empty, err := store.GetUsersByIDs(ctx, nil)
	require.NoError(t, err)
	require.Empty(t, empty)

	// Records handed out must not alias store state.
	got.Email = "mutated@example.com"
	again, err := store.GetUser(ctx, alice.ID)
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", again.Email)
}

func testTeams(t *testing.T, open Factory) {
	store := open(t, storage.Options{})
	ctx := context.Background()

	owner := newUser("owner@example.com")
	putUsers(t, store, owner)
	team := Seed(t, store, owner)
	require.Equal(t, int64(1), team.Version)

	got, err := store.GetTeam(ctx, team.ID)
	require.NoError(t, err)
	require.Equal(t, "Alpha", got.Name)
	require.Equal(t, owner.ID, got.OwnerID)
	require.Equal(t, []string{owner.ID}, got.Members)
	require.Equal(t, int64(1), got.Version)

	member := newUser("member@example.com")
	err = store.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		cur, err := tx.GetTeam(ctx, team.ID)
		if err != nil {
			return err
		}
		cur.AddMember(member.ID)
		cur.Name = "Alpha Prime"
		if err := tx.UpdateTeam(ctx, cur); err != nil {
			return err
		}
		if cur.Version != 2 {
			return fmt.Errorf("version not bumped: %d", cur.Version)
		}
		u := member.Clone()
		u.TeamID = cur.ID
		return tx.PutUser(ctx, u)
	})
	require.NoError(t, err)

	got, err = store.GetTeam(ctx, team.ID)
	require.NoError(t, err)
	require.Equal(t, "Alpha Prime", got.Name)
	require.Equal(t, []string{owner.ID, member.ID}, got.Members)
	require.Equal(t, int64(2), got.Version)

	u, err := store.GetUser(ctx, member.ID)
	require.NoError(t, err)
	require.Equal(t, team.ID, u.TeamID)

	err = store.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.UpdateTeam(ctx, &models.Team{ID: "missing", Name: "x", OwnerID: owner.ID, Members: []string{owner.ID}, Version: 1})
	})
	require.ErrorIs(t, err, storage.ErrNotFound)

	err = store.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		for _, id := range []string{owner.ID, member.ID} {
			u, err := tx.GetUser(ctx, id)
			if err != nil {
				return err
			}
			u.TeamID = ""
			if err := tx.PutUser(ctx, u); err != nil {
				return err
			}
		}
		return tx.DeleteTeam(ctx, team.ID)
	})
	require.NoError(t, err)

	_, err = store.GetTeam(ctx, team.ID)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func testSchedules(t *testing.T, open Factory) {
	store := open(t, storage.Options{})
	ctx := context.Background()

	owner := newUser("sched-owner@example.com")
	putUsers(t, store, owner)
	team := Seed(t, store, owner)

	var ids []string
	for _, title := range []string{"Standup", "Review", "Retro"} {
		s := &models.Schedule{
			ID:        uuid.NewString(),
			TeamID:    team.ID,
			Title:     title,
			Date:      "2024-06-01",
			CreatorID: owner.ID,
			CreatedAt: time.Now().Unix(),
		}
		if title == "Standup" {
			s.DueTime = "09:00"
		}
		err := store.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
			return tx.CreateSchedule(ctx, s)
		})
		require.NoError(t, err)
		require.NotZero(t, s.Seq)
		ids = append(ids, s.ID)
	}

	list, err := store.ListSchedulesByTeam(ctx, team.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	for i, s := range list {
		require.Equal(t, ids[i], s.ID)
		if i > 0 {
			require.Greater(t, s.Seq, list[i-1].Seq)
		}
	}
	require.Equal(t, "09:00", list[0].DueTime)
	require.Empty(t, list[1].DueTime)

	got, err := store.GetSchedule(ctx, ids[1])
	require.NoError(t, err)
	require.Equal(t, "Review", got.Title)

	err = store.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.DeleteSchedule(ctx, ids[1])
	})
	require.NoError(t, err)
	_, err = store.GetSchedule(ctx, ids[1])
	require.ErrorIs(t, err, storage.ErrNotFound)

	err = store.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.DeleteSchedule(ctx, ids[1])
	})
	require.ErrorIs(t, err, storage.ErrNotFound)

	err = store.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		u, err := tx.GetUser(ctx, owner.ID)
		if err != nil {
			return err
		}
		u.TeamID = ""
		if err := tx.PutUser(ctx, u); err != nil {
			return err
		}
		return tx.DeleteTeam(ctx, team.ID)
	})
	require.NoError(t, err)

	list, err = store.ListSchedulesByTeam(ctx, team.ID)
	require.NoError(t, err)
	require.Empty(t, list, "schedules cascade with their team")
}

func testRollback(t *testing.T, open Factory) {
	store := open(t, storage.Options{})
	ctx := context.Background()

	owner := newUser("rollback@example.com")
	putUsers(t, store, owner)

	boom := errors.New("boom")
	teamID := uuid.NewString()
	err := store.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		team := &models.Team{ID: teamID, Name: "Ghost", OwnerID: owner.ID, Members: []string{owner.ID}, CreatedAt: 1}
		if err := tx.CreateTeam(ctx, team); err != nil {
			return err
		}
		u := owner.Clone()
		u.TeamID = teamID
		if err := tx.PutUser(ctx, u); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = store.GetTeam(ctx, teamID)
	require.ErrorIs(t, err, storage.ErrNotFound)
	u, err := store.GetUser(ctx, owner.ID)
	require.NoError(t, err)
	require.Empty(t, u.TeamID, "no partial state after an aborted transaction")
}

func testStaleVersion(t *testing.T, open Factory) {
	var mu sync.Mutex
	var outcomes []storage.Outcome
	store := open(t, storage.Options{
		Retry: storage.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond},
		Observer: func(o storage.Outcome) {
			mu.Lock()
			outcomes = append(outcomes, o)
			mu.Unlock()
		},
	})
	ctx := context.Background()

	owner := newUser("stale@example.com")
	putUsers(t, store, owner)
	team := Seed(t, store, owner)

	mu.Lock()
	outcomes = nil
	mu.Unlock()

	err := store.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		cur, err := tx.GetTeam(ctx, team.ID)
		if err != nil {
			return err
		}
		cur.Version = 99
		return tx.UpdateTeam(ctx, cur)
	})
	require.ErrorIs(t, err, storage.ErrConflict)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []storage.Outcome{storage.OutcomeConflict, storage.OutcomeConflict}, outcomes)
}

func testTouch(t *testing.T, open Factory) {
	store := open(t, storage.Options{})
	ctx := context.Background()

	u := newUser("touch@example.com")
	putUsers(t, store, u)

	require.NoError(t, store.TouchUser(ctx, u.ID, 100))
	require.NoError(t, store.TouchUser(ctx, u.ID, 50))
	got, err := store.GetUser(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, int64(100), got.LastActive)

	// A stale full-record write does not move lastActive backwards.
	stale := got.Clone()
	stale.LastActive = 10
	putUsers(t, store, stale)
	got, err = store.GetUser(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, int64(100), got.LastActive)

	require.ErrorIs(t, store.TouchUser(ctx, "missing", 1), storage.ErrNotFound)
}

func testEvents(t *testing.T, open Factory) {
	broker := feed.NewBroker()
	store := open(t, storage.Options{Publisher: broker})
	ctx := context.Background()

	owner := newUser("events@example.com")
	putUsers(t, store, owner)
	team := Seed(t, store, owner)

	teamSub := broker.Subscribe(feed.TeamTopic(team.ID))
	defer teamSub.Close()
	schedSub := broker.Subscribe(feed.ScheduleTopic(team.ID))
	defer schedSub.Close()

	err := store.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.CreateSchedule(ctx, &models.Schedule{
			ID: uuid.NewString(), TeamID: team.ID, Title: "Plan", Date: "2024-06-01",
			CreatorID: owner.ID, CreatedAt: 1,
		})
	})
	require.NoError(t, err)

	select {
	case ev := <-schedSub.Events():
		require.Equal(t, feed.OpPut, ev.Op)
		require.Equal(t, "schedules", ev.Collection)
	case <-time.After(time.Second):
		t.Fatal("expected a schedule event")
	}

	err = store.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		cur, err := tx.GetTeam(ctx, team.ID)
		if err != nil {
			return err
		}
		cur.Name = "Renamed"
		if err := tx.UpdateTeam(ctx, cur); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)
	select {
	case ev := <-teamSub.Events():
		t.Fatalf("aborted transaction published %+v", ev)
	default:
	}

	require.NoError(t, store.TouchUser(ctx, owner.ID, time.Now().Unix()))
	select {
	case ev := <-teamSub.Events():
		require.Equal(t, team.ID, ev.ID)
	case <-time.After(time.Second):
		t.Fatal("expected a team event after a heartbeat")
	}
}

func testConcurrentAdds(t *testing.T, open Factory) {
	store := open(t, storage.Options{
		Retry: storage.RetryPolicy{MaxAttempts: 200, BaseDelay: time.Millisecond},
	})
	ctx := context.Background()

	owner := newUser("concurrent-owner@example.com")
	putUsers(t, store, owner)
	team := Seed(t, store, owner)

	const n = 16
	joiners := make([]*models.User, n)
	for i := range joiners {
		joiners[i] = newUser(fmt.Sprintf("joiner-%d@example.com", i))
	}
	putUsers(t, store, joiners...)

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for _, j := range joiners {
		wg.Add(1)
		go func(j *models.User) {
			defer wg.Done()
			errs <- store.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
				cur, err := tx.GetTeam(ctx, team.ID)
				if err != nil {
					return err
				}
				cur.AddMember(j.ID)
				if err := tx.UpdateTeam(ctx, cur); err != nil {
					return err
				}
				u := j.Clone()
				u.TeamID = team.ID
				return tx.PutUser(ctx, u)
			})
		}(j)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := store.GetTeam(ctx, team.ID)
	require.NoError(t, err)
	require.Len(t, got.Members, n+1)
	require.Equal(t, int64(n+1), got.Version)
	for _, j := range joiners {
		require.True(t, got.HasMember(j.ID), "joiner %s lost", j.Email)
	}
}
