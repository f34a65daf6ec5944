package presence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mmynk/teamsync/internal/models"
	"github.com/mmynk/teamsync/internal/storage"
	"github.com/mmynk/teamsync/internal/storage/memory"
)

type countingToucher struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (c *countingToucher) TouchUser(context.Context, string, int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.fail {
		return errors.New("store down")
	}
	return nil
}

func (c *countingToucher) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestBeatIsMonotonic(t *testing.T) {
	store := memory.New(storage.Options{})
	ctx := context.Background()
	require.NoError(t, store.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.PutUser(ctx, &models.User{ID: "u1", Email: "u1@example.com", LastActive: 100})
	}))

	h := NewHeartbeat(store, time.Minute, nil)
	h.now = func() time.Time { return time.Unix(500, 0) }
	require.NoError(t, h.Beat(ctx, "u1"))
	require.NoError(t, h.Beat(ctx, "u1"))

	// A delayed beat carrying an older clock reading does not move it back.
	h.now = func() time.Time { return time.Unix(300, 0) }
	require.NoError(t, h.Beat(ctx, "u1"))

	u, err := store.GetUser(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(500), u.LastActive)
}

func TestRunBeatsImmediatelyAndPeriodically(t *testing.T) {
	c := &countingToucher{}
	h := NewHeartbeat(c, 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx, "u1")
		close(done)
	}()

	require.Eventually(t, func() bool { return c.count() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}

func TestRunSurvivesFailures(t *testing.T) {
	c := &countingToucher{fail: true}
	h := NewHeartbeat(c, 5*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx, "u1")

	require.Eventually(t, func() bool { return c.count() >= 3 }, 2*time.Second, 5*time.Millisecond)
}

func TestDefaultInterval(t *testing.T) {
	require.Equal(t, DefaultInterval, NewHeartbeat(&countingToucher{}, 0, nil).Interval())
}
