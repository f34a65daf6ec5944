// Package presence keeps a connected user's lastActive timestamp fresh.
package presence

import (
	"context"
	"log/slog"
	"time"
)

// DefaultInterval matches how often a signed-in client reports activity.
const DefaultInterval = 5 * time.Minute

// Toucher raises a user's lastActive. storage.Store satisfies it.
type Toucher interface {
	TouchUser(ctx context.Context, id string, at int64) error
}

// Heartbeat periodically records that a user is active. Beats are
// idempotent and the store never lowers lastActive, so overlapping
// heartbeats for one user are harmless.
type Heartbeat struct {
	store    Toucher
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewHeartbeat creates a Heartbeat. A non-positive interval selects
// DefaultInterval.
func NewHeartbeat(store Toucher, interval time.Duration, logger *slog.Logger) *Heartbeat {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Heartbeat{
		store:    store,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Interval returns the time between beats.
func (h *Heartbeat) Interval() time.Duration {
	return h.interval
}

// Beat records userID as active now.
func (h *Heartbeat) Beat(ctx context.Context, userID string) error {
	return h.store.TouchUser(ctx, userID, h.now().Unix())
}

// Run beats immediately and then every interval until ctx is done.
// Failed beats are logged and the loop keeps going.
func (h *Heartbeat) Run(ctx context.Context, userID string) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		if err := h.Beat(ctx, userID); err != nil && ctx.Err() == nil {
			h.logger.Warn("heartbeat failed", "user_id", userID, "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
