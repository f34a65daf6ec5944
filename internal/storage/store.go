// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/mmynk/teamsync/internal/feed"
	"github.com/mmynk/teamsync/internal/models"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("storage: record not found")

	// ErrConflict is returned when a transaction lost an optimistic
	// concurrency race, or kept losing it after bounded retries.
	ErrConflict = errors.New("storage: transaction conflict")

	// ErrDuplicate is returned when a write would give a second user an
	// email that is already registered. Empty emails never collide.
	ErrDuplicate = errors.New("storage: duplicate email")

	// ErrClosed is returned by a store after Close.
	ErrClosed = errors.New("storage: store is closed")
)

// Reader is the read side shared by stores and transactions.
type Reader interface {
	// GetUser returns ErrNotFound when the user has no record.
	GetUser(ctx context.Context, id string) (*models.User, error)

	// GetUserByEmail returns ErrNotFound when no user has the email.
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	// GetTeam returns ErrNotFound when the team does not exist.
	GetTeam(ctx context.Context, id string) (*models.Team, error)

	// GetSchedule returns ErrNotFound when the entry does not exist.
	GetSchedule(ctx context.Context, id string) (*models.Schedule, error)

	// ListSchedulesByTeam returns a team's entries in insertion order.
	ListSchedulesByTeam(ctx context.Context, teamID string) ([]*models.Schedule, error)

	// GetUsersByIDs retrieves multiple users by their IDs.
	// Users that don't exist are omitted from the result.
	GetUsersByIDs(ctx context.Context, ids []string) (map[string]*models.User, error)
}

// Tx is a read-modify-write view of the store. Writes become visible to
// other readers only when the surrounding RunInTx commits.
type Tx interface {
	Reader

	// PutUser inserts or replaces a user record.
	PutUser(ctx context.Context, user *models.User) error

	// CreateTeam inserts a new team and sets team.Version.
	CreateTeam(ctx context.Context, team *models.Team) error

	// UpdateTeam replaces a team if its stored version still equals
	// team.Version, and bumps team.Version on success.
	// A stale version fails with ErrConflict.
	UpdateTeam(ctx context.Context, team *models.Team) error

	// DeleteTeam removes a team and its schedules.
	DeleteTeam(ctx context.Context, id string) error

	// CreateSchedule inserts an entry and sets schedule.Seq.
	CreateSchedule(ctx context.Context, schedule *models.Schedule) error

	// DeleteSchedule returns ErrNotFound when the entry does not exist.
	DeleteSchedule(ctx context.Context, id string) error
}

// TxFunc is the body of a transaction. It may run more than once.
type TxFunc func(ctx context.Context, tx Tx) error

// Store defines the interface for team, user and schedule storage.
// This abstraction allows swapping storage backends (SQLite, PostgreSQL,
// memory) without changing the service layer.
type Store interface {
	Reader

	// RunInTx runs fn atomically. Conflicting attempts are retried up to
	// the configured limit, after which ErrConflict is returned. Any other
	// error from fn aborts the transaction and is returned unchanged.
	RunInTx(ctx context.Context, fn TxFunc) error

	// TouchUser raises the user's LastActive to at. It never lowers it.
	TouchUser(ctx context.Context, id string, at int64) error

	// Close releases any resources held by the store.
	Close() error
}

// RetryPolicy bounds optimistic concurrency retries.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// BaseDelay is the first backoff delay. It doubles per attempt.
	BaseDelay time.Duration
}

// DefaultRetryPolicy is used when Options.Retry is zero.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, BaseDelay: 5 * time.Millisecond}
}

// Outcome is the result of one transaction attempt.
type Outcome string

const (
	OutcomeCommitted Outcome = "committed"
	OutcomeConflict  Outcome = "conflict"
	OutcomeAborted   Outcome = "aborted"
)

// TxObserver is notified after every transaction attempt.
type TxObserver func(outcome Outcome)

// Options configure the behavior shared by every backend.
type Options struct {
	Retry RetryPolicy
	// Publisher receives change events after each commit. May be nil.
	Publisher feed.Publisher
	// Observer is told the outcome of every attempt. May be nil.
	Observer TxObserver
	Logger   *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Retry.MaxAttempts <= 0 {
		o.Retry.MaxAttempts = DefaultRetryPolicy().MaxAttempts
	}
	if o.Retry.BaseDelay <= 0 {
		o.Retry.BaseDelay = DefaultRetryPolicy().BaseDelay
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// AttemptFunc performs one complete transaction attempt: begin, run the
// body, commit. It returns the change events of a successful commit.
type AttemptFunc func(ctx context.Context) ([]feed.Event, error)

// Runner drives transaction attempts for a backend.
type Runner struct {
	opts Options
}

// NewRunner creates a Runner with defaults applied to opts.
func NewRunner(opts Options) Runner {
	return Runner{opts: opts.withDefaults()}
}

// Logger returns the configured logger.
func (r Runner) Logger() *slog.Logger {
	return r.opts.Logger
}

// Run retries attempt while it fails with ErrConflict, using exponential
// backoff with jitter, and publishes the committed events.
func (r Runner) Run(ctx context.Context, attempt AttemptFunc) error {
	backoff := retry.NewExponential(r.opts.Retry.BaseDelay)
	backoff = retry.WithJitterPercent(25, backoff)
	backoff = retry.WithMaxRetries(uint64(r.opts.Retry.MaxAttempts-1), backoff)

	var events []feed.Event
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		evs, err := attempt(ctx)
		switch {
		case err == nil:
			r.observe(OutcomeCommitted)
			events = evs
			return nil
		case errors.Is(err, ErrConflict):
			r.observe(OutcomeConflict)
			return retry.RetryableError(err)
		default:
			r.observe(OutcomeAborted)
			return err
		}
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			r.opts.Logger.Warn("transaction retries exhausted", "attempts", r.opts.Retry.MaxAttempts)
			return ErrConflict
		}
		return err
	}

	r.Publish(ctx, events)
	return nil
}

// Publish hands events to the configured publisher. Delivery failures are
// logged; the data is already committed.
func (r Runner) Publish(ctx context.Context, events []feed.Event) {
	if r.opts.Publisher == nil {
		return
	}
	for _, ev := range Dedupe(events) {
		if err := r.opts.Publisher.Publish(ctx, ev); err != nil {
			r.opts.Logger.Error("failed to publish change event", "topic", ev.Topic, "error", err)
		}
	}
}

func (r Runner) observe(o Outcome) {
	if r.opts.Observer != nil {
		r.opts.Observer(o)
	}
}

// Dedupe drops repeated events for the same topic and record, keeping the
// last one.
func Dedupe(events []feed.Event) []feed.Event {
	if len(events) < 2 {
		return events
	}
	type key struct{ topic, id string }
	last := make(map[key]int, len(events))
	for i, ev := range events {
		last[key{ev.Topic, ev.ID}] = i
	}
	out := make([]feed.Event, 0, len(last))
	for i, ev := range events {
		if last[key{ev.Topic, ev.ID}] == i {
			out = append(out, ev)
		}
	}
	return out
}

// TeamEvent describes a change to a team record.
func TeamEvent(teamID string, op feed.Op) feed.Event {
	return feed.Event{Topic: feed.TeamTopic(teamID), Collection: "teams", ID: teamID, Op: op}
}

// ScheduleEvent describes a change to one of a team's schedules.
func ScheduleEvent(teamID, scheduleID string, op feed.Op) feed.Event {
	return feed.Event{Topic: feed.ScheduleTopic(teamID), Collection: "schedules", ID: scheduleID, Op: op}
}
