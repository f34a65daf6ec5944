// Package schedule owns the shared calendar of a team: adding and deleting
// dated entries, and the live deadline-ordered view every member sees.
package schedule

import (
	"cmp"
	"context"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/mmynk/teamsync/internal/auth"
	"github.com/mmynk/teamsync/internal/errors"
	"github.com/mmynk/teamsync/internal/feed"
	"github.com/mmynk/teamsync/internal/models"
	"github.com/mmynk/teamsync/internal/storage"
)

const (
	// MaxTitleLength bounds schedule titles, in runes.
	MaxTitleLength = 200
	// DateLayout is the calendar date format of Schedule.Date.
	DateLayout = "2006-01-02"
	// EndOfDay stands in for a missing due time when ordering.
	EndOfDay = "23:59"
)

var dueTimePattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// Snapshot is the complete ordered list of a team's entries at one point.
type Snapshot struct {
	TeamID    string
	Schedules []*models.Schedule
}

// Service implements the schedule operations.
type Service struct {
	store  storage.Store
	broker *feed.Broker
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a Service. broker backs ListForTeam and may be nil
// when live views are not needed.
func NewService(store storage.Store, broker *feed.Broker, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		broker: broker,
		logger: logger,
		now:    time.Now,
	}
}

// ValidateDate checks date is a real YYYY-MM-DD calendar date.
func ValidateDate(op, date string) error {
	if date == "" {
		return errors.New(errors.KindValidation, op, "date is required")
	}
	if _, err := time.Parse(DateLayout, date); err != nil {
		return errors.Newf(errors.KindValidation, op, "date %q is not a valid YYYY-MM-DD date", date)
	}
	return nil
}

// ValidateDueTime checks a non-empty dueTime is an HH:MM time of day.
func ValidateDueTime(op, dueTime string) error {
	if dueTime == "" || dueTimePattern.MatchString(dueTime) {
		return nil
	}
	return errors.Newf(errors.KindValidation, op, "due time %q must be HH:MM between 00:00 and 23:59", dueTime)
}

func validateTitle(op, title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", errors.New(errors.KindValidation, op, "title is required")
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return "", errors.Newf(errors.KindValidation, op, "title must be at most %d characters", MaxTitleLength)
	}
	return title, nil
}

// AddSchedule adds an entry to the team's calendar. Only a current member
// of the team may add to it.
func (s *Service) AddSchedule(ctx context.Context, p auth.Principal, teamID, title, date, dueTime string) (*models.Schedule, error) {
	const op = "schedule.AddSchedule"
	title, err := validateTitle(op, title)
	if err != nil {
		return nil, err
	}
	dueTime = strings.TrimSpace(dueTime)
	if err := ValidateDate(op, date); err != nil {
		return nil, err
	}
	if err := ValidateDueTime(op, dueTime); err != nil {
		return nil, err
	}
	if !p.Authenticated() {
		return nil, errors.New(errors.KindPermission, op, "authentication required")
	}

	var added *models.Schedule
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		if _, err := requireMember(ctx, tx, op, p, teamID); err != nil {
			return err
		}
		entry := &models.Schedule{
			ID:        uuid.NewString(),
			TeamID:    teamID,
			Title:     title,
			Date:      date,
			DueTime:   dueTime,
			CreatorID: p.ID,
			CreatedAt: s.now().Unix(),
		}
		if err := tx.CreateSchedule(ctx, entry); err != nil {
			return err
		}
		added = entry
		return nil
	})
	if err != nil {
		return nil, errors.Classify(op, err)
	}

	s.logger.Info("schedule added", "team_id", teamID, "schedule_id", added.ID, "user_id", p.ID, "date", date)
	return added, nil
}

// DeleteSchedule removes an entry. The creator or the team owner may delete
// it, and only while they are a member of the entry's team.
func (s *Service) DeleteSchedule(ctx context.Context, p auth.Principal, scheduleID string) error {
	const op = "schedule.DeleteSchedule"
	scheduleID = strings.TrimSpace(scheduleID)
	if scheduleID == "" {
		return errors.New(errors.KindValidation, op, "schedule id is required")
	}
	if !p.Authenticated() {
		return errors.New(errors.KindPermission, op, "authentication required")
	}

	var teamID string
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		entry, err := tx.GetSchedule(ctx, scheduleID)
		if errors.Is(err, storage.ErrNotFound) {
			return &errors.Error{Kind: errors.KindNotFound, Op: op, Msg: "schedule not found", Err: err}
		}
		if err != nil {
			return err
		}
		team, err := requireMember(ctx, tx, op, p, entry.TeamID)
		if err != nil {
			return err
		}
		if entry.CreatorID != p.ID && !team.IsOwner(p.ID) {
			return errors.New(errors.KindPermission, op, "only the creator or the team owner can delete this schedule")
		}
		teamID = entry.TeamID
		return tx.DeleteSchedule(ctx, scheduleID)
	})
	if err != nil {
		return errors.Classify(op, err)
	}

	s.logger.Info("schedule deleted", "team_id", teamID, "schedule_id", scheduleID, "user_id", p.ID)
	return nil
}

// List returns the team's entries in deadline order. A non-empty date keeps
// only the entries of that day.
func (s *Service) List(ctx context.Context, p auth.Principal, teamID, date string) ([]*models.Schedule, error) {
	const op = "schedule.List"
	if date != "" {
		if err := ValidateDate(op, date); err != nil {
			return nil, err
		}
	}
	snap, err := s.load(ctx, op, p, teamID)
	if err != nil {
		return nil, err
	}
	if date == "" {
		return snap.Schedules, nil
	}
	return ForDate(snap.Schedules, date), nil
}

// ListForTeam is the live view of a team's calendar. Every snapshot is the
// full ordered list, so a new subscription replays the whole state. The
// stream ends with NotFound when the team is disbanded and with
// Permission as soon as the principal is no longer in the team.
func (s *Service) ListForTeam(ctx context.Context, p auth.Principal, teamID string) (*feed.Stream[Snapshot], error) {
	const op = "schedule.ListForTeam"
	if s.broker == nil {
		return nil, errors.New(errors.KindUnavailable, op, "live views are not configured")
	}
	// Fail fast on the subscription call itself rather than in the stream.
	if _, err := s.load(ctx, op, p, teamID); err != nil {
		return nil, err
	}

	// Team events cover membership changes, so a removed member's view
	// ends without waiting for the next calendar write.
	sub := s.broker.Subscribe(feed.ScheduleTopic(teamID), feed.TeamTopic(teamID))
	return feed.Watch(ctx, sub, func(ctx context.Context) (Snapshot, error) {
		return s.load(ctx, op, p, teamID)
	}), nil
}

func (s *Service) load(ctx context.Context, op string, p auth.Principal, teamID string) (Snapshot, error) {
	if !p.Authenticated() {
		return Snapshot{}, errors.New(errors.KindPermission, op, "authentication required")
	}
	snap := Snapshot{TeamID: teamID}
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		if _, err := requireMember(ctx, tx, op, p, teamID); err != nil {
			return err
		}
		entries, err := tx.ListSchedulesByTeam(ctx, teamID)
		if err != nil {
			return err
		}
		snap.Schedules = entries
		return nil
	})
	if err != nil {
		return Snapshot{}, errors.Classify(op, err)
	}
	Sort(snap.Schedules)
	return snap, nil
}

// requireMember returns the team when p's record points at it and the team
// lists p.
func requireMember(ctx context.Context, tx storage.Tx, op string, p auth.Principal, teamID string) (*models.Team, error) {
	team, err := tx.GetTeam(ctx, teamID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, &errors.Error{Kind: errors.KindNotFound, Op: op, Msg: "team not found", Err: err}
	}
	if err != nil {
		return nil, err
	}
	user, err := tx.GetUser(ctx, p.ID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	if user == nil || user.TeamID != teamID || !team.HasMember(p.ID) {
		return nil, errors.New(errors.KindPermission, op, "not a member of this team")
	}
	return team, nil
}

// ForDate returns the entries on date in deadline order. The input is not
// modified.
func ForDate(entries []*models.Schedule, date string) []*models.Schedule {
	out := make([]*models.Schedule, 0, len(entries))
	for _, e := range entries {
		if e.Date == date {
			out = append(out, e)
		}
	}
	Sort(out)
	return out
}

// Sort orders entries by due time, treating a missing due time as the end
// of the day, and breaks ties by insertion order.
func Sort(entries []*models.Schedule) {
	slices.SortStableFunc(entries, func(a, b *models.Schedule) int {
		if c := cmp.Compare(effectiveDue(a), effectiveDue(b)); c != 0 {
			return c
		}
		return cmp.Compare(a.Seq, b.Seq)
	})
}

func effectiveDue(s *models.Schedule) string {
	if s.DueTime == "" {
		return EndOfDay
	}
	return s.DueTime
}
