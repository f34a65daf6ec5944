// Package memory provides an in-process implementation of storage.Store
// with optimistic concurrency control.
//
// Every record carries a version. A transaction remembers the version of
// each record it read and buffers its writes; commit succeeds only if none
// of those versions changed in the meantime.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/mmynk/teamsync/internal/feed"
	"github.com/mmynk/teamsync/internal/models"
	"github.com/mmynk/teamsync/internal/storage"
)

var _ storage.Store = (*Store)(nil)

const (
	usersPrefix     = "users/"
	teamsPrefix     = "teams/"
	schedulesPrefix = "schedules/"
	// teamSchedulesPrefix versions the membership of a team's schedule list,
	// so a listing conflicts with concurrent inserts and deletes.
	teamSchedulesPrefix = "team-schedules/"
)

// Store is a versioned in-memory store.
type Store struct {
	runner storage.Runner

	mu       sync.RWMutex
	data     map[string]any
	versions map[string]int64
	clock    int64
	seq      int64
	closed   bool
}

// New creates an empty Store.
func New(opts storage.Options) *Store {
	return &Store{
		runner:   storage.NewRunner(opts),
		data:     make(map[string]any),
		versions: make(map[string]int64),
	}
}

// Close marks the store closed. Later calls fail.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// RunInTx runs fn with optimistic concurrency control.
func (s *Store) RunInTx(ctx context.Context, fn storage.TxFunc) error {
	return s.runner.Run(ctx, func(ctx context.Context) ([]feed.Event, error) {
		t := &tx{s: s, reads: make(map[string]int64), writes: make(map[string]write)}
		if err := fn(ctx, t); err != nil {
			// A body that failed on a stale view may have failed for the
			// wrong reason; retry it against fresh data.
			if !s.validate(t) {
				return nil, storage.ErrConflict
			}
			return nil, err
		}
		return s.commit(t)
	})
}

// TouchUser raises the user's LastActive.
func (s *Store) TouchUser(ctx context.Context, id string, at int64) error {
	s.mu.Lock()
	if err := s.usable(ctx); err != nil {
		s.mu.Unlock()
		return err
	}
	key := usersPrefix + id
	v, ok := s.data[key]
	if !ok {
		s.mu.Unlock()
		return storage.ErrNotFound
	}
	user := v.(*models.User)
	if at <= user.LastActive {
		s.mu.Unlock()
		return nil
	}
	updated := user.Clone()
	updated.LastActive = at
	s.clock++
	s.data[key] = updated
	s.versions[key] = s.clock
	s.mu.Unlock()

	if updated.TeamID != "" {
		s.runner.Publish(ctx, []feed.Event{storage.TeamEvent(updated.TeamID, feed.OpPut)})
	}
	return nil
}

// GetUser returns a copy of the user.
func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	v, _, err := s.read(ctx, usersPrefix+id)
	if err != nil {
		return nil, err
	}
	return v.(*models.User).Clone(), nil
}

// GetUserByEmail scans users for the email. An empty email matches no one.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.usable(ctx); err != nil {
		return nil, err
	}
	if u := s.userByEmailLocked(email, nil, ""); u != nil {
		return u.Clone(), nil
	}
	return nil, storage.ErrNotFound
}

// userByEmailLocked finds the user holding email, seeing pending writes
// over committed data and ignoring the record stored under except. Must be
// called with s.mu held.
func (s *Store) userByEmailLocked(email string, pending map[string]write, except string) *models.User {
	if email == "" {
		return nil
	}
	for key, w := range pending {
		if key == except || w.deleted {
			continue
		}
		if u, ok := w.value.(*models.User); ok && u.Email == email {
			return u
		}
	}
	for key, v := range s.data {
		if key == except || !strings.HasPrefix(key, usersPrefix) {
			continue
		}
		if _, overridden := pending[key]; overridden {
			continue
		}
		if u := v.(*models.User); u.Email == email {
			return u
		}
	}
	return nil
}

// checkEmailsLocked fails with storage.ErrDuplicate when a pending user
// write takes an email held by a different user. Must be called with s.mu
// held.
func (s *Store) checkEmailsLocked(writes map[string]write) error {
	for key, w := range writes {
		u, ok := w.value.(*models.User)
		if !ok || w.deleted {
			continue
		}
		if s.userByEmailLocked(u.Email, writes, key) != nil {
			return fmt.Errorf("put user %s: %w", u.ID, storage.ErrDuplicate)
		}
	}
	return nil
}

// GetTeam returns a copy of the team.
func (s *Store) GetTeam(ctx context.Context, id string) (*models.Team, error) {
	v, _, err := s.read(ctx, teamsPrefix+id)
	if err != nil {
		return nil, err
	}
	return v.(*models.Team).Clone(), nil
}

// GetSchedule returns a copy of the schedule.
func (s *Store) GetSchedule(ctx context.Context, id string) (*models.Schedule, error) {
	v, _, err := s.read(ctx, schedulesPrefix+id)
	if err != nil {
		return nil, err
	}
	return v.(*models.Schedule).Clone(), nil
}

// ListSchedulesByTeam returns the team's schedules in insertion order.
func (s *Store) ListSchedulesByTeam(ctx context.Context, teamID string) ([]*models.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.usable(ctx); err != nil {
		return nil, err
	}
	return s.schedulesOf(teamID, nil), nil
}

// GetUsersByIDs returns the users that exist among ids.
func (s *Store) GetUsersByIDs(ctx context.Context, ids []string) (map[string]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.usable(ctx); err != nil {
		return nil, err
	}
	users := make(map[string]*models.User, len(ids))
	for _, id := range ids {
		if v, ok := s.data[usersPrefix+id]; ok {
			users[id] = v.(*models.User).Clone()
		}
	}
	return users, nil
}

// read returns the stored value and version for key. The value must not
// be modified.
func (s *Store) read(ctx context.Context, key string) (any, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.usable(ctx); err != nil {
		return nil, 0, err
	}
	v, ok := s.data[key]
	if !ok {
		return nil, s.versions[key], storage.ErrNotFound
	}
	return v, s.versions[key], nil
}

// usable must be called with s.mu held.
func (s *Store) usable(ctx context.Context) error {
	if s.closed {
		return storage.ErrClosed
	}
	return ctx.Err()
}

// schedulesOf lists a team's schedules, applying pending writes if given.
// Must be called with s.mu held.
func (s *Store) schedulesOf(teamID string, pending map[string]write) []*models.Schedule {
	var list []*models.Schedule
	for key, v := range s.data {
		if !strings.HasPrefix(key, schedulesPrefix) {
			continue
		}
		if _, overridden := pending[key]; overridden {
			continue
		}
		if sc := v.(*models.Schedule); sc.TeamID == teamID {
			list = append(list, sc.Clone())
		}
	}
	for key, w := range pending {
		if !strings.HasPrefix(key, schedulesPrefix) || w.deleted {
			continue
		}
		if sc := w.value.(*models.Schedule); sc.TeamID == teamID {
			list = append(list, sc.Clone())
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Seq < list[j].Seq })
	return list
}

func (s *Store) validate(t *tx) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.validateLocked(t)
}

func (s *Store) validateLocked(t *tx) bool {
	for key, seen := range t.reads {
		if s.versions[key] != seen {
			return false
		}
	}
	return true
}

func (s *Store) commit(t *tx) ([]feed.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, storage.ErrClosed
	}
	if !s.validateLocked(t) {
		return nil, storage.ErrConflict
	}
	if err := s.checkEmailsLocked(t.writes); err != nil {
		return nil, err
	}
	for key, w := range t.writes {
		s.clock++
		s.versions[key] = s.clock
		if w.deleted {
			delete(s.data, key)
			continue
		}
		if u, ok := w.value.(*models.User); ok {
			if cur, exists := s.data[key]; exists && cur.(*models.User).LastActive > u.LastActive {
				u.LastActive = cur.(*models.User).LastActive
			}
		}
		s.data[key] = w.value
	}
	for _, key := range t.touchedLists {
		s.clock++
		s.versions[key] = s.clock
	}
	return t.events, nil
}

type write struct {
	value   any
	deleted bool
}

// tx is a buffered transaction. It is used by one goroutine.
type tx struct {
	s            *Store
	reads        map[string]int64
	writes       map[string]write
	touchedLists []string
	events       []feed.Event
}

var _ storage.Tx = (*tx)(nil)

// get returns the tx-visible value for key and records its version.
func (t *tx) get(ctx context.Context, key string) (any, error) {
	if w, ok := t.writes[key]; ok {
		if w.deleted {
			return nil, storage.ErrNotFound
		}
		return w.value, nil
	}
	v, version, err := t.s.read(ctx, key)
	if _, seen := t.reads[key]; !seen && (err == nil || errors.Is(err, storage.ErrNotFound)) {
		t.reads[key] = version
	}
	return v, err
}

func (t *tx) put(key string, value any) {
	t.writes[key] = write{value: value}
}

func (t *tx) del(key string) {
	t.writes[key] = write{deleted: true}
}

func (t *tx) touchList(teamID string) {
	t.touchedLists = append(t.touchedLists, teamSchedulesPrefix+teamID)
}

func (t *tx) GetUser(ctx context.Context, id string) (*models.User, error) {
	v, err := t.get(ctx, usersPrefix+id)
	if err != nil {
		return nil, err
	}
	return v.(*models.User).Clone(), nil
}

// GetUserByEmail is not tracked for conflicts; it only serves lookups.
func (t *tx) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := t.s.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return t.GetUser(ctx, u.ID)
}

func (t *tx) GetTeam(ctx context.Context, id string) (*models.Team, error) {
	v, err := t.get(ctx, teamsPrefix+id)
	if err != nil {
		return nil, err
	}
	return v.(*models.Team).Clone(), nil
}

func (t *tx) GetSchedule(ctx context.Context, id string) (*models.Schedule, error) {
	v, err := t.get(ctx, schedulesPrefix+id)
	if err != nil {
		return nil, err
	}
	return v.(*models.Schedule).Clone(), nil
}

func (t *tx) ListSchedulesByTeam(ctx context.Context, teamID string) ([]*models.Schedule, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	if err := t.s.usable(ctx); err != nil {
		return nil, err
	}
	key := teamSchedulesPrefix + teamID
	if _, seen := t.reads[key]; !seen {
		t.reads[key] = t.s.versions[key]
	}
	list := t.s.schedulesOf(teamID, t.writes)
	for _, sc := range list {
		k := schedulesPrefix + sc.ID
		if _, seen := t.reads[k]; !seen {
			if _, pending := t.writes[k]; !pending {
				t.reads[k] = t.s.versions[k]
			}
		}
	}
	return list, nil
}

func (t *tx) GetUsersByIDs(ctx context.Context, ids []string) (map[string]*models.User, error) {
	users := make(map[string]*models.User, len(ids))
	for _, id := range ids {
		u, err := t.GetUser(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		users[id] = u
	}
	return users, nil
}

func (t *tx) PutUser(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		return fmt.Errorf("user id is required")
	}
	// Reading first makes a concurrent write to the same user a conflict.
	if _, err := t.get(ctx, usersPrefix+user.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	t.s.mu.RLock()
	holder := t.s.userByEmailLocked(user.Email, t.writes, usersPrefix+user.ID)
	t.s.mu.RUnlock()
	if holder != nil {
		return fmt.Errorf("put user %s: %w", user.ID, storage.ErrDuplicate)
	}
	t.put(usersPrefix+user.ID, user.Clone())
	if user.TeamID != "" {
		t.events = append(t.events, storage.TeamEvent(user.TeamID, feed.OpPut))
	}
	return nil
}

func (t *tx) CreateTeam(ctx context.Context, team *models.Team) error {
	key := teamsPrefix + team.ID
	_, err := t.get(ctx, key)
	if err == nil {
		return fmt.Errorf("team already exists: %s", team.ID)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	team.Version = 1
	t.put(key, team.Clone())
	t.events = append(t.events, storage.TeamEvent(team.ID, feed.OpPut))
	return nil
}

func (t *tx) UpdateTeam(ctx context.Context, team *models.Team) error {
	key := teamsPrefix + team.ID
	v, err := t.get(ctx, key)
	if err != nil {
		return err
	}
	if v.(*models.Team).Version != team.Version {
		return storage.ErrConflict
	}
	team.Version++
	t.put(key, team.Clone())
	t.events = append(t.events, storage.TeamEvent(team.ID, feed.OpPut))
	return nil
}

func (t *tx) DeleteTeam(ctx context.Context, id string) error {
	if _, err := t.get(ctx, teamsPrefix+id); err != nil {
		return err
	}
	schedules, err := t.ListSchedulesByTeam(ctx, id)
	if err != nil {
		return err
	}
	for _, sc := range schedules {
		t.del(schedulesPrefix + sc.ID)
	}
	if len(schedules) > 0 {
		t.touchList(id)
	}
	// Live calendar views end on this event, even for an empty calendar.
	t.events = append(t.events, storage.ScheduleEvent(id, "", feed.OpDelete))
	t.del(teamsPrefix + id)
	t.events = append(t.events, storage.TeamEvent(id, feed.OpDelete))
	return nil
}

func (t *tx) CreateSchedule(ctx context.Context, schedule *models.Schedule) error {
	if _, err := t.get(ctx, teamsPrefix+schedule.TeamID); err != nil {
		return fmt.Errorf("failed to create schedule for team %s: %w", schedule.TeamID, err)
	}
	t.s.mu.Lock()
	t.s.seq++
	schedule.Seq = t.s.seq
	t.s.mu.Unlock()

	t.put(schedulesPrefix+schedule.ID, schedule.Clone())
	t.touchList(schedule.TeamID)
	t.events = append(t.events, storage.ScheduleEvent(schedule.TeamID, schedule.ID, feed.OpPut))
	return nil
}

func (t *tx) DeleteSchedule(ctx context.Context, id string) error {
	v, err := t.get(ctx, schedulesPrefix+id)
	if err != nil {
		return err
	}
	teamID := v.(*models.Schedule).TeamID
	t.del(schedulesPrefix + id)
	t.touchList(teamID)
	t.events = append(t.events, storage.ScheduleEvent(teamID, id, feed.OpDelete))
	return nil
}
