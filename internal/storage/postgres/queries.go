package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mmynk/teamsync/internal/feed"
	"github.com/mmynk/teamsync/internal/models"
	"github.com/mmynk/teamsync/internal/storage"
)

const (
	userColumns     = `id, email, team_id, password_hash, last_active, created_at`
	scheduleColumns = `seq, id, team_id, title, date, due_time, creator_id, created_at`
)

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	var teamID *string
	if err := row.Scan(&u.ID, &u.Email, &teamID, &u.PasswordHash, &u.LastActive, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.TeamID = deref(teamID)
	return &u, nil
}

func scanSchedule(row pgx.Row) (*models.Schedule, error) {
	var s models.Schedule
	var dueTime *string
	if err := row.Scan(&s.Seq, &s.ID, &s.TeamID, &s.Title, &s.Date, &dueTime, &s.CreatorID, &s.CreatedAt); err != nil {
		return nil, err
	}
	s.DueTime = deref(dueTime)
	return &s, nil
}

// GetUser fetches a user by id.
func (r reader) GetUser(ctx context.Context, id string) (*models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	u, err := scanUser(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", mapErr(err))
	}
	return u, nil
}

// GetUserByEmail fetches a user by email. An empty email matches no one.
func (r reader) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	if email == "" {
		return nil, storage.ErrNotFound
	}
	const query = `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	u, err := scanUser(r.q.QueryRow(ctx, query, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", mapErr(err))
	}
	return u, nil
}

// GetUsersByIDs fetches every existing user among ids in one query.
func (r reader) GetUsersByIDs(ctx context.Context, ids []string) (map[string]*models.User, error) {
	users := make(map[string]*models.User, len(ids))
	if len(ids) == 0 {
		return users, nil
	}
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = ANY($1)`
	rows, err := r.q.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("get users by ids: %w", mapErr(err))
	}
	defer rows.Close()
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users[u.ID] = u
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(err)
	}
	return users, nil
}

// GetTeam fetches a team and its members in join order.
func (r reader) GetTeam(ctx context.Context, id string) (*models.Team, error) {
	const query = `SELECT id, name, owner_id, created_at, version FROM teams WHERE id = $1`
	var t models.Team
	err := r.q.QueryRow(ctx, query, id).Scan(&t.ID, &t.Name, &t.OwnerID, &t.CreatedAt, &t.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get team: %w", mapErr(err))
	}

	rows, err := r.q.Query(ctx, `SELECT user_id FROM team_members WHERE team_id = $1 ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("get members: %w", mapErr(err))
	}
	members, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan members: %w", mapErr(err))
	}
	t.Members = members
	return &t, nil
}

// GetSchedule fetches a schedule by id.
func (r reader) GetSchedule(ctx context.Context, id string) (*models.Schedule, error) {
	const query = `SELECT ` + scheduleColumns + ` FROM schedules WHERE id = $1`
	s, err := scanSchedule(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get schedule: %w", mapErr(err))
	}
	return s, nil
}

// ListSchedulesByTeam lists a team's schedules in insertion order.
func (r reader) ListSchedulesByTeam(ctx context.Context, teamID string) ([]*models.Schedule, error) {
	const query = `SELECT ` + scheduleColumns + ` FROM schedules WHERE team_id = $1 ORDER BY seq`
	rows, err := r.q.Query(ctx, query, teamID)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", mapErr(err))
	}
	defer rows.Close()
	var result []*models.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(err)
	}
	return result, nil
}

// PutUser upserts a user. A concurrent first insert of the same id is a conflict.
func (t *tx) PutUser(ctx context.Context, user *models.User) error {
	const query = `INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			team_id = EXCLUDED.team_id,
			password_hash = EXCLUDED.password_hash,
			last_active = GREATEST(users.last_active, EXCLUDED.last_active)`
	_, err := t.q.Exec(ctx, query,
		user.ID, user.Email, nullable(user.TeamID), user.PasswordHash, user.LastActive, user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			if pgErr.ConstraintName == "users_pkey" {
				return storage.ErrConflict
			}
			return fmt.Errorf("put user %s: %w", user.ID, storage.ErrDuplicate)
		}
		return fmt.Errorf("put user: %w", mapErr(err))
	}
	if user.TeamID != "" {
		t.emit(storage.TeamEvent(user.TeamID, feed.OpPut))
	}
	return nil
}

// CreateTeam inserts a team at version 1 with its members.
func (t *tx) CreateTeam(ctx context.Context, team *models.Team) error {
	const query = `INSERT INTO teams (id, name, owner_id, created_at, version) VALUES ($1, $2, $3, $4, 1)`
	if _, err := t.q.Exec(ctx, query, team.ID, team.Name, team.OwnerID, team.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("team already exists: %s", team.ID)
		}
		return fmt.Errorf("insert team: %w", mapErr(err))
	}
	if err := t.insertMembers(ctx, team); err != nil {
		return err
	}
	team.Version = 1
	t.emit(storage.TeamEvent(team.ID, feed.OpPut))
	return nil
}

// UpdateTeam is a compare-and-swap on the version column.
func (t *tx) UpdateTeam(ctx context.Context, team *models.Team) error {
	const query = `UPDATE teams SET name = $1, owner_id = $2, version = version + 1
		WHERE id = $3 AND version = $4`
	tag, err := t.q.Exec(ctx, query, team.Name, team.OwnerID, team.ID, team.Version)
	if err != nil {
		return fmt.Errorf("update team: %w", mapErr(err))
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		err := t.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM teams WHERE id = $1)`, team.ID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check team: %w", mapErr(err))
		}
		if !exists {
			return storage.ErrNotFound
		}
		return storage.ErrConflict
	}

	if _, err := t.q.Exec(ctx, `DELETE FROM team_members WHERE team_id = $1`, team.ID); err != nil {
		return fmt.Errorf("clear members: %w", mapErr(err))
	}
	if err := t.insertMembers(ctx, team); err != nil {
		return err
	}
	team.Version++
	t.emit(storage.TeamEvent(team.ID, feed.OpPut))
	return nil
}

// DeleteTeam removes a team; members and schedules cascade.
func (t *tx) DeleteTeam(ctx context.Context, id string) error {
	tag, err := t.q.Exec(ctx, `DELETE FROM teams WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete team: %w", mapErr(err))
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	t.emit(storage.TeamEvent(id, feed.OpDelete))
	t.emit(storage.ScheduleEvent(id, "", feed.OpDelete))
	return nil
}

func (t *tx) insertMembers(ctx context.Context, team *models.Team) error {
	batch := &pgx.Batch{}
	for i, userID := range team.Members {
		batch.Queue(`INSERT INTO team_members (team_id, user_id, seq) VALUES ($1, $2, $3)
			ON CONFLICT DO NOTHING`, team.ID, userID, i)
	}
	if batch.Len() == 0 {
		return nil
	}
	pgTx, ok := t.q.(pgx.Tx)
	if !ok {
		return errors.New("insert members outside transaction")
	}
	if err := pgTx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert members: %w", mapErr(err))
	}
	return nil
}

// CreateSchedule inserts an entry; the serial column becomes Seq.
func (t *tx) CreateSchedule(ctx context.Context, s *models.Schedule) error {
	const query = `INSERT INTO schedules (id, team_id, title, date, due_time, creator_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING seq`
	err := t.q.QueryRow(ctx, query,
		s.ID, s.TeamID, s.Title, s.Date, nullable(s.DueTime), s.CreatorID, s.CreatedAt,
	).Scan(&s.Seq)
	if err != nil {
		return fmt.Errorf("insert schedule: %w", mapErr(err))
	}
	t.emit(storage.ScheduleEvent(s.TeamID, s.ID, feed.OpPut))
	return nil
}

// DeleteSchedule removes an entry by id.
func (t *tx) DeleteSchedule(ctx context.Context, id string) error {
	var teamID string
	err := t.q.QueryRow(ctx, `DELETE FROM schedules WHERE id = $1 RETURNING team_id`, id).Scan(&teamID)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete schedule: %w", mapErr(err))
	}
	t.emit(storage.ScheduleEvent(teamID, id, feed.OpDelete))
	return nil
}
