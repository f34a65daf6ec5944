package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mmynk/teamsync/internal/feed"
	"github.com/mmynk/teamsync/internal/models"
	"github.com/mmynk/teamsync/internal/storage"
)

const scheduleColumns = "seq, id, team_id, title, date, due_time, creator_id, created_at"

func scanSchedule(row rowScanner) (*models.Schedule, error) {
	s := &models.Schedule{}
	var dueTime sql.NullString
	if err := row.Scan(
		&s.Seq,
		&s.ID,
		&s.TeamID,
		&s.Title,
		&s.Date,
		&dueTime,
		&s.CreatorID,
		&s.CreatedAt,
	); err != nil {
		return nil, err
	}
	s.DueTime = dueTime.String
	return s, nil
}

// GetSchedule retrieves a schedule by ID.
func (r reader) GetSchedule(ctx context.Context, id string) (*models.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules WHERE id = ?`

	s, err := scanSchedule(r.q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}
	return s, nil
}

// ListSchedulesByTeam returns the team's schedules in insertion order.
func (r reader) ListSchedulesByTeam(ctx context.Context, teamID string) ([]*models.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules WHERE team_id = ? ORDER BY seq`

	rows, err := r.q.QueryContext(ctx, query, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	defer rows.Close()

	var schedules []*models.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		schedules = append(schedules, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating schedules: %w", err)
	}
	return schedules, nil
}

// CreateSchedule inserts an entry; its rowid becomes Seq.
func (t *tx) CreateSchedule(ctx context.Context, s *models.Schedule) error {
	res, err := t.q.ExecContext(ctx,
		`INSERT INTO schedules (id, team_id, title, date, due_time, creator_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.TeamID, s.Title, s.Date, nullString(s.DueTime), s.CreatorID, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert schedule: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read schedule sequence: %w", err)
	}

	s.Seq = seq
	t.emit(storage.ScheduleEvent(s.TeamID, s.ID, feed.OpPut))
	return nil
}

// DeleteSchedule removes an entry by ID.
func (t *tx) DeleteSchedule(ctx context.Context, id string) error {
	var teamID string
	err := t.q.QueryRowContext(ctx, "DELETE FROM schedules WHERE id = ? RETURNING team_id", id).Scan(&teamID)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}

	t.emit(storage.ScheduleEvent(teamID, id, feed.OpDelete))
	return nil
}
