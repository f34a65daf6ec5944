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

// GetTeam retrieves a team and its members in join order.
func (r reader) GetTeam(ctx context.Context, id string) (*models.Team, error) {
	team := &models.Team{}
	err := r.q.QueryRowContext(ctx,
		"SELECT id, name, owner_id, created_at, version FROM teams WHERE id = ?",
		id,
	).Scan(&team.ID, &team.Name, &team.OwnerID, &team.CreatedAt, &team.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get team: %w", err)
	}

	rows, err := r.q.QueryContext(ctx,
		"SELECT user_id FROM team_members WHERE team_id = ? ORDER BY seq",
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get members: %w", err)
	}
	defer rows.Close()

	team.Members = []string{}
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		team.Members = append(team.Members, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating members: %w", err)
	}

	return team, nil
}

// CreateTeam inserts a team at version 1 together with its members.
func (t *tx) CreateTeam(ctx context.Context, team *models.Team) error {
	_, err := t.q.ExecContext(ctx,
		"INSERT INTO teams (id, name, owner_id, created_at, version) VALUES (?, ?, ?, ?, 1)",
		team.ID, team.Name, team.OwnerID, team.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert team: %w", err)
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
	res, err := t.q.ExecContext(ctx,
		"UPDATE teams SET name = ?, owner_id = ?, version = version + 1 WHERE id = ? AND version = ?",
		team.Name, team.OwnerID, team.ID, team.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update team: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update team: %w", err)
	}
	if n == 0 {
		var exists int
		err := t.q.QueryRowContext(ctx, "SELECT 1 FROM teams WHERE id = ?", team.ID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to check team: %w", err)
		}
		return storage.ErrConflict
	}

	// Members are rewritten wholesale so seq keeps the slice order.
	if _, err := t.q.ExecContext(ctx, "DELETE FROM team_members WHERE team_id = ?", team.ID); err != nil {
		return fmt.Errorf("failed to clear members: %w", err)
	}
	if err := t.insertMembers(ctx, team); err != nil {
		return err
	}

	team.Version++
	t.emit(storage.TeamEvent(team.ID, feed.OpPut))
	return nil
}

// DeleteTeam removes the team. Members and schedules cascade, and users
// still pointing at the team are detached by the foreign key.
func (t *tx) DeleteTeam(ctx context.Context, id string) error {
	res, err := t.q.ExecContext(ctx, "DELETE FROM teams WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete team: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete team: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}

	t.emit(storage.TeamEvent(id, feed.OpDelete))
	t.emit(storage.ScheduleEvent(id, "", feed.OpDelete))
	return nil
}

func (t *tx) insertMembers(ctx context.Context, team *models.Team) error {
	for i, userID := range team.Members {
		_, err := t.q.ExecContext(ctx,
			"INSERT OR IGNORE INTO team_members (team_id, user_id, seq) VALUES (?, ?, ?)",
			team.ID, userID, i,
		)
		if err != nil {
			return fmt.Errorf("failed to insert member: %w", err)
		}
	}
	return nil
}
