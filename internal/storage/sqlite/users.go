package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mmynk/teamsync/internal/feed"
	"github.com/mmynk/teamsync/internal/models"
	"github.com/mmynk/teamsync/internal/storage"
)

const userColumns = "id, email, team_id, password_hash, last_active, created_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	user := &models.User{}
	var teamID sql.NullString
	if err := row.Scan(
		&user.ID,
		&user.Email,
		&teamID,
		&user.PasswordHash,
		&user.LastActive,
		&user.CreatedAt,
	); err != nil {
		return nil, err
	}
	user.TeamID = teamID.String
	return user, nil
}

// PutUser inserts a user or replaces its fields. last_active never decreases.
func (t *tx) PutUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			email = excluded.email,
			team_id = excluded.team_id,
			password_hash = excluded.password_hash,
			last_active = MAX(users.last_active, excluded.last_active)
	`

	_, err := t.q.ExecContext(ctx, query,
		user.ID,
		user.Email,
		nullString(user.TeamID),
		user.PasswordHash,
		user.LastActive,
		user.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("failed to put user %s: %w", user.ID, storage.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to put user: %w", err)
	}

	if user.TeamID != "" {
		t.emit(storage.TeamEvent(user.TeamID, feed.OpPut))
	}
	return nil
}

// GetUserByEmail retrieves a user by their email address. An empty email
// matches no one.
func (r reader) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	if email == "" {
		return nil, storage.ErrNotFound
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE email = ?`

	user, err := scanUser(r.q.QueryRowContext(ctx, query, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	return user, nil
}

// GetUser retrieves a user by their ID.
func (r reader) GetUser(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`

	user, err := scanUser(r.q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by ID: %w", err)
	}

	return user, nil
}

// GetUsersByIDs reads every listed user in one query, keyed by id.
// Unknown ids are skipped.
func (r reader) GetUsersByIDs(ctx context.Context, ids []string) (map[string]*models.User, error) {
	if len(ids) == 0 {
		return make(map[string]*models.User), nil
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE id IN (` + placeholders(len(ids)) + `)`

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get users by IDs: %w", err)
	}
	defer rows.Close()

	users := make(map[string]*models.User)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users[user.ID] = user
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	return users, nil
}

// placeholders returns n comma separated "?" markers for an IN clause.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}
