package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmynk/teamsync/internal/models"
	"github.com/mmynk/teamsync/internal/storage"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrEmailExists        = errors.New("email already registered")
	ErrInvalidEmail       = errors.New("email is required")
)

// MinPasswordLength is the only credential policy enforced.
const MinPasswordLength = 8

// UserStorage is the part of storage.Store the authenticator needs.
type UserStorage interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	RunInTx(ctx context.Context, fn storage.TxFunc) error
}

// PasswordAuthenticator stores bcrypt hashes on the User record.
type PasswordAuthenticator struct {
	storage UserStorage
	cost    int
}

var _ Authenticator = (*PasswordAuthenticator)(nil)

// NewPasswordAuthenticator creates a new password-based authenticator.
func NewPasswordAuthenticator(storage UserStorage) *PasswordAuthenticator {
	return &PasswordAuthenticator{
		storage: storage,
		cost:    bcrypt.DefaultCost,
	}
}

// WithCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func (a *PasswordAuthenticator) WithCost(cost int) *PasswordAuthenticator {
	a.cost = cost
	return a
}

// NormalizeEmail trims and lower-cases an email label.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateCredential enforces MinPasswordLength.
func (a *PasswordAuthenticator) ValidateCredential(credential string) error {
	if len(credential) < MinPasswordLength {
		return ErrWeakPassword
	}
	return nil
}

// Register creates a new user account with a hashed password. The user
// starts with no team and lastActive set to now.
func (a *PasswordAuthenticator) Register(ctx context.Context, email, credential string) (*models.User, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, ErrInvalidEmail
	}
	if err := a.ValidateCredential(credential); err != nil {
		return nil, err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(credential), a.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now().Unix()
	user := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hashedPassword),
		LastActive:   now,
		CreatedAt:    now,
	}

	err = a.storage.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		existing, err := tx.GetUserByEmail(ctx, email)
		if err == nil && existing != nil {
			return ErrEmailExists
		}
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		return tx.PutUser(ctx, user)
	})
	if err != nil {
		// A concurrent sign-up can claim the email after the lookup above.
		if errors.Is(err, ErrEmailExists) || errors.Is(err, storage.ErrDuplicate) {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

// Authenticate verifies the email and password, returning the user if valid.
func (a *PasswordAuthenticator) Authenticate(ctx context.Context, email, credential string) (*models.User, error) {
	user, err := a.storage.GetUserByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(credential)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return user, nil
}
