package auth

import (
	"context"

	"github.com/mmynk/teamsync/internal/models"
)

// Authenticator is the bundled identity provider behind the AuthService.
// Implementations own credential policy; the membership and schedule
// services only ever see the resulting Principal.
type Authenticator interface {
	// Register creates an account for email. The new user belongs to no
	// team and is marked active now.
	Register(ctx context.Context, email, credential string) (*models.User, error)

	// Authenticate returns the user whose credential matches, or
	// ErrInvalidCredentials.
	Authenticate(ctx context.Context, email, credential string) (*models.User, error)

	// ValidateCredential reports whether credential meets the policy.
	ValidateCredential(credential string) error
}
