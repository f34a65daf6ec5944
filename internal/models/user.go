package models

// User represents an identity known to the service.
//
// ID and Email are owned by the identity provider. TeamID is written
// exclusively by the membership service.
type User struct {
	// ID is the stable identifier assigned by the identity provider (UUID format).
	ID string

	// Email is the display label of the user.
	Email string

	// TeamID is the team the user belongs to, or empty when unaffiliated.
	TeamID string

	// PasswordHash is the bcrypt hash used by the bundled password provider.
	// Empty for users provisioned by an external identity provider.
	PasswordHash string

	// LastActive is the Unix timestamp of the latest presence heartbeat.
	// It never decreases.
	LastActive int64

	// CreatedAt is the Unix timestamp when the user record was created.
	CreatedAt int64
}

// Clone returns a copy of the user.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
