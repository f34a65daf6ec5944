package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mmynk/teamsync/internal/models"
)

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrMissingToken = errors.New("authorization token required")
)

// Issuer is stamped into every token and required on validation.
const Issuer = "teamsync"

// JWTManager signs and checks HS256 session tokens.
type JWTManager struct {
	secretKey []byte
	ttl       time.Duration
}

// Claims carry the principal of a session. The user ID travels as the
// registered "sub" claim.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Principal returns the authenticated actor the claims describe.
func (c *Claims) Principal() Principal {
	return Principal{ID: c.Subject, Email: c.Email}
}

// NewJWTManager creates a manager signing with secretKey. Tokens expire
// ttl after they are issued.
func NewJWTManager(secretKey string, ttl time.Duration) *JWTManager {
	return &JWTManager{secretKey: []byte(secretKey), ttl: ttl}
}

// Generate issues a token for user.
func (m *JWTManager) Generate(user *models.User) (string, error) {
	now := time.Now()
	claims := &Claims{
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Validate checks the signature, issuer and lifetime of token and returns
// its claims. Every failure wraps ErrInvalidToken.
func (m *JWTManager) Validate(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return m.secretKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
