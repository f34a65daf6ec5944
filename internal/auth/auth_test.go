package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmynk/teamsync/internal/models"
	"github.com/mmynk/teamsync/internal/storage"
	"github.com/mmynk/teamsync/internal/storage/memory"
)

func TestJWTRoundTrip(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour)
	token, err := m.Generate(&models.User{ID: "u1", Email: "a@example.com"})
	require.NoError(t, err)

	claims, err := m.Validate(token)
	require.NoError(t, err)
	require.Equal(t, Principal{ID: "u1", Email: "a@example.com"}, claims.Principal())
	require.True(t, claims.Principal().Authenticated())
}

func TestJWTRejectsBadTokens(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour)

	t.Run("wrong secret", func(t *testing.T) {
		other := NewJWTManager("other-secret", time.Hour)
		token, err := other.Generate(&models.User{ID: "u1"})
		require.NoError(t, err)
		_, err = m.Validate(token)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		short := NewJWTManager("test-secret", -time.Minute)
		token, err := short.Generate(&models.User{ID: "u1"})
		require.NoError(t, err)
		_, err = m.Validate(token)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("unsigned", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u1", Issuer: Issuer}}).
			SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = m.Validate(token)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := m.Validate("not-a-token")
		require.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestPrincipalContext(t *testing.T) {
	ctx := context.Background()
	require.False(t, PrincipalFrom(ctx).Authenticated())

	ctx = WithPrincipal(ctx, Principal{ID: "u1", Email: "a@example.com"})
	require.Equal(t, "u1", PrincipalFrom(ctx).ID)
}

func TestPasswordAuthenticator(t *testing.T) {
	store := memory.New(storage.Options{})
	a := NewPasswordAuthenticator(store).WithCost(bcrypt.MinCost)
	ctx := context.Background()

	t.Run("register creates an unaffiliated user", func(t *testing.T) {
		before := time.Now().Unix()
		user, err := a.Register(ctx, "  Alice@Example.com ", "password123")
		require.NoError(t, err)
		require.NotEmpty(t, user.ID)
		require.Equal(t, "alice@example.com", user.Email)
		require.Empty(t, user.TeamID)
		require.GreaterOrEqual(t, user.LastActive, before)

		stored, err := store.GetUser(ctx, user.ID)
		require.NoError(t, err)
		require.NotEqual(t, "password123", stored.PasswordHash)
	})

	t.Run("duplicate email", func(t *testing.T) {
		_, err := a.Register(ctx, "alice@example.com", "password123")
		require.ErrorIs(t, err, ErrEmailExists)
	})

	t.Run("weak password", func(t *testing.T) {
		_, err := a.Register(ctx, "bob@example.com", "short")
		require.ErrorIs(t, err, ErrWeakPassword)
	})

	t.Run("empty email", func(t *testing.T) {
		_, err := a.Register(ctx, "   ", "password123")
		require.ErrorIs(t, err, ErrInvalidEmail)
	})

	t.Run("authenticate", func(t *testing.T) {
		user, err := a.Authenticate(ctx, "ALICE@example.com", "password123")
		require.NoError(t, err)
		require.Equal(t, "alice@example.com", user.Email)

		_, err = a.Authenticate(ctx, "alice@example.com", "wrong-password")
		require.ErrorIs(t, err, ErrInvalidCredentials)

		_, err = a.Authenticate(ctx, "nobody@example.com", "password123")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestConcurrentRegisterClaimsEmailOnce(t *testing.T) {
	store := memory.New(storage.Options{Retry: storage.RetryPolicy{MaxAttempts: 50, BaseDelay: time.Millisecond}})
	a := NewPasswordAuthenticator(store).WithCost(bcrypt.MinCost)

	const n = 8
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := a.Register(context.Background(), "same@example.com", "long enough secret")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	created := 0
	for err := range errs {
		if err == nil {
			created++
			continue
		}
		require.ErrorIs(t, err, ErrEmailExists)
	}
	require.Equal(t, 1, created)
}
