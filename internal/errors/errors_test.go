package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mmynk/teamsync/internal/storage"
)

func TestKindNamesRoundTrip(t *testing.T) {
	seen := map[string]bool{}
	for k := KindValidation; k <= KindUnavailable; k++ {
		name := k.String()
		require.NotEqual(t, "unknown", name)
		require.False(t, seen[name], "duplicate name %q", name)
		seen[name] = true
		require.Equal(t, k, ParseKind(name))
	}
	require.Equal(t, KindUnknown, ParseKind("bogus"))
}

func TestSentinelsMatchByKind(t *testing.T) {
	err := New(KindAlreadyMember, "membership.JoinTeam", "already in team")
	require.ErrorIs(t, err, ErrAlreadyMember)
	require.NotErrorIs(t, err, ErrNotAMember)

	wrapped := fmt.Errorf("handler: %w", err)
	require.ErrorIs(t, wrapped, ErrAlreadyMember)
	require.Equal(t, KindAlreadyMember, KindOf(wrapped))
	require.Equal(t, KindUnknown, KindOf(stderrors.New("plain")))
}

func TestErrorText(t *testing.T) {
	require.Equal(t, "op: bad name", New(KindValidation, "op", "bad name").Error())
	require.Equal(t, "op: not_found: storage: record not found",
		Wrap(KindNotFound, "op", storage.ErrNotFound).Error())
	require.Equal(t, "permission", (&Error{Kind: KindPermission}).Error())
}

func TestClassify(t *testing.T) {
	require.NoError(t, Classify("op", nil))

	classified := New(KindSelfRemoval, "inner", "nope")
	require.Same(t, classified, Classify("outer", classified))

	err := Classify("op", fmt.Errorf("get team: %w", storage.ErrNotFound))
	require.Equal(t, KindNotFound, KindOf(err))
	require.ErrorIs(t, err, storage.ErrNotFound)

	require.Equal(t, KindConflict, KindOf(Classify("op", storage.ErrConflict)))

	dup := Classify("op", fmt.Errorf("put user: %w", storage.ErrDuplicate))
	require.Equal(t, KindValidation, KindOf(dup))
	require.False(t, IsRetryable(dup))
	require.ErrorIs(t, dup, storage.ErrDuplicate)
	require.Contains(t, Message(dup), "email is already registered")
	require.Equal(t, KindUnavailable, KindOf(Classify("op", context.DeadlineExceeded)))
	require.Equal(t, KindUnavailable, KindOf(Classify("op", stderrors.New("connection refused"))))
}

func TestPredicates(t *testing.T) {
	require.True(t, IsBenign(ErrAlreadyMember))
	require.False(t, IsBenign(ErrNotFound))

	require.True(t, IsRetryable(Wrap(KindConflict, "op", storage.ErrConflict)))
	require.True(t, IsRetryable(ErrUnavailable))
	require.False(t, IsRetryable(ErrValidation))

	for _, err := range []error{ErrOwnerCannotLeave, ErrLastMember, ErrSelfRemoval} {
		require.True(t, IsPolicy(err), err)
	}
	require.False(t, IsPolicy(ErrPermission))
}

func TestMessagesAreDistinct(t *testing.T) {
	seen := map[string]Kind{}
	for k := KindUnknown; k <= KindUnavailable; k++ {
		msg := Message(&Error{Kind: k})
		require.NotEmpty(t, msg)
		prev, dup := seen[msg]
		require.False(t, dup, "%v and %v share %q", prev, k, msg)
		seen[msg] = k
	}
	require.Equal(t, "Invalid input: team name is required.",
		Message(New(KindValidation, "op", "team name is required")))
}

func TestPublicHidesInternals(t *testing.T) {
	require.NoError(t, Public(nil))

	cause := Wrap(KindUnavailable, "membership.JoinTeam", stderrors.New("dial tcp 10.0.0.1:5432: refused"))
	pub := Public(cause)
	require.Equal(t, Message(cause), pub.Error())
	require.NotContains(t, pub.Error(), "10.0.0.1")
	require.ErrorIs(t, pub, ErrUnavailable)
	require.Equal(t, KindUnavailable, KindOf(pub))
}
