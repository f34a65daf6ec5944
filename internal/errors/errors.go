// Package errors defines the error taxonomy shared by the membership and
// schedule services and the helpers transports use to classify failures.
//
// # Kinds
//
// Every failure surfaced to a caller carries one Kind:
//   - KindValidation: malformed input, the caller can fix it
//   - KindPermission: the caller lacks the role or membership required
//   - KindNotFound: a referenced team, schedule or user does not exist
//   - KindAlreadyMember: informational, the caller is already in the team
//   - KindNotAMember: the caller (or target) is not in a team
//   - KindOwnerCannotLeave, KindLastMember, KindSelfRemoval: policy rejections
//   - KindConflict: a transaction kept conflicting after bounded retries
//   - KindUnavailable: the store could not be reached
//
// # Usage
//
//	err := errors.New(errors.KindValidation, "membership.CreateTeam", "team name is required")
//
//	if errors.Is(err, errors.ErrAlreadyMember) { ... }
//	if errors.IsBenign(err) { ... }
//	msg := errors.Message(err)
package errors

import (
	stderrors "errors"
	"fmt"

	"github.com/mmynk/teamsync/internal/storage"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = stderrors.Is
	As     = stderrors.As
	Unwrap = stderrors.Unwrap
	Join   = stderrors.Join
)

// Kind classifies a failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindPermission
	KindNotFound
	KindAlreadyMember
	KindNotAMember
	KindOwnerCannotLeave
	KindLastMember
	KindSelfRemoval
	KindConflict
	KindUnavailable
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindPermission:
		return "permission"
	case KindNotFound:
		return "not_found"
	case KindAlreadyMember:
		return "already_member"
	case KindNotAMember:
		return "not_a_member"
	case KindOwnerCannotLeave:
		return "owner_cannot_leave"
	case KindLastMember:
		return "last_member"
	case KindSelfRemoval:
		return "self_removal"
	case KindConflict:
		return "conflict"
	case KindUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// ParseKind is the inverse of Kind.String. Unrecognized names yield KindUnknown.
func ParseKind(s string) Kind {
	for k := KindValidation; k <= KindUnavailable; k++ {
		if k.String() == s {
			return k
		}
	}
	return KindUnknown
}

// Error is a classified failure.
type Error struct {
	Kind Kind
	// Op is the operation that failed, e.g. "membership.JoinTeam".
	Op string
	// Msg is a human-readable detail.
	Msg string
	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	s := e.Op
	if s != "" {
		s += ": "
	}
	if e.Msg != "" {
		s += e.Msg
	} else {
		s += e.Kind.String()
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind, so sentinels compare by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is checks. They match any *Error of the same kind.
var (
	ErrValidation       = &Error{Kind: KindValidation}
	ErrPermission       = &Error{Kind: KindPermission}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrAlreadyMember    = &Error{Kind: KindAlreadyMember}
	ErrNotAMember       = &Error{Kind: KindNotAMember}
	ErrOwnerCannotLeave = &Error{Kind: KindOwnerCannotLeave}
	ErrLastMember       = &Error{Kind: KindLastMember}
	ErrSelfRemoval      = &Error{Kind: KindSelfRemoval}
	ErrConflict         = &Error{Kind: KindConflict}
	ErrUnavailable      = &Error{Kind: KindUnavailable}
)

// New creates a classified error.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Newf creates a classified error with a formatted message.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies cause under kind.
func Wrap(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Classify converts any error returned from a store transaction into a
// classified error. Errors that are already classified pass through.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if As(err, &e) {
		return err
	}
	switch {
	case Is(err, storage.ErrNotFound):
		return Wrap(KindNotFound, op, err)
	case Is(err, storage.ErrConflict):
		return Wrap(KindConflict, op, err)
	case Is(err, storage.ErrDuplicate):
		return &Error{Kind: KindValidation, Op: op, Msg: "email is already registered to another user", Err: err}
	default:
		// Driver failures and cancelled contexts both mean the store did not answer.
		return Wrap(KindUnavailable, op, err)
	}
}

// IsBenign reports whether err should be treated as success-adjacent.
// An AlreadyMember result means the caller can simply navigate to the team.
func IsBenign(err error) bool {
	return KindOf(err) == KindAlreadyMember
}

// IsRetryable reports whether retrying the whole operation may succeed.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindConflict, KindUnavailable:
		return true
	}
	return false
}

// IsPolicy reports whether err is a deliberate policy rejection rather than a fault.
func IsPolicy(err error) bool {
	switch KindOf(err) {
	case KindOwnerCannotLeave, KindLastMember, KindSelfRemoval:
		return true
	}
	return false
}

// Message returns a user facing message that differs for every kind.
func Message(err error) string {
	switch KindOf(err) {
	case KindValidation:
		var e *Error
		if As(err, &e) && e.Msg != "" {
			return "Invalid input: " + e.Msg + "."
		}
		return "Invalid input."
	case KindPermission:
		return "You do not have permission to do that."
	case KindNotFound:
		return "That team or schedule does not exist."
	case KindAlreadyMember:
		return "You are already a member of this team."
	case KindNotAMember:
		return "You are not a member of a team."
	case KindOwnerCannotLeave:
		return "The team owner cannot leave. Transfer ownership or disband the team first."
	case KindLastMember:
		return "You are the last member of this team and cannot leave."
	case KindSelfRemoval:
		return "You cannot remove yourself. Use leave or disband instead."
	case KindConflict:
		return "The team changed while saving. Please try again."
	case KindUnavailable:
		return "The service is temporarily unavailable. Please try again."
	default:
		return "Something went wrong."
	}
}

// Public wraps err so its text is Message(err) while errors.Is and
// errors.As still reach err. Transports send it to clients in place of the
// internal description.
func Public(err error) error {
	if err == nil {
		return nil
	}
	return &publicError{err: err}
}

type publicError struct {
	err error
}

func (p *publicError) Error() string { return Message(p.err) }

func (p *publicError) Unwrap() error { return p.err }
