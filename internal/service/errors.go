package service

import (
	"connectrpc.com/connect"

	"github.com/mmynk/teamsync/internal/errors"
	"github.com/mmynk/teamsync/pkg/rpc"
)

// codeFor maps an error kind to its Connect code.
func codeFor(kind errors.Kind) connect.Code {
	switch kind {
	case errors.KindValidation:
		return connect.CodeInvalidArgument
	case errors.KindPermission:
		return connect.CodePermissionDenied
	case errors.KindNotFound:
		return connect.CodeNotFound
	case errors.KindAlreadyMember:
		return connect.CodeAlreadyExists
	case errors.KindNotAMember, errors.KindOwnerCannotLeave, errors.KindLastMember, errors.KindSelfRemoval:
		return connect.CodeFailedPrecondition
	case errors.KindConflict:
		return connect.CodeAborted
	case errors.KindUnavailable:
		return connect.CodeUnavailable
	default:
		return connect.CodeInternal
	}
}

// toConnectError converts a service error for the wire. The client sees
// the user facing message and the kind in the ErrorKindHeader metadata.
func toConnectError(err error) error {
	if err == nil {
		return nil
	}
	kind := errors.KindOf(err)
	cerr := connect.NewError(codeFor(kind), errors.Public(err))
	if kind != errors.KindUnknown {
		cerr.Meta().Set(rpc.ErrorKindHeader, kind.String())
	}
	return cerr
}
