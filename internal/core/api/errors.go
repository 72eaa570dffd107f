package api

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/solatis/scorekeeper/internal/types"
)

// errStore marks run store failures so they map to UNAVAILABLE.
var errStore = errors.New("run store unavailable")

// errRequest marks malformed request messages.
var errRequest = errors.New("invalid request")

// Auth errors are mapped in the auth package interceptor.
// Config, input and formula errors map to INVALID_ARGUMENT.
// Store errors map to UNAVAILABLE.
// Context timeouts map to DEADLINE_EXCEEDED.
// An exhausted set_vars iteration budget is an engine fault and maps to INTERNAL.
func codeFor(err error) codes.Code {
	switch {
	case err == nil:
		return codes.OK
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, errStore):
		return codes.Unavailable
	case errors.Is(err, types.ErrIterationBudgetExceeded):
		return codes.Internal
	default:
		return codes.InvalidArgument
	}
}

func toStatus(err error) error {
	return status.Error(codeFor(err), err.Error())
}
