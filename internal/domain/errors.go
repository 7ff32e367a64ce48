package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")

	// ErrInvalidTransition rejects a lifecycle operation attempted from a
	// status that does not permit it. Never retried automatically.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrStaleState marks a conditional write that lost a race. Callers
	// should re-read current state before retrying the whole operation.
	ErrStaleState = errors.New("stale state")
)

// TransitionError wraps ErrInvalidTransition with the status the record is in
// and the status the operation requires, so the caller can tell the user
// which precondition failed.
func TransitionError(entity, current, required string) error {
	return fmt.Errorf("%s is %q, operation requires %q: %w", entity, current, required, ErrInvalidTransition)
}
