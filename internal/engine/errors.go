package engine

import (
	"errors"
	"fmt"

	"github.com/steveyegge/tenet/internal/storage"
	"github.com/steveyegge/tenet/internal/types"
)

// ErrValidation is returned for malformed or missing input and for
// operations the actor is not allowed to perform. Entity state is unchanged.
var ErrValidation = errors.New("validation failed")

// ErrResolutionFailed wraps a store failure during conflict resolution or
// edit approval. The transaction was rolled back; the cause stays in the
// chain.
var ErrResolutionFailed = errors.New("resolution failed")

// ErrReplayMismatch is returned by VerifyReplay when the event log does not
// reproduce the live record.
var ErrReplayMismatch = errors.New("replay does not match decision")

// Storage sentinels re-exported so callers can match every error kind
// against this package.
var (
	ErrNotFound           = storage.ErrNotFound
	ErrCycle              = storage.ErrCycle
	ErrInUse              = storage.ErrInUse
	ErrConflictingRequest = storage.ErrConflictingRequest
	ErrAlreadyExists      = storage.ErrAlreadyExists
)

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

var errLeadRequired = validationf("privileged actor required")

func requireLead(actor types.Actor) error {
	if !actor.Lead {
		return errLeadRequired
	}
	return nil
}

// asResolutionFailure wraps store errors in ErrResolutionFailed. Validation,
// not-found and conflicting-request errors are the caller's to handle and
// pass through unchanged.
func asResolutionFailure(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrValidation),
		errors.Is(err, storage.ErrNotFound),
		errors.Is(err, storage.ErrConflictingRequest),
		errors.Is(err, ErrResolutionFailed):
		return err
	}
	return fmt.Errorf("%w: %w", ErrResolutionFailed, err)
}

// linkError maps store link errors onto engine validation errors.
func linkError(err error) error {
	if errors.Is(err, storage.ErrInvalidLink) {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return err
}
