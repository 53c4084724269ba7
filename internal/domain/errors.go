package domain

import "errors"

var (
	// ErrValidation marks malformed input or entity data.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks a missing entity.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks an operation rejected due to the entity's current state
	// in storage, e.g. cancelling a completed retry entry.
	ErrConflict = errors.New("conflict")

	// ErrState marks a lifecycle operation invoked on a document whose state
	// does not allow it. This is a sequencing fault and is never retried.
	ErrState = errors.New("invalid document state")
)
