package domain

import (
	"fmt"
	"strings"
	"time"
)

// Operation identifies the lifecycle operation a retry entry re-invokes.
type Operation string

const (
	OperationSign        Operation = "SIGN"
	OperationSubmit      Operation = "SUBMIT"
	OperationCheckStatus Operation = "CHECK_STATUS"

	// OperationGenerate labels generation failures on the document; it is
	// never queued, regeneration is a manual action.
	OperationGenerate Operation = "GENERATE"
)

func (o Operation) String() string { return string(o) }

// IsValid reports whether the operation can be carried by a retry entry.
func (o Operation) IsValid() bool {
	switch o {
	case OperationSign, OperationSubmit, OperationCheckStatus:
		return true
	}
	return false
}

func ParseOperationFromString(s string) (Operation, error) {
	op := Operation(strings.ToUpper(strings.TrimSpace(s)))
	if !op.IsValid() {
		return "", fmt.Errorf("%w: invalid operation %q", ErrValidation, s)
	}
	return op, nil
}

// ErrorCategory is the coarse failure classification driving retry policy.
type ErrorCategory string

const (
	CategoryTransient  ErrorCategory = "TRANSIENT"
	CategoryRateLimit  ErrorCategory = "RATE_LIMIT"
	CategoryAuth       ErrorCategory = "AUTH"
	CategoryValidation ErrorCategory = "VALIDATION"
	CategoryServer     ErrorCategory = "SERVER"
	CategoryNetwork    ErrorCategory = "NETWORK"
	CategoryUnknown    ErrorCategory = "UNKNOWN"
)

func (c ErrorCategory) String() string { return string(c) }

func (c ErrorCategory) IsValid() bool {
	switch c {
	case CategoryTransient, CategoryRateLimit, CategoryAuth, CategoryValidation,
		CategoryServer, CategoryNetwork, CategoryUnknown:
		return true
	}
	return false
}

// EntryState represents the scheduling state of a retry entry.
type EntryState string

const (
	EntryPending    EntryState = "PENDING"
	EntryProcessing EntryState = "PROCESSING"
	EntryCompleted  EntryState = "COMPLETED"
	EntryFailed     EntryState = "FAILED"
	EntryCancelled  EntryState = "CANCELLED"
)

func (s EntryState) String() string { return string(s) }

func (s EntryState) IsValid() bool {
	switch s {
	case EntryPending, EntryProcessing, EntryCompleted, EntryFailed, EntryCancelled:
		return true
	}
	return false
}

func ParseEntryStateFromString(s string) (EntryState, error) {
	st := EntryState(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid entry state %q", ErrValidation, s)
	}
	return st, nil
}

// IsActive reports whether the entry still occupies the per-(document,
// operation) slot. At most one active entry exists per pair.
func (s EntryState) IsActive() bool {
	return s == EntryPending || s == EntryProcessing
}

// IsTerminal reports whether the entry is eligible for retention cleanup.
func (s EntryState) IsTerminal() bool {
	return s == EntryCompleted || s == EntryFailed || s == EntryCancelled
}

// RetryEntry is a durable record of a deferred re-attempt for one
// (document, operation) pair.
type RetryEntry struct {
	ID         string
	DocumentID string
	Operation  Operation

	ErrorCategory ErrorCategory
	LastError     string

	State      EntryState
	RetryCount int
	MaxRetries int
	Priority   int

	LastAttemptAt *time.Time
	NextAttemptAt time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (e *RetryEntry) Validate() error {
	if strings.TrimSpace(e.DocumentID) == "" {
		return fmt.Errorf("%w: document id is required", ErrValidation)
	}
	if !e.Operation.IsValid() {
		return fmt.Errorf("%w: invalid operation %q", ErrValidation, e.Operation)
	}
	if !e.ErrorCategory.IsValid() {
		return fmt.Errorf("%w: invalid error category %q", ErrValidation, e.ErrorCategory)
	}
	if !e.State.IsValid() {
		return fmt.Errorf("%w: invalid entry state %q", ErrValidation, e.State)
	}
	if e.MaxRetries <= 0 {
		return fmt.Errorf("%w: max retries must be positive", ErrValidation)
	}
	return nil
}

// Exhausted reports whether the next failure would exceed the retry budget.
func (e *RetryEntry) Exhausted() bool {
	return e.RetryCount >= e.MaxRetries
}
