package session

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode classifies recoverable session errors.
type ErrorCode string

// Error codes of the recording engine.
const (
	CodePositioningUnavailable ErrorCode = "positioning_unavailable"
	CodePositioningTimeout     ErrorCode = "positioning_timeout"
	CodeStorageUnavailable     ErrorCode = "storage_unavailable"
	CodeStorageQuotaExceeded   ErrorCode = "storage_quota_exceeded"
	CodeInvariantViolation     ErrorCode = "invariant_violation"
)

// RecordedError is one entry on the session's recoverable-error list.
// It is reported to callers and can be dismissed; it never interrupts
// an active recording by itself.
type RecordedError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
	Retryable  bool      `json:"retryable"`
}

// StateError reports a command invoked from a state the transition
// table does not allow. It never mutates the session.
type StateError struct {
	Command string
	Status  Status
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s while session is %s", e.Command, e.Status)
}

// StorageError wraps a persistence failure surfaced to the caller.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsInvariantViolation reports whether err is a rejected state
// transition.
func IsInvariantViolation(err error) bool {
	var se *StateError
	return errors.As(err, &se)
}

// IsStorageError reports whether err is a persistence failure.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
