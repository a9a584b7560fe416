/*
errors.go - Centralized error types for the attendance engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers match on sentinels with errors.Is and pull context out of the
  structured errors with errors.As.

ERROR CATEGORIES:
  1. Write-time validation - ChronologyError, HardwareValidationError
  2. Audit findings        - IntegrityError (never auto-corrected)
  3. Workflow              - StateTransitionError
  4. Reporting             - ConfigurationError (reports degrade, not abort)
  5. Store                 - not found, chain conflict, duplicate keys

PROPAGATION:
  Validation failures are synchronous and block persistence. Aggregation
  anomalies (double entry, orphan exit) are data, not errors.
*/
package attendance

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrChronology is returned when an EXIT precedes the latest ENTRY.
	ErrChronology = errors.New("exit precedes latest entry")

	// ErrIntegrity is returned when a stored punch no longer matches its hash.
	ErrIntegrity = errors.New("hash chain integrity violation")

	// ErrHardwareValidation is returned when ENTRY/EXIT lacks GPS or photo.
	ErrHardwareValidation = errors.New("hardware validation failed")

	// ErrStateTransition is returned when acting on a terminal record.
	ErrStateTransition = errors.New("invalid state transition")

	// ErrConfiguration is returned when a worker lacks schedule or company.
	ErrConfiguration = errors.New("incomplete worker configuration")

	// ErrChainConflict is returned when two punches claim the same chain slot.
	ErrChainConflict = errors.New("chain head moved concurrently")

	// ErrNotFound is returned when a referenced record doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden is returned when the actor lacks the capability.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidInput is returned for malformed requests.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidPeriod is returned when a period is malformed (end before start).
	ErrInvalidPeriod = errors.New("invalid period")

	// ErrDuplicate is returned when a record with the same key already exists.
	ErrDuplicate = errors.New("duplicate record")

	// ErrSelfReview is returned when the requester of a correction or a
	// justification tries to decide it. It wraps ErrForbidden.
	ErrSelfReview = fmt.Errorf("%w: separation of duties, a request cannot be decided by its requester", ErrForbidden)
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ChronologyError details a rejected EXIT.
type ChronologyError struct {
	WorkerID WorkerID
	ExitAt   time.Time
	EntryID  PunchID
	EntryAt  time.Time
}

func (e *ChronologyError) Error() string {
	return fmt.Sprintf("exit at %s precedes latest entry %s at %s for worker %s",
		e.ExitAt.Format(time.RFC3339), e.EntryID, e.EntryAt.Format(time.RFC3339), e.WorkerID)
}

func (e *ChronologyError) Unwrap() error { return ErrChronology }

// IntegrityError names the first punch whose hash no longer verifies.
type IntegrityError struct {
	WorkerID WorkerID
	PunchID  PunchID
	Seq      int64
	Expected string
	Actual   string
	Reason   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("chain broken for worker %s at punch %s (seq %d): %s",
		e.WorkerID, e.PunchID, e.Seq, e.Reason)
}

func (e *IntegrityError) Unwrap() error { return ErrIntegrity }

// HardwareValidationError lists what the device failed to provide.
type HardwareValidationError struct {
	Kind    PunchKind
	Missing []string
}

func (e *HardwareValidationError) Error() string {
	return fmt.Sprintf("%s punch rejected: missing %v", e.Kind, e.Missing)
}

func (e *HardwareValidationError) Unwrap() error { return ErrHardwareValidation }

// StateTransitionError reports an attempt to move a record out of a
// terminal state.
type StateTransitionError struct {
	Entity string
	ID     string
	From   string
	To     string
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("%s %s cannot move from %s to %s", e.Entity, e.ID, e.From, e.To)
}

func (e *StateTransitionError) Unwrap() error { return ErrStateTransition }

// ConfigurationError is surfaced to reports, which label the worker
// instead of failing.
type ConfigurationError struct {
	WorkerID WorkerID
	Missing  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("worker %s has no %s", e.WorkerID, e.Missing)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrChronology) ||
		errors.Is(err, ErrHardwareValidation) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidPeriod)
}

// IsConflict returns true if the request collided with existing state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrStateTransition) ||
		errors.Is(err, ErrChainConflict) ||
		errors.Is(err, ErrDuplicate)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrChainConflict)
}
