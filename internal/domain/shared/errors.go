// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")
	ErrInvalidEntity = errors.New("invalid entity")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrFutureTimestamp = errors.New("timestamp cannot be in the future")

	// State errors
	ErrInvalidState     = errors.New("invalid state")
	ErrStateTransition  = errors.New("invalid state transition")
	ErrAlreadyProcessed = errors.New("already processed")

	// Concurrency errors
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrOptimisticLock         = errors.New("optimistic lock failure")

	// Infrastructure errors
	ErrPersistence        = errors.New("persistence error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "streak", "enrollment", "ledger"
	Op      string // Operation that failed, e.g., "RecordCompletion"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Enrollment domain errors
var (
	ErrInvalidUserID        = NewDomainError("enrollment", "Validate", ErrInvalidID, "invalid user ID")
	ErrInvalidCourseID      = NewDomainError("enrollment", "Validate", ErrInvalidID, "invalid course ID")
	ErrInvalidLessonNumber  = NewDomainError("enrollment", "Validate", ErrValueOutOfRange, "lesson number must be positive")
	ErrLessonAlreadyCounted = NewDomainError("enrollment", "MarkCompleted", ErrAlreadyProcessed,
		"lesson already counted for this enrollment")
)

// Streak domain errors
var (
	ErrStreakNotFound     = NewDomainError("streak", "Find", ErrNotFound, "user streak not found")
	ErrInvalidWeekStart   = NewDomainError("streak", "Validate", ErrInvalidInput, "week start must be the configured week anchor")
	ErrNegativeWeekCount  = NewDomainError("streak", "Apply", ErrNegativeValue, "weekly lesson count cannot be negative")
	ErrStreakStateCorrupt = NewDomainError("streak", "Validate", ErrInvalidState, "streak state violates invariants")
)

// Badge domain errors
var (
	ErrBadgeAlreadyEarned = NewDomainError("badge", "Award", ErrAlreadyExists, "badge already earned for this tier")
	ErrUnknownBadgeLevel  = NewDomainError("badge", "Validate", ErrInvalidInput, "unknown badge level")
)

// Ledger domain errors
var (
	ErrZeroPointsAmount    = NewDomainError("ledger", "Append", ErrInvalidInput, "points amount must be positive")
	ErrUnknownTxType       = NewDomainError("ledger", "Validate", ErrInvalidInput, "unknown points transaction type")
	ErrLedgerDriftDetected = NewDomainError("ledger", "Reconcile", ErrInvalidState,
		"cached total points diverged from ledger sum")
)

// IsValidationError reports whether err should be rejected before any mutation
// and surfaced to the caller as a bad request.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrValueOutOfRange) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrNegativeValue)
}

// IsConflictError reports whether err is a concurrency conflict that is safe
// to retry (the whole unit of work rolled back).
func IsConflictError(err error) bool {
	return errors.Is(err, ErrConcurrentModification) || errors.Is(err, ErrOptimisticLock)
}
