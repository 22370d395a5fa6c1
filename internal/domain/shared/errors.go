// Package shared contains common domain types, errors and events
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

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")

	// ErrConflictIgnored marks a write that lost to an identical concurrent
	// write (duplicate badge award, same-day streak update). Callers absorb it.
	ErrConflictIgnored = errors.New("conflicting write ignored")

	// Concurrency errors
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// Storage errors
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrTimeout          = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "progress", "badge", "leaderboard"
	Op      string // Operation that failed, e.g., "AddXP", "Award"
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

// Progress domain errors
var (
	ErrProfileNotFound  = NewDomainError("progress", "Find", ErrNotFound, "learner profile not found")
	ErrInvalidXPAward   = NewDomainError("progress", "Validate", ErrInvalidInput, "xp award must be a positive integer")
	ErrXPAwardTooLarge  = NewDomainError("progress", "Validate", ErrValueOutOfRange, "xp award exceeds the allowed maximum")
	ErrXPLimitReached   = NewDomainError("progress", "AddXP", ErrValueOutOfRange, "total xp would exceed the supported maximum")
	ErrInvalidUserID    = NewDomainError("progress", "Validate", ErrInvalidID, "invalid user ID")
	ErrStreakContention = NewDomainError("progress", "RecordActivity", ErrConcurrentModification, "streak update kept losing to concurrent writers")
)

// Badge domain errors
var (
	ErrBadgeNotFound      = NewDomainError("badge", "Find", ErrNotFound, "badge not found")
	ErrInvalidRequirement = NewDomainError("badge", "Validate", ErrValueOutOfRange, "requirement value must be positive")
)

// Leaderboard domain errors
var (
	ErrInvalidLimit  = NewDomainError("leaderboard", "Validate", ErrInvalidInput, "limit must not be negative")
	ErrInvalidRadius = NewDomainError("leaderboard", "Validate", ErrInvalidInput, "context radius must not be negative")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflictIgnored checks if the error is an absorbed write conflict.
func IsConflictIgnored(err error) bool {
	return errors.Is(err, ErrConflictIgnored)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsStoreUnavailable checks if the store could not be reached.
func IsStoreUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrTimeout)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConcurrentModification)
}
