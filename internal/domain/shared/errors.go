// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"errors"
	"fmt"
)

// Error kinds. Every error produced by the domain and by the stores wraps
// exactly one of them so callers can branch with errors.Is().
var (
	ErrNotFound       = errors.New("entity not found")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrValidation     = errors.New("validation error")
	ErrInfrastructure = errors.New("infrastructure failure")
)

// Infrastructure sub-kinds.
var (
	// ErrEventDispatch marks a failure that happened after a successful write,
	// while flushing the entity's events to the dispatcher.
	ErrEventDispatch = fmt.Errorf("%w: event dispatch failed", ErrInfrastructure)

	// ErrTransient marks infrastructure failures that may succeed when retried.
	ErrTransient = fmt.Errorf("%w: transient", ErrInfrastructure)
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "task", "progress"
	Op      string // Operation that failed, e.g., "Complete", "OfID"
	Kind    error  // Base error kind for errors.Is() checking
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

// Is implements errors.Is() matching against both the kind and the cause.
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

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUnauthorized checks if the requester was not allowed to perform the operation.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsInfrastructure checks if the error came from persistence or dispatch I/O.
func IsInfrastructure(err error) bool {
	return errors.Is(err, ErrInfrastructure)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}

// ═══════════════════════════════════════════════════════════════════════════
// User-visible failure reasons
// ═══════════════════════════════════════════════════════════════════════════

// FailureReason is the addressable reason surfaced to callers of a use case.
type FailureReason string

const (
	ReasonNone         FailureReason = ""
	ReasonNotFound     FailureReason = "not_found"
	ReasonUnauthorized FailureReason = "unauthorized"
	ReasonValidation   FailureReason = "validation"
	ReasonInternal     FailureReason = "internal"
)

// ReasonOf maps an error to its failure reason and a message that is safe to
// show to the user. Infrastructure details never leave this function.
func ReasonOf(err error) (FailureReason, string) {
	if err == nil {
		return ReasonNone, ""
	}

	var de *DomainError
	message := "internal error"
	if errors.As(err, &de) {
		message = de.Message
	}

	switch {
	case IsNotFound(err):
		return ReasonNotFound, message
	case IsUnauthorized(err):
		return ReasonUnauthorized, message
	case IsValidation(err):
		return ReasonValidation, message
	default:
		return ReasonInternal, "internal error"
	}
}
