package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation signals malformed input. Never retried automatically.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists signals a duplicate resource.
	ErrAlreadyExists = errors.New("already exists")

	// ErrIndexUnavailable signals that the rule index or fingerprint index cannot serve queries.
	// Callers retry.
	ErrIndexUnavailable = errors.New("index unavailable")
	// ErrConcurrentModification signals a lost compare-and-set on a document version.
	ErrConcurrentModification = errors.New("concurrent modification")
	// ErrInvalidTransition signals a review operation not allowed from the current status.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrJobInProgress signals that an exclusive job (index refresh, batch reassess) is already running.
	ErrJobInProgress = errors.New("job in progress")

	// ErrRateLimited signals a rate limit hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrEmbeddingQuotaExceeded signals an exhausted embedding budget.
	ErrEmbeddingQuotaExceeded = errors.New("embedding quota exceeded")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
)

// ValidationError wraps ErrValidation with the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrValidation.Error(), e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", ErrValidation.Error(), e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidation creates a validation error for a field.
func NewValidation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IndexUnavailableError wraps ErrIndexUnavailable with the underlying cause.
type IndexUnavailableError struct {
	Index  string
	Reason string
	Err    error
}

func (e *IndexUnavailableError) Error() string {
	msg := fmt.Sprintf("%s: %s", ErrIndexUnavailable.Error(), e.Index)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the sentinel and the cause.
func (e *IndexUnavailableError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrIndexUnavailable}
	}
	return []error{ErrIndexUnavailable, e.Err}
}

// NewIndexUnavailable creates an index unavailable error.
func NewIndexUnavailable(index, reason string, cause error) error {
	return &IndexUnavailableError{Index: index, Reason: reason, Err: cause}
}

// ConcurrentModificationError wraps ErrConcurrentModification with the version the writer lost to.
type ConcurrentModificationError struct {
	ID             string
	CurrentVersion int64
}

func (e *ConcurrentModificationError) Error() string {
	return fmt.Sprintf("%s: document %s is at version %d", ErrConcurrentModification.Error(), e.ID, e.CurrentVersion)
}

func (e *ConcurrentModificationError) Unwrap() error { return ErrConcurrentModification }

// NewConcurrentModification creates a concurrent modification error.
func NewConcurrentModification(id string, currentVersion int64) error {
	return &ConcurrentModificationError{ID: id, CurrentVersion: currentVersion}
}

// InvalidTransitionError wraps ErrInvalidTransition with the rejected move.
type InvalidTransitionError struct {
	From      string
	Operation string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s: %s not allowed from %s", ErrInvalidTransition.Error(), e.Operation, e.From)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// NewInvalidTransition creates an invalid transition error.
func NewInvalidTransition(from, operation string) error {
	return &InvalidTransitionError{From: from, Operation: operation}
}
