package sdk

import "github.com/kailas-cloud/docreview/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrValidation             = domain.ErrValidation
	ErrNotFound               = domain.ErrNotFound
	ErrAlreadyExists          = domain.ErrAlreadyExists
	ErrIndexUnavailable       = domain.ErrIndexUnavailable
	ErrConcurrentModification = domain.ErrConcurrentModification
	ErrInvalidTransition      = domain.ErrInvalidTransition
	ErrJobInProgress          = domain.ErrJobInProgress
	ErrRateLimited            = domain.ErrRateLimited
	ErrEmbeddingQuotaExceeded = domain.ErrEmbeddingQuotaExceeded
	ErrEmbeddingProviderError = domain.ErrEmbeddingProviderError
)

// Typed errors, for errors.As.
type (
	ValidationError             = domain.ValidationError
	ConcurrentModificationError = domain.ConcurrentModificationError
	InvalidTransitionError      = domain.InvalidTransitionError
)
