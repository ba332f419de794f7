package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docreview/internal/domain"
)

// ErrorCode is the machine-readable error kind of an API response.
type ErrorCode string

// API error codes.
const (
	CodeBadRequest        ErrorCode = "bad_request"
	CodeUnauthorized      ErrorCode = "unauthorized"
	CodeValidationFailed  ErrorCode = "validation_failed"
	CodeNotFound          ErrorCode = "not_found"
	CodeAlreadyExists     ErrorCode = "already_exists"
	CodeInvalidTransition ErrorCode = "invalid_transition"
	CodeJobInProgress     ErrorCode = "job_in_progress"
	CodeVersionConflict   ErrorCode = "version_conflict"
	CodeIndexUnavailable  ErrorCode = "index_unavailable"
	CodeRateLimited       ErrorCode = "rate_limited"
	CodeQuotaExceeded     ErrorCode = "embedding_quota_exceeded"
	CodeProviderError     ErrorCode = "embedding_provider_error"
	CodeInternalError     ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code           ErrorCode `json:"code"`
	Message        string    `json:"message"`
	Field          string    `json:"field,omitempty"`
	CurrentVersion *int64    `json:"current_version,omitempty"`
}

// errorRule maps one domain sentinel to a status and code.
type errorRule struct {
	target     error
	status     int
	code       ErrorCode
	retryAfter bool
}

// errorTable is checked in order; the first match wins.
var errorTable = []errorRule{
	{domain.ErrValidation, http.StatusBadRequest, CodeValidationFailed, false},
	{domain.ErrNotFound, http.StatusNotFound, CodeNotFound, false},
	{domain.ErrConcurrentModification, http.StatusPreconditionFailed, CodeVersionConflict, false},
	{domain.ErrAlreadyExists, http.StatusConflict, CodeAlreadyExists, false},
	{domain.ErrInvalidTransition, http.StatusConflict, CodeInvalidTransition, false},
	{domain.ErrJobInProgress, http.StatusConflict, CodeJobInProgress, true},
	{domain.ErrEmbeddingQuotaExceeded, http.StatusTooManyRequests, CodeQuotaExceeded, true},
	{domain.ErrRateLimited, http.StatusTooManyRequests, CodeRateLimited, true},
	{domain.ErrIndexUnavailable, http.StatusServiceUnavailable, CodeIndexUnavailable, true},
	{domain.ErrEmbeddingProviderError, http.StatusBadGateway, CodeProviderError, false},
}

func classifyError(err error) (errorRule, bool) {
	for _, rule := range errorTable {
		if errors.Is(err, rule.target) {
			return rule, true
		}
	}
	return errorRule{}, false
}

// handleDomainError writes the response for a use case error.
func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	rule, ok := classifyError(err)
	if !ok {
		loggerFrom(r, s.logger).Error("internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
		return
	}

	resp := ErrorResponse{Code: rule.code, Message: safeMessage(err)}

	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		resp.Field = ve.Field
	}
	var cm *domain.ConcurrentModificationError
	if errors.As(err, &cm) {
		v := cm.CurrentVersion
		resp.CurrentVersion = &v
		w.Header().Set("ETag", etag(v))
	}
	if rule.retryAfter {
		w.Header().Set("Retry-After", strconv.Itoa(s.retryAfterSec))
	}
	if rule.status >= http.StatusInternalServerError {
		loggerFrom(r, s.logger).Warn("request failed", zap.Error(err))
	}
	writeJSON(w, rule.status, resp)
}

// safeMessage hides wrapped storage details behind the typed error's own text.
func safeMessage(err error) string {
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return ve.Error()
	}
	var cm *domain.ConcurrentModificationError
	if errors.As(err, &cm) {
		return cm.Error()
	}
	var it *domain.InvalidTransitionError
	if errors.As(err, &it) {
		return it.Error()
	}
	var iu *domain.IndexUnavailableError
	if errors.As(err, &iu) {
		return domain.ErrIndexUnavailable.Error() + ": " + iu.Index
	}
	for _, rule := range errorTable {
		if errors.Is(err, rule.target) {
			return rule.target.Error()
		}
	}
	return "internal error"
}

func batchErrorCode(err error) ErrorCode {
	if rule, ok := classifyError(err); ok {
		return rule.code
	}
	return CodeInternalError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, msg string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: msg})
}
