// Package errors provides the standardized error taxonomy for the sourcing
// engine.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Upstream platform errors.
	ErrCodeTransientUpstream   ErrorCode = "TRANSIENT_UPSTREAM"
	ErrCodeRateLimitExceeded   ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrCodeUpstreamUnavailable ErrorCode = "UPSTREAM_UNAVAILABLE"
	ErrCodePermanentUpstream   ErrorCode = "PERMANENT_UPSTREAM"

	// Per-candidate collection errors.
	ErrCodePartialCollectorFailure   ErrorCode = "PARTIAL_COLLECTOR_FAILURE"
	ErrCodeCandidateCollectionFailed ErrorCode = "CANDIDATE_COLLECTION_FAILED"

	// Startup errors. The only code allowed to terminate the process.
	ErrCodeConfigurationInvalid ErrorCode = "CONFIGURATION_INVALID"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Retryable bool      `json:"retryable"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// NewTransientUpstreamError creates a retryable error for a 429/502/503-class
// upstream response.
func NewTransientUpstreamError(statusCode int, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeTransientUpstream,
		Message:   fmt.Sprintf("Transient upstream failure (HTTP %d)", statusCode),
		Details:   details,
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewRateLimitExceededError creates an error for an exhausted API quota.
// Not immediately retryable; callers pause until the reported reset.
func NewRateLimitExceededError(resetAt time.Time) *StandardError {
	return &StandardError{
		Code:      ErrCodeRateLimitExceeded,
		Message:   "API quota exhausted",
		Details:   fmt.Sprintf("resetAt: %s", resetAt.UTC().Format(time.RFC3339)),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewUpstreamUnavailableError creates a non-retryable error surfaced after
// retry attempts were exhausted.
func NewUpstreamUnavailableError(attempts int, lastErr error) *StandardError {
	details := fmt.Sprintf("attempts: %d", attempts)
	if lastErr != nil {
		details = fmt.Sprintf("attempts: %d, lastError: %s", attempts, lastErr.Error())
	}
	return &StandardError{
		Code:      ErrCodeUpstreamUnavailable,
		Message:   "Upstream unavailable after bounded retries",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewPermanentUpstreamError creates a non-retryable error for 404-class
// responses (deleted profile, missing file).
func NewPermanentUpstreamError(resource string, statusCode int) *StandardError {
	return &StandardError{
		Code:      ErrCodePermanentUpstream,
		Message:   "Permanent upstream failure",
		Details:   fmt.Sprintf("resource: %s, status: %d", resource, statusCode),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewPartialCollectorFailureError records one failed signal source for a
// candidate. Degrades the confidence ceiling; never aborts the batch.
func NewPartialCollectorFailureError(signal string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodePartialCollectorFailure,
		Message:   fmt.Sprintf("Signal collector '%s' failed", signal),
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewCandidateCollectionFailedError records the total collection failure of
// one candidate.
func NewCandidateCollectionFailedError(candidateID string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeCandidateCollectionFailed,
		Message:   fmt.Sprintf("All collectors failed for candidate '%s'", candidateID),
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewConfigurationError creates the fatal startup error for invalid
// configuration.
func NewConfigurationError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeConfigurationInvalid,
		Message:   "Invalid configuration",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// IsTransientStatus reports whether an HTTP status belongs to the transient
// error class that is retried with backoff.
func IsTransientStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable:
		return true
	default:
		return false
	}
}

// IsRetryable reports whether err carries a retryable StandardError.
func IsRetryable(err error) bool {
	var se *StandardError
	if stderrors.As(err, &se) {
		return se.Retryable
	}
	return false
}

// HasCode reports whether err carries a StandardError with the given code.
func HasCode(err error, code ErrorCode) bool {
	var se *StandardError
	if stderrors.As(err, &se) {
		return se.Code == code
	}
	return false
}
