// Package errors provides standardized error handling for the orchestration pipeline.
package errors

import (
	"fmt"
	"strings"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Upstream failures, funneled through the circuit breaker
	ErrCodeUpstreamUnavailable ErrorCode = "UPSTREAM_UNAVAILABLE"
	ErrCodeUpstreamTimeout     ErrorCode = "UPSTREAM_TIMEOUT"
	ErrCodeUpstreamError       ErrorCode = "UPSTREAM_ERROR"
	ErrCodeUpstreamClientError ErrorCode = "UPSTREAM_CLIENT_ERROR"
	ErrCodeBreakerOpen         ErrorCode = "BREAKER_OPEN"

	// Cache layer; always degraded to a miss before leaving the component
	ErrCodeCacheBackendFailed ErrorCode = "CACHE_BACKEND_FAILED"
	ErrCodeCacheEntryInvalid  ErrorCode = "CACHE_ENTRY_INVALID"

	// Validation pipeline; absorbed into scoring, never surfaced to callers
	ErrCodeValidationFailed   ErrorCode = "VALIDATION_FAILED"
	ErrCodeContentRejected    ErrorCode = "CONTENT_REJECTED"
	ErrCodeModerationRejected ErrorCode = "MODERATION_REJECTED"

	// Internal defects mapped to safe defaults at component boundaries
	ErrCodeStrategyFailed ErrorCode = "STRATEGY_FAILED"
	ErrCodeInternalError  ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	Details    string                 `json:"details,omitempty"`
	Retryable  bool                   `json:"retryable"`
	StatusCode int                    `json:"statusCode,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// NewUpstreamError creates a retryable upstream failure for a dependency.
func NewUpstreamError(dependency string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeUpstreamError,
		Message:   fmt.Sprintf("Upstream dependency '%s' error", dependency),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewUpstreamTimeoutError creates a retryable upstream timeout.
func NewUpstreamTimeoutError(dependency string) *StandardError {
	return &StandardError{
		Code:      ErrCodeUpstreamTimeout,
		Message:   fmt.Sprintf("Upstream dependency '%s' timeout", dependency),
		Details:   "call exceeded its timeout budget",
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewUpstreamClientError creates a non-retryable 4xx-class upstream error.
// Client errors indicate a malformed request; retrying cannot help.
func NewUpstreamClientError(dependency string, statusCode int, details string) *StandardError {
	return &StandardError{
		Code:       ErrCodeUpstreamClientError,
		Message:    fmt.Sprintf("Upstream dependency '%s' rejected the request", dependency),
		Details:    details,
		Retryable:  false,
		StatusCode: statusCode,
		Timestamp:  time.Now().UTC(),
	}
}

// NewBreakerOpenError creates a non-retryable rejection from an open breaker.
func NewBreakerOpenError(dependency string, retryAfter time.Duration) *StandardError {
	return &StandardError{
		Code:      ErrCodeBreakerOpen,
		Message:   fmt.Sprintf("Circuit breaker for '%s' is open", dependency),
		Details:   fmt.Sprintf("retry after %s", retryAfter),
		Retryable: false,
		Metadata: map[string]interface{}{
			"retryAfterSeconds": int(retryAfter.Seconds()),
		},
		Timestamp: time.Now().UTC(),
	}
}

// NewCacheBackendError creates a retryable cache backing-store error.
func NewCacheBackendError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeCacheBackendFailed,
		Message:   "Cache backing store error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewCacheEntryInvalidError creates a non-retryable stale/sub-threshold entry error.
func NewCacheEntryInvalidError(key, reason string) *StandardError {
	return &StandardError{
		Code:      ErrCodeCacheEntryInvalid,
		Message:   "Cache entry failed re-validation",
		Details:   fmt.Sprintf("key: %s, reason: %s", key, reason),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewValidationFailedError creates a non-retryable validation error.
func NewValidationFailedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidationFailed,
		Message:   "Suggestion validation failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewModerationRejectedError creates a non-retryable moderation rejection.
func NewModerationRejectedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeModerationRejected,
		Message:   "Content rejected by moderation filter",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewStrategyFailedError creates a non-retryable strategy selection error.
// Callers fall back to the standard tier rather than propagating this.
func NewStrategyFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStrategyFailed,
		Message:   "Strategy selection failed",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInternalError wraps an unexpected defect.
func NewInternalError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeInternalError,
		Message:   "Unexpected internal error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// Normalize ensures any error is represented as a StandardError.
func Normalize(err error) *StandardError {
	if stdErr, ok := err.(*StandardError); ok {
		return stdErr
	}
	return NewInternalError(err)
}

// IsRetryable reports whether the error may succeed on retry. Client-class
// (4xx) errors are never retryable.
func IsRetryable(err error) bool {
	stdErr, ok := err.(*StandardError)
	if !ok {
		return false
	}
	if stdErr.StatusCode >= 400 && stdErr.StatusCode < 500 {
		return false
	}
	return stdErr.Retryable
}

// IsTimeout reports whether the error is a timeout.
func IsTimeout(err error) bool {
	stdErr, ok := err.(*StandardError)
	return ok && stdErr.Code == ErrCodeUpstreamTimeout
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "UPSTREAM") || strings.Contains(codeStr, "BREAKER"):
		return "UPSTREAM"
	case strings.Contains(codeStr, "CACHE"):
		return "CACHE"
	case strings.Contains(codeStr, "VALIDATION") || strings.Contains(codeStr, "CONTENT") || strings.Contains(codeStr, "MODERATION"):
		return "VALIDATION"
	default:
		return "INTERNAL"
	}
}
