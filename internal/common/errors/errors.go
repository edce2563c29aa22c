// Package errors provides the standardized error taxonomy shared by the compliance engine.
package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeValidation      ErrorCode = "VALIDATION_ERROR"
	ErrCodeNotFound        ErrorCode = "NOT_FOUND"
	ErrCodeConflict        ErrorCode = "CONFLICT"
	ErrCodeStateTransition ErrorCode = "STATE_TRANSITION"

	// External service failures (Government Gateway, Notification Dispatcher).
	ErrCodeRateLimited ErrorCode = "EXTERNAL_RATE_LIMITED"
	ErrCodeTimeout     ErrorCode = "EXTERNAL_TIMEOUT"
	ErrCodeUnavailable ErrorCode = "EXTERNAL_UNAVAILABLE"

	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"
	ErrCodeInternal               ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// Is matches another *StandardError by code so callers can use errors.Is with the sentinels below.
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithMetadata returns the error with an extra metadata entry.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// Sentinels for errors.Is comparisons.
var (
	ErrValidation      = &StandardError{Code: ErrCodeValidation}
	ErrNotFound        = &StandardError{Code: ErrCodeNotFound}
	ErrConflict        = &StandardError{Code: ErrCodeConflict}
	ErrStateTransition = &StandardError{Code: ErrCodeStateTransition}
	ErrRateLimited     = &StandardError{Code: ErrCodeRateLimited}
	ErrTimeout         = &StandardError{Code: ErrCodeTimeout}
	ErrUnavailable     = &StandardError{Code: ErrCodeUnavailable}
)

// ==========================
// 2. Error Constructors
// ==========================

// NewValidationError creates a non-retryable error for malformed rule or entity input.
func NewValidationError(field, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidation,
		Message:   "Validation failed",
		Details:   fmt.Sprintf("%s: %s", field, details),
		Retryable: false,
		Metadata:  map[string]interface{}{"field": field},
		Timestamp: time.Now().UTC(),
	}
}

// NewNotFoundError creates a non-retryable error for an unknown entity, rule or violation id.
func NewNotFoundError(resource, id string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotFound,
		Message:   fmt.Sprintf("%s not found", resource),
		Details:   fmt.Sprintf("id: %s", id),
		Retryable: false,
		Metadata:  map[string]interface{}{"resource": resource, "id": id},
		Timestamp: time.Now().UTC(),
	}
}

// NewConflictError creates a non-retryable error for duplicate keys and stale versions.
func NewConflictError(resource, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeConflict,
		Message:   fmt.Sprintf("%s conflict", resource),
		Details:   details,
		Retryable: false,
		Metadata:  map[string]interface{}{"resource": resource},
		Timestamp: time.Now().UTC(),
	}
}

// NewStateTransitionError creates a non-retryable error for an illegal status change.
func NewStateTransitionError(resource, from, to string) *StandardError {
	return &StandardError{
		Code:      ErrCodeStateTransition,
		Message:   fmt.Sprintf("illegal %s state transition", resource),
		Details:   fmt.Sprintf("%s -> %s", from, to),
		Retryable: false,
		Metadata:  map[string]interface{}{"resource": resource, "from": from, "to": to},
		Timestamp: time.Now().UTC(),
	}
}

// NewRateLimitedError creates a retryable error when an agency quota is exhausted.
func NewRateLimitedError(service string, retryAfter time.Duration) *StandardError {
	return &StandardError{
		Code:      ErrCodeRateLimited,
		Message:   "External service rate limit exceeded",
		Details:   fmt.Sprintf("service: %s, retryAfter: %s", service, retryAfter),
		Retryable: true,
		Metadata:  map[string]interface{}{"service": service, "retryAfterMs": retryAfter.Milliseconds()},
		Timestamp: time.Now().UTC(),
	}
}

// NewTimeoutError creates a retryable external timeout error.
func NewTimeoutError(service string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeTimeout,
		Message:   "External service timeout",
		Details:   fmt.Sprintf("service: %s, error: %v", service, err),
		Retryable: true,
		Metadata:  map[string]interface{}{"service": service},
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewUnavailableError creates a retryable error for a failing or unreachable external service.
func NewUnavailableError(service string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeUnavailable,
		Message:   "External service unavailable",
		Details:   fmt.Sprintf("service: %s, error: %v", service, err),
		Retryable: true,
		Metadata:  map[string]interface{}{"service": service},
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewNotificationSendFailedError creates a retryable notification send error.
func NewNotificationSendFailedError(channel string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotificationSendFailed,
		Message:   "Notification delivery failed",
		Details:   fmt.Sprintf("channel: %s, error: %v", channel, err),
		Retryable: true,
		Metadata:  map[string]interface{}{"channel": channel},
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewInternalError wraps an unexpected error.
func NewInternalError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// ==========================
// 3. Utility Functions
// ==========================

// CodeOf returns the code of the first StandardError in the chain, or INTERNAL_ERROR.
func CodeOf(err error) ErrorCode {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr.Code
	}
	return ErrCodeInternal
}

func IsValidation(err error) bool      { return stderrors.Is(err, ErrValidation) }
func IsNotFound(err error) bool        { return stderrors.Is(err, ErrNotFound) }
func IsConflict(err error) bool        { return stderrors.Is(err, ErrConflict) }
func IsStateTransition(err error) bool { return stderrors.Is(err, ErrStateTransition) }

// IsExternalService reports whether err is any of the ExternalServiceError kinds.
func IsExternalService(err error) bool {
	return stderrors.Is(err, ErrRateLimited) || stderrors.Is(err, ErrTimeout) || stderrors.Is(err, ErrUnavailable)
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetRetryCount returns the recommended retry count for a job that failed with code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeRateLimited, ErrCodeUnavailable:
		return 3
	case ErrCodeTimeout, ErrCodeNotificationSendFailed:
		return 2
	default:
		return 0
	}
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	switch code {
	case ErrCodeValidation:
		return "input"
	case ErrCodeNotFound, ErrCodeConflict, ErrCodeStateTransition:
		return "business"
	case ErrCodeRateLimited, ErrCodeTimeout, ErrCodeUnavailable, ErrCodeNotificationSendFailed:
		return "external"
	default:
		return "system"
	}
}
