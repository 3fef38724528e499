package utils

import (
	"errors"
	"fmt"
	"net/http"
)

// ServiceError represents a service-level error with context
type ServiceError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode,omitempty"`
	Details    string `json:"details,omitempty"`
	Cause      error  `json:"-"` // Original error, not exposed in JSON
}

func (e ServiceError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e ServiceError) Unwrap() error {
	return e.Cause
}

// Error code constants — the operation taxonomy. Every lifecycle and
// messaging failure maps to exactly one of these.
const (
	ErrCodeValidation   = "VALIDATION_ERROR"
	ErrCodeConflict     = "CONFLICT"
	ErrCodeInvalidState = "INVALID_STATE"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeForbidden    = "FORBIDDEN"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeInternal     = "INTERNAL_ERROR"
	ErrCodeDatabase     = "DATABASE_ERROR"
	ErrCodeRateLimit    = "RATE_LIMIT_EXCEEDED"
)

func NewValidationError(message string) error {
	return ServiceError{
		Code:       ErrCodeValidation,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NewConflictError(message string) error {
	return ServiceError{
		Code:       ErrCodeConflict,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// NewInvalidStateError marks an operation that is illegal for the entity's
// current lifecycle state.
func NewInvalidStateError(message string) error {
	return ServiceError{
		Code:       ErrCodeInvalidState,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func NewNotFoundError(resource string) error {
	return ServiceError{
		Code:       ErrCodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
	}
}

func NewForbiddenError(message string) error {
	return ServiceError{
		Code:       ErrCodeForbidden,
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

func NewUnauthorizedError(message string) error {
	return ServiceError{
		Code:       ErrCodeUnauthorized,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

func NewInternalError(message string) error {
	return ServiceError{
		Code:       ErrCodeInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

func NewDatabaseError(operation string, cause error) error {
	return ServiceError{
		Code:       ErrCodeDatabase,
		Message:    fmt.Sprintf("Database operation failed: %s", operation),
		Cause:      cause,
		StatusCode: http.StatusInternalServerError,
	}
}

func NewRateLimitError(message string) error {
	return ServiceError{
		Code:       ErrCodeRateLimit,
		Message:    message,
		StatusCode: http.StatusTooManyRequests,
	}
}

// GetServiceError extracts a ServiceError from an error chain.
func GetServiceError(err error) (ServiceError, bool) {
	var serviceErr ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr, true
	}
	return ServiceError{}, false
}

// IsErrorCode reports whether err is a ServiceError with the given code.
func IsErrorCode(err error, code string) bool {
	serviceErr, ok := GetServiceError(err)
	return ok && serviceErr.Code == code
}

func IsValidationError(err error) bool   { return IsErrorCode(err, ErrCodeValidation) }
func IsConflictError(err error) bool     { return IsErrorCode(err, ErrCodeConflict) }
func IsInvalidStateError(err error) bool { return IsErrorCode(err, ErrCodeInvalidState) }
func IsNotFoundError(err error) bool     { return IsErrorCode(err, ErrCodeNotFound) }
func IsForbiddenError(err error) bool    { return IsErrorCode(err, ErrCodeForbidden) }
