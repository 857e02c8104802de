// Package errors provides the standardized service error taxonomy.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sep2 reason codes carried in the XML <Error> body.
const (
	ReasonInvalidRequestFormat = 0
	ReasonInvalidRequestValues = 1
	ReasonResourceLimitReached = 2
	ReasonInternalError        = 3
)

// APIError represents a standardized service error. Handlers raise these;
// the HTTP boundary translates them to status codes, and sep2 endpoints
// additionally render an XML <Error> with the reason code.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	ReasonCode int    `json:"-"`
	Details    any    `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Message
}

// WithMessage returns a copy of the error with a custom message.
func (e *APIError) WithMessage(message string) *APIError {
	return &APIError{
		Code:       e.Code,
		Message:    message,
		StatusCode: e.StatusCode,
		ReasonCode: e.ReasonCode,
		Details:    e.Details,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *APIError) WithDetails(details any) *APIError {
	return &APIError{
		Code:       e.Code,
		Message:    e.Message,
		StatusCode: e.StatusCode,
		ReasonCode: e.ReasonCode,
		Details:    details,
	}
}

// Standard error definitions
var (
	// ErrUnauthorized is returned when credentials are missing or malformed.
	ErrUnauthorized = &APIError{
		Code:       "unauthorized",
		Message:    "Authentication required",
		StatusCode: http.StatusUnauthorized,
		ReasonCode: ReasonInvalidRequestFormat,
	}

	// ErrForbidden is returned when the caller is authenticated but the
	// request is disallowed for its certificate or key.
	ErrForbidden = &APIError{
		Code:       "forbidden",
		Message:    "You don't have permission to perform this action",
		StatusCode: http.StatusForbidden,
		ReasonCode: ReasonInvalidRequestValues,
	}

	// ErrNotFound is returned when a resource does not exist in the
	// caller's scope. Wrong-aggregator and wrong-site lookups map here so
	// existence never leaks.
	ErrNotFound = &APIError{
		Code:       "not_found",
		Message:    "Resource not found",
		StatusCode: http.StatusNotFound,
		ReasonCode: ReasonInvalidRequestValues,
	}

	// ErrBadRequest is returned on semantic validation failure.
	ErrBadRequest = &APIError{
		Code:       "bad_request",
		Message:    "Invalid request",
		StatusCode: http.StatusBadRequest,
		ReasonCode: ReasonInvalidRequestFormat,
	}

	// ErrConflict is returned on an LFDI/SFDI collision across aggregators.
	ErrConflict = &APIError{
		Code:       "conflict",
		Message:    "Resource already exists",
		StatusCode: http.StatusConflict,
		ReasonCode: ReasonInvalidRequestValues,
	}

	// ErrRateLimited is returned when rate limits are exceeded.
	ErrRateLimited = &APIError{
		Code:       "rate_limited",
		Message:    "Too many requests. Please try again later.",
		StatusCode: http.StatusTooManyRequests,
		ReasonCode: ReasonResourceLimitReached,
	}

	// ErrInternal is returned for unexpected server errors. The message is
	// fixed so internal detail never leaks on status 500.
	ErrInternal = &APIError{
		Code:       "internal_error",
		Message:    "An internal error occurred",
		StatusCode: http.StatusInternalServerError,
		ReasonCode: ReasonInternalError,
	}

	// ErrServiceUnavailable is returned when the broker or database is
	// unreachable.
	ErrServiceUnavailable = &APIError{
		Code:       "service_unavailable",
		Message:    "Service temporarily unavailable",
		StatusCode: http.StatusServiceUnavailable,
		ReasonCode: ReasonInternalError,
	}
)

// NewValidationError creates a validation error for a specific field.
func NewValidationError(field, message string) *APIError {
	return &APIError{
		Code:       "validation_error",
		Message:    fmt.Sprintf("Validation failed: %s", message),
		StatusCode: http.StatusBadRequest,
		ReasonCode: ReasonInvalidRequestFormat,
		Details: map[string]string{
			"field": field,
			"error": message,
		},
	}
}

// NewNotFoundError creates a not found error for a specific resource type.
func NewNotFoundError(resource string) *APIError {
	return &APIError{
		Code:       "not_found",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
		ReasonCode: ReasonInvalidRequestValues,
	}
}

// NewConflictError creates a conflict error with a custom message.
func NewConflictError(message string) *APIError {
	return &APIError{
		Code:       "conflict",
		Message:    message,
		StatusCode: http.StatusConflict,
		ReasonCode: ReasonInvalidRequestValues,
	}
}

// IsAPIError checks if an error is, or wraps, an APIError.
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

// AsAPIError converts an error to an APIError, unwrapping as needed.
// Returns ErrInternal otherwise, hiding the underlying message.
func AsAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return ErrInternal
}
