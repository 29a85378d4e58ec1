package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Common error types
var (
	ErrNotFound           = errors.New("resource not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrBadRequest         = errors.New("bad request")
	ErrInternal           = errors.New("internal error")
	ErrValidation         = errors.New("validation error")
	ErrInvalidEvent       = errors.New("invalid event")
	ErrAdapterTimeout     = errors.New("adapter timeout")
	ErrAdapterUnavailable = errors.New("adapter unavailable")
	ErrOrderingViolation  = errors.New("ordering violation")
)

// AppError represents an application error with context
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	Code       string            `json:"code"`
	HTTPStatus int               `json:"-"`
	Details    map[string]string `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound creates a not found error
func NotFound(resource string, id string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		Code:       "NOT_FOUND",
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]string{"resource": resource, "id": id},
	}
}

// Unauthorized creates an unauthorized error
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:        ErrUnauthorized,
		Message:    message,
		Code:       "UNAUTHORIZED",
		HTTPStatus: http.StatusUnauthorized,
	}
}

// BadRequest creates a bad request error
func BadRequest(message string) *AppError {
	return &AppError{
		Err:        ErrBadRequest,
		Message:    message,
		Code:       "BAD_REQUEST",
		HTTPStatus: http.StatusBadRequest,
	}
}

// Validation creates a validation error with field details
func Validation(message string, details map[string]string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Message:    message,
		Code:       "VALIDATION_ERROR",
		HTTPStatus: http.StatusBadRequest,
		Details:    details,
	}
}

// InvalidEvent creates a malformed-event error. Never retried: the event is
// rejected before any store write is attempted.
func InvalidEvent(message string, details map[string]string) *AppError {
	return &AppError{
		Err:        ErrInvalidEvent,
		Message:    message,
		Code:       "INVALID_EVENT",
		HTTPStatus: http.StatusBadRequest,
		Details:    details,
	}
}

// AdapterTimeout creates a bounded-wait-exceeded error for one store target.
func AdapterTimeout(target string, timeout time.Duration) *AppError {
	return &AppError{
		Err:        ErrAdapterTimeout,
		Message:    fmt.Sprintf("%s write exceeded %s", target, timeout),
		Code:       "ADAPTER_TIMEOUT",
		HTTPStatus: http.StatusGatewayTimeout,
		Details:    map[string]string{"target": target},
	}
}

// AdapterUnavailable creates a connection-level failure for one store target.
func AdapterUnavailable(target string, err error) *AppError {
	return &AppError{
		Err:        ErrAdapterUnavailable,
		Message:    fmt.Sprintf("%s unavailable: %v", target, err),
		Code:       "ADAPTER_UNAVAILABLE",
		HTTPStatus: http.StatusBadGateway,
		Details:    map[string]string{"target": target},
	}
}

// OrderingViolation marks an edge write attempted with a missing endpoint.
// A data-integrity defect, not silently retried.
func OrderingViolation(message string) *AppError {
	return &AppError{
		Err:        ErrOrderingViolation,
		Message:    message,
		Code:       "ORDERING_VIOLATION",
		HTTPStatus: http.StatusConflict,
	}
}

// Internal creates an internal error
func Internal(err error) *AppError {
	return &AppError{
		Err:        err,
		Message:    "internal server error",
		Code:       "INTERNAL_ERROR",
		HTTPStatus: http.StatusInternalServerError,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) *AppError {
	if appErr, ok := err.(*AppError); ok {
		appErr.Message = fmt.Sprintf("%s: %s", message, appErr.Message)
		return appErr
	}
	return &AppError{
		Err:        err,
		Message:    message,
		Code:       "INTERNAL_ERROR",
		HTTPStatus: http.StatusInternalServerError,
	}
}

// Retryable reports whether the error class is worth retrying. Timeouts and
// connection-level failures are; malformed events and ordering violations
// are not.
func Retryable(err error) bool {
	return errors.Is(err, ErrAdapterTimeout) || errors.Is(err, ErrAdapterUnavailable)
}
