package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents application-specific error codes
type ErrorCode string

const (
	// Validation errors
	ErrCodeValidation   ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeMissingField ErrorCode = "MISSING_FIELD"

	// Authentication errors
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeInvalidToken ErrorCode = "INVALID_TOKEN"
	ErrCodeExpiredToken ErrorCode = "EXPIRED_TOKEN"

	// Not found errors
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeUserNotFound ErrorCode = "USER_NOT_FOUND"
	ErrCodeCallNotFound ErrorCode = "CALL_NOT_FOUND"

	// Matchmaking errors
	ErrCodeAlreadyInCall      ErrorCode = "ALREADY_IN_CALL"
	ErrCodeCallAlreadyEnded   ErrorCode = "CALL_ALREADY_ENDED"
	ErrCodeInvariantViolation ErrorCode = "INVARIANT_VIOLATION"

	// Relay errors
	ErrCodeDeliveryExhausted ErrorCode = "DELIVERY_EXHAUSTED"

	// Infrastructure errors
	ErrCodeStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"
	ErrCodeInternal         ErrorCode = "INTERNAL_ERROR"
	ErrCodeDatabase         ErrorCode = "DATABASE_ERROR"
)

// AppError represents a structured application error with code, message, and HTTP status
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	StatusCode int       `json:"-"`
	Err        error     `json:"-"`
}

// Error implements the error interface, returning a formatted error message
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the given code and message
// The status code defaults to 500 Internal Server Error
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

// NewWithStatus creates a new AppError with a specific HTTP status code
func NewWithStatus(code ErrorCode, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an underlying error into an AppError
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// AlreadyInCall signals that a user attempted to queue while a real
// ACTIVE call exists for them. Surfaced to the caller, never retried.
func AlreadyInCall(userID int64) *AppError {
	return &AppError{
		Code:       ErrCodeAlreadyInCall,
		Message:    fmt.Sprintf("user %d is already in an active call", userID),
		StatusCode: http.StatusConflict,
	}
}

// CallAlreadyEnded signals an end/cancel request on a non-ACTIVE call.
func CallAlreadyEnded(callID string) *AppError {
	return &AppError{
		Code:       ErrCodeCallAlreadyEnded,
		Message:    fmt.Sprintf("call %s has already ended", callID),
		StatusCode: http.StatusConflict,
	}
}

// CallNotFound signals a lookup of an unknown call id.
func CallNotFound(callID string) *AppError {
	return &AppError{
		Code:       ErrCodeCallNotFound,
		Message:    fmt.Sprintf("call %s not found", callID),
		StatusCode: http.StatusNotFound,
	}
}

// StoreUnavailable wraps a transient shared-store failure. User-initiated
// callers surface it; cleanup-path callers swallow and log it.
func StoreUnavailable(err error) *AppError {
	return &AppError{
		Code:       ErrCodeStoreUnavailable,
		Message:    "shared store temporarily unavailable",
		StatusCode: http.StatusServiceUnavailable,
		Err:        err,
	}
}

// InvariantViolation marks a state the pairing flow must never reach.
// Logged as critical by callers; the offending entry is restored, not dropped.
func InvariantViolation(message string) *AppError {
	return &AppError{
		Code:       ErrCodeInvariantViolation,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

// IsCode reports whether err is an AppError carrying the given code
func IsCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// AsAppError extracts an AppError from err, or wraps err into a generic
// internal AppError when it is not one
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Wrap(ErrCodeInternal, "internal error", err)
}
