package model

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a class of scheduler usage error. It implements error
// so callers can test with errors.Is(err, model.ErrNoSuchThread).
type ErrorCode string

const (
	ErrInvalidConfig      ErrorCode = "INVALID_CONFIG"
	ErrInvalidEntry       ErrorCode = "INVALID_ENTRY"
	ErrCapacityExceeded   ErrorCode = "CAPACITY_EXCEEDED"
	ErrNoSuchThread       ErrorCode = "NO_SUCH_THREAD"
	ErrCannotBlockMain    ErrorCode = "CANNOT_BLOCK_MAIN"
	ErrAlreadyLocked      ErrorCode = "ALREADY_LOCKED"
	ErrNotLocked          ErrorCode = "NOT_LOCKED"
	ErrNotOwner           ErrorCode = "NOT_OWNER"
	ErrNotInitialized     ErrorCode = "NOT_INITIALIZED"
	ErrAlreadyInitialized ErrorCode = "ALREADY_INITIALIZED"

	// Codes used by the status API only.
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrValidation ErrorCode = "VALIDATION_ERROR"
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
)

func (c ErrorCode) Error() string {
	return string(c)
}

// NoThread is the tid reported when an error is not tied to a thread.
const NoThread = -1

// ThreadError is a usage error returned by a scheduler operation. Usage
// errors never change scheduler state.
type ThreadError struct {
	Code    ErrorCode
	TID     int
	Message string
}

func (e *ThreadError) Error() string {
	if e.TID == NoThread {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (tid %d)", e.Code, e.Message, e.TID)
}

// Is reports whether target is this error's code.
func (e *ThreadError) Is(target error) bool {
	code, ok := target.(ErrorCode)
	return ok && code == e.Code
}

// NewThreadError creates a ThreadError.
func NewThreadError(code ErrorCode, tid int, msg string) *ThreadError {
	return &ThreadError{Code: code, TID: tid, Message: msg}
}

// CodeOf extracts the ErrorCode of err, or "" when err carries none.
func CodeOf(err error) ErrorCode {
	var te *ThreadError
	if errors.As(err, &te) {
		return te.Code
	}
	var code ErrorCode
	if errors.As(err, &code) {
		return code
	}
	return ""
}

// APIError is a structured error returned by the status API.
type APIError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewNotFoundError creates a NOT_FOUND APIError.
func NewNotFoundError(resource, id string) *APIError {
	return &APIError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s '%s' not found", resource, id),
	}
}

// NewValidationError creates a VALIDATION_ERROR APIError.
func NewValidationError(msg string) *APIError {
	return &APIError{Code: ErrValidation, Message: msg}
}
