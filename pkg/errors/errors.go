// Package errors defines common error types for the application.
package errors

import (
	"errors"
	"fmt"
)

// Error codes for the application.
const (
	CodeUnknown     = "UNKNOWN_ERROR"
	CodeStructural  = "STRUCTURAL_ERROR"
	CodeNumeric     = "NUMERIC_ERROR"
	CodeInvariant   = "INVARIANT_ERROR"
	CodeDeadlock    = "DEADLOCK_ERROR"
	CodeConfigError = "CONFIG_ERROR"
	CodeIOError     = "IO_ERROR"
	CodeNotFound    = "NOT_FOUND"
	CodeInvalidInput = "INVALID_INPUT"
	CodeTimeout     = "TIMEOUT_ERROR"
)

// AppError represents an application error with a code and message.
type AppError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is checks if the error matches the target.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new AppError.
func New(code string, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new AppError with a formatted message.
func Newf(code string, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with an AppError.
func Wrap(code string, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Structural reports an error in the construction-time shape of the input graph
// (missing group, malformed connection path, unknown node reference).
func Structural(format string, args ...interface{}) *AppError {
	return Newf(CodeStructural, format, args...)
}

// Numeric reports a NaN/negative numeric parameter detected at construction.
func Numeric(format string, args ...interface{}) *AppError {
	return Newf(CodeNumeric, format, args...)
}

// Invariant reports a violated runtime invariant of the simulation core
// (e.g. a mismatched TP completion) — an engine bug, not recoverable.
func Invariant(format string, args ...interface{}) *AppError {
	return Newf(CodeInvariant, format, args...)
}

// Deadlock reports that the event fixed point was reached with tasks still
// not DONE and every stableTime at +Inf.
func Deadlock(format string, args ...interface{}) *AppError {
	return Newf(CodeDeadlock, format, args...)
}

// Common error instances.
var (
	ErrInvalidInput = New(CodeInvalidInput, "invalid input")
	ErrTimeout      = New(CodeTimeout, "operation timeout")
	ErrNotFound     = New(CodeNotFound, "resource not found")
	ErrConfigError  = New(CodeConfigError, "configuration error")
	ErrIOError      = New(CodeIOError, "io error")
)

// IsStructuralError checks if the error is a structural error.
func IsStructuralError(err error) bool {
	return GetErrorCode(err) == CodeStructural
}

// IsNumericError checks if the error is a numeric error.
func IsNumericError(err error) bool {
	return GetErrorCode(err) == CodeNumeric
}

// IsInvariantError checks if the error is an invariant error.
func IsInvariantError(err error) bool {
	return GetErrorCode(err) == CodeInvariant
}

// IsDeadlockError checks if the error is a deadlock error.
func IsDeadlockError(err error) bool {
	return GetErrorCode(err) == CodeDeadlock
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// GetErrorMessage extracts the error message from an error.
func GetErrorMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
