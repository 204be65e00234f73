package errors

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorType classifies an error by the subsystem boundary it belongs to
type ErrorType string

const (
	// Session boundary errors
	ErrorTypeProtocol ErrorType = "PROTOCOL" // malformed or out-of-state message
	ErrorTypeIO       ErrorType = "IO"       // network failure on a connection

	// Document store errors
	ErrorTypeDocument ErrorType = "DOCUMENT" // unreadable or corrupt snapshot

	// Identity allocation errors (not expected at runtime)
	ErrorTypeAllocation ErrorType = "ALLOCATION"

	// General errors
	ErrorTypeValidation ErrorType = "VALIDATION"
	ErrorTypeInternal   ErrorType = "INTERNAL"
)

// AppError represents an application-specific error
type AppError struct {
	Type       ErrorType              `json:"type"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	StackTrace string                 `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails adds error details
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

// WithCause wraps an underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Cause = err
	return e
}

// captureStackTrace captures the current stack trace
func captureStackTrace() string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	stack := ""
	for {
		frame, more := frames.Next()
		stack += fmt.Sprintf("%s:%d %s\n", frame.File, frame.Line, frame.Function)
		if !more {
			break
		}
	}
	return stack
}

// Constructor functions for common error types

// NewProtocolError creates a protocol error for a malformed or out-of-state
// message. The message is dropped and the connection stays open.
func NewProtocolError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeProtocol,
		Message:    message,
		StackTrace: captureStackTrace(),
	}
}

// NewDocumentError creates a document error for unreadable or corrupt
// persisted state
func NewDocumentError(message string, err error) *AppError {
	return &AppError{
		Type:       ErrorTypeDocument,
		Message:    message,
		Cause:      err,
		StackTrace: captureStackTrace(),
	}
}

// NewIOError creates an I/O error; it terminates only the affected session
func NewIOError(message string, err error) *AppError {
	return &AppError{
		Type:       ErrorTypeIO,
		Message:    message,
		Cause:      err,
		StackTrace: captureStackTrace(),
	}
}

// NewAllocationError creates an identity allocation error
func NewAllocationError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeAllocation,
		Message:    message,
		StackTrace: captureStackTrace(),
	}
}

// NewValidationError creates a validation error
func NewValidationError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Message:    message,
		StackTrace: captureStackTrace(),
	}
}

// NewInternalError creates an internal error
func NewInternalError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Message:    message,
		StackTrace: captureStackTrace(),
	}
}

// Helper functions

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetAppError extracts AppError from an error chain
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// IsType checks if an error is of a specific type
func IsType(err error, errType ErrorType) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Type == errType
}

// IsProtocol checks if an error is a protocol error
func IsProtocol(err error) bool {
	return IsType(err, ErrorTypeProtocol)
}

// IsDocument checks if an error is a document error
func IsDocument(err error) bool {
	return IsType(err, ErrorTypeDocument)
}

// IsIO checks if an error is an I/O error
func IsIO(err error) bool {
	return IsType(err, ErrorTypeIO)
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return IsType(err, ErrorTypeValidation)
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}

	// If it's already an AppError, add context to message
	if appErr := GetAppError(err); appErr != nil {
		appErr.Message = fmt.Sprintf("%s: %s", message, appErr.Message)
		return appErr
	}

	// Otherwise create a new internal error
	return NewInternalError(message).WithCause(err)
}

// Wrapf wraps an error with formatted message
func Wrapf(err error, format string, args ...interface{}) error {
	return Wrap(err, fmt.Sprintf(format, args...))
}
