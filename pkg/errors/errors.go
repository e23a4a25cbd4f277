// Package errors provides structured error types for loggate.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode identifies specific error conditions
type ErrorCode string

const (
	ErrCodeValidation ErrorCode = "VALIDATION_ERROR"
	ErrCodeNotFound   ErrorCode = "NOT_FOUND"
	ErrCodeConfig     ErrorCode = "CONFIG_ERROR"
	ErrCodePermission ErrorCode = "PERMISSION_DENIED"
	ErrCodeParse      ErrorCode = "PARSE_ERROR"
	ErrCodeSource     ErrorCode = "SOURCE_ERROR"
	ErrCodeAuth       ErrorCode = "AUTH_ERROR"
)

// Error is the base error type for loggate
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
	Details map[string]interface{}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new error with the given code and message
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// Wrap creates a new error wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
		Details: make(map[string]interface{}),
	}
}

// WithDetails adds details to an error
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithDetail adds a single detail to an error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	e.Details[key] = value
	return e
}

// ValidationError creates a validation error
func ValidationError(message string, details map[string]interface{}) *Error {
	return &Error{
		Code:    ErrCodeValidation,
		Message: message,
		Details: details,
	}
}

// NotFoundError creates a not found error
func NotFoundError(resourceType, name string) *Error {
	return &Error{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s %q not found", resourceType, name),
		Details: map[string]interface{}{
			"resource_type": resourceType,
			"name":          name,
		},
	}
}

// ParseError creates a parse error
func ParseError(subject string, err error) *Error {
	return &Error{
		Code:    ErrCodeParse,
		Message: fmt.Sprintf("failed to parse %s", subject),
		Cause:   err,
		Details: map[string]interface{}{
			"subject": subject,
		},
	}
}

// SourceError creates an error for a failed log source operation
func SourceError(source string, operation string, err error) *Error {
	return &Error{
		Code:    ErrCodeSource,
		Message: fmt.Sprintf("log source %s failed during %s", source, operation),
		Cause:   err,
		Details: map[string]interface{}{
			"source":    source,
			"operation": operation,
		},
	}
}

// PermissionError creates a permission denied error carrying a remediation
// hint that is safe to surface to dashboard clients.
func PermissionError(message, hint string, cause error) *Error {
	return &Error{
		Code:    ErrCodePermission,
		Message: message,
		Cause:   cause,
		Details: map[string]interface{}{
			"hint": hint,
		},
	}
}

// Hint returns the remediation hint attached to the error, if any
func (e *Error) Hint() string {
	if e.Details == nil {
		return ""
	}
	hint, _ := e.Details["hint"].(string)
	return hint
}

// Is checks if the error, or any error it wraps, matches the given code
func Is(err error, code ErrorCode) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code == code
	}
	return false
}
