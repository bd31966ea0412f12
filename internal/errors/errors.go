// Package errors provides the structured error type shared by the secrules
// toolkit. Loader-specific failures (cycles, missing documents) live in the
// loader package; everything else reports through RulesError so the CLI and
// preview server can present category, stable code, and location uniformly.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeSecurity   ErrorType = "security"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeInternal   ErrorType = "internal"
)

// RulesError is a structured error type with context.
type RulesError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Component   string
	Path        string
	Line        int
	Recoverable bool
}

// Error implements the error interface.
func (e *RulesError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Component != "" {
		parts = append(parts, "component:"+e.Component)
	}

	if e.Path != "" {
		location := e.Path
		if e.Line > 0 {
			location += fmt.Sprintf(":%d", e.Line)
		}
		parts = append(parts, location)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *RulesError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison by type and code.
func (e *RulesError) Is(target error) bool {
	var t *RulesError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithLocation adds document location information.
func (e *RulesError) WithLocation(path string, line int) *RulesError {
	e.Path = path
	e.Line = line

	return e
}

// WithComponent adds component context.
func (e *RulesError) WithComponent(component string) *RulesError {
	e.Component = component

	return e
}

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *RulesError {
	return &RulesError{
		Type:        ErrorTypeValidation,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewSecurityError creates a security error.
func NewSecurityError(code, message string) *RulesError {
	return &RulesError{
		Type:        ErrorTypeSecurity,
		Code:        code,
		Message:     message,
		Recoverable: false,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *RulesError {
	return &RulesError{
		Type:        ErrorTypeIO,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *RulesError {
	return &RulesError{
		Type:        ErrorTypeConfig,
		Code:        code,
		Message:     message,
		Recoverable: false,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *RulesError {
	return &RulesError{
		Type:        ErrorTypeInternal,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var re *RulesError
	if errors.As(err, &re) {
		return re.Recoverable
	}

	return false
}

// IsSecurityError checks if an error is security-related.
func IsSecurityError(err error) bool {
	var re *RulesError
	if errors.As(err, &re) {
		return re.Type == ErrorTypeSecurity
	}

	return false
}

// IsValidationError checks if an error is validation-related.
func IsValidationError(err error) bool {
	var re *RulesError
	if errors.As(err, &re) {
		return re.Type == ErrorTypeValidation
	}

	return false
}

// Common error codes.
const (
	ErrCodeInvalidPath      = "ERR_INVALID_PATH"
	ErrCodePathTraversal    = "ERR_PATH_TRAVERSAL"
	ErrCodeInvalidOrigin    = "ERR_INVALID_ORIGIN"
	ErrCodeDocumentNotFound = "ERR_DOCUMENT_NOT_FOUND"
	ErrCodeReadFailed       = "ERR_READ_FAILED"
	ErrCodeConfigInvalid    = "ERR_CONFIG_INVALID"
	ErrCodePermissionDenied = "ERR_PERMISSION_DENIED"
	ErrCodeInternalError    = "ERR_INTERNAL"
)

// ErrInvalidPath creates a path validation error.
func ErrInvalidPath(path string) *RulesError {
	return NewValidationError(ErrCodeInvalidPath, "invalid path: "+path)
}

// ErrPathTraversal creates a path traversal security error.
func ErrPathTraversal(path string) *RulesError {
	return NewSecurityError(ErrCodePathTraversal, "path traversal attempt: "+path)
}

// ErrInvalidOrigin creates an invalid origin security error.
func ErrInvalidOrigin(origin string) *RulesError {
	return NewSecurityError(ErrCodeInvalidOrigin, "invalid origin: "+origin)
}

// ErrDocumentNotFound creates a document not found error.
func ErrDocumentNotFound(path string) *RulesError {
	return NewValidationError(ErrCodeDocumentNotFound, "document not found: "+path)
}
