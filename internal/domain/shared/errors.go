package shared

import (
	"fmt"
	"strings"
)

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors. A lookup that finds nothing is not an error: it
// returns a nil result and a nil error.
var (
	ErrInvalidInput   = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrUnknownField   = NewDomainError("UNKNOWN_FIELD", "Unknown field")
	ErrImmutableField = NewDomainError("IMMUTABLE_FIELD", "Field cannot be changed")
)

// FieldError describes a single failed validation rule
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned when an input shape fails structural validation.
// It unwraps to ErrInvalidInput.
type ValidationError struct {
	Details []FieldError `json:"details"`
}

// NewValidationError creates a validation error from field details
func NewValidationError(details ...FieldError) *ValidationError {
	return &ValidationError{Details: details}
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if len(e.Details) == 0 {
		return ErrInvalidInput.Message
	}
	parts := make([]string, 0, len(e.Details))
	for _, d := range e.Details {
		parts = append(parts, fmt.Sprintf("%s: %s", d.Field, d.Message))
	}
	return fmt.Sprintf("%s: %s", ErrInvalidInput.Message, strings.Join(parts, "; "))
}

// Unwrap allows errors.Is(err, ErrInvalidInput)
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// HasField reports whether any detail refers to the given field
func (e *ValidationError) HasField(field string) bool {
	for _, d := range e.Details {
		if d.Field == field {
			return true
		}
	}
	return false
}
