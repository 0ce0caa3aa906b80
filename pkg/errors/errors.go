package errors

import (
	"fmt"
)

// ValidationError represents input validation errors on a single request field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// Required reports a missing field
func Required(field string) *ValidationError {
	return NewValidationError(field, "is required")
}
