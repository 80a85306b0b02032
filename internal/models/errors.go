package models

import (
	"errors"
	"fmt"
)

// Custom errors
var (
	ErrNotFound            = errors.New("record not found")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrInvalidWinner       = errors.New("winner does not match either participant")
)

// ValidationError describes a single rejected input. Ingestion skips the
// offending item and keeps going.
type ValidationError struct {
	Field   string `json:"field,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewValidationError creates a validation error with no field attached.
func NewValidationError(code, message string) *ValidationError {
	return &ValidationError{Code: code, Message: message}
}

// NewFieldValidationError creates a validation error for a named field.
func NewFieldValidationError(field, code, message string) *ValidationError {
	return &ValidationError{Field: field, Code: code, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Field, e.Code, e.Message)
	}
	return e.Code + ": " + e.Message
}

// IsValidationError reports whether err is or wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
