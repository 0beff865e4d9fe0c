package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for validation failures.
var (
	ErrEmptyContent       = errors.New("empty content")
	ErrUnknownDocType     = errors.New("unknown doc type")
	ErrEmptySourceName    = errors.New("empty source name")
	ErrEmptyDocPath       = errors.New("empty doc path")
	ErrAbsoluteDocPath    = errors.New("doc path must be relative")
	ErrEmbeddingDimension = errors.New("embedding dimension mismatch")
)

// ValidationError wraps a sentinel with context.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}
