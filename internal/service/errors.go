package service

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNoNotesDir is returned when an operation needs a notes directory and none is set.
	ErrNoNotesDir = errors.New("no notes directory configured")
	// ErrOutsideNotesDir is returned for paths that escape the notes directory.
	ErrOutsideNotesDir = errors.New("path is outside the notes directory")
	// ErrEmbeddingsDisabled is returned when no embedding provider is configured.
	ErrEmbeddingsDisabled = errors.New("embeddings are disabled")
)

// ValidationError represents a validation error with a field name.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field %s: %s", e.Field, e.Message)
}

// Is lets errors.Is(err, ErrInvalidInput) match any ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}
