package service

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTaskNotFound indicates the task id does not exist.
	ErrTaskNotFound = errors.New("task not found")
	// ErrStorageUnavailable wraps any unexpected persistence failure.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// FieldError describes one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// ValidationError is returned when a payload fails structural validation.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func storageError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}
