package memory

import (
	"errors"
	"fmt"
)

// ErrValidation marks input errors the caller must fix. It is never
// worth retrying.
var ErrValidation = errors.New("memory: validation failed")

// ValidationError describes which field was rejected and why.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("memory: invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
