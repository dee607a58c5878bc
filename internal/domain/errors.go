package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidInput is returned when a computation input fails range validation.
// Always wrapped with the offending field name; match with errors.Is.
var ErrInvalidInput = errors.New("invalid input")

// invalidField wraps ErrInvalidInput with the field that failed validation.
func invalidField(field string, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidInput, field, fmt.Sprintf(format, args...))
}
