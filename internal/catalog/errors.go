package catalog

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a value id is not part of the catalog.
var ErrNotFound = errors.New("value not found")

// NotFoundError identifies the id that failed to resolve.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("value with id %q not found", e.ID)
}

// Is lets callers match with errors.Is(err, ErrNotFound).
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// LoadError represents a failure building a catalog from its source document.
type LoadError struct {
	Message string
	Cause   error
}

func (e *LoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("catalog load error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("catalog load error: %s", e.Message)
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}
