package synthesis

import "fmt"

// GenerationError is returned when the model call for a report section fails
// or produces nothing usable.
type GenerationError struct {
	Section string // "narrative" or "summary"
	Message string
	Cause   error
}

func (e *GenerationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s generation failed: %s: %v", e.Section, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s generation failed: %s", e.Section, e.Message)
}

func (e *GenerationError) Unwrap() error {
	return e.Cause
}
