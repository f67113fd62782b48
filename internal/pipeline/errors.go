package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrSynthesisFailed marks a run aborted because report content could not
	// be generated.
	ErrSynthesisFailed = errors.New("report content generation failed")
	// ErrRenderFailed marks a run aborted because the document could not be
	// rendered.
	ErrRenderFailed = errors.New("report rendering failed")
	// ErrInvalidRequest is matched by every ValidationError.
	ErrInvalidRequest = errors.New("invalid report request")
)

// ValidationError rejects a request before any collaborator is called.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is makes ValidationError match ErrInvalidRequest.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidRequest
}

// StepError is a hard failure of one step. It matches both its kind sentinel
// and its cause.
type StepError struct {
	Step  string
	Kind  error
	Cause error
}

func (e *StepError) Error() string {
	if e.Kind != nil {
		return fmt.Sprintf("%s: %v: %v", e.Step, e.Kind, e.Cause)
	}
	return fmt.Sprintf("%s: %v", e.Step, e.Cause)
}

func (e *StepError) Unwrap() []error {
	var errs []error
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// SoftFailure records a step that failed without affecting the outcome.
type SoftFailure struct {
	Step  string `json:"step"`
	Error string `json:"error"`
}
