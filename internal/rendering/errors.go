// Package rendering turns a finished report into a PDF document.
package rendering

import "fmt"

// MarkdownError represents a failure converting the narrative Markdown
type MarkdownError struct {
	Message string
	Cause   error
}

func (e *MarkdownError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("markdown error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("markdown error: %s", e.Message)
}

func (e *MarkdownError) Unwrap() error {
	return e.Cause
}

// RenderError represents a general rendering failure
type RenderError struct {
	Message string
	Cause   error
}

func (e *RenderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("render error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("render error: %s", e.Message)
}

func (e *RenderError) Unwrap() error {
	return e.Cause
}
