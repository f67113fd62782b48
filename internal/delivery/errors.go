package delivery

import (
	"errors"
	"fmt"
)

// ErrNotConfigured is returned by the disabled transport when no SMTP host
// is configured.
var ErrNotConfigured = errors.New("email delivery is not configured")

// ComposeError represents a failure building the message.
type ComposeError struct {
	Message string
	Cause   error
}

func (e *ComposeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("compose error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("compose error: %s", e.Message)
}

func (e *ComposeError) Unwrap() error {
	return e.Cause
}

// SendError represents a transport failure.
type SendError struct {
	Message string
	Cause   error
}

func (e *SendError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("send error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("send error: %s", e.Message)
}

func (e *SendError) Unwrap() error {
	return e.Cause
}
