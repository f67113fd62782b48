package gate

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput reports a malformed email or access code.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidCredential reports an unknown, inactive or exhausted access code.
	ErrInvalidCredential = errors.New("invalid or expired access code")
	// ErrInvalidToken reports a session token that failed validation.
	ErrInvalidToken = errors.New("invalid session token")
)

// InputError describes a user-correctable problem with an authorization request.
type InputError struct {
	Field   string
	Message string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is makes InputError match ErrInvalidInput.
func (e *InputError) Is(target error) bool {
	return target == ErrInvalidInput
}

// SessionError is returned when the store fails to open a session for an
// otherwise valid request.
type SessionError struct {
	Message string
	Cause   error
}

func (e *SessionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *SessionError) Unwrap() error {
	return e.Cause
}
