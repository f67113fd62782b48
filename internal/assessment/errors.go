package assessment

import (
	"errors"
	"fmt"
)

// Rejection reasons. Every guard violation in this package wraps exactly one
// of these in a *Rejection so callers can branch with errors.Is.
var (
	ErrWrongStage          = errors.New("operation not allowed at this stage")
	ErrMissingSession      = errors.New("session id is required")
	ErrInvalidPath         = errors.New("unknown assessment path")
	ErrInvalidBucket       = errors.New("unknown importance bucket")
	ErrUnknownValue        = errors.New("unknown value")
	ErrOutOfOrder          = errors.New("value is not the one currently being sorted")
	ErrAlreadyCategorized  = errors.New("value already categorized")
	ErrNotEligible         = errors.New("value is not available at this stage")
	ErrAlreadySelected     = errors.New("value already selected")
	ErrNotSelected         = errors.New("value is not selected")
	ErrCapacityExceeded    = errors.New("selection is full")
	ErrIncomplete          = errors.New("selection is incomplete")
	ErrNotEnoughCandidates = errors.New("not enough values marked very important")
	ErrInvalidRank         = errors.New("rank out of range")
)

// Rejection is a user-correctable refusal of an assessment action. The state
// is left exactly as it was before the action.
type Rejection struct {
	Reason  error
	Message string
}

func (r *Rejection) Error() string {
	return r.Message
}

func (r *Rejection) Unwrap() error {
	return r.Reason
}

func reject(reason error, format string, args ...any) error {
	return &Rejection{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// IsRejection reports whether err is a user-correctable rejection.
func IsRejection(err error) bool {
	var r *Rejection
	return errors.As(err, &r)
}
