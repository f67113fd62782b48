package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/values-report/internal/assessment"
	"github.com/jonathan/values-report/internal/gate"
	"github.com/jonathan/values-report/internal/pipeline"
)

// ErrSessionMismatch indicates a request names a session other than the one
// its token was issued for.
var ErrSessionMismatch = errors.New("session does not match the authenticated session")

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
	Stage   string `json:"stage,omitempty"`
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, gate.ErrInvalidInput), errors.Is(err, pipeline.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, gate.ErrInvalidCredential), errors.Is(err, gate.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, ErrSessionMismatch):
		return http.StatusForbidden
	case errors.Is(err, assessment.ErrWrongStage):
		return http.StatusConflict
	case assessment.IsRejection(err):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrSynthesisFailed):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// UserMessage returns a message for err that is safe to show to the user.
// User-correctable errors keep their specific text; infrastructure errors
// get a generic one.
func UserMessage(err error) string {
	var ve *pipeline.ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	switch {
	case errors.Is(err, gate.ErrInvalidInput), errors.Is(err, pipeline.ErrInvalidRequest),
		assessment.IsRejection(err), errors.Is(err, ErrSessionMismatch):
		return err.Error()
	case errors.Is(err, gate.ErrInvalidCredential):
		return "Invalid or expired access code"
	case errors.Is(err, gate.ErrInvalidToken):
		return "Your session has expired. Please sign in again."
	case errors.Is(err, pipeline.ErrSynthesisFailed):
		return "We couldn't write your report right now. Please try again in a few minutes."
	case errors.Is(err, pipeline.ErrRenderFailed):
		return "We couldn't create your report document. Please try again."
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "Report generation took too long and was stopped. Please try again."
	default:
		return "An error occurred while processing your request"
	}
}

// rejectionReason returns a short machine-readable code for an assessment
// rejection.
func rejectionReason(err error) string {
	reasons := []struct {
		err  error
		code string
	}{
		{assessment.ErrWrongStage, "wrong_stage"},
		{assessment.ErrInvalidPath, "invalid_path"},
		{assessment.ErrInvalidBucket, "invalid_bucket"},
		{assessment.ErrUnknownValue, "unknown_value"},
		{assessment.ErrOutOfOrder, "out_of_order"},
		{assessment.ErrAlreadyCategorized, "already_categorized"},
		{assessment.ErrNotEligible, "not_eligible"},
		{assessment.ErrAlreadySelected, "already_selected"},
		{assessment.ErrNotSelected, "not_selected"},
		{assessment.ErrCapacityExceeded, "capacity_exceeded"},
		{assessment.ErrIncomplete, "incomplete"},
		{assessment.ErrNotEnoughCandidates, "not_enough_candidates"},
		{assessment.ErrInvalidRank, "invalid_rank"},
		{assessment.ErrMissingSession, "missing_session"},
	}
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.code
		}
	}
	return ""
}

// extractValidationErrors extracts validation error messages from validator errors.
func extractValidationErrors(err error) string {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
		// Return first validation error for simplicity
		ve := validationErrors[0]
		return fmt.Sprintf("validation error: %s - %s", ve.Field(), ve.Tag())
	}
	return "validation error: invalid request"
}
