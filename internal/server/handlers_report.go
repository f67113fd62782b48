package server

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/jonathan/values-report/internal/catalog"
	"github.com/jonathan/values-report/internal/pipeline"
	"github.com/jonathan/values-report/internal/server/middleware"
)

// GenerateReportRequest is the body of POST /api/generate-report. Email and
// SessionID default to the authenticated session.
type GenerateReportRequest struct {
	Values    []catalog.Selection `json:"values"`
	Email     string              `json:"email"`
	SessionID string              `json:"session_id"`
}

// ReportResponse is returned when a report was generated, whether or not it
// could be emailed.
type ReportResponse struct {
	Success       bool                  `json:"success"`
	Message       string                `json:"message"`
	EmailSent     bool                  `json:"email_sent"`
	DeliveryError string                `json:"delivery_error,omitempty"`
	Preview       string                `json:"report_preview"`
	Ranked        []catalog.RankedValue `json:"ranked,omitempty"`
}

func newReportResponse(result *pipeline.Result) ReportResponse {
	resp := ReportResponse{
		Success:       true,
		EmailSent:     result.EmailSent,
		DeliveryError: result.DeliveryError,
		Preview:       result.Preview,
		Ranked:        result.Ranked,
	}
	if result.EmailSent {
		resp.Message = "Your report has been generated and emailed to you"
	} else {
		resp.Message = "Your report was generated, but we couldn't email it. Please contact support."
	}
	return resp
}

// reportRequest builds a pipeline request scoped to the authenticated session.
func reportRequest(session middleware.Session, body GenerateReportRequest) (pipeline.Request, error) {
	if body.SessionID != "" && body.SessionID != session.ID {
		return pipeline.Request{}, ErrSessionMismatch
	}
	email := body.Email
	if email == "" {
		email = session.Email
	}
	return pipeline.Request{
		SessionID:  session.ID,
		Recipient:  email,
		Selections: body.Values,
	}, nil
}

// runReport runs the pipeline under the report timeout and logs hard failures.
func (s *Server) runReport(ctx context.Context, req pipeline.Request, onProgress pipeline.ProgressCallback) (*pipeline.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.reportTimeout)
	defer cancel()

	result, err := s.reports.Run(ctx, req, onProgress)
	if err != nil && !errors.Is(err, pipeline.ErrInvalidRequest) {
		s.logger.Error("report generation failed",
			zap.String("session_id", req.SessionID),
			zap.Error(err),
		)
	}
	return result, err
}

// handleGenerateReport generates, renders and emails a report for a ranked
// set of values.
func (s *Server) handleGenerateReport(w http.ResponseWriter, r *http.Request) {
	session, err := middleware.GetSession(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var body GenerateReportRequest
	if !s.decodeJSON(w, r, &body) {
		return
	}
	req, err := reportRequest(session, body)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), UserMessage(err))
		return
	}

	result, err := s.runReport(r.Context(), req, nil)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), UserMessage(err))
		return
	}
	s.jsonResponse(w, http.StatusOK, newReportResponse(result))
}

// handleGenerateReportStream is handleGenerateReport with pipeline progress
// streamed as server-sent events.
func (s *Server) handleGenerateReportStream(w http.ResponseWriter, r *http.Request) {
	session, err := middleware.GetSession(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var body GenerateReportRequest
	if !s.decodeJSON(w, r, &body) {
		return
	}
	req, err := reportRequest(session, body)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), UserMessage(err))
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	onProgress := func(event pipeline.ProgressEvent) {
		if err := sse.WriteEvent("step", event); err != nil {
			s.logger.Debug("failed to write progress event", zap.Error(err))
		}
	}

	result, err := s.runReport(r.Context(), req, onProgress)
	if err != nil {
		sse.WriteError(UserMessage(err))
		return
	}
	sse.WriteComplete(newReportResponse(result))
}
