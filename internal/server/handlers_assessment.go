package server

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/jonathan/values-report/internal/assessment"
	"github.com/jonathan/values-report/internal/catalog"
	"github.com/jonathan/values-report/internal/pipeline"
	"github.com/jonathan/values-report/internal/server/middleware"
)

// AssessmentResponse carries the assessment after an action.
type AssessmentResponse struct {
	Success    bool                `json:"success"`
	Assessment assessment.Snapshot `json:"assessment"`
}

// FinalizeResponse carries the finalized assessment and its report outcome.
type FinalizeResponse struct {
	ReportResponse
	Assessment assessment.Snapshot `json:"assessment"`
}

// ChoosePathRequest is the body of POST /api/assessment/path.
type ChoosePathRequest struct {
	Path string `json:"path" validate:"required"`
}

// CategorizeRequest is the body of POST /api/assessment/categorize.
type CategorizeRequest struct {
	ValueID    string `json:"value_id" validate:"required"`
	Importance string `json:"importance" validate:"required"`
}

// ValueRequest names a single value.
type ValueRequest struct {
	ValueID string `json:"value_id" validate:"required"`
}

// RankRequest places a value at a rank.
type RankRequest struct {
	ValueID string `json:"value_id" validate:"required"`
	Rank    int    `json:"rank" validate:"required"`
}

// ClearRequest is the body of POST /api/assessment/direct/clear.
type ClearRequest struct {
	Rank int `json:"rank" validate:"required"`
}

// withAssessment resolves the caller's assessment and applies fn to it. On
// success it answers with the resulting snapshot.
func (s *Server) withAssessment(w http.ResponseWriter, r *http.Request, fn func(*assessment.State) error) (assessment.Snapshot, bool) {
	session, err := middleware.GetSession(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "Authentication required")
		return assessment.Snapshot{}, false
	}

	var snap assessment.Snapshot
	err = s.assessments.with(session.ID, func(state *assessment.State) error {
		err := fn(state)
		snap = state.Snapshot()
		return err
	})
	if err != nil {
		s.rejectionResponse(w, err, snap.Stage)
		return snap, false
	}
	return snap, true
}

// rejectionResponse answers a failed assessment action.
func (s *Server) rejectionResponse(w http.ResponseWriter, err error, stage assessment.Stage) {
	if !assessment.IsRejection(err) {
		s.logger.Error("assessment action failed", zap.Error(err))
		s.errorResponse(w, HTTPStatus(err), UserMessage(err))
		return
	}
	s.jsonResponse(w, HTTPStatus(err), ErrorResponse{
		Success: false,
		Message: err.Error(),
		Reason:  rejectionReason(err),
		Stage:   string(stage),
	})
}

func (s *Server) assessmentAction(w http.ResponseWriter, r *http.Request, fn func(*assessment.State) error) {
	snap, ok := s.withAssessment(w, r, fn)
	if !ok {
		return
	}
	s.jsonResponse(w, http.StatusOK, AssessmentResponse{Success: true, Assessment: snap})
}

// handleGetAssessment returns the caller's assessment.
func (s *Server) handleGetAssessment(w http.ResponseWriter, r *http.Request) {
	s.assessmentAction(w, r, func(*assessment.State) error { return nil })
}

// handleChoosePath enters the direct or sort branch.
func (s *Server) handleChoosePath(w http.ResponseWriter, r *http.Request) {
	var req ChoosePathRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	snap, ok := s.withAssessment(w, r, func(state *assessment.State) error {
		path, err := assessment.ParsePath(req.Path)
		if err != nil {
			return err
		}
		return state.ChoosePath(path, s.assessments.rng())
	})
	if !ok {
		return
	}

	if err := s.gate.MarkPathSelected(r.Context(), snap.SessionID, string(snap.Path)); err != nil {
		s.logger.Warn("failed to record assessment path",
			zap.String("session_id", snap.SessionID),
			zap.String("path", string(snap.Path)),
			zap.Error(err),
		)
	}
	s.jsonResponse(w, http.StatusOK, AssessmentResponse{Success: true, Assessment: snap})
}

// handleCategorize files the value being sorted into an importance bucket.
func (s *Server) handleCategorize(w http.ResponseWriter, r *http.Request) {
	var req CategorizeRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	s.assessmentAction(w, r, func(state *assessment.State) error {
		bucket, err := assessment.ParseBucket(req.Importance)
		if err != nil {
			return err
		}
		return state.Categorize(req.ValueID, bucket)
	})
}

// handleToggleTen adds or removes a value from the top ten.
func (s *Server) handleToggleTen(w http.ResponseWriter, r *http.Request) {
	var req ValueRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	s.assessmentAction(w, r, func(state *assessment.State) error {
		return state.ToggleTen(req.ValueID)
	})
}

// handleConfirmTen locks in the top ten and opens ranking.
func (s *Server) handleConfirmTen(w http.ResponseWriter, r *http.Request) {
	s.assessmentAction(w, r, func(state *assessment.State) error {
		return state.ConfirmTen()
	})
}

// handleToggleRanked adds or removes a value from the ranked five.
func (s *Server) handleToggleRanked(w http.ResponseWriter, r *http.Request) {
	var req ValueRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	s.assessmentAction(w, r, func(state *assessment.State) error {
		return state.ToggleRanked(req.ValueID)
	})
}

// handleMoveRanked moves a ranked value to a new rank.
func (s *Server) handleMoveRanked(w http.ResponseWriter, r *http.Request) {
	var req RankRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	s.assessmentAction(w, r, func(state *assessment.State) error {
		return state.MoveRanked(req.ValueID, req.Rank)
	})
}

// handleAssign places a value into a direct-entry rank slot.
func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	var req RankRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	s.assessmentAction(w, r, func(state *assessment.State) error {
		return state.Assign(req.ValueID, req.Rank)
	})
}

// handleClear empties a direct-entry rank slot.
func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	var req ClearRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	s.assessmentAction(w, r, func(state *assessment.State) error {
		return state.Clear(req.Rank)
	})
}

// handleDirectSearch looks up candidates for a direct-entry slot.
func (s *Server) handleDirectSearch(w http.ResponseWriter, r *http.Request) {
	var items []catalog.ValueItem
	_, ok := s.withAssessment(w, r, func(state *assessment.State) error {
		var err error
		items, err = state.Search(r.URL.Query().Get("q"))
		return err
	})
	if !ok {
		return
	}
	if items == nil {
		items = []catalog.ValueItem{}
	}
	s.jsonResponse(w, http.StatusOK, ValuesResponse{Values: items, Count: len(items)})
}

// handleFinalize freezes the ranked five and runs the report pipeline for
// them. An already finalized assessment reuses its ranking so a failed report
// can be retried.
func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	session, err := middleware.GetSession(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var ranked []catalog.RankedValue
	snap, ok := s.withAssessment(w, r, func(state *assessment.State) error {
		var err error
		if state.Stage() == assessment.StageFinalized {
			ranked, err = state.TopFive()
		} else {
			ranked, err = state.Finalize()
		}
		return err
	})
	if !ok {
		return
	}

	req := pipeline.Request{
		SessionID:  session.ID,
		Recipient:  session.Email,
		Selections: catalog.Selections(ranked),
	}
	result, err := s.runReport(r.Context(), req, nil)
	if err != nil {
		if errors.Is(err, pipeline.ErrInvalidRequest) {
			s.logger.Warn("finalized assessment rejected by report pipeline",
				zap.String("session_id", session.ID),
				zap.Error(err),
			)
		}
		s.errorResponse(w, HTTPStatus(err), UserMessage(err))
		return
	}

	s.jsonResponse(w, http.StatusOK, FinalizeResponse{
		ReportResponse: newReportResponse(result),
		Assessment:     snap,
	})
}
