package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/values-report/internal/catalog"
	"github.com/jonathan/values-report/internal/gate"
)

// AuthRequest is the body of POST /api/auth.
type AuthRequest struct {
	AccessCode string `json:"access_code"`
	Email      string `json:"email"`
}

// AuthResponse is returned when an access code opens a session.
type AuthResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	SessionID string    `json:"session_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// handleAuth exchanges an access code and email for a session token.
func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	var req AuthRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	grant, err := s.gate.Authorize(r.Context(), req.AccessCode, req.Email)
	if err != nil {
		if !errors.Is(err, gate.ErrInvalidInput) && !errors.Is(err, gate.ErrInvalidCredential) {
			s.logger.Error("authorization failed", zap.Error(err))
		}
		s.errorResponse(w, HTTPStatus(err), UserMessage(err))
		return
	}

	s.jsonResponse(w, http.StatusOK, AuthResponse{
		Success:   true,
		Message:   "Access granted",
		SessionID: grant.SessionID,
		Token:     grant.Token,
		ExpiresAt: grant.ExpiresAt,
	})
}

// ValuesResponse lists catalog values.
type ValuesResponse struct {
	Values []catalog.ValueItem `json:"values"`
	Count  int                 `json:"count"`
}

// handleListValues returns the whole catalog.
func (s *Server) handleListValues(w http.ResponseWriter, _ *http.Request) {
	items := s.catalog.Items()
	s.jsonResponse(w, http.StatusOK, ValuesResponse{Values: items, Count: len(items)})
}

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 50
)

// handleSearchValues matches catalog values against ?q= with an optional ?limit=.
func (s *Server) handleSearchValues(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	limit := defaultSearchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.errorResponse(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxSearchLimit)
	}

	items := s.catalog.Search(query, limit)
	if items == nil {
		items = []catalog.ValueItem{}
	}
	s.jsonResponse(w, http.StatusOK, ValuesResponse{Values: items, Count: len(items)})
}
