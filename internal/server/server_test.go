package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jonathan/values-report/internal/assessment"
	"github.com/jonathan/values-report/internal/catalog"
	"github.com/jonathan/values-report/internal/gate"
	"github.com/jonathan/values-report/internal/pipeline"
	"github.com/jonathan/values-report/internal/server/ratelimit"
)

const (
	testToken   = "good-token"
	testSession = "11111111-2222-3333-4444-555555555555"
	testEmail   = "user@example.com"
)

type fakeGate struct {
	mu          sync.Mutex
	authErr     error
	pathErr     error
	pathsMarked []string
}

func (g *fakeGate) Authorize(_ context.Context, code, email string) (*gate.Grant, error) {
	if g.authErr != nil {
		return nil, g.authErr
	}
	return &gate.Grant{
		SessionID: testSession,
		Token:     testToken,
		ExpiresAt: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
	}, nil
}

func (g *fakeGate) ValidateToken(token string) (*gate.Claims, error) {
	if token != testToken {
		return nil, gate.ErrInvalidToken
	}
	return &gate.Claims{SessionID: testSession, Email: testEmail}, nil
}

func (g *fakeGate) MarkPathSelected(_ context.Context, sessionID, path string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pathsMarked = append(g.pathsMarked, sessionID+":"+path)
	return g.pathErr
}

type fakeReports struct {
	mu       sync.Mutex
	requests []pipeline.Request
	result   *pipeline.Result
	err      error
}

func (f *fakeReports) Run(_ context.Context, req pipeline.Request, onProgress pipeline.ProgressCallback) (*pipeline.Result, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if onProgress != nil {
		onProgress(pipeline.ProgressEvent{
			Step:      pipeline.StepSynthesizeContent,
			Status:    pipeline.StatusStarted,
			SessionID: req.SessionID,
		})
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &pipeline.Result{
		SessionID: req.SessionID,
		Preview:   "Dear user...",
		EmailSent: true,
	}, nil
}

type harness struct {
	server  *Server
	gate    *fakeGate
	reports *fakeReports
	logs    *observer.ObservedLogs
}

func newHarness(t *testing.T, rl *ratelimit.Config) *harness {
	t.Helper()
	if rl == nil {
		rl = &ratelimit.Config{Enabled: false, CleanupInterval: time.Minute}
	}
	core, logs := observer.New(zapcore.DebugLevel)
	h := &harness{gate: &fakeGate{}, reports: &fakeReports{}, logs: logs}

	s, err := New(Config{}, Deps{
		Gate:      h.gate,
		Reports:   h.reports,
		RateLimit: rl,
		Logger:    zap.New(core),
	})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	h.server = s
	return h
}

func (h *harness) do(t *testing.T, method, path string, body any, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func topFiveSelections() []catalog.Selection {
	items := catalog.Default().Items()[:5]
	out := make([]catalog.Selection, len(items))
	for i, item := range items {
		out[i] = catalog.Selection{ValueID: item.ID, Rank: i + 1}
	}
	return out
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Config{}, Deps{Reports: &fakeReports{}})
	assert.Error(t, err)

	_, err = New(Config{}, Deps{Gate: &fakeGate{}})
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(t, http.MethodGet, "/health", nil, false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(t, http.MethodOptions, "/api/auth", nil, false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")
}

func TestAuth(t *testing.T) {
	t.Run("grants a session", func(t *testing.T) {
		h := newHarness(t, nil)
		rec := h.do(t, http.MethodPost, "/api/auth", AuthRequest{AccessCode: "CODE", Email: testEmail}, false)
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decode[AuthResponse](t, rec)
		assert.True(t, resp.Success)
		assert.Equal(t, testSession, resp.SessionID)
		assert.Equal(t, testToken, resp.Token)
		assert.False(t, resp.ExpiresAt.IsZero())
	})

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{"bad email", &gate.InputError{Field: "email", Message: "invalid email address"}, http.StatusBadRequest, "invalid email address"},
		{"bad code", gate.ErrInvalidCredential, http.StatusUnauthorized, "Invalid or expired access code"},
		{"store down", &gate.SessionError{Message: "failed to create session", Cause: errors.New("db down")}, http.StatusInternalServerError, "An error occurred"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.gate.authErr = tt.err
			rec := h.do(t, http.MethodPost, "/api/auth", AuthRequest{AccessCode: "CODE", Email: testEmail}, false)
			assert.Equal(t, tt.wantStatus, rec.Code)

			resp := decode[ErrorResponse](t, rec)
			assert.False(t, resp.Success)
			assert.Contains(t, resp.Message, tt.wantMsg)
			assert.NotContains(t, resp.Message, "db down")
		})
	}
}

func TestAuth_MalformedBody(t *testing.T) {
	h := newHarness(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/auth", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestValues(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodGet, "/api/values", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	all := decode[ValuesResponse](t, rec)
	assert.Equal(t, catalog.Default().Len(), all.Count)

	first := catalog.Default().Items()[0]
	rec = h.do(t, http.MethodGet, "/api/values/search?limit=1&q="+strings.ReplaceAll(first.Text, " ", "+"), nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	found := decode[ValuesResponse](t, rec)
	require.Equal(t, 1, found.Count)

	rec = h.do(t, http.MethodGet, "/api/values/search?q=", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"values":[],"count":0}`, rec.Body.String())

	rec = h.do(t, http.MethodGet, "/api/values/search?q=a&limit=zero", nil, false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	h := newHarness(t, nil)
	for _, path := range []string{"/api/generate-report", "/api/assessment/path", "/api/assessment/finalize"} {
		rec := h.do(t, http.MethodPost, path, map[string]string{}, false)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
	rec := h.do(t, http.MethodGet, "/api/assessment", nil, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, h.reports.requests)
}

func TestGenerateReport(t *testing.T) {
	h := newHarness(t, nil)
	body := GenerateReportRequest{Values: topFiveSelections()}

	rec := h.do(t, http.MethodPost, "/api/generate-report", body, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[ReportResponse](t, rec)
	assert.True(t, resp.Success)
	assert.True(t, resp.EmailSent)
	assert.Equal(t, "Dear user...", resp.Preview)

	require.Len(t, h.reports.requests, 1)
	got := h.reports.requests[0]
	assert.Equal(t, testSession, got.SessionID)
	assert.Equal(t, testEmail, got.Recipient, "recipient defaults to the session email")
	assert.Equal(t, body.Values, got.Selections)
}

func TestGenerateReport_SessionMismatch(t *testing.T) {
	h := newHarness(t, nil)
	body := GenerateReportRequest{Values: topFiveSelections(), SessionID: "someone-else"}

	rec := h.do(t, http.MethodPost, "/api/generate-report", body, true)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, h.reports.requests)
}

func TestGenerateReport_Failures(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "validation",
			err:        &pipeline.ValidationError{Field: "values", Message: "value with ID nope not found"},
			wantStatus: http.StatusBadRequest,
			wantMsg:    "value with ID nope not found",
		},
		{
			name:       "synthesis",
			err:        &pipeline.StepError{Step: pipeline.StepSynthesizeContent, Kind: pipeline.ErrSynthesisFailed, Cause: errors.New("quota exhausted")},
			wantStatus: http.StatusBadGateway,
			wantMsg:    "couldn't write your report",
		},
		{
			name:       "render",
			err:        &pipeline.StepError{Step: pipeline.StepRenderDocument, Kind: pipeline.ErrRenderFailed, Cause: errors.New("chrome crashed")},
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "couldn't create your report document",
		},
		{
			name:       "timeout",
			err:        &pipeline.StepError{Step: pipeline.StepSynthesizeContent, Cause: context.DeadlineExceeded},
			wantStatus: http.StatusGatewayTimeout,
			wantMsg:    "took too long",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.reports.err = tt.err

			rec := h.do(t, http.MethodPost, "/api/generate-report", GenerateReportRequest{Values: topFiveSelections()}, true)
			assert.Equal(t, tt.wantStatus, rec.Code)

			resp := decode[ErrorResponse](t, rec)
			assert.False(t, resp.Success)
			assert.Contains(t, resp.Message, tt.wantMsg)
			assert.NotContains(t, resp.Message, "quota")
			assert.NotContains(t, resp.Message, "chrome")
		})
	}
}

func TestGenerateReport_DeliveryFailureStillSucceeds(t *testing.T) {
	h := newHarness(t, nil)
	h.reports.result = &pipeline.Result{SessionID: testSession, Preview: "x...", DeliveryError: "smtp refused"}

	rec := h.do(t, http.MethodPost, "/api/generate-report", GenerateReportRequest{Values: topFiveSelections()}, true)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[ReportResponse](t, rec)
	assert.True(t, resp.Success)
	assert.False(t, resp.EmailSent)
	assert.Equal(t, "smtp refused", resp.DeliveryError)
	assert.Contains(t, resp.Message, "couldn't email")
}

func TestGenerateReportStream(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodPost, "/api/generate-report/stream", GenerateReportRequest{Values: topFiveSelections()}, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "event: step\n")
	assert.Contains(t, body, `"step":"synthesize_content"`)
	assert.Contains(t, body, "event: complete\n")
	assert.Contains(t, body, `"email_sent":true`)
}

func TestGenerateReportStream_Error(t *testing.T) {
	h := newHarness(t, nil)
	h.reports.err = &pipeline.StepError{Step: pipeline.StepRenderDocument, Kind: pipeline.ErrRenderFailed, Cause: errors.New("boom")}

	rec := h.do(t, http.MethodPost, "/api/generate-report/stream", GenerateReportRequest{Values: topFiveSelections()}, true)
	body := rec.Body.String()
	assert.Contains(t, body, "event: error\n")
	assert.NotContains(t, body, "event: complete")
	assert.NotContains(t, body, "boom")
}

type assessmentBody struct {
	Success    bool                `json:"success"`
	Assessment assessment.Snapshot `json:"assessment"`
}

func TestAssessment_DirectPathToReport(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodGet, "/api/assessment", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decode[assessmentBody](t, rec).Assessment
	assert.Equal(t, assessment.StagePathSelection, snap.Stage)
	assert.Equal(t, testSession, snap.SessionID)

	rec = h.do(t, http.MethodPost, "/api/assessment/path", ChoosePathRequest{Path: "direct"}, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, assessment.StageDirectSelection, decode[assessmentBody](t, rec).Assessment.Stage)
	assert.Equal(t, []string{testSession + ":direct"}, h.gate.pathsMarked)

	// Finalizing early is rejected and changes nothing.
	rec = h.do(t, http.MethodPost, "/api/assessment/finalize", nil, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "incomplete", decode[ErrorResponse](t, rec).Reason)
	assert.Empty(t, h.reports.requests)

	selections := topFiveSelections()
	for _, sel := range selections {
		rec = h.do(t, http.MethodPost, "/api/assessment/direct/assign", RankRequest{ValueID: sel.ValueID, Rank: sel.Rank}, true)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec = h.do(t, http.MethodPost, "/api/assessment/finalize", nil, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var final struct {
		ReportResponse
		Assessment assessment.Snapshot `json:"assessment"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &final))
	assert.True(t, final.Success)
	assert.Equal(t, assessment.StageFinalized, final.Assessment.Stage)
	assert.Len(t, final.Assessment.TopFive, assessment.TopFiveSize)

	require.Len(t, h.reports.requests, 1)
	assert.Equal(t, testEmail, h.reports.requests[0].Recipient)
	assert.ElementsMatch(t, selections, h.reports.requests[0].Selections)

	// A finalized assessment can be resubmitted when its report failed.
	rec = h.do(t, http.MethodPost, "/api/assessment/finalize", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, h.reports.requests, 2)
	assert.Equal(t, h.reports.requests[0].Selections, h.reports.requests[1].Selections)
}

func TestAssessment_Rejections(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodPost, "/api/assessment/path", ChoosePathRequest{Path: "sideways"}, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "invalid_path", resp.Reason)
	assert.Equal(t, string(assessment.StagePathSelection), resp.Stage)
	assert.Empty(t, h.gate.pathsMarked)

	rec = h.do(t, http.MethodPost, "/api/assessment/top-ten/confirm", nil, true)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "wrong_stage", decode[ErrorResponse](t, rec).Reason)

	rec = h.do(t, http.MethodPost, "/api/assessment/path", ChoosePathRequest{Path: "direct"}, true)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/assessment/direct/assign", RankRequest{ValueID: "no-such-value", Rank: 1}, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "unknown_value", decode[ErrorResponse](t, rec).Reason)

	rec = h.do(t, http.MethodPost, "/api/assessment/categorize", CategorizeRequest{ValueID: "x", Importance: "very"}, true)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/assessment/direct/assign", map[string]any{"rank": 1}, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[ErrorResponse](t, rec).Message, "ValueID")
}

func TestAssessment_SortPathCategorize(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodPost, "/api/assessment/path", ChoosePathRequest{Path: "sort"}, true)
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decode[assessmentBody](t, rec).Assessment
	assert.Equal(t, assessment.StageSorting, snap.Stage)
	require.NotNil(t, snap.Current)
	assert.Equal(t, 0, snap.Sorted)
	assert.Equal(t, catalog.Default().Len(), snap.Total)

	rec = h.do(t, http.MethodPost, "/api/assessment/categorize", CategorizeRequest{ValueID: snap.Current.ID, Importance: "very"}, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	next := decode[assessmentBody](t, rec).Assessment
	assert.Equal(t, 1, next.Sorted)
	require.NotNil(t, next.Buckets)
	require.Len(t, next.Buckets.Very, 1)
	assert.Equal(t, snap.Current.ID, next.Buckets.Very[0].ID)

	rec = h.do(t, http.MethodPost, "/api/assessment/categorize", CategorizeRequest{ValueID: next.Current.ID, Importance: "extremely"}, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_bucket", decode[ErrorResponse](t, rec).Reason)
}

func TestAssessment_DirectSearch(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodGet, "/api/assessment/direct/search?q=a", nil, true)
	assert.Equal(t, http.StatusConflict, rec.Code)

	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/api/assessment/path", ChoosePathRequest{Path: "direct"}, true).Code)

	first := catalog.Default().Items()[0]
	rec = h.do(t, http.MethodGet, "/api/assessment/direct/search?q="+strings.ReplaceAll(first.Text, " ", "+"), nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	found := decode[ValuesResponse](t, rec)
	require.NotEmpty(t, found.Values)
	assert.LessOrEqual(t, found.Count, assessment.DirectSearchLimit)
}

func TestAssessment_PathRecordingIsSoft(t *testing.T) {
	h := newHarness(t, nil)
	h.gate.pathErr = errors.New("db unavailable")

	rec := h.do(t, http.MethodPost, "/api/assessment/path", ChoosePathRequest{Path: "direct"}, true)
	assert.Equal(t, http.StatusOK, rec.Code)

	entries := h.logs.FilterMessage("failed to record assessment path").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
}

func TestRateLimit(t *testing.T) {
	h := newHarness(t, &ratelimit.Config{
		Enabled:         true,
		DefaultLimit:    100,
		DefaultWindow:   time.Minute,
		CleanupInterval: time.Minute,
		EndpointConfigs: []ratelimit.EndpointConfig{
			{Path: "/api/auth", Method: "POST", Limit: 1, Window: time.Hour, Burst: 1},
		},
	})

	rec := h.do(t, http.MethodPost, "/api/auth", AuthRequest{AccessCode: "CODE", Email: testEmail}, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))

	rec = h.do(t, http.MethodPost, "/api/auth", AuthRequest{AccessCode: "CODE", Email: testEmail}, false)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	rec = h.do(t, http.MethodGet, "/health", nil, false)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRegistry(t *testing.T) {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := newRegistry(catalog.Default(), time.Hour)
	r.now = func() time.Time { return clock }

	var stage assessment.Stage
	require.NoError(t, r.with("a", func(s *assessment.State) error {
		stage = s.Stage()
		return s.ChoosePath(assessment.PathDirect, nil)
	}))
	assert.Equal(t, assessment.StagePathSelection, stage)

	require.NoError(t, r.with("a", func(s *assessment.State) error {
		stage = s.Stage()
		return nil
	}))
	assert.Equal(t, assessment.StageDirectSelection, stage, "state persists between calls")

	clock = clock.Add(30 * time.Minute)
	require.NoError(t, r.with("b", func(*assessment.State) error { return nil }))
	assert.Equal(t, 2, r.len())

	clock = clock.Add(45 * time.Minute)
	require.NoError(t, r.with("b", func(*assessment.State) error { return nil }))
	assert.Equal(t, 1, r.len(), "idle session a is pruned")

	err := r.with("", func(*assessment.State) error { return nil })
	assert.ErrorIs(t, err, assessment.ErrMissingSession)
	assert.Equal(t, 1, r.len())
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{&gate.InputError{Field: "code", Message: "required"}, http.StatusBadRequest},
		{&pipeline.ValidationError{Field: "values", Message: "bad"}, http.StatusBadRequest},
		{gate.ErrInvalidCredential, http.StatusUnauthorized},
		{fmt.Errorf("wrapped: %w", gate.ErrInvalidToken), http.StatusUnauthorized},
		{ErrSessionMismatch, http.StatusForbidden},
		{&assessment.Rejection{Reason: assessment.ErrWrongStage, Message: "no"}, http.StatusConflict},
		{&assessment.Rejection{Reason: assessment.ErrCapacityExceeded, Message: "full"}, http.StatusBadRequest},
		{&pipeline.StepError{Step: "s", Kind: pipeline.ErrSynthesisFailed, Cause: errors.New("x")}, http.StatusBadGateway},
		{&pipeline.StepError{Step: "s", Kind: pipeline.ErrRenderFailed, Cause: errors.New("x")}, http.StatusInternalServerError},
		{context.Canceled, http.StatusServiceUnavailable},
		{errors.New("unknown"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatus(tt.err), "%v", tt.err)
	}
}
