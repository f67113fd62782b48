// Package server provides the HTTP API for the values assessment and report.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/jonathan/values-report/internal/catalog"
	"github.com/jonathan/values-report/internal/gate"
	"github.com/jonathan/values-report/internal/pipeline"
	"github.com/jonathan/values-report/internal/server/middleware"
	"github.com/jonathan/values-report/internal/server/ratelimit"
)

// Authorizer opens sessions and validates their tokens. *gate.Gate satisfies it.
type Authorizer interface {
	Authorize(ctx context.Context, code, email string) (*gate.Grant, error)
	ValidateToken(token string) (*gate.Claims, error)
	MarkPathSelected(ctx context.Context, sessionID, path string) error
}

// ReportRunner generates and delivers reports. *pipeline.Pipeline satisfies it.
type ReportRunner interface {
	Run(ctx context.Context, req pipeline.Request, onProgress pipeline.ProgressCallback) (*pipeline.Result, error)
}

// Config holds server configuration
type Config struct {
	Port          int
	ReportTimeout time.Duration // upper bound on one report generation
	SessionTTL    time.Duration // idle assessments older than this are dropped
}

func (c *Config) normalize() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.ReportTimeout <= 0 {
		c.ReportTimeout = 5 * time.Minute
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = 24 * time.Hour
	}
}

// Deps are the collaborators the server routes to.
type Deps struct {
	Gate      Authorizer
	Reports   ReportRunner
	Catalog   *catalog.Catalog
	RateLimit *ratelimit.Config
	Logger    *zap.Logger
}

// Server represents the HTTP server
type Server struct {
	httpServer    *http.Server
	handler       http.Handler
	gate          Authorizer
	reports       ReportRunner
	catalog       *catalog.Catalog
	assessments   *registry
	rateLimiter   *ratelimit.Limiter
	validate      *validator.Validate
	logger        *zap.Logger
	reportTimeout time.Duration
}

// New creates a new server instance
func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Gate == nil || deps.Reports == nil {
		return nil, fmt.Errorf("server requires a gate and a report runner")
	}
	cfg.normalize()
	if deps.Catalog == nil {
		deps.Catalog = catalog.Default()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		gate:          deps.Gate,
		reports:       deps.Reports,
		catalog:       deps.Catalog,
		assessments:   newRegistry(deps.Catalog, cfg.SessionTTL),
		rateLimiter:   ratelimit.NewLimiter(deps.RateLimit),
		validate:      validator.New(),
		logger:        logger,
		reportTimeout: cfg.ReportTimeout,
	}

	auth := middleware.AuthMiddleware(middleware.TokenValidatorFunc(func(token string) (middleware.SessionClaims, error) {
		claims, err := s.gate.ValidateToken(token)
		if err != nil {
			return nil, err
		}
		return claims, nil
	}))
	protected := func(h http.HandlerFunc) http.Handler { return auth(h) }

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)

	// Access gate
	mux.HandleFunc("POST /api/auth", s.handleAuth)

	// Value catalog
	mux.HandleFunc("GET /api/values", s.handleListValues)
	mux.HandleFunc("GET /api/values/search", s.handleSearchValues)

	// Report generation
	mux.Handle("POST /api/generate-report", protected(s.handleGenerateReport))
	mux.Handle("POST /api/generate-report/stream", protected(s.handleGenerateReportStream))

	// Assessment state machine
	mux.Handle("GET /api/assessment", protected(s.handleGetAssessment))
	mux.Handle("POST /api/assessment/path", protected(s.handleChoosePath))
	mux.Handle("POST /api/assessment/categorize", protected(s.handleCategorize))
	mux.Handle("POST /api/assessment/top-ten/toggle", protected(s.handleToggleTen))
	mux.Handle("POST /api/assessment/top-ten/confirm", protected(s.handleConfirmTen))
	mux.Handle("POST /api/assessment/ranking/toggle", protected(s.handleToggleRanked))
	mux.Handle("POST /api/assessment/ranking/move", protected(s.handleMoveRanked))
	mux.Handle("POST /api/assessment/direct/assign", protected(s.handleAssign))
	mux.Handle("POST /api/assessment/direct/clear", protected(s.handleClear))
	mux.Handle("GET /api/assessment/direct/search", protected(s.handleDirectSearch))
	mux.Handle("POST /api/assessment/finalize", protected(s.handleFinalize))

	s.handler = s.withRateLimit(s.withLogging(s.withCORS(mux)))
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.ReportTimeout + 30*time.Second, // report generation runs inside one request
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins listening for requests and blocks until SIGINT or SIGTERM.
func (s *Server) Start() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-stop:
	case err := <-errCh:
		s.rateLimiter.Stop()
		return fmt.Errorf("server error: %w", err)
	}
	s.logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.rateLimiter.Stop()
	s.logger.Info("server stopped")
	return nil
}

// Close releases background resources without serving.
func (s *Server) Close() {
	s.rateLimiter.Stop()
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withRateLimit adds rate limiting middleware
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, info := s.rateLimiter.Allow(s.extractClientID(r), r.URL.Path, r.Method)
		s.setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, r, info)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush keeps streaming responses working through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote", r.RemoteAddr),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("failed to encode JSON response", zap.Error(err))
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, ErrorResponse{Success: false, Message: message})
}

// decodeJSON decodes a request body, answering 400 itself on failure.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		s.errorResponse(w, http.StatusBadRequest, extractValidationErrors(err))
		return false
	}
	return true
}

// extractClientID extracts the client identifier from the request.
// This uses the IP address from RemoteAddr; X-Forwarded-For is not trusted.
func (s *Server) extractClientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// setRateLimitHeaders sets standard rate limit headers on the response.
func (s *Server) setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", info.Limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", info.Remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", info.ResetTime.Unix()))
	}
}

// rateLimitResponse writes a 429 Too Many Requests response with rate limit information.
func (s *Server) rateLimitResponse(w http.ResponseWriter, r *http.Request, info ratelimit.Info) {
	response := map[string]any{
		"success":   false,
		"error":     "rate_limit_exceeded",
		"message":   "Rate limit exceeded. Please try again later.",
		"limit":     info.Limit,
		"remaining": info.Remaining,
		"reset_at":  info.ResetTime.Format(time.RFC3339),
	}

	if info.RetryAfter > 0 {
		seconds := int(info.RetryAfter.Seconds()) + 1
		response["retry_after"] = seconds
		w.Header().Set("Retry-After", fmt.Sprintf("%d", seconds))
	}

	s.logger.Warn("rate limit exceeded",
		zap.String("path", r.URL.Path),
		zap.Int("limit", info.Limit),
		zap.Time("reset", info.ResetTime),
	)

	s.jsonResponse(w, http.StatusTooManyRequests, response)
}
