// Package gate validates access codes, opens assessment sessions and issues
// the session tokens that guard the rest of the API.
package gate

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/values-report/internal/config"
	"github.com/jonathan/values-report/internal/db"
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	// validate caches struct and tag metadata; it is safe for concurrent use.
	validate = validator.New()
)

// Store is the persistence the gate relies on. *db.DB satisfies it.
type Store interface {
	VerifyAccessCode(ctx context.Context, digest string) (bool, error)
	ConsumeAccessCode(ctx context.Context, digest string) (bool, error)
	CreateSession(ctx context.Context, email, codeDigest string) (uuid.UUID, error)
	MarkPathSelected(ctx context.Context, sessionID, path string) error
	MarkCompleted(ctx context.Context, sessionID string) error
	CreateAccessCode(ctx context.Context, digest string, maxUses int) error
	GetAccessCode(ctx context.Context, digest string) (*db.AccessCode, error)
	DeactivateAccessCode(ctx context.Context, digest string) (bool, error)
}

// Grant is the result of a successful authorization.
type Grant struct {
	SessionID string    `json:"session_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Gate authorizes users into assessment sessions.
type Gate struct {
	store    Store
	codes    *config.AccessCodeConfig
	tokens *TokenService
	logger *zap.Logger
}

// New creates a Gate. A nil logger disables logging.
func New(store Store, codes *config.AccessCodeConfig, tokens *TokenService, logger *zap.Logger) *Gate {
	if codes == nil {
		codes = &config.AccessCodeConfig{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		store:  store,
		codes:  codes,
		tokens: tokens,
		logger: logger,
	}
}

// ValidEmail reports whether s looks like a deliverable email address.
func ValidEmail(s string) bool {
	return emailPattern.MatchString(s) && validate.Var(s, "required,email") == nil
}

func (g *Gate) checkEmail(email string) error {
	if email == "" {
		return &InputError{Field: "email", Message: "email is required"}
	}
	if !emailPattern.MatchString(email) || validate.Var(email, "email") != nil {
		return &InputError{Field: "email", Message: "please enter a valid email address"}
	}
	return nil
}

// Authorize spends one use of an access code and opens a session for email.
// The code is verified before it is consumed; consumption is conditional in
// the store, so a code never exceeds its use limit.
func (g *Gate) Authorize(ctx context.Context, code, email string) (*Grant, error) {
	code = strings.TrimSpace(code)
	email = strings.TrimSpace(email)

	if code == "" {
		return nil, &InputError{Field: "access_code", Message: "access code is required"}
	}
	if err := g.checkEmail(email); err != nil {
		return nil, err
	}

	digest, err := g.codes.Digest(code)
	if err != nil {
		return nil, err
	}

	ok, err := g.store.VerifyAccessCode(ctx, digest)
	if err != nil {
		return nil, fmt.Errorf("failed to verify access code: %w", err)
	}
	if !ok {
		g.logger.Info("access code rejected", zap.String("reason", "verify"))
		return nil, ErrInvalidCredential
	}

	ok, err = g.store.ConsumeAccessCode(ctx, digest)
	if err != nil {
		return nil, fmt.Errorf("failed to consume access code: %w", err)
	}
	if !ok {
		g.logger.Info("access code rejected", zap.String("reason", "exhausted"))
		return nil, ErrInvalidCredential
	}

	id, err := g.store.CreateSession(ctx, email, digest)
	if err != nil {
		return nil, &SessionError{Message: "failed to create session", Cause: err}
	}
	sessionID := id.String()

	token, expiresAt, err := g.tokens.GenerateToken(sessionID, email)
	if err != nil {
		return nil, err
	}

	g.logger.Info("session opened", zap.String("session_id", sessionID))
	return &Grant{SessionID: sessionID, Token: token, ExpiresAt: expiresAt}, nil
}

// ValidateToken checks a session token.
func (g *Gate) ValidateToken(token string) (*Claims, error) {
	return g.tokens.ValidateToken(token)
}

// MarkPathSelected records the chosen assessment path.
func (g *Gate) MarkPathSelected(ctx context.Context, sessionID, path string) error {
	if err := g.store.MarkPathSelected(ctx, sessionID, path); err != nil {
		return fmt.Errorf("failed to record path for session %s: %w", sessionID, err)
	}
	return nil
}

// MarkCompleted flags the session as having received its report.
func (g *Gate) MarkCompleted(ctx context.Context, sessionID string) error {
	if err := g.store.MarkCompleted(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to mark session %s completed: %w", sessionID, err)
	}
	return nil
}

// IssueCode stores a new access code that can open maxUses sessions.
func (g *Gate) IssueCode(ctx context.Context, code string, maxUses int) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return &InputError{Field: "access_code", Message: "access code is required"}
	}
	if maxUses < 1 {
		return &InputError{Field: "max_uses", Message: "must be at least 1"}
	}
	digest, err := g.codes.Digest(code)
	if err != nil {
		return err
	}
	return g.store.CreateAccessCode(ctx, digest, maxUses)
}

// CodeStatus returns the stored state of an access code, or nil when it was
// never issued.
func (g *Gate) CodeStatus(ctx context.Context, code string) (*db.AccessCode, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, &InputError{Field: "access_code", Message: "access code is required"}
	}
	digest, err := g.codes.Digest(code)
	if err != nil {
		return nil, err
	}
	return g.store.GetAccessCode(ctx, digest)
}

// RevokeCode deactivates an access code. It returns false when the code was
// never issued.
func (g *Gate) RevokeCode(ctx context.Context, code string) (bool, error) {
	digest, err := g.codes.Digest(code)
	if err != nil {
		return false, err
	}
	return g.store.DeactivateAccessCode(ctx, digest)
}
