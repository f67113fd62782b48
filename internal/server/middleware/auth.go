// Package middleware provides HTTP middleware for session authentication.
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// ContextKey is a typed key for context values to avoid collisions.
type ContextKey string

// sessionKey is the context key for storing the authenticated session.
const sessionKey ContextKey = "session"

// Session is the authenticated identity carried by a request.
type Session struct {
	ID    string
	Email string
}

// SessionClaims is implemented by validated token claims.
type SessionClaims interface {
	GetSessionID() string
}

// TokenValidator validates session tokens.
// This allows the middleware to work with any token service implementation.
type TokenValidator interface {
	ValidateToken(tokenString string) (SessionClaims, error)
}

// TokenValidatorFunc adapts a function to TokenValidator.
type TokenValidatorFunc func(tokenString string) (SessionClaims, error)

// ValidateToken implements TokenValidator.
func (f TokenValidatorFunc) ValidateToken(tokenString string) (SessionClaims, error) {
	return f(tokenString)
}

// emailClaims is implemented by claims that also carry the session email.
type emailClaims interface {
	GetEmail() string
}

// AuthMiddleware creates middleware that validates bearer tokens and adds the
// session to the request context.
func AuthMiddleware(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(r)
			if !ok {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := validator.ValidateToken(tokenString)
			if err != nil || claims.GetSessionID() == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			session := Session{ID: claims.GetSessionID()}
			if ec, ok := claims.(emailClaims); ok {
				session.Email = ec.GetEmail()
			}

			ctx := context.WithValue(r.Context(), sessionKey, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token from a case-insensitive "Bearer" header.
func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// GetSession extracts the authenticated session from the request context.
func GetSession(r *http.Request) (Session, error) {
	session, ok := r.Context().Value(sessionKey).(Session)
	if !ok {
		return Session{}, fmt.Errorf("session not found in request context")
	}
	return session, nil
}

// WithSession returns a copy of ctx carrying session (for testing purposes).
func WithSession(ctx context.Context, session Session) context.Context {
	return context.WithValue(ctx, sessionKey, session)
}
