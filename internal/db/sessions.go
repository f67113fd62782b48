package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CreateSession records a new session opened with the given code digest and
// returns its id.
func (db *DB) CreateSession(ctx context.Context, email, codeDigest string) (uuid.UUID, error) {
	id := uuid.New()
	_, err := db.pool.Exec(ctx,
		`INSERT INTO user_sessions (id, email, access_code_digest)
		 VALUES ($1, $2, $3)`,
		id, email, codeDigest,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create session: %w", err)
	}
	return id, nil
}

// GetSession returns the session, or nil if it does not exist.
func (db *DB) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	id, err := parseSessionID(sessionID)
	if err != nil {
		return nil, err
	}

	var s Session
	err = db.pool.QueryRow(ctx,
		`SELECT id, email, access_code_digest, path_selected, completed, created_at, completed_at
		 FROM user_sessions WHERE id = $1`,
		id,
	).Scan(&s.ID, &s.Email, &s.AccessCodeDigest, &s.PathSelected, &s.Completed, &s.CreatedAt, &s.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &s, nil
}

// MarkPathSelected records which assessment path the session chose.
func (db *DB) MarkPathSelected(ctx context.Context, sessionID, path string) error {
	id, err := parseSessionID(sessionID)
	if err != nil {
		return err
	}

	result, err := db.pool.Exec(ctx,
		`UPDATE user_sessions SET path_selected = $1 WHERE id = $2`,
		path, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update session path: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("session not found: %s", sessionID)
	}
	return nil
}

// MarkCompleted flags the session as having received its report.
func (db *DB) MarkCompleted(ctx context.Context, sessionID string) error {
	id, err := parseSessionID(sessionID)
	if err != nil {
		return err
	}

	result, err := db.pool.Exec(ctx,
		`UPDATE user_sessions SET completed = TRUE, completed_at = COALESCE(completed_at, NOW()) WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark session completed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("session not found: %s", sessionID)
	}
	return nil
}
