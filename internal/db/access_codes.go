package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// CreateAccessCode stores a code digest allowing maxUses sessions. Issuing an
// existing digest again reactivates it with the new limit and keeps its usage
// count.
func (db *DB) CreateAccessCode(ctx context.Context, digest string, maxUses int) error {
	if maxUses < 1 {
		return fmt.Errorf("max uses must be at least 1, got %d", maxUses)
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO access_codes (code_digest, max_uses)
		 VALUES ($1, $2)
		 ON CONFLICT (code_digest) DO UPDATE SET max_uses = EXCLUDED.max_uses, active = TRUE`,
		digest, maxUses,
	)
	if err != nil {
		return fmt.Errorf("failed to create access code: %w", err)
	}
	return nil
}

// GetAccessCode returns the stored code, or nil if it does not exist.
func (db *DB) GetAccessCode(ctx context.Context, digest string) (*AccessCode, error) {
	var code AccessCode
	err := db.pool.QueryRow(ctx,
		`SELECT code_digest, used_count, max_uses, active, created_at
		 FROM access_codes WHERE code_digest = $1`,
		digest,
	).Scan(&code.Digest, &code.UsedCount, &code.MaxUses, &code.Active, &code.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get access code: %w", err)
	}
	return &code, nil
}

// VerifyAccessCode reports whether the code exists, is active and has uses
// left.
func (db *DB) VerifyAccessCode(ctx context.Context, digest string) (bool, error) {
	var ok bool
	err := db.pool.QueryRow(ctx,
		`SELECT EXISTS (
		     SELECT 1 FROM access_codes
		     WHERE code_digest = $1 AND active AND used_count < max_uses
		 )`,
		digest,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("failed to verify access code: %w", err)
	}
	return ok, nil
}

// ConsumeAccessCode uses up one session of the code. The update is
// conditional, so concurrent callers can never push used_count past max_uses;
// false means nothing was left to consume.
func (db *DB) ConsumeAccessCode(ctx context.Context, digest string) (bool, error) {
	result, err := db.pool.Exec(ctx,
		`UPDATE access_codes SET used_count = used_count + 1
		 WHERE code_digest = $1 AND active AND used_count < max_uses`,
		digest,
	)
	if err != nil {
		return false, fmt.Errorf("failed to consume access code: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// DeactivateAccessCode disables a code. It returns false if no code matched.
func (db *DB) DeactivateAccessCode(ctx context.Context, digest string) (bool, error) {
	result, err := db.pool.Exec(ctx,
		`UPDATE access_codes SET active = FALSE WHERE code_digest = $1`,
		digest,
	)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate access code: %w", err)
	}
	return result.RowsAffected() == 1, nil
}
