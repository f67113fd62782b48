package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jonathan/values-report/internal/catalog"
)

// SaveSelections replaces the ranked values stored for a session.
func (db *DB) SaveSelections(ctx context.Context, sessionID string, selections []catalog.Selection) error {
	id, err := parseSessionID(sessionID)
	if err != nil {
		return err
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM user_values WHERE session_id = $1`, id); err != nil {
		return fmt.Errorf("failed to clear previous selections: %w", err)
	}

	batch := &pgx.Batch{}
	for _, sel := range selections {
		batch.Queue(
			`INSERT INTO user_values (session_id, value_id, rank) VALUES ($1, $2, $3)`,
			id, sel.ValueID, sel.Rank,
		)
	}
	br := tx.SendBatch(ctx, batch)
	for _, sel := range selections {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("failed to save selection %s (rank %d): %w", sel.ValueID, sel.Rank, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("failed to save selections: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit selections: %w", err)
	}
	return nil
}

// GetSelections returns the stored ranked values for a session ordered by
// rank.
func (db *DB) GetSelections(ctx context.Context, sessionID string) ([]catalog.Selection, error) {
	id, err := parseSessionID(sessionID)
	if err != nil {
		return nil, err
	}

	rows, err := db.pool.Query(ctx,
		`SELECT value_id, rank FROM user_values WHERE session_id = $1 ORDER BY rank`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get selections: %w", err)
	}
	defer rows.Close()

	var selections []catalog.Selection
	for rows.Next() {
		var sel catalog.Selection
		if err := rows.Scan(&sel.ValueID, &sel.Rank); err != nil {
			return nil, fmt.Errorf("failed to scan selection: %w", err)
		}
		selections = append(selections, sel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read selections: %w", err)
	}
	return selections, nil
}
