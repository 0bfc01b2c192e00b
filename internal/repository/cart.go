package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ibralab/anaterra/internal/entities"
)

type CartRepository struct {
	db *pgxpool.Pool
}

func NewCartRepository(db *pgxpool.Pool) *CartRepository {
	return &CartRepository{db: db}
}

// AddItem appends a line with the item's name and price snapshotted at
// add time.
func (r *CartRepository) AddItem(ctx context.Context, sessionKey string, analysisID int64, name string, unitPrice float64, quantity int) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO chat_cart_item (session_id, analysis_id, name, unit_price, quantity)
		VALUES ($1, $2, $3, $4, $5)
	`, sessionKey, analysisID, name, unitPrice, quantity)
	if err != nil {
		return fmt.Errorf("add cart item for session %s: %w", sessionKey, err)
	}
	return nil
}

// ListBySession returns the session's lines in insertion order.
func (r *CartRepository) ListBySession(ctx context.Context, sessionKey string) ([]entities.CartLine, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, session_id, COALESCE(analysis_id, 0), name, unit_price, quantity, created_at
		FROM chat_cart_item
		WHERE session_id = $1
		ORDER BY id
	`, sessionKey)
	if err != nil {
		return nil, fmt.Errorf("list cart for session %s: %w", sessionKey, err)
	}
	defer rows.Close()

	var lines []entities.CartLine
	for rows.Next() {
		var l entities.CartLine
		if err := rows.Scan(&l.ID, &l.SessionKey, &l.AnalysisID, &l.Name, &l.UnitPrice, &l.Quantity, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// Clear drops every line of the session's quote.
func (r *CartRepository) Clear(ctx context.Context, sessionKey string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM chat_cart_item WHERE session_id = $1`, sessionKey)
	if err != nil {
		return fmt.Errorf("clear cart for session %s: %w", sessionKey, err)
	}
	return nil
}

// RemoveByAnalysis deletes the lines referencing one catalog item and
// reports how many lines went away. Lines are removed whole, never
// edited.
func (r *CartRepository) RemoveByAnalysis(ctx context.Context, sessionKey string, analysisID int64) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM chat_cart_item
		WHERE session_id = $1 AND analysis_id = $2
	`, sessionKey, analysisID)
	if err != nil {
		return 0, fmt.Errorf("remove cart item for session %s: %w", sessionKey, err)
	}
	return tag.RowsAffected(), nil
}
