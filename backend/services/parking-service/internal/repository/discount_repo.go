package repository

import (
	"context"

	"autopark/backend/services/parking-service/internal/models"
)

// DiscountRepository persists session discounts.
type DiscountRepository struct {
	db dbtx
}

// NewDiscountRepository returns repository.
func NewDiscountRepository(db dbtx) *DiscountRepository {
	return &DiscountRepository{db: db}
}

// Add inserts a discount. The id is assigned by the caller.
func (r *DiscountRepository) Add(ctx context.Context, d *models.Discount) error {
	const query = `
		INSERT INTO session_discounts (id, session_id, kind, value, reason, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING created_at
	`
	return r.db.QueryRowContext(ctx, query, d.ID, d.SessionID, d.Kind, d.Value, d.Reason, d.CreatedBy).Scan(&d.CreatedAt)
}

// ListBySession returns discounts in registration order.
func (r *DiscountRepository) ListBySession(ctx context.Context, sessionID int64) ([]models.Discount, error) {
	const query = `
		SELECT id, session_id, kind, value, reason, created_by, created_at
		FROM session_discounts
		WHERE session_id = $1
		ORDER BY id
	`
	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var discounts []models.Discount
	for rows.Next() {
		var d models.Discount
		if err := rows.Scan(&d.ID, &d.SessionID, &d.Kind, &d.Value, &d.Reason, &d.CreatedBy, &d.CreatedAt); err != nil {
			return nil, err
		}
		discounts = append(discounts, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return discounts, nil
}

// DeleteBySession removes all discounts of a session and returns how many were removed.
func (r *DiscountRepository) DeleteBySession(ctx context.Context, sessionID int64) (int, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM session_discounts WHERE session_id = $1`, sessionID)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	return int(n), err
}
