package repository

import (
	"context"
	"encoding/json"

	"autopark/backend/services/parking-service/internal/models"
)

// AuditRepository appends to the audit_logs table.
type AuditRepository struct {
	db dbtx
}

// NewAuditRepository ctor.
func NewAuditRepository(db dbtx) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append stores log entry.
func (r *AuditRepository) Append(ctx context.Context, e *models.AuditEntry) error {
	payload := []byte("{}")
	if len(e.Payload) > 0 {
		var err error
		if payload, err = json.Marshal(e.Payload); err != nil {
			return err
		}
	}
	const query = `
		INSERT INTO audit_logs (id, kind, site_id, session_id, lane_id, plate, actor, action, reason, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.ExecContext(ctx, query,
		e.ID,
		e.Kind,
		e.SiteID,
		e.SessionID,
		e.LaneID,
		e.Plate,
		e.Actor,
		e.Action,
		e.Reason,
		payload,
		e.CreatedAt,
	)
	return err
}
