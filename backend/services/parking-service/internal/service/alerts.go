package service

import (
	"context"

	"go.uber.org/zap"

	"autopark/backend/services/parking-service/internal/models"
	"autopark/backend/services/parking-service/internal/store"
)

// Display texts.
const (
	msgWelcome       = "WELCOME"
	msgBlocked       = "ENTRY DENIED"
	msgWarn          = "PLEASE SEE ATTENDANT"
	msgFull          = "PARKING FULL"
	msgDuplicate     = "ALREADY PARKED"
	msgCallAttendant = "CALL ATTENDANT"
	msgUnrecognized  = "PLATE NOT RECOGNIZED"
	msgGoodbye       = "THANK YOU"
	msgPaymentFailed = "PAYMENT FAILED"
	msgPleasePay     = "PLEASE PAY"
)

// AuditAlerts persists alerts as audit entries in their own statement and logs them.
type AuditAlerts struct {
	audit  store.AuditRepository
	logger *zap.Logger
}

// NewAuditAlerts builds sink.
func NewAuditAlerts(audit store.AuditRepository, logger *zap.Logger) *AuditAlerts {
	return &AuditAlerts{audit: audit, logger: logger.Named("alerts")}
}

// Alert records entry and swallows store failures.
func (a *AuditAlerts) Alert(ctx context.Context, entry models.AuditEntry) {
	a.logger.Warn("alert",
		zap.String("kind", string(entry.Kind)),
		zap.String("action", entry.Action),
		zap.Int64("site_id", entry.SiteID),
		zap.String("plate", entry.Plate),
		zap.String("reason", entry.Reason),
	)
	if err := a.audit.Append(ctx, &entry); err != nil {
		a.logger.Warn("persist alert", zap.String("action", entry.Action), zap.Error(err))
	}
}

type logAlerts struct {
	logger *zap.Logger
}

func (l logAlerts) Alert(_ context.Context, entry models.AuditEntry) {
	l.logger.Warn("alert", zap.String("action", entry.Action), zap.Int64("site_id", entry.SiteID), zap.String("plate", entry.Plate))
}
