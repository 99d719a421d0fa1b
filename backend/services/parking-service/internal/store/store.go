// Package store declares the persistence contracts the orchestrator consumes.
package store

import (
	"context"
	"time"

	"autopark/backend/services/parking-service/internal/models"
)

// ExitInfo is written when a vehicle is stamped out. A zero value clears the exit fields.
type ExitInfo struct {
	LaneID   int64
	Time     time.Time
	ImageRef string
}

// Fees carries the financial columns of a session.
type Fees struct {
	Total     int64
	Discount  int64
	Paid      int64
	Requested int64
	PaidAt    *time.Time
}

// FeesOf copies the financial columns out of s.
func FeesOf(s *models.Session) Fees {
	return Fees{
		Total:     s.TotalFee,
		Discount:  s.DiscountFee,
		Paid:      s.PaidFee,
		Requested: s.RequestedFee,
		PaidAt:    s.PaidAt,
	}
}

// SessionRepository persists parking sessions. Lookups that find nothing return ErrNotFound
// for id-based reads and (nil, nil) for plate-based searches.
type SessionRepository interface {
	Create(ctx context.Context, s *models.Session) error
	FindByID(ctx context.Context, id int64) (*models.Session, error)
	// FindByIDForUpdate reads the row and locks it until the surrounding transaction ends.
	FindByIDForUpdate(ctx context.Context, id int64) (*models.Session, error)
	FindRunningSession(ctx context.Context, siteID int64, plate string) (*models.Session, error)
	// FindSimilarRunningSession returns the only open session whose plate is similar to plate.
	// Ambiguous matches return nil. The row is not locked; re-read it with FindByIDForUpdate.
	FindSimilarRunningSession(ctx context.Context, siteID int64, plate string) (*models.Session, error)
	FindRecentExit(ctx context.Context, siteID int64, plate string, since time.Time) (*models.Session, error)
	CountOccupied(ctx context.Context, siteID int64) (int, error)
	UpdateExit(ctx context.Context, id int64, exit ExitInfo) error
	UpdateSessionStatus(ctx context.Context, id int64, status models.SessionStatus) error
	UpdateFees(ctx context.Context, id int64, fees Fees) error
	// CloseSession writes the terminal status, exit fields, fees and note of s in one statement.
	CloseSession(ctx context.Context, s *models.Session) error
	UpdateCarNumber(ctx context.Context, id int64, plate string) error
	UpdateEntryTime(ctx context.Context, id int64, entry time.Time) error
	UpdateVehicleType(ctx context.Context, id int64, class models.VehicleClass) error
	UpdateNote(ctx context.Context, id int64, note string) error
}

// DiscountRepository stores discounts registered against sessions.
type DiscountRepository interface {
	Add(ctx context.Context, d *models.Discount) error
	ListBySession(ctx context.Context, sessionID int64) ([]models.Discount, error)
	DeleteBySession(ctx context.Context, sessionID int64) (int, error)
}

// AuditRepository appends audit entries. Entries are never updated.
type AuditRepository interface {
	Append(ctx context.Context, e *models.AuditEntry) error
}

// Tx exposes repositories bound to one transaction.
type Tx interface {
	Sessions() SessionRepository
	Discounts() DiscountRepository
	Audit() AuditRepository
}

// Store opens transactions and offers non-transactional reads.
type Store interface {
	// WithinTx commits when fn returns nil and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Sessions() SessionRepository
	Discounts() DiscountRepository
	Audit() AuditRepository
}

// Directory serves the static reference data the orchestrator needs per event.
type Directory interface {
	GetSiteConfig(ctx context.Context, siteID int64) (models.SiteConfig, error)
	GetLane(ctx context.Context, laneID int64) (models.Lane, error)
	FindBlacklisted(ctx context.Context, siteID int64, plate string) (*models.BlacklistEntry, error)
	IsMember(ctx context.Context, siteID int64, plate string, at time.Time) (bool, error)
}
