package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"autopark/backend/services/parking-service/internal/models"
	"autopark/backend/services/parking-service/internal/store"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const sessionColumns = `id, site_id, plate, vehicle_class, entry_time, entry_lane_id, entry_image_ref,
	exit_time, exit_lane_id, exit_image_ref, status, total_fee, discount_fee, paid_fee, requested_fee,
	paid_at, note, created_at, updated_at`

const openStatusFilter = `status IN ('RUNNING', 'PAYMENT_PENDING')`

// SessionRepository handles persistence of parking sessions.
type SessionRepository struct {
	db dbtx
}

// NewSessionRepository returns repository.
func NewSessionRepository(db dbtx) *SessionRepository {
	return &SessionRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var (
		s          models.Session
		exitTime   sql.NullTime
		exitLaneID sql.NullInt64
		paidAt     sql.NullTime
	)
	if err := row.Scan(
		&s.ID,
		&s.SiteID,
		&s.Plate,
		&s.VehicleClass,
		&s.EntryTime,
		&s.EntryLaneID,
		&s.EntryImageRef,
		&exitTime,
		&exitLaneID,
		&s.ExitImageRef,
		&s.Status,
		&s.TotalFee,
		&s.DiscountFee,
		&s.PaidFee,
		&s.RequestedFee,
		&paidAt,
		&s.Note,
		&s.CreatedAt,
		&s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if exitTime.Valid {
		t := exitTime.Time
		s.ExitTime = &t
	}
	if exitLaneID.Valid {
		id := exitLaneID.Int64
		s.ExitLaneID = &id
	}
	if paidAt.Valid {
		t := paidAt.Time
		s.PaidAt = &t
	}
	return &s, nil
}

func (r *SessionRepository) queryOne(ctx context.Context, query string, args ...any) (*models.Session, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

func (r *SessionRepository) queryMany(ctx context.Context, query string, args ...any) ([]*models.Session, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

// Create inserts a new session. The id is assigned by the caller.
func (r *SessionRepository) Create(ctx context.Context, s *models.Session) error {
	const query = `
		INSERT INTO parking_sessions (id, site_id, plate, vehicle_class, entry_time, entry_lane_id, entry_image_ref,
			exit_time, exit_lane_id, exit_image_ref, status, total_fee, discount_fee, paid_fee, requested_fee,
			paid_at, note, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	return r.db.QueryRowContext(ctx, query,
		s.ID,
		s.SiteID,
		s.Plate,
		s.VehicleClass,
		s.EntryTime,
		s.EntryLaneID,
		s.EntryImageRef,
		s.ExitTime,
		s.ExitLaneID,
		s.ExitImageRef,
		s.Status,
		s.TotalFee,
		s.DiscountFee,
		s.PaidFee,
		s.RequestedFee,
		s.PaidAt,
		s.Note,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
}

// FindByID returns session by id.
func (r *SessionRepository) FindByID(ctx context.Context, id int64) (*models.Session, error) {
	s, err := r.queryOne(ctx, `SELECT `+sessionColumns+` FROM parking_sessions WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("%w: session %d", models.ErrNotFound, id)
	}
	return s, nil
}

// FindByIDForUpdate returns session by id and holds a row lock for the transaction.
func (r *SessionRepository) FindByIDForUpdate(ctx context.Context, id int64) (*models.Session, error) {
	s, err := r.queryOne(ctx, `SELECT `+sessionColumns+` FROM parking_sessions WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("%w: session %d", models.ErrNotFound, id)
	}
	return s, nil
}

// FindRunningSession returns the open session for an exact plate, newest first.
func (r *SessionRepository) FindRunningSession(ctx context.Context, siteID int64, plate string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + `
		FROM parking_sessions
		WHERE site_id = $1 AND plate = $2 AND ` + openStatusFilter + `
		ORDER BY entry_time DESC
		LIMIT 1
		FOR UPDATE`
	return r.queryOne(ctx, query, siteID, plate)
}

// FindSimilarRunningSession narrows candidates by serial suffix in SQL and applies the
// one-character tolerance in Go.
func (r *SessionRepository) FindSimilarRunningSession(ctx context.Context, siteID int64, plate string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + `
		FROM parking_sessions
		WHERE site_id = $1 AND ` + openStatusFilter + ` AND plate LIKE '%' || $2
		ORDER BY entry_time DESC
		LIMIT 20`
	candidates, err := r.queryMany(ctx, query, siteID, models.PlateSuffix(plate))
	if err != nil {
		return nil, err
	}
	return pickSimilar(plate, candidates), nil
}

func pickSimilar(plate string, candidates []*models.Session) *models.Session {
	var match *models.Session
	for _, c := range candidates {
		if !models.SimilarPlate(plate, c.Plate) {
			continue
		}
		if match != nil {
			return nil
		}
		match = c
	}
	return match
}

// FindRecentExit returns the latest finished stay of plate that exited at or after since.
func (r *SessionRepository) FindRecentExit(ctx context.Context, siteID int64, plate string, since time.Time) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + `
		FROM parking_sessions
		WHERE site_id = $1 AND plate = $2 AND status = 'COMPLETED' AND exit_time >= $3
		ORDER BY exit_time DESC
		LIMIT 1`
	return r.queryOne(ctx, query, siteID, plate, since)
}

// CountOccupied counts vehicles currently inside a site.
func (r *SessionRepository) CountOccupied(ctx context.Context, siteID int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM parking_sessions WHERE site_id = $1 AND `+openStatusFilter, siteID,
	).Scan(&n)
	return n, err
}

func (r *SessionRepository) exec(ctx context.Context, id int64, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, append([]any{id}, args...)...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: session %d", models.ErrNotFound, id)
	}
	return nil
}

// UpdateExit stamps or clears exit lane, time and image.
func (r *SessionRepository) UpdateExit(ctx context.Context, id int64, exit store.ExitInfo) error {
	var (
		laneID   sql.NullInt64
		exitTime sql.NullTime
	)
	if exit.LaneID != 0 {
		laneID = sql.NullInt64{Int64: exit.LaneID, Valid: true}
	}
	if !exit.Time.IsZero() {
		exitTime = sql.NullTime{Time: exit.Time, Valid: true}
	}
	const query = `
		UPDATE parking_sessions
		SET exit_lane_id = $2, exit_time = $3, exit_image_ref = $4, updated_at = NOW()
		WHERE id = $1
	`
	return r.exec(ctx, id, query, laneID, exitTime, exit.ImageRef)
}

// UpdateSessionStatus changes status only.
func (r *SessionRepository) UpdateSessionStatus(ctx context.Context, id int64, status models.SessionStatus) error {
	return r.exec(ctx, id, `UPDATE parking_sessions SET status = $2, updated_at = NOW() WHERE id = $1`, status)
}

// UpdateFees writes the financial columns.
func (r *SessionRepository) UpdateFees(ctx context.Context, id int64, fees store.Fees) error {
	const query = `
		UPDATE parking_sessions
		SET total_fee = $2, discount_fee = $3, paid_fee = $4, requested_fee = $5, paid_at = $6, updated_at = NOW()
		WHERE id = $1
	`
	return r.exec(ctx, id, query, fees.Total, fees.Discount, fees.Paid, fees.Requested, fees.PaidAt)
}

// CloseSession finalizes the session in one statement.
func (r *SessionRepository) CloseSession(ctx context.Context, s *models.Session) error {
	const query = `
		UPDATE parking_sessions
		SET status = $2,
		    exit_time = $3,
		    exit_lane_id = $4,
		    exit_image_ref = $5,
		    total_fee = $6,
		    discount_fee = $7,
		    paid_fee = $8,
		    requested_fee = $9,
		    paid_at = $10,
		    note = $11,
		    updated_at = NOW()
		WHERE id = $1
	`
	return r.exec(ctx, s.ID, query,
		s.Status,
		s.ExitTime,
		s.ExitLaneID,
		s.ExitImageRef,
		s.TotalFee,
		s.DiscountFee,
		s.PaidFee,
		s.RequestedFee,
		s.PaidAt,
		s.Note,
	)
}

// UpdateCarNumber corrects the plate.
func (r *SessionRepository) UpdateCarNumber(ctx context.Context, id int64, plate string) error {
	return r.exec(ctx, id, `UPDATE parking_sessions SET plate = $2, updated_at = NOW() WHERE id = $1`, plate)
}

// UpdateEntryTime corrects the entry timestamp.
func (r *SessionRepository) UpdateEntryTime(ctx context.Context, id int64, entry time.Time) error {
	return r.exec(ctx, id, `UPDATE parking_sessions SET entry_time = $2, updated_at = NOW() WHERE id = $1`, entry)
}

// UpdateVehicleType changes the vehicle class.
func (r *SessionRepository) UpdateVehicleType(ctx context.Context, id int64, class models.VehicleClass) error {
	return r.exec(ctx, id, `UPDATE parking_sessions SET vehicle_class = $2, updated_at = NOW() WHERE id = $1`, class)
}

// UpdateNote replaces the note.
func (r *SessionRepository) UpdateNote(ctx context.Context, id int64, note string) error {
	return r.exec(ctx, id, `UPDATE parking_sessions SET note = $2, updated_at = NOW() WHERE id = $1`, note)
}
