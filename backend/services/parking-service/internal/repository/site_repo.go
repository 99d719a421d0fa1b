package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"autopark/backend/services/parking-service/internal/models"
)

// SiteRepository reads site policy, lanes, blacklist and memberships.
type SiteRepository struct {
	db dbtx
}

// NewSiteRepository returns repository.
func NewSiteRepository(db *sql.DB) *SiteRepository {
	return &SiteRepository{db: db}
}

// GetSiteConfig loads the site row and its fee policy and parses behavior columns into enums.
func (r *SiteRepository) GetSiteConfig(ctx context.Context, siteID int64) (models.SiteConfig, error) {
	const query = `
		SELECT s.id, s.name, s.operation_mode, s.blacklist_behavior, s.unrecognized_behavior,
		       s.re_entry_limit_minutes, s.pre_settlement_grace_minutes, s.capacity,
		       COALESCE(f.base_time_minutes, 0), COALESCE(f.base_fee, 0),
		       COALESCE(f.unit_time_minutes, 0), COALESCE(f.unit_fee, 0),
		       COALESCE(f.grace_time_minutes, 0), COALESCE(f.daily_max_fee, 0)
		FROM sites s
		LEFT JOIN fee_policies f ON f.site_id = s.id
		WHERE s.id = $1
	`
	var (
		cfg                           models.SiteConfig
		mode, blacklist, unrecognized string
	)
	err := r.db.QueryRowContext(ctx, query, siteID).Scan(
		&cfg.SiteID,
		&cfg.Name,
		&mode,
		&blacklist,
		&unrecognized,
		&cfg.ReEntryLimitMinutes,
		&cfg.PreSettlementGraceMinutes,
		&cfg.Capacity,
		&cfg.Fee.BaseTimeMinutes,
		&cfg.Fee.BaseFee,
		&cfg.Fee.UnitTimeMinutes,
		&cfg.Fee.UnitFee,
		&cfg.Fee.GraceTimeMinutes,
		&cfg.Fee.DailyMaxFee,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.SiteConfig{}, fmt.Errorf("%w: site %d", models.ErrNotFound, siteID)
	}
	if err != nil {
		return models.SiteConfig{}, err
	}

	if cfg.OperationMode, err = models.ParseOperationMode(mode); err != nil {
		return models.SiteConfig{}, fmt.Errorf("site %d: %w", siteID, err)
	}
	if cfg.BlacklistBehavior, err = models.ParseBlacklistBehavior(blacklist); err != nil {
		return models.SiteConfig{}, fmt.Errorf("site %d: %w", siteID, err)
	}
	if cfg.UnrecognizedBehavior, err = models.ParseUnrecognizedBehavior(unrecognized); err != nil {
		return models.SiteConfig{}, fmt.Errorf("site %d: %w", siteID, err)
	}
	return cfg, nil
}

// GetLane returns lane metadata.
func (r *SiteRepository) GetLane(ctx context.Context, laneID int64) (models.Lane, error) {
	const query = `SELECT id, site_id, name, direction, vendor, endpoint FROM lanes WHERE id = $1`
	var lane models.Lane
	err := r.db.QueryRowContext(ctx, query, laneID).Scan(
		&lane.ID,
		&lane.SiteID,
		&lane.Name,
		&lane.Direction,
		&lane.Vendor,
		&lane.Endpoint,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Lane{}, fmt.Errorf("%w: lane %d", models.ErrNotFound, laneID)
	}
	return lane, err
}

// FindBlacklisted returns the blacklist entry for plate or nil.
func (r *SiteRepository) FindBlacklisted(ctx context.Context, siteID int64, plate string) (*models.BlacklistEntry, error) {
	const query = `SELECT site_id, plate, reason FROM blacklist WHERE site_id = $1 AND plate = $2`
	var entry models.BlacklistEntry
	err := r.db.QueryRowContext(ctx, query, siteID, plate).Scan(&entry.SiteID, &entry.Plate, &entry.Reason)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// IsMember reports whether plate holds a membership valid at the given time.
func (r *SiteRepository) IsMember(ctx context.Context, siteID int64, plate string, at time.Time) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM members
			WHERE site_id = $1 AND plate = $2 AND valid_from <= $3 AND (valid_until IS NULL OR valid_until > $3)
		)
	`
	var ok bool
	err := r.db.QueryRowContext(ctx, query, siteID, plate, at).Scan(&ok)
	return ok, err
}
