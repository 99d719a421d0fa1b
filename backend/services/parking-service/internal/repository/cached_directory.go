package repository

import (
	"context"
	"time"

	"autopark/backend/services/parking-service/internal/cache"
	"autopark/backend/services/parking-service/internal/models"
	"autopark/backend/services/parking-service/internal/store"
)

// CachedDirectory keeps site configs and lanes in memory for ttl. Blacklist and membership
// lookups always go to the underlying directory.
type CachedDirectory struct {
	next  store.Directory
	ttl   time.Duration
	sites *cache.TTLCache[int64, models.SiteConfig]
	lanes *cache.TTLCache[int64, models.Lane]
}

// NewCachedDirectory wraps next.
func NewCachedDirectory(next store.Directory, ttl time.Duration) *CachedDirectory {
	return &CachedDirectory{
		next:  next,
		ttl:   ttl,
		sites: cache.NewTTLCache[int64, models.SiteConfig](),
		lanes: cache.NewTTLCache[int64, models.Lane](),
	}
}

// GetSiteConfig returns a cached site config.
func (d *CachedDirectory) GetSiteConfig(ctx context.Context, siteID int64) (models.SiteConfig, error) {
	if cfg, ok := d.sites.Get(siteID); ok {
		return cfg, nil
	}
	cfg, err := d.next.GetSiteConfig(ctx, siteID)
	if err != nil {
		return models.SiteConfig{}, err
	}
	d.sites.Set(siteID, cfg, d.ttl)
	return cfg, nil
}

// GetLane returns a cached lane.
func (d *CachedDirectory) GetLane(ctx context.Context, laneID int64) (models.Lane, error) {
	if lane, ok := d.lanes.Get(laneID); ok {
		return lane, nil
	}
	lane, err := d.next.GetLane(ctx, laneID)
	if err != nil {
		return models.Lane{}, err
	}
	d.lanes.Set(laneID, lane, d.ttl)
	return lane, nil
}

// FindBlacklisted passes through.
func (d *CachedDirectory) FindBlacklisted(ctx context.Context, siteID int64, plate string) (*models.BlacklistEntry, error) {
	return d.next.FindBlacklisted(ctx, siteID, plate)
}

// IsMember passes through.
func (d *CachedDirectory) IsMember(ctx context.Context, siteID int64, plate string, at time.Time) (bool, error) {
	return d.next.IsMember(ctx, siteID, plate, at)
}

// Invalidate drops a cached site so the next lookup reloads it.
func (d *CachedDirectory) Invalidate(siteID int64) {
	d.sites.Delete(siteID)
}
