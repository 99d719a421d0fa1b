package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"autopark/backend/services/parking-service/internal/models"
)

type membership struct {
	from, until time.Time
}

// Directory is an in-memory store.Directory.
type Directory struct {
	mu        sync.RWMutex
	sites     map[int64]models.SiteConfig
	lanes     map[int64]models.Lane
	blacklist map[string]models.BlacklistEntry
	members   map[string]membership
}

// NewDirectory returns an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		sites:     make(map[int64]models.SiteConfig),
		lanes:     make(map[int64]models.Lane),
		blacklist: make(map[string]models.BlacklistEntry),
		members:   make(map[string]membership),
	}
}

func plateKey(siteID int64, plate string) string {
	return fmt.Sprintf("%d:%s", siteID, plate)
}

// PutSite stores or replaces a site.
func (d *Directory) PutSite(cfg models.SiteConfig) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sites[cfg.SiteID] = cfg
}

// PutLane stores or replaces a lane.
func (d *Directory) PutLane(lane models.Lane) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lanes[lane.ID] = lane
}

// Blacklist lists a plate.
func (d *Directory) Blacklist(siteID int64, plate, reason string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.blacklist[plateKey(siteID, plate)] = models.BlacklistEntry{SiteID: siteID, Plate: plate, Reason: reason}
}

// AddMember registers a membership; a zero until never expires.
func (d *Directory) AddMember(siteID int64, plate string, from, until time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.members[plateKey(siteID, plate)] = membership{from: from, until: until}
}

func (d *Directory) GetSiteConfig(_ context.Context, siteID int64) (models.SiteConfig, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	cfg, ok := d.sites[siteID]
	if !ok {
		return models.SiteConfig{}, fmt.Errorf("%w: site %d", models.ErrNotFound, siteID)
	}
	return cfg, nil
}

func (d *Directory) GetLane(_ context.Context, laneID int64) (models.Lane, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	lane, ok := d.lanes[laneID]
	if !ok {
		return models.Lane{}, fmt.Errorf("%w: lane %d", models.ErrNotFound, laneID)
	}
	return lane, nil
}

func (d *Directory) FindBlacklisted(_ context.Context, siteID int64, plate string) (*models.BlacklistEntry, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	entry, ok := d.blacklist[plateKey(siteID, plate)]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

func (d *Directory) IsMember(_ context.Context, siteID int64, plate string, at time.Time) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	m, ok := d.members[plateKey(siteID, plate)]
	if !ok {
		return false, nil
	}
	return !at.Before(m.from) && (m.until.IsZero() || at.Before(m.until)), nil
}
