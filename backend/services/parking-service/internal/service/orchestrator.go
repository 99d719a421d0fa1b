// Package service holds the session lifecycle orchestrator. Every workflow mutates sessions and
// the audit trail inside one store transaction and issues device commands only after commit.
package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"autopark/backend/services/parking-service/internal/cache"
	"autopark/backend/services/parking-service/internal/models"
	"autopark/backend/services/parking-service/internal/realtime"
	"autopark/backend/services/parking-service/internal/store"
)

// Controller issues lane commands. device.Dispatcher implements it.
type Controller interface {
	OpenGate(ctx context.Context, lane models.Lane) error
	CloseGate(ctx context.Context, lane models.Lane) error
	SendDisplay(ctx context.Context, lane models.Lane, line1, line2 string) error
	RequestPayment(ctx context.Context, lane models.Lane, plate string, amount int64) error
	CancelPayment(ctx context.Context, lane models.Lane) error
}

// Locker guards the duplicate-check-then-create sequence of inbound events.
type Locker interface {
	Acquire(ctx context.Context, resource, ownerID, ownerName string) (bool, error)
	Release(ctx context.Context, resource, ownerID string) bool
}

// IDGenerator hands out unique ids for sessions, discounts and audit entries.
type IDGenerator interface {
	Next() int64
}

// AlertSink receives notable events after commit. Implementations must not block for long
// and swallow their own failures.
type AlertSink interface {
	Alert(ctx context.Context, entry models.AuditEntry)
}

// LockKeyFunc builds the inbound guard resource for a plate.
type LockKeyFunc func(siteID int64, plate string) string

// Deps are the orchestrator collaborators.
type Deps struct {
	Store     store.Store
	Directory store.Directory
	Devices   Controller
	Locks     Locker
	LockKey   LockKeyFunc
	Publisher realtime.Publisher
	Alerts    AlertSink
	IDs       IDGenerator
	Logger    *zap.Logger

	// GhostAlertWindow suppresses repeated ghost-exit records for the same lane and plate.
	GhostAlertWindow time.Duration
	Now              func() time.Time
}

// Orchestrator runs inbound, outbound, payment and operator workflows.
type Orchestrator struct {
	store     store.Store
	directory store.Directory
	devices   Controller
	locks     Locker
	lockKey   LockKeyFunc
	publisher realtime.Publisher
	alerts    AlertSink
	ids       IDGenerator
	logger    *zap.Logger

	ghosts      *cache.TTLCache[string, struct{}]
	ghostWindow time.Duration
	now         func() time.Time
}

// New builds orchestrator.
func New(d Deps) *Orchestrator {
	o := &Orchestrator{
		store:       d.Store,
		directory:   d.Directory,
		devices:     d.Devices,
		locks:       d.Locks,
		lockKey:     d.LockKey,
		publisher:   d.Publisher,
		alerts:      d.Alerts,
		ids:         d.IDs,
		logger:      d.Logger,
		ghostWindow: d.GhostAlertWindow,
		now:         d.Now,
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	o.logger = o.logger.Named("orchestrator")
	if o.publisher == nil {
		o.publisher = realtime.Noop{}
	}
	if o.alerts == nil {
		o.alerts = logAlerts{logger: o.logger}
	}
	if o.lockKey == nil {
		o.lockKey = func(siteID int64, plate string) string {
			return "inbound:" + strconv.FormatInt(siteID, 10) + ":" + plate
		}
	}
	if o.ghostWindow <= 0 {
		o.ghostWindow = time.Minute
	}
	if o.now == nil {
		o.now = time.Now
	}
	o.ghosts = cache.NewTTLCache[string, struct{}]().WithClock(o.now)
	return o
}

func (o *Orchestrator) clock() time.Time {
	return o.now().UTC()
}

func (o *Orchestrator) newAudit(kind models.AuditKind, siteID int64, s *models.Session, laneID int64, actor models.Actor, action, reason string, payload map[string]any) *models.AuditEntry {
	e := &models.AuditEntry{
		ID:        o.ids.Next(),
		Kind:      kind,
		SiteID:    siteID,
		Actor:     actor.ID,
		Action:    action,
		Reason:    reason,
		Payload:   payload,
		CreatedAt: o.clock(),
	}
	if s != nil {
		id := s.ID
		e.SessionID = &id
		e.Plate = s.Plate
	}
	if laneID != 0 {
		lane := laneID
		e.LaneID = &lane
	}
	if actor.Name != "" && actor.Name != actor.ID {
		if e.Payload == nil {
			e.Payload = make(map[string]any)
		}
		e.Payload["actor_name"] = actor.Name
	}
	return e
}

// siteAndLane resolves the site policy and checks that the lane belongs to it.
func (o *Orchestrator) siteAndLane(ctx context.Context, siteID, laneID int64) (models.SiteConfig, models.Lane, error) {
	if siteID <= 0 || laneID <= 0 {
		return models.SiteConfig{}, models.Lane{}, fmt.Errorf("%w: site_id and lane_id are required", models.ErrValidation)
	}
	cfg, err := o.directory.GetSiteConfig(ctx, siteID)
	if err != nil {
		return models.SiteConfig{}, models.Lane{}, err
	}
	lane, err := o.directory.GetLane(ctx, laneID)
	if err != nil {
		return models.SiteConfig{}, models.Lane{}, err
	}
	if lane.SiteID != siteID {
		return models.SiteConfig{}, models.Lane{}, fmt.Errorf("%w: lane %d does not belong to site %d", models.ErrValidation, laneID, siteID)
	}
	return cfg, lane, nil
}

// exitLane resolves the lane a pending session is waiting at. Failures are logged and the
// caller skips device commands.
func (o *Orchestrator) exitLane(ctx context.Context, s *models.Session) (models.Lane, bool) {
	if s.ExitLaneID == nil {
		return models.Lane{}, false
	}
	lane, err := o.directory.GetLane(ctx, *s.ExitLaneID)
	if err != nil {
		o.logger.Warn("resolve exit lane", zap.Int64("session_id", s.ID), zap.Int64("lane_id", *s.ExitLaneID), zap.Error(err))
		return models.Lane{}, false
	}
	return lane, true
}

func (o *Orchestrator) ownerID() string {
	return uuid.NewString()
}

// GetSession returns a session by id.
func (o *Orchestrator) GetSession(ctx context.Context, id int64) (*models.Session, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: session id is required", models.ErrValidation)
	}
	return o.store.Sessions().FindByID(ctx, id)
}
