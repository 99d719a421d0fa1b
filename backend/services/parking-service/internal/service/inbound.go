package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"autopark/backend/services/parking-service/internal/models"
	"autopark/backend/services/parking-service/internal/store"
)

// InboundStatus is the outcome of an entry event.
type InboundStatus string

// Inbound outcomes.
const (
	InboundSuccess      InboundStatus = "SUCCESS"
	InboundBlocked      InboundStatus = "BLOCKED"
	InboundDuplicate    InboundStatus = "DUPLICATE"
	InboundFull         InboundStatus = "FULL"
	InboundUnrecognized InboundStatus = "UNRECOGNIZED"
)

// InboundInput is a recognized entry event.
type InboundInput struct {
	SiteID   int64
	LaneID   int64
	Plate    string
	ImageRef string
	// At defaults to now.
	At time.Time
}

// InboundResult carries the outcome and, on SUCCESS or DUPLICATE, the session involved.
type InboundResult struct {
	Status  InboundStatus   `json:"status"`
	Session *models.Session `json:"session,omitempty"`
	Message string          `json:"message,omitempty"`
}

// ManualEntryInput is an operator-created entry.
type ManualEntryInput struct {
	SiteID       int64
	LaneID       int64
	Plate        string
	VehicleClass models.VehicleClass
	EntryTime    time.Time
	ImageRef     string
	Actor        models.Actor
	Reason       string
}

const placeholderPlatePrefix = "UNKNOWN-"

// ProcessInbound handles an entry camera event: blacklist, duplicate, anti-passback and capacity
// checks, then session creation with an inbound audit entry in one transaction.
func (o *Orchestrator) ProcessInbound(ctx context.Context, in InboundInput) (InboundResult, error) {
	cfg, lane, err := o.siteAndLane(ctx, in.SiteID, in.LaneID)
	if err != nil {
		return InboundResult{}, err
	}
	now := in.At.UTC()
	if in.At.IsZero() {
		now = o.clock()
	}
	plate := models.NormalizePlate(in.Plate)

	var fx effects
	if plate == "" {
		if cfg.UnrecognizedBehavior != models.UnrecognizedAdmit {
			fx.display(lane, msgUnrecognized, msgCallAttendant)
			fx.alert(o.newAudit(models.AuditAlert, cfg.SiteID, nil, lane.ID, models.SystemActor,
				"UNRECOGNIZED_ENTRY", "no readable plate", map[string]any{"image_ref": in.ImageRef}))
			o.apply(ctx, fx)
			return InboundResult{Status: InboundUnrecognized, Message: msgUnrecognized}, nil
		}
		return o.admit(ctx, cfg, lane, "", in.ImageRef, now, false)
	}

	entry, err := o.directory.FindBlacklisted(ctx, cfg.SiteID, plate)
	if err != nil {
		return InboundResult{}, err
	}
	if entry != nil {
		alert := o.newAudit(models.AuditAlert, cfg.SiteID, nil, lane.ID, models.SystemActor,
			"BLACKLIST_"+string(cfg.BlacklistBehavior), entry.Reason, map[string]any{"image_ref": in.ImageRef})
		alert.Plate = plate
		if cfg.BlacklistBehavior == models.BlacklistBlock {
			fx.closeGate(lane)
			fx.display(lane, msgBlocked, plate)
			fx.alert(alert)
			o.apply(ctx, fx)
			return InboundResult{Status: InboundBlocked, Message: msgBlocked}, nil
		}
		o.logger.Warn("blacklisted plate admitted",
			zap.Int64("site_id", cfg.SiteID), zap.Int64("lane_id", lane.ID), zap.String("plate", plate), zap.String("reason", entry.Reason))
		fx.alert(alert)
	}

	res, err := o.admitGuarded(ctx, cfg, lane, plate, in.ImageRef, now, entry != nil)
	if err != nil {
		return InboundResult{}, err
	}
	o.apply(ctx, fx)
	return res, nil
}

// admitGuarded holds the inbound lock for site and plate while checking duplicates and creating
// the session, so two cameras reading the same plate cannot both create a stay.
func (o *Orchestrator) admitGuarded(ctx context.Context, cfg models.SiteConfig, lane models.Lane, plate, imageRef string, now time.Time, warned bool) (InboundResult, error) {
	release, ok, err := o.guard(ctx, cfg.SiteID, plate)
	if err != nil {
		return InboundResult{}, err
	}
	if !ok {
		o.logger.Info("inbound already in progress", zap.Int64("site_id", cfg.SiteID), zap.String("plate", plate))
		return InboundResult{Status: InboundDuplicate, Message: msgDuplicate}, nil
	}
	defer release()
	return o.admit(ctx, cfg, lane, plate, imageRef, now, warned)
}

func (o *Orchestrator) guard(ctx context.Context, siteID int64, plate string) (func(), bool, error) {
	if o.locks == nil {
		return func() {}, true, nil
	}
	resource := o.lockKey(siteID, plate)
	owner := o.ownerID()
	ok, err := o.locks.Acquire(ctx, resource, owner, "inbound")
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return func() {
		if !o.locks.Release(context.WithoutCancel(ctx), resource, owner) {
			o.logger.Warn("inbound lock not released", zap.String("resource", resource))
		}
	}, true, nil
}

func (o *Orchestrator) admit(ctx context.Context, cfg models.SiteConfig, lane models.Lane, plate, imageRef string, now time.Time, warned bool) (InboundResult, error) {
	placeholder := plate == ""

	class := models.VehicleNormal
	if !placeholder {
		member, err := o.directory.IsMember(ctx, cfg.SiteID, plate, now)
		if err != nil {
			return InboundResult{}, err
		}
		if member {
			class = models.VehicleMember
		}
	}

	var (
		result InboundResult
		fx     effects
	)
	err := o.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		sessions := tx.Sessions()
		payload := map[string]any{"image_ref": imageRef}

		if !placeholder {
			existing, err := sessions.FindRunningSession(ctx, cfg.SiteID, plate)
			if err != nil {
				return err
			}
			if existing != nil {
				result = InboundResult{Status: InboundDuplicate, Session: existing, Message: msgDuplicate}
				return nil
			}
			if cfg.ReEntryLimitMinutes > 0 {
				since := now.Add(-time.Duration(cfg.ReEntryLimitMinutes) * time.Minute)
				recent, err := sessions.FindRecentExit(ctx, cfg.SiteID, plate, since)
				if err != nil {
					return err
				}
				if recent != nil {
					o.logger.Info("re-entry within anti-passback window",
						zap.Int64("site_id", cfg.SiteID),
						zap.String("plate", plate),
						zap.Int64("previous_session_id", recent.ID),
						zap.Time("previous_exit", *recent.ExitTime),
					)
					payload["anti_passback"] = recent.ID
				}
			}
		}

		if cfg.Capacity > 0 && class != models.VehicleMember && !cfg.Free() {
			occupied, err := sessions.CountOccupied(ctx, cfg.SiteID)
			if err != nil {
				return err
			}
			if occupied >= cfg.Capacity {
				result = InboundResult{Status: InboundFull, Message: msgFull}
				return nil
			}
		}

		id := o.ids.Next()
		if placeholder {
			plate = placeholderPlatePrefix + strconv.FormatInt(id, 10)
			payload["unrecognized"] = true
		}
		if warned {
			payload["blacklist_warning"] = true
		}
		s := &models.Session{
			ID:            id,
			SiteID:        cfg.SiteID,
			Plate:         plate,
			VehicleClass:  class,
			EntryTime:     now,
			EntryLaneID:   lane.ID,
			EntryImageRef: imageRef,
			Status:        models.StatusRunning,
		}
		if err := sessions.Create(ctx, s); err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		entry := o.newAudit(models.AuditInbound, cfg.SiteID, s, lane.ID, models.SystemActor, "ENTRY", "", payload)
		if err := tx.Audit().Append(ctx, entry); err != nil {
			return fmt.Errorf("append inbound log: %w", err)
		}
		result = InboundResult{Status: InboundSuccess, Session: s}
		return nil
	})
	if err != nil {
		return InboundResult{}, err
	}

	switch result.Status {
	case InboundSuccess:
		fx.openGate(lane)
		if warned {
			fx.display(lane, msgWarn, result.Session.Plate)
		} else {
			fx.display(lane, msgWelcome, result.Session.Plate)
		}
		fx.publish(models.EventFromSession(models.DirectionIn, lane.ID, result.Session, imageRef, now))
	case InboundDuplicate:
		o.logger.Info("duplicate inbound", zap.Int64("site_id", cfg.SiteID), zap.String("plate", plate), zap.Int64("session_id", result.Session.ID))
		fx.display(lane, msgDuplicate, msgCallAttendant)
	case InboundFull:
		fx.display(lane, msgFull, "")
	}
	o.apply(ctx, fx)
	return result, nil
}

// ManualEntry creates a session on behalf of an operator. Blacklist and capacity are not checked;
// an existing open session for the plate still yields DUPLICATE.
func (o *Orchestrator) ManualEntry(ctx context.Context, in ManualEntryInput) (InboundResult, error) {
	cfg, lane, err := o.siteAndLane(ctx, in.SiteID, in.LaneID)
	if err != nil {
		return InboundResult{}, err
	}
	plate := models.NormalizePlate(in.Plate)
	if plate == "" {
		return InboundResult{}, fmt.Errorf("%w: plate is required", models.ErrValidation)
	}
	now := o.clock()
	entryTime := in.EntryTime.UTC()
	if in.EntryTime.IsZero() {
		entryTime = now
	}
	if entryTime.After(now) {
		return InboundResult{}, fmt.Errorf("%w: entry time is in the future", models.ErrValidation)
	}
	class := in.VehicleClass
	if class == "" {
		class = models.VehicleNormal
	}

	release, ok, err := o.guard(ctx, cfg.SiteID, plate)
	if err != nil {
		return InboundResult{}, err
	}
	if !ok {
		return InboundResult{Status: InboundDuplicate, Message: msgDuplicate}, nil
	}
	defer release()

	var result InboundResult
	err = o.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		existing, err := tx.Sessions().FindRunningSession(ctx, cfg.SiteID, plate)
		if err != nil {
			return err
		}
		if existing != nil {
			result = InboundResult{Status: InboundDuplicate, Session: existing, Message: msgDuplicate}
			return nil
		}
		s := &models.Session{
			ID:            o.ids.Next(),
			SiteID:        cfg.SiteID,
			Plate:         plate,
			VehicleClass:  class,
			EntryTime:     entryTime,
			EntryLaneID:   lane.ID,
			EntryImageRef: in.ImageRef,
			Status:        models.StatusRunning,
		}
		s.AppendNote(in.Reason)
		if err := tx.Sessions().Create(ctx, s); err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		entry := o.newAudit(models.AuditOperator, cfg.SiteID, s, lane.ID, in.Actor, "MANUAL_ENTRY", in.Reason, nil)
		if err := tx.Audit().Append(ctx, entry); err != nil {
			return fmt.Errorf("append operator log: %w", err)
		}
		result = InboundResult{Status: InboundSuccess, Session: s}
		return nil
	})
	if err != nil {
		return InboundResult{}, err
	}

	if result.Status == InboundSuccess {
		var fx effects
		fx.openGate(lane)
		fx.display(lane, msgWelcome, plate)
		fx.publish(models.EventFromSession(models.DirectionIn, lane.ID, result.Session, in.ImageRef, now))
		o.apply(ctx, fx)
	}
	return result, nil
}
