package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"autopark/backend/services/parking-service/internal/fee"
	"autopark/backend/services/parking-service/internal/models"
	"autopark/backend/services/parking-service/internal/store"
)

// OutboundStatus is the outcome of an exit event.
type OutboundStatus string

// Outbound outcomes.
const (
	OutboundExitFree        OutboundStatus = "EXIT_FREE"
	OutboundPaymentRequired OutboundStatus = "PAYMENT_REQUIRED"
	OutboundUnrecognized    OutboundStatus = "UNRECOGNIZED"
)

// OutboundInput is a recognized exit event.
type OutboundInput struct {
	SiteID   int64
	LaneID   int64
	Plate    string
	ImageRef string
	At       time.Time
}

// OutboundResult carries the exit outcome. Fee is the amount requested from the terminal.
type OutboundResult struct {
	Status  OutboundStatus  `json:"status"`
	Session *models.Session `json:"session,omitempty"`
	Fee     int64           `json:"fee"`
	Message string          `json:"message,omitempty"`
}

// ManualExitInput lets an operator run the exit flow for a chosen session.
type ManualExitInput struct {
	SessionID int64
	LaneID    int64
	Actor     models.Actor
	Reason    string
}

// ProcessOutbound handles an exit camera event.
func (o *Orchestrator) ProcessOutbound(ctx context.Context, in OutboundInput) (OutboundResult, error) {
	cfg, lane, err := o.siteAndLane(ctx, in.SiteID, in.LaneID)
	if err != nil {
		return OutboundResult{}, err
	}
	now := in.At.UTC()
	if in.At.IsZero() {
		now = o.clock()
	}
	plate := models.NormalizePlate(in.Plate)

	var (
		result OutboundResult
		fx     effects
	)
	err = o.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		fx = effects{}
		var s *models.Session
		if plate != "" {
			var err error
			if s, err = tx.Sessions().FindRunningSession(ctx, cfg.SiteID, plate); err != nil {
				return err
			}
			if s == nil {
				if s, err = o.lockSimilar(ctx, tx, cfg.SiteID, plate); err != nil {
					return err
				}
				if s != nil {
					o.logger.Info("exit matched by similar plate",
						zap.Int64("session_id", s.ID), zap.String("recognized", plate), zap.String("plate", s.Plate))
				}
			}
		}
		if s == nil {
			var err error
			result, err = o.ghostExit(ctx, tx, cfg, lane, plate, in.ImageRef, now, &fx)
			return err
		}
		var err error
		result, err = o.settleExit(ctx, tx, cfg, lane, s, in.ImageRef, now, models.SystemActor, models.AuditOutbound, &fx)
		return err
	})
	if err != nil {
		if fx.ghostKey != "" {
			o.ghosts.Delete(fx.ghostKey)
		}
		return OutboundResult{}, err
	}
	o.apply(ctx, fx)
	return result, nil
}

// lockSimilar finds the only open session similar to plate and re-reads it under a row lock. A
// session closed in the meantime counts as no match.
func (o *Orchestrator) lockSimilar(ctx context.Context, tx store.Tx, siteID int64, plate string) (*models.Session, error) {
	match, err := tx.Sessions().FindSimilarRunningSession(ctx, siteID, plate)
	if err != nil || match == nil {
		return nil, err
	}
	s, err := tx.Sessions().FindByIDForUpdate(ctx, match.ID)
	if err != nil {
		return nil, err
	}
	if !s.Status.Open() {
		return nil, nil
	}
	return s, nil
}

// ManualExit runs the exit flow for an operator-selected session at an exit lane.
func (o *Orchestrator) ManualExit(ctx context.Context, in ManualExitInput) (OutboundResult, error) {
	if in.SessionID <= 0 {
		return OutboundResult{}, fmt.Errorf("%w: session id is required", models.ErrValidation)
	}
	current, err := o.store.Sessions().FindByID(ctx, in.SessionID)
	if err != nil {
		return OutboundResult{}, err
	}
	cfg, lane, err := o.siteAndLane(ctx, current.SiteID, in.LaneID)
	if err != nil {
		return OutboundResult{}, err
	}
	now := o.clock()

	var (
		result OutboundResult
		fx     effects
	)
	err = o.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		fx = effects{}
		s, err := tx.Sessions().FindByIDForUpdate(ctx, in.SessionID)
		if err != nil {
			return err
		}
		if !s.Status.Open() {
			return fmt.Errorf("%w: session %d is %s", models.ErrConflict, s.ID, s.Status)
		}
		s.AppendNote(in.Reason)
		result, err = o.settleExit(ctx, tx, cfg, lane, s, "", now, in.Actor, models.AuditOperator, &fx)
		return err
	})
	if err != nil {
		return OutboundResult{}, err
	}
	o.apply(ctx, fx)
	return result, nil
}

func ghostKey(laneID int64, plate string) string {
	return strconv.FormatInt(laneID, 10) + ":" + plate
}

// ghostExit handles an exit without a matching stay. FREE sites let the car go; otherwise the gate
// stays closed and one GHOST_EXIT record plus one alert is written per lane and plate within the
// suppression window.
func (o *Orchestrator) ghostExit(ctx context.Context, tx store.Tx, cfg models.SiteConfig, lane models.Lane, plate, imageRef string, now time.Time, fx *effects) (OutboundResult, error) {
	if cfg.Free() {
		entry := o.newAudit(models.AuditOutbound, cfg.SiteID, nil, lane.ID, models.SystemActor, "GHOST_EXIT_FREE", "no matching entry", map[string]any{"image_ref": imageRef})
		entry.Plate = plate
		if err := tx.Audit().Append(ctx, entry); err != nil {
			return OutboundResult{}, fmt.Errorf("append outbound log: %w", err)
		}
		fx.openGate(lane)
		fx.display(lane, msgGoodbye, plate)
		fx.publish(models.Event{Direction: models.DirectionOut, SiteID: cfg.SiteID, LaneID: lane.ID, Plate: plate, ImageRef: imageRef, Timestamp: now})
		return OutboundResult{Status: OutboundExitFree}, nil
	}

	fx.display(lane, msgUnrecognized, msgCallAttendant)
	// Unreadable plates cannot be told apart, so only recognized plates are suppressed.
	if plate != "" {
		key := ghostKey(lane.ID, plate)
		if !o.ghosts.SetIfAbsent(key, struct{}{}, o.ghostWindow) {
			o.logger.Debug("ghost exit suppressed", zap.Int64("lane_id", lane.ID), zap.String("plate", plate))
			return OutboundResult{Status: OutboundUnrecognized, Message: msgUnrecognized}, nil
		}
		fx.ghostKey = key
	}

	exitLane, exitTime := lane.ID, now
	record := &models.Session{
		ID:           o.ids.Next(),
		SiteID:       cfg.SiteID,
		Plate:        plate,
		VehicleClass: models.VehicleNormal,
		EntryTime:    now,
		ExitTime:     &exitTime,
		ExitLaneID:   &exitLane,
		ExitImageRef: imageRef,
		Status:       models.StatusGhostExit,
		Note:         "exit without matching entry",
	}
	if err := tx.Sessions().Create(ctx, record); err != nil {
		return OutboundResult{}, fmt.Errorf("create ghost record: %w", err)
	}
	entry := o.newAudit(models.AuditOutbound, cfg.SiteID, record, lane.ID, models.SystemActor, "GHOST_EXIT", "no matching entry", map[string]any{"image_ref": imageRef})
	if err := tx.Audit().Append(ctx, entry); err != nil {
		return OutboundResult{}, fmt.Errorf("append outbound log: %w", err)
	}
	fx.alert(o.newAudit(models.AuditAlert, cfg.SiteID, record, lane.ID, models.SystemActor, "GHOST_EXIT", "no matching entry", map[string]any{"image_ref": imageRef}))
	fx.publish(models.EventFromSession(models.DirectionOut, lane.ID, record, imageRef, now))
	return OutboundResult{Status: OutboundUnrecognized, Session: record, Message: msgUnrecognized}, nil
}

// assess recomputes the fee position of s at now and writes total and discount into s unless a
// prior settlement still covers the stay. It returns what is left to pay.
func (o *Orchestrator) assess(ctx context.Context, tx store.Tx, cfg models.SiteConfig, s *models.Session, now time.Time) (int64, error) {
	discounts, err := tx.Discounts().ListBySession(ctx, s.ID)
	if err != nil {
		return 0, err
	}
	st := fee.Settle(s, now, cfg.Fee, discounts, cfg.PreSettlementGraceMinutes)
	if st.WithinSettlementGrace {
		return s.RemainingDue(), nil
	}
	s.TotalFee = st.TotalFee
	s.DiscountFee = st.DiscountAmount
	s.CoverPaid()
	if cfg.Free() {
		// Billing is off: whatever is not yet paid is waived.
		s.DiscountFee = max(0, s.TotalFee-s.PaidFee)
		return 0, nil
	}
	return st.Remaining, nil
}

// settleExit computes what s owes at lane and either finalizes the exit or moves the session to
// PAYMENT_PENDING with a payment request for the remainder.
func (o *Orchestrator) settleExit(ctx context.Context, tx store.Tx, cfg models.SiteConfig, lane models.Lane, s *models.Session, imageRef string, now time.Time, actor models.Actor, kind models.AuditKind, fx *effects) (OutboundResult, error) {
	remaining, err := o.assess(ctx, tx, cfg, s, now)
	if err != nil {
		return OutboundResult{}, err
	}
	prevLane := s.ExitLaneID
	s.StampExit(lane.ID, now, imageRef)

	if remaining == 0 {
		if err := o.completeExit(ctx, tx, s, lane, now, actor, kind, "EXIT", fx); err != nil {
			return OutboundResult{}, err
		}
		return OutboundResult{Status: OutboundExitFree, Session: s}, nil
	}

	sameRequest := s.Status == models.StatusPaymentPending && s.RequestedFee == remaining &&
		prevLane != nil && *prevLane == lane.ID
	if s.Status != models.StatusPaymentPending {
		if err := models.CheckTransition(s.Status, models.StatusPaymentPending); err != nil {
			return OutboundResult{}, err
		}
		s.Status = models.StatusPaymentPending
	}
	s.RequestedFee = remaining

	sessions := tx.Sessions()
	if err := sessions.UpdateExit(ctx, s.ID, store.ExitInfo{LaneID: lane.ID, Time: now, ImageRef: s.ExitImageRef}); err != nil {
		return OutboundResult{}, err
	}
	if err := sessions.UpdateFees(ctx, s.ID, store.FeesOf(s)); err != nil {
		return OutboundResult{}, err
	}
	if err := sessions.UpdateSessionStatus(ctx, s.ID, s.Status); err != nil {
		return OutboundResult{}, err
	}
	if s.Note != "" {
		if err := sessions.UpdateNote(ctx, s.ID, s.Note); err != nil {
			return OutboundResult{}, err
		}
	}
	entry := o.newAudit(kind, s.SiteID, s, lane.ID, actor, "PAYMENT_REQUESTED", "", map[string]any{
		"total_fee":    s.TotalFee,
		"discount_fee": s.DiscountFee,
		"paid_fee":     s.PaidFee,
		"amount":       remaining,
	})
	if err := tx.Audit().Append(ctx, entry); err != nil {
		return OutboundResult{}, fmt.Errorf("append outbound log: %w", err)
	}

	fx.display(lane, msgPleasePay, strconv.FormatInt(remaining, 10))
	if !sameRequest {
		fx.requestPayment(lane, s.Plate, remaining)
	}
	fx.publish(models.EventFromSession(models.DirectionOut, lane.ID, s, imageRef, now))
	return OutboundResult{Status: OutboundPaymentRequired, Session: s, Fee: remaining}, nil
}

// completeExit turns s COMPLETED with its exit fields and fees in one statement and writes the
// outbound log. Gate and display follow after commit.
func (o *Orchestrator) completeExit(ctx context.Context, tx store.Tx, s *models.Session, lane models.Lane, now time.Time, actor models.Actor, kind models.AuditKind, action string, fx *effects) error {
	if err := models.CheckTransition(s.Status, models.StatusCompleted); err != nil {
		return err
	}
	if s.ExitTime == nil {
		s.StampExit(lane.ID, now, "")
	}
	s.Status = models.StatusCompleted
	s.ReconcileForClose()
	if s.PaidFee > 0 && s.PaidAt == nil {
		paidAt := now
		s.PaidAt = &paidAt
	}
	if err := tx.Sessions().CloseSession(ctx, s); err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	entry := o.newAudit(kind, s.SiteID, s, lane.ID, actor, action, "", map[string]any{
		"total_fee":    s.TotalFee,
		"discount_fee": s.DiscountFee,
		"paid_fee":     s.PaidFee,
		"exit_time":    s.ExitTime,
	})
	if err := tx.Audit().Append(ctx, entry); err != nil {
		return fmt.Errorf("append outbound log: %w", err)
	}
	fx.openGate(lane)
	fx.display(lane, msgGoodbye, s.Plate)
	fx.publish(models.EventFromSession(models.DirectionOut, lane.ID, s, s.ExitImageRef, now))
	return nil
}
