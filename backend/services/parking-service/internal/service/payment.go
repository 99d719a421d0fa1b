package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"autopark/backend/services/parking-service/internal/fee"
	"autopark/backend/services/parking-service/internal/models"
	"autopark/backend/services/parking-service/internal/store"
)

// PaymentInput is a terminal or kiosk payment report.
type PaymentInput struct {
	SessionID int64
	Amount    int64
	Reference string
}

// PaymentFailureInput is a declined or aborted terminal payment.
type PaymentFailureInput struct {
	SessionID int64
	Reason    string
}

// PreSettlement is the fee position after a kiosk payment.
type PreSettlement struct {
	Session   *models.Session `json:"session"`
	Remaining int64           `json:"remaining"`
}

// ProcessPaymentSuccess books a terminal payment. The exit completes once nothing is left;
// otherwise the remainder is requested again. Replays against finished sessions are no-ops.
func (o *Orchestrator) ProcessPaymentSuccess(ctx context.Context, in PaymentInput) (*models.Session, error) {
	if in.SessionID <= 0 || in.Amount <= 0 {
		return nil, fmt.Errorf("%w: session id and positive amount are required", models.ErrValidation)
	}
	now := o.clock()

	var (
		result *models.Session
		fx     effects
	)
	err := o.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		fx = effects{}
		s, err := tx.Sessions().FindByIDForUpdate(ctx, in.SessionID)
		if err != nil {
			return err
		}
		result = s
		if s.Status.Terminal() {
			o.logger.Info("payment replay ignored", zap.Int64("session_id", s.ID), zap.String("status", string(s.Status)))
			return nil
		}
		if s.Status != models.StatusPaymentPending {
			return fmt.Errorf("%w: session %d has no pending payment", models.ErrConflict, s.ID)
		}

		owed := s.TotalFee - s.DiscountFee - s.PaidFee
		booked := in.Amount
		if booked > owed {
			o.logger.Warn("overpayment capped",
				zap.Int64("session_id", s.ID), zap.Int64("amount", in.Amount), zap.Int64("owed", owed))
			booked = max(0, owed)
		}
		s.PaidFee += booked

		lane, hasLane := o.exitLane(ctx, s)
		laneID := int64(0)
		if hasLane {
			laneID = lane.ID
		}
		entry := o.newAudit(models.AuditDeviceEvent, s.SiteID, s, laneID, models.SystemActor, "PAYMENT_SUCCESS", "", map[string]any{
			"amount":    in.Amount,
			"booked":    booked,
			"reference": in.Reference,
		})
		if err := tx.Audit().Append(ctx, entry); err != nil {
			return fmt.Errorf("append device event log: %w", err)
		}

		if s.RemainingDue() == 0 {
			paidAt := now
			s.PaidAt = &paidAt
			return o.finishExit(ctx, tx, s, lane, hasLane, now, &fx)
		}

		s.RequestedFee = s.RemainingDue()
		if err := tx.Sessions().UpdateFees(ctx, s.ID, store.FeesOf(s)); err != nil {
			return err
		}
		if hasLane {
			fx.display(lane, msgPleasePay, fmt.Sprint(s.RequestedFee))
			fx.requestPayment(lane, s.Plate, s.RequestedFee)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	o.apply(ctx, fx)
	return result, nil
}

// ProcessPaymentFailure reverts a pending exit to RUNNING and clears the tentative exit fields.
// Reports for sessions no longer waiting on a payment are ignored.
func (o *Orchestrator) ProcessPaymentFailure(ctx context.Context, in PaymentFailureInput) (*models.Session, error) {
	if in.SessionID <= 0 {
		return nil, fmt.Errorf("%w: session id is required", models.ErrValidation)
	}
	return o.revertPayment(ctx, in.SessionID, models.SystemActor, models.AuditDeviceEvent, "PAYMENT_FAILED", in.Reason, false)
}

// ResetPayment is the operator variant of a payment failure: PAYMENT_PENDING back to RUNNING.
func (o *Orchestrator) ResetPayment(ctx context.Context, sessionID int64, actor models.Actor, reason string) (*models.Session, error) {
	return o.revertPayment(ctx, sessionID, actor, models.AuditOperator, "RESET_PAYMENT", reason, true)
}

func (o *Orchestrator) revertPayment(ctx context.Context, sessionID int64, actor models.Actor, kind models.AuditKind, action, reason string, strict bool) (*models.Session, error) {
	var (
		result *models.Session
		fx     effects
	)
	err := o.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		fx = effects{}
		s, err := tx.Sessions().FindByIDForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		result = s
		if s.Status != models.StatusPaymentPending {
			if strict {
				return fmt.Errorf("%w: session %d is %s", models.ErrInvalidTransition, s.ID, s.Status)
			}
			o.logger.Info("payment failure ignored", zap.Int64("session_id", s.ID), zap.String("status", string(s.Status)))
			return nil
		}
		lane, hasLane := o.exitLane(ctx, s)

		s.Status = models.StatusRunning
		s.ClearExit()
		s.RequestedFee = 0
		sessions := tx.Sessions()
		if err := sessions.UpdateSessionStatus(ctx, s.ID, s.Status); err != nil {
			return err
		}
		if err := sessions.UpdateExit(ctx, s.ID, store.ExitInfo{}); err != nil {
			return err
		}
		if err := sessions.UpdateFees(ctx, s.ID, store.FeesOf(s)); err != nil {
			return err
		}
		laneID := int64(0)
		if hasLane {
			laneID = lane.ID
		}
		if err := tx.Audit().Append(ctx, o.newAudit(kind, s.SiteID, s, laneID, actor, action, reason, nil)); err != nil {
			return fmt.Errorf("append log: %w", err)
		}
		if hasLane {
			fx.cancelPayment(lane)
			fx.display(lane, msgPaymentFailed, msgCallAttendant)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	o.apply(ctx, fx)
	return result, nil
}

// PreSettle books a payment made before the vehicle reaches the exit lane. A stay that becomes
// fully settled starts the post-settlement grace window.
func (o *Orchestrator) PreSettle(ctx context.Context, in PaymentInput) (PreSettlement, error) {
	if in.SessionID <= 0 || in.Amount <= 0 {
		return PreSettlement{}, fmt.Errorf("%w: session id and positive amount are required", models.ErrValidation)
	}
	now := o.clock()

	var out PreSettlement
	err := o.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		s, err := tx.Sessions().FindByIDForUpdate(ctx, in.SessionID)
		if err != nil {
			return err
		}
		if s.Status != models.StatusRunning {
			return fmt.Errorf("%w: session %d is %s", models.ErrConflict, s.ID, s.Status)
		}
		cfg, err := o.directory.GetSiteConfig(ctx, s.SiteID)
		if err != nil {
			return err
		}
		if cfg.Free() {
			return fmt.Errorf("%w: site %d does not bill", models.ErrConflict, s.SiteID)
		}
		discounts, err := tx.Discounts().ListBySession(ctx, s.ID)
		if err != nil {
			return err
		}
		st := fee.Settle(s, now, cfg.Fee, discounts, 0)
		if in.Amount > st.Remaining {
			return fmt.Errorf("%w: amount %d exceeds remaining %d", models.ErrValidation, in.Amount, st.Remaining)
		}
		s.TotalFee = st.TotalFee
		s.DiscountFee = st.DiscountAmount
		s.PaidFee += in.Amount
		if s.RemainingDue() == 0 {
			paidAt := now
			s.PaidAt = &paidAt
		}
		if err := tx.Sessions().UpdateFees(ctx, s.ID, store.FeesOf(s)); err != nil {
			return err
		}
		entry := o.newAudit(models.AuditDeviceEvent, s.SiteID, s, 0, models.SystemActor, "PRE_SETTLEMENT", "", map[string]any{
			"amount":    in.Amount,
			"reference": in.Reference,
		})
		if err := tx.Audit().Append(ctx, entry); err != nil {
			return fmt.Errorf("append device event log: %w", err)
		}
		out = PreSettlement{Session: s, Remaining: s.RemainingDue()}
		return nil
	})
	return out, err
}

// RefreshPaymentIfNeeded re-evaluates a PAYMENT_PENDING session. A remainder of zero finalizes the
// exit; a changed remainder is requested again; an unchanged one does nothing.
func (o *Orchestrator) RefreshPaymentIfNeeded(ctx context.Context, sessionID int64) (*models.Session, error) {
	var (
		result *models.Session
		fx     effects
	)
	err := o.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		fx = effects{}
		s, err := tx.Sessions().FindByIDForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		result = s
		return o.refresh(ctx, tx, s, &fx)
	})
	if err != nil {
		return nil, err
	}
	o.apply(ctx, fx)
	return result, nil
}

func (o *Orchestrator) refresh(ctx context.Context, tx store.Tx, s *models.Session, fx *effects) error {
	if s.Status != models.StatusPaymentPending {
		return nil
	}
	cfg, err := o.directory.GetSiteConfig(ctx, s.SiteID)
	if err != nil {
		return err
	}
	now := o.clock()
	remaining, err := o.assess(ctx, tx, cfg, s, now)
	if err != nil {
		return err
	}
	// The fee was recomputed at now, so the exit is stamped at now too.
	if s.ExitTime != nil {
		exit := now
		s.ExitTime = &exit
	}
	lane, hasLane := o.exitLane(ctx, s)

	if remaining == 0 {
		if hasLane {
			fx.cancelPayment(lane)
		}
		return o.finishExit(ctx, tx, s, lane, hasLane, now, fx)
	}

	changed := remaining != s.RequestedFee
	s.RequestedFee = remaining
	if err := tx.Sessions().UpdateFees(ctx, s.ID, store.FeesOf(s)); err != nil {
		return err
	}
	if s.ExitTime != nil && s.ExitLaneID != nil {
		exit := store.ExitInfo{LaneID: *s.ExitLaneID, Time: *s.ExitTime, ImageRef: s.ExitImageRef}
		if err := tx.Sessions().UpdateExit(ctx, s.ID, exit); err != nil {
			return err
		}
	}
	if changed && hasLane {
		fx.cancelPayment(lane)
		fx.display(lane, msgPleasePay, fmt.Sprint(remaining))
		fx.requestPayment(lane, s.Plate, remaining)
	}
	return nil
}

// finishExit completes a pending exit that was settled away from the lane event. Without a
// resolvable lane only the event is published.
func (o *Orchestrator) finishExit(ctx context.Context, tx store.Tx, s *models.Session, lane models.Lane, hasLane bool, now time.Time, fx *effects) error {
	var local effects
	if err := o.completeExit(ctx, tx, s, lane, now, models.SystemActor, models.AuditOutbound, "EXIT", &local); err != nil {
		return err
	}
	if hasLane {
		fx.merge(local)
		return nil
	}
	fx.events = append(fx.events, local.events...)
	return nil
}
