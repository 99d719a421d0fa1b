package service

import (
	"context"
	"fmt"
	"time"

	"autopark/backend/services/parking-service/internal/fee"
	"autopark/backend/services/parking-service/internal/models"
	"autopark/backend/services/parking-service/internal/store"
)

// Correction is the common part of every operator edit.
type Correction struct {
	SessionID int64
	Actor     models.Actor
	Reason    string
}

// DiscountInput registers a discount against a session.
type DiscountInput struct {
	Correction
	Kind  models.DiscountKind
	Value int64
}

type editFunc func(ctx context.Context, tx store.Tx, s *models.Session, cfg models.SiteConfig, fx *effects) (map[string]any, error)

// edit runs fn on a locked session, writes an operator log and re-evaluates a pending payment so
// the terminal and the stored fees never diverge.
func (o *Orchestrator) edit(ctx context.Context, c Correction, action string, allowTerminal bool, fn editFunc) (*models.Session, error) {
	if c.SessionID <= 0 {
		return nil, fmt.Errorf("%w: session id is required", models.ErrValidation)
	}
	var (
		result *models.Session
		fx     effects
	)
	err := o.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		fx = effects{}
		s, err := tx.Sessions().FindByIDForUpdate(ctx, c.SessionID)
		if err != nil {
			return err
		}
		if s.Status == models.StatusGhostExit || (s.Status.Terminal() && !allowTerminal) {
			return fmt.Errorf("%w: session %d is %s", models.ErrConflict, s.ID, s.Status)
		}
		cfg, err := o.directory.GetSiteConfig(ctx, s.SiteID)
		if err != nil {
			return err
		}
		payload, err := fn(ctx, tx, s, cfg, &fx)
		if err != nil {
			return err
		}
		if err := tx.Audit().Append(ctx, o.newAudit(models.AuditOperator, s.SiteID, s, 0, c.Actor, action, c.Reason, payload)); err != nil {
			return fmt.Errorf("append operator log: %w", err)
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

// CorrectPlate fixes a misread plate. Allowed on finished sessions since it does not touch fees.
func (o *Orchestrator) CorrectPlate(ctx context.Context, c Correction, plate string) (*models.Session, error) {
	plate = models.NormalizePlate(plate)
	if plate == "" {
		return nil, fmt.Errorf("%w: plate is required", models.ErrValidation)
	}
	return o.edit(ctx, c, "CORRECT_PLATE", true, func(ctx context.Context, tx store.Tx, s *models.Session, _ models.SiteConfig, _ *effects) (map[string]any, error) {
		if s.Plate == plate {
			return nil, fmt.Errorf("%w: plate unchanged", models.ErrValidation)
		}
		if s.Status.Open() {
			other, err := tx.Sessions().FindRunningSession(ctx, s.SiteID, plate)
			if err != nil {
				return nil, err
			}
			if other != nil && other.ID != s.ID {
				return nil, fmt.Errorf("%w: plate %s already has open session %d", models.ErrConflict, plate, other.ID)
			}
		}
		old := s.Plate
		if err := tx.Sessions().UpdateCarNumber(ctx, s.ID, plate); err != nil {
			return nil, err
		}
		s.Plate = plate
		return map[string]any{"old_plate": old, "new_plate": plate}, nil
	})
}

// CorrectEntryTime moves the entry timestamp of an open session. A time that would drop the fee
// below what was already paid is rejected.
func (o *Orchestrator) CorrectEntryTime(ctx context.Context, c Correction, entry time.Time) (*models.Session, error) {
	if entry.IsZero() {
		return nil, fmt.Errorf("%w: entry time is required", models.ErrValidation)
	}
	entry = entry.UTC()
	now := o.clock()
	if entry.After(now) {
		return nil, fmt.Errorf("%w: entry time is in the future", models.ErrValidation)
	}
	return o.edit(ctx, c, "CORRECT_ENTRY_TIME", false, func(ctx context.Context, tx store.Tx, s *models.Session, cfg models.SiteConfig, _ *effects) (map[string]any, error) {
		end := now
		if s.ExitTime != nil {
			end = *s.ExitTime
		}
		if entry.After(end) {
			return nil, fmt.Errorf("%w: entry time after exit", models.ErrValidation)
		}
		discounts, err := tx.Discounts().ListBySession(ctx, s.ID)
		if err != nil {
			return nil, err
		}
		res := fee.ApplyDiscounts(fee.Calculate(entry, end, s.VehicleClass, cfg.Fee), discounts, entry, end, s.VehicleClass, cfg.Fee)
		if res.FinalFee < s.PaidFee {
			return nil, fmt.Errorf("%w: corrected fee %d is below paid %d", models.ErrConflict, res.FinalFee, s.PaidFee)
		}
		old := s.EntryTime
		if err := tx.Sessions().UpdateEntryTime(ctx, s.ID, entry); err != nil {
			return nil, err
		}
		s.EntryTime = entry
		return map[string]any{"old_entry_time": old, "new_entry_time": entry}, nil
	})
}

// ChangeVehicleClass switches the class, e.g. to MEMBER after a late registration. A class that
// would drop the fee below what was already paid is rejected; refund first.
func (o *Orchestrator) ChangeVehicleClass(ctx context.Context, c Correction, class models.VehicleClass) (*models.Session, error) {
	class, err := models.ParseVehicleClass(string(class))
	if err != nil {
		return nil, err
	}
	now := o.clock()
	return o.edit(ctx, c, "CHANGE_VEHICLE_CLASS", false, func(ctx context.Context, tx store.Tx, s *models.Session, cfg models.SiteConfig, _ *effects) (map[string]any, error) {
		if s.PaidFee > 0 {
			end := now
			if s.ExitTime != nil {
				end = *s.ExitTime
			}
			discounts, err := tx.Discounts().ListBySession(ctx, s.ID)
			if err != nil {
				return nil, err
			}
			res := fee.ApplyDiscounts(fee.Calculate(s.EntryTime, end, class, cfg.Fee), discounts, s.EntryTime, end, class, cfg.Fee)
			if res.FinalFee < s.PaidFee {
				return nil, fmt.Errorf("%w: fee %d for class %s is below paid %d", models.ErrConflict, res.FinalFee, class, s.PaidFee)
			}
		}
		old := s.VehicleClass
		if err := tx.Sessions().UpdateVehicleType(ctx, s.ID, class); err != nil {
			return nil, err
		}
		s.VehicleClass = class
		return map[string]any{"old_class": old, "new_class": class}, nil
	})
}

// RegisterDiscount adds a discount to an open session.
func (o *Orchestrator) RegisterDiscount(ctx context.Context, in DiscountInput) (*models.Session, error) {
	d := models.Discount{Kind: in.Kind, Value: in.Value, Reason: in.Reason, CreatedBy: in.Actor.ID}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return o.edit(ctx, in.Correction, "REGISTER_DISCOUNT", false, func(ctx context.Context, tx store.Tx, s *models.Session, _ models.SiteConfig, _ *effects) (map[string]any, error) {
		d.ID = o.ids.Next()
		d.SessionID = s.ID
		d.CreatedAt = o.clock()
		if err := tx.Discounts().Add(ctx, &d); err != nil {
			return nil, err
		}
		return map[string]any{"discount_id": d.ID, "kind": d.Kind, "value": d.Value}, nil
	})
}

// ResetDiscounts removes every discount of an open session.
func (o *Orchestrator) ResetDiscounts(ctx context.Context, c Correction) (*models.Session, error) {
	return o.edit(ctx, c, "RESET_DISCOUNTS", false, func(ctx context.Context, tx store.Tx, s *models.Session, _ models.SiteConfig, _ *effects) (map[string]any, error) {
		n, err := tx.Discounts().DeleteBySession(ctx, s.ID)
		if err != nil {
			return nil, err
		}
		if s.Status == models.StatusRunning && s.DiscountFee != 0 {
			s.DiscountFee = 0
			if err := tx.Sessions().UpdateFees(ctx, s.ID, store.FeesOf(s)); err != nil {
				return nil, err
			}
		}
		return map[string]any{"removed": n}, nil
	})
}

// UpdateNote replaces the free-form note. Allowed in any status.
func (o *Orchestrator) UpdateNote(ctx context.Context, c Correction, note string) (*models.Session, error) {
	return o.edit(ctx, c, "UPDATE_NOTE", true, func(ctx context.Context, tx store.Tx, s *models.Session, _ models.SiteConfig, _ *effects) (map[string]any, error) {
		if err := tx.Sessions().UpdateNote(ctx, s.ID, note); err != nil {
			return nil, err
		}
		s.Note = note
		return nil, nil
	})
}

// RefundPayment gives back part of what was paid. The paid amount never goes below zero.
func (o *Orchestrator) RefundPayment(ctx context.Context, c Correction, amount int64) (*models.Session, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: refund amount must be positive", models.ErrValidation)
	}
	return o.edit(ctx, c, "REFUND_PAYMENT", false, func(ctx context.Context, tx store.Tx, s *models.Session, _ models.SiteConfig, _ *effects) (map[string]any, error) {
		before := s.PaidFee
		s.PaidFee = max(0, s.PaidFee-amount)
		if s.RemainingDue() > 0 {
			s.PaidAt = nil
		}
		if err := tx.Sessions().UpdateFees(ctx, s.ID, store.FeesOf(s)); err != nil {
			return nil, err
		}
		return map[string]any{"amount": amount, "refunded": before - s.PaidFee}, nil
	})
}

// CancelSession voids a stay that should never have been recorded.
func (o *Orchestrator) CancelSession(ctx context.Context, c Correction) (*models.Session, error) {
	return o.close(ctx, c, models.StatusCanceled, "CANCEL_SESSION", func(s *models.Session, _ models.SiteConfig, _ time.Time) {})
}

// MarkRunaway records a vehicle that left without paying. The fee owed at that moment is kept
// on the session.
func (o *Orchestrator) MarkRunaway(ctx context.Context, c Correction) (*models.Session, error) {
	return o.close(ctx, c, models.StatusRunaway, "MARK_RUNAWAY", func(s *models.Session, cfg models.SiteConfig, now time.Time) {
		end := now
		if s.ExitTime != nil {
			end = *s.ExitTime
		}
		res := fee.Calculate(s.EntryTime, end, s.VehicleClass, cfg.Fee)
		if res.TotalFee > s.TotalFee {
			s.TotalFee = res.TotalFee
		}
	})
}

// ForceComplete closes a stale session at zero remaining fee.
func (o *Orchestrator) ForceComplete(ctx context.Context, c Correction) (*models.Session, error) {
	return o.close(ctx, c, models.StatusForceCompleted, "FORCE_COMPLETE", func(s *models.Session, _ models.SiteConfig, _ time.Time) {
		s.TotalFee = s.PaidFee
		s.DiscountFee = 0
	})
}

func (o *Orchestrator) close(ctx context.Context, c Correction, status models.SessionStatus, action string, adjust func(s *models.Session, cfg models.SiteConfig, now time.Time)) (*models.Session, error) {
	now := o.clock()
	return o.edit(ctx, c, action, false, func(ctx context.Context, tx store.Tx, s *models.Session, cfg models.SiteConfig, fx *effects) (map[string]any, error) {
		if err := models.CheckTransition(s.Status, status); err != nil {
			return nil, err
		}
		if s.Status == models.StatusPaymentPending {
			if lane, ok := o.exitLane(ctx, s); ok {
				fx.cancelPayment(lane)
			}
		}
		from := s.Status
		adjust(s, cfg, now)
		if s.ExitTime == nil && status != models.StatusCanceled {
			exit := now
			s.ExitTime = &exit
		}
		s.Status = status
		s.ReconcileForClose()
		s.AppendNote(fmt.Sprintf("%s: %s", action, c.Reason))
		if err := tx.Sessions().CloseSession(ctx, s); err != nil {
			return nil, err
		}
		return map[string]any{"from": from, "to": status}, nil
	})
}
