package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"autopark/backend/services/parking-service/internal/device/simulator"
	"autopark/backend/services/parking-service/internal/models"
)

func finished(t *testing.T, h *harness) *models.Session {
	t.Helper()
	in := h.enter(t, testPlate)
	h.clock.Advance(5 * time.Minute)
	if out := h.exit(t, testPlate); out.Status != OutboundExitFree {
		t.Fatalf("expected free exit, got %+v", out)
	}
	return h.session(t, in.Session.ID)
}

func TestCorrectPlateAllowedOnTerminal(t *testing.T) {
	h := newHarness(t, nil)
	s := finished(t, h)

	got, err := h.o.CorrectPlate(context.Background(), Correction{SessionID: s.ID, Actor: operator, Reason: "misread"}, "12가 3457")
	if err != nil {
		t.Fatalf("correct plate: %v", err)
	}
	if got.Plate != "12가3457" || h.session(t, s.ID).Plate != "12가3457" {
		t.Fatalf("plate not corrected: %+v", got)
	}
	audit := h.store.AuditEntries()
	last := audit[len(audit)-1]
	if last.Kind != models.AuditOperator || last.Action != "CORRECT_PLATE" || last.Reason != "misread" || last.Payload["old_plate"] != testPlate {
		t.Fatalf("unexpected operator log %+v", last)
	}
}

func TestCorrectPlateConflictsWithOpenSession(t *testing.T) {
	h := newHarness(t, nil)
	first := h.enter(t, testPlate)
	h.enter(t, otherPlate)

	_, err := h.o.CorrectPlate(context.Background(), Correction{SessionID: first.Session.ID, Actor: operator}, otherPlate)
	if !errors.Is(err, models.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestFinancialEditsRejectedOnTerminal(t *testing.T) {
	h := newHarness(t, nil)
	s := finished(t, h)
	ctx := context.Background()
	c := Correction{SessionID: s.ID, Actor: operator}

	if _, err := h.o.ChangeVehicleClass(ctx, c, models.VehicleMember); !errors.Is(err, models.ErrConflict) {
		t.Fatalf("class change on terminal: %v", err)
	}
	if _, err := h.o.RegisterDiscount(ctx, DiscountInput{Correction: c, Kind: models.DiscountAmount, Value: 100}); !errors.Is(err, models.ErrConflict) {
		t.Fatalf("discount on terminal: %v", err)
	}
	if _, err := h.o.RefundPayment(ctx, c, 100); !errors.Is(err, models.ErrConflict) {
		t.Fatalf("refund on terminal: %v", err)
	}
	if _, err := h.o.UpdateNote(ctx, c, "left through side gate"); err != nil {
		t.Fatalf("note on terminal must be allowed: %v", err)
	}
	if got := h.session(t, s.ID); got.Note != "left through side gate" {
		t.Fatalf("note not stored: %+v", got)
	}
}

func TestChangeToMemberCompletesPendingExit(t *testing.T) {
	h := newHarness(t, nil)
	s := h.pending(t)

	got, err := h.o.ChangeVehicleClass(context.Background(), Correction{SessionID: s.ID, Actor: operator}, models.VehicleMember)
	if err != nil {
		t.Fatalf("change class: %v", err)
	}
	if got.Status != models.StatusCompleted || got.TotalFee != 0 {
		t.Fatalf("expected member exit to complete at zero, got %+v", got)
	}
	if n := h.dev.Count(simulator.RequestPayment); n != 1 {
		t.Fatalf("expected no further payment request, got %d", n)
	}
}

func TestChangeClassBelowPaidIsConflict(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	in := h.enter(t, testPlate)
	h.clock.Advance(40 * time.Minute)

	if _, err := h.o.PreSettle(ctx, PaymentInput{SessionID: in.Session.ID, Amount: 4000, Reference: "kiosk-1"}); err != nil {
		t.Fatalf("pre-settle: %v", err)
	}
	if _, err := h.o.ChangeVehicleClass(ctx, Correction{SessionID: in.Session.ID, Actor: operator}, models.VehicleMember); !errors.Is(err, models.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	h.clock.Advance(30 * time.Minute)
	h.exit(t, testPlate)
	s := h.session(t, in.Session.ID)
	if s.VehicleClass != models.VehicleNormal {
		t.Fatalf("class must be unchanged, got %s", s.VehicleClass)
	}
	if s.PaidFee > s.TotalFee-s.DiscountFee {
		t.Fatalf("invariant violated: paid %d total %d discount %d", s.PaidFee, s.TotalFee, s.DiscountFee)
	}
}

func TestCorrectEntryTimeRefreshesPendingAmount(t *testing.T) {
	h := newHarness(t, nil)
	s := h.pending(t)

	got, err := h.o.CorrectEntryTime(context.Background(), Correction{SessionID: s.ID, Actor: operator}, s.EntryTime.Add(-20*time.Minute))
	if err != nil {
		t.Fatalf("correct entry: %v", err)
	}
	if got.RequestedFee != 6000 {
		t.Fatalf("expected 6000 after moving entry back, got %+v", got)
	}
	if cmd, _ := h.dev.Last(simulator.RequestPayment); cmd.Amount != 6000 {
		t.Fatalf("expected new payment request, got %+v", cmd)
	}
}

func TestCorrectEntryTimeValidation(t *testing.T) {
	h := newHarness(t, nil)
	in := h.enter(t, testPlate)
	h.clock.Advance(31 * time.Minute)
	ctx := context.Background()
	c := Correction{SessionID: in.Session.ID, Actor: operator}

	if _, err := h.o.CorrectEntryTime(ctx, c, h.clock.Now().Add(time.Minute)); !errors.Is(err, models.ErrValidation) {
		t.Fatalf("future entry: %v", err)
	}
	if _, err := h.o.PreSettle(ctx, PaymentInput{SessionID: in.Session.ID, Amount: 4000}); err != nil {
		t.Fatalf("pre-settle: %v", err)
	}
	if _, err := h.o.CorrectEntryTime(ctx, c, h.clock.Now().Add(-5*time.Minute)); !errors.Is(err, models.ErrConflict) {
		t.Fatalf("entry that drops fee below paid must conflict, got %v", err)
	}
	if got := h.session(t, in.Session.ID); !got.EntryTime.Equal(start) {
		t.Fatalf("rejected correction must not persist, got %s", got.EntryTime)
	}
}

func TestResetDiscounts(t *testing.T) {
	h := newHarness(t, nil)
	s := h.pending(t)
	ctx := context.Background()
	c := Correction{SessionID: s.ID, Actor: operator}

	if _, err := h.o.RegisterDiscount(ctx, DiscountInput{Correction: c, Kind: models.DiscountPercent, Value: 50}); err != nil {
		t.Fatalf("discount: %v", err)
	}
	got, err := h.o.ResetDiscounts(ctx, c)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if got.DiscountFee != 0 || got.RequestedFee != 4000 {
		t.Fatalf("expected full amount again, got %+v", got)
	}
	if cmd, _ := h.dev.Last(simulator.RequestPayment); cmd.Amount != 4000 {
		t.Fatalf("expected re-request of 4000, got %+v", cmd)
	}
}

func TestResetPayment(t *testing.T) {
	h := newHarness(t, nil)
	in := h.enter(t, testPlate)
	ctx := context.Background()

	if _, err := h.o.ResetPayment(ctx, in.Session.ID, operator, "retry"); !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("reset on running: %v", err)
	}

	h.clock.Advance(31 * time.Minute)
	h.exit(t, testPlate)
	got, err := h.o.ResetPayment(ctx, in.Session.ID, operator, "retry")
	if err != nil || got.Status != models.StatusRunning || got.ExitTime != nil {
		t.Fatalf("reset payment: %+v %v", got, err)
	}
	if h.dev.Count(simulator.CancelPayment) != 1 {
		t.Fatalf("expected terminal cancel")
	}
}

func TestStatusOperations(t *testing.T) {
	ctx := context.Background()

	t.Run("cancel running", func(t *testing.T) {
		h := newHarness(t, nil)
		in := h.enter(t, testPlate)
		got, err := h.o.CancelSession(ctx, Correction{SessionID: in.Session.ID, Actor: operator, Reason: "test vehicle"})
		if err != nil || got.Status != models.StatusCanceled {
			t.Fatalf("cancel: %+v %v", got, err)
		}
	})

	t.Run("cancel pending is invalid", func(t *testing.T) {
		h := newHarness(t, nil)
		s := h.pending(t)
		if _, err := h.o.CancelSession(ctx, Correction{SessionID: s.ID, Actor: operator}); !errors.Is(err, models.ErrInvalidTransition) {
			t.Fatalf("expected invalid transition, got %v", err)
		}
	})

	t.Run("runaway keeps owed fee", func(t *testing.T) {
		h := newHarness(t, nil)
		s := h.pending(t)
		got, err := h.o.MarkRunaway(ctx, Correction{SessionID: s.ID, Actor: operator, Reason: "tailgated"})
		if err != nil || got.Status != models.StatusRunaway || got.TotalFee != 4000 {
			t.Fatalf("runaway: %+v %v", got, err)
		}
		if h.dev.Count(simulator.CancelPayment) != 1 {
			t.Fatalf("expected pending payment cancelled")
		}
	})

	t.Run("force complete zeroes remaining", func(t *testing.T) {
		h := newHarness(t, nil)
		in := h.enter(t, testPlate)
		h.clock.Advance(48 * time.Hour)
		got, err := h.o.ForceComplete(ctx, Correction{SessionID: in.Session.ID, Actor: models.SystemActor, Reason: "stale"})
		if err != nil || got.Status != models.StatusForceCompleted || got.RemainingDue() != 0 || got.ExitTime == nil {
			t.Fatalf("force complete: %+v %v", got, err)
		}
		if !strings.Contains(got.Note, "FORCE_COMPLETE: stale") {
			t.Fatalf("expected system note, got %q", got.Note)
		}
		if _, err := h.o.ForceComplete(ctx, Correction{SessionID: in.Session.ID}); !errors.Is(err, models.ErrConflict) {
			t.Fatalf("terminal session must not be closed twice, got %v", err)
		}
	})
}

func TestGhostRecordIsNotEditable(t *testing.T) {
	h := newHarness(t, nil)
	out := h.exit(t, otherPlate)

	if _, err := h.o.UpdateNote(context.Background(), Correction{SessionID: out.Session.ID, Actor: operator}, "x"); !errors.Is(err, models.ErrConflict) {
		t.Fatalf("expected conflict on ghost record, got %v", err)
	}
}
