package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"autopark/backend/services/parking-service/internal/device/simulator"
	"autopark/backend/services/parking-service/internal/models"
	"autopark/backend/services/parking-service/internal/store"
)

func TestExitWithinGraceIsFree(t *testing.T) {
	h := newHarness(t, nil)
	in := h.enter(t, testPlate)
	h.clock.Advance(10 * time.Minute)

	out := h.exit(t, testPlate)
	if out.Status != OutboundExitFree || out.Fee != 0 {
		t.Fatalf("expected free exit, got %+v", out)
	}
	s := h.session(t, in.Session.ID)
	if s.Status != models.StatusCompleted || s.ExitLaneID == nil || *s.ExitLaneID != exitLane || s.TotalFee != 0 {
		t.Fatalf("unexpected session %+v", s)
	}
	if h.dev.Count(simulator.OpenGate) != 2 || h.dev.Count(simulator.RequestPayment) != 0 {
		t.Fatalf("unexpected device commands %+v", h.dev.Commands())
	}
	events := h.pub.all()
	if last := events[len(events)-1]; last.Direction != models.DirectionOut || last.Status != models.StatusCompleted {
		t.Fatalf("expected outbound event, got %+v", last)
	}
}

func TestExitRequiresPayment(t *testing.T) {
	h := newHarness(t, nil)
	s := h.pending(t)

	if s.Status != models.StatusPaymentPending || s.RequestedFee != 4000 || s.TotalFee != 4000 || s.ExitTime == nil {
		t.Fatalf("unexpected pending session %+v", s)
	}
	cmd, ok := h.dev.Last(simulator.RequestPayment)
	if !ok || cmd.Amount != 4000 || cmd.LaneID != exitLane || cmd.Plate != testPlate {
		t.Fatalf("unexpected payment request %+v", cmd)
	}
	if h.dev.Count(simulator.OpenGate) != 1 {
		t.Fatalf("exit gate must stay closed until paid")
	}
}

func TestRepeatedReadWhilePendingDoesNotRebill(t *testing.T) {
	h := newHarness(t, nil)
	h.pending(t)

	out := h.exit(t, testPlate)
	if out.Status != OutboundPaymentRequired || out.Fee != 4000 {
		t.Fatalf("expected the same request, got %+v", out)
	}
	if n := h.dev.Count(simulator.RequestPayment); n != 1 {
		t.Fatalf("expected a single payment request, got %d", n)
	}
}

func TestGhostExit(t *testing.T) {
	h := newHarness(t, nil)

	for i := 0; i < 3; i++ {
		out := h.exit(t, otherPlate)
		if out.Status != OutboundUnrecognized {
			t.Fatalf("expected unrecognized, got %+v", out)
		}
	}
	if h.dev.Count(simulator.OpenGate) != 0 {
		t.Fatalf("gate must never open for a ghost exit")
	}
	ghosts := 0
	for _, s := range h.store.AllSessions() {
		if s.Status == models.StatusGhostExit {
			ghosts++
		}
	}
	if ghosts != 1 {
		t.Fatalf("expected one ghost record, got %d", ghosts)
	}
	if n := h.alerts.count(models.AuditAlert, "GHOST_EXIT"); n != 1 {
		t.Fatalf("expected one alert, got %d", n)
	}

	h.clock.Advance(61 * time.Second)
	h.exit(t, otherPlate)
	if n := h.alerts.count(models.AuditAlert, "GHOST_EXIT"); n != 2 {
		t.Fatalf("expected a new alert after the suppression window, got %d", n)
	}
}

func TestGhostExitFreeModeOpensGate(t *testing.T) {
	h := newHarness(t, func(cfg *models.SiteConfig) { cfg.OperationMode = models.ModeFree })

	out := h.exit(t, otherPlate)
	if out.Status != OutboundExitFree {
		t.Fatalf("expected free exit, got %+v", out)
	}
	if h.dev.Count(simulator.OpenGate) != 1 {
		t.Fatalf("free mode opens the gate unconditionally")
	}
	if len(h.store.AllSessions()) != 0 {
		t.Fatalf("free mode writes no ghost record")
	}
}

func TestEmptyExitPlateIsGhost(t *testing.T) {
	h := newHarness(t, nil)
	h.enter(t, testPlate)

	out := h.exit(t, "")
	if out.Status != OutboundUnrecognized {
		t.Fatalf("expected unrecognized, got %+v", out)
	}
}

func TestUnreadableExitsAreRecordedSeparately(t *testing.T) {
	h := newHarness(t, nil)

	first := h.exit(t, "")
	h.clock.Advance(10 * time.Second)
	second := h.exit(t, "")
	if first.Session == nil || second.Session == nil || first.Session.ID == second.Session.ID {
		t.Fatalf("expected one ghost record per unreadable exit, got %+v and %+v", first, second)
	}
	if n := h.alerts.count(models.AuditAlert, "GHOST_EXIT"); n != 2 {
		t.Fatalf("expected two ghost alerts, got %d", n)
	}
}

func TestExitMatchesSimilarPlate(t *testing.T) {
	h := newHarness(t, nil)
	in := h.enter(t, testPlate)
	h.clock.Advance(5 * time.Minute)

	out := h.exit(t, "12다3456")
	if out.Status != OutboundExitFree || out.Session == nil || out.Session.ID != in.Session.ID {
		t.Fatalf("expected the similar session to exit, got %+v", out)
	}
	if h.logs.FilterMessage("exit matched by similar plate").Len() != 1 {
		t.Fatalf("expected similar-match log")
	}
}

type lockRecordingStore struct {
	store.Store
	mu     sync.Mutex
	locked []int64
}

func (r *lockRecordingStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return r.Store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return fn(ctx, lockRecordingTx{Tx: tx, rec: r})
	})
}

func (r *lockRecordingStore) ids() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.locked...)
}

type lockRecordingTx struct {
	store.Tx
	rec *lockRecordingStore
}

func (t lockRecordingTx) Sessions() store.SessionRepository {
	return lockRecordingSessions{SessionRepository: t.Tx.Sessions(), rec: t.rec}
}

type lockRecordingSessions struct {
	store.SessionRepository
	rec *lockRecordingStore
}

func (s lockRecordingSessions) FindByIDForUpdate(ctx context.Context, id int64) (*models.Session, error) {
	s.rec.mu.Lock()
	s.rec.locked = append(s.rec.locked, id)
	s.rec.mu.Unlock()
	return s.SessionRepository.FindByIDForUpdate(ctx, id)
}

func TestSimilarMatchLocksSessionRow(t *testing.T) {
	h := newHarness(t, nil)
	in := h.enter(t, testPlate)
	h.clock.Advance(5 * time.Minute)

	rec := &lockRecordingStore{Store: h.store}
	deps := h.deps
	deps.Store = rec
	o := New(deps)

	out, err := o.ProcessOutbound(context.Background(), OutboundInput{SiteID: testSite, LaneID: exitLane, Plate: "12다3456"})
	if err != nil {
		t.Fatalf("outbound: %v", err)
	}
	if out.Session == nil || out.Session.ID != in.Session.ID {
		t.Fatalf("expected the similar session to exit, got %+v", out)
	}
	if locked := rec.ids(); len(locked) == 0 || locked[0] != in.Session.ID {
		t.Fatalf("expected session %d to be locked before exit, got %v", in.Session.ID, locked)
	}
}

func TestFreeModeWaivesFee(t *testing.T) {
	h := newHarness(t, func(cfg *models.SiteConfig) { cfg.OperationMode = models.ModeFree })
	in := h.enter(t, testPlate)
	h.clock.Advance(2 * time.Hour)

	out := h.exit(t, testPlate)
	if out.Status != OutboundExitFree {
		t.Fatalf("expected free exit, got %+v", out)
	}
	s := h.session(t, in.Session.ID)
	if s.RemainingDue() != 0 || s.DiscountFee != s.TotalFee || s.TotalFee == 0 {
		t.Fatalf("expected waived fee, got %+v", s)
	}
}

func TestMemberExitsFree(t *testing.T) {
	h := newHarness(t, nil)
	h.dir.AddMember(testSite, testPlate, start.Add(-24*time.Hour), time.Time{})
	in := h.enter(t, testPlate)
	h.clock.Advance(5 * time.Hour)

	out := h.exit(t, testPlate)
	if out.Status != OutboundExitFree {
		t.Fatalf("expected member to exit free, got %+v", out)
	}
	if s := h.session(t, in.Session.ID); s.TotalFee != 0 || s.VehicleClass != models.VehicleMember {
		t.Fatalf("unexpected member session %+v", s)
	}
}

func TestManualExit(t *testing.T) {
	h := newHarness(t, nil)
	in := h.enter(t, testPlate)
	h.clock.Advance(31 * time.Minute)

	out, err := h.o.ManualExit(context.Background(), ManualExitInput{SessionID: in.Session.ID, LaneID: exitLane, Actor: operator, Reason: "plate unreadable"})
	if err != nil || out.Status != OutboundPaymentRequired || out.Fee != 4000 {
		t.Fatalf("manual exit: %+v %v", out, err)
	}
	audit := h.store.AuditEntries()
	if last := audit[len(audit)-1]; last.Kind != models.AuditOperator || last.Actor != operator.ID {
		t.Fatalf("expected operator log, got %+v", last)
	}

	if _, err := h.o.ManualExit(context.Background(), ManualExitInput{SessionID: in.Session.ID, LaneID: 99}); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected unknown lane error, got %v", err)
	}
}
