package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"autopark/backend/services/parking-service/internal/device/simulator"
	"autopark/backend/services/parking-service/internal/models"
)

func TestInboundCreatesSession(t *testing.T) {
	h := newHarness(t, nil)

	res := h.enter(t, " 12가-3456 ")
	if res.Status != InboundSuccess || res.Session == nil {
		t.Fatalf("expected success, got %+v", res)
	}
	s := h.session(t, res.Session.ID)
	if s.Plate != testPlate || s.Status != models.StatusRunning || !s.EntryTime.Equal(start) || s.EntryLaneID != entryLane {
		t.Fatalf("unexpected session %+v", s)
	}
	if h.dev.Count(simulator.OpenGate) != 1 {
		t.Fatalf("expected gate opened once, got %d", h.dev.Count(simulator.OpenGate))
	}
	audit := h.store.AuditEntries()
	if len(audit) != 1 || audit[0].Kind != models.AuditInbound {
		t.Fatalf("expected one inbound log, got %+v", audit)
	}
	events := h.pub.all()
	if len(events) != 1 || events[0].Direction != models.DirectionIn || events[0].SessionID != s.ID {
		t.Fatalf("expected one inbound event, got %+v", events)
	}
}

func TestDuplicateInbound(t *testing.T) {
	h := newHarness(t, nil)
	first := h.enter(t, testPlate)

	second := h.enter(t, testPlate)
	if second.Status != InboundDuplicate {
		t.Fatalf("expected duplicate, got %+v", second)
	}
	if second.Session == nil || second.Session.ID != first.Session.ID {
		t.Fatalf("duplicate must point at the open session, got %+v", second.Session)
	}
	if n := len(h.store.AllSessions()); n != 1 {
		t.Fatalf("expected one session row, got %d", n)
	}
	if h.dev.Count(simulator.OpenGate) != 1 {
		t.Fatalf("gate must not open for a duplicate")
	}
}

func TestConcurrentInboundCreatesOneSession(t *testing.T) {
	h := newHarness(t, nil)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := h.o.ProcessInbound(context.Background(), InboundInput{SiteID: testSite, LaneID: entryLane, Plate: testPlate})
			if err != nil {
				t.Errorf("inbound: %v", err)
				return
			}
			if res.Status == InboundSuccess {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if success != 1 {
		t.Fatalf("expected exactly one success, got %d", success)
	}
	if n := len(h.store.AllSessions()); n != 1 {
		t.Fatalf("expected one session row, got %d", n)
	}
}

func TestInboundLockHeldIsDuplicate(t *testing.T) {
	h := newHarness(t, nil)
	h.deps.Locks = stubLocker{ok: false}
	o := New(h.deps)

	res, err := o.ProcessInbound(context.Background(), InboundInput{SiteID: testSite, LaneID: entryLane, Plate: testPlate})
	if err != nil || res.Status != InboundDuplicate {
		t.Fatalf("expected duplicate while lock is held, got %+v %v", res, err)
	}
	if len(h.store.AllSessions()) != 0 {
		t.Fatalf("no session may be created without the lock")
	}
}

func TestInboundLockErrorPropagates(t *testing.T) {
	h := newHarness(t, nil)
	h.deps.Locks = stubLocker{err: fmt.Errorf("%w: redis down", models.ErrLock)}
	o := New(h.deps)

	_, err := o.ProcessInbound(context.Background(), InboundInput{SiteID: testSite, LaneID: entryLane, Plate: testPlate})
	if !errors.Is(err, models.ErrLock) {
		t.Fatalf("expected lock error, got %v", err)
	}
	if len(h.store.AllSessions()) != 0 {
		t.Fatalf("no session may be created on lock failure")
	}
}

func TestBlacklistBlock(t *testing.T) {
	h := newHarness(t, nil)
	h.dir.Blacklist(testSite, testPlate, "stolen")

	res := h.enter(t, testPlate)
	if res.Status != InboundBlocked {
		t.Fatalf("expected blocked, got %+v", res)
	}
	if len(h.store.AllSessions()) != 0 {
		t.Fatalf("blocked vehicle must not get a session")
	}
	if h.alerts.count(models.AuditAlert, "BLACKLIST_BLOCK") != 1 {
		t.Fatalf("expected one blacklist alert, got %+v", h.alerts.entries)
	}
	if h.dev.Count(simulator.OpenGate) != 0 {
		t.Fatalf("gate must stay closed")
	}
	if cmd, ok := h.dev.Last(simulator.Display); !ok || cmd.Line1 != msgBlocked {
		t.Fatalf("expected deterrent display, got %+v", cmd)
	}
}

func TestBlacklistWarnAdmits(t *testing.T) {
	h := newHarness(t, func(cfg *models.SiteConfig) { cfg.BlacklistBehavior = models.BlacklistWarn })
	h.dir.Blacklist(testSite, testPlate, "unpaid")

	res := h.enter(t, testPlate)
	if res.Status != InboundSuccess {
		t.Fatalf("expected success, got %+v", res)
	}
	if h.alerts.count(models.AuditAlert, "BLACKLIST_WARN") != 1 {
		t.Fatalf("expected warn alert")
	}
	if cmd, _ := h.dev.Last(simulator.Display); cmd.Line1 != msgWarn {
		t.Fatalf("expected warn display, got %+v", cmd)
	}
	if h.logs.FilterMessage("blacklisted plate admitted").Len() != 1 {
		t.Fatalf("expected warning log")
	}
}

func TestCapacity(t *testing.T) {
	h := newHarness(t, func(cfg *models.SiteConfig) { cfg.Capacity = 1 })
	member := "56다7890"
	h.dir.AddMember(testSite, member, start.Add(-time.Hour), time.Time{})

	if res := h.enter(t, testPlate); res.Status != InboundSuccess {
		t.Fatalf("first entry: %+v", res)
	}
	if res := h.enter(t, otherPlate); res.Status != InboundFull {
		t.Fatalf("expected full, got %+v", res)
	}
	res := h.enter(t, member)
	if res.Status != InboundSuccess || res.Session.VehicleClass != models.VehicleMember {
		t.Fatalf("members skip the capacity check, got %+v", res)
	}
	if h.dev.Count(simulator.OpenGate) != 2 {
		t.Fatalf("expected two gate openings, got %d", h.dev.Count(simulator.OpenGate))
	}
}

func TestCapacitySkippedInFreeMode(t *testing.T) {
	h := newHarness(t, func(cfg *models.SiteConfig) {
		cfg.Capacity = 1
		cfg.OperationMode = models.ModeFree
	})
	h.enter(t, testPlate)
	if res := h.enter(t, otherPlate); res.Status != InboundSuccess {
		t.Fatalf("free mode ignores capacity, got %+v", res)
	}
}

func TestAntiPassbackObservedNotEnforced(t *testing.T) {
	h := newHarness(t, func(cfg *models.SiteConfig) { cfg.ReEntryLimitMinutes = 30 })

	h.enter(t, testPlate)
	h.clock.Advance(5 * time.Minute)
	if out := h.exit(t, testPlate); out.Status != OutboundExitFree {
		t.Fatalf("expected free exit inside grace, got %+v", out)
	}
	h.clock.Advance(2 * time.Minute)

	res := h.enter(t, testPlate)
	if res.Status != InboundSuccess {
		t.Fatalf("re-entry must not be blocked, got %+v", res)
	}
	if h.logs.FilterMessage("re-entry within anti-passback window").Len() != 1 {
		t.Fatalf("expected anti-passback observation to be logged")
	}
	audit := h.store.AuditEntries()
	last := audit[len(audit)-1]
	if _, ok := last.Payload["anti_passback"]; !ok {
		t.Fatalf("expected anti-passback flag on inbound log, got %+v", last)
	}
}

func TestUnrecognizedHold(t *testing.T) {
	h := newHarness(t, nil)

	res := h.enter(t, "")
	if res.Status != InboundUnrecognized {
		t.Fatalf("expected unrecognized, got %+v", res)
	}
	if len(h.store.AllSessions()) != 0 || h.dev.Count(simulator.OpenGate) != 0 {
		t.Fatalf("held vehicle must not get a session or an open gate")
	}
	if h.alerts.count(models.AuditAlert, "UNRECOGNIZED_ENTRY") != 1 {
		t.Fatalf("expected operator alert")
	}
}

func TestUnrecognizedAdmitUsesPlaceholder(t *testing.T) {
	h := newHarness(t, func(cfg *models.SiteConfig) { cfg.UnrecognizedBehavior = models.UnrecognizedAdmit })

	first := h.enter(t, "")
	second := h.enter(t, "")
	if first.Status != InboundSuccess || second.Status != InboundSuccess {
		t.Fatalf("expected both admitted, got %+v / %+v", first, second)
	}
	if !strings.HasPrefix(first.Session.Plate, placeholderPlatePrefix) || first.Session.Plate == second.Session.Plate {
		t.Fatalf("expected distinct placeholder plates, got %q and %q", first.Session.Plate, second.Session.Plate)
	}
}

func TestDeviceFailureKeepsSession(t *testing.T) {
	h := newHarness(t, nil)
	h.dev.Fail(simulator.OpenGate, true)

	res := h.enter(t, testPlate)
	if res.Status != InboundSuccess {
		t.Fatalf("expected success despite gate failure, got %+v", res)
	}
	if len(h.store.AllSessions()) != 1 {
		t.Fatalf("session must survive a device failure")
	}
	if h.alerts.count(models.AuditDeviceEvent, "DEVICE_FAILURE") != 1 {
		t.Fatalf("expected a device event log")
	}
	if h.logs.FilterMessage("device command failed").Len() != 1 {
		t.Fatalf("expected warning log for the failed command")
	}
}

func TestUnknownLaneIsNotFound(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.o.ProcessInbound(context.Background(), InboundInput{SiteID: testSite, LaneID: 99, Plate: testPlate})
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	_, err = h.o.ProcessInbound(context.Background(), InboundInput{SiteID: 0, LaneID: entryLane, Plate: testPlate})
	if !errors.Is(err, models.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestManualEntry(t *testing.T) {
	h := newHarness(t, nil)
	h.dir.Blacklist(testSite, testPlate, "stolen")
	ctx := context.Background()

	res, err := h.o.ManualEntry(ctx, ManualEntryInput{
		SiteID:    testSite,
		LaneID:    entryLane,
		Plate:     testPlate,
		EntryTime: start.Add(-time.Hour),
		Actor:     operator,
		Reason:    "camera offline",
	})
	if err != nil || res.Status != InboundSuccess {
		t.Fatalf("manual entry: %+v %v", res, err)
	}
	if !res.Session.EntryTime.Equal(start.Add(-time.Hour)) || res.Session.Note != "camera offline" {
		t.Fatalf("unexpected session %+v", res.Session)
	}
	audit := h.store.AuditEntries()
	if len(audit) != 1 || audit[0].Kind != models.AuditOperator || audit[0].Actor != operator.ID {
		t.Fatalf("expected operator log, got %+v", audit)
	}

	dup, err := h.o.ManualEntry(ctx, ManualEntryInput{SiteID: testSite, LaneID: entryLane, Plate: testPlate, Actor: operator})
	if err != nil || dup.Status != InboundDuplicate {
		t.Fatalf("expected duplicate, got %+v %v", dup, err)
	}

	if _, err := h.o.ManualEntry(ctx, ManualEntryInput{SiteID: testSite, LaneID: entryLane, Plate: otherPlate, EntryTime: start.Add(time.Hour)}); !errors.Is(err, models.ErrValidation) {
		t.Fatalf("future entry must be rejected, got %v", err)
	}
}
