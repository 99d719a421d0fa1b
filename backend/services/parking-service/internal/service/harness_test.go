package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"autopark/backend/services/parking-service/internal/device/simulator"
	"autopark/backend/services/parking-service/internal/lock"
	"autopark/backend/services/parking-service/internal/models"
	"autopark/backend/services/parking-service/internal/repository/memstore"
)

const (
	testSite  int64 = 1
	entryLane int64 = 10
	exitLane  int64 = 20
)

const (
	testPlate  = "12가3456"
	otherPlate = "34나5678"
)

var start = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type seqIDs struct {
	n atomic.Int64
}

func (s *seqIDs) Next() int64 {
	return s.n.Add(1)
}

type recordingAlerts struct {
	mu      sync.Mutex
	entries []models.AuditEntry
}

func (r *recordingAlerts) Alert(_ context.Context, e models.AuditEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

func (r *recordingAlerts) count(kind models.AuditKind, action string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if e.Kind == kind && (action == "" || e.Action == action) {
			n++
		}
	}
	return n
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.Event
}

func (r *recordingPublisher) Publish(_ context.Context, e models.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingPublisher) all() []models.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Event(nil), r.events...)
}

type stubLocker struct {
	ok  bool
	err error
}

func (l stubLocker) Acquire(context.Context, string, string, string) (bool, error) { return l.ok, l.err }
func (l stubLocker) Release(context.Context, string, string) bool { return true }

type harness struct {
	o      *Orchestrator
	store  *memstore.Store
	dir    *memstore.Directory
	dev    *simulator.Simulator
	alerts *recordingAlerts
	pub    *recordingPublisher
	clock  *fakeClock
	logs   *observer.ObservedLogs
	deps   Deps
}

func standardSite() models.SiteConfig {
	return models.SiteConfig{
		SiteID:                    testSite,
		Name:                      "central",
		OperationMode:             models.ModeNormal,
		BlacklistBehavior:         models.BlacklistBlock,
		UnrecognizedBehavior:      models.UnrecognizedHold,
		PreSettlementGraceMinutes: 15,
		Fee: models.FeePolicy{
			BaseTimeMinutes:  30,
			BaseFee:          3000,
			UnitTimeMinutes:  10,
			UnitFee:          1000,
			GraceTimeMinutes: 10,
		},
	}
}

func newHarness(t *testing.T, configure func(cfg *models.SiteConfig)) *harness {
	t.Helper()
	cfg := standardSite()
	if configure != nil {
		configure(&cfg)
	}

	clock := &fakeClock{now: start}
	dir := memstore.NewDirectory()
	dir.PutSite(cfg)
	dir.PutLane(models.Lane{ID: entryLane, SiteID: testSite, Name: "in", Direction: models.LaneIn})
	dir.PutLane(models.Lane{ID: exitLane, SiteID: testSite, Name: "out", Direction: models.LaneOut})

	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })

	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)

	h := &harness{
		store:  memstore.New().WithClock(clock.Now),
		dir:    dir,
		dev:    simulator.New(zap.NewNop()),
		alerts: &recordingAlerts{},
		pub:    &recordingPublisher{},
		clock:  clock,
		logs:   logs,
	}
	h.deps = Deps{
		Store:     h.store,
		Directory: dir,
		Devices:   h.dev,
		Locks:     lock.NewManager(client, lock.DefaultTTL, logger),
		LockKey:   lock.InboundKey,
		Publisher: h.pub,
		Alerts:    h.alerts,
		IDs:       &seqIDs{},
		Logger:    logger,
		Now:       clock.Now,
	}
	h.o = New(h.deps)
	return h
}

func (h *harness) enter(t *testing.T, plate string) InboundResult {
	t.Helper()
	res, err := h.o.ProcessInbound(context.Background(), InboundInput{SiteID: testSite, LaneID: entryLane, Plate: plate})
	if err != nil {
		t.Fatalf("inbound %s: %v", plate, err)
	}
	return res
}

func (h *harness) exit(t *testing.T, plate string) OutboundResult {
	t.Helper()
	res, err := h.o.ProcessOutbound(context.Background(), OutboundInput{SiteID: testSite, LaneID: exitLane, Plate: plate})
	if err != nil {
		t.Fatalf("outbound %s: %v", plate, err)
	}
	return res
}

func (h *harness) session(t *testing.T, id int64) *models.Session {
	t.Helper()
	s, err := h.o.GetSession(context.Background(), id)
	if err != nil {
		t.Fatalf("get session %d: %v", id, err)
	}
	return s
}

// pending parks testPlate for 31 minutes and drives it to PAYMENT_PENDING at 4000.
func (h *harness) pending(t *testing.T) *models.Session {
	t.Helper()
	in := h.enter(t, testPlate)
	h.clock.Advance(31 * time.Minute)
	out := h.exit(t, testPlate)
	if out.Status != OutboundPaymentRequired || out.Fee != 4000 {
		t.Fatalf("expected payment of 4000, got %+v", out)
	}
	return h.session(t, in.Session.ID)
}

var operator = models.Actor{ID: "op-1", Name: "Alice"}
