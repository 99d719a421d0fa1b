// Package memstore keeps sessions, discounts and audit entries in memory. Transactions work on a
// copy of the committed state and replace it on success, so a failed callback leaves no trace.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"autopark/backend/services/parking-service/internal/models"
	"autopark/backend/services/parking-service/internal/store"
)

type state struct {
	sessions  map[int64]models.Session
	discounts map[int64][]models.Discount
	audit     []models.AuditEntry
	now       func() time.Time
}

func (s *state) clone() *state {
	c := &state{
		sessions:  make(map[int64]models.Session, len(s.sessions)),
		discounts: make(map[int64][]models.Discount, len(s.discounts)),
		audit:     append([]models.AuditEntry(nil), s.audit...),
		now:       s.now,
	}
	for id, sess := range s.sessions {
		c.sessions[id] = sess
	}
	for id, list := range s.discounts {
		c.discounts[id] = append([]models.Discount(nil), list...)
	}
	return c
}

// Store is a transactional in-memory store.Store.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	cur  *state
}

// New returns an empty store.
func New() *Store {
	return &Store{cur: &state{
		sessions:  make(map[int64]models.Session),
		discounts: make(map[int64][]models.Discount),
		now:       time.Now,
	}}
}

// WithClock sets the clock used for created/updated timestamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur.now = now
	return s
}

// WithinTx serializes transactions and commits fn's writes atomically.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	work := s.cur.clone()
	s.mu.RUnlock()

	if err := fn(ctx, &view{st: work}); err != nil {
		return err
	}

	s.mu.Lock()
	s.cur = work
	s.mu.Unlock()
	return nil
}

func (s *Store) committed() *view {
	return &view{owner: s}
}

// Sessions reads and writes outside a transaction.
func (s *Store) Sessions() store.SessionRepository { return s.committed() }

// Discounts reads and writes outside a transaction.
func (s *Store) Discounts() store.DiscountRepository { return s.committed() }

// Audit appends outside a transaction.
func (s *Store) Audit() store.AuditRepository { return s.committed() }

// AllSessions returns a copy of every committed session ordered by id.
func (s *Store) AllSessions() []models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Session, 0, len(s.cur.sessions))
	for _, sess := range s.cur.sessions {
		out = append(out, sess)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AuditEntries returns a copy of the committed audit trail in append order.
func (s *Store) AuditEntries() []models.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.AuditEntry(nil), s.cur.audit...)
}

// view implements the repositories over a transaction's working state, or over the committed
// state when owner is set. Committed writes are serialized with transactions.
type view struct {
	st    *state
	owner *Store
}

func (v *view) Sessions() store.SessionRepository   { return v }
func (v *view) Discounts() store.DiscountRepository { return v }
func (v *view) Audit() store.AuditRepository        { return v }

func (v *view) read() func() {
	if v.owner == nil {
		return func() {}
	}
	v.owner.mu.RLock()
	v.st = v.owner.cur
	return v.owner.mu.RUnlock
}

func (v *view) write() func() {
	if v.owner == nil {
		return func() {}
	}
	v.owner.txMu.Lock()
	v.owner.mu.Lock()
	v.st = v.owner.cur
	return func() {
		v.owner.mu.Unlock()
		v.owner.txMu.Unlock()
	}
}

func (v *view) Create(_ context.Context, s *models.Session) error {
	defer v.write()()
	if _, ok := v.st.sessions[s.ID]; ok {
		return fmt.Errorf("%w: session %d exists", models.ErrConflict, s.ID)
	}
	now := v.st.now()
	s.CreatedAt, s.UpdatedAt = now, now
	v.st.sessions[s.ID] = *s
	return nil
}

func (v *view) get(id int64) (*models.Session, error) {
	sess, ok := v.st.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: session %d", models.ErrNotFound, id)
	}
	return &sess, nil
}

func (v *view) FindByID(_ context.Context, id int64) (*models.Session, error) {
	defer v.read()()
	return v.get(id)
}

func (v *view) FindByIDForUpdate(ctx context.Context, id int64) (*models.Session, error) {
	return v.FindByID(ctx, id)
}

func (v *view) open(siteID int64, match func(plate string) bool) []*models.Session {
	var out []*models.Session
	for _, sess := range v.st.sessions {
		if sess.SiteID != siteID || !sess.Status.Open() || !match(sess.Plate) {
			continue
		}
		s := sess
		out = append(out, &s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntryTime.After(out[j].EntryTime) })
	return out
}

func (v *view) FindRunningSession(_ context.Context, siteID int64, plate string) (*models.Session, error) {
	defer v.read()()
	found := v.open(siteID, func(p string) bool { return p == plate })
	if len(found) == 0 {
		return nil, nil
	}
	return found[0], nil
}

func (v *view) FindSimilarRunningSession(_ context.Context, siteID int64, plate string) (*models.Session, error) {
	defer v.read()()
	suffix := models.PlateSuffix(plate)
	found := v.open(siteID, func(p string) bool {
		return strings.HasSuffix(p, suffix) && models.SimilarPlate(plate, p)
	})
	if len(found) != 1 {
		return nil, nil
	}
	return found[0], nil
}

func (v *view) FindRecentExit(_ context.Context, siteID int64, plate string, since time.Time) (*models.Session, error) {
	defer v.read()()
	var latest *models.Session
	for _, sess := range v.st.sessions {
		if sess.SiteID != siteID || sess.Plate != plate || sess.Status != models.StatusCompleted || sess.ExitTime == nil {
			continue
		}
		if sess.ExitTime.Before(since) {
			continue
		}
		if latest == nil || sess.ExitTime.After(*latest.ExitTime) {
			s := sess
			latest = &s
		}
	}
	return latest, nil
}

func (v *view) CountOccupied(_ context.Context, siteID int64) (int, error) {
	defer v.read()()
	return len(v.open(siteID, func(string) bool { return true })), nil
}

func (v *view) mutate(id int64, fn func(s *models.Session)) error {
	defer v.write()()
	sess, ok := v.st.sessions[id]
	if !ok {
		return fmt.Errorf("%w: session %d", models.ErrNotFound, id)
	}
	fn(&sess)
	sess.UpdatedAt = v.st.now()
	v.st.sessions[id] = sess
	return nil
}

func (v *view) UpdateExit(_ context.Context, id int64, exit store.ExitInfo) error {
	return v.mutate(id, func(s *models.Session) {
		if exit.LaneID == 0 && exit.Time.IsZero() {
			s.ClearExit()
			return
		}
		lane, at := exit.LaneID, exit.Time
		s.ExitLaneID, s.ExitTime, s.ExitImageRef = &lane, &at, exit.ImageRef
	})
}

func (v *view) UpdateSessionStatus(_ context.Context, id int64, status models.SessionStatus) error {
	return v.mutate(id, func(s *models.Session) { s.Status = status })
}

func (v *view) UpdateFees(_ context.Context, id int64, fees store.Fees) error {
	return v.mutate(id, func(s *models.Session) {
		s.TotalFee, s.DiscountFee, s.PaidFee = fees.Total, fees.Discount, fees.Paid
		s.RequestedFee, s.PaidAt = fees.Requested, fees.PaidAt
	})
}

func (v *view) CloseSession(_ context.Context, closed *models.Session) error {
	return v.mutate(closed.ID, func(s *models.Session) {
		s.Status = closed.Status
		s.ExitTime, s.ExitLaneID, s.ExitImageRef = closed.ExitTime, closed.ExitLaneID, closed.ExitImageRef
		s.TotalFee, s.DiscountFee, s.PaidFee = closed.TotalFee, closed.DiscountFee, closed.PaidFee
		s.RequestedFee, s.PaidAt, s.Note = closed.RequestedFee, closed.PaidAt, closed.Note
	})
}

func (v *view) UpdateCarNumber(_ context.Context, id int64, plate string) error {
	return v.mutate(id, func(s *models.Session) { s.Plate = plate })
}

func (v *view) UpdateEntryTime(_ context.Context, id int64, entry time.Time) error {
	return v.mutate(id, func(s *models.Session) { s.EntryTime = entry })
}

func (v *view) UpdateVehicleType(_ context.Context, id int64, class models.VehicleClass) error {
	return v.mutate(id, func(s *models.Session) { s.VehicleClass = class })
}

func (v *view) UpdateNote(_ context.Context, id int64, note string) error {
	return v.mutate(id, func(s *models.Session) { s.Note = note })
}

func (v *view) Add(_ context.Context, d *models.Discount) error {
	defer v.write()()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = v.st.now()
	}
	v.st.discounts[d.SessionID] = append(v.st.discounts[d.SessionID], *d)
	return nil
}

func (v *view) ListBySession(_ context.Context, sessionID int64) ([]models.Discount, error) {
	defer v.read()()
	return append([]models.Discount(nil), v.st.discounts[sessionID]...), nil
}

func (v *view) DeleteBySession(_ context.Context, sessionID int64) (int, error) {
	defer v.write()()
	n := len(v.st.discounts[sessionID])
	delete(v.st.discounts, sessionID)
	return n, nil
}

func (v *view) Append(_ context.Context, e *models.AuditEntry) error {
	defer v.write()()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = v.st.now()
	}
	v.st.audit = append(v.st.audit, *e)
	return nil
}
