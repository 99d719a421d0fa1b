package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"autopark/backend/services/parking-service/internal/models"
	"autopark/backend/services/parking-service/internal/store"
)

func TestRollbackDiscardsWrites(t *testing.T) {
	s := New()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.Sessions().Create(ctx, &models.Session{ID: 1, SiteID: 1, Plate: "12가3456", Status: models.StatusRunning}); err != nil {
			return err
		}
		if err := tx.Audit().Append(ctx, &models.AuditEntry{ID: 1, Kind: models.AuditInbound}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}
	if len(s.AllSessions()) != 0 || len(s.AuditEntries()) != 0 {
		t.Fatalf("rolled back writes must not be visible")
	}
}

func TestCommitAndLookups(t *testing.T) {
	s := New()
	ctx := context.Background()
	entry := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	err := s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.Sessions().Create(ctx, &models.Session{ID: 7, SiteID: 1, Plate: "12가3456", Status: models.StatusRunning, EntryTime: entry})
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	got, err := s.Sessions().FindRunningSession(ctx, 1, "12가3456")
	if err != nil || got == nil || got.ID != 7 {
		t.Fatalf("exact lookup: %+v %v", got, err)
	}
	similar, err := s.Sessions().FindSimilarRunningSession(ctx, 1, "12나3456")
	if err != nil || similar == nil || similar.ID != 7 {
		t.Fatalf("similar lookup: %+v %v", similar, err)
	}
	if n, _ := s.Sessions().CountOccupied(ctx, 1); n != 1 {
		t.Fatalf("expected one occupied, got %d", n)
	}
	if _, err := s.Sessions().FindByID(ctx, 99); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDirectoryMembershipWindow(t *testing.T) {
	d := NewDirectory()
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	d.AddMember(1, "12가3456", from, from.AddDate(0, 1, 0))

	ctx := context.Background()
	if ok, _ := d.IsMember(ctx, 1, "12가3456", from.AddDate(0, 0, 10)); !ok {
		t.Fatalf("expected active membership")
	}
	if ok, _ := d.IsMember(ctx, 1, "12가3456", from.AddDate(0, 2, 0)); ok {
		t.Fatalf("expected expired membership")
	}
}
