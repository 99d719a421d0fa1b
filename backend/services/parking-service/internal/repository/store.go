package repository

import (
	"context"
	"database/sql"

	libdb "autopark/backend/libs/db"
	"autopark/backend/services/parking-service/internal/store"
)

// Store is the Postgres implementation of store.Store.
type Store struct {
	db *sql.DB
}

// NewStore wraps a connection pool.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

type txRepos struct {
	sessions  *SessionRepository
	discounts *DiscountRepository
	audit     *AuditRepository
}

func (t txRepos) Sessions() store.SessionRepository   { return t.sessions }
func (t txRepos) Discounts() store.DiscountRepository { return t.discounts }
func (t txRepos) Audit() store.AuditRepository         { return t.audit }

func reposOn(db dbtx) txRepos {
	return txRepos{
		sessions:  NewSessionRepository(db),
		discounts: NewDiscountRepository(db),
		audit:     NewAuditRepository(db),
	}
}

// WithinTx runs fn with repositories bound to one transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return libdb.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		return fn(ctx, reposOn(tx))
	})
}

// Sessions returns a repository outside any transaction.
func (s *Store) Sessions() store.SessionRepository { return NewSessionRepository(s.db) }

// Discounts returns a repository outside any transaction.
func (s *Store) Discounts() store.DiscountRepository { return NewDiscountRepository(s.db) }

// Audit returns a repository outside any transaction.
func (s *Store) Audit() store.AuditRepository { return NewAuditRepository(s.db) }
