package postgres

import (
	"context"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"

	"github.com/vietddude/geyserpg/internal/core/domain"
	"github.com/vietddude/geyserpg/internal/infra/storage"
)

// Store is one worker's PostgreSQL connection. It implements
// storage.BatchStore; the owning worker serializes all calls, the mutex only
// guards Reconnect against a late Close during shutdown.
type Store struct {
	cfg Config

	mu sync.Mutex
	db *sqlx.DB
}

// NewStore opens a store bound to a single connection.
func NewStore(ctx context.Context, cfg Config) (storage.BatchStore, error) {
	db, err := connect(ctx, cfg)
	if err != nil {
		return nil, classify(err)
	}
	return &Store{cfg: cfg, db: db}, nil
}

// Factory returns a StoreFactory for the worker pool.
func Factory(cfg Config) storage.StoreFactory {
	return func(ctx context.Context) (storage.BatchStore, error) {
		return NewStore(ctx, cfg)
	}
}

// WriteBatch commits all records of the batch in one transaction. Statements
// are upserts or conflict-ignores, so re-running the identical batch after an
// ambiguous failure cannot double-apply or corrupt rows.
func (s *Store) WriteBatch(ctx context.Context, batch *domain.Batch) error {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return &storage.TransientError{Err: fmt.Errorf("store is closed"), ConnectionLost: true}
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback()

	// Bound every statement of this transaction; a stuck server surfaces as
	// a transient query_canceled instead of a stalled worker.
	timeout := s.cfg.statementTimeout().Milliseconds()
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL statement_timeout = %d", timeout)); err != nil {
		return classify(err)
	}

	switch batch.Kind {
	case domain.KindAccount:
		err = writeAccounts(ctx, tx, batch.Accounts)
	case domain.KindTransaction:
		err = writeTransactions(ctx, tx, batch.Transactions)
	case domain.KindSlot:
		err = writeSlots(ctx, tx, batch.Slots)
	case domain.KindTokenAccount:
		err = writeTokenAccounts(ctx, tx, batch.TokenAccounts)
	default:
		return &storage.PermanentError{Err: fmt.Errorf("unknown batch kind %q", batch.Kind)}
	}
	if err != nil {
		return classify(err)
	}

	if err := tx.Commit(); err != nil {
		return classify(err)
	}
	return nil
}

// Reconnect drops the current connection and dials a new one.
func (s *Store) Reconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		_ = s.db.Close()
		s.db = nil
	}
	db, err := connect(ctx, s.cfg)
	if err != nil {
		return classify(err)
	}
	s.db = db
	return nil
}

// Close releases the connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
