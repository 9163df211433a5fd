package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/vietddude/geyserpg/internal/core/domain"
)

// BatchStore is one transactional store connection. Each persistence worker
// owns exactly one for its lifetime; connections are never shared.
type BatchStore interface {
	// WriteBatch commits every record in the batch in a single transaction,
	// or none of them. Re-executing the same batch after a failure must not
	// corrupt state (upsert / conflict-ignore semantics).
	WriteBatch(ctx context.Context, batch *domain.Batch) error

	// Reconnect tears down the underlying connection and establishes a fresh
	// one. Called by the supervisor after a connection-level failure.
	Reconnect(ctx context.Context) error

	Close() error
}

// StoreFactory opens a new BatchStore. One call per worker at pool start.
type StoreFactory func(ctx context.Context) (BatchStore, error)

// TransientError marks a store failure worth retrying: timeouts, connection
// resets, serialization conflicts.
type TransientError struct {
	Err error
	// ConnectionLost signals the connection must be recreated before retrying.
	ConnectionLost bool
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient store error: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks a store failure retrying cannot fix: constraint
// violations from malformed records, schema mismatch. The offending batch is
// dropped, never retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return fmt.Sprintf("permanent store error: %v", e.Err) }
func (e *PermanentError) Unwrap() error { return e.Err }

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsConnectionLost reports whether err requires recreating the connection.
func IsConnectionLost(err error) bool {
	var te *TransientError
	return errors.As(err, &te) && te.ConnectionLost
}

// IsPermanent reports whether err is a non-retryable store failure.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
