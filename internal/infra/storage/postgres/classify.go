package postgres

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vietddude/geyserpg/internal/infra/storage"
)

// classify maps a raw store error into the pipeline's taxonomy. Integrity and
// schema failures are permanent; everything else is assumed transient, with
// connection-level failures flagged so the supervisor recreates the
// connection before retrying.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		class := pgErr.Code
		if len(class) >= 2 {
			class = class[:2]
		}
		switch class {
		case "23", "42", "22":
			// integrity_constraint_violation, syntax_or_access, data_exception
			return &storage.PermanentError{Err: err}
		case "08":
			// connection_exception
			return &storage.TransientError{Err: err, ConnectionLost: true}
		case "40":
			// serialization_failure, deadlock_detected
			return &storage.TransientError{Err: err}
		case "57":
			// operator_intervention: admin_shutdown, crash_shutdown kill the
			// connection; query_canceled does not.
			if pgErr.Code == "57014" {
				return &storage.TransientError{Err: err}
			}
			return &storage.TransientError{Err: err, ConnectionLost: true}
		}
		return &storage.TransientError{Err: err}
	}

	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		pgconn.SafeToRetry(err) {
		return &storage.TransientError{Err: err, ConnectionLost: true}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &storage.TransientError{Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &storage.TransientError{Err: err, ConnectionLost: !netErr.Timeout()}
	}

	if strings.Contains(err.Error(), "conn closed") {
		return &storage.TransientError{Err: err, ConnectionLost: true}
	}

	// Unknown failures are retried; a misclassified permanent error burns
	// the retry budget and ends up dead-lettered.
	return &storage.TransientError{Err: err}
}
