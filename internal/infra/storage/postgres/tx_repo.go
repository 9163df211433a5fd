package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/vietddude/geyserpg/internal/core/domain"
)

// writeTransactions inserts transaction rows keyed by signature. A redelivered
// notification hits the conflict clause and is ignored, not an error.
func writeTransactions(ctx context.Context, tx *sqlx.Tx, records []*domain.TransactionRecord) error {
	if len(records) == 0 {
		return nil
	}

	query := `
		INSERT INTO transactions (
			signature, slot, is_vote, status, instructions, logs, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (signature) DO NOTHING
	`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		instructions, err := json.Marshal(r.Instructions)
		if err != nil {
			return fmt.Errorf("failed to encode instructions: %w", err)
		}
		logs, err := json.Marshal(r.Logs)
		if err != nil {
			return fmt.Errorf("failed to encode logs: %w", err)
		}

		_, err = stmt.ExecContext(ctx,
			domain.EncodeSignature(r.Signature),
			int64(r.Slot),
			r.IsVote,
			string(r.Status),
			instructions,
			logs,
		)
		if err != nil {
			return err
		}
	}
	return nil
}
