package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/vietddude/geyserpg/internal/core/domain"
)

// writeTokenAccounts maintains the token-owner index. Rows are keyed by
// (pubkey, owner, mint); the slot guard keeps an index row from moving
// backwards when updates are redelivered.
func writeTokenAccounts(ctx context.Context, tx *sqlx.Tx, rows []domain.TokenAccountRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `
		INSERT INTO spl_token_account AS entry (pubkey, owner, mint, slot)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (pubkey, owner, mint) DO UPDATE SET
			slot = EXCLUDED.slot
		WHERE entry.slot < EXCLUDED.slot
	`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.Pubkey, r.Owner, r.Mint, int64(r.Slot)); err != nil {
			return err
		}
	}
	return nil
}
