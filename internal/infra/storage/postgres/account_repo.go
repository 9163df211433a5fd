package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/vietddude/geyserpg/internal/core/domain"
)

// writeAccounts upserts account rows keyed by pubkey. The write-version guard
// makes the statement a no-op for stale versions, so redelivery across forks
// can never clobber a newer committed value.
func writeAccounts(ctx context.Context, tx *sqlx.Tx, accounts []*domain.AccountUpdate) error {
	if len(accounts) == 0 {
		return nil
	}

	query := `
		INSERT INTO account (
			pubkey, slot, owner, lamports, executable, rent_epoch, data, write_version, updated_on
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (pubkey) DO UPDATE SET
			slot = EXCLUDED.slot,
			owner = EXCLUDED.owner,
			lamports = EXCLUDED.lamports,
			executable = EXCLUDED.executable,
			rent_epoch = EXCLUDED.rent_epoch,
			data = EXCLUDED.data,
			write_version = EXCLUDED.write_version,
			updated_on = EXCLUDED.updated_on
		WHERE account.write_version < EXCLUDED.write_version
	`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, a := range accounts {
		_, err := stmt.ExecContext(ctx,
			domain.EncodePubkey(a.Pubkey),
			int64(a.Slot),
			domain.EncodePubkey(a.Owner),
			int64(a.Lamports),
			a.Executable,
			int64(a.RentEpoch),
			a.Data,
			int64(a.WriteVersion),
		)
		if err != nil {
			return err
		}
	}
	return nil
}
