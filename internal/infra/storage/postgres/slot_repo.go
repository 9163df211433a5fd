package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/vietddude/geyserpg/internal/core/domain"
)

// writeSlots upserts the latest status per slot number. Parent is kept from an
// earlier notification when a later one omits it.
func writeSlots(ctx context.Context, tx *sqlx.Tx, slots []*domain.SlotStatusUpdate) error {
	if len(slots) == 0 {
		return nil
	}

	query := `
		INSERT INTO slot (slot, parent, status, updated_on)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (slot) DO UPDATE SET
			parent = COALESCE(EXCLUDED.parent, slot.parent),
			status = EXCLUDED.status,
			updated_on = EXCLUDED.updated_on
	`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, s := range slots {
		parent := sql.NullInt64{}
		if s.Parent != nil {
			parent = sql.NullInt64{Int64: int64(*s.Parent), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, int64(s.Slot), parent, string(s.Status)); err != nil {
			return err
		}
	}
	return nil
}
