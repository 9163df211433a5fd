// Package worker holds background maintenance workers that run beside the
// ingestion pipeline.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/vietddude/geyserpg/internal/core/config"
)

// Pruner deletes historical transaction and slot rows past the retention
// period. Account rows are current state and are left alone.
type Pruner struct {
	cfg config.RetentionConfig
	db  *sqlx.DB
}

// NewPruner creates a new Pruner worker over its own database handle.
func NewPruner(cfg config.RetentionConfig, db *sqlx.DB) *Pruner {
	return &Pruner{cfg: cfg, db: db}
}

// Start runs the pruner loop until the context is cancelled.
func (p *Pruner) Start(ctx context.Context) {
	if p.cfg.Period <= 0 {
		return
	}

	// Check at 10% of the retention period, clamped to [1m, 1h].
	interval := min(p.cfg.Period/10, 1*time.Hour)
	interval = max(interval, 1*time.Minute)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *Pruner) prune(ctx context.Context) {
	cutoff := time.Now().Add(-p.cfg.Period)

	res, err := p.db.ExecContext(ctx, "DELETE FROM transactions WHERE created_at < $1", cutoff)
	if err != nil {
		slog.Error("Failed to prune transactions", "error", err)
	} else if n, _ := res.RowsAffected(); n > 0 {
		slog.Info("Pruned transactions", "rows", n, "cutoff", cutoff)
	}

	res, err = p.db.ExecContext(ctx, "DELETE FROM slot WHERE updated_on < $1", cutoff)
	if err != nil {
		slog.Error("Failed to prune slots", "error", err)
	} else if n, _ := res.RowsAffected(); n > 0 {
		slog.Info("Pruned slots", "rows", n, "cutoff", cutoff)
	}
}

// Close releases the pruner's database handle.
func (p *Pruner) Close() error {
	return p.db.Close()
}
