package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/geyserpg/internal/core/config"
	"github.com/vietddude/geyserpg/internal/infra/storage/postgres"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show row counts and slot progress from the store",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "TABLE\tROWS")
	for _, table := range []string{"account", "transactions", "slot", "spl_token_account"} {
		var count int64
		if err := db.GetContext(ctx, &count, "SELECT COUNT(*) FROM "+table); err != nil {
			slog.Error("Failed to count rows", "table", table, "error", err)
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\n", table, count)
	}
	_ = w.Flush()

	rows, err := db.QueryContext(ctx, "SELECT status, COUNT(*), MAX(slot) FROM slot GROUP BY status ORDER BY status")
	if err != nil {
		slog.Error("Failed to query slot progress", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = rows.Close()
	}()

	fmt.Println()
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "STATUS\tSLOTS\tHIGHEST")
	for rows.Next() {
		var status string
		var count, highest int64
		if err := rows.Scan(&status, &count, &highest); err != nil {
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\n", status, count, highest)
	}
	_ = w.Flush()
}
