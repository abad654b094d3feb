package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/mattjoyce/agentlive/internal/config"
	"github.com/mattjoyce/agentlive/internal/render"
	"github.com/mattjoyce/agentlive/internal/storage"
	"github.com/mattjoyce/agentlive/internal/store"
)

func runUsage(args []string) error {
	fs := flag.NewFlagSet("usage", flag.ExitOnError)
	configPath := fs.String("config", config.DefaultPath, "path to config file")
	since := fs.Duration("since", 0, "only count runs created within this window, e.g. 24h (default all)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if _, err := os.Stat(cfg.Database.Path); err != nil {
		return fmt.Errorf("no usage ledger at %s: %w", cfg.Database.Path, err)
	}

	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	var from time.Time
	if *since > 0 {
		from = time.Now().Add(-*since)
	}
	totals, err := store.NewUsageStore(db).Totals(ctx, from)
	if err != nil {
		return err
	}
	writeUsageReport(os.Stdout, totals, from)
	return nil
}

func writeUsageReport(w io.Writer, t store.UsageTotals, from time.Time) {
	scope := "all time"
	if !from.IsZero() {
		scope = "since " + humanize.Time(from)
	}
	fmt.Fprintf(w, "Usage (%s): %s runs, %s turns\n", scope,
		humanize.Comma(int64(t.Runs)), humanize.Comma(int64(t.Turns)))
	line, ok := render.FormatTotalUsage(t.Usage)
	if !ok {
		line = "Tokens: none recorded"
	}
	fmt.Fprintln(w, line)
}
