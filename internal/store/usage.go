package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mattjoyce/agentlive/internal/stream"
)

// UsageRow is one per-turn usage report of a run.
type UsageRow struct {
	RunID         string            `json:"run_id"`
	Turn          int               `json:"turn"`
	Usage         stream.TokenUsage `json:"usage"`
	ParallelCount int               `json:"parallel_count"`
	CreatedAt     time.Time         `json:"created_at"`
}

// UsageTotals aggregates usage across runs.
type UsageTotals struct {
	Runs  int               `json:"runs"`
	Turns int               `json:"turns"`
	Usage stream.TokenUsage `json:"usage"`
}

// UsageStore provides operations on the usage table.
type UsageStore struct {
	db *sql.DB
}

// NewUsageStore creates a new UsageStore.
func NewUsageStore(db *sql.DB) *UsageStore {
	return &UsageStore{db: db}
}

// Record appends one per-turn report for runID.
func (s *UsageStore) Record(ctx context.Context, runID string, turn int, u stream.TokenUsage, parallelCount int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage (run_id, turn, input_tokens, output_tokens, cache_creation_input_tokens,
		 cache_read_input_tokens, parallel_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, turn, u.InputTokens, u.OutputTokens, u.CacheCreationInputTokens,
		u.CacheReadInputTokens, parallelCount, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert usage: %w", err)
	}
	return nil
}

// ListByRun returns the reports of runID in turn order.
func (s *UsageStore) ListByRun(ctx context.Context, runID string) ([]*UsageRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, turn, input_tokens, output_tokens, cache_creation_input_tokens,
		 cache_read_input_tokens, parallel_count, created_at
		 FROM usage WHERE run_id = ? ORDER BY turn ASC, id ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("list usage: %w", err)
	}
	defer rows.Close()

	var out []*UsageRow
	for rows.Next() {
		var r UsageRow
		var createdAt *string
		if err := rows.Scan(&r.RunID, &r.Turn, &r.Usage.InputTokens, &r.Usage.OutputTokens,
			&r.Usage.CacheCreationInputTokens, &r.Usage.CacheReadInputTokens, &r.ParallelCount, &createdAt); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		r.Usage.TotalTokens = r.Usage.InputTokens + r.Usage.OutputTokens
		if t := parseTime(createdAt); t != nil {
			r.CreatedAt = *t
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// RunTotal sums the reports of one run.
func (s *UsageStore) RunTotal(ctx context.Context, runID string) (stream.TokenUsage, error) {
	totals, err := s.totals(ctx, `WHERE run_id = ?`, runID)
	return totals.Usage, err
}

// Totals sums every report, optionally restricted to runs created at or
// after since.
func (s *UsageStore) Totals(ctx context.Context, since time.Time) (UsageTotals, error) {
	if since.IsZero() {
		return s.totals(ctx, "")
	}
	return s.totals(ctx,
		`WHERE run_id IN (SELECT id FROM runs WHERE created_at >= ?)`,
		since.UTC().Format(time.RFC3339Nano))
}

func (s *UsageStore) totals(ctx context.Context, where string, args ...any) (UsageTotals, error) {
	var t UsageTotals
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT run_id), COUNT(*), COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0),
		 COALESCE(SUM(cache_creation_input_tokens), 0), COALESCE(SUM(cache_read_input_tokens), 0)
		 FROM usage `+where, args...,
	).Scan(&t.Runs, &t.Turns, &t.Usage.InputTokens, &t.Usage.OutputTokens,
		&t.Usage.CacheCreationInputTokens, &t.Usage.CacheReadInputTokens)
	if err != nil {
		return UsageTotals{}, fmt.Errorf("sum usage: %w", err)
	}
	t.Usage.TotalTokens = t.Usage.InputTokens + t.Usage.OutputTokens
	return t, nil
}
