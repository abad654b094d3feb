package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("store: not found")

// RunStatus represents the lifecycle state of a run.
type RunStatus string

const (
	RunStatusQueued  RunStatus = "queued"
	RunStatusRunning RunStatus = "running"
	RunStatusDone    RunStatus = "done"
	RunStatusFailed  RunStatus = "failed"
)

// Active reports whether the run has not finished yet.
func (s RunStatus) Active() bool {
	return s == RunStatusQueued || s == RunStatusRunning
}

// Run is one prompt answered by the agent.
type Run struct {
	ID          string     `json:"id"`
	Prompt      string     `json:"prompt"`
	Provider    string     `json:"provider"`
	Model       string     `json:"model"`
	Status      RunStatus  `json:"status"`
	Response    *string    `json:"response,omitempty"`
	Error       *string    `json:"error,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

// RunStore provides CRUD operations on the runs table.
type RunStore struct {
	db *sql.DB
}

// NewRunStore creates a new RunStore.
func NewRunStore(db *sql.DB) *RunStore {
	return &RunStore{db: db}
}

// DB returns the underlying database connection.
func (s *RunStore) DB() *sql.DB {
	return s.db
}

const runColumns = `id, prompt, provider, model, status, response, error, started_at, completed_at, updated_at, created_at`

// Create inserts a new queued run.
func (s *RunStore) Create(ctx context.Context, prompt, provider, model string) (*Run, error) {
	now := time.Now().UTC()
	run := &Run{
		ID:        uuid.New().String(),
		Prompt:    prompt,
		Provider:  provider,
		Model:     model,
		Status:    RunStatusQueued,
		UpdatedAt: now,
		CreatedAt: now,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, prompt, provider, model, status, updated_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Prompt, run.Provider, run.Model,
		string(run.Status), now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// GetByID retrieves a run by its ID.
func (s *RunStore) GetByID(ctx context.Context, id string) (*Run, error) {
	return s.scanOne(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
}

// ListByStatus retrieves all runs with the given status, oldest first.
func (s *RunStore) ListByStatus(ctx context.Context, status RunStatus) ([]*Run, error) {
	return s.list(ctx, `SELECT `+runColumns+` FROM runs WHERE status = ? ORDER BY created_at ASC`, string(status))
}

// ListRecent returns up to limit runs, newest first.
func (s *RunStore) ListRecent(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.list(ctx, `SELECT `+runColumns+` FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
}

// NextActive returns the oldest running run, else the oldest queued one.
func (s *RunStore) NextActive(ctx context.Context) (*Run, error) {
	return s.scanOne(ctx,
		`SELECT `+runColumns+` FROM runs WHERE status IN (?, ?)
		 ORDER BY CASE status WHEN ? THEN 0 ELSE 1 END, created_at ASC LIMIT 1`,
		string(RunStatusRunning), string(RunStatusQueued), string(RunStatusRunning))
}

// UpdateStatus updates a run's status and optional fields.
func (s *RunStore) UpdateStatus(ctx context.Context, id string, status RunStatus, response *string, errMsg *string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	var completedAt *string
	var startedAt *string
	if status == RunStatusRunning {
		startedAt = &now
	}
	if status == RunStatusDone || status == RunStatusFailed {
		completedAt = &now
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, response = COALESCE(?, response), error = COALESCE(?, error),
		 started_at = COALESCE(?, started_at), completed_at = COALESCE(?, completed_at), updated_at = ?
		 WHERE id = ?`,
		string(status), response, errMsg, startedAt, completedAt, now, id,
	)
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update run %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *RunStore) list(ctx context.Context, query string, args ...any) ([]*Run, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *RunStore) scanOne(ctx context.Context, query string, args ...any) (*Run, error) {
	r, err := scanRun(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

// scanner is an interface satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var r Run
	var status string
	var response, errMsg sql.NullString
	var startedAt, completedAt, updatedAt, createdAt *string

	err := s.Scan(&r.ID, &r.Prompt, &r.Provider, &r.Model,
		&status, &response, &errMsg, &startedAt, &completedAt, &updatedAt, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}

	if response.Valid {
		v := response.String
		r.Response = &v
	}
	if errMsg.Valid {
		v := errMsg.String
		r.Error = &v
	}

	r.Status = RunStatus(status)
	r.StartedAt = parseTime(startedAt)
	r.CompletedAt = parseTime(completedAt)
	if t := parseTime(updatedAt); t != nil {
		r.UpdatedAt = *t
	}
	if t := parseTime(createdAt); t != nil {
		r.CreatedAt = *t
	}
	return &r, nil
}

func parseTime(s *string) *time.Time {
	if s == nil {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, *s)
	if err != nil {
		return nil
	}
	return &t
}
