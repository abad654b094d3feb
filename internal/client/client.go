// Package client talks to an agentlive service: it starts runs, looks them up
// and follows their event streams over SSE or WebSocket.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mattjoyce/agentlive/internal/api"
	"github.com/mattjoyce/agentlive/internal/store"
)

// ErrNoActiveRun is returned by NextRun when nothing is queued or running.
var ErrNoActiveRun = errors.New("client: no active run")

// Client is an HTTP client for the agentlive API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	// streamClient has no overall timeout; event streams stay open for the
	// whole run.
	streamClient *http.Client
	logger       *slog.Logger
}

// New creates a new API client.
func New(baseURL, token string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		streamClient: &http.Client{},
		logger:       logger,
	}
}

// CreateRun sends POST /v1/runs and returns the accepted run.
func (c *Client) CreateRun(ctx context.Context, prompt string) (*api.CreateRunResponse, error) {
	body, err := json.Marshal(api.CreateRunRequest{Prompt: prompt})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	var resp api.CreateRunResponse
	if err := c.do(ctx, http.MethodPost, "/v1/runs", strings.NewReader(string(body)), http.StatusAccepted, &resp); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	return &resp, nil
}

// ListRuns returns up to limit runs, newest first.
func (c *Client) ListRuns(ctx context.Context, limit int) ([]*store.Run, error) {
	path := "/v1/runs"
	if limit > 0 {
		path += fmt.Sprintf("?limit=%d", limit)
	}
	var resp api.ListRunsResponse
	if err := c.do(ctx, http.MethodGet, path, nil, http.StatusOK, &resp); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return resp.Runs, nil
}

// GetRun retrieves a run with its usage rows.
func (c *Client) GetRun(ctx context.Context, runID string) (*api.RunResponse, error) {
	var resp api.RunResponse
	if err := c.do(ctx, http.MethodGet, "/v1/runs/"+url.PathEscape(runID), nil, http.StatusOK, &resp); err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	return &resp, nil
}

// NextRun returns the running run, else the oldest queued one.
func (c *Client) NextRun(ctx context.Context) (*store.Run, error) {
	var resp api.RunResponse
	err := c.do(ctx, http.MethodGet, "/v1/runs/next", nil, http.StatusOK, &resp)
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return nil, ErrNoActiveRun
	}
	if err != nil {
		return nil, fmt.Errorf("next run: %w", err)
	}
	return resp.Run, nil
}

// WaitForRun polls NextRun until a run is active or the context is cancelled.
// The interval doubles after each empty poll, capped at maxInterval.
func (c *Client) WaitForRun(ctx context.Context, interval, maxInterval time.Duration) (*store.Run, error) {
	if interval <= 0 {
		interval = time.Second
	}
	if maxInterval < interval {
		maxInterval = interval
	}
	for {
		run, err := c.NextRun(ctx)
		if err == nil {
			return run, nil
		}
		if !errors.Is(err, ErrNoActiveRun) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
		interval = min(interval*2, maxInterval)
	}
}

// StatusError reports an unexpected HTTP status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Body)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, want int, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != want {
		return &StatusError{Code: resp.StatusCode, Body: errorMessage(respBody)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// errorMessage extracts the API error text, falling back to the raw body.
func errorMessage(body []byte) string {
	var e api.ErrorResponse
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(body))
}
