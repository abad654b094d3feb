package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mattjoyce/agentlive/internal/agent"
	"github.com/mattjoyce/agentlive/internal/store"
)

// CreateRunRequest is the JSON body for POST /v1/runs.
type CreateRunRequest struct {
	Prompt string `json:"prompt"`
}

// CreateRunResponse is returned when a run is accepted.
type CreateRunResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// RunResponse is returned by GET /v1/runs/{run_id}.
type RunResponse struct {
	*store.Run
	Usage []*store.UsageRow `json:"usage,omitempty"`
}

// ListRunsResponse is returned by GET /v1/runs.
type ListRunsResponse struct {
	Runs []*store.Run `json:"runs"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// ErrorResponse is returned on errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

// handleHealthz handles GET /healthz.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
	})
}

// handleCreateRun handles POST /v1/runs.
func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req CreateRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		s.writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	run, err := s.runs.Submit(r.Context(), req.Prompt)
	if errors.Is(err, agent.ErrQueueFull) {
		s.writeError(w, http.StatusServiceUnavailable, "run queue is full")
		return
	}
	if err != nil {
		s.logger.Error("failed to create run", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to create run")
		return
	}

	s.logger.Info("run accepted", "run_id", run.ID)
	respondJSON(w, http.StatusAccepted, CreateRunResponse{
		RunID:  run.ID,
		Status: string(run.Status),
	})
}

// handleListRuns handles GET /v1/runs.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, 500)
	}

	runs, err := s.runs.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list runs", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []*store.Run{}
	}
	respondJSON(w, http.StatusOK, ListRunsResponse{Runs: runs})
}

// handleNextRun handles GET /v1/runs/next.
func (s *Server) handleNextRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.runs.NextActive(r.Context())
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "no active run")
		return
	}
	if err != nil {
		s.logger.Error("failed to find active run", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to find active run")
		return
	}
	respondJSON(w, http.StatusOK, RunResponse{Run: run})
}

// handleGetRun handles GET /v1/runs/{run_id}.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")

	run, err := s.runs.GetByID(r.Context(), runID)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}

	usage, err := s.runs.Usage(r.Context(), runID)
	if err != nil {
		s.logger.Error("failed to get usage", "run_id", runID, "error", err)
		usage = nil
	}
	respondJSON(w, http.StatusOK, RunResponse{Run: run, Usage: usage})
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
