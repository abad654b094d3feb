package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/mattjoyce/agentlive/internal/agent"
	"github.com/mattjoyce/agentlive/internal/store"
)

// ClosedEventType marks the end of a run's event stream.
const ClosedEventType = "stream.closed"

const wsWriteWait = 10 * time.Second

// ClosedEvent is the last record of every event stream.
type ClosedEvent struct {
	Type   string `json:"type"`
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// eventLog resolves the run's log, writing the error response when absent.
func (s *Server) eventLog(w http.ResponseWriter, r *http.Request, runID string) (*agent.EventLog, bool) {
	log, err := s.runs.Events(r.Context(), runID)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "run not found")
		return nil, false
	}
	if err != nil {
		s.logger.Error("failed to open event log", "run_id", runID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to open event log")
		return nil, false
	}
	return log, true
}

func (s *Server) closedEvent(ctx context.Context, runID string) ClosedEvent {
	status := "unknown"
	if run, err := s.runs.GetByID(context.WithoutCancel(ctx), runID); err == nil {
		status = string(run.Status)
	}
	return ClosedEvent{Type: ClosedEventType, RunID: runID, Status: status}
}

// handleRunEvents handles GET /v1/runs/{run_id}/events. Recorded events are
// replayed first, then new ones follow until the run ends.
func (s *Server) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	log, ok := s.eventLog(w, r, runID)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	events := log.Subscribe(ctx)
	heartbeat := time.NewTicker(s.config.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return
				}
				data, _ := json.Marshal(s.closedEvent(ctx, runID))
				_ = writeSSE(w, ClosedEventType, data)
				flusher.Flush()
				return
			}
			data, err := ev.Encode()
			if err != nil {
				s.logger.Warn("failed to encode event", "run_id", runID, "error", err)
				continue
			}
			if err := writeSSE(w, string(ev.Type), data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, event string, data []byte) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

// handleRunSocket handles GET /v1/runs/{run_id}/ws: the same stream as
// handleRunEvents, one JSON record per text message.
func (s *Server) handleRunSocket(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	log, ok := s.eventLog(w, r, runID)
	if !ok {
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "run_id", runID, "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The client sends nothing; reading only detects the disconnect.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	events := log.Subscribe(ctx)
	heartbeat := time.NewTicker(s.config.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				_ = conn.WriteJSON(s.closedEvent(ctx, runID))
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			data, err := ev.Encode()
			if err != nil {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}

// checkOrigin allows non-browser clients, the server's own host and the
// configured origins.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if slices.Contains(s.config.AllowedOrigins, "*") || slices.Contains(s.config.AllowedOrigins, origin) {
		return true
	}
	u, err := url.Parse(origin)
	return err == nil && u.Host == r.Host
}
