package agent

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mattjoyce/agentlive/internal/config"
	"github.com/mattjoyce/agentlive/internal/store"
	"github.com/mattjoyce/agentlive/internal/stream"
)

// ToolsFunc builds the tools of one run, sandboxed to dir.
type ToolsFunc func(ctx context.Context, dir string) (*Toolbox, error)

// Runner manages the serial execution of service runs. Every run gets its own
// workspace and session; its events go to the hub and the workspace log, and
// its per-turn usage to the usage ledger.
type Runner struct {
	runStore   *store.RunStore
	usageStore *store.UsageStore
	streamer   Streamer
	tools      ToolsFunc
	llm        config.LLMConfig
	cfg        config.AgentConfig
	hub        *Hub
	logger     *slog.Logger

	queue chan string
	mu    sync.Mutex
	done  chan struct{}
}

var ErrQueueFull = errors.New("runner queue is full")

// NewRunner creates a new Runner.
func NewRunner(runStore *store.RunStore, usageStore *store.UsageStore, streamer Streamer, tools ToolsFunc, llm config.LLMConfig, cfg config.AgentConfig, hub *Hub, logger *slog.Logger) *Runner {
	capacity := cfg.QueueCapacity
	if capacity <= 0 {
		capacity = 100
	}
	if hub == nil {
		hub = NewHub(capacity)
	}

	return &Runner{
		runStore:   runStore,
		usageStore: usageStore,
		streamer:   streamer,
		tools:      tools,
		llm:        llm,
		cfg:        cfg,
		hub:        hub,
		logger:     logger,
		queue:      make(chan string, capacity),
		done:       make(chan struct{}),
	}
}

// Submit records a queued run for prompt and enqueues it.
func (r *Runner) Submit(ctx context.Context, prompt string) (*store.Run, error) {
	run, err := r.runStore.Create(ctx, prompt, r.llm.Provider, r.llm.Model)
	if err != nil {
		return nil, err
	}
	r.hub.Open(run.ID)
	if err := r.Enqueue(run.ID); err != nil {
		msg := err.Error()
		_ = r.runStore.UpdateStatus(ctx, run.ID, store.RunStatusFailed, nil, &msg)
		r.fail(run.ID, msg)
		return nil, err
	}
	return run, nil
}

// GetByID retrieves a run by ID.
func (r *Runner) GetByID(ctx context.Context, id string) (*store.Run, error) {
	return r.runStore.GetByID(ctx, id)
}

// List returns recent runs, newest first.
func (r *Runner) List(ctx context.Context, limit int) ([]*store.Run, error) {
	return r.runStore.ListRecent(ctx, limit)
}

// NextActive returns the run the worker is on, else the next queued one.
func (r *Runner) NextActive(ctx context.Context) (*store.Run, error) {
	return r.runStore.NextActive(ctx)
}

// Usage returns the per-turn usage rows of a run. It is empty when the
// usage ledger is off.
func (r *Runner) Usage(ctx context.Context, id string) ([]*store.UsageRow, error) {
	if r.usageStore == nil {
		return nil, nil
	}
	return r.usageStore.ListByRun(ctx, id)
}

// Events returns the event log of a run. Runs finished before this process
// started are replayed from their workspace.
func (r *Runner) Events(ctx context.Context, id string) (*EventLog, error) {
	if log, ok := r.hub.Get(id); ok {
		return log, nil
	}
	run, err := r.runStore.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	log := r.hub.Open(run.ID)
	if run.Status.Active() {
		return log, nil
	}
	ws, err := NewWorkspace(r.cfg.WorkspaceDir, run.ID)
	if err == nil {
		if events, err := ws.ReadEvents(); err == nil {
			for _, ev := range events {
				log.Append(ev)
			}
		}
	}
	log.Close()
	return log, nil
}

// Enqueue adds a run ID to the processing queue.
// It returns ErrQueueFull when the queue cannot accept the run within EnqueueTimeout.
func (r *Runner) Enqueue(runID string) error {
	timeout := r.cfg.EnqueueTimeout
	if timeout <= 0 {
		select {
		case r.queue <- runID:
			return nil
		default:
			return ErrQueueFull
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r.queue <- runID:
		return nil
	case <-timer.C:
		return ErrQueueFull
	}
}

// Start runs the serial worker loop. Blocks until context is cancelled.
func (r *Runner) Start(ctx context.Context) {
	defer close(r.done)
	r.logger.Info("agent runner started")
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("agent runner stopping")
			return
		case runID := <-r.queue:
			r.processRun(ctx, runID)
		}
	}
}

// Done returns a channel that is closed when the runner has finished processing
// and the Start method has returned. Use this for graceful shutdown.
func (r *Runner) Done() <-chan struct{} {
	return r.done
}

// RecoverRuns finds interrupted runs (status=running or queued) and re-enqueues
// them. A recovered run starts again from its prompt.
func (r *Runner) RecoverRuns(ctx context.Context) error {
	running, err := r.runStore.ListByStatus(ctx, store.RunStatusRunning)
	if err != nil {
		return err
	}
	queued, err := r.runStore.ListByStatus(ctx, store.RunStatusQueued)
	if err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(running)+len(queued))
	enqueued := 0

	for _, run := range append(running, queued...) {
		if _, ok := seen[run.ID]; ok {
			continue
		}
		seen[run.ID] = struct{}{}

		r.logger.Info("recovering run", "run_id", run.ID, "status", run.Status)
		r.hub.Open(run.ID)
		if err := r.Enqueue(run.ID); err != nil {
			r.logger.Warn("failed to enqueue recovered run", "run_id", run.ID, "status", run.Status, "error", err)
			continue
		}
		enqueued++
	}

	if len(seen) > 0 {
		r.logger.Info("recovery scan complete", "candidates", len(seen), "enqueued", enqueued)
	}
	return nil
}

func (r *Runner) processRun(ctx context.Context, runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	logger := r.logger.With("run_id", runID)
	run, err := r.runStore.GetByID(ctx, runID)
	if err != nil {
		logger.Error("failed to load run for processing", "error", err)
		return
	}
	if !run.Status.Active() {
		logger.Warn("skipping run with unexpected status", "status", run.Status)
		return
	}

	log := r.hub.Open(runID)
	defer log.Close()

	if err := r.runStore.UpdateStatus(ctx, runID, store.RunStatusRunning, nil, nil); err != nil {
		logger.Error("failed to mark run running", "error", err)
		return
	}

	ws, err := NewWorkspace(r.cfg.WorkspaceDir, runID)
	if err != nil {
		r.finish(ctx, runID, nil, err)
		return
	}
	toolbox, err := r.tools(ctx, ws.Dir())
	if err != nil {
		r.finish(ctx, runID, nil, err)
		return
	}

	session := NewSession(r.streamer, toolbox, r.cfg, logger)
	if err := ws.WritePromptSnapshot(run.Prompt, session.system); err != nil {
		logger.Warn("failed to write prompt snapshot", "error", err)
	}

	runCtx := ctx
	if r.cfg.Deadline > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.cfg.Deadline)
		defer cancel()
	}

	rec := &runRecorder{ctx: ctx, runID: runID, log: log, ws: ws, usage: r.usageStore, logger: logger}
	start := time.Now()
	res, err := session.Run(runCtx, run.Prompt, rec.emit)
	var response *string
	if res != nil && err == nil {
		response = &res.Response
	}
	r.finish(ctx, runID, response, err)
	logger.Info("run processed", "duration", time.Since(start), "error", err)
}

// finish stores the outcome of a run. A setup failure that never reached the
// session is also published as an error event.
func (r *Runner) finish(ctx context.Context, runID string, response *string, runErr error) {
	status := store.RunStatusDone
	var errMsg *string
	if runErr != nil {
		status = store.RunStatusFailed
		msg := runErr.Error()
		errMsg = &msg
		if log, ok := r.hub.Get(runID); ok && !hasTerminal(log) {
			log.Append(stream.Error(msg))
		}
	}
	// The run context may be gone at shutdown; record the outcome regardless.
	if err := r.runStore.UpdateStatus(context.WithoutCancel(ctx), runID, status, response, errMsg); err != nil {
		r.logger.Error("failed to update run status", "run_id", runID, "error", err)
	}
}

func (r *Runner) fail(runID, msg string) {
	if log, ok := r.hub.Get(runID); ok {
		log.Append(stream.Error(msg))
		log.Close()
	}
}

func hasTerminal(log *EventLog) bool {
	events := log.Events()
	return len(events) > 0 && events[len(events)-1].Terminal()
}

// runRecorder fans the events of one run out to its sinks.
type runRecorder struct {
	ctx    context.Context
	runID  string
	log    *EventLog
	ws     *Workspace
	usage  *store.UsageStore
	logger *slog.Logger

	turn int
	// calls holds completed tool calls awaiting their results, in call order.
	calls []stream.Event
}

func (rr *runRecorder) emit(ev stream.Event) {
	rr.log.Append(ev)
	if err := rr.ws.AppendEvent(ev); err != nil {
		rr.logger.Warn("failed to append event", "error", err)
	}

	switch ev.Type {
	case stream.KindToolCall:
		if ev.ArgsComplete {
			rr.calls = append(rr.calls, ev)
		}
	case stream.KindToolResult:
		var args *stream.Args
		if len(rr.calls) > 0 {
			args = rr.calls[0].Args
			rr.calls = rr.calls[1:]
		}
		if err := rr.ws.AppendToolCall(ev.Name, args, ev.Content, ev.Succeeded()); err != nil {
			rr.logger.Warn("failed to append transcript", "tool", ev.Name, "error", err)
		}
	case stream.KindTokenUsage:
		if ev.IsTotal || rr.usage == nil {
			return
		}
		rr.turn++
		if err := rr.usage.Record(context.WithoutCancel(rr.ctx), rr.runID, rr.turn, ev.Usage(), ev.ParallelCount); err != nil {
			rr.logger.Warn("failed to record usage", "error", err)
		}
	}
}
