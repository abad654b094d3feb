package main

import (
	"context"
	"log/slog"

	"github.com/mattjoyce/agentlive/internal/config"
	"github.com/mattjoyce/agentlive/internal/store"
	"github.com/mattjoyce/agentlive/internal/stream"
)

// ledger records terminal runs and their per-turn usage in SQLite.
type ledger struct {
	runs     *store.RunStore
	usage    *store.UsageStore
	provider string
	model    string
	logger   *slog.Logger
}

func newLedger(runs *store.RunStore, usage *store.UsageStore, llm config.LLMConfig, logger *slog.Logger) *ledger {
	return &ledger{runs: runs, usage: usage, provider: llm.Provider, model: llm.Model, logger: logger}
}

// track records a run for prompt and passes events through unchanged. The
// run is closed out once in is drained. Ledger failures are logged, never
// surfaced to the view.
func (l *ledger) track(ctx context.Context, prompt string, in <-chan stream.Event) <-chan stream.Event {
	bg := context.WithoutCancel(ctx)
	run, err := l.runs.Create(bg, prompt, l.provider, l.model)
	if err != nil {
		l.logger.Warn("failed to record run", "error", err)
		return in
	}
	logger := l.logger.With("run_id", run.ID)
	if err := l.runs.UpdateStatus(bg, run.ID, store.RunStatusRunning, nil, nil); err != nil {
		logger.Warn("failed to mark run running", "error", err)
	}

	out := make(chan stream.Event, cap(in))
	go func() {
		defer close(out)
		var response, errMsg *string
		turn := 0
		for ev := range in {
			switch ev.Type {
			case stream.KindTokenUsage:
				if !ev.IsTotal {
					turn++
					if err := l.usage.Record(bg, run.ID, turn, ev.Usage(), ev.ParallelCount); err != nil {
						logger.Warn("failed to record usage", "error", err)
					}
				}
			case stream.KindDone:
				r := ev.Response
				response = &r
			case stream.KindError:
				m := ev.Message
				errMsg = &m
			}
			select {
			case out <- ev:
			case <-ctx.Done():
			}
		}

		status := store.RunStatusDone
		if errMsg != nil || response == nil {
			status = store.RunStatusFailed
			response = nil
			if errMsg == nil {
				m := "interrupted"
				errMsg = &m
			}
		}
		if err := l.runs.UpdateStatus(bg, run.ID, status, response, errMsg); err != nil {
			logger.Warn("failed to update run status", "error", err)
		}
	}()
	return out
}
