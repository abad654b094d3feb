package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/mattjoyce/agentlive/internal/config"
	"github.com/mattjoyce/agentlive/internal/stream"
)

// ErrMaxSteps is returned when a run keeps calling tools past its step limit.
var ErrMaxSteps = errors.New("agent: max steps reached")

// DefaultSystemPrompt is used when the configuration does not set one.
const DefaultSystemPrompt = "You are a helpful assistant working in a sandboxed workspace. " +
	"Use the available tools to inspect and change files when the task needs it, " +
	"then answer concisely."

// RoundRequest is everything a Streamer needs to produce one model turn.
type RoundRequest struct {
	System   string
	Messages []*schema.Message
	Tools    []*schema.ToolInfo
}

// Streamer produces one model turn, feeding deltas into r as they arrive.
type Streamer interface {
	StreamRound(ctx context.Context, req RoundRequest, r *Round) error
}

// Result summarizes a finished run.
type Result struct {
	Response string
	Steps    int
	Usage    stream.TokenUsage
}

// Session drives runs against one model and keeps the conversation between
// them. A Session runs one prompt at a time.
type Session struct {
	streamer Streamer
	tools    *Toolbox
	system   string
	maxSteps int
	exec     ExecConfig
	logger   *slog.Logger

	mu      sync.Mutex
	history []*schema.Message
}

// NewSession creates a Session from the agent configuration.
func NewSession(streamer Streamer, tools *Toolbox, cfg config.AgentConfig, logger *slog.Logger) *Session {
	system := cfg.SystemPrompt
	if system == "" {
		system = DefaultSystemPrompt
	}
	maxSteps := cfg.MaxSteps
	if maxSteps <= 0 {
		maxSteps = 25
	}
	return &Session{
		streamer: streamer,
		tools:    tools,
		system:   system,
		maxSteps: maxSteps,
		exec: ExecConfig{
			Parallel:    cfg.Parallel(),
			MaxParallel: cfg.MaxParallel,
			Timeout:     cfg.ToolTimeout,
		},
		logger: logger,
	}
}

// History returns a copy of the conversation so far.
func (s *Session) History() []*schema.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*schema.Message(nil), s.history...)
}

// Reset forgets the conversation.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
}

// Run answers prompt, emitting the run's events in order. Each model turn
// that requests tools is followed by the tool calls with complete arguments,
// their results in call order and the turn's usage, then the running total.
// The last turn ends with its usage, the total and a done event. Any failure is emitted
// as an error event and returned; the conversation is then rolled back to
// before prompt.
func (s *Session) Run(ctx context.Context, prompt string, emit Emitter) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	base := len(s.history)
	s.history = append(s.history, schema.UserMessage(prompt))

	res, err := s.loop(ctx, emit)
	if err != nil {
		s.history = s.history[:base]
		emit(stream.Error(err.Error()))
		s.logger.Warn("run failed", "error", err, "duration", time.Since(start))
		return res, err
	}
	s.logger.Info("run completed", "steps", res.Steps, "total_tokens", res.Usage.TotalTokens, "duration", time.Since(start))
	return res, nil
}

func (s *Session) loop(ctx context.Context, emit Emitter) (*Result, error) {
	tokens := stream.NewTokenTracker()
	res := &Result{}

	for step := 1; ; step++ {
		if step > s.maxSteps {
			res.Usage = tokens.Usage()
			return res, fmt.Errorf("%w (%d)", ErrMaxSteps, s.maxSteps)
		}
		res.Steps = step

		round := newRound(emit, tokens)
		req := RoundRequest{System: s.system, Messages: s.history, Tools: s.tools.Infos()}
		if err := s.streamer.StreamRound(ctx, req, round); err != nil {
			res.Usage = tokens.Usage()
			return res, err
		}

		calls := round.Finish()
		s.history = append(s.history, round.Message())

		if len(calls) == 0 {
			if turn, ok := tokens.FinalizeTurn(); ok {
				emit(stream.TokenUsageEvent(turn, false, 0))
			}
			res.Response = round.Response()
			res.Usage = tokens.Usage()
			emit(stream.TokenUsageEvent(res.Usage, true, 0))
			emit(stream.Done(res.Response))
			return res, nil
		}

		results := s.tools.Execute(ctx, calls, s.exec, s.logger)
		for i, call := range calls {
			emit(stream.ToolResult(call.Name, results[i], stream.IsSuccess(results[i])))
			msg := schema.ToolMessage(results[i], call.ID)
			msg.ToolName = call.Name
			s.history = append(s.history, msg)
		}

		if turn, ok := tokens.FinalizeTurn(); ok {
			emit(stream.TokenUsageEvent(turn, false, len(calls)))
		}
		emit(stream.TokenUsageEvent(tokens.Usage(), true, 0))

		if err := ctx.Err(); err != nil {
			res.Usage = tokens.Usage()
			return res, err
		}
	}
}

// Stream runs prompt in the background and returns its events. The channel
// is closed after the terminal event. Events are dropped once ctx is done.
func (s *Session) Stream(ctx context.Context, prompt string) <-chan stream.Event {
	events := make(chan stream.Event, 64)
	go func() {
		defer close(events)
		_, _ = s.Run(ctx, prompt, func(ev stream.Event) {
			select {
			case events <- ev:
			case <-ctx.Done():
			}
		})
	}()
	return events
}
