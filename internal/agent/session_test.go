package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/mattjoyce/agentlive/internal/config"
	"github.com/mattjoyce/agentlive/internal/stream"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedStreamer plays one function per round.
type scriptedStreamer struct {
	mu      sync.Mutex
	rounds  []func(r *Round) error
	msgLens []int
}

func (s *scriptedStreamer) StreamRound(_ context.Context, req RoundRequest, r *Round) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgLens = append(s.msgLens, len(req.Messages))
	if len(s.rounds) == 0 {
		return errors.New("no scripted round remaining")
	}
	f := s.rounds[0]
	s.rounds = s.rounds[1:]
	return f(r)
}

// echoTool returns its text argument; sleep delays it to expose ordering.
type echoTool struct {
	name   string
	sleep  time.Duration
	fail   bool
	active *int32
	peak   *int32
}

func (e *echoTool) Info(context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: e.name,
		Desc: "Echo the text argument.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"text": {Type: schema.String, Desc: "text to echo", Required: true},
		}),
	}, nil
}

func (e *echoTool) InvokableRun(ctx context.Context, args string, _ ...tool.Option) (string, error) {
	if e.active != nil {
		n := atomic.AddInt32(e.active, 1)
		defer atomic.AddInt32(e.active, -1)
		for {
			p := atomic.LoadInt32(e.peak)
			if n <= p || atomic.CompareAndSwapInt32(e.peak, p, n) {
				break
			}
		}
	}
	if e.sleep > 0 {
		select {
		case <-time.After(e.sleep):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if e.fail {
		return "", fmt.Errorf("echo refused %s", args)
	}
	return stream.SuccessPrefix + "\n\n" + args, nil
}

func newTestToolbox(t *testing.T, tools ...tool.BaseTool) *Toolbox {
	t.Helper()
	box, err := NewToolbox(context.Background(), tools)
	if err != nil {
		t.Fatalf("new toolbox: %v", err)
	}
	return box
}

func collect(events *[]stream.Event) Emitter {
	var mu sync.Mutex
	return func(ev stream.Event) {
		mu.Lock()
		defer mu.Unlock()
		*events = append(*events, ev)
	}
}

func kinds(events []stream.Event) string {
	parts := make([]string, len(events))
	for i, ev := range events {
		parts[i] = string(ev.Type)
	}
	return strings.Join(parts, ",")
}

func TestSessionRunEmitsToolRoundThenAnswer(t *testing.T) {
	streamer := &scriptedStreamer{rounds: []func(r *Round) error{
		func(r *Round) error {
			r.Thinking("I should echo", 0)
			r.ToolDelta(1, "t1", "echo", "")
			r.ToolDelta(1, "", "", `{"text":`)
			r.ToolDelta(1, "", "", `"hi"}`)
			r.Usage(stream.UsageReport{InputTokens: 100, OutputTokens: 1})
			r.Usage(stream.UsageReport{InputTokens: 100, OutputTokens: 40})
			return nil
		},
		func(r *Round) error {
			r.Text("Hel")
			r.Text("lo")
			r.Usage(stream.UsageReport{InputTokens: 150, OutputTokens: 10})
			return nil
		},
	}}
	session := NewSession(streamer, newTestToolbox(t, &echoTool{name: "echo"}), config.AgentConfig{MaxSteps: 5}, discardLogger())

	var events []stream.Event
	res, err := session.Run(context.Background(), "say hi", collect(&events))
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	want := "thinking,tool_call,tool_call,tool_result,token_usage,token_usage,text,text,token_usage,token_usage,done"
	if got := kinds(events); got != want {
		t.Fatalf("event order:\n got %s\nwant %s", got, want)
	}

	preview, final := events[1], events[2]
	if preview.ArgsComplete || preview.ID != "t1" || preview.Name != "echo" {
		t.Fatalf("unexpected preview call: %+v", preview)
	}
	if !final.ArgsComplete {
		t.Fatalf("final call should carry complete arguments")
	}
	if v, _ := final.Args.Get("text"); v != "hi" {
		t.Fatalf("final args text = %v, want hi", v)
	}

	result := events[3]
	if !result.Succeeded() || !strings.Contains(result.Content, `"text":"hi"`) {
		t.Fatalf("unexpected tool result: %+v", result)
	}

	turn := events[4]
	if turn.IsTotal || turn.InputTokens != 100 || turn.OutputTokens != 40 || turn.Parallel() != 1 {
		t.Fatalf("unexpected per-turn usage: %+v", turn)
	}
	if total := events[5]; !total.IsTotal || total.TotalTokens != 140 {
		t.Fatalf("unexpected running total: %+v", total)
	}
	if total := events[9]; !total.IsTotal || total.TotalTokens != 300 {
		t.Fatalf("unexpected final total: %+v", total)
	}
	if events[10].Response != "Hello" || res.Response != "Hello" || res.Steps != 2 {
		t.Fatalf("unexpected result: %+v done=%+v", res, events[10])
	}

	history := session.History()
	if len(history) != 4 {
		t.Fatalf("history length = %d, want user, assistant, tool, assistant", len(history))
	}
	if history[1].ToolCalls[0].Function.Arguments != `{"text":"hi"}` {
		t.Fatalf("assistant tool call args = %q", history[1].ToolCalls[0].Function.Arguments)
	}
	if history[2].Role != schema.Tool || history[2].ToolCallID != "t1" || history[2].ToolName != "echo" {
		t.Fatalf("unexpected tool message: %+v", history[2])
	}
	if blocks := thinkingBlocksOf(history[1]); len(blocks) != 1 || blocks[0].Text != "I should echo" {
		t.Fatalf("thinking blocks not kept on the assistant message: %+v", blocks)
	}
	if streamer.msgLens[0] != 1 || streamer.msgLens[1] != 3 {
		t.Fatalf("rounds saw %v messages", streamer.msgLens)
	}
}

func TestSessionFoldsStateLikeALiveView(t *testing.T) {
	streamer := &scriptedStreamer{rounds: []func(r *Round) error{
		func(r *Round) error {
			r.ToolDelta(0, "a", "echo", `{"text":"1"}`)
			r.ToolDelta(1, "b", "echo", `{"text":"2"}`)
			r.Usage(stream.UsageReport{InputTokens: 50, OutputTokens: 5})
			return nil
		},
		func(r *Round) error {
			r.Text("both echoed")
			return nil
		},
	}}
	session := NewSession(streamer, newTestToolbox(t, &echoTool{name: "echo"}), config.AgentConfig{MaxSteps: 5}, discardLogger())

	state := stream.NewState()
	if _, err := session.Run(context.Background(), "echo twice", func(ev stream.Event) { state.HandleEvent(ev) }); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(state.ToolCalls) != 2 || len(state.ToolResults) != 2 {
		t.Fatalf("calls=%d results=%d, want 2 each", len(state.ToolCalls), len(state.ToolResults))
	}
	if len(state.TurnUsages) != 2 || state.TurnUsages[0] != nil || state.TurnUsages[1].ParallelCount != 2 {
		t.Fatalf("parallel usage should attach to the last result of the round: %+v", state.TurnUsages)
	}
	if state.ResponseText != "both echoed" || state.IsProcessing {
		t.Fatalf("unexpected final state: %+v", state)
	}
}

func TestSessionParallelResultsKeepCallOrder(t *testing.T) {
	var active, peak int32
	slow := &echoTool{name: "slow", sleep: 60 * time.Millisecond, active: &active, peak: &peak}
	fast := &echoTool{name: "fast", sleep: 30 * time.Millisecond, active: &active, peak: &peak}
	streamer := &scriptedStreamer{rounds: []func(r *Round) error{
		func(r *Round) error {
			r.ToolDelta(0, "s", "slow", `{"text":"slow"}`)
			r.ToolDelta(1, "f", "fast", `{"text":"fast"}`)
			return nil
		},
		func(r *Round) error { return nil },
	}}
	cfg := config.AgentConfig{MaxSteps: 3, MaxParallel: 2}
	session := NewSession(streamer, newTestToolbox(t, slow, fast), cfg, discardLogger())

	var events []stream.Event
	if _, err := session.Run(context.Background(), "go", collect(&events)); err != nil {
		t.Fatalf("run: %v", err)
	}

	var results []string
	for _, ev := range events {
		if ev.Type == stream.KindToolResult {
			results = append(results, ev.Name)
		}
	}
	if strings.Join(results, ",") != "slow,fast" {
		t.Fatalf("results out of call order: %v", results)
	}
	if atomic.LoadInt32(&peak) != 2 {
		t.Fatalf("expected both tools to run at once, peak=%d", peak)
	}
}

func TestSessionToolFailuresBecomeResults(t *testing.T) {
	streamer := &scriptedStreamer{rounds: []func(r *Round) error{
		func(r *Round) error {
			r.ToolDelta(0, "x", "broken", `{"text":"a"}`)
			r.ToolDelta(1, "y", "missing", `{}`)
			return nil
		},
		func(r *Round) error { r.Text("recovered"); return nil },
	}}
	session := NewSession(streamer, newTestToolbox(t, &echoTool{name: "broken", fail: true}), config.AgentConfig{MaxSteps: 3}, discardLogger())

	var events []stream.Event
	if _, err := session.Run(context.Background(), "try", collect(&events)); err != nil {
		t.Fatalf("run: %v", err)
	}

	var results []stream.Event
	for _, ev := range events {
		if ev.Type == stream.KindToolResult {
			results = append(results, ev)
		}
	}
	if len(results) != 2 {
		t.Fatalf("expected two results, got %d", len(results))
	}
	if results[0].Succeeded() || !strings.HasPrefix(results[0].Content, stream.FailurePrefix) {
		t.Fatalf("tool error should be a failed result: %+v", results[0])
	}
	if results[1].Content != "[FAILED] Unknown tool: missing" {
		t.Fatalf("unknown tool result = %q", results[1].Content)
	}
}

func TestSessionUpstreamErrorRollsBack(t *testing.T) {
	streamer := &scriptedStreamer{rounds: []func(r *Round) error{
		func(r *Round) error {
			r.Text("partial")
			return errors.New("overloaded")
		},
	}}
	session := NewSession(streamer, nil, config.AgentConfig{MaxSteps: 3}, discardLogger())

	var events []stream.Event
	_, err := session.Run(context.Background(), "hello", collect(&events))
	if err == nil || !strings.Contains(err.Error(), "overloaded") {
		t.Fatalf("expected upstream error, got %v", err)
	}
	last := events[len(events)-1]
	if last.Type != stream.KindError || last.Message != "overloaded" {
		t.Fatalf("expected terminal error event, got %+v", last)
	}
	if len(session.History()) != 0 {
		t.Fatalf("failed prompt should not stay in history")
	}
}

func TestSessionStopsAtMaxSteps(t *testing.T) {
	loop := func(r *Round) error {
		r.ToolDelta(0, "", "echo", `{"text":"again"}`)
		return nil
	}
	streamer := &scriptedStreamer{rounds: []func(r *Round) error{loop, loop, loop}}
	session := NewSession(streamer, newTestToolbox(t, &echoTool{name: "echo"}), config.AgentConfig{MaxSteps: 2}, discardLogger())

	var events []stream.Event
	_, err := session.Run(context.Background(), "forever", collect(&events))
	if !errors.Is(err, ErrMaxSteps) {
		t.Fatalf("expected ErrMaxSteps, got %v", err)
	}
	if events[len(events)-1].Type != stream.KindError {
		t.Fatalf("expected error event last")
	}
	if events[1].ID != "call_0" {
		t.Fatalf("call without id should get a synthetic id, got %q", events[1].ID)
	}
}

func TestSessionStreamClosesAfterTerminalEvent(t *testing.T) {
	streamer := &scriptedStreamer{rounds: []func(r *Round) error{
		func(r *Round) error { r.Text("hi"); return nil },
	}}
	session := NewSession(streamer, nil, config.AgentConfig{}, discardLogger())

	var got []stream.Event
	for ev := range session.Stream(context.Background(), "hi") {
		got = append(got, ev)
	}
	if len(got) == 0 || got[len(got)-1].Type != stream.KindDone {
		t.Fatalf("expected done as last event, got %s", kinds(got))
	}
}
