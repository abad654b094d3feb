package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/mattjoyce/agentlive/internal/stream"
)

// chunkModel streams a fixed list of chunks and records what it was sent.
type chunkModel struct {
	chunks    []*schema.Message
	streamErr error
	bound     []*schema.ToolInfo
	input     []*schema.Message
}

func (m *chunkModel) Generate(context.Context, []*schema.Message, ...model.Option) (*schema.Message, error) {
	return nil, errors.New("generate not supported")
}

func (m *chunkModel) Stream(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	m.input = input
	if m.streamErr != nil {
		return nil, m.streamErr
	}
	return schema.StreamReaderFromArray(m.chunks), nil
}

func (m *chunkModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	m.bound = tools
	return m, nil
}

func intPtr(v int) *int { return &v }

func TestEinoStreamerAssemblesChunks(t *testing.T) {
	m := &chunkModel{chunks: []*schema.Message{
		{Role: schema.Assistant, ReasoningContent: "thinking it over"},
		{Role: schema.Assistant, Content: "Let me "},
		{Role: schema.Assistant, Content: "check."},
		{Role: schema.Assistant, ToolCalls: []schema.ToolCall{
			{Index: intPtr(0), ID: "call_a", Function: schema.FunctionCall{Name: "echo"}},
		}},
		{Role: schema.Assistant, ToolCalls: []schema.ToolCall{
			{Index: intPtr(0), Function: schema.FunctionCall{Arguments: `{"text":`}},
		}},
		{Role: schema.Assistant, ToolCalls: []schema.ToolCall{
			{Index: intPtr(0), Function: schema.FunctionCall{Arguments: `"hi"}`}},
		}},
		{Role: schema.Assistant, ResponseMeta: &schema.ResponseMeta{Usage: &schema.TokenUsage{
			PromptTokens:       120,
			CompletionTokens:   30,
			PromptTokenDetails: schema.PromptTokenDetails{CachedTokens: 80},
		}}},
	}}

	var events []stream.Event
	tokens := stream.NewTokenTracker()
	round := newRound(collect(&events), tokens)
	req := RoundRequest{
		System:   "sys",
		Messages: []*schema.Message{schema.UserMessage("hi")},
		Tools:    []*schema.ToolInfo{mustInfo(t, &echoTool{name: "echo"})},
	}
	if err := NewEinoStreamer(m).StreamRound(context.Background(), req, round); err != nil {
		t.Fatalf("stream round: %v", err)
	}

	if got := kinds(events); got != "thinking,text,text,tool_call" {
		t.Fatalf("unexpected events %s", got)
	}
	if len(m.bound) != 1 || m.bound[0].Name != "echo" {
		t.Fatalf("tools not bound: %+v", m.bound)
	}
	if len(m.input) != 2 || m.input[0].Role != schema.System || m.input[0].Content != "sys" {
		t.Fatalf("system prompt should lead the input: %+v", m.input)
	}

	usage, ok := tokens.Current()
	if !ok || usage.InputTokens != 120 || usage.OutputTokens != 30 || usage.CacheReadInputTokens != 80 {
		t.Fatalf("unexpected usage: %+v", usage)
	}

	calls := round.Finish()
	if len(calls) != 1 || calls[0].ID != "call_a" {
		t.Fatalf("unexpected calls: %+v", calls)
	}
	if v, _ := calls[0].Args.Get("text"); v != "hi" {
		t.Fatalf("args text = %v", v)
	}

	msg := round.Message()
	if msg.Content != "Let me check." || msg.ReasoningContent != "thinking it over" {
		t.Fatalf("unexpected assistant message: %+v", msg)
	}
	if len(msg.ToolCalls) != 1 || msg.ToolCalls[0].Function.Arguments != `{"text":"hi"}` {
		t.Fatalf("unexpected tool calls: %+v", msg.ToolCalls)
	}
}

func TestEinoStreamerWithoutToolsDoesNotBind(t *testing.T) {
	m := &chunkModel{chunks: []*schema.Message{{Role: schema.Assistant, Content: "plain"}}}
	round := newRound(func(stream.Event) {}, stream.NewTokenTracker())
	if err := NewEinoStreamer(m).StreamRound(context.Background(), RoundRequest{
		Messages: []*schema.Message{schema.UserMessage("hi")},
	}, round); err != nil {
		t.Fatalf("stream round: %v", err)
	}
	if m.bound != nil {
		t.Fatalf("no tools should be bound")
	}
	if len(m.input) != 1 {
		t.Fatalf("empty system prompt should not be sent, got %d messages", len(m.input))
	}
	if round.Response() != "plain" {
		t.Fatalf("unexpected response %q", round.Response())
	}
}

func TestEinoStreamerWrapsStreamErrors(t *testing.T) {
	m := &chunkModel{streamErr: errors.New("connection refused")}
	round := newRound(func(stream.Event) {}, stream.NewTokenTracker())
	err := NewEinoStreamer(m).StreamRound(context.Background(), RoundRequest{}, round)
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("expected wrapped stream error, got %v", err)
	}
}
