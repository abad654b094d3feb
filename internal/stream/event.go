// Package stream reconstructs a model generation session from the events an
// upstream source emits: tool calls assembled from fragments, per-turn token
// usage merged from repeated reports, and the session snapshot a terminal view
// renders.
package stream

import (
	"bytes"
	"encoding/json"
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Kind discriminates stream events on the wire.
type Kind string

const (
	KindThinking   Kind = "thinking"
	KindText       Kind = "text"
	KindToolCall   Kind = "tool_call"
	KindToolResult Kind = "tool_result"
	KindDone       Kind = "done"
	KindTokenUsage Kind = "token_usage"
	KindError      Kind = "error"
)

// Args holds tool call arguments in the order the model produced them.
type Args = orderedmap.OrderedMap[string, any]

// NewArgs returns an empty argument map.
func NewArgs() *Args {
	return orderedmap.New[string, any]()
}

// ParseArgs decodes a JSON object into an ordered argument map.
func ParseArgs(raw string) (*Args, error) {
	trimmed := bytes.TrimSpace([]byte(raw))
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("tool arguments are not a JSON object")
	}
	args := NewArgs()
	if err := json.Unmarshal(trimmed, args); err != nil {
		return nil, fmt.Errorf("decode tool arguments: %w", err)
	}
	return args, nil
}

// HasArgs reports whether args carries at least one argument. An empty map is
// a valid "no arguments" call, not a pending one.
func HasArgs(args *Args) bool {
	return args != nil && args.Len() > 0
}

// Event is one self-describing record of the generation stream. Only the
// fields belonging to Type are meaningful.
type Event struct {
	Type Kind `json:"type"`

	// thinking, text, tool_result
	Content string `json:"content,omitempty"`
	// thinking block index
	Index int `json:"index,omitempty"`

	// tool_call, tool_result
	ID           string `json:"id,omitempty"`
	Name         string `json:"name,omitempty"`
	Args         *Args  `json:"args,omitempty"`
	ArgsComplete bool   `json:"args_complete,omitempty"`
	Success      *bool  `json:"success,omitempty"`

	// done
	Response string `json:"response,omitempty"`

	// error
	Message string `json:"message,omitempty"`

	// token_usage
	InputTokens              int  `json:"input_tokens,omitempty"`
	OutputTokens             int  `json:"output_tokens,omitempty"`
	TotalTokens              int  `json:"total_tokens,omitempty"`
	CacheCreationInputTokens int  `json:"cache_creation_input_tokens,omitempty"`
	CacheReadInputTokens     int  `json:"cache_read_input_tokens,omitempty"`
	IsTotal                  bool `json:"is_total,omitempty"`
	ParallelCount            int  `json:"parallel_count,omitempty"`
}

// Thinking builds a reasoning text delta.
func Thinking(content string, index int) Event {
	return Event{Type: KindThinking, Content: content, Index: index}
}

// Text builds a response text delta.
func Text(content string) Event {
	return Event{Type: KindText, Content: content}
}

// ToolCall builds a tool invocation. args may be nil while the arguments are
// still streaming.
func ToolCall(id, name string, args *Args, argsComplete bool) Event {
	if args == nil {
		args = NewArgs()
	}
	return Event{Type: KindToolCall, ID: id, Name: name, Args: args, ArgsComplete: argsComplete}
}

// ToolResult builds the output of one executed tool.
func ToolResult(name, content string, success bool) Event {
	return Event{Type: KindToolResult, Name: name, Content: content, Success: &success}
}

// Done marks the end of a run. response is the full text for sources that do
// not stream text deltas.
func Done(response string) Event {
	return Event{Type: KindDone, Response: response}
}

// Error reports an upstream failure.
func Error(message string) Event {
	return Event{Type: KindError, Message: message}
}

// TokenUsageEvent builds a usage report. A zero TotalTokens is synthesized as
// input+output and a parallelCount below 1 is treated as 1.
func TokenUsageEvent(u TokenUsage, isTotal bool, parallelCount int) Event {
	if u.TotalTokens == 0 {
		u.TotalTokens = u.InputTokens + u.OutputTokens
	}
	if parallelCount < 1 {
		parallelCount = 1
	}
	return Event{
		Type:                     KindTokenUsage,
		InputTokens:              u.InputTokens,
		OutputTokens:             u.OutputTokens,
		TotalTokens:              u.TotalTokens,
		CacheCreationInputTokens: u.CacheCreationInputTokens,
		CacheReadInputTokens:     u.CacheReadInputTokens,
		IsTotal:                  isTotal,
		ParallelCount:            parallelCount,
	}
}

// Usage returns the token figures carried by a token_usage event.
func (e Event) Usage() TokenUsage {
	return TokenUsage{
		InputTokens:              e.InputTokens,
		OutputTokens:             e.OutputTokens,
		TotalTokens:              e.TotalTokens,
		CacheCreationInputTokens: e.CacheCreationInputTokens,
		CacheReadInputTokens:     e.CacheReadInputTokens,
	}
}

// Succeeded reports the emitter's success flag of a tool_result. Events that
// never set it count as successful.
func (e Event) Succeeded() bool {
	return e.Success == nil || *e.Success
}

// Parallel returns the parallel tool count, at least 1.
func (e Event) Parallel() int {
	if e.ParallelCount < 1 {
		return 1
	}
	return e.ParallelCount
}

// Terminal reports whether the event ends a run.
func (e Event) Terminal() bool {
	return e.Type == KindDone || e.Type == KindError
}

// DecodeEvent parses one wire record. Unknown types decode without error so
// consumers can pass them through untouched.
func DecodeEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("decode stream event: %w", err)
	}
	if ev.Type == "" {
		return Event{}, fmt.Errorf("decode stream event: missing type")
	}
	return ev, nil
}

// Encode renders the event as a single-line JSON record.
func (e Event) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", e.Type, err)
	}
	return data, nil
}
