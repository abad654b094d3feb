package agent

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/mattjoyce/agentlive/internal/stream"
)

// Emitter receives the events of a run in the order they are produced.
type Emitter func(stream.Event)

// thinkingExtraKey stores signed thinking blocks on an assistant message so
// the native Anthropic client can send them back on the next request.
const thinkingExtraKey = "agentlive_thinking_blocks"

// ThinkingBlock is one signed extended-thinking block of an assistant turn.
type ThinkingBlock struct {
	Index     int
	Text      string
	Signature string
}

// Round is the sink one model turn streams into. It forwards thinking and
// text deltas as events, assembles tool calls with a ToolCallTracker and
// merges usage reports into the run's TokenTracker.
type Round struct {
	emit    Emitter
	tracker *stream.ToolCallTracker
	tokens  *stream.TokenTracker

	// byIndex maps a provider block index to the tool call id it opened.
	byIndex   map[int]string
	previewed map[string]bool

	text     strings.Builder
	thinking map[int]*ThinkingBlock
}

func newRound(emit Emitter, tokens *stream.TokenTracker) *Round {
	return &Round{
		emit:      emit,
		tracker:   stream.NewToolCallTracker(),
		tokens:    tokens,
		byIndex:   make(map[int]string),
		previewed: make(map[string]bool),
		thinking:  make(map[int]*ThinkingBlock),
	}
}

// Thinking forwards a thinking delta for the block at index.
func (r *Round) Thinking(text string, index int) {
	if text == "" {
		return
	}
	r.block(index).Text += text
	r.emit(stream.Thinking(text, index))
}

// ThinkingSignature records the signature that closes a thinking block.
func (r *Round) ThinkingSignature(index int, signature string) {
	if signature == "" {
		return
	}
	r.block(index).Signature = signature
}

func (r *Round) block(index int) *ThinkingBlock {
	b, ok := r.thinking[index]
	if !ok {
		b = &ThinkingBlock{Index: index}
		r.thinking[index] = b
	}
	return b
}

// Text forwards a response text delta.
func (r *Round) Text(text string) {
	if text == "" {
		return
	}
	r.text.WriteString(text)
	r.emit(stream.Text(text))
}

// ToolDelta feeds one tool call observation. id and name are usually only
// present on the first delta of a block; later deltas carry argument
// fragments and are resolved through index.
func (r *Round) ToolDelta(index int, id, name, fragment string) {
	switch {
	case id != "":
		r.byIndex[index] = id
	case r.byIndex[index] != "":
		id = r.byIndex[index]
	default:
		id = fmt.Sprintf("call_%d", index)
		r.byIndex[index] = id
	}

	call := r.tracker.Update(id, stream.ToolCallUpdate{Name: name})
	if r.tracker.IsReady(id) && !r.previewed[id] {
		r.previewed[id] = true
		r.emit(stream.ToolCall(id, call.Name, nil, false))
	}
	if fragment != "" {
		r.tracker.AppendJSONDelta(fragment, index)
	}
}

// Usage merges one usage report into the current turn.
func (r *Round) Usage(report stream.UsageReport) {
	r.tokens.Update(report)
}

// Finish parses every buffered argument and emits each call once with its
// complete arguments. It returns the calls in the order the model opened them.
func (r *Round) Finish() []*stream.ToolCallInfo {
	r.tracker.FinalizeAll()
	calls := r.tracker.EmitAllPending()
	for _, call := range calls {
		name := call.Name
		if name == "" {
			name = "unknown"
		}
		r.emit(stream.ToolCall(call.ID, name, call.Args, true))
	}
	return calls
}

// Response returns the text streamed so far.
func (r *Round) Response() string {
	return r.text.String()
}

// ThinkingBlocks returns the thinking blocks in index order.
func (r *Round) ThinkingBlocks() []ThinkingBlock {
	out := make([]ThinkingBlock, 0, len(r.thinking))
	for _, b := range r.thinking {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Message converts the finished turn into the assistant message that is
// appended to the conversation.
func (r *Round) Message() *schema.Message {
	var calls []schema.ToolCall
	for _, call := range r.tracker.All() {
		raw := []byte("{}")
		if stream.HasArgs(call.Args) {
			if b, err := json.Marshal(call.Args); err == nil {
				raw = b
			}
		}
		calls = append(calls, schema.ToolCall{
			ID:   call.ID,
			Type: "function",
			Function: schema.FunctionCall{
				Name:      call.Name,
				Arguments: string(raw),
			},
		})
	}

	msg := schema.AssistantMessage(r.text.String(), calls)
	blocks := r.ThinkingBlocks()
	if len(blocks) > 0 {
		var reasoning strings.Builder
		for _, b := range blocks {
			reasoning.WriteString(b.Text)
		}
		msg.ReasoningContent = reasoning.String()
		msg.Extra = map[string]any{thinkingExtraKey: blocks}
	}
	return msg
}

// thinkingBlocksOf returns the signed thinking blocks stored on msg.
func thinkingBlocksOf(msg *schema.Message) []ThinkingBlock {
	if msg == nil || msg.Extra == nil {
		return nil
	}
	blocks, _ := msg.Extra[thinkingExtraKey].([]ThinkingBlock)
	return blocks
}
