package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/cloudwego/eino/schema"

	"github.com/mattjoyce/agentlive/internal/stream"
)

// MessagesClient is the subset of the Anthropic SDK used for streaming. It is
// satisfied by *sdk.MessageService.
type MessagesClient interface {
	NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion]
}

// AnthropicOptions configures the native Anthropic streamer.
type AnthropicOptions struct {
	Model     string
	MaxTokens int
	// ThinkingBudget enables extended thinking when positive.
	ThinkingBudget int
}

// AnthropicStreamer drives a round through the Anthropic Messages streaming
// API, which exposes extended thinking, input_json_delta fragments and cache
// usage.
type AnthropicStreamer struct {
	msg  MessagesClient
	opts AnthropicOptions
}

// NewAnthropicStreamer wraps msg.
func NewAnthropicStreamer(msg MessagesClient, opts AnthropicOptions) (*AnthropicStreamer, error) {
	if msg == nil {
		return nil, errors.New("anthropic client is required")
	}
	if opts.Model == "" {
		return nil, errors.New("anthropic model identifier is required")
	}
	if opts.MaxTokens <= 0 {
		return nil, errors.New("anthropic max_tokens must be positive")
	}
	return &AnthropicStreamer{msg: msg, opts: opts}, nil
}

// StreamRound implements Streamer.
func (a *AnthropicStreamer) StreamRound(ctx context.Context, req RoundRequest, r *Round) error {
	params, err := a.params(req)
	if err != nil {
		return err
	}

	st := a.msg.NewStreaming(ctx, params)
	defer st.Close()

	for st.Next() {
		handleAnthropicEvent(st.Current(), r)
	}
	if err := st.Err(); err != nil {
		return fmt.Errorf("anthropic stream: %w", err)
	}
	return ctx.Err()
}

func (a *AnthropicStreamer) params(req RoundRequest) (sdk.MessageNewParams, error) {
	msgs, err := encodeMessages(req.Messages)
	if err != nil {
		return sdk.MessageNewParams{}, err
	}
	tools, err := encodeTools(req.Tools)
	if err != nil {
		return sdk.MessageNewParams{}, err
	}

	params := sdk.MessageNewParams{
		MaxTokens: int64(a.opts.MaxTokens),
		Messages:  msgs,
		Model:     sdk.Model(a.opts.Model),
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}
	if len(tools) > 0 {
		params.Tools = tools
	}
	if a.opts.ThinkingBudget > 0 {
		params.Thinking = sdk.ThinkingConfigParamOfEnabled(int64(a.opts.ThinkingBudget))
	}
	return params, nil
}

// handleAnthropicEvent feeds one stream event into r.
func handleAnthropicEvent(event sdk.MessageStreamEventUnion, r *Round) {
	switch ev := event.AsAny().(type) {
	case sdk.MessageStartEvent:
		u := ev.Message.Usage
		r.Usage(anthropicUsage(u.InputTokens, u.OutputTokens, u.CacheReadInputTokens, u.CacheCreationInputTokens))
	case sdk.ContentBlockStartEvent:
		if toolUse, ok := ev.ContentBlock.AsAny().(sdk.ToolUseBlock); ok {
			r.ToolDelta(int(ev.Index), toolUse.ID, toolUse.Name, "")
		}
	case sdk.ContentBlockDeltaEvent:
		idx := int(ev.Index)
		switch delta := ev.Delta.AsAny().(type) {
		case sdk.TextDelta:
			r.Text(delta.Text)
		case sdk.ThinkingDelta:
			r.Thinking(delta.Thinking, idx)
		case sdk.SignatureDelta:
			r.ThinkingSignature(idx, delta.Signature)
		case sdk.InputJSONDelta:
			if delta.PartialJSON != "" {
				r.ToolDelta(idx, "", "", delta.PartialJSON)
			}
		}
	case sdk.MessageDeltaEvent:
		u := ev.Usage
		r.Usage(anthropicUsage(u.InputTokens, u.OutputTokens, u.CacheReadInputTokens, u.CacheCreationInputTokens))
	}
}

// anthropicUsage reports input as the full prompt size: Anthropic counts
// cached prompt tokens separately from input_tokens.
func anthropicUsage(input, output, cacheRead, cacheCreation int64) stream.UsageReport {
	return stream.UsageReport{
		InputTokens:   int(input + cacheRead + cacheCreation),
		OutputTokens:  int(output),
		CacheRead:     int(cacheRead),
		CacheCreation: int(cacheCreation),
	}
}

// encodeMessages converts the conversation into Anthropic message params.
// Consecutive tool results are merged into one user message.
func encodeMessages(msgs []*schema.Message) ([]sdk.MessageParam, error) {
	out := make([]sdk.MessageParam, 0, len(msgs))
	var results []sdk.ContentBlockParamUnion
	flush := func() {
		if len(results) > 0 {
			out = append(out, sdk.NewUserMessage(results...))
			results = nil
		}
	}

	for _, m := range msgs {
		switch m.Role {
		case schema.Tool:
			results = append(results, sdk.NewToolResultBlock(m.ToolCallID, m.Content, !stream.IsSuccess(m.Content)))
		case schema.User:
			flush()
			if m.Content != "" {
				out = append(out, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
			}
		case schema.Assistant:
			flush()
			blocks := make([]sdk.ContentBlockParamUnion, 0, len(m.ToolCalls)+2)
			for _, b := range thinkingBlocksOf(m) {
				if b.Signature != "" {
					blocks = append(blocks, sdk.NewThinkingBlock(b.Signature, b.Text))
				}
			}
			if m.Content != "" {
				blocks = append(blocks, sdk.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				var input any = map[string]any{}
				if tc.Function.Arguments != "" {
					if err := json.Unmarshal([]byte(tc.Function.Arguments), &input); err != nil {
						return nil, fmt.Errorf("anthropic: tool call %s arguments: %w", tc.ID, err)
					}
				}
				blocks = append(blocks, sdk.NewToolUseBlock(tc.ID, input, tc.Function.Name))
			}
			if len(blocks) > 0 {
				out = append(out, sdk.NewAssistantMessage(blocks...))
			}
		case schema.System:
			// System prompts travel in MessageNewParams.System.
		default:
			return nil, fmt.Errorf("anthropic: unsupported message role %q", m.Role)
		}
	}
	flush()
	if len(out) == 0 {
		return nil, errors.New("anthropic: at least one message is required")
	}
	return out, nil
}

// encodeTools converts eino tool definitions into Anthropic tool params.
func encodeTools(infos []*schema.ToolInfo) ([]sdk.ToolUnionParam, error) {
	tools := make([]sdk.ToolUnionParam, 0, len(infos))
	for _, info := range infos {
		if info == nil || info.Name == "" {
			continue
		}
		inputSchema, err := toolInputSchema(info)
		if err != nil {
			return nil, fmt.Errorf("anthropic: tool %q schema: %w", info.Name, err)
		}
		u := sdk.ToolUnionParamOfTool(inputSchema, info.Name)
		if u.OfTool != nil && info.Desc != "" {
			u.OfTool.Description = sdk.String(info.Desc)
		}
		tools = append(tools, u)
	}
	return tools, nil
}

func toolInputSchema(info *schema.ToolInfo) (sdk.ToolInputSchemaParam, error) {
	if info.ParamsOneOf == nil {
		return sdk.ToolInputSchemaParam{Properties: map[string]any{}}, nil
	}
	js, err := info.ParamsOneOf.ToJSONSchema()
	if err != nil {
		return sdk.ToolInputSchemaParam{}, err
	}
	if js == nil {
		return sdk.ToolInputSchemaParam{Properties: map[string]any{}}, nil
	}
	raw, err := json.Marshal(js)
	if err != nil {
		return sdk.ToolInputSchemaParam{}, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return sdk.ToolInputSchemaParam{}, err
	}
	return sdk.ToolInputSchemaParam{ExtraFields: m}, nil
}
