package agent

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/mattjoyce/agentlive/internal/stream"
)

// EinoStreamer drives a round through an eino ToolCallingChatModel.
type EinoStreamer struct {
	model model.ToolCallingChatModel
}

// NewEinoStreamer wraps m.
func NewEinoStreamer(m model.ToolCallingChatModel) *EinoStreamer {
	return &EinoStreamer{model: m}
}

// StreamRound implements Streamer.
func (e *EinoStreamer) StreamRound(ctx context.Context, req RoundRequest, r *Round) error {
	m := e.model
	if len(req.Tools) > 0 {
		bound, err := m.WithTools(req.Tools)
		if err != nil {
			return fmt.Errorf("bind tools: %w", err)
		}
		m = bound
	}

	input := make([]*schema.Message, 0, len(req.Messages)+1)
	if req.System != "" {
		input = append(input, schema.SystemMessage(req.System))
	}
	input = append(input, req.Messages...)

	sr, err := m.Stream(ctx, input)
	if err != nil {
		return fmt.Errorf("model stream: %w", err)
	}
	defer sr.Close()

	for {
		chunk, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("model stream: %w", err)
		}
		applyChunk(chunk, r)
	}
}

// applyChunk feeds one streamed message fragment into r.
func applyChunk(chunk *schema.Message, r *Round) {
	if chunk == nil {
		return
	}
	r.Thinking(chunk.ReasoningContent, 0)
	r.Text(chunk.Content)
	for i, tc := range chunk.ToolCalls {
		index := i
		if tc.Index != nil {
			index = *tc.Index
		}
		r.ToolDelta(index, tc.ID, tc.Function.Name, tc.Function.Arguments)
	}
	if chunk.ResponseMeta != nil && chunk.ResponseMeta.Usage != nil {
		r.Usage(usageFromEino(chunk.ResponseMeta.Usage))
	}
}

func usageFromEino(u *schema.TokenUsage) stream.UsageReport {
	return stream.UsageReport{
		InputTokens:  u.PromptTokens,
		OutputTokens: u.CompletionTokens,
		CacheRead:    u.PromptTokenDetails.CachedTokens,
	}
}
