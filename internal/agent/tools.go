package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/sync/errgroup"

	"github.com/mattjoyce/agentlive/internal/stream"
)

// Toolbox holds the tools a session may call, indexed by name.
type Toolbox struct {
	byName map[string]tool.InvokableTool
	infos  []*schema.ToolInfo
}

// NewToolbox resolves the metadata of every tool. Tools that cannot be
// invoked directly are rejected.
func NewToolbox(ctx context.Context, tools []tool.BaseTool) (*Toolbox, error) {
	b := &Toolbox{byName: make(map[string]tool.InvokableTool, len(tools))}
	for _, bt := range tools {
		info, err := bt.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("tool info: %w", err)
		}
		inv, ok := bt.(tool.InvokableTool)
		if !ok {
			return nil, fmt.Errorf("tool %q is not invokable", info.Name)
		}
		if _, dup := b.byName[info.Name]; dup {
			return nil, fmt.Errorf("duplicate tool name %q", info.Name)
		}
		b.byName[info.Name] = inv
		b.infos = append(b.infos, info)
	}
	return b, nil
}

// Infos returns the tool definitions advertised to the model.
func (b *Toolbox) Infos() []*schema.ToolInfo {
	if b == nil {
		return nil
	}
	return b.infos
}

// Len returns the number of tools.
func (b *Toolbox) Len() int {
	if b == nil {
		return 0
	}
	return len(b.infos)
}

// Invoke runs one call. Failures are reported in the result text, never as
// an error, so the model can see them.
func (b *Toolbox) Invoke(ctx context.Context, call *stream.ToolCallInfo) string {
	var inv tool.InvokableTool
	if b != nil {
		inv = b.byName[call.Name]
	}
	if inv == nil {
		return fmt.Sprintf("%s Unknown tool: %s", stream.FailurePrefix, call.Name)
	}

	raw := []byte("{}")
	if stream.HasArgs(call.Args) {
		data, err := json.Marshal(call.Args)
		if err != nil {
			return fmt.Sprintf("%s Invalid arguments: %s", stream.FailurePrefix, err)
		}
		raw = data
	}

	out, err := inv.InvokableRun(ctx, string(raw))
	if err != nil {
		return fmt.Sprintf("%s %s", stream.FailurePrefix, err)
	}
	return out
}

// ExecConfig controls how a round's tool calls are run.
type ExecConfig struct {
	Parallel    bool
	MaxParallel int
	Timeout     time.Duration
}

// Execute runs calls and returns their results in call order. With Parallel
// set, up to MaxParallel calls run at once.
func (b *Toolbox) Execute(ctx context.Context, calls []*stream.ToolCallInfo, cfg ExecConfig, logger *slog.Logger) []string {
	results := make([]string, len(calls))
	run := func(i int) {
		call := calls[i]
		callCtx := ctx
		if cfg.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
			defer cancel()
		}
		start := time.Now()
		results[i] = b.Invoke(callCtx, call)
		logger.Debug("tool finished", "tool", call.Name, "success", stream.IsSuccess(results[i]), "duration", time.Since(start))
	}

	if !cfg.Parallel || len(calls) < 2 {
		for i := range calls {
			run(i)
		}
		return results
	}

	var g errgroup.Group
	if cfg.MaxParallel > 0 {
		g.SetLimit(cfg.MaxParallel)
	}
	for i := range calls {
		g.Go(func() error {
			run(i)
			return nil
		})
	}
	_ = g.Wait()
	return results
}
