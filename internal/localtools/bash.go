package localtools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

const (
	defaultBashTimeout = 60 * time.Second
	maxBashTimeout     = 10 * time.Minute
	maxBashOutput      = 30000
)

// BashTool runs a shell command with the workspace as its working directory.
type BashTool struct {
	dir     string
	timeout time.Duration
}

var _ tool.InvokableTool = (*BashTool)(nil)

// Info returns tool metadata for model planning.
func (t *BashTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: "bash",
		Desc: "Run a shell command in the workspace directory and return its combined output.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"command":         {Type: schema.String, Desc: "Command line to run", Required: true},
			"timeout_seconds": {Type: schema.Integer, Desc: "Kill the command after this many seconds (default 60)"},
		}),
	}, nil
}

// InvokableRun executes the command. A non-zero exit is a failed result.
func (t *BashTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var args struct {
		Command        string `json:"command"`
		TimeoutSeconds int    `json:"timeout_seconds"`
	}
	if err := decodeArgs(json.RawMessage(argumentsInJSON), &args); err != nil {
		return failed(err), nil
	}
	if strings.TrimSpace(args.Command) == "" {
		return failed(errors.New("command is required")), nil
	}

	timeout := t.timeout
	if args.TimeoutSeconds > 0 {
		timeout = min(time.Duration(args.TimeoutSeconds)*time.Second, maxBashTimeout)
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := runShell(runCtx, t.dir, args.Command)
	out = clipOutput(out)
	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return failed(fmt.Errorf("command timed out after %s\n\n%s", timeout, out)), nil
	case err != nil:
		return failed(fmt.Errorf("%v\n\n%s", err, out)), nil
	}
	return ok("exit 0", out), nil
}

// runShell prefers bash and falls back to sh where bash is not installed.
func runShell(ctx context.Context, dir, command string) (string, error) {
	out, err := runCommand(ctx, dir, "bash", "-c", command)
	if err == nil || !isCmdNotFound(err) {
		return out, err
	}
	return runCommand(ctx, dir, "sh", "-c", command)
}

func runCommand(ctx context.Context, dir, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.WaitDelay = time.Second
	out, err := cmd.CombinedOutput()
	return strings.TrimRight(string(out), "\n"), err
}

func isCmdNotFound(err error) bool {
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		return errors.Is(execErr.Err, exec.ErrNotFound)
	}
	return false
}

func clipOutput(s string) string {
	if len(s) <= maxBashOutput {
		return s
	}
	return s[:maxBashOutput] + fmt.Sprintf("\n... output truncated (%d bytes total)", len(s))
}
