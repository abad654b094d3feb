// Package localtools provides the workspace tools a run can call. Every tool
// reports its outcome on the first line of its output, [OK] or [FAILED], and
// never returns an error for a failed operation.
package localtools

import (
	"time"

	"github.com/cloudwego/eino/components/tool"
)

// Options tunes the tool set.
type Options struct {
	// BashTimeout is the default command timeout. Zero means one minute.
	BashTimeout time.Duration
	// DisableBash leaves the bash tool out.
	DisableBash bool
}

// Build returns every tool sandboxed to dir.
func Build(dir string, opts Options) []tool.BaseTool {
	var tools []tool.BaseTool
	if !opts.DisableBash {
		timeout := opts.BashTimeout
		if timeout <= 0 {
			timeout = defaultBashTimeout
		}
		tools = append(tools, &BashTool{dir: dir, timeout: timeout})
	}
	for _, t := range append(fileTools(), searchTools()...) {
		t.baseDir = dir
		tools = append(tools, t)
	}
	return tools
}
