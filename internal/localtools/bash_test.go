package localtools

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mattjoyce/agentlive/internal/stream"
)

func TestBashRunsInWorkspace(t *testing.T) {
	base := t.TempDir()
	bash := findTool(t, Build(base, Options{}), "bash")

	out := invoke(t, bash, map[string]any{"command": "echo hi > note.txt && cat note.txt"})
	if out != stream.SuccessPrefix+" exit 0\n\nhi" {
		t.Fatalf("unexpected output %q", out)
	}
	if _, err := os.Stat(filepath.Join(base, "note.txt")); err != nil {
		t.Fatalf("command should run in the workspace: %v", err)
	}
}

func TestBashFailuresAreResults(t *testing.T) {
	bash := findTool(t, Build(t.TempDir(), Options{}), "bash")

	out := invoke(t, bash, map[string]any{"command": "echo oops; exit 3"})
	if !strings.HasPrefix(out, stream.FailurePrefix) || !strings.Contains(out, "exit status 3") || !strings.Contains(out, "oops") {
		t.Fatalf("unexpected failure output %q", out)
	}

	out = invoke(t, bash, map[string]any{"command": "  "})
	if out != stream.FailurePrefix+" command is required" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestBashTimeout(t *testing.T) {
	bash := findTool(t, Build(t.TempDir(), Options{BashTimeout: 100 * time.Millisecond}), "bash")
	start := time.Now()
	out := invoke(t, bash, map[string]any{"command": "sleep 5"})
	if !strings.Contains(out, "timed out after 100ms") {
		t.Fatalf("expected timeout, got %q", out)
	}
	if time.Since(start) > 3*time.Second {
		t.Fatalf("timeout was not enforced")
	}
}

func TestClipOutput(t *testing.T) {
	long := strings.Repeat("x", maxBashOutput+10)
	got := clipOutput(long)
	if !strings.HasSuffix(got, "output truncated (30010 bytes total)") {
		t.Fatalf("unexpected suffix: %q", got[len(got)-50:])
	}
	if clipOutput("short") != "short" {
		t.Fatalf("short output should pass through")
	}
}
