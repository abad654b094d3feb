package localtools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/tool"

	"github.com/mattjoyce/agentlive/internal/stream"
)

func findTool(t *testing.T, tools []tool.BaseTool, name string) tool.InvokableTool {
	t.Helper()
	for _, bt := range tools {
		info, err := bt.Info(context.Background())
		if err != nil {
			t.Fatalf("info: %v", err)
		}
		if info.Name == name {
			return bt.(tool.InvokableTool)
		}
	}
	t.Fatalf("tool %s not found", name)
	return nil
}

func invoke(t *testing.T, it tool.InvokableTool, args map[string]any) string {
	t.Helper()
	raw, _ := json.Marshal(args)
	out, err := it.InvokableRun(context.Background(), string(raw))
	if err != nil {
		t.Fatalf("unexpected Go error: %v", err)
	}
	return out
}

func TestSanitizePath(t *testing.T) {
	base := t.TempDir()

	tests := []struct {
		name    string
		rel     string
		wantErr bool
	}{
		{"simple file", "foo.txt", false},
		{"nested", "a/b/c.txt", false},
		{"dot path", ".", false},
		{"empty", "", true},
		{"absolute", "/etc/passwd", true},
		{"escape", "../outside", true},
		{"sneaky escape", "a/../../outside", true},
		{"sibling prefix", "../" + filepath.Base(base) + "-evil/x", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := sanitizePath(base, tt.rel)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q, got path %q", tt.rel, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !filepath.IsAbs(got) {
				t.Fatalf("expected absolute path, got %q", got)
			}
		})
	}
}

func TestBuildNamesEveryTool(t *testing.T) {
	tools := Build(t.TempDir(), Options{})
	var names []string
	for _, bt := range tools {
		info, _ := bt.Info(context.Background())
		names = append(names, info.Name)
	}
	if got := strings.Join(names, ","); got != "bash,read_file,write_file,edit,list_dir,glob,grep" {
		t.Fatalf("unexpected tools %s", got)
	}
	if n := len(Build(t.TempDir(), Options{DisableBash: true})); n != 6 {
		t.Fatalf("expected 6 tools without bash, got %d", n)
	}
}

func TestWriteThenRead(t *testing.T) {
	base := t.TempDir()
	tools := Build(base, Options{})

	out := invoke(t, findTool(t, tools, "write_file"), map[string]any{"file_path": "sub/test.txt", "content": "hello\nworld"})
	if !strings.HasPrefix(out, stream.SuccessPrefix) || !strings.Contains(out, "wrote 11 bytes") {
		t.Fatalf("unexpected write output: %q", out)
	}

	out = invoke(t, findTool(t, tools, "read_file"), map[string]any{"file_path": "sub/test.txt"})
	if !stream.IsSuccess(out) {
		t.Fatalf("read failed: %q", out)
	}
	body := stream.ExtractBody(out)
	if !strings.Contains(body, "1\thello") || !strings.Contains(body, "2\tworld") {
		t.Fatalf("unexpected read body: %q", body)
	}
	if strings.Contains(out, "truncated") {
		t.Fatalf("unexpected truncation: %q", out)
	}
}

func TestReadOffsetAndLimit(t *testing.T) {
	base := t.TempDir()
	var lines []string
	for i := 1; i <= 10; i++ {
		lines = append(lines, "line"+string(rune('0'+i%10)))
	}
	if err := os.WriteFile(filepath.Join(base, "big.txt"), []byte(strings.Join(lines, "\n")), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	out := invoke(t, findTool(t, Build(base, Options{}), "read_file"), map[string]any{"file_path": "big.txt", "offset": 4, "limit": 3})
	if !strings.Contains(out, "(3 lines), truncated") {
		t.Fatalf("expected truncated 3-line read, got %q", out)
	}
	body := stream.ExtractBody(out)
	if !strings.HasPrefix(body, "4\tline4") || strings.Contains(body, "line7") {
		t.Fatalf("unexpected window: %q", body)
	}
}

func TestEdit(t *testing.T) {
	base := t.TempDir()
	path := filepath.Join(base, "main.go")
	if err := os.WriteFile(path, []byte("a := 1\nb := 1\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	edit := findTool(t, Build(base, Options{}), "edit")

	out := invoke(t, edit, map[string]any{"file_path": "main.go", "old_string": "1", "new_string": "2"})
	if !strings.HasPrefix(out, stream.FailurePrefix) || !strings.Contains(out, "occurs 2 times") {
		t.Fatalf("ambiguous edit should fail, got %q", out)
	}

	out = invoke(t, edit, map[string]any{"file_path": "main.go", "old_string": "a := 1", "new_string": "a := 3"})
	if !stream.IsSuccess(out) {
		t.Fatalf("edit failed: %q", out)
	}

	out = invoke(t, edit, map[string]any{"file_path": "main.go", "old_string": "1", "new_string": "4", "replace_all": true})
	if !strings.Contains(out, "replaced 1 occurrence") {
		t.Fatalf("unexpected replace_all output: %q", out)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "a := 3\nb := 4\n" {
		t.Fatalf("unexpected file content %q", data)
	}

	out = invoke(t, edit, map[string]any{"file_path": "main.go", "old_string": "zzz", "new_string": "y"})
	if !strings.Contains(out, "not found") {
		t.Fatalf("missing old_string should fail, got %q", out)
	}
}

func TestListDir(t *testing.T) {
	base := t.TempDir()
	if err := os.MkdirAll(filepath.Join(base, "subdir"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(base, "a.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	out := invoke(t, findTool(t, Build(base, Options{}), "list_dir"), map[string]any{})
	if !strings.Contains(out, ".: 2 entries") {
		t.Fatalf("unexpected summary: %q", out)
	}
	body := stream.ExtractBody(out)
	if !strings.Contains(body, "a.txt (5 bytes)") || !strings.Contains(body, "subdir/") {
		t.Fatalf("unexpected listing: %q", body)
	}
}

func TestPathEscapeIsAFailedResult(t *testing.T) {
	base := t.TempDir()
	tools := Build(base, Options{})
	args := map[string]any{
		"file_path":  "../escape",
		"path":       "../escape",
		"content":    "bad",
		"old_string": "a",
		"new_string": "b",
		"pattern":    "x",
	}
	for _, name := range []string{"read_file", "write_file", "edit", "list_dir", "grep"} {
		out := invoke(t, findTool(t, tools, name), args)
		if !strings.HasPrefix(out, stream.FailurePrefix) || !strings.Contains(out, "escapes workspace") {
			t.Fatalf("%s: expected escape failure, got %q", name, out)
		}
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(base), "escape")); !os.IsNotExist(err) {
		t.Fatalf("nothing should be written outside the workspace")
	}
}

func TestMalformedArgumentsAreAFailedResult(t *testing.T) {
	read := findTool(t, Build(t.TempDir(), Options{}), "read_file")
	out, err := read.InvokableRun(context.Background(), `{"file_path":`)
	if err != nil {
		t.Fatalf("unexpected Go error: %v", err)
	}
	if !strings.HasPrefix(out, stream.FailurePrefix+" parse arguments") {
		t.Fatalf("unexpected output %q", out)
	}
}
