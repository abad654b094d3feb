package localtools

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/mattjoyce/agentlive/internal/stream"
)

const defaultReadLimit = 200

// FileTool exposes a single file operation sandboxed to a workspace directory.
type FileTool struct {
	name    string
	desc    string
	params  map[string]*schema.ParameterInfo
	handler func(baseDir string, args json.RawMessage) (string, error)
	baseDir string
}

var _ tool.InvokableTool = (*FileTool)(nil)

// Name returns the tool name.
func (t *FileTool) Name() string { return t.name }

// Info returns tool metadata for model planning.
func (t *FileTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name:        t.name,
		Desc:        t.desc,
		ParamsOneOf: schema.NewParamsOneOfByParams(t.params),
	}, nil
}

// InvokableRun executes the file operation. Failures are reported in the
// output, not as errors.
func (t *FileTool) InvokableRun(_ context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	out, err := t.handler(t.baseDir, json.RawMessage(argumentsInJSON))
	if err != nil {
		return failed(err), nil
	}
	return out, nil
}

// ok formats a successful result: the status line, a blank line, the body.
func ok(summary, body string) string {
	if body == "" {
		return stream.SuccessPrefix + " " + summary
	}
	return stream.SuccessPrefix + " " + summary + "\n\n" + body
}

func failed(err error) string {
	return stream.FailurePrefix + " " + err.Error()
}

// sanitizePath validates and resolves a relative path within baseDir.
func sanitizePath(baseDir, relPath string) (string, error) {
	if relPath == "" {
		return "", fmt.Errorf("path is required")
	}
	if filepath.IsAbs(relPath) {
		return "", fmt.Errorf("absolute paths are not allowed")
	}
	base := filepath.Clean(baseDir)
	cleaned := filepath.Clean(filepath.Join(base, relPath))
	if cleaned != base && !strings.HasPrefix(cleaned, base+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes workspace directory")
	}
	return cleaned, nil
}

func decodeArgs(args json.RawMessage, v any) error {
	if len(strings.TrimSpace(string(args))) == 0 {
		args = json.RawMessage("{}")
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("parse arguments: %w", err)
	}
	return nil
}

func fileTools() []*FileTool {
	return []*FileTool{
		{
			name: "read_file",
			desc: "Read a file in the workspace. Lines are numbered from 1.",
			params: map[string]*schema.ParameterInfo{
				"file_path": {Type: schema.String, Desc: "Relative path within the workspace", Required: true},
				"offset":    {Type: schema.Integer, Desc: "First line to return, 1-based (default 1)"},
				"limit":     {Type: schema.Integer, Desc: "Maximum lines to return (default 200)"},
			},
			handler: handleRead,
		},
		{
			name: "write_file",
			desc: "Create or overwrite a file in the workspace. Creates parent directories as needed.",
			params: map[string]*schema.ParameterInfo{
				"file_path": {Type: schema.String, Desc: "Relative path within the workspace", Required: true},
				"content":   {Type: schema.String, Desc: "File content to write", Required: true},
			},
			handler: handleWrite,
		},
		{
			name: "edit",
			desc: "Replace text in a workspace file. old_string must match exactly and be unique unless replace_all is set.",
			params: map[string]*schema.ParameterInfo{
				"file_path":   {Type: schema.String, Desc: "Relative path within the workspace", Required: true},
				"old_string":  {Type: schema.String, Desc: "Text to replace", Required: true},
				"new_string":  {Type: schema.String, Desc: "Replacement text", Required: true},
				"replace_all": {Type: schema.Boolean, Desc: "Replace every occurrence"},
			},
			handler: handleEdit,
		},
		{
			name: "list_dir",
			desc: "List entries in a workspace directory.",
			params: map[string]*schema.ParameterInfo{
				"path": {Type: schema.String, Desc: "Relative directory path (default '.')"},
			},
			handler: handleList,
		},
	}
}

func handleRead(baseDir string, args json.RawMessage) (string, error) {
	var p struct {
		FilePath string `json:"file_path"`
		Offset   int    `json:"offset"`
		Limit    int    `json:"limit"`
	}
	if err := decodeArgs(args, &p); err != nil {
		return "", err
	}
	if p.Offset <= 0 {
		p.Offset = 1
	}
	if p.Limit <= 0 {
		p.Limit = defaultReadLimit
	}
	abs, err := sanitizePath(baseDir, p.FilePath)
	if err != nil {
		return "", err
	}
	f, err := os.Open(abs)
	if err != nil {
		return "", fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo, shown, truncated := 0, 0, false
	for scanner.Scan() {
		lineNo++
		if lineNo < p.Offset {
			continue
		}
		if shown >= p.Limit {
			truncated = true
			break
		}
		fmt.Fprintf(&b, "%6d\t%s\n", lineNo, scanner.Text())
		shown++
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}

	summary := fmt.Sprintf("%s (%d lines)", p.FilePath, shown)
	if truncated {
		summary += ", truncated"
	}
	return ok(summary, strings.TrimRight(b.String(), "\n")), nil
}

func handleWrite(baseDir string, args json.RawMessage) (string, error) {
	var p struct {
		FilePath string `json:"file_path"`
		Content  string `json:"content"`
	}
	if err := decodeArgs(args, &p); err != nil {
		return "", err
	}
	abs, err := sanitizePath(baseDir, p.FilePath)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", fmt.Errorf("create parent dirs: %w", err)
	}
	if err := os.WriteFile(abs, []byte(p.Content), 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return ok(fmt.Sprintf("wrote %d bytes to %s", len(p.Content), p.FilePath), ""), nil
}

func handleEdit(baseDir string, args json.RawMessage) (string, error) {
	var p struct {
		FilePath   string `json:"file_path"`
		OldString  string `json:"old_string"`
		NewString  string `json:"new_string"`
		ReplaceAll bool   `json:"replace_all"`
	}
	if err := decodeArgs(args, &p); err != nil {
		return "", err
	}
	if p.OldString == "" {
		return "", fmt.Errorf("old_string is required")
	}
	if p.OldString == p.NewString {
		return "", fmt.Errorf("old_string and new_string are identical")
	}
	abs, err := sanitizePath(baseDir, p.FilePath)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}

	content := string(data)
	count := strings.Count(content, p.OldString)
	switch {
	case count == 0:
		return "", fmt.Errorf("old_string not found in %s", p.FilePath)
	case count > 1 && !p.ReplaceAll:
		return "", fmt.Errorf("old_string occurs %d times in %s; set replace_all or add context", count, p.FilePath)
	}
	n := 1
	if p.ReplaceAll {
		n = -1
	}
	updated := strings.Replace(content, p.OldString, p.NewString, n)
	if err := os.WriteFile(abs, []byte(updated), 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	if !p.ReplaceAll {
		count = 1
	}
	return ok(fmt.Sprintf("replaced %d occurrence(s) in %s", count, p.FilePath), ""), nil
}

func handleList(baseDir string, args json.RawMessage) (string, error) {
	var p struct {
		Path string `json:"path"`
	}
	if err := decodeArgs(args, &p); err != nil {
		return "", err
	}
	if p.Path == "" {
		p.Path = "."
	}
	abs, err := sanitizePath(baseDir, p.Path)
	if err != nil {
		return "", err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return "", fmt.Errorf("read directory: %w", err)
	}

	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			lines = append(lines, e.Name()+"/")
			continue
		}
		var size int64
		if info, err := e.Info(); err == nil {
			size = info.Size()
		}
		lines = append(lines, fmt.Sprintf("%s (%d bytes)", e.Name(), size))
	}
	return ok(fmt.Sprintf("%s: %d entries", p.Path, len(entries)), strings.Join(lines, "\n")), nil
}
