package render

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/x/ansi"
	humanize "github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"

	"github.com/mattjoyce/agentlive/internal/layout"
	"github.com/mattjoyce/agentlive/internal/stream"
)

// LineStyle selects how a text line is drawn.
type LineStyle int

const (
	LineDim LineStyle = iota
	LineError
	LineHint
)

// Line is one styled line of a tool result tree.
type Line struct {
	Text  string
	Style LineStyle
}

const resultLineWidth = 80

// FormatToolCompact renders a call as Name(key args), picking the arguments
// that identify the call best for well-known tools.
func FormatToolCompact(name string, args *stream.Args) string {
	if !stream.HasArgs(args) {
		return name + "()"
	}
	lower := strings.ToLower(name)
	switch {
	case lower == "bash":
		return "Bash(" + clip(argString(args, "command", ""), 50) + ")"
	case lower == "read" || lower == "read_file":
		return "Read(" + shortPath(argString(args, "file_path", "")) + ")"
	case lower == "write" || lower == "write_file":
		return "Write(" + shortPath(argString(args, "file_path", "")) + ")"
	case lower == "edit":
		return "Edit(" + shortPath(argString(args, "file_path", "")) + ")"
	case lower == "glob":
		return "Glob(" + clip(argString(args, "pattern", ""), 40) + ")"
	case lower == "grep":
		return fmt.Sprintf("Grep(%s, %s)", clip(argString(args, "pattern", ""), 30), argString(args, "path", "."))
	case lower == "list_dir":
		return "ListDir(" + argString(args, "path", ".") + ")"
	case lower == "exec_python":
		code := argString(args, "code", "")
		first, _, _ := strings.Cut(code, "\n")
		return "exec_python(" + clip(first, 30) + ")"
	case strings.HasPrefix(lower, "adf_"):
		var params []string
		for _, key := range []string{"name", "filter_type", "minutes"} {
			if v, ok := args.Get(key); ok {
				params = append(params, clip(valueString(v), 20))
			}
		}
		return name + "(" + strings.Join(params, ", ") + ")"
	}

	var params []string
	for p := args.Oldest(); p != nil && len(params) < 2; p = p.Next() {
		params = append(params, p.Key+"="+clip(valueString(p.Value), 20))
	}
	return name + "(" + clip(strings.Join(params, ", "), 50) + ")"
}

// FormatToolResultCompact renders a tool result as a tree under its call:
// at most maxLines lines, a "+N lines" hint and the turn's usage line.
func FormatToolResultCompact(content string, success bool, maxLines int, usage *stream.TurnUsage) []Line {
	var out []Line
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		out = append(out, Line{Text: "  └ (empty)", Style: LineDim})
	} else {
		style := LineDim
		if !success {
			style = LineError
		}
		head, remaining := layout.TruncateWithLineHint(trimmed, maxLines)
		var lines []string
		if head != "" {
			lines = strings.Split(head, "\n")
		}
		for i, line := range lines {
			prefix := " "
			if i == 0 {
				prefix = "└"
			}
			line = ansi.Strip(line)
			if runewidth.StringWidth(line) > resultLineWidth {
				line = runewidth.Truncate(line, resultLineWidth, "...")
			}
			out = append(out, Line{Text: "  " + prefix + " " + line, Style: style})
		}
		if remaining > 0 {
			out = append(out, Line{Text: fmt.Sprintf("    ... +%d lines", remaining), Style: LineHint})
		}
	}
	if text, ok := FormatTurnUsage(usage); ok {
		out = append(out, Line{Text: text, Style: LineDim})
	}
	return out
}

// FormatTurnUsage renders one turn's usage inline, splitting the input into
// its uncached and cached parts.
func FormatTurnUsage(u *stream.TurnUsage) (string, bool) {
	if u == nil || (u.InputTokens == 0 && u.OutputTokens == 0) {
		return "", false
	}
	var input string
	switch cached := u.CachedTokens(); {
	case cached > 0 && u.CacheCreationInputTokens > 0:
		input = fmt.Sprintf("%s + %s cache init", comma(u.NewInputTokens()), comma(cached))
	case cached > 0:
		input = fmt.Sprintf("%s + %s cached", comma(u.NewInputTokens()), comma(cached))
	default:
		input = comma(u.InputTokens) + " in"
	}
	text := fmt.Sprintf("  ↳ %s / %s out", input, comma(u.OutputTokens))
	if u.ParallelCount > 1 {
		text += fmt.Sprintf(" (%d tools)", u.ParallelCount)
	}
	return text, true
}

// FormatTotalUsage renders the run's aggregate usage line. Mixed cache use
// is itemized; a single cache kind is shown as new + cached.
func FormatTotalUsage(u stream.TokenUsage) (string, bool) {
	if u.TotalTokens == 0 {
		return "", false
	}
	in, out := comma(u.InputTokens), comma(u.OutputTokens)
	cr, cc := u.CacheReadInputTokens, u.CacheCreationInputTokens
	switch {
	case cr > 0 && cc > 0:
		return fmt.Sprintf("Tokens: %s new + %s cache init + %s cached = %s in / %s out",
			comma(u.NewInputTokens()), comma(cc), comma(cr), in, out), true
	case cc > 0:
		return fmt.Sprintf("Tokens: %s + %s cache init = %s in / %s out",
			comma(u.NewInputTokens()), comma(u.CachedTokens()), in, out), true
	case cr > 0:
		return fmt.Sprintf("Tokens: %s + %s cached = %s in / %s out",
			comma(u.NewInputTokens()), comma(u.CachedTokens()), in, out), true
	default:
		return fmt.Sprintf("Tokens: %s in / %s out", in, out), true
	}
}

func comma(n int) string {
	return humanize.Comma(int64(n))
}

// clip shortens s to limit runes, the last three being an ellipsis.
func clip(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-3]) + "..."
}

func shortPath(path string) string {
	if utf8.RuneCountInString(path) <= 40 {
		return path
	}
	parts := strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' })
	if strings.HasPrefix(path, "/") || strings.HasPrefix(path, `\`) {
		parts = append([]string{"/"}, parts...)
	}
	if len(parts) <= 2 {
		return path
	}
	return ".../" + strings.Join(parts[len(parts)-2:], "/")
}

func argString(args *stream.Args, key, fallback string) string {
	v, ok := args.Get(key)
	if !ok {
		return fallback
	}
	return valueString(v)
}

func valueString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return "null"
	case float64, int, int64, bool:
		return fmt.Sprint(t)
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(data)
	}
}
