package stream

import (
	"encoding/json"
	"strings"
)

// Status prefixes tools put on the first line of their output.
const (
	SuccessPrefix = "[OK]"
	FailurePrefix = "[FAILED]"
)

var errorPatterns = []string{
	"Traceback (most recent call last)",
	"Exception:",
	"Error:",
}

var markdownPatterns = []string{"```", "**", "##", "- **"}

// ContentType classifies tool output for display.
type ContentType int

const (
	ContentText ContentType = iota
	ContentSuccess
	ContentError
	ContentJSON
	ContentMarkdown
)

func (c ContentType) String() string {
	switch c {
	case ContentSuccess:
		return "success"
	case ContentError:
		return "error"
	case ContentJSON:
		return "json"
	case ContentMarkdown:
		return "markdown"
	default:
		return "text"
	}
}

// ClassifyContent detects the kind of a tool output. Status prefixes win,
// then JSON, error patterns, markdown, and finally plain text.
func ClassifyContent(content string) ContentType {
	content = strings.TrimSpace(content)
	switch {
	case strings.HasPrefix(content, SuccessPrefix):
		if IsJSON(ExtractBody(content)) {
			return ContentJSON
		}
		return ContentSuccess
	case strings.HasPrefix(content, FailurePrefix):
		return ContentError
	case IsJSON(content):
		return ContentJSON
	case containsAny(content, errorPatterns):
		return ContentError
	case strings.HasPrefix(content, "#") || containsAny(content, markdownPatterns):
		return ContentMarkdown
	default:
		return ContentText
	}
}

// IsSuccess reports whether a tool output signals success: the status prefix
// when present, otherwise the absence of error patterns.
func IsSuccess(content string) bool {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, SuccessPrefix) {
		return true
	}
	if strings.HasPrefix(content, FailurePrefix) {
		return false
	}
	return !containsAny(content, errorPatterns)
}

// ExtractBody returns what follows the status line and its blank separator.
func ExtractBody(content string) string {
	parts := strings.SplitN(content, "\n", 3)
	if len(parts) < 3 {
		return ""
	}
	return strings.TrimSpace(parts[2])
}

// IsJSON reports whether s is a complete JSON object or array.
func IsJSON(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	object := strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}")
	array := strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]")
	if !object && !array {
		return false
	}
	return json.Valid([]byte(s))
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
