package layout

import "strings"

// Ellipsis marks text removed by TruncateToLines.
const Ellipsis = "..."

// TruncatedSuffix is appended by Truncate.
const TruncatedSuffix = "\n... (truncated)"

// TruncateToLines keeps the tail of text. When text has more than maxLines
// lines the result is an ellipsis line followed by the last maxLines-1 lines.
// A cap below 1 is treated as 1.
func TruncateToLines(text string, maxLines int) string {
	maxLines = max(1, maxLines)
	lines := strings.Split(text, "\n")
	if len(lines) <= maxLines {
		return text
	}
	tail := lines[len(lines)-(maxLines-1):]
	if len(tail) == 0 {
		return Ellipsis
	}
	return Ellipsis + "\n" + strings.Join(tail, "\n")
}

// Truncate cuts content to maxLength bytes and appends TruncatedSuffix.
func Truncate(content string, maxLength int) string {
	return TruncateWithSuffix(content, maxLength, TruncatedSuffix)
}

// TruncateWithSuffix cuts content to maxLength bytes, backing off to a rune
// boundary, and appends suffix when anything was removed.
func TruncateWithSuffix(content string, maxLength int, suffix string) string {
	if len(content) <= maxLength {
		return content
	}
	return cutRunes(content, maxLength) + suffix
}

// TruncateWithLineHint keeps the first maxLines lines of the trimmed content
// and reports how many lines were dropped, so callers can print "+N lines".
func TruncateWithLineHint(content string, maxLines int) (string, int) {
	lines := strings.Split(strings.TrimSpace(content), "\n")
	if len(lines) <= maxLines {
		return strings.TrimSpace(content), 0
	}
	maxLines = max(0, maxLines)
	return strings.Join(lines[:maxLines], "\n"), len(lines) - maxLines
}

// CountLines counts the lines of the trimmed content. Only the empty string
// has zero lines.
func CountLines(content string) int {
	if content == "" {
		return 0
	}
	return len(strings.Split(strings.TrimSpace(content), "\n"))
}

// HeadTail keeps the first and last halves of content when it exceeds
// maxLength, joined by a truncation marker.
func HeadTail(content string, maxLength int) string {
	if len(content) <= maxLength {
		return content
	}
	half := maxLength / 2
	head := cutRunes(content, half)
	tail := content[len(content)-half:]
	for len(tail) > 0 && !isRuneStart(tail[0]) {
		tail = tail[1:]
	}
	return head + "\n\n... (truncated) ...\n\n" + tail
}

func cutRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if n >= len(s) {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
