// Package render turns a session snapshot into the regions of the live view
// and draws them, plus the final summary printed once a run ends.
package render

import (
	"os"
	"runtime"
	"strings"
)

// Limits caps how much text the final summary shows.
type Limits struct {
	ThinkingFinal   int
	ArgsFormatted   int
	ToolResultFinal int
}

// DefaultLimits returns the limits used when the config leaves them unset.
func DefaultLimits() Limits {
	return Limits{
		ThinkingFinal:   2000,
		ArgsFormatted:   300,
		ToolResultFinal: 800,
	}
}

// Config is the explicit display configuration a Renderer is built with.
type Config struct {
	// Width of the view in cells. Zero means 80.
	Width int
	// Height used for budgeting when the terminal size is unknown.
	Height int

	Color         bool
	Unicode       bool
	MarkdownStyle string

	ShowThinking      bool
	ShowTools         bool
	ShowResponsePanel bool
	// Verbose replaces the compact result tree in the final summary with
	// the per-content-type formatting.
	Verbose bool

	ToolResultLines int
	Limits          Limits
}

// DefaultConfig returns the configuration used by the terminal commands.
func DefaultConfig() Config {
	return Config{
		Height:            25,
		Color:             os.Getenv("NO_COLOR") == "",
		Unicode:           SupportsUnicode(os.Getenv),
		MarkdownStyle:     "dark",
		ShowThinking:      true,
		ShowTools:         true,
		ShowResponsePanel: true,
		ToolResultLines:   10,
		Limits:            DefaultLimits(),
	}
}

func (c Config) width() int {
	if c.Width <= 0 {
		return 80
	}
	return max(40, c.Width)
}

func (c Config) height() int {
	if c.Height <= 0 {
		return 25
	}
	return c.Height
}

// SupportsUnicode reports whether the locale announces UTF-8. Without any
// locale variable only Windows consoles are assumed to lack it.
func SupportsUnicode(getenv func(string) string) bool {
	for _, key := range []string{"LC_ALL", "LC_CTYPE", "LANG"} {
		if v := getenv(key); v != "" {
			v = strings.ToLower(v)
			return strings.Contains(v, "utf-8") || strings.Contains(v, "utf8")
		}
	}
	return runtime.GOOS != "windows"
}
