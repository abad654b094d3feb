package render

import (
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/reflow/wordwrap"
	"github.com/muesli/termenv"

	"github.com/mattjoyce/agentlive/internal/layout"
)

var (
	colorBlue   = lipgloss.Color("#3B82F6")
	colorGreen  = lipgloss.Color("#22C55E")
	colorRed    = lipgloss.Color("#EF4444")
	colorYellow = lipgloss.Color("#EAB308")
	colorCyan   = lipgloss.Color("#06B6D4")
	colorGray   = lipgloss.Color("#6B7280")
)

type styles struct {
	dim       lipgloss.Style
	errorLine lipgloss.Style
	hint      lipgloss.Style
	spinner   lipgloss.Style
	executing lipgloss.Style
	name      lipgloss.Style
	assistant lipgloss.Style
	status    map[ToolStatus]lipgloss.Style
}

// Renderer draws frames and final summaries with one explicit
// configuration. It is not safe for concurrent use.
type Renderer struct {
	cfg    Config
	lg     *lipgloss.Renderer
	st     styles
	md     *glamour.TermRenderer
	mdWrap int
}

// New builds a renderer writing for out. out is only inspected for its
// color capabilities.
func New(cfg Config, out io.Writer) *Renderer {
	lg := lipgloss.NewRenderer(out)
	if !cfg.Color {
		lg.SetColorProfile(termenv.Ascii)
	}
	r := &Renderer{cfg: cfg, lg: lg}
	r.st = styles{
		dim:       lg.NewStyle().Faint(true),
		errorLine: lg.NewStyle().Foreground(colorRed).Faint(true),
		hint:      lg.NewStyle().Faint(true).Italic(true),
		spinner:   lg.NewStyle().Foreground(colorCyan),
		executing: lg.NewStyle().Foreground(colorYellow),
		name:      lg.NewStyle().Foreground(colorCyan).Bold(true),
		assistant: lg.NewStyle().Foreground(colorBlue).Bold(true),
		status: map[ToolStatus]lipgloss.Style{
			StatusRunning: lg.NewStyle().Foreground(colorYellow).Bold(true),
			StatusSuccess: lg.NewStyle().Foreground(colorGreen).Bold(true),
			StatusError:   lg.NewStyle().Foreground(colorRed).Bold(true),
			StatusPending: lg.NewStyle().Foreground(colorGray),
		},
	}
	return r
}

// Config returns the configuration the renderer was built with.
func (r *Renderer) Config() Config {
	return r.cfg
}

// SetSize updates the view dimensions, typically on a terminal resize.
func (r *Renderer) SetSize(width, height int) {
	if width > 0 {
		r.cfg.Width = width
	}
	if height > 0 {
		r.cfg.Height = height
	}
}

// Height returns the height frames should be budgeted for.
func (r *Renderer) Height() int {
	return r.cfg.height()
}

// Live draws one frame. spin is the current spinner glyph.
func (r *Renderer) Live(f Frame, spin string) string {
	width := r.cfg.width()
	inner := width - 4
	var out []string
	for _, reg := range f.Regions {
		switch reg.Kind {
		case RegionWaiting:
			out = append(out, r.st.spinner.Render(spin+reg.Text))
		case RegionThinking:
			lines := r.fit(reg.Text, inner, reg.Height)
			out = append(out, r.panel(reg.Title, r.styleAll(r.st.dim, lines), colorBlue))
		case RegionTool:
			out = append(out, r.toolHeader(reg.Status, reg.Label, width))
			if reg.Pending {
				out = append(out, r.st.executing.Render(spin+reg.Text))
				continue
			}
			out = append(out, r.resultLines(reg.Result, width)...)
		case RegionProcessing:
			out = append(out, r.st.spinner.Render(spin+reg.Text))
		case RegionResponse:
			lines := r.fit(r.markdown(reg.Text, inner), inner, reg.Height)
			out = append(out, r.panel(reg.Title, lines, colorGreen))
		case RegionResponsePlaceholder, RegionIdle:
			out = append(out, r.st.dim.Render(reg.Text))
		}
	}
	return strings.Join(out, "\n")
}

func (r *Renderer) toolHeader(status ToolStatus, label string, width int) string {
	text := ansi.Truncate(status.Symbol(r.cfg.Unicode)+" "+label, width, "")
	return r.st.status[status].Render(text)
}

func (r *Renderer) resultLines(lines []Line, width int) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		text := ansi.Truncate(l.Text, width, "")
		switch l.Style {
		case LineError:
			out = append(out, r.st.errorLine.Render(text))
		case LineHint:
			out = append(out, r.st.hint.Render(text))
		default:
			out = append(out, r.st.dim.Render(text))
		}
	}
	return out
}

// panel draws lines inside a rounded border with the title set into the top
// edge.
func (r *Renderer) panel(title string, lines []string, color lipgloss.Color) string {
	width := r.cfg.width()
	b := lipgloss.RoundedBorder()
	edge := r.lg.NewStyle().Foreground(color)

	label := " " + title + " "
	fill := width - 3 - lipgloss.Width(label)
	if fill < 0 {
		label = ansi.Truncate(label, width-3, "")
		fill = 0
	}
	top := edge.Render(b.TopLeft + b.Top + label + strings.Repeat(b.Top, fill) + b.TopRight)

	body := r.lg.NewStyle().
		Border(b, false, true, true, true).
		BorderForeground(color).
		Padding(0, 1).
		Width(width - 2).
		Render(strings.Join(lines, "\n"))
	return top + "\n" + body
}

// fit wraps text to width and keeps its tail within maxLines. A maxLines of
// zero keeps everything.
func (r *Renderer) fit(text string, width, maxLines int) []string {
	width = max(1, width)
	wrapped := wordwrap.String(text, width)
	if maxLines > 0 {
		wrapped = layout.TruncateToLines(wrapped, maxLines)
	}
	lines := strings.Split(wrapped, "\n")
	for i, line := range lines {
		lines[i] = ansi.Truncate(line, width, "")
	}
	return lines
}

func (r *Renderer) styleAll(style lipgloss.Style, lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = style.Render(l)
	}
	return out
}

// markdown renders text with glamour, falling back to the raw text.
func (r *Renderer) markdown(text string, width int) string {
	md := r.markdownRenderer(width)
	if md == nil {
		return text
	}
	out, err := md.Render(text)
	if err != nil {
		return text
	}
	return strings.Trim(out, "\n")
}

func (r *Renderer) markdownRenderer(width int) *glamour.TermRenderer {
	if r.cfg.MarkdownStyle == "" || r.cfg.MarkdownStyle == "none" {
		return nil
	}
	if r.md != nil && r.mdWrap == width {
		return r.md
	}
	style := glamour.WithStandardStyle(r.cfg.MarkdownStyle)
	switch {
	case !r.cfg.Color:
		style = glamour.WithStandardStyle("notty")
	case r.cfg.MarkdownStyle == "auto":
		style = glamour.WithAutoStyle()
	}
	md, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(width))
	if err != nil {
		return nil
	}
	r.md, r.mdWrap = md, width
	return md
}
