package render

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/agentlive/internal/layout"
	"github.com/mattjoyce/agentlive/internal/stream"
)

type resultFormatter func(r *Renderer, name, content string, maxLength int) string

var resultFormatters = map[stream.ContentType]resultFormatter{
	stream.ContentSuccess:  formatSuccess,
	stream.ContentError:    formatError,
	stream.ContentJSON:     formatJSON,
	stream.ContentMarkdown: formatMarkdown,
	stream.ContentText:     formatText,
}

// FormatResult draws a full tool result in the style of its content type.
func (r *Renderer) FormatResult(name, content string) string {
	format, ok := resultFormatters[stream.ClassifyContent(content)]
	if !ok {
		format = formatText
	}
	return format(r, name, content, r.cfg.Limits.ToolResultFinal)
}

func formatSuccess(r *Renderer, name, content string, maxLength int) string {
	return r.coloredPanel(name, layout.Truncate(content, maxLength), colorGreen)
}

func formatError(r *Renderer, name, content string, maxLength int) string {
	return r.coloredPanel(name, layout.Truncate(content, maxLength), colorRed)
}

func formatJSON(r *Renderer, name, content string, maxLength int) string {
	body := strings.TrimSpace(content)
	if strings.HasPrefix(body, stream.SuccessPrefix) {
		body = stream.ExtractBody(body)
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(body), "", "  "); err != nil {
		return formatText(r, name, content, maxLength)
	}
	pretty := layout.Truncate(buf.String(), maxLength)
	return r.st.name.Render(name) + "\n" + r.markdown("```json\n"+pretty+"\n```", r.cfg.width()-4)
}

func formatMarkdown(r *Renderer, name, content string, maxLength int) string {
	inner := r.cfg.width() - 4
	md := r.markdown(layout.Truncate(content, maxLength), inner)
	return r.panel(name, r.fit(md, inner, 0), colorCyan)
}

func formatText(r *Renderer, name, content string, maxLength int) string {
	return r.st.name.Render(name+":") + "\n" + r.st.dim.Render("   "+layout.Truncate(content, maxLength))
}

func (r *Renderer) coloredPanel(title, text string, color lipgloss.Color) string {
	style := r.lg.NewStyle().Foreground(color)
	return r.panel(title, r.styleAll(style, r.fit(text, r.cfg.width()-4, 0)), color)
}
