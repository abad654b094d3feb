package render

import (
	"strings"

	"github.com/mattjoyce/agentlive/internal/layout"
	"github.com/mattjoyce/agentlive/internal/stream"
)

const usageSeparator = 40

// Final draws the non-live summary of a finished or interrupted run.
func (r *Renderer) Final(s stream.Display) string {
	width := r.cfg.width()
	inner := width - 4
	var parts []string

	if r.cfg.ShowThinking && s.ThinkingText != "" {
		text := layout.HeadTail(s.ThinkingText, r.cfg.Limits.ThinkingFinal)
		parts = append(parts, r.panel(ThinkingTitle, r.styleAll(r.st.dim, r.fit(text, inner, 0)), colorBlue))
	}

	if r.cfg.ShowTools && len(s.ToolCalls) > 0 {
		var tools []string
		for i, call := range s.ToolCalls {
			if i >= len(s.ToolResults) {
				tools = append(tools, r.toolHeader(StatusPending, FormatToolCompact(call.Name, call.Args), width))
				continue
			}
			result := s.ToolResults[i]
			status := StatusError
			if result.Success {
				status = StatusSuccess
			}
			tools = append(tools, r.toolHeader(status, FormatToolCompact(call.Name, call.Args), width))

			var usage *stream.TurnUsage
			if i < len(s.TurnUsages) {
				usage = s.TurnUsages[i]
			}
			if r.cfg.Verbose {
				if args := r.formatArgs(call.Args); args != "" {
					tools = append(tools, args)
				}
				tools = append(tools, r.FormatResult(result.Name, result.Content))
				if text, ok := FormatTurnUsage(usage); ok {
					tools = append(tools, r.st.dim.Render(text))
				}
				continue
			}
			lines := FormatToolResultCompact(result.Content, result.Success, r.cfg.ToolResultLines, usage)
			tools = append(tools, r.resultLines(lines, width)...)
		}
		parts = append(parts, strings.Join(tools, "\n")+"\n")
	}

	if s.ResponseText != "" {
		md := r.markdown(s.ResponseText, inner)
		if r.cfg.ShowResponsePanel {
			parts = append(parts, r.panel(ResponseTitle, r.fit(md, inner, 0), colorGreen))
		} else {
			parts = append(parts, "\n"+r.st.assistant.Render("Assistant:")+"\n"+md+"\n")
		}
	}

	if s.Usage != nil {
		if text, ok := FormatTotalUsage(*s.Usage); ok {
			parts = append(parts,
				r.st.dim.Render(strings.Repeat("─", usageSeparator))+"\n"+r.st.dim.Render(text))
		}
	}
	return strings.Join(parts, "\n")
}

func (r *Renderer) formatArgs(args *stream.Args) string {
	if !stream.HasArgs(args) {
		return ""
	}
	data, err := args.MarshalJSON()
	if err != nil {
		return ""
	}
	return r.st.dim.Render("  args: " + layout.Truncate(string(data), r.cfg.Limits.ArgsFormatted))
}
