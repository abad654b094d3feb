package render

import (
	"github.com/mattjoyce/agentlive/internal/layout"
	"github.com/mattjoyce/agentlive/internal/stream"
)

// Texts shown next to spinners and placeholders.
const (
	WaitingText    = " AI is thinking..."
	ExecutingText  = " Executing..."
	AnalyzingText  = " AI is analyzing results..."
	GeneratingText = "⏳ Generating response..."
	IdleText       = "⏳ Processing..."
)

// Panel titles.
const (
	ThinkingTitle = "Thinking"
	ResponseTitle = "Response"
	activeSuffix  = " ..."
)

// RegionKind identifies a region of the live view.
type RegionKind int

const (
	RegionWaiting RegionKind = iota
	RegionThinking
	RegionTool
	RegionProcessing
	RegionResponse
	RegionResponsePlaceholder
	RegionIdle
)

// Region is one block of the live view with the text it shows and the lines
// it was given.
type Region struct {
	Kind  RegionKind
	Title string
	Text  string
	// Lines of panel content for thinking and response regions.
	Height int

	// Tool regions.
	Status  ToolStatus
	Label   string
	Result  []Line
	Pending bool
}

// Frame is the layout request for one redraw.
type Frame struct {
	Regions []Region
	Budget  layout.Budget
}

// BuildFrame lays out the snapshot for a terminal of the given height.
func BuildFrame(s stream.Display, height int) Frame {
	if s.Waiting {
		return Frame{Regions: []Region{{Kind: RegionWaiting, Text: WaitingText}}}
	}

	hasThinking := s.ThinkingText != ""
	hasResponse := s.ResponseText != ""
	placeholder := s.IsResponding && !hasThinking && !hasResponse
	processing := s.IsProcessing && !s.IsThinking && !s.IsResponding && !hasResponse

	budget := layout.ComputeHeightBudget(layout.Shape{
		TerminalHeight:         height,
		HasThinking:            hasThinking,
		HasResponse:            hasResponse,
		HasResponsePlaceholder: placeholder,
		NumTools:               len(s.ToolCalls),
		NumResults:             len(s.ToolResults),
		ShowProcessing:         processing,
	})
	f := Frame{Budget: budget}

	if hasThinking {
		title := ThinkingTitle
		if s.IsThinking {
			title += activeSuffix
		}
		text := layout.TruncateToLines(s.ThinkingText, budget.ThinkingLines)
		f.Regions = append(f.Regions, Region{
			Kind:   RegionThinking,
			Title:  title,
			Text:   text,
			Height: min(layout.CountLines(text), budget.ThinkingLines),
		})
	}

	for i, call := range s.ToolCalls {
		region := Region{Kind: RegionTool, Label: FormatToolCompact(call.Name, call.Args)}
		if i >= len(s.ToolResults) {
			region.Status = StatusRunning
			region.Pending = true
			region.Text = ExecutingText
			f.Regions = append(f.Regions, region)
			continue
		}
		result := s.ToolResults[i]
		region.Status = StatusError
		if result.Success {
			region.Status = StatusSuccess
		}
		var usage *stream.TurnUsage
		if i < len(s.TurnUsages) {
			usage = s.TurnUsages[i]
		}
		lines := FormatToolResultCompact(result.Content, result.Success, budget.LinesPerTool, usage)
		// The extra line is the usage annotation.
		region.Result = lines[:min(len(lines), budget.LinesPerTool+1)]
		f.Regions = append(f.Regions, region)
	}

	if processing {
		f.Regions = append(f.Regions, Region{Kind: RegionProcessing, Text: AnalyzingText})
	}

	switch {
	case hasResponse:
		title := ResponseTitle
		if s.IsResponding {
			title += activeSuffix
		}
		text := layout.TruncateToLines(s.ResponseText, budget.ResponseLines)
		f.Regions = append(f.Regions, Region{
			Kind:   RegionResponse,
			Title:  title,
			Text:   text,
			Height: min(layout.CountLines(text), budget.ResponseLines),
		})
	case placeholder:
		f.Regions = append(f.Regions, Region{Kind: RegionResponsePlaceholder, Text: GeneratingText})
	}

	if len(f.Regions) == 0 {
		f.Regions = append(f.Regions, Region{Kind: RegionIdle, Text: IdleText})
	}
	return f
}
