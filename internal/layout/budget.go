// Package layout splits a terminal's height between the regions of the live
// view and trims text to the lines it was given.
package layout

// MinContentLines is the content budget floor. Below it regions may overflow
// the terminal rather than collapse to nothing.
const MinContentLines = 6

// DefaultLinesPerTool applies when no tool result is shown yet.
const DefaultLinesPerTool = 2

// Shape describes which regions the view currently shows. Only the shape of
// the session matters here, never its text.
type Shape struct {
	TerminalHeight         int
	HasThinking            bool
	HasResponse            bool
	HasResponsePlaceholder bool
	NumTools               int
	NumResults             int
	ShowProcessing         bool
}

// Budget is the number of content lines given to each region.
type Budget struct {
	ThinkingLines int
	ResponseLines int
	ToolLines     int
	LinesPerTool  int
}

// Overhead counts the lines the shape spends outside region content: outer
// margins, panel borders, placeholder and processing lines, one name line per
// tool and one spinner line per pending tool.
func (s Shape) Overhead() int {
	pending := max(0, s.NumTools-s.NumResults)
	fixed := 2
	if s.HasThinking {
		fixed += 2
	}
	if s.HasResponse {
		fixed += 2
	}
	if s.HasResponsePlaceholder {
		fixed++
	}
	if s.ShowProcessing {
		fixed++
	}
	return fixed + max(0, s.NumTools) + pending
}

// ComputeHeightBudget allocates content lines by priority: response first,
// then tool results, then thinking.
func ComputeHeightBudget(s Shape) Budget {
	budget := max(MinContentLines, s.TerminalHeight-s.Overhead())
	hasResults := s.NumResults > 0

	var b Budget
	switch {
	case s.HasResponse && s.HasThinking && hasResults:
		b.ResponseLines = max(3, budget/2)
		rest := budget - b.ResponseLines
		b.ThinkingLines = max(2, rest/3)
		b.ToolLines = rest - b.ThinkingLines
	case s.HasResponse && s.HasThinking:
		b.ResponseLines = max(3, budget*2/3)
		b.ThinkingLines = max(2, budget-b.ResponseLines)
	case s.HasResponse && hasResults:
		b.ResponseLines = max(3, budget*3/5)
		b.ToolLines = budget - b.ResponseLines
	case s.HasResponse:
		b.ResponseLines = budget
	case s.HasThinking && hasResults:
		b.ThinkingLines = max(3, budget*2/5)
		b.ToolLines = budget - b.ThinkingLines
	case s.HasThinking:
		b.ThinkingLines = budget
	case hasResults:
		b.ToolLines = budget
	}
	b.ToolLines = max(0, b.ToolLines)

	b.LinesPerTool = DefaultLinesPerTool
	if hasResults && b.ToolLines > 0 {
		// One line under each result is kept for its token usage.
		b.LinesPerTool = max(1, b.ToolLines/s.NumResults-1)
	}
	return b
}
