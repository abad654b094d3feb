package stream

import "fmt"

// ToolCallRecord is a tool call as the session displays it.
type ToolCallRecord struct {
	ID   string
	Name string
	Args *Args
}

// ToolResultRecord is the output of one executed tool.
type ToolResultRecord struct {
	Name    string
	Content string
	Success bool
}

// TurnUsage is the usage of one model turn, attributed to the tools that
// turn requested.
type TurnUsage struct {
	TokenUsage
	ParallelCount int
}

const unknownName = "unknown"

// State aggregates a session's events into the snapshot a view renders.
// It is not safe for concurrent use; the owner serializes HandleEvent and
// reads.
type State struct {
	ThinkingText string
	ResponseText string
	ToolCalls    []ToolCallRecord
	ToolResults  []ToolResultRecord

	// TurnUsages is aligned with ToolResults: entry i belongs to the turn
	// that produced result i. nil entries are placeholders for results that
	// shared a turn with the entry before them.
	TurnUsages []*TurnUsage
	// TokenUsage is the authoritative run total, once reported.
	TokenUsage *TokenUsage

	IsThinking   bool
	IsResponding bool
	IsProcessing bool

	received int
	anon     int
	calls    *ToolCallTracker
	tokens   *TokenTracker
}

// NewState returns an empty session.
func NewState() *State {
	return &State{
		calls:  NewToolCallTracker(),
		tokens: NewTokenTracker(),
	}
}

// HandleEvent folds one event into the snapshot and returns its kind so
// callers can react to structural changes. Unknown kinds change nothing.
func (s *State) HandleEvent(ev Event) Kind {
	switch ev.Type {
	case KindThinking:
		s.setActivity(true, false, false)
		s.ThinkingText += ev.Content

	case KindText:
		s.setActivity(false, true, false)
		s.ResponseText += ev.Content

	case KindToolCall:
		s.setActivity(false, false, false)
		s.upsertToolCall(ev)

	case KindToolResult:
		s.setActivity(false, false, true)
		name := ev.Name
		if name == "" {
			name = unknownName
		}
		s.ToolResults = append(s.ToolResults, ToolResultRecord{
			Name:    name,
			Content: ev.Content,
			Success: ev.Succeeded() && IsSuccess(ev.Content),
		})

	case KindDone:
		s.IsProcessing = false
		if s.ResponseText == "" && ev.Response != "" {
			s.ResponseText = ev.Response
		}

	case KindTokenUsage:
		s.recordUsage(ev)

	case KindError:
		s.setActivity(false, false, false)
		msg := ev.Message
		if msg == "" {
			msg = "Unknown error"
		}
		s.ResponseText += fmt.Sprintf("\n\n[Error] %s", msg)

	default:
		return ev.Type
	}
	s.received++
	return ev.Type
}

func (s *State) setActivity(thinking, responding, processing bool) {
	s.IsThinking = thinking
	s.IsResponding = responding
	s.IsProcessing = processing
}

func (s *State) upsertToolCall(ev Event) {
	key := ev.ID
	if key == "" {
		// Calls without an id can never be matched again; give each its own slot.
		s.anon++
		key = fmt.Sprintf("\x00anon-%d", s.anon)
	}
	before := s.calls.Len()
	call := s.calls.Update(key, ToolCallUpdate{Name: ev.Name, Args: ev.Args, ArgsComplete: ev.ArgsComplete})
	name := call.Name
	if name == "" {
		name = unknownName
	}
	record := ToolCallRecord{ID: ev.ID, Name: name, Args: call.Args}
	if s.calls.Len() > before {
		s.ToolCalls = append(s.ToolCalls, record)
		return
	}
	for i := range s.ToolCalls {
		if s.ToolCalls[i].ID == ev.ID {
			s.ToolCalls[i] = record
			return
		}
	}
}

func (s *State) recordUsage(ev Event) {
	usage := ev.Usage()
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.InputTokens + usage.OutputTokens
	}
	if ev.IsTotal {
		s.TokenUsage = &usage
		return
	}

	parallel := ev.Parallel()
	if parallel > 1 {
		for len(s.TurnUsages) < len(s.ToolResults)-1 {
			s.TurnUsages = append(s.TurnUsages, nil)
		}
	}
	if len(s.ToolResults) > len(s.TurnUsages) {
		s.TurnUsages = append(s.TurnUsages, &TurnUsage{TokenUsage: usage, ParallelCount: parallel})
	}

	s.tokens.Update(UsageReport{
		InputTokens:   usage.InputTokens,
		OutputTokens:  usage.OutputTokens,
		CacheCreation: usage.CacheCreationInputTokens,
		CacheRead:     usage.CacheReadInputTokens,
	})
	s.tokens.FinalizeTurn()
}

// Received reports whether any recognized event has been handled.
func (s *State) Received() bool {
	return s.received > 0
}

// Usage returns the run total: the authoritative total when one was
// reported, otherwise the sum of the per-turn reports seen so far.
func (s *State) Usage() (TokenUsage, bool) {
	if s.TokenUsage != nil {
		return *s.TokenUsage, true
	}
	u := s.tokens.Usage()
	return u, !u.IsEmpty()
}

// Display is what a view draws from a session: its texts, tool rows and
// activity flags. Its slices do not alias the State it came from.
type Display struct {
	// Waiting is set until the first recognized event.
	Waiting bool

	ThinkingText string
	ResponseText string
	ToolCalls    []ToolCallRecord
	ToolResults  []ToolResultRecord
	TurnUsages   []*TurnUsage
	// Usage is the run total from Usage, nil when there is none.
	Usage *TokenUsage

	IsThinking   bool
	IsResponding bool
	IsProcessing bool
}

// DisplayArgs copies the snapshot into the form the renderer takes.
// Argument maps are shared; they are replaced, never mutated, once recorded.
func (s *State) DisplayArgs() Display {
	d := Display{
		Waiting:      !s.Received(),
		ThinkingText: s.ThinkingText,
		ResponseText: s.ResponseText,
		ToolCalls:    append([]ToolCallRecord(nil), s.ToolCalls...),
		ToolResults:  append([]ToolResultRecord(nil), s.ToolResults...),
		TurnUsages:   make([]*TurnUsage, len(s.TurnUsages)),
		IsThinking:   s.IsThinking,
		IsResponding: s.IsResponding,
		IsProcessing: s.IsProcessing,
	}
	for i, u := range s.TurnUsages {
		if u != nil {
			cp := *u
			d.TurnUsages[i] = &cp
		}
	}
	if u, ok := s.Usage(); ok {
		d.Usage = &u
	}
	return d
}
