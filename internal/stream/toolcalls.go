package stream

import "strings"

// ToolCallInfo is one tool invocation being assembled from stream fragments.
type ToolCallInfo struct {
	ID           string
	Name         string
	Args         *Args
	ArgsComplete bool
	Emitted      bool

	buf strings.Builder
}

// ToolCallUpdate carries the fields of a tool call observation. Zero values
// mean "not observed": an empty Name or an empty Args never overwrite.
type ToolCallUpdate struct {
	Name         string
	Args         *Args
	ArgsComplete bool
}

// ToolCallTracker assembles tool calls from fragments that may arrive across
// several events, in registration order.
type ToolCallTracker struct {
	calls   map[string]*ToolCallInfo
	order   []string
	current string
}

// NewToolCallTracker returns an empty tracker.
func NewToolCallTracker() *ToolCallTracker {
	return &ToolCallTracker{calls: make(map[string]*ToolCallInfo)}
}

// Update registers id on first sight, making it the target of argument
// fragments, and merges the observed fields into it. ArgsComplete only ever
// moves from false to true.
func (t *ToolCallTracker) Update(id string, u ToolCallUpdate) *ToolCallInfo {
	call, ok := t.calls[id]
	if !ok {
		call = &ToolCallInfo{ID: id, Args: NewArgs()}
		t.calls[id] = call
		t.order = append(t.order, id)
		t.current = id
	}
	if u.Name != "" {
		call.Name = u.Name
	}
	if HasArgs(u.Args) {
		call.Args = u.Args
	}
	if u.ArgsComplete {
		call.ArgsComplete = true
	}
	return call
}

// AppendJSONDelta appends an argument fragment to the most recently
// registered call. The second argument is the provider's block index; fragments
// are routed by registration recency, not by index, so interleaved fragments of
// parallel calls land on the last call. Fragments for a finalized call are
// dropped.
func (t *ToolCallTracker) AppendJSONDelta(fragment string, _ int) {
	call, ok := t.calls[t.current]
	if !ok || call.ArgsComplete {
		return
	}
	call.buf.WriteString(fragment)
}

// FinalizeAll parses every non-empty buffer into the call's arguments and
// marks all calls complete. A buffer that is not a JSON object leaves the
// previous arguments in place.
func (t *ToolCallTracker) FinalizeAll() {
	for _, id := range t.order {
		call := t.calls[id]
		if call.buf.Len() > 0 {
			if args, err := ParseArgs(call.buf.String()); err == nil {
				call.Args = args
			}
			call.buf.Reset()
		}
		call.ArgsComplete = true
	}
}

// IsReady reports whether the call has a name and has not been emitted yet.
func (t *ToolCallTracker) IsReady(id string) bool {
	call, ok := t.calls[id]
	return ok && call.Name != "" && !call.Emitted
}

// Get returns the call registered under id.
func (t *ToolCallTracker) Get(id string) (*ToolCallInfo, bool) {
	call, ok := t.calls[id]
	return call, ok
}

// All returns every call in registration order.
func (t *ToolCallTracker) All() []*ToolCallInfo {
	out := make([]*ToolCallInfo, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.calls[id])
	}
	return out
}

// Pending returns the calls not yet emitted, in registration order.
func (t *ToolCallTracker) Pending() []*ToolCallInfo {
	var out []*ToolCallInfo
	for _, id := range t.order {
		if call := t.calls[id]; !call.Emitted {
			out = append(out, call)
		}
	}
	return out
}

// EmitAllPending returns the pending calls and marks them emitted.
func (t *ToolCallTracker) EmitAllPending() []*ToolCallInfo {
	pending := t.Pending()
	for _, call := range pending {
		call.Emitted = true
	}
	return pending
}

// MarkEmitted flags a single call as emitted.
func (t *ToolCallTracker) MarkEmitted(id string) {
	if call, ok := t.calls[id]; ok {
		call.Emitted = true
	}
}

// Len returns the number of registered calls.
func (t *ToolCallTracker) Len() int {
	return len(t.order)
}

// Clear forgets every call.
func (t *ToolCallTracker) Clear() {
	t.calls = make(map[string]*ToolCallInfo)
	t.order = nil
	t.current = ""
}
