package stream

import (
	"encoding/json"
	"math"
	"strconv"
)

// TokenUsage is the token accounting of one turn or of a whole run.
// InputTokens includes both cache subsets; TotalTokens is always
// InputTokens+OutputTokens.
type TokenUsage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	TotalTokens              int `json:"total_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
}

// Add sums two usages field-wise.
func (u TokenUsage) Add(o TokenUsage) TokenUsage {
	return TokenUsage{
		InputTokens:              u.InputTokens + o.InputTokens,
		OutputTokens:             u.OutputTokens + o.OutputTokens,
		TotalTokens:              u.TotalTokens + o.TotalTokens,
		CacheCreationInputTokens: u.CacheCreationInputTokens + o.CacheCreationInputTokens,
		CacheReadInputTokens:     u.CacheReadInputTokens + o.CacheReadInputTokens,
	}
}

// IsEmpty reports whether no tokens were accounted.
func (u TokenUsage) IsEmpty() bool {
	return u.InputTokens == 0 && u.OutputTokens == 0
}

// CachedTokens is the part of the input served from or written to the cache.
func (u TokenUsage) CachedTokens() int {
	return u.CacheCreationInputTokens + u.CacheReadInputTokens
}

// NewInputTokens is the uncached part of the input.
func (u TokenUsage) NewInputTokens() int {
	n := u.InputTokens - u.CachedTokens()
	if n < 0 {
		return 0
	}
	return n
}

// UsageReport is one raw usage observation in canonical form, after the
// provider-specific shapes have been normalized.
type UsageReport struct {
	InputTokens   int
	OutputTokens  int
	CacheCreation int
	CacheRead     int
}

// IsZero reports whether the report carries no figures at all.
func (r UsageReport) IsZero() bool {
	return r == UsageReport{}
}

// NormalizeUsage converts the usage shapes seen at the ingestion boundary
// into a UsageReport. It accepts TokenUsage values, UsageReport values,
// decoded JSON mappings (map[string]any, optionally with a nested
// input_token_details object) and raw JSON. ok is false for nil or
// unrecognized input.
func NormalizeUsage(v any) (UsageReport, bool) {
	switch u := v.(type) {
	case nil:
		return UsageReport{}, false
	case UsageReport:
		return u, true
	case *UsageReport:
		if u == nil {
			return UsageReport{}, false
		}
		return *u, true
	case TokenUsage:
		return UsageReport{
			InputTokens:   u.InputTokens,
			OutputTokens:  u.OutputTokens,
			CacheCreation: u.CacheCreationInputTokens,
			CacheRead:     u.CacheReadInputTokens,
		}, true
	case *TokenUsage:
		if u == nil {
			return UsageReport{}, false
		}
		return NormalizeUsage(*u)
	case json.RawMessage:
		return normalizeRaw(u)
	case []byte:
		return normalizeRaw(u)
	case map[string]any:
		return normalizeMap(u), true
	default:
		return UsageReport{}, false
	}
}

func normalizeRaw(data []byte) (UsageReport, bool) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil || m == nil {
		return UsageReport{}, false
	}
	return normalizeMap(m), true
}

func normalizeMap(m map[string]any) UsageReport {
	r := UsageReport{
		InputTokens:   intField(m, "input_tokens"),
		OutputTokens:  intField(m, "output_tokens"),
		CacheCreation: intField(m, "cache_creation_input_tokens"),
		CacheRead:     intField(m, "cache_read_input_tokens"),
	}
	if details, ok := m["input_token_details"].(map[string]any); ok {
		if n := intField(details, "cache_creation"); n > 0 {
			r.CacheCreation = n
		}
		if n := intField(details, "cache_read"); n > 0 {
			r.CacheRead = n
		}
	}
	return r
}

func intField(m map[string]any, key string) int {
	switch n := m[key].(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0
		}
		return int(n)
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0
		}
		return int(i)
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0
		}
		return i
	default:
		return 0
	}
}

// TokenTracker merges the repeated, cumulative usage reports a provider
// sends during one turn and accumulates finalized turns into a run total.
type TokenTracker struct {
	current    TokenUsage
	hasCurrent bool
	total      TokenUsage
}

// NewTokenTracker returns an empty tracker.
func NewTokenTracker() *TokenTracker {
	return &TokenTracker{}
}

// Update merges one report into the current turn. Every field keeps the
// largest value seen, so a report repeated at message start and message end
// is never double counted. Reports without input or output tokens are ignored.
func (t *TokenTracker) Update(r UsageReport) {
	if r.InputTokens <= 0 && r.OutputTokens <= 0 {
		return
	}
	t.current.InputTokens = max(t.current.InputTokens, r.InputTokens)
	t.current.OutputTokens = max(t.current.OutputTokens, r.OutputTokens)
	t.current.CacheCreationInputTokens = max(t.current.CacheCreationInputTokens, r.CacheCreation)
	t.current.CacheReadInputTokens = max(t.current.CacheReadInputTokens, r.CacheRead)
	// Maxima taken from different reports can overshoot the input they came with.
	if cached := t.current.CachedTokens(); cached > t.current.InputTokens {
		t.current.InputTokens = cached
	}
	t.current.TotalTokens = t.current.InputTokens + t.current.OutputTokens
	t.hasCurrent = true
}

// Current returns the turn in progress, if any report arrived since the last
// finalization.
func (t *TokenTracker) Current() (TokenUsage, bool) {
	return t.current, t.hasCurrent
}

// FinalizeTurn adds the current turn to the run total and returns it. ok is
// false when the turn carried no usage.
func (t *TokenTracker) FinalizeTurn() (TokenUsage, bool) {
	if !t.hasCurrent {
		return TokenUsage{}, false
	}
	turn := t.current
	t.total = t.total.Add(turn)
	t.current = TokenUsage{}
	t.hasCurrent = false
	return turn, true
}

// Usage returns the run total including the unfinalized turn.
func (t *TokenTracker) Usage() TokenUsage {
	if t.hasCurrent {
		return t.total.Add(t.current)
	}
	return t.total
}

// Reset discards all accounting.
func (t *TokenTracker) Reset() {
	*t = TokenTracker{}
}
