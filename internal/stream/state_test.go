package stream

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateSingleToolSession(t *testing.T) {
	s := NewState()
	require.True(t, s.DisplayArgs().Waiting)

	events := []Event{
		Thinking("Let me ", 0),
		Thinking("check", 0),
		ToolCall("A", "Bash", nil, false),
		ToolCall("A", "", argsOf(t, `{"cmd":"ls"}`), true),
		ToolResult("Bash", "[OK]\n\nfile1\nfile2", true),
		TokenUsageEvent(TokenUsage{InputTokens: 100, OutputTokens: 20}, false, 1),
		Text("Done."),
		TokenUsageEvent(TokenUsage{InputTokens: 250, OutputTokens: 45}, true, 1),
		Done(""),
	}
	for _, ev := range events {
		assert.Equal(t, ev.Type, s.HandleEvent(ev))
	}

	assert.Equal(t, "Let me check", s.ThinkingText)
	assert.Equal(t, "Done.", s.ResponseText)
	require.Len(t, s.ToolCalls, 1)
	assert.Equal(t, "A", s.ToolCalls[0].ID)
	assert.Equal(t, "Bash", s.ToolCalls[0].Name)
	v, _ := s.ToolCalls[0].Args.Get("cmd")
	assert.Equal(t, "ls", v)

	require.Len(t, s.ToolResults, 1)
	assert.True(t, s.ToolResults[0].Success)
	assert.Equal(t, ContentSuccess, ClassifyContent(s.ToolResults[0].Content))

	require.Len(t, s.TurnUsages, 1)
	require.NotNil(t, s.TurnUsages[0])
	assert.Equal(t, 120, s.TurnUsages[0].TotalTokens)
	assert.Equal(t, 1, s.TurnUsages[0].ParallelCount)

	require.NotNil(t, s.TokenUsage)
	assert.Equal(t, 295, s.TokenUsage.TotalTokens)
	assert.False(t, s.IsProcessing)
	assert.False(t, s.IsThinking)
	assert.True(t, s.Received())
}

func TestStateParallelTurnAttribution(t *testing.T) {
	s := NewState()
	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("t%d", i)
		s.HandleEvent(ToolCall(id, "read_file", argsOf(t, fmt.Sprintf(`{"path":"f%d"}`, i)), true))
	}
	for i := 0; i < 3; i++ {
		s.HandleEvent(ToolResult("read_file", "[OK]\n\nbody", true))
	}
	s.HandleEvent(TokenUsageEvent(TokenUsage{InputTokens: 900, OutputTokens: 90}, false, 3))

	require.Len(t, s.TurnUsages, 3)
	assert.Nil(t, s.TurnUsages[0])
	assert.Nil(t, s.TurnUsages[1])
	require.NotNil(t, s.TurnUsages[2])
	assert.Equal(t, 3, s.TurnUsages[2].ParallelCount)

	s.HandleEvent(ToolCall("t3", "bash", argsOf(t, `{"command":"pwd"}`), true))
	s.HandleEvent(ToolResult("bash", "[OK]\n\n/tmp", true))
	s.HandleEvent(TokenUsageEvent(TokenUsage{InputTokens: 1000, OutputTokens: 5}, false, 1))
	require.Len(t, s.TurnUsages, 4)
	assert.Equal(t, 1005, s.TurnUsages[3].TotalTokens)

	usage, ok := s.Usage()
	require.True(t, ok)
	assert.Equal(t, 1095, usage.TotalTokens, "derived from per-turn reports until a total arrives")
}

func TestStateUsageWithoutResultsIsNotAttributed(t *testing.T) {
	s := NewState()
	s.HandleEvent(TokenUsageEvent(TokenUsage{InputTokens: 10, OutputTokens: 1}, false, 1))
	assert.Empty(t, s.TurnUsages)

	usage, ok := s.Usage()
	require.True(t, ok)
	assert.Equal(t, 11, usage.TotalTokens)
}

func TestStateErrorAndDone(t *testing.T) {
	s := NewState()
	s.HandleEvent(Text("partial"))
	s.HandleEvent(Error(""))
	assert.Equal(t, "partial\n\n[Error] Unknown error", s.ResponseText)
	assert.False(t, s.IsResponding)

	s = NewState()
	s.HandleEvent(Done("whole answer"))
	assert.Equal(t, "whole answer", s.ResponseText)

	s = NewState()
	s.HandleEvent(Text("streamed"))
	s.HandleEvent(Done("ignored"))
	assert.Equal(t, "streamed", s.ResponseText)
}

func TestStateToolDefaults(t *testing.T) {
	s := NewState()
	s.HandleEvent(ToolCall("", "", nil, false))
	s.HandleEvent(ToolCall("", "", nil, false))
	s.HandleEvent(Event{Type: KindToolResult, Content: "Traceback (most recent call last):\n..."})

	require.Len(t, s.ToolCalls, 2, "calls without id are never merged")
	assert.Equal(t, "unknown", s.ToolCalls[0].Name)
	require.Len(t, s.ToolResults, 1)
	assert.Equal(t, "unknown", s.ToolResults[0].Name)
	assert.False(t, s.ToolResults[0].Success)
	assert.True(t, s.IsProcessing)
	assert.Equal(t, 1, len(s.ToolCalls)-len(s.ToolResults))
}

func TestStateIgnoresUnknownKinds(t *testing.T) {
	s := NewState()
	kind := s.HandleEvent(Event{Type: "heartbeat", Content: "x"})
	assert.Equal(t, Kind("heartbeat"), kind)
	assert.False(t, s.Received())
	assert.True(t, s.DisplayArgs().Waiting)
}

func TestDisplayArgsIsDetachedFromLaterEvents(t *testing.T) {
	s := NewState()
	s.HandleEvent(ToolCall("A", "Bash", nil, false))
	s.HandleEvent(ToolResult("Bash", "[OK]\n\nx", true))
	s.HandleEvent(TokenUsageEvent(TokenUsage{InputTokens: 10, OutputTokens: 2}, false, 1))
	s.HandleEvent(Text("one"))

	d := s.DisplayArgs()
	assert.False(t, d.Waiting)
	require.NotNil(t, d.Usage)
	assert.Equal(t, 12, d.Usage.TotalTokens)

	s.HandleEvent(ToolCall("A", "", argsOf(t, `{"cmd":"ls"}`), true))
	s.HandleEvent(ToolCall("B", "Read", nil, false))
	s.HandleEvent(Text(" two"))
	s.TurnUsages[0].TotalTokens = 99

	require.Len(t, d.ToolCalls, 1)
	assert.Equal(t, 0, d.ToolCalls[0].Args.Len())
	assert.Equal(t, "one", d.ResponseText)
	assert.Equal(t, 12, d.TurnUsages[0].TotalTokens)

	require.Len(t, s.ToolCalls, 2, "repeated id still merges after a copy was taken")
	v, _ := s.ToolCalls[0].Args.Get("cmd")
	assert.Equal(t, "ls", v)
	assert.Len(t, s.DisplayArgs().ToolCalls, 2)
}

func TestStateFlagsAreExclusive(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	kinds := []Event{
		Thinking("t", 0),
		Text("x"),
		ToolCall("id", "tool", nil, false),
		ToolResult("tool", "[OK]\n\nok", true),
		Done(""),
		TokenUsageEvent(TokenUsage{InputTokens: 1, OutputTokens: 1}, false, 1),
		Error("boom"),
	}

	properties.Property("at most one activity flag is set", prop.ForAll(
		func(seq []int) bool {
			s := NewState()
			for _, i := range seq {
				s.HandleEvent(kinds[i])
				set := 0
				for _, f := range []bool{s.IsThinking, s.IsResponding, s.IsProcessing} {
					if f {
						set++
					}
				}
				if set > 1 {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, len(kinds)-1)),
	))

	properties.Property("tool calls dedupe by id keeping first position and last values", prop.ForAll(
		func(ids []int, names []string) bool {
			s := NewState()
			lastName := map[string]string{}
			var order []string
			for i, n := range ids {
				id := fmt.Sprintf("c%d", n%5)
				name := ""
				if i < len(names) {
					name = names[i]
				}
				if _, seen := lastName[id]; !seen {
					order = append(order, id)
					lastName[id] = ""
				}
				if name != "" {
					lastName[id] = name
				}
				s.HandleEvent(ToolCall(id, name, nil, false))
			}
			if len(s.ToolCalls) != len(order) {
				return false
			}
			for i, call := range s.ToolCalls {
				want := lastName[order[i]]
				if want == "" {
					want = "unknown"
				}
				if call.ID != order[i] || call.Name != want {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 20)),
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
