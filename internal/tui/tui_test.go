package tui

import (
	"bytes"
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/agentlive/internal/render"
	"github.com/mattjoyce/agentlive/internal/stream"
)

func testRenderer() *render.Renderer {
	cfg := render.DefaultConfig()
	cfg.Color = false
	cfg.Unicode = true
	cfg.MarkdownStyle = "none"
	cfg.Width = 80
	cfg.Height = 30
	return render.New(cfg, &bytes.Buffer{})
}

func fixedModel(t *testing.T, events chan stream.Event, at *time.Time) Model {
	t.Helper()
	m := NewModel(events, testRenderer(), 10)
	m.now = func() time.Time { return *at }
	return m
}

func step(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(Model)
	require.True(t, ok)
	return nm, cmd
}

func TestThrottleCapsRate(t *testing.T) {
	th := NewThrottle(10)
	t0 := time.Unix(1000, 0)

	assert.True(t, th.Allow(t0, false))
	assert.False(t, th.Allow(t0.Add(10*time.Millisecond), false))
	assert.True(t, th.dirty)
	assert.True(t, th.Schedule())
	assert.False(t, th.Schedule(), "only one flush may be pending")

	assert.True(t, th.Allow(t0.Add(20*time.Millisecond), true), "forced redraw bypasses the cap")
	assert.False(t, th.dirty)
	assert.False(t, th.Flush(t0.Add(100*time.Millisecond)), "forced redraw already paid the debt")

	assert.True(t, th.Allow(t0.Add(300*time.Millisecond), false))
}

func TestThrottleFlushOwesRedraw(t *testing.T) {
	th := NewThrottle(0)
	assert.Equal(t, 100*time.Millisecond, th.Interval())
	t0 := time.Unix(1000, 0)
	th.Allow(t0, false)
	th.Allow(t0, false)
	require.True(t, th.Schedule())
	assert.True(t, th.Flush(t0.Add(th.Interval())))
	assert.False(t, th.dirty)
	assert.False(t, th.Flush(t0.Add(2*th.Interval())))
}

func TestModelShowsWaitingBeforeFirstEvent(t *testing.T) {
	m := NewModel(make(chan stream.Event), testRenderer(), 10)
	assert.Contains(t, m.View(), render.WaitingText)
	assert.True(t, m.State().DisplayArgs().Waiting)
}

func TestModelThrottlesTextButForcesToolEvents(t *testing.T) {
	events := make(chan stream.Event, 4)
	now := time.Unix(1000, 0)
	m := fixedModel(t, events, &now)

	m, cmd := step(t, m, eventMsg{Event: stream.Text("Hello")})
	require.NotNil(t, cmd)
	assert.Contains(t, m.View(), "Hello")

	m, _ = step(t, m, eventMsg{Event: stream.Text(" world")})
	assert.NotContains(t, m.View(), "world", "second redraw in the same tick is coalesced")
	assert.True(t, m.throttle.dirty)
	assert.Equal(t, "Hello world", m.State().ResponseText)

	args, err := stream.ParseArgs(`{"command":"ls -la"}`)
	require.NoError(t, err)
	m, _ = step(t, m, eventMsg{Event: stream.ToolCall("t1", "bash", args, true)})
	assert.Contains(t, m.View(), "ls -la", "tool calls redraw immediately")

	m, _ = step(t, m, eventMsg{Event: stream.ToolResult("bash", "file1\nfile2", true)})
	assert.Contains(t, m.View(), "file1")
}

func TestModelFlushRedrawsCoalescedState(t *testing.T) {
	events := make(chan stream.Event, 1)
	now := time.Unix(1000, 0)
	m := fixedModel(t, events, &now)

	m, _ = step(t, m, eventMsg{Event: stream.Thinking("first", 0)})
	m, _ = step(t, m, eventMsg{Event: stream.Thinking(" second", 0)})
	assert.NotContains(t, m.View(), "second")

	m, cmd := step(t, m, flushMsg{At: now.Add(100 * time.Millisecond)})
	assert.Nil(t, cmd)
	assert.Contains(t, m.View(), "first second")
}

func TestModelQuitsWhenSourceCloses(t *testing.T) {
	events := make(chan stream.Event)
	m := NewModel(events, testRenderer(), 10)

	close(events)
	msg := waitForEventCmd(events)()
	require.IsType(t, sourceClosedMsg{}, msg)

	m, cmd := step(t, m, msg)
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Empty(t, m.View())
	assert.False(t, m.interrupted)
}

func TestModelInterruptCancelsProducer(t *testing.T) {
	events := make(chan stream.Event)
	m := NewModel(events, testRenderer(), 10)
	cancelled := false
	m.cancel = func() { cancelled = true }

	m, _ = step(t, m, eventMsg{Event: stream.Text("partial")})
	m, cmd := step(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})

	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.True(t, cancelled)
	assert.True(t, m.interrupted)
	assert.Equal(t, "partial", m.State().ResponseText, "snapshot survives the interrupt")
}

func TestModelResizeUpdatesRenderer(t *testing.T) {
	r := testRenderer()
	m := NewModel(make(chan stream.Event), r, 10)
	step(t, m, tea.WindowSizeMsg{Width: 100, Height: 12})
	assert.Equal(t, 12, r.Height())
	assert.Equal(t, 100, r.Config().Width)
}

func TestWaitForEventDeliversOneEvent(t *testing.T) {
	events := make(chan stream.Event, 2)
	events <- stream.Text("a")
	events <- stream.Text("b")

	msg := waitForEventCmd(events)()
	em, ok := msg.(eventMsg)
	require.True(t, ok)
	assert.Equal(t, "a", em.Event.Content)
	assert.Len(t, events, 1)
}

func TestCollectFoldsUntilClose(t *testing.T) {
	events := make(chan stream.Event, 3)
	events <- stream.Text("Hi")
	events <- stream.Done("Hi")
	close(events)

	state, err := Collect(context.Background(), events)
	require.NoError(t, err)
	assert.Equal(t, "Hi", state.ResponseText)
	assert.False(t, state.IsProcessing)
}

func TestCollectStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	state, err := Collect(ctx, make(chan stream.Event))
	assert.ErrorIs(t, err, ErrInterrupted)
	assert.NotNil(t, state)
}

func typeText(t *testing.T, m promptModel, text string) promptModel {
	t.Helper()
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
	return next.(promptModel)
}

func pressKey(m promptModel, k tea.KeyType) (promptModel, tea.Cmd) {
	next, cmd := m.Update(tea.KeyMsg{Type: k})
	return next.(promptModel), cmd
}

func TestPromptSubmitsTrimmedLine(t *testing.T) {
	m := newPromptModel("You: ", nil)
	m = typeText(t, m, "  list files  ")
	m, cmd := pressKey(m, tea.KeyEnter)

	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.True(t, m.submitted)
	assert.Equal(t, "list files", m.value())
	assert.Contains(t, m.View(), "You: ")
}

func TestPromptBrowsesHistory(t *testing.T) {
	m := newPromptModel("> ", []string{"first", "second"})
	m = typeText(t, m, "draft")

	m, _ = pressKey(m, tea.KeyUp)
	assert.Equal(t, "second", m.input.Value())
	m, _ = pressKey(m, tea.KeyUp)
	assert.Equal(t, "first", m.input.Value())
	m, _ = pressKey(m, tea.KeyUp)
	assert.Equal(t, "first", m.input.Value(), "stops at the oldest entry")

	m, _ = pressKey(m, tea.KeyDown)
	assert.Equal(t, "second", m.input.Value())
	m, _ = pressKey(m, tea.KeyDown)
	assert.Equal(t, "draft", m.input.Value(), "returns to the unsent line")
}

func TestPromptCtrlDClosesOnlyWhenEmpty(t *testing.T) {
	m := newPromptModel("> ", nil)
	m = typeText(t, m, "x")
	m, _ = pressKey(m, tea.KeyCtrlD)
	assert.False(t, m.closed)

	m = newPromptModel("> ", nil)
	m, cmd := pressKey(m, tea.KeyCtrlD)
	assert.True(t, m.closed)
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Empty(t, m.View())
}
