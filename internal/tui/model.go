// Package tui runs the live terminal view: it consumes stream events one at a
// time, folds them into a session snapshot and redraws at a capped rate.
package tui

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/agentlive/internal/render"
	"github.com/mattjoyce/agentlive/internal/stream"
)

// ErrInterrupted is returned when the user or the caller's context stops the
// view before the event source closed.
var ErrInterrupted = errors.New("tui: interrupted")

type eventMsg struct {
	Event stream.Event
}

type sourceClosedMsg struct{}

type flushMsg struct {
	At time.Time
}

// Model is the bubbletea model behind Run.
type Model struct {
	state    *stream.State
	renderer *render.Renderer
	events   <-chan stream.Event
	spinner  spinner.Model
	throttle *Throttle
	cancel   context.CancelFunc
	now      func() time.Time

	view        string
	finished    bool
	interrupted bool
}

// NewModel builds a model reading from events and drawing with r.
func NewModel(events <-chan stream.Event, r *render.Renderer, refreshPerSecond int) Model {
	m := Model{
		state:    stream.NewState(),
		renderer: r,
		events:   events,
		spinner:  spinner.New(spinner.WithSpinner(spinner.MiniDot)),
		throttle: NewThrottle(refreshPerSecond),
		now:      time.Now,
	}
	m.view = m.draw()
	return m
}

// State returns the snapshot accumulated so far.
func (m Model) State() *stream.State {
	return m.state
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForEventCmd(m.events), m.spinner.Tick)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.renderer.SetSize(msg.Width, msg.Height)
		return m, m.redraw(true)
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.interrupted = true
			m.finished = true
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}
		return m, nil
	case eventMsg:
		kind := m.state.HandleEvent(msg.Event)
		force := kind == stream.KindToolCall || kind == stream.KindToolResult || msg.Event.Terminal()
		return m, tea.Batch(m.redraw(force), waitForEventCmd(m.events))
	case sourceClosedMsg:
		m.finished = true
		return m, tea.Quit
	case flushMsg:
		if m.throttle.Flush(msg.At) {
			m.view = m.draw()
		}
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, tea.Batch(cmd, m.redraw(false))
	default:
		return m, nil
	}
}

// View is empty once the run has finished so the live region disappears and
// the caller can print the final summary in its place.
func (m Model) View() string {
	if m.finished {
		return ""
	}
	return m.view
}

func (m *Model) redraw(force bool) tea.Cmd {
	if m.throttle.Allow(m.now(), force) {
		m.view = m.draw()
		return nil
	}
	if !m.throttle.Schedule() {
		return nil
	}
	return tea.Tick(m.throttle.Interval(), func(t time.Time) tea.Msg {
		return flushMsg{At: t}
	})
}

func (m Model) draw() string {
	frame := render.BuildFrame(m.state.DisplayArgs(), m.renderer.Height())
	return m.renderer.Live(frame, m.spinner.View())
}

func waitForEventCmd(events <-chan stream.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return sourceClosedMsg{}
		}
		return eventMsg{Event: ev}
	}
}

// Options tunes Run.
type Options struct {
	RefreshPerSecond int
	Input            io.Reader
	Output           io.Writer
	// Cancel stops the event producer when the user interrupts the view.
	Cancel context.CancelFunc
}

// Run shows the live view until events closes, ctx ends or the user
// interrupts. The snapshot is returned in every case; on interruption the
// error is ErrInterrupted.
func Run(ctx context.Context, events <-chan stream.Event, r *render.Renderer, opts Options) (*stream.State, error) {
	m := NewModel(events, r, opts.RefreshPerSecond)
	m.cancel = opts.Cancel

	progOpts := []tea.ProgramOption{tea.WithContext(ctx)}
	if opts.Input != nil {
		progOpts = append(progOpts, tea.WithInput(opts.Input))
	}
	if opts.Output != nil {
		progOpts = append(progOpts, tea.WithOutput(opts.Output))
	}

	final, err := tea.NewProgram(m, progOpts...).Run()
	if err != nil {
		if errors.Is(err, tea.ErrProgramKilled) || ctx.Err() != nil {
			return m.state, ErrInterrupted
		}
		return m.state, err
	}
	if fm, ok := final.(Model); ok && fm.interrupted {
		return fm.state, ErrInterrupted
	}
	return m.state, nil
}

// Collect folds events into a snapshot without drawing anything. It is the
// plain-output counterpart of Run.
func Collect(ctx context.Context, events <-chan stream.Event) (*stream.State, error) {
	state := stream.NewState()
	for {
		select {
		case <-ctx.Done():
			return state, ErrInterrupted
		case ev, ok := <-events:
			if !ok {
				return state, nil
			}
			state.HandleEvent(ev)
		}
	}
}
