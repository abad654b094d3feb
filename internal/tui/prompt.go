package tui

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// ErrPromptClosed is returned when the user leaves the prompt with ctrl+c or
// ctrl+d on an empty line.
var ErrPromptClosed = errors.New("tui: prompt closed")

type promptModel struct {
	input   textinput.Model
	history []string
	// pos indexes history while browsing; len(history) is the fresh line.
	pos       int
	draft     string
	submitted bool
	closed    bool
}

func newPromptModel(label string, history []string) promptModel {
	in := textinput.New()
	in.Prompt = label
	in.Placeholder = "Ask anything, /help for commands"
	in.Focus()
	return promptModel{input: in, history: history, pos: len(history)}
}

func (m promptModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m promptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "enter":
			m.submitted = true
			return m, tea.Quit
		case "ctrl+c":
			m.closed = true
			return m, tea.Quit
		case "ctrl+d":
			if m.input.Value() == "" {
				m.closed = true
				return m, tea.Quit
			}
		case "up":
			if m.pos > 0 {
				if m.pos == len(m.history) {
					m.draft = m.input.Value()
				}
				m.pos--
				m.input.SetValue(m.history[m.pos])
				m.input.CursorEnd()
			}
			return m, nil
		case "down":
			if m.pos < len(m.history) {
				m.pos++
				if m.pos == len(m.history) {
					m.input.SetValue(m.draft)
				} else {
					m.input.SetValue(m.history[m.pos])
				}
				m.input.CursorEnd()
			}
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m promptModel) View() string {
	if m.closed {
		return ""
	}
	if m.submitted {
		return m.input.Prompt + m.input.Value() + "\n"
	}
	return m.input.View()
}

func (m promptModel) value() string {
	return strings.TrimSpace(m.input.Value())
}

// Prompt reads one line from the terminal with history browsing on the arrow
// keys. in and out may be nil to use the process terminal.
func Prompt(ctx context.Context, label string, history []string, in io.Reader, out io.Writer) (string, error) {
	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if in != nil {
		opts = append(opts, tea.WithInput(in))
	}
	if out != nil {
		opts = append(opts, tea.WithOutput(out))
	}
	final, err := tea.NewProgram(newPromptModel(label, history), opts...).Run()
	if err != nil {
		if errors.Is(err, tea.ErrProgramKilled) {
			return "", ErrPromptClosed
		}
		return "", err
	}
	m, ok := final.(promptModel)
	if !ok || m.closed {
		return "", ErrPromptClosed
	}
	return m.value(), nil
}
