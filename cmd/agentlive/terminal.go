package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"

	"github.com/mattjoyce/agentlive/internal/agent"
	"github.com/mattjoyce/agentlive/internal/config"
	"github.com/mattjoyce/agentlive/internal/localtools"
	"github.com/mattjoyce/agentlive/internal/provider"
	"github.com/mattjoyce/agentlive/internal/render"
	"github.com/mattjoyce/agentlive/internal/storage"
	"github.com/mattjoyce/agentlive/internal/store"
	"github.com/mattjoyce/agentlive/internal/stream"
	"github.com/mattjoyce/agentlive/internal/tui"
)

// renderConfig turns the display section into the renderer configuration.
// width and height are the terminal size, zero when unknown.
func renderConfig(d config.DisplayConfig, width, height int, getenv func(string) string) render.Config {
	rc := render.DefaultConfig()
	rc.Width = d.Width
	if rc.Width == 0 {
		rc.Width = width
	}
	rc.Height = d.DefaultHeight
	if height > 0 {
		rc.Height = height
	}
	rc.Color = !d.NoColor && getenv("NO_COLOR") == ""
	rc.Unicode = !d.ASCII && render.SupportsUnicode(getenv)
	rc.MarkdownStyle = d.MarkdownStyle
	rc.ShowThinking = d.Thinking()
	rc.ToolResultLines = d.ToolResultLines
	rc.Verbose = d.Verbose
	if d.ThinkingFinalChars > 0 {
		rc.Limits.ThinkingFinal = d.ThinkingFinalChars
	}
	return rc
}

// terminalSize reports the size of f when it is a terminal.
func terminalSize(f *os.File) (width, height int, ok bool) {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return 0, 0, false
	}
	w, h, err := term.GetSize(fd)
	if err != nil {
		return 0, 0, true
	}
	return w, h, true
}

// show renders events live when stdout is a terminal, then prints the final
// summary. Plain output gets only the summary.
func show(ctx context.Context, events <-chan stream.Event, cancel context.CancelFunc, d config.DisplayConfig, out *os.File) (*stream.State, error) {
	width, height, tty := terminalSize(out)
	r := render.New(renderConfig(d, width, height, os.Getenv), out)

	var state *stream.State
	var err error
	if tty {
		state, err = tui.Run(ctx, events, r, tui.Options{
			RefreshPerSecond: d.RefreshPerSecond,
			Output:           out,
			Cancel:           cancel,
		})
	} else {
		state, err = tui.Collect(ctx, events)
	}
	fmt.Fprintln(out, r.Final(state.DisplayArgs()))
	return state, err
}

// terminal is what run and chat share: a session wired to the configured
// model and local tools, plus the optional usage ledger.
type terminal struct {
	cfg     *config.Config
	session *agent.Session
	ledger  *ledger
	logger  *slog.Logger
	out     *os.File
	closers []func() error
}

func openTerminal(ctx context.Context, configPath string, noThinking bool) (*terminal, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if noThinking {
		off := false
		cfg.LLM.Thinking.Enabled = &off
	}
	if err := cfg.CheckCredentials(); err != nil {
		return nil, err
	}

	logger, closeLog, err := newLogger(cfg.Service, false)
	if err != nil {
		return nil, err
	}
	t := &terminal{cfg: cfg, logger: logger, out: os.Stdout, closers: []func() error{closeLog}}

	streamer, err := provider.NewStreamer(ctx, cfg.LLM)
	if err != nil {
		t.Close()
		return nil, fmt.Errorf("create llm provider: %w", err)
	}
	if err := os.MkdirAll(cfg.Agent.WorkspaceDir, 0o755); err != nil {
		t.Close()
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	toolbox, err := agent.NewToolbox(ctx, localtools.Build(cfg.Agent.WorkspaceDir, toolOptions(cfg.Agent)))
	if err != nil {
		t.Close()
		return nil, fmt.Errorf("build tools: %w", err)
	}
	t.session = agent.NewSession(streamer, toolbox, cfg.Agent, logger)

	if cfg.Database.Enabled {
		db, err := storage.OpenSQLite(ctx, cfg.Database.Path)
		if err != nil {
			t.Close()
			return nil, fmt.Errorf("open database: %w", err)
		}
		t.closers = append(t.closers, db.Close)
		t.ledger = newLedger(store.NewRunStore(db), store.NewUsageStore(db), cfg.LLM, logger)
	}

	logger.Info("terminal session ready", "provider", cfg.LLM.Provider, "model", cfg.LLM.Model, "ledger", cfg.Database.Enabled)
	return t, nil
}

func toolOptions(cfg config.AgentConfig) localtools.Options {
	return localtools.Options{BashTimeout: cfg.ToolTimeout}
}

// ask answers one prompt in the session, showing its events as they come.
func (t *terminal) ask(ctx context.Context, prompt string) (*stream.State, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if t.cfg.Agent.Deadline > 0 {
		var stop context.CancelFunc
		runCtx, stop = context.WithTimeout(runCtx, t.cfg.Agent.Deadline)
		defer stop()
	}

	events := t.session.Stream(runCtx, prompt)
	if t.ledger != nil {
		events = t.ledger.track(runCtx, prompt, events)
	}
	return show(runCtx, events, cancel, t.cfg.Display, t.out)
}

func (t *terminal) Close() {
	for i := len(t.closers) - 1; i >= 0; i-- {
		if err := t.closers[i](); err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		}
	}
	t.closers = nil
}

// writeLines prints lines to w, one per line.
func writeLines(w io.Writer, lines ...string) {
	for _, l := range lines {
		fmt.Fprintln(w, l)
	}
}
