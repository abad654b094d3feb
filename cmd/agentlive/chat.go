package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/mattjoyce/agentlive/internal/config"
	"github.com/mattjoyce/agentlive/internal/tui"
)

type chatAction int

const (
	chatPrompt chatAction = iota
	chatExit
	chatHelp
	chatConfig
	chatUnknown
)

// parseChatLine classifies one line of chat input. Lines starting with a
// slash are commands.
func parseChatLine(line string) chatAction {
	if !strings.HasPrefix(line, "/") {
		return chatPrompt
	}
	switch strings.ToLower(strings.Fields(line)[0]) {
	case "/exit", "/quit", "/q":
		return chatExit
	case "/help":
		return chatHelp
	case "/config":
		return chatConfig
	}
	return chatUnknown
}

var chatHelpLines = []string{
	"Commands:",
	"  /help     Show this help",
	"  /config   Show the active configuration",
	"  /exit     Leave the chat (also /quit, /q)",
	"Anything else is sent to the model. The conversation is kept until you leave.",
}

// describeConfig summarizes cfg for /config. Secrets are never shown.
func describeConfig(cfg *config.Config) []string {
	thinking := "off"
	if cfg.LLM.ThinkingEnabled() {
		thinking = fmt.Sprintf("on (budget %d)", cfg.LLM.Thinking.BudgetTokens)
	}
	sdk := "eino"
	if cfg.LLM.UsesNativeSDK() {
		sdk = "native"
	}
	ledger := "disabled"
	if cfg.Database.Enabled {
		ledger = cfg.Database.Path
	}
	logFile := cfg.Service.LogFile
	if logFile == "" {
		logFile = "(discarded)"
	}
	return []string{
		fmt.Sprintf("provider:   %s (%s sdk)", cfg.LLM.Provider, sdk),
		fmt.Sprintf("model:      %s", cfg.LLM.Model),
		fmt.Sprintf("max tokens: %d", cfg.LLM.MaxTokens),
		fmt.Sprintf("thinking:   %s", thinking),
		fmt.Sprintf("max steps:  %d", cfg.Agent.MaxSteps),
		fmt.Sprintf("workspace:  %s", cfg.Agent.WorkspaceDir),
		fmt.Sprintf("ledger:     %s", ledger),
		fmt.Sprintf("log file:   %s", logFile),
	}
}

// lineReader reads chat input: the interactive prompt on a terminal, plain
// lines otherwise.
type lineReader func(ctx context.Context, history []string) (string, error)

func newLineReader(in *os.File) lineReader {
	if term.IsTerminal(int(in.Fd())) {
		return func(ctx context.Context, history []string) (string, error) {
			return tui.Prompt(ctx, "> ", history, nil, nil)
		}
	}
	scanner := bufio.NewScanner(in)
	return func(ctx context.Context, _ []string) (string, error) {
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return "", err
			}
			return "", io.EOF
		}
		return strings.TrimSpace(scanner.Text()), ctx.Err()
	}
}

func runChat(args []string) error {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	configPath := fs.String("config", config.DefaultPath, "path to config file")
	noThinking := fs.Bool("no-thinking", false, "disable extended thinking")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	t, err := openTerminal(ctx, *configPath, *noThinking)
	if err != nil {
		return err
	}
	defer t.Close()

	fmt.Fprintf(t.out, "agentlive chat with %s/%s. Type /help for commands.\n", t.cfg.LLM.Provider, t.cfg.LLM.Model)
	return chatLoop(ctx, t, newLineReader(os.Stdin))
}

func chatLoop(ctx context.Context, t *terminal, read lineReader) error {
	var history []string
	for {
		line, err := read(ctx, history)
		switch {
		case errors.Is(err, tui.ErrPromptClosed), errors.Is(err, io.EOF), ctx.Err() != nil:
			return nil
		case err != nil:
			return err
		case line == "":
			continue
		}
		history = append(history, line)

		switch parseChatLine(line) {
		case chatExit:
			return nil
		case chatHelp:
			writeLines(t.out, chatHelpLines...)
		case chatConfig:
			writeLines(t.out, describeConfig(t.cfg)...)
		case chatUnknown:
			fmt.Fprintf(t.out, "unknown command %s, try /help\n", strings.Fields(line)[0])
		default:
			_, err := t.ask(ctx, line)
			switch {
			case errors.Is(err, tui.ErrInterrupted):
				if ctx.Err() != nil {
					return nil
				}
				fmt.Fprintln(t.out, "(interrupted)")
			case err != nil:
				t.logger.Error("prompt failed", "error", err)
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
			}
		}
	}
}
