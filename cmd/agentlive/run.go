package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mattjoyce/agentlive/internal/config"
)

func runPrompt(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", config.DefaultPath, "path to config file")
	noThinking := fs.Bool("no-thinking", false, "disable extended thinking")
	if err := fs.Parse(args); err != nil {
		return err
	}
	prompt := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if prompt == "" {
		return errors.New("usage: agentlive run [--config path] [--no-thinking] <prompt>")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	t, err := openTerminal(ctx, *configPath, *noThinking)
	if err != nil {
		return err
	}
	defer t.Close()

	_, err = t.ask(ctx, prompt)
	return err
}
