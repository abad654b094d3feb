package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mattjoyce/agentlive/internal/config"
)

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// newLogger builds the process logger. The service logs to stdout; terminal
// commands own the screen, so they log to service.log_file or nowhere.
func newLogger(cfg config.ServiceConfig, toStdout bool) (*slog.Logger, func() error, error) {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}
	noop := func() error { return nil }

	var w io.Writer = io.Discard
	closeFn := noop
	switch {
	case toStdout:
		w = os.Stdout
	case cfg.LogFile != "":
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w, closeFn = f, f.Close
	}

	logger := slog.New(slog.NewJSONHandler(w, opts)).With("service", cfg.Name)
	slog.SetDefault(logger)
	return logger, closeFn, nil
}
