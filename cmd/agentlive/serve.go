package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattjoyce/agentlive/internal/agent"
	"github.com/mattjoyce/agentlive/internal/api"
	"github.com/mattjoyce/agentlive/internal/config"
	"github.com/mattjoyce/agentlive/internal/localtools"
	"github.com/mattjoyce/agentlive/internal/provider"
	"github.com/mattjoyce/agentlive/internal/storage"
	"github.com/mattjoyce/agentlive/internal/store"
)

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", config.DefaultPath, "path to config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.CheckService(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.CheckCredentials(); err != nil {
		return err
	}

	logger, closeLog, err := newLogger(cfg.Service, true)
	if err != nil {
		return err
	}
	defer closeLog()
	logger.Info("starting agentlive", "version", version, "config", *configPath,
		"provider", cfg.LLM.Provider, "model", cfg.LLM.Model)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := storage.OpenSQLite(ctx, cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	runStore := store.NewRunStore(db)
	usageStore := store.NewUsageStore(db)

	streamer, err := provider.NewStreamer(ctx, cfg.LLM)
	if err != nil {
		return fmt.Errorf("create llm provider: %w", err)
	}
	opts := toolOptions(cfg.Agent)
	tools := func(ctx context.Context, dir string) (*agent.Toolbox, error) {
		return agent.NewToolbox(ctx, localtools.Build(dir, opts))
	}

	runner := agent.NewRunner(runStore, usageStore, streamer, tools, cfg.LLM, cfg.Agent, nil, logger)
	if err := runner.RecoverRuns(ctx); err != nil {
		logger.Error("run recovery failed", "error", err)
	}
	go runner.Start(ctx)

	srv := api.New(api.Config{
		Listen:            cfg.API.Listen,
		Token:             cfg.API.Token,
		HeartbeatInterval: cfg.API.HeartbeatInterval,
		AllowedOrigins:    cfg.API.AllowedOrigins,
	}, runner, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig)
		cancel()
		select {
		case <-runner.Done():
			logger.Info("runner stopped gracefully")
		case <-time.After(10 * time.Second):
			logger.Warn("runner did not stop within 10s, exiting anyway")
		}
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}
}
