package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattjoyce/agentlive/internal/client"
	"github.com/mattjoyce/agentlive/internal/config"
)

// serviceURL derives the client base URL from api.listen. Wildcard hosts are
// reached over loopback.
func serviceURL(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return "http://" + listen
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func runWatch(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configPath := fs.String("config", config.DefaultPath, "path to config file")
	apiBase := fs.String("api", "", "base URL of the agentlive service (default from api.listen)")
	token := fs.String("token", "", "bearer token (default api.token or AGENTLIVE_API_TOKEN)")
	pollInterval := fs.Duration("poll-interval", 2*time.Second, "poll interval while waiting for a run")
	useSocket := fs.Bool("ws", false, "follow the run over WebSocket instead of SSE")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 1 {
		return fmt.Errorf("usage: agentlive watch [flags] [run_id]")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	base := *apiBase
	if base == "" {
		base = serviceURL(cfg.API.Listen)
	}
	tok := *token
	if tok == "" {
		tok = cfg.API.Token
	}

	logger, closeLog, err := newLogger(cfg.Service, false)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := client.New(base, tok, logger)
	runID := fs.Arg(0)
	if runID == "" {
		fmt.Fprintf(os.Stderr, "waiting for a run on %s...\n", base)
		run, err := c.WaitForRun(ctx, *pollInterval, 8*(*pollInterval))
		if err != nil {
			return fmt.Errorf("wait for run: %w", err)
		}
		runID = run.ID
	}
	logger.Info("watching run", "run_id", runID, "api", base, "websocket", *useSocket)

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	var sub *client.Subscription
	if *useSocket {
		sub, err = c.Socket(streamCtx, runID)
	} else {
		sub, err = c.Stream(streamCtx, runID)
	}
	if err != nil {
		return err
	}

	if _, err := show(streamCtx, sub.Events(), cancel, cfg.Display, os.Stdout); err != nil {
		return err
	}
	if err := sub.Err(); err != nil {
		return fmt.Errorf("run %s: %w", runID, err)
	}
	if closed, ok := sub.Closed(); ok {
		fmt.Fprintf(os.Stderr, "run %s %s\n", runID, closed.Status)
	}
	return nil
}
