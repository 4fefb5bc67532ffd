// Command server runs the SignDrop HTTP API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dharsanguruparan/SignDrop/internal/config"
	"github.com/dharsanguruparan/SignDrop/internal/logging"
	"github.com/dharsanguruparan/SignDrop/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := logging.SetLogLevel(cfg.LogLevel); err != nil {
		return err
	}
	logging.UseJSON(cfg.Production())
	logger := logging.DefaultLogger()
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := server.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init server: %w", err)
	}
	defer srv.Close()

	logger.Infow("signdrop listening", "addr", cfg.Address, "env", cfg.Environment)
	return srv.Serve(ctx)
}
