// Command worker consumes SignDrop's asynq queues: notification delivery and
// the scheduled purge of soft-deleted documents.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dharsanguruparan/SignDrop/internal/config"
	"github.com/dharsanguruparan/SignDrop/internal/logging"
	"github.com/dharsanguruparan/SignDrop/internal/notify"
	"github.com/dharsanguruparan/SignDrop/internal/server"
	"github.com/dharsanguruparan/SignDrop/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
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

	comps, err := server.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer comps.Close()

	p := worker.NewProcessor(notify.LogDelivery(logger.Named("notify")), comps.Documents, logger.Named("worker"))
	return worker.Run(ctx, cfg, p, logger)
}
