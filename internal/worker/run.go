package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/SignDrop/internal/config"
	"github.com/dharsanguruparan/SignDrop/internal/logging"
	"github.com/dharsanguruparan/SignDrop/internal/queue"
)

// Run serves the asynq queues and schedules the periodic purge until ctx is
// cancelled.
func Run(ctx context.Context, cfg *config.Config, p *Processor, logger logging.Logger) error {
	if cfg.RedisAddr == "" {
		return fmt.Errorf("worker needs SIGNDROP_REDIS_ADDR")
	}
	redis := queue.RedisOpt(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	srv := asynq.NewServer(redis, asynq.Config{
		Concurrency: cfg.WorkerConcurrent,
		Queues: map[string]int{
			queue.QueueNotifications: 6,
			queue.QueueMaintenance:   1,
		},
		Logger: logger.Named("asynq"),
	})

	task, err := queue.NewPurgeTask(queue.PurgePayload{RetainFor: cfg.PurgeAfter, Limit: cfg.PurgeBatch})
	if err != nil {
		return err
	}
	scheduler := asynq.NewScheduler(redis, &asynq.SchedulerOpts{
		Location: time.UTC,
		Logger:   logger.Named("scheduler"),
	})
	if _, err := scheduler.Register(cfg.PurgeSchedule, task); err != nil {
		return fmt.Errorf("schedule purge %q: %w", cfg.PurgeSchedule, err)
	}

	if err := srv.Start(p.Handler()); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	if err := scheduler.Start(); err != nil {
		srv.Shutdown()
		return fmt.Errorf("start scheduler: %w", err)
	}
	logger.Infow("worker running", "concurrency", cfg.WorkerConcurrent, "purge_schedule", cfg.PurgeSchedule)

	<-ctx.Done()
	scheduler.Shutdown()
	srv.Shutdown()
	return nil
}
