// Package worker holds the asynq task handlers run by cmd/worker.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/SignDrop/internal/logging"
	"github.com/dharsanguruparan/SignDrop/internal/notify"
	"github.com/dharsanguruparan/SignDrop/internal/queue"
)

// Purger reclaims the bytes of documents soft-deleted before a cutoff.
type Purger interface {
	Purge(ctx context.Context, deletedBefore time.Time, limit int) (int, error)
}

// Processor is plugged into the asynq worker loop.
type Processor struct {
	deliver notify.Deliverer
	purger  Purger
	logger  logging.Logger
	now     func() time.Time
}

// NewProcessor constructs a worker processor.
func NewProcessor(deliver notify.Deliverer, purger Purger, logger logging.Logger) *Processor {
	return &Processor{deliver: deliver, purger: purger, logger: logger, now: time.Now}
}

// Handler registers the task handlers.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.SendNotificationTask, p.handleNotification)
	mux.HandleFunc(queue.PurgeDocumentsTask, p.handlePurge)
	return mux
}

func (p *Processor) handleNotification(ctx context.Context, task *asynq.Task) error {
	var n notify.Notification
	if err := json.Unmarshal(task.Payload(), &n); err != nil {
		// A payload that cannot be decoded will never succeed.
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if err := p.deliver(ctx, n); err != nil {
		p.logger.Warnw("notification delivery failed", "event", n.Event, "recipient", n.RecipientID, "error", err)
		return err
	}
	return nil
}

func (p *Processor) handlePurge(ctx context.Context, task *asynq.Task) error {
	var payload queue.PurgePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	cutoff := p.now().UTC().Add(-payload.RetainFor)
	n, err := p.purger.Purge(ctx, cutoff, payload.Limit)
	if err != nil {
		p.logger.Errorw("purge failed", "cutoff", cutoff, "purged", n, "error", err)
		return err
	}
	p.logger.Infow("purge finished", "cutoff", cutoff, "purged", n)
	return nil
}
