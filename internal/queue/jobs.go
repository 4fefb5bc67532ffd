// Package queue enqueues SignDrop background work on asynq (Redis).
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/SignDrop/internal/metrics"
	"github.com/dharsanguruparan/SignDrop/internal/notify"
)

const (
	// SendNotificationTask delivers one notification.
	SendNotificationTask = "notification:send"
	// PurgeDocumentsTask reclaims the bytes of long soft-deleted documents.
	PurgeDocumentsTask = "document:purge"
)

// Queue names. Notifications run ahead of housekeeping.
const (
	QueueNotifications = "notifications"
	QueueMaintenance   = "maintenance"
)

// PurgePayload is the payload of PurgeDocumentsTask.
type PurgePayload struct {
	// RetainFor is how long a soft-deleted document keeps its bytes.
	RetainFor time.Duration `json:"retain_for"`
	Limit     int           `json:"limit"`
}

// NewNotificationTask builds the task for n.
func NewNotificationTask(n notify.Notification) (*asynq.Task, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(SendNotificationTask, data,
		asynq.MaxRetry(5), asynq.Queue(QueueNotifications), asynq.Timeout(30*time.Second)), nil
}

// NewPurgeTask builds a purge task. At most one purge is queued at a time.
func NewPurgeTask(p PurgePayload) (*asynq.Task, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(PurgeDocumentsTask, data,
		asynq.MaxRetry(3), asynq.Queue(QueueMaintenance), asynq.Unique(time.Hour)), nil
}

// Notifier enqueues notifications on asynq. It implements notify.Notifier.
type Notifier struct {
	client  *asynq.Client
	metrics *metrics.Metrics
}

var _ notify.Notifier = (*Notifier)(nil)

// NewNotifier wraps client.
func NewNotifier(client *asynq.Client, m *metrics.Metrics) *Notifier {
	return &Notifier{client: client, metrics: m}
}

// Notify enqueues n. Delivery happens in the worker process.
func (q *Notifier) Notify(ctx context.Context, n notify.Notification) error {
	task, err := NewNotificationTask(n)
	if err != nil {
		return err
	}
	if _, err := q.client.EnqueueContext(ctx, task); err != nil {
		q.metrics.ObserveNotification(string(n.Event), "failed")
		return fmt.Errorf("enqueue notification task: %w", err)
	}
	q.metrics.ObserveNotification(string(n.Event), "queued")
	return nil
}

// EnqueuePurge enqueues a one-off purge.
func EnqueuePurge(ctx context.Context, client *asynq.Client, p PurgePayload) error {
	task, err := NewPurgeTask(p)
	if err != nil {
		return err
	}
	if _, err := client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("enqueue purge task: %w", err)
	}
	return nil
}

// RedisOpt builds the asynq connection options.
func RedisOpt(addr, password string, db int) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: addr, Password: password, DB: db}
}
