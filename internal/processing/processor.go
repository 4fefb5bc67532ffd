// Package processing delivers notifications on a pool of goroutines when no
// Redis queue is configured. Goroutines + channels power the implementation.
package processing

import (
	"context"
	"errors"
	"sync"

	"github.com/dharsanguruparan/SignDrop/internal/logging"
	"github.com/dharsanguruparan/SignDrop/internal/metrics"
	"github.com/dharsanguruparan/SignDrop/internal/notify"
)

// ErrQueueFull is returned by Notify when the buffer has no room. The
// notification is dropped.
var ErrQueueFull = errors.New("notification queue full")

// ErrStopped is returned by Notify after Stop.
var ErrStopped = errors.New("dispatcher stopped")

// Dispatcher consumes notifications and hands them to a Deliverer.
type Dispatcher struct {
	deliver notify.Deliverer
	logger  logging.Logger
	metrics *metrics.Metrics
	queue   chan notify.Notification
	workers int

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

var _ notify.Notifier = (*Dispatcher)(nil)

// New builds a Dispatcher. queueSize bounds the number of notifications
// waiting for a worker.
func New(deliver notify.Deliverer, workers, queueSize int, logger logging.Logger, m *metrics.Metrics) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = workers * 4
	}
	return &Dispatcher{
		deliver: deliver,
		logger:  logger,
		metrics: m,
		// A buffered channel lets producers continue without waiting for
		// delivery, keeping request handlers responsive.
		queue:   make(chan notify.Notification, queueSize),
		workers: workers,
	}
}

// Start launches worker goroutines. They exit when ctx is cancelled or Stop
// drains the queue.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
}

// Notify queues n without blocking.
func (d *Dispatcher) Notify(_ context.Context, n notify.Notification) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return ErrStopped
	}
	select {
	case d.queue <- n:
		d.metrics.ObserveNotification(string(n.Event), "queued")
		return nil
	default:
		d.logger.Warnw("notification queue full, dropping", "event", n.Event, "recipient", n.RecipientID)
		d.metrics.ObserveNotification(string(n.Event), "dropped")
		return ErrQueueFull
	}
}

// Stop refuses new notifications, lets workers finish what is queued and
// waits for them.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.stopped {
		d.stopped = true
		close(d.queue)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-d.queue:
			if !ok {
				return
			}
			d.process(ctx, n)
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, n notify.Notification) {
	if err := d.deliver(ctx, n); err != nil {
		d.logger.Warnw("notification delivery failed", "event", n.Event, "recipient", n.RecipientID, "error", err)
		d.metrics.ObserveNotification(string(n.Event), "failed")
	}
}
