package processing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/SignDrop/internal/logging"
	"github.com/dharsanguruparan/SignDrop/internal/notify"
)

type recorder struct {
	mu  sync.Mutex
	got []notify.Notification
}

func (r *recorder) deliver(_ context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
	return nil
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

func TestDispatcherDelivers(t *testing.T) {
	rec := &recorder{}
	d := New(rec.deliver, 2, 8, logging.NewNop(), nil)
	d.Start(context.Background())

	for i := 0; i < 5; i++ {
		require.NoError(t, d.Notify(context.Background(), notify.Notification{Event: notify.EventRequestCreated}))
	}
	d.Stop()
	assert.Equal(t, 5, rec.len())

	assert.ErrorIs(t, d.Notify(context.Background(), notify.Notification{}), ErrStopped)
	assert.NotPanics(t, d.Stop, "stop is idempotent")
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	blocking := func(ctx context.Context, _ notify.Notification) error {
		started <- struct{}{}
		<-release
		return nil
	}
	d := New(blocking, 1, 1, logging.NewNop(), nil)
	d.Start(context.Background())

	require.NoError(t, d.Notify(context.Background(), notify.Notification{}))
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("worker did not pick up the first notification")
	}
	require.NoError(t, d.Notify(context.Background(), notify.Notification{}), "fills the buffer")
	assert.ErrorIs(t, d.Notify(context.Background(), notify.Notification{}), ErrQueueFull)

	close(release)
	d.Stop()
}

func TestDispatcherSurvivesDeliveryErrors(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	failing := func(context.Context, notify.Notification) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return errors.New("smtp down")
	}
	d := New(failing, 1, 4, logging.NewNop(), nil)
	d.Start(context.Background())
	for i := 0; i < 3; i++ {
		require.NoError(t, d.Notify(context.Background(), notify.Notification{}))
	}
	d.Stop()
	assert.Equal(t, 3, calls)
}
