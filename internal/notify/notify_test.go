package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogDelivery(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	deliver := LogDelivery(zap.New(core).Sugar())

	err := deliver(context.Background(), Notification{
		Event:       EventRequestSigned,
		RecipientID: "u1",
		DocumentID:  "d1",
		RequestID:   "r1",
	})
	assert.NoError(t, err)
	entries := logs.FilterMessage("notification delivered").All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "u1", fields["recipient"])
		assert.Equal(t, "d1", fields["document"])
	}
}

func TestFunc(t *testing.T) {
	var got Notification
	var n Notifier = Func(func(_ context.Context, n Notification) error {
		got = n
		return nil
	})
	assert.NoError(t, n.Notify(context.Background(), Notification{Event: EventRequestCreated}))
	assert.Equal(t, EventRequestCreated, got.Event)
}
