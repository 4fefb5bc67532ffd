package queue

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/SignDrop/internal/notify"
)

func TestNewNotificationTask(t *testing.T) {
	n := notify.Notification{
		Event:       notify.EventRequestCreated,
		RecipientID: "u1",
		DocumentID:  "d1",
		RequestID:   "r1",
	}
	task, err := NewNotificationTask(n)
	require.NoError(t, err)
	assert.Equal(t, SendNotificationTask, task.Type())

	var decoded notify.Notification
	require.NoError(t, json.Unmarshal(task.Payload(), &decoded))
	assert.Equal(t, n.RecipientID, decoded.RecipientID)
	assert.Equal(t, n.Event, decoded.Event)
}

func TestNewPurgeTask(t *testing.T) {
	task, err := NewPurgeTask(PurgePayload{RetainFor: 48 * time.Hour, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, PurgeDocumentsTask, task.Type())

	var p PurgePayload
	require.NoError(t, json.Unmarshal(task.Payload(), &p))
	assert.Equal(t, 48*time.Hour, p.RetainFor)
	assert.Equal(t, 10, p.Limit)
}
