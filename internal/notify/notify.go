// Package notify describes the best-effort notifications SignDrop emits when
// signature requests move. Delivery is pluggable; the default only logs.
package notify

import (
	"context"
	"time"

	"github.com/dharsanguruparan/SignDrop/internal/logging"
)

// Event names a notification type.
type Event string

const (
	EventRequestCreated    Event = "request.created"
	EventRequestSigned     Event = "request.signed"
	EventRequestRejected   Event = "request.rejected"
	EventDocumentCompleted Event = "document.completed"
)

// Notification is one message to one recipient.
type Notification struct {
	Event          Event     `json:"event"`
	RecipientID    string    `json:"recipientId"`
	RecipientEmail string    `json:"recipientEmail,omitempty"`
	RecipientName  string    `json:"recipientName,omitempty"`
	DocumentID     string    `json:"documentId"`
	DocumentTitle  string    `json:"documentTitle,omitempty"`
	RequestID      string    `json:"requestId,omitempty"`
	ActorID        string    `json:"actorId,omitempty"`
	Notes          string    `json:"notes,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Notifier hands a notification off for delivery. Implementations must not
// block the caller on delivery itself.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Deliverer actually delivers one notification.
type Deliverer func(ctx context.Context, n Notification) error

// LogDelivery returns a Deliverer that writes the notification to logger.
// Email transport is out of scope; this is where it would plug in.
func LogDelivery(logger logging.Logger) Deliverer {
	return func(_ context.Context, n Notification) error {
		logger.Infow("notification delivered",
			"event", n.Event,
			"recipient", n.RecipientID,
			"email", n.RecipientEmail,
			"document", n.DocumentID,
			"request", n.RequestID,
		)
		return nil
	}
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, n Notification) error

// Notify calls f.
func (f Func) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}
