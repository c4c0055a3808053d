package notify

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Config controls the async notification pipeline.
type Config struct {
	Enabled       bool
	Workers       int
	QueueSize     int
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	SendTimeout   time.Duration
}

// Notification is one reminder ready for delivery.
type Notification struct {
	ID        uuid.UUID
	TriggerID string
	Tag       string
	EventID   string
	EventName string
	EventDate string
	FiredAt   time.Time
}

// Text renders the human-readable reminder line.
func (n Notification) Text() string {
	return fmt.Sprintf("[REMINDER] %s reminder for event '%s' on %s", n.Tag, n.EventName, n.EventDate)
}

type HistoryItem struct {
	At        time.Time `json:"at"`
	TriggerID string    `json:"trigger_id"`
	Text      string    `json:"text"`
	Error     string    `json:"error,omitempty"`
}

// NotificationEvent is emitted on the event bus for notifier lifecycle events.
type NotificationEvent struct {
	ID        string    `json:"id"`
	TriggerID string    `json:"trigger_id"`
	Sink      string    `json:"sink,omitempty"`
	At        time.Time `json:"at"`
	Error     string    `json:"error,omitempty"`
}

func eventOf(n Notification, sink string, at time.Time, err error) NotificationEvent {
	ev := NotificationEvent{ID: n.ID.String(), TriggerID: n.TriggerID, Sink: sink, At: at}
	if err != nil {
		ev.Error = err.Error()
	}
	return ev
}
