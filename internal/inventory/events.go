package inventory

import (
	"context"
	"time"
)

// AlertEventType names an alert state change.
type AlertEventType string

const (
	EventAlertRaised   AlertEventType = "ALERT_RAISED"
	EventAlertUpdated  AlertEventType = "ALERT_UPDATED"
	EventAlertResolved AlertEventType = "ALERT_RESOLVED"
)

// AlertEvent is emitted after the transaction that changed the alert commits.
type AlertEvent struct {
	Type       AlertEventType `json:"type"`
	Alert      Alert          `json:"alert"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// EventPublisher hands alert events to an asynchronous subscriber. Errors are
// logged by the caller and never undo the committed change.
type EventPublisher interface {
	PublishAlertEvent(ctx context.Context, evt AlertEvent) error
}
