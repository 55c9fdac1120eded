package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueEvents carries alert deliveries so a sweep backlog never delays them.
	QueueEvents = "events"

	// TaskReservationSweep expires reservations whose TTL passed.
	TaskReservationSweep = "inventory:reservation_sweep"
	// TaskAlertDeliver publishes one low-stock alert event.
	TaskAlertDeliver = "inventory:alert_deliver"
	// TaskIdempotencyCleanup purges old idempotency keys.
	TaskIdempotencyCleanup = "inventory:idempotency_cleanup"
)

// ReservationSweepPayload carries the batch size of one sweep.
type ReservationSweepPayload struct {
	Limit int `json:"limit"`
}

// NewReservationSweepTask builds a sweep task.
func NewReservationSweepTask(limit int) (*asynq.Task, error) {
	body, err := json.Marshal(ReservationSweepPayload{Limit: limit})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReservationSweep, body, asynq.Queue(QueueDefault)), nil
}

// AlertDeliverPayload is the alert event as published to subscribers.
type AlertDeliverPayload struct {
	Type       inventory.AlertEventType `json:"type"`
	Alert      inventory.Alert          `json:"alert"`
	OccurredAt time.Time                `json:"occurred_at"`
}

// NewAlertDeliverTask builds a delivery task for evt.
func NewAlertDeliverTask(evt inventory.AlertEvent) (*asynq.Task, error) {
	body, err := json.Marshal(AlertDeliverPayload{Type: evt.Type, Alert: evt.Alert, OccurredAt: evt.OccurredAt})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAlertDeliver, body, asynq.Queue(QueueEvents), asynq.MaxRetry(10)), nil
}

// IdempotencyCleanupPayload sets how long keys are retained.
type IdempotencyCleanupPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewIdempotencyCleanupTask builds a cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}
