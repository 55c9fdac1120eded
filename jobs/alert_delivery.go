package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	jobmetrics "github.com/odyssey-erp/odyssey-stock/internal/jobs"
)

// Enqueuer is the part of asynq.Client used to hand tasks to the worker.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AlertEventPublisher queues committed alert events for delivery. It is the
// inventory service's event port.
type AlertEventPublisher struct {
	queue Enqueuer
}

// NewAlertEventPublisher wraps an enqueuer.
func NewAlertEventPublisher(queue Enqueuer) *AlertEventPublisher {
	return &AlertEventPublisher{queue: queue}
}

// PublishAlertEvent enqueues evt.
func (p *AlertEventPublisher) PublishAlertEvent(ctx context.Context, evt inventory.AlertEvent) error {
	task, err := NewAlertDeliverTask(evt)
	if err != nil {
		return err
	}
	_, err = p.queue.EnqueueContext(ctx, task)
	return err
}

// AlertDeliveryJob publishes queued alert events on a redis channel.
type AlertDeliveryJob struct {
	Redis   *redis.Client
	Channel string
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewAlertDeliveryJob wires the delivery handler.
func NewAlertDeliveryJob(client *redis.Client, channel string, logger *slog.Logger, metrics *jobmetrics.Metrics) *AlertDeliveryJob {
	return &AlertDeliveryJob{Redis: client, Channel: channel, Logger: logger, Metrics: metrics}
}

// Handle publishes the task payload as is. A malformed payload is dropped.
func (j *AlertDeliveryJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Redis == nil {
		return errors.New("alert delivery: handler not configured")
	}
	var payload AlertDeliverPayload
	if err := decodePayload(t, &payload); err != nil {
		return err
	}
	tracker := j.Metrics.Track(TaskAlertDeliver)
	defer func() { err = tracker.End(err) }()

	receivers, err := j.Redis.Publish(ctx, j.Channel, t.Payload()).Result()
	if err != nil {
		jobLogger(j.Logger, TaskAlertDeliver).Warn("publish alert event",
			slog.String("alert_id", payload.Alert.ID.String()), slog.Any("error", err))
		return err
	}
	j.Metrics.AddProcessed(TaskAlertDeliver, 1)
	jobLogger(j.Logger, TaskAlertDeliver).Debug("alert event published",
		slog.String("type", string(payload.Type)),
		slog.String("alert_id", payload.Alert.ID.String()),
		slog.Int64("receivers", receivers),
	)
	return nil
}
