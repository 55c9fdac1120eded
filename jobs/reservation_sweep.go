package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	jobmetrics "github.com/odyssey-erp/odyssey-stock/internal/jobs"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// ReservationExpirer is implemented by the inventory service.
type ReservationExpirer interface {
	ExpireReservations(ctx context.Context, now time.Time, limit int) (int, error)
}

// ReservationSweepJob expires overdue reservations. A redis lock keeps
// overlapping cron firings from sweeping twice at once.
type ReservationSweepJob struct {
	Expirer ReservationExpirer
	Redis   *redis.Client
	Limit   int
	LockTTL time.Duration
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewReservationSweepJob wires the sweep handler.
func NewReservationSweepJob(expirer ReservationExpirer, client *redis.Client, limit int, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReservationSweepJob {
	return &ReservationSweepJob{
		Expirer: expirer,
		Redis:   client,
		Limit:   limit,
		LockTTL: 5 * time.Minute,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle runs one sweep.
func (j *ReservationSweepJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Expirer == nil {
		return errors.New("reservation sweep: handler not configured")
	}
	var payload ReservationSweepPayload
	if err := decodePayload(t, &payload); err != nil {
		return err
	}
	limit := payload.Limit
	if limit <= 0 {
		limit = j.Limit
	}
	logger := jobLogger(j.Logger, TaskReservationSweep)

	release, acquired, err := acquireLock(ctx, j.Redis, shared.JobLockKey(TaskReservationSweep), j.LockTTL)
	if err != nil {
		return err
	}
	if !acquired {
		logger.Info("sweep already running, skipping")
		return nil
	}
	defer release()

	tracker := j.Metrics.Track(TaskReservationSweep)
	defer func() { err = tracker.End(err) }()

	start := j.now()
	ctx = shared.ContextWithActor(ctx, shared.SystemActor)
	expired, err := j.Expirer.ExpireReservations(ctx, start, limit)
	j.Metrics.AddProcessed(TaskReservationSweep, expired)
	if err != nil {
		logger.Error("sweep failed", slog.Int("expired", expired), slog.Any("error", err))
		return err
	}
	logger.Info("sweep completed", slog.Int("expired", expired), slog.Duration("duration", time.Since(start)))
	return nil
}

func (j *ReservationSweepJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// acquireLock takes a singleton lock. With no redis client every caller wins.
func acquireLock(ctx context.Context, client *redis.Client, key string, ttl time.Duration) (func(), bool, error) {
	if client == nil {
		return func() {}, true, nil
	}
	token := uuid.NewString()
	ok, err := client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = releaseLockScript.Run(releaseCtx, client, []string{key}, token).Err()
	}
	return release, true, nil
}

func decodePayload(t *asynq.Task, dst any) error {
	if len(t.Payload()) == 0 {
		return nil
	}
	if err := json.Unmarshal(t.Payload(), dst); err != nil {
		return fmt.Errorf("%s: decode payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	return nil
}

func jobLogger(logger *slog.Logger, job string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String("job", job))
}
