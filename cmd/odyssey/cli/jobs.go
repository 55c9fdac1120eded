package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-stock/jobs"
)

// JobDefaults are the payload values used when a job is triggered by hand.
type JobDefaults struct {
	SweepBatch           int
	IdempotencyRetention time.Duration
}

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	defaults  JobDefaults
}

// NewJobsCLI initialises the CLI helpers against the given Redis.
func NewJobsCLI(opts asynq.RedisClientOpt, defaults JobDefaults) *JobsCLI {
	return &JobsCLI{
		client:    asynq.NewClient(opts),
		inspector: asynq.NewInspector(opts),
		defaults:  defaults,
	}
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	if c.inspector != nil {
		if closeErr := c.inspector.Close(); closeErr != nil {
			err = closeErr
		}
	}
	if c.client != nil {
		if closeErr := c.client.Close(); closeErr != nil {
			err = closeErr
		}
	}
	return err
}

// BuildTask prepares the task for a job name with the default payload.
func (c *JobsCLI) BuildTask(name string) (*asynq.Task, error) {
	switch name {
	case jobs.TaskReservationSweep:
		return jobs.NewReservationSweepTask(c.defaults.SweepBatch)
	case jobs.TaskIdempotencyCleanup:
		return jobs.NewIdempotencyCleanupTask(c.defaults.IdempotencyRetention)
	default:
		return nil, fmt.Errorf("jobs cli: unsupported job %s", name)
	}
}

// Trigger enqueues a supported job by name.
func (c *JobsCLI) Trigger(ctx context.Context, name string) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	task, err := c.BuildTask(name)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.MaxRetry(3))
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
	Archived  int
}

// InspectQueue reports the metrics of one queue.
func (c *JobsCLI) InspectQueue(queue string) (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	stats := QueueStats{Queue: queue}
	info, err := c.inspector.GetQueueInfo(queue)
	if errors.Is(err, asynq.ErrQueueNotFound) {
		return stats, nil
	}
	if err != nil {
		return QueueStats{}, err
	}
	stats.Pending = info.Pending
	stats.Active = info.Active
	stats.Scheduled = info.Scheduled
	stats.Retry = info.Retry
	stats.Archived = info.Archived
	return stats, nil
}

// ListScheduled returns scheduled task infos for a queue.
func (c *JobsCLI) ListScheduled(queue string, size int) ([]*asynq.TaskInfo, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	if size <= 0 {
		size = 10
	}
	return c.inspector.ListScheduledTasks(queue, asynq.PageSize(size), asynq.Page(1))
}

func newJobsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and trigger background jobs.",
	}

	withCLI := func(run func(cmd *cobra.Command, c *JobsCLI, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadRuntime()
			if err != nil {
				return err
			}
			c := NewJobsCLI(cfg.Redis().Asynq(), JobDefaults{
				SweepBatch:           cfg.InventorySweepBatch,
				IdempotencyRetention: cfg.IdempotencyRetention,
			})
			defer c.Close()
			return run(cmd, c, args)
		}
	}

	trigger := &cobra.Command{
		Use:       "trigger <job>",
		Short:     "Enqueue a job immediately.",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{jobs.TaskReservationSweep, jobs.TaskIdempotencyCleanup},
		RunE: withCLI(func(cmd *cobra.Command, c *JobsCLI, args []string) error {
			info, err := c.Trigger(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			cmd.Printf("enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
			return nil
		}),
	}

	var queue string
	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show queue depth.",
		Args:  cobra.NoArgs,
		RunE: withCLI(func(cmd *cobra.Command, c *JobsCLI, _ []string) error {
			s, err := c.InspectQueue(queue)
			if err != nil {
				return err
			}
			cmd.Printf("%s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
				s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry, s.Archived)
			return nil
		}),
	}
	stats.Flags().StringVar(&queue, "queue", jobs.QueueDefault, "queue to inspect")

	var size int
	scheduled := &cobra.Command{
		Use:   "scheduled",
		Short: "List scheduled tasks.",
		Args:  cobra.NoArgs,
		RunE: withCLI(func(cmd *cobra.Command, c *JobsCLI, _ []string) error {
			infos, err := c.ListScheduled(queue, size)
			if err != nil {
				return err
			}
			for _, info := range infos {
				cmd.Printf("%s %s next=%s\n", info.ID, info.Type, info.NextProcessAt.Format(time.RFC3339))
			}
			return nil
		}),
	}
	scheduled.Flags().StringVar(&queue, "queue", jobs.QueueDefault, "queue to inspect")
	scheduled.Flags().IntVar(&size, "size", 10, "page size")

	cmd.AddCommand(trigger, stats, scheduled)
	return cmd
}
