package cli

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-stock/jobs"
)

func TestRootCommandTree(t *testing.T) {
	root := NewRootCommand()
	names := map[string]bool{}
	for _, cmd := range root.Commands() {
		names[cmd.Name()] = true
	}
	require.True(t, names["serve"])
	require.True(t, names["migrate"])
	require.True(t, names["jobs"])
	require.True(t, names["seed"])

	cmd, _, err := root.Find([]string{"jobs", "trigger"})
	require.NoError(t, err)
	require.Equal(t, "trigger", cmd.Name())

	serve, _, err := root.Find([]string{"serve"})
	require.NoError(t, err)
	require.NotNil(t, serve.Flags().Lookup("migrate"))
}

func TestBuildTaskUsesDefaults(t *testing.T) {
	c := &JobsCLI{defaults: JobDefaults{SweepBatch: 50, IdempotencyRetention: 48 * time.Hour}}

	task, err := c.BuildTask(jobs.TaskReservationSweep)
	require.NoError(t, err)
	var sweep jobs.ReservationSweepPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &sweep))
	require.Equal(t, 50, sweep.Limit)

	task, err = c.BuildTask(jobs.TaskIdempotencyCleanup)
	require.NoError(t, err)
	var cleanup jobs.IdempotencyCleanupPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &cleanup))
	require.Equal(t, 48*time.Hour, cleanup.Retention)

	_, err = c.BuildTask(jobs.TaskAlertDeliver)
	require.Error(t, err)
}

func TestJobsCLIRequiresConnections(t *testing.T) {
	var c *JobsCLI
	_, err := c.Trigger(t.Context(), jobs.TaskReservationSweep)
	require.Error(t, err)
	_, err = c.InspectQueue(jobs.QueueDefault)
	require.Error(t, err)
	_, err = c.ListScheduled(jobs.QueueDefault, 0)
	require.Error(t, err)
}
