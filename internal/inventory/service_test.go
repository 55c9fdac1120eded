package inventory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

func counterValue(t *testing.T, registry *prometheus.Registry, name, label, value string) float64 {
	t.Helper()
	families, err := registry.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, pair := range metric.GetLabel() {
				if pair.GetName() == label && pair.GetValue() == value {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestExecuteRetriesLostRaces(t *testing.T) {
	f := newFixture(t)
	f.repo.injectConflicts(2)

	f.receive(t, f.w1, 9)
	require.Equal(t, int64(9), f.level(f.w1).OnHand)
	require.Len(t, f.repo.movementsFor(f.key(f.w1)), 1)
	require.Equal(t, 2.0, counterValue(t, f.registry, "odyssey_inventory_tx_retries_total", "operation", "receive"))
	require.Equal(t, 1.0, counterValue(t, f.registry, "odyssey_inventory_movements_total", "type", "RECEIVE"))
}

func TestExecuteGivesUpAfterMaxRetries(t *testing.T) {
	f := newFixture(t)
	f.repo.injectConflicts(10)

	_, err := f.svc.Receive(f.ctx(), ReceiveInput{VariantID: f.variant, LocationID: f.w1.ID, Quantity: 1})
	require.ErrorIs(t, err, shared.ErrConcurrency)
	require.Zero(t, f.level(f.w1).OnHand)
	require.Empty(t, f.repo.movementsFor(f.key(f.w1)))
	require.Equal(t, 3.0, counterValue(t, f.registry, "odyssey_inventory_tx_retries_total", "operation", "receive"))
}

func TestExecuteBacksOffBetweenRetries(t *testing.T) {
	f := newFixture(t)
	f.svc.cfg.RetryBackoff = 10 * time.Millisecond
	var delays []time.Duration
	f.svc.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	f.repo.injectConflicts(2)

	f.receive(t, f.w1, 4)
	require.Len(t, delays, 2)
	require.GreaterOrEqual(t, delays[0], 5*time.Millisecond)
	require.LessOrEqual(t, delays[0], 10*time.Millisecond)
	require.GreaterOrEqual(t, delays[1], 10*time.Millisecond)
	require.LessOrEqual(t, delays[1], 20*time.Millisecond)
	require.Equal(t, int64(4), f.level(f.w1).OnHand)
}

func TestExecuteStopsRetryingWhenContextEnds(t *testing.T) {
	f := newFixture(t)
	f.svc.cfg.RetryBackoff = time.Hour
	f.repo.injectConflicts(10)
	ctx, cancel := context.WithCancel(f.ctx())
	defer cancel()
	f.svc.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return sleepContext(ctx, d)
	}

	_, err := f.svc.Receive(ctx, ReceiveInput{VariantID: f.variant, LocationID: f.w1.ID, Quantity: 1})
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, f.level(f.w1).OnHand)
	require.Equal(t, 1.0, counterValue(t, f.registry, "odyssey_inventory_tx_retries_total", "operation", "receive"))
}

func TestLedgerTransactionsRunAtReadCommitted(t *testing.T) {
	require.Equal(t, pgx.ReadCommitted, LedgerTxOptions.IsoLevel)
}

func TestRetryDelayWindow(t *testing.T) {
	require.Zero(t, retryDelay(0, 3))
	base := 4 * time.Millisecond
	for attempt := 1; attempt <= 10; attempt++ {
		window := base << min(attempt-1, 6)
		for range 50 {
			d := retryDelay(base, attempt)
			require.GreaterOrEqual(t, d, window/2, "attempt %d", attempt)
			require.LessOrEqual(t, d, window, "attempt %d", attempt)
		}
	}
	require.LessOrEqual(t, retryDelay(base, 40), 64*base)
}

func TestEventsPublishedOnlyAfterCommit(t *testing.T) {
	f := newFixture(t)
	f.receive(t, f.w1, 10)
	f.setReorderPoint(t, f.w1, 5)

	_, err := f.svc.Sell(f.ctx(), SellInput{VariantID: f.variant, LocationID: f.w1.ID, Quantity: 11})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.Empty(t, f.events.types())

	f.events.err = errors.New("broker down")
	_, err = f.svc.Sell(f.ctx(), SellInput{VariantID: f.variant, LocationID: f.w1.ID, Quantity: 6})
	require.NoError(t, err)
	require.Equal(t, []AlertEventType{EventAlertRaised}, f.events.types())
	require.Len(t, f.activeAlerts(t), 1)
	require.Equal(t, 1.0, counterValue(t, f.registry, "odyssey_inventory_alert_events_total", "event", string(EventAlertRaised)))
}

func TestReservationOutcomeMetrics(t *testing.T) {
	f := newFixture(t)
	f.receive(t, f.w1, 2)
	res := f.reserve(t, 2)
	_, err := f.svc.Reserve(f.ctx(), ReserveInput{VariantID: f.variant, Quantity: 1})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.NoError(t, f.svc.Release(f.ctx(), res.ID))

	require.Equal(t, 1.0, counterValue(t, f.registry, "odyssey_inventory_reservations_total", "outcome", "reserved"))
	require.Equal(t, 1.0, counterValue(t, f.registry, "odyssey_inventory_reservations_total", "outcome", "insufficient"))
	require.Equal(t, 1.0, counterValue(t, f.registry, "odyssey_inventory_reservations_total", "outcome", "released"))
}

func TestServiceWithoutPorts(t *testing.T) {
	locs := newStubLocations()
	w := locs.add("W", 1, true)
	svc := NewService(newMemoryRepo(locs), locs, Ports{}, ServiceConfig{}, nil)
	ctx := shared.ContextWithActor(t.Context(), "tester")

	m, err := svc.Receive(ctx, ReceiveInput{VariantID: w.ID, LocationID: w.ID, Quantity: 3})
	require.NoError(t, err)
	require.Equal(t, int64(3), m.Quantity)

	history, err := svc.AdjustmentApprovals(ctx, m.ID)
	require.ErrorIs(t, err, ErrAdjustmentNotFound)
	require.Nil(t, history)
}
