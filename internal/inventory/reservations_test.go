package inventory

import (
	"errors"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-stock/internal/masterdata/locations"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

func TestReserveBoundary(t *testing.T) {
	f := newFixture(t)
	f.receive(t, f.w1, 100)
	f.reserve(t, 30, f.w1)

	_, err := f.svc.Reserve(f.ctx(), ReserveInput{VariantID: f.variant, Quantity: 71, LocationIDs: []uuid.UUID{f.w1.ID}})
	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, int64(71), insufficient.Requested)
	require.Equal(t, int64(70), insufficient.Available)

	level := f.level(f.w1)
	require.Equal(t, int64(100), level.OnHand)
	require.Equal(t, int64(30), level.Reserved)

	res := f.reserve(t, 70, f.w1)
	require.Equal(t, ReservationActive, res.Status)
	require.Zero(t, f.level(f.w1).Available())
	f.requireBalanced(t, f.w1)
}

func TestReserveReleaseRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.receive(t, f.w1, 100)
	before := f.level(f.w1)

	res := f.reserve(t, 30, f.w1)
	require.Equal(t, int64(30), f.level(f.w1).Reserved)
	require.NoError(t, f.svc.Release(f.ctx(), res.ID))

	after := f.level(f.w1)
	require.Equal(t, before.OnHand, after.OnHand)
	require.Equal(t, before.Reserved, after.Reserved)

	stored, err := f.svc.GetReservation(f.ctx(), res.ID)
	require.NoError(t, err)
	require.Equal(t, ReservationReleased, stored.Status)

	err = f.svc.Release(f.ctx(), res.ID)
	require.ErrorIs(t, err, ErrReservationClosed)
	require.ErrorIs(t, err, shared.ErrConflict)

	movements := f.repo.movementsFor(f.key(f.w1))
	require.Len(t, movements, 3)
	require.Equal(t, MovementReserve, movements[1].Type)
	require.Equal(t, int64(-30), movements[1].Quantity)
	require.Equal(t, MovementRelease, movements[2].Type)
	require.Equal(t, int64(30), movements[2].Quantity)
	require.Equal(t, res.ID.String(), movements[2].Reference.ID)
	f.requireBalanced(t, f.w1)
}

func TestReserveThenFulfill(t *testing.T) {
	f := newFixture(t)
	f.receive(t, f.w1, 100)
	res := f.reserve(t, 30, f.w1)

	result, err := f.svc.Fulfill(f.ctx(), res.ID, 30)
	require.NoError(t, err)
	require.Equal(t, ReservationFulfilled, result.Reservation.Status)
	require.Len(t, result.Movements, 1)
	require.Equal(t, MovementFulfill, result.Movements[0].Type)
	require.Equal(t, int64(-30), result.Movements[0].Quantity)

	level := f.level(f.w1)
	require.Equal(t, int64(70), level.OnHand)
	require.Zero(t, level.Reserved)

	require.ErrorIs(t, f.svc.Release(f.ctx(), res.ID), ErrReservationClosed)
	_, err = f.svc.Fulfill(f.ctx(), res.ID, 1)
	require.ErrorIs(t, err, ErrReservationClosed)
	f.requireBalanced(t, f.w1)
}

func TestReserveAcrossLocationsByPriority(t *testing.T) {
	f := newFixture(t)
	now := time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return now }
	f.receive(t, f.w1, 30)
	f.receive(t, f.w2, 50)

	res := f.reserve(t, 60)
	require.Equal(t, []Allocation{
		{LocationID: f.w1.ID, Quantity: 30},
		{LocationID: f.w2.ID, Quantity: 30},
	}, res.Allocations)

	result, err := f.svc.Fulfill(f.ctx(), res.ID, 40)
	require.NoError(t, err)
	require.Equal(t, ReservationPartiallyFulfilled, result.Reservation.Status)
	require.Len(t, result.Movements, 2)
	require.Equal(t, "FUL-20261018-0001", result.Movements[0].DocumentNo)
	require.Equal(t, result.Movements[0].DocumentNo, result.Movements[1].DocumentNo)
	require.Equal(t, int64(-30), result.Movements[0].Quantity)
	require.Equal(t, int64(-10), result.Movements[1].Quantity)

	_, err = f.svc.Fulfill(f.ctx(), res.ID, 25)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	require.NoError(t, f.svc.Release(f.ctx(), res.ID))
	w2 := f.level(f.w2)
	require.Equal(t, int64(40), w2.OnHand)
	require.Zero(t, w2.Reserved)
	require.Zero(t, f.level(f.w1).OnHand)
	f.requireBalanced(t, f.w1, f.w2)
}

func TestReserveEligibleLocations(t *testing.T) {
	f := newFixture(t)
	inactive := f.locs.add("W0", 0, false)
	f.receive(t, f.w2, 10)

	res, err := f.svc.Reserve(f.ctx(), ReserveInput{
		VariantID:   f.variant,
		Quantity:    5,
		LocationIDs: []uuid.UUID{f.w2.ID, inactive.ID, f.w2.ID},
	})
	require.NoError(t, err)
	require.Len(t, res.Allocations, 1)
	require.Equal(t, f.w2.ID, res.Allocations[0].LocationID)

	_, err = f.svc.Reserve(f.ctx(), ReserveInput{VariantID: f.variant, Quantity: 1, LocationIDs: []uuid.UUID{uuid.New()}})
	require.ErrorIs(t, err, locations.ErrNotFound)

	_, err = f.svc.Reserve(f.ctx(), ReserveInput{VariantID: f.variant, Quantity: 1, LocationIDs: []uuid.UUID{inactive.ID}})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
}

func TestReserveValidation(t *testing.T) {
	f := newFixture(t)
	f.receive(t, f.w1, 10)
	negative := -time.Minute

	_, err := f.svc.Reserve(f.ctx(), ReserveInput{VariantID: f.variant, Quantity: 0})
	require.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = f.svc.Reserve(f.ctx(), ReserveInput{VariantID: f.variant, Quantity: 1, TTL: &negative})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = f.svc.Fulfill(f.ctx(), uuid.New(), 0)
	require.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = f.svc.Fulfill(f.ctx(), uuid.New(), 1)
	require.ErrorIs(t, err, ErrReservationNotFound)
}

func TestReserveIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	f.receive(t, f.w1, 5)

	_, err := f.svc.Reserve(f.ctx(), ReserveInput{VariantID: f.variant, Quantity: 6, IdempotencyKey: "order-1"})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	f.receive(t, f.w1, 5)
	_, err = f.svc.Reserve(f.ctx(), ReserveInput{VariantID: f.variant, Quantity: 6, IdempotencyKey: "order-1"})
	require.NoError(t, err)

	_, err = f.svc.Reserve(f.ctx(), ReserveInput{VariantID: f.variant, Quantity: 1, IdempotencyKey: "order-1"})
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.Equal(t, int64(6), f.level(f.w1).Reserved)
}

func TestExpireReservations(t *testing.T) {
	f := newFixture(t)
	base := time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return base }
	f.receive(t, f.w1, 20)

	ttl := 15 * time.Minute
	short, err := f.svc.Reserve(f.ctx(), ReserveInput{VariantID: f.variant, Quantity: 5, TTL: &ttl})
	require.NoError(t, err)
	require.NotNil(t, short.ExpiresAt)
	open := f.reserve(t, 3)
	require.Nil(t, open.ExpiresAt)

	count, err := f.svc.ExpireReservations(f.ctx(), base.Add(10*time.Minute), 10)
	require.NoError(t, err)
	require.Zero(t, count)

	count, err = f.svc.ExpireReservations(f.ctx(), base.Add(time.Hour), 10)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	count, err = f.svc.ExpireReservations(f.ctx(), base.Add(time.Hour), 10)
	require.NoError(t, err)
	require.Zero(t, count)

	expired, err := f.svc.GetReservation(f.ctx(), short.ID)
	require.NoError(t, err)
	require.Equal(t, ReservationExpired, expired.Status)
	require.Equal(t, int64(3), f.level(f.w1).Reserved)

	movements := f.repo.movementsFor(f.key(f.w1))
	last := movements[len(movements)-1]
	require.Equal(t, MovementRelease, last.Type)
	require.Equal(t, string(ReservationExpired), last.Note)
	f.requireBalanced(t, f.w1)
}

func TestDefaultReservationTTL(t *testing.T) {
	f := newFixture(t)
	f.svc.cfg.DefaultReservationTTL = time.Hour
	now := time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return now }
	f.receive(t, f.w1, 1)

	res := f.reserve(t, 1)
	require.NotNil(t, res.ExpiresAt)
	require.True(t, now.Add(time.Hour).Equal(*res.ExpiresAt))
}

func TestExplicitZeroTTLNeverExpires(t *testing.T) {
	f := newFixture(t)
	f.svc.cfg.DefaultReservationTTL = time.Hour
	base := time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return base }
	f.receive(t, f.w1, 10)

	none := time.Duration(0)
	held, err := f.svc.Reserve(f.ctx(), ReserveInput{VariantID: f.variant, Quantity: 4, TTL: &none})
	require.NoError(t, err)
	require.Nil(t, held.ExpiresAt)

	count, err := f.svc.ExpireReservations(f.ctx(), base.Add(10*365*24*time.Hour), 10)
	require.NoError(t, err)
	require.Zero(t, count)
	require.Equal(t, int64(4), f.level(f.w1).Reserved)

	for _, bad := range []time.Duration{-time.Second, MaxReservationTTL + time.Second} {
		_, err = f.svc.Reserve(f.ctx(), ReserveInput{VariantID: f.variant, Quantity: 1, TTL: &bad})
		require.ErrorIs(t, err, shared.ErrValidation, bad.String())
	}
	require.Equal(t, int64(4), f.level(f.w1).Reserved)
}

func TestRandomConcurrentReservesNeverOversell(t *testing.T) {
	for iteration := range 100 {
		f := newFixture(t)
		f.receive(t, f.w1, 100)

		quantities := make([]int64, 20)
		for requested := int64(0); requested <= 100; {
			requested = 0
			for i := range quantities {
				quantities[i] = rand.Int64N(15) + 1
				requested += quantities[i]
			}
		}

		var mu sync.Mutex
		var granted int64
		var refused []int64
		var g errgroup.Group
		for _, qty := range quantities {
			g.Go(func() error {
				_, err := f.svc.Reserve(f.ctx(), ReserveInput{VariantID: f.variant, Quantity: qty, LocationIDs: []uuid.UUID{f.w1.ID}})
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					granted += qty
				case errors.Is(err, shared.ErrInsufficientStock):
					refused = append(refused, qty)
				default:
					return err
				}
				return nil
			})
		}
		require.NoError(t, g.Wait(), "iteration %d", iteration)

		level := f.level(f.w1)
		require.LessOrEqual(t, granted, int64(100), "iteration %d", iteration)
		require.Equal(t, granted, level.Reserved, "iteration %d", iteration)
		require.Equal(t, int64(100), level.OnHand, "iteration %d", iteration)
		for _, qty := range refused {
			require.Less(t, level.Available(), qty, "iteration %d refused %d while stock was left", iteration, qty)
		}
		f.requireBalanced(t, f.w1)
	}
}

func TestConcurrentWritersNeverOversell(t *testing.T) {
	f := newFixture(t)
	f.receive(t, f.w1, 100)

	var reserved, sold, rejected atomic.Int64
	var g errgroup.Group
	for i := range 150 {
		g.Go(func() error {
			var err error
			if i%2 == 0 {
				_, err = f.svc.Reserve(f.ctx(), ReserveInput{VariantID: f.variant, Quantity: 1, LocationIDs: []uuid.UUID{f.w1.ID}})
				if err == nil {
					reserved.Add(1)
				}
			} else {
				_, err = f.svc.Sell(f.ctx(), SellInput{VariantID: f.variant, LocationID: f.w1.ID, Quantity: 1})
				if err == nil {
					sold.Add(1)
				}
			}
			if errors.Is(err, shared.ErrInsufficientStock) {
				rejected.Add(1)
				return nil
			}
			return err
		})
	}
	require.NoError(t, g.Wait())

	require.Equal(t, int64(100), reserved.Load()+sold.Load())
	require.Equal(t, int64(50), rejected.Load())
	level := f.level(f.w1)
	require.Equal(t, 100-sold.Load(), level.OnHand)
	require.Equal(t, reserved.Load(), level.Reserved)
	require.Zero(t, level.Available())
	f.requireBalanced(t, f.w1)
}
