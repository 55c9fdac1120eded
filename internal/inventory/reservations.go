package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-stock/internal/masterdata/locations"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

const (
	referenceReservation = "RESERVATION"
	idempotencyModule    = "inventory.reserve"
)

// Reserve holds quantity across the eligible locations in priority order. The
// hold is all or nothing: a shortfall leaves every stock level untouched.
func (s *Service) Reserve(ctx context.Context, input ReserveInput) (Reservation, error) {
	if err := validateQuantity(input.VariantID, input.Quantity); err != nil {
		return Reservation{}, err
	}
	ttl := s.cfg.DefaultReservationTTL
	if input.TTL != nil {
		if *input.TTL < 0 || *input.TTL > MaxReservationTTL {
			return Reservation{}, fmt.Errorf("inventory: reservation ttl must be between 0 and %s: %w", MaxReservationTTL, shared.ErrValidation)
		}
		ttl = *input.TTL
	}
	eligible, err := s.eligibleLocations(ctx, input.LocationIDs)
	if err != nil {
		return Reservation{}, err
	}
	if len(eligible) == 0 {
		s.ports.Metrics.ReservationOutcome("insufficient")
		return Reservation{}, &InsufficientStockError{VariantID: input.VariantID, Requested: input.Quantity}
	}

	if input.IdempotencyKey != "" && s.ports.Idempotency != nil {
		if err := s.ports.Idempotency.CheckAndInsert(ctx, input.IdempotencyKey, idempotencyModule); err != nil {
			return Reservation{}, err
		}
	}

	var reservation Reservation
	_, err = s.execute(ctx, "reserve", func(ctx context.Context, sc *txScope) error {
		keys := make([]StockKey, len(eligible))
		for i, loc := range eligible {
			keys[i] = StockKey{VariantID: input.VariantID, LocationID: loc.ID}
		}
		levels, err := s.ledger.Lock(ctx, sc.tx, keys...)
		if err != nil {
			return err
		}

		remaining := input.Quantity
		var allocations []Allocation
		for _, key := range keys {
			if remaining == 0 {
				break
			}
			take := min(remaining, levels[key].Available())
			if take <= 0 {
				continue
			}
			allocations = append(allocations, Allocation{LocationID: key.LocationID, Quantity: take})
			remaining -= take
		}
		if remaining > 0 {
			return &InsufficientStockError{
				VariantID: input.VariantID,
				Requested: input.Quantity,
				Available: input.Quantity - remaining,
			}
		}

		reservation = Reservation{
			ID:               uuid.New(),
			VariantID:        input.VariantID,
			Allocations:      allocations,
			QuantityReserved: input.Quantity,
			Status:           ReservationActive,
			Reference:        input.Reference,
			CreatedBy:        shared.ActorFromContext(ctx),
			CreatedAt:        sc.now,
			UpdatedAt:        sc.now,
		}
		if ttl > 0 {
			expires := sc.now.Add(ttl)
			reservation.ExpiresAt = &expires
		}
		if err := sc.tx.InsertReservation(ctx, reservation); err != nil {
			return err
		}
		for _, a := range allocations {
			key := StockKey{VariantID: input.VariantID, LocationID: a.LocationID}
			if _, err := s.apply(ctx, sc, key, 0, a.Quantity); err != nil {
				return err
			}
			if _, err := s.record(ctx, sc, singleLocation(Movement{
				VariantID: input.VariantID,
				Type:      MovementReserve,
				Quantity:  -a.Quantity,
				Reference: reservationReference(reservation),
			}, a.LocationID)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if input.IdempotencyKey != "" && s.ports.Idempotency != nil {
			if delErr := s.ports.Idempotency.Delete(ctx, input.IdempotencyKey); delErr != nil {
				s.logger.Warn("idempotency rollback failed", slog.Any("error", delErr))
			}
		}
		if errors.Is(err, shared.ErrInsufficientStock) {
			s.ports.Metrics.ReservationOutcome("insufficient")
		}
		return Reservation{}, err
	}
	s.ports.Metrics.ReservationOutcome("reserved")
	s.audit(ctx, "inventory:reserve", "stock_reservation", reservation.ID.String(), map[string]any{
		"variant_id": reservation.VariantID, "quantity": reservation.QuantityReserved, "allocations": len(reservation.Allocations),
	})
	return reservation, nil
}

// eligibleLocations resolves the requested ids, or every active location when
// none are given, into active locations ordered by priority then code.
func (s *Service) eligibleLocations(ctx context.Context, ids []uuid.UUID) ([]locations.Location, error) {
	if len(ids) == 0 {
		return s.locations.ListActiveByPriority(ctx)
	}
	seen := make(map[uuid.UUID]struct{}, len(ids))
	eligible := make([]locations.Location, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		loc, err := s.location(ctx, id, false)
		if err != nil {
			return nil, err
		}
		if !loc.Active {
			continue
		}
		eligible = append(eligible, loc)
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].Priority != eligible[j].Priority {
			return eligible[i].Priority < eligible[j].Priority
		}
		return eligible[i].Code < eligible[j].Code
	})
	return eligible, nil
}

// Release returns the outstanding quantity of a reservation to available.
func (s *Service) Release(ctx context.Context, id uuid.UUID) error {
	_, err := s.execute(ctx, "release", func(ctx context.Context, sc *txScope) error {
		res, err := sc.tx.GetReservationForUpdate(ctx, id)
		if err != nil {
			return err
		}
		return s.closeReservation(ctx, sc, res, ReservationReleased)
	})
	if err != nil {
		return err
	}
	s.ports.Metrics.ReservationOutcome("released")
	s.audit(ctx, "inventory:release", "stock_reservation", id.String(), nil)
	return nil
}

// closeReservation releases every outstanding allocation and moves the
// reservation to the terminal status.
func (s *Service) closeReservation(ctx context.Context, sc *txScope, res Reservation, status ReservationStatus) error {
	if !res.Status.CanTransition(status) {
		return ErrReservationClosed
	}
	keys := make([]StockKey, 0, len(res.Allocations))
	for _, a := range res.Allocations {
		if a.Outstanding() > 0 {
			keys = append(keys, StockKey{VariantID: res.VariantID, LocationID: a.LocationID})
		}
	}
	if _, err := s.ledger.Lock(ctx, sc.tx, keys...); err != nil {
		return err
	}
	for _, a := range res.Allocations {
		outstanding := a.Outstanding()
		if outstanding <= 0 {
			continue
		}
		key := StockKey{VariantID: res.VariantID, LocationID: a.LocationID}
		if _, err := s.apply(ctx, sc, key, 0, -outstanding); err != nil {
			return err
		}
		if _, err := s.record(ctx, sc, singleLocation(Movement{
			VariantID: res.VariantID,
			Type:      MovementRelease,
			Quantity:  outstanding,
			Reference: reservationReference(res),
			Note:      string(status),
		}, a.LocationID)); err != nil {
			return err
		}
	}
	res.Status = status
	res.UpdatedAt = sc.now
	return sc.tx.UpdateReservation(ctx, res)
}

// Fulfill ships quantity from a reservation, consuming allocations in
// priority order. All FULFILL movements of one call share a document number.
func (s *Service) Fulfill(ctx context.Context, id uuid.UUID, quantity int64) (FulfillResult, error) {
	if quantity <= 0 {
		return FulfillResult{}, ErrInvalidQuantity
	}
	var result FulfillResult
	sc, err := s.execute(ctx, "fulfill", func(ctx context.Context, sc *txScope) error {
		res, err := sc.tx.GetReservationForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if res.Status.IsTerminal() {
			return ErrReservationClosed
		}
		if quantity > res.Outstanding() {
			return &InsufficientStockError{VariantID: res.VariantID, Requested: quantity, Available: res.Outstanding()}
		}
		docNo, err := NextNumber(ctx, sc.tx, PrefixFulfillment, sc.now)
		if err != nil {
			return err
		}

		keys := make([]StockKey, 0, len(res.Allocations))
		for _, a := range res.Allocations {
			if a.Outstanding() > 0 {
				keys = append(keys, StockKey{VariantID: res.VariantID, LocationID: a.LocationID})
			}
		}
		if _, err := s.ledger.Lock(ctx, sc.tx, keys...); err != nil {
			return err
		}

		remaining := quantity
		for i := range res.Allocations {
			if remaining == 0 {
				break
			}
			a := &res.Allocations[i]
			take := min(remaining, a.Outstanding())
			if take <= 0 {
				continue
			}
			key := StockKey{VariantID: res.VariantID, LocationID: a.LocationID}
			if _, err := s.apply(ctx, sc, key, -take, -take); err != nil {
				return err
			}
			if _, err := s.record(ctx, sc, singleLocation(Movement{
				VariantID:  res.VariantID,
				Type:       MovementFulfill,
				Quantity:   -take,
				Reference:  reservationReference(res),
				DocumentNo: docNo,
			}, a.LocationID)); err != nil {
				return err
			}
			a.Fulfilled += take
			remaining -= take
		}

		res.QuantityFulfilled += quantity
		next := ReservationPartiallyFulfilled
		if res.QuantityFulfilled == res.QuantityReserved {
			next = ReservationFulfilled
		}
		if !res.Status.CanTransition(next) {
			return ErrReservationClosed
		}
		res.Status = next
		res.UpdatedAt = sc.now
		if err := sc.tx.UpdateReservation(ctx, res); err != nil {
			return err
		}
		result.Reservation = res
		return nil
	})
	if err != nil {
		return FulfillResult{}, err
	}
	result.Movements = sc.movements
	s.ports.Metrics.ReservationOutcome("fulfilled")
	s.audit(ctx, "inventory:fulfill", "stock_reservation", id.String(), map[string]any{
		"quantity": quantity, "status": result.Reservation.Status,
	})
	return result, nil
}

// GetReservation returns a reservation with its allocations.
func (s *Service) GetReservation(ctx context.Context, id uuid.UUID) (Reservation, error) {
	return s.repo.GetReservation(ctx, id)
}

// ExpireReservations releases reservations whose expiry passed, marking them
// EXPIRED. Reservations closed concurrently are skipped, so re-running the
// sweep is harmless.
func (s *Service) ExpireReservations(ctx context.Context, now time.Time, limit int) (int, error) {
	ids, err := s.repo.ListDueReservations(ctx, now, limit)
	if err != nil {
		return 0, err
	}
	if shared.ActorFromContext(ctx) == "" {
		ctx = shared.ContextWithActor(ctx, shared.SystemActor)
	}
	expired := 0
	var errs []error
	for _, id := range ids {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		changed := false
		_, err := s.execute(ctx, "expire", func(ctx context.Context, sc *txScope) error {
			changed = false
			res, err := sc.tx.GetReservationForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if res.Status.IsTerminal() || res.ExpiresAt == nil || res.ExpiresAt.After(now) {
				return nil
			}
			changed = true
			return s.closeReservation(ctx, sc, res, ReservationExpired)
		})
		switch {
		case err == nil:
			if changed {
				expired++
				s.ports.Metrics.ReservationOutcome("expired")
			}
		case errors.Is(err, shared.ErrConflict), errors.Is(err, shared.ErrNotFound):
			s.logger.Debug("reservation sweep skipped", slog.String("reservation_id", id.String()), slog.Any("error", err))
		default:
			s.logger.Error("reservation sweep failed", slog.String("reservation_id", id.String()), slog.Any("error", err))
			errs = append(errs, fmt.Errorf("expire %s: %w", id, err))
		}
	}
	return expired, errors.Join(errs...)
}

func reservationReference(res Reservation) Reference {
	return Reference{Type: referenceReservation, ID: res.ID.String(), Number: res.Reference.Number}
}
