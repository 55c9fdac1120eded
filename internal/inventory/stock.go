package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// Receive books goods arriving at an active location.
func (s *Service) Receive(ctx context.Context, input ReceiveInput) (Movement, error) {
	if err := validateQuantity(input.VariantID, input.Quantity); err != nil {
		return Movement{}, err
	}
	if input.UnitCost != nil && *input.UnitCost < 0 {
		return Movement{}, ErrInvalidUnitCost
	}
	if _, err := s.location(ctx, input.LocationID, true); err != nil {
		return Movement{}, err
	}
	key := StockKey{VariantID: input.VariantID, LocationID: input.LocationID}
	var movement Movement
	_, err := s.execute(ctx, "receive", func(ctx context.Context, sc *txScope) error {
		if _, err := s.apply(ctx, sc, key, input.Quantity, 0); err != nil {
			return err
		}
		var err error
		movement, err = s.record(ctx, sc, singleLocation(Movement{
			VariantID: input.VariantID,
			Type:      MovementReceive,
			Quantity:  input.Quantity,
			UnitCost:  input.UnitCost,
			Reference: input.Reference,
			Note:      input.Note,
		}, input.LocationID))
		return err
	})
	if err != nil {
		return Movement{}, err
	}
	s.audit(ctx, "inventory:receive", "stock_movement", movement.ID.String(), map[string]any{
		"variant_id": input.VariantID, "location_id": input.LocationID, "quantity": input.Quantity,
	})
	return movement, nil
}

// Sell books a direct sale from available quantity.
func (s *Service) Sell(ctx context.Context, input SellInput) (Movement, error) {
	if err := validateQuantity(input.VariantID, input.Quantity); err != nil {
		return Movement{}, err
	}
	if _, err := s.location(ctx, input.LocationID, false); err != nil {
		return Movement{}, err
	}
	key := StockKey{VariantID: input.VariantID, LocationID: input.LocationID}
	var movement Movement
	_, err := s.execute(ctx, "sell", func(ctx context.Context, sc *txScope) error {
		if _, err := s.apply(ctx, sc, key, -input.Quantity, 0); err != nil {
			return err
		}
		var err error
		movement, err = s.record(ctx, sc, singleLocation(Movement{
			VariantID: input.VariantID,
			Type:      MovementSale,
			Quantity:  -input.Quantity,
			Reference: input.Reference,
			Note:      input.Note,
		}, input.LocationID))
		return err
	})
	if err != nil {
		return Movement{}, err
	}
	s.audit(ctx, "inventory:sale", "stock_movement", movement.ID.String(), map[string]any{
		"variant_id": input.VariantID, "location_id": input.LocationID, "quantity": input.Quantity,
	})
	return movement, nil
}

// Transfer moves on-hand quantity between two locations. Both rows are locked
// in canonical order before either is written.
func (s *Service) Transfer(ctx context.Context, input TransferInput) (Movement, error) {
	if err := validateQuantity(input.VariantID, input.Quantity); err != nil {
		return Movement{}, err
	}
	if input.FromLocationID == input.ToLocationID && input.FromLocationID != uuid.Nil {
		return Movement{}, ErrSameLocation
	}
	if _, err := s.location(ctx, input.FromLocationID, false); err != nil {
		return Movement{}, err
	}
	if _, err := s.location(ctx, input.ToLocationID, true); err != nil {
		return Movement{}, err
	}
	from := StockKey{VariantID: input.VariantID, LocationID: input.FromLocationID}
	to := StockKey{VariantID: input.VariantID, LocationID: input.ToLocationID}
	var movement Movement
	_, err := s.execute(ctx, "transfer", func(ctx context.Context, sc *txScope) error {
		if _, err := s.ledger.Lock(ctx, sc.tx, from, to); err != nil {
			return err
		}
		if _, err := s.apply(ctx, sc, from, -input.Quantity, 0); err != nil {
			return err
		}
		if _, err := s.apply(ctx, sc, to, input.Quantity, 0); err != nil {
			return err
		}
		fromID, toID := input.FromLocationID, input.ToLocationID
		var err error
		movement, err = s.record(ctx, sc, Movement{
			VariantID:      input.VariantID,
			Type:           MovementTransfer,
			Quantity:       input.Quantity,
			FromLocationID: &fromID,
			ToLocationID:   &toID,
			Reference:      input.Reference,
			Note:           input.Note,
		})
		return err
	})
	if err != nil {
		return Movement{}, err
	}
	s.audit(ctx, "inventory:transfer", "stock_movement", movement.ID.String(), map[string]any{
		"variant_id": input.VariantID, "from": input.FromLocationID, "to": input.ToLocationID, "quantity": input.Quantity,
	})
	return movement, nil
}

// GetStockLevel returns the level of a pair with derived figures. A pair that
// never had stock reports zero quantities.
func (s *Service) GetStockLevel(ctx context.Context, variantID, locationID uuid.UUID) (StockStatus, error) {
	if variantID == uuid.Nil {
		return StockStatus{}, ErrVariantRequired
	}
	if _, err := s.location(ctx, locationID, false); err != nil {
		return StockStatus{}, err
	}
	key := StockKey{VariantID: variantID, LocationID: locationID}
	level, err := s.repo.GetStockLevel(ctx, key)
	if errors.Is(err, ErrStockLevelNotFound) {
		level = StockLevel{VariantID: variantID, LocationID: locationID}
	} else if err != nil {
		return StockStatus{}, err
	}
	return s.status(ctx, level)
}

// VariantSummary reports a variant at every location where it has a level.
func (s *Service) VariantSummary(ctx context.Context, variantID uuid.UUID) (VariantSummary, error) {
	if variantID == uuid.Nil {
		return VariantSummary{}, ErrVariantRequired
	}
	levels, err := s.repo.ListStockLevels(ctx, variantID)
	if err != nil {
		return VariantSummary{}, err
	}
	statuses := make([]StockStatus, len(levels))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, level := range levels {
		g.Go(func() error {
			st, err := s.status(gctx, level)
			if err != nil {
				return err
			}
			statuses[i] = st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return VariantSummary{}, err
	}
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].LocationID.String() < statuses[j].LocationID.String()
	})
	summary := VariantSummary{VariantID: variantID, Locations: statuses}
	for _, st := range statuses {
		summary.TotalOnHand += st.OnHand
		summary.TotalReserved += st.Reserved
		summary.TotalAvailable += st.Available
	}
	return summary, nil
}

func (s *Service) status(ctx context.Context, level StockLevel) (StockStatus, error) {
	available := level.Available()
	outbound, err := s.repo.SumOutbound(ctx, level.Key(), s.now().Add(-s.cfg.ForecastWindow))
	if err != nil {
		return StockStatus{}, err
	}
	return StockStatus{
		StockLevel:        level,
		Available:         available,
		LowStock:          level.ReorderPoint != nil && available <= *level.ReorderPoint,
		DaysUntilStockout: DaysUntilStockout(available, outbound, s.cfg.ForecastWindow),
	}, nil
}

// SetReorderSettings replaces the reorder point and quantity of a pair. Nil
// clears a setting. The alert is re-evaluated against the new threshold.
func (s *Service) SetReorderSettings(ctx context.Context, variantID, locationID uuid.UUID, reorderPoint, reorderQuantity *int64) (StockLevel, error) {
	if variantID == uuid.Nil {
		return StockLevel{}, ErrVariantRequired
	}
	if (reorderPoint != nil && *reorderPoint < 0) || (reorderQuantity != nil && *reorderQuantity < 0) {
		return StockLevel{}, fmt.Errorf("inventory: reorder settings must be >= 0: %w", shared.ErrValidation)
	}
	if _, err := s.location(ctx, locationID, false); err != nil {
		return StockLevel{}, err
	}
	key := StockKey{VariantID: variantID, LocationID: locationID}
	var level StockLevel
	_, err := s.execute(ctx, "reorder_settings", func(ctx context.Context, sc *txScope) error {
		var err error
		level, err = s.ledger.Update(ctx, sc.tx, key, func(l *StockLevel) {
			l.ReorderPoint = reorderPoint
			l.ReorderQuantity = reorderQuantity
		})
		if err != nil {
			return err
		}
		return s.evaluate(ctx, sc, level)
	})
	if err != nil {
		return StockLevel{}, err
	}
	return level, nil
}

// RecordCount stamps when the pair was last physically counted.
func (s *Service) RecordCount(ctx context.Context, variantID, locationID uuid.UUID, countedAt time.Time) (StockLevel, error) {
	if variantID == uuid.Nil {
		return StockLevel{}, ErrVariantRequired
	}
	now := s.now()
	if countedAt.IsZero() {
		countedAt = now
	}
	if countedAt.After(now) {
		return StockLevel{}, fmt.Errorf("inventory: count time is in the future: %w", shared.ErrValidation)
	}
	if _, err := s.location(ctx, locationID, false); err != nil {
		return StockLevel{}, err
	}
	key := StockKey{VariantID: variantID, LocationID: locationID}
	var level StockLevel
	_, err := s.execute(ctx, "record_count", func(ctx context.Context, sc *txScope) error {
		var err error
		level, err = s.ledger.Update(ctx, sc.tx, key, func(l *StockLevel) {
			at := countedAt.UTC()
			l.LastCountedAt = &at
		})
		return err
	})
	if err != nil {
		return StockLevel{}, err
	}
	return level, nil
}

// ListMovements queries the movement trail.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, int, error) {
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, 0, fmt.Errorf("inventory: unknown movement type %q: %w", filter.Type, shared.ErrValidation)
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return nil, 0, fmt.Errorf("inventory: date range is inverted: %w", shared.ErrValidation)
	}
	filter.Page, filter.PerPage = shared.NormalizePage(filter.Page, filter.PerPage)
	return s.repo.ListMovements(ctx, filter)
}

// Reconcile compares the signed movement sum of a pair with its on-hand
// quantity. Both values come from the same snapshot.
func (s *Service) Reconcile(ctx context.Context, variantID, locationID uuid.UUID) (Reconciliation, error) {
	if variantID == uuid.Nil {
		return Reconciliation{}, ErrVariantRequired
	}
	if _, err := s.location(ctx, locationID, false); err != nil {
		return Reconciliation{}, err
	}
	onHand, sum, err := s.repo.ReconcileSnapshot(ctx, StockKey{VariantID: variantID, LocationID: locationID})
	if err != nil {
		return Reconciliation{}, err
	}
	result := Reconciliation{VariantID: variantID, LocationID: locationID, OnHand: onHand, MovementSum: sum}
	result.Balanced = result.MovementSum == result.OnHand
	return result, nil
}
