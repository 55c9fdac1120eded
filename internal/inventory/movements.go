package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// MovementRecorder appends to the immutable movement trail. There is no
// update or delete path.
type MovementRecorder struct {
	clock func() time.Time
}

// Append validates m, stamps id, time and location snapshots, and inserts it.
func (r MovementRecorder) Append(ctx context.Context, tx TxRepository, m Movement) (Movement, error) {
	if err := validateMovement(m); err != nil {
		return Movement{}, err
	}
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.OccurredAt.IsZero() {
		m.OccurredAt = r.clock()
	}
	if m.FromLocationID != nil {
		ref, err := tx.GetLocationRef(ctx, *m.FromLocationID)
		if err != nil {
			return Movement{}, err
		}
		m.FromLocationCode, m.FromLocationName = ref.Code, ref.Name
	}
	if m.ToLocationID != nil {
		ref, err := tx.GetLocationRef(ctx, *m.ToLocationID)
		if err != nil {
			return Movement{}, err
		}
		m.ToLocationCode, m.ToLocationName = ref.Code, ref.Name
	}
	if err := tx.InsertMovement(ctx, m); err != nil {
		return Movement{}, err
	}
	return m, nil
}

func validateMovement(m Movement) error {
	if !m.Type.Valid() {
		return fmt.Errorf("inventory: unknown movement type %q: %w", m.Type, shared.ErrValidation)
	}
	if m.VariantID == uuid.Nil {
		return ErrVariantRequired
	}
	if m.Quantity == 0 {
		return fmt.Errorf("inventory: movement quantity must be non zero: %w", shared.ErrValidation)
	}
	if m.UnitCost != nil && *m.UnitCost < 0 {
		return ErrInvalidUnitCost
	}
	if m.Type == MovementTransfer {
		if m.Quantity < 0 {
			return fmt.Errorf("inventory: transfer quantity must be positive: %w", shared.ErrValidation)
		}
		if m.FromLocationID == nil || m.ToLocationID == nil {
			return fmt.Errorf("inventory: transfer needs both locations: %w", shared.ErrValidation)
		}
		if *m.FromLocationID == *m.ToLocationID {
			return ErrSameLocation
		}
		return nil
	}
	switch m.Type {
	case MovementReceive, MovementRelease:
		if m.Quantity < 0 {
			return fmt.Errorf("inventory: %s quantity must be positive: %w", m.Type, shared.ErrValidation)
		}
	case MovementSale, MovementFulfill, MovementReserve:
		if m.Quantity > 0 {
			return fmt.Errorf("inventory: %s quantity must be negative: %w", m.Type, shared.ErrValidation)
		}
	}
	if m.Quantity > 0 && (m.ToLocationID == nil || m.FromLocationID != nil) {
		return fmt.Errorf("inventory: inbound %s needs exactly a destination: %w", m.Type, shared.ErrValidation)
	}
	if m.Quantity < 0 && (m.FromLocationID == nil || m.ToLocationID != nil) {
		return fmt.Errorf("inventory: outbound %s needs exactly a source: %w", m.Type, shared.ErrValidation)
	}
	return nil
}

// singleLocation builds the location side of a single-location movement
// according to the sign of quantity.
func singleLocation(m Movement, location uuid.UUID) Movement {
	id := location
	if m.Quantity > 0 {
		m.ToLocationID = &id
	} else {
		m.FromLocationID = &id
	}
	return m
}
