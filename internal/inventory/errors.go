package inventory

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// InsufficientStockError reports a request that exceeds what a location (or,
// with a nil LocationID, the eligible set) can provide.
type InsufficientStockError struct {
	VariantID  uuid.UUID
	LocationID uuid.UUID
	Requested  int64
	Available  int64
}

func (e *InsufficientStockError) Error() string {
	if e.LocationID == uuid.Nil {
		return fmt.Sprintf("inventory: insufficient stock for variant %s: requested %d, available %d", e.VariantID, e.Requested, e.Available)
	}
	return fmt.Sprintf("inventory: insufficient stock for variant %s at %s: requested %d, available %d", e.VariantID, e.LocationID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error {
	return shared.ErrInsufficientStock
}

var (
	// ErrInvalidQuantity indicates a non-positive quantity.
	ErrInvalidQuantity = fmt.Errorf("inventory: quantity must be positive: %w", shared.ErrValidation)
	// ErrInvalidUnitCost indicates a negative unit cost.
	ErrInvalidUnitCost = fmt.Errorf("inventory: unit cost must be >= 0: %w", shared.ErrValidation)
	// ErrVariantRequired indicates a missing variant id.
	ErrVariantRequired = fmt.Errorf("inventory: variant required: %w", shared.ErrValidation)
	// ErrLocationRequired indicates a missing location id.
	ErrLocationRequired = fmt.Errorf("inventory: location required: %w", shared.ErrValidation)
	// ErrSameLocation indicates a transfer onto its own source.
	ErrSameLocation = fmt.Errorf("inventory: source and destination must differ: %w", shared.ErrValidation)
	// ErrLocationInactive indicates stock cannot be placed at an inactive location.
	ErrLocationInactive = fmt.Errorf("inventory: location is inactive: %w", shared.ErrValidation)
	// ErrActorRequired indicates a missing actor id.
	ErrActorRequired = fmt.Errorf("inventory: actor required: %w", shared.ErrValidation)

	ErrStockLevelNotFound  = fmt.Errorf("inventory: stock level not found: %w", shared.ErrNotFound)
	ErrReservationNotFound = fmt.Errorf("inventory: reservation not found: %w", shared.ErrNotFound)
	ErrAdjustmentNotFound  = fmt.Errorf("inventory: adjustment not found: %w", shared.ErrNotFound)
	ErrAlertNotFound       = fmt.Errorf("inventory: alert not found: %w", shared.ErrNotFound)

	// ErrReservationClosed indicates the reservation is already terminal.
	ErrReservationClosed = fmt.Errorf("inventory: reservation is closed: %w", shared.ErrConflict)
	// ErrAdjustmentClosed indicates the adjustment already left PENDING.
	ErrAdjustmentClosed = fmt.Errorf("inventory: adjustment is not pending: %w", shared.ErrConflict)
	// ErrAlertClosed indicates the alert is no longer ACTIVE.
	ErrAlertClosed = fmt.Errorf("inventory: alert is not active: %w", shared.ErrConflict)

	// ErrVersionConflict indicates the stock level changed between read and write.
	ErrVersionConflict = fmt.Errorf("inventory: stock level version changed: %w", shared.ErrConcurrency)
)
