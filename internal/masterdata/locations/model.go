package locations

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// Type classifies what a location is used for.
type Type string

const (
	TypeWarehouse          Type = "WAREHOUSE"
	TypeStore              Type = "STORE"
	TypeDistributionCenter Type = "DISTRIBUTION_CENTER"
	TypeVirtual            Type = "VIRTUAL"
)

// Location is a physical or logical place where stock is held. Capacity is
// informational and never enforced by the ledger.
type Location struct {
	ID        uuid.UUID `json:"id"`
	Code      string    `json:"code" validate:"required,max=32"`
	Name      string    `json:"name" validate:"required,max=128"`
	Type      Type      `json:"type" validate:"required,oneof=WAREHOUSE STORE DISTRIBUTION_CENTER VIRTUAL"`
	Priority  int       `json:"priority" validate:"gte=0"`
	Capacity  *int64    `json:"capacity,omitempty" validate:"omitempty,gte=0"`
	IsDefault bool      `json:"is_default"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

var (
	// ErrNotFound indicates the location does not exist.
	ErrNotFound = fmt.Errorf("location not found: %w", shared.ErrNotFound)
	// ErrDuplicateCode indicates another location already uses the code.
	ErrDuplicateCode = fmt.Errorf("location code already exists: %w", shared.ErrConflict)
	// ErrInUse indicates movements, open reservations or pending adjustments still reference the location.
	ErrInUse = fmt.Errorf("location is referenced by stock records: %w", shared.ErrConflict)
	// ErrNoActiveLocation indicates no active location can serve as default.
	ErrNoActiveLocation = fmt.Errorf("no active location: %w", shared.ErrNotFound)
)
