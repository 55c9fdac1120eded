package inventory

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MovementType enumerates ledger-affecting events.
type MovementType string

const (
	// MovementReceive records goods arriving at a location.
	MovementReceive MovementType = "RECEIVE"
	// MovementSale records a direct sale that bypasses reservations.
	MovementSale MovementType = "SALE"
	// MovementTransfer moves on-hand quantity between two locations.
	MovementTransfer MovementType = "TRANSFER"
	// MovementAdjustment applies an approved physical count correction.
	MovementAdjustment MovementType = "ADJUSTMENT"
	// MovementReserve holds available quantity for a reservation.
	MovementReserve MovementType = "RESERVE"
	// MovementRelease returns held quantity to available.
	MovementRelease MovementType = "RELEASE"
	// MovementFulfill ships reserved quantity.
	MovementFulfill MovementType = "FULFILL"
)

// AffectsOnHand reports whether the movement quantity changes quantity on hand.
func (t MovementType) AffectsOnHand() bool {
	switch t {
	case MovementReceive, MovementSale, MovementTransfer, MovementAdjustment, MovementFulfill:
		return true
	default:
		return false
	}
}

// Valid reports whether t is a known movement type.
func (t MovementType) Valid() bool {
	return t.AffectsOnHand() || t == MovementReserve || t == MovementRelease
}

// StockKey identifies a stock level row.
type StockKey struct {
	VariantID  uuid.UUID `json:"variant_id"`
	LocationID uuid.UUID `json:"location_id"`
}

func (k StockKey) String() string {
	return fmt.Sprintf("%s@%s", k.VariantID, k.LocationID)
}

// StockLevel is the quantity record of a variant at a location.
type StockLevel struct {
	VariantID       uuid.UUID  `json:"variant_id"`
	LocationID      uuid.UUID  `json:"location_id"`
	OnHand          int64      `json:"quantity_on_hand"`
	Reserved        int64      `json:"quantity_reserved"`
	ReorderPoint    *int64     `json:"reorder_point,omitempty"`
	ReorderQuantity *int64     `json:"reorder_quantity,omitempty"`
	LastCountedAt   *time.Time `json:"last_counted_at,omitempty"`
	Version         int64      `json:"version"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Available is the quantity that can still be reserved or sold.
func (l StockLevel) Available() int64 {
	return l.OnHand - l.Reserved
}

func (l StockLevel) Key() StockKey {
	return StockKey{VariantID: l.VariantID, LocationID: l.LocationID}
}

// Reference is an opaque pointer to the external document behind a change.
type Reference struct {
	Type   string `json:"type,omitempty"`
	ID     string `json:"id,omitempty"`
	Number string `json:"number,omitempty"`
}

// Movement is an immutable ledger entry. Single-location movements carry the
// location on the to side when the quantity is positive and on the from side
// when it is negative.
type Movement struct {
	ID               uuid.UUID    `json:"id"`
	VariantID        uuid.UUID    `json:"variant_id"`
	Type             MovementType `json:"type"`
	Quantity         int64        `json:"quantity"`
	FromLocationID   *uuid.UUID   `json:"from_location_id,omitempty"`
	FromLocationCode string       `json:"from_location_code,omitempty"`
	FromLocationName string       `json:"from_location_name,omitempty"`
	ToLocationID     *uuid.UUID   `json:"to_location_id,omitempty"`
	ToLocationCode   string       `json:"to_location_code,omitempty"`
	ToLocationName   string       `json:"to_location_name,omitempty"`
	UnitCost         *float64     `json:"unit_cost,omitempty"`
	Reference        Reference    `json:"reference"`
	DocumentNo       string       `json:"document_no,omitempty"`
	ActorID          string       `json:"actor_id,omitempty"`
	Note             string       `json:"note,omitempty"`
	OccurredAt       time.Time    `json:"occurred_at"`
}

// OnHandDelta returns the signed change the movement made to on-hand quantity
// at location.
func (m Movement) OnHandDelta(location uuid.UUID) int64 {
	if !m.Type.AffectsOnHand() {
		return 0
	}
	if m.Type == MovementTransfer {
		var delta int64
		if m.FromLocationID != nil && *m.FromLocationID == location {
			delta -= m.Quantity
		}
		if m.ToLocationID != nil && *m.ToLocationID == location {
			delta += m.Quantity
		}
		return delta
	}
	if (m.ToLocationID != nil && *m.ToLocationID == location) || (m.FromLocationID != nil && *m.FromLocationID == location) {
		return m.Quantity
	}
	return 0
}

// LocationRef is the snapshot of a location copied onto movements.
type LocationRef struct {
	ID   uuid.UUID
	Code string
	Name string
}

// Allocation is the share of a reservation held at one location.
type Allocation struct {
	LocationID uuid.UUID `json:"location_id"`
	Quantity   int64     `json:"quantity"`
	Fulfilled  int64     `json:"fulfilled"`
}

// Outstanding is the quantity still held at the location.
func (a Allocation) Outstanding() int64 {
	return a.Quantity - a.Fulfilled
}

// Reservation is a hold on available quantity for one variant and request.
type Reservation struct {
	ID                uuid.UUID         `json:"id"`
	VariantID         uuid.UUID         `json:"variant_id"`
	Allocations       []Allocation      `json:"allocations"`
	QuantityReserved  int64             `json:"quantity_reserved"`
	QuantityFulfilled int64             `json:"quantity_fulfilled"`
	Status            ReservationStatus `json:"status"`
	ExpiresAt         *time.Time        `json:"expires_at,omitempty"`
	Reference         Reference         `json:"reference"`
	CreatedBy         string            `json:"created_by,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// Outstanding is the reserved quantity not yet fulfilled.
func (r Reservation) Outstanding() int64 {
	return r.QuantityReserved - r.QuantityFulfilled
}

// AdjustmentReason classifies why a count differs from the ledger.
type AdjustmentReason string

const (
	ReasonCycleCount AdjustmentReason = "CYCLE_COUNT"
	ReasonDamage     AdjustmentReason = "DAMAGE"
	ReasonLoss       AdjustmentReason = "LOSS"
	ReasonFound      AdjustmentReason = "FOUND"
	ReasonReturn     AdjustmentReason = "RETURN"
	ReasonOther      AdjustmentReason = "OTHER"
)

// Valid reports whether r is a known reason.
func (r AdjustmentReason) Valid() bool {
	switch r {
	case ReasonCycleCount, ReasonDamage, ReasonLoss, ReasonFound, ReasonReturn, ReasonOther:
		return true
	default:
		return false
	}
}

// Adjustment is a staged physical count correction.
type Adjustment struct {
	ID          uuid.UUID        `json:"id"`
	Number      string           `json:"adjustment_number"`
	LocationID  uuid.UUID        `json:"location_id"`
	VariantID   uuid.UUID        `json:"variant_id"`
	ExpectedQty int64            `json:"expected_qty"`
	ActualQty   int64            `json:"actual_qty"`
	Delta       int64            `json:"delta"`
	Reason      AdjustmentReason `json:"reason"`
	Status      AdjustmentStatus `json:"status"`
	SubmittedBy string           `json:"submitted_by"`
	ApprovedBy  string           `json:"approved_by,omitempty"`
	ApprovedAt  *time.Time       `json:"approved_at,omitempty"`
	Notes       string           `json:"notes,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// Alert signals that available quantity is at or below the reorder point.
type Alert struct {
	ID             uuid.UUID   `json:"id"`
	VariantID      uuid.UUID   `json:"variant_id"`
	LocationID     uuid.UUID   `json:"location_id"`
	CurrentQty     int64       `json:"current_qty"`
	ReorderPoint   int64       `json:"reorder_point"`
	RecommendedQty int64       `json:"recommended_qty"`
	Status         AlertStatus `json:"status"`
	ResolvedBy     string      `json:"resolved_by,omitempty"`
	ResolvedAt     *time.Time  `json:"resolved_at,omitempty"`
	Notes          string      `json:"notes,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

func (a Alert) Key() StockKey {
	return StockKey{VariantID: a.VariantID, LocationID: a.LocationID}
}

// ReceiveInput describes goods received at a location.
type ReceiveInput struct {
	VariantID  uuid.UUID
	LocationID uuid.UUID
	Quantity   int64
	UnitCost   *float64
	Reference  Reference
	Note       string
}

// SellInput describes a direct sale from a location.
type SellInput struct {
	VariantID  uuid.UUID
	LocationID uuid.UUID
	Quantity   int64
	Reference  Reference
	Note       string
}

// TransferInput describes stock moved between two locations.
type TransferInput struct {
	VariantID      uuid.UUID
	FromLocationID uuid.UUID
	ToLocationID   uuid.UUID
	Quantity       int64
	Reference      Reference
	Note           string
}

// MaxReservationTTL caps how long a reservation may hold stock.
const MaxReservationTTL = 365 * 24 * time.Hour

// ReserveInput describes a reservation request. Empty LocationIDs means every
// active location is eligible. A nil TTL applies the configured default and a
// zero TTL holds the stock until it is fulfilled or cancelled.
type ReserveInput struct {
	VariantID      uuid.UUID
	Quantity       int64
	LocationIDs    []uuid.UUID
	Reference      Reference
	TTL            *time.Duration
	IdempotencyKey string
}

// FulfillResult is the outcome of a fulfillment.
type FulfillResult struct {
	Reservation Reservation `json:"reservation"`
	Movements   []Movement  `json:"movements"`
}

// SubmitAdjustmentInput stages a count correction.
type SubmitAdjustmentInput struct {
	LocationID  uuid.UUID
	VariantID   uuid.UUID
	ExpectedQty int64
	ActualQty   int64
	Reason      AdjustmentReason
	SubmittedBy string
	Notes       string
}

// MovementFilter narrows movement queries. LocationID matches either side.
type MovementFilter struct {
	VariantID       *uuid.UUID
	LocationID      *uuid.UUID
	Type            MovementType
	From            time.Time
	To              time.Time
	ReferenceType   string
	ReferenceID     string
	ReferenceNumber string
	Page            int
	PerPage         int
}

// AdjustmentFilter narrows adjustment queries.
type AdjustmentFilter struct {
	Status     AdjustmentStatus
	LocationID *uuid.UUID
	VariantID  *uuid.UUID
	Page       int
	PerPage    int
}

// AlertFilter narrows alert queries.
type AlertFilter struct {
	Status     AlertStatus
	LocationID *uuid.UUID
	VariantID  *uuid.UUID
	Limit      int
}

// StockStatus is a stock level enriched with derived figures.
type StockStatus struct {
	StockLevel
	Available         int64    `json:"quantity_available"`
	LowStock          bool     `json:"low_stock"`
	DaysUntilStockout *float64 `json:"days_until_stockout,omitempty"`
}

// VariantSummary aggregates a variant across locations.
type VariantSummary struct {
	VariantID      uuid.UUID     `json:"variant_id"`
	Locations      []StockStatus `json:"locations"`
	TotalOnHand    int64         `json:"total_on_hand"`
	TotalReserved  int64         `json:"total_reserved"`
	TotalAvailable int64         `json:"total_available"`
}

// Reconciliation compares the movement trail with the stored level.
type Reconciliation struct {
	VariantID   uuid.UUID `json:"variant_id"`
	LocationID  uuid.UUID `json:"location_id"`
	MovementSum int64     `json:"movement_sum"`
	OnHand      int64     `json:"quantity_on_hand"`
	Balanced    bool      `json:"balanced"`
}
