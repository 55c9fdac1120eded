package inventory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-stock/internal/masterdata/locations"
	"github.com/odyssey-erp/odyssey-stock/internal/platform/db"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetStockLevel(ctx context.Context, key StockKey) (StockLevel, error)
	ListStockLevels(ctx context.Context, variantID uuid.UUID) ([]StockLevel, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, int, error)
	// ReconcileSnapshot returns the on-hand quantity of key and the signed sum
	// of its movements, read from one snapshot.
	ReconcileSnapshot(ctx context.Context, key StockKey) (onHand, movementSum int64, err error)
	SumOutbound(ctx context.Context, key StockKey, since time.Time) (int64, error)
	GetReservation(ctx context.Context, id uuid.UUID) (Reservation, error)
	ListDueReservations(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
	GetAdjustment(ctx context.Context, id uuid.UUID) (Adjustment, error)
	ListAdjustments(ctx context.Context, filter AdjustmentFilter) ([]Adjustment, int, error)
	GetAlert(ctx context.Context, id uuid.UUID) (Alert, error)
	ListAlerts(ctx context.Context, filter AlertFilter) ([]Alert, error)
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	EnsureStockLevel(ctx context.Context, key StockKey, now time.Time) error
	GetStockLevelForUpdate(ctx context.Context, key StockKey) (StockLevel, error)
	// UpdateStockLevel writes level when the stored version still equals
	// expectedVersion and reports whether a row was written.
	UpdateStockLevel(ctx context.Context, level StockLevel, expectedVersion int64) (bool, error)
	GetLocationRef(ctx context.Context, id uuid.UUID) (LocationRef, error)
	InsertMovement(ctx context.Context, m Movement) error
	InsertReservation(ctx context.Context, r Reservation) error
	GetReservationForUpdate(ctx context.Context, id uuid.UUID) (Reservation, error)
	UpdateReservation(ctx context.Context, r Reservation) error
	InsertAdjustment(ctx context.Context, a Adjustment) error
	GetAdjustmentForUpdate(ctx context.Context, id uuid.UUID) (Adjustment, error)
	UpdateAdjustment(ctx context.Context, a Adjustment) error
	GetActiveAlertForUpdate(ctx context.Context, key StockKey) (Alert, error)
	GetAlertForUpdate(ctx context.Context, id uuid.UUID) (Alert, error)
	InsertAlert(ctx context.Context, a Alert) error
	UpdateAlert(ctx context.Context, a Alert) error
	Sequencer
}

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// LedgerTxOptions starts ledger transactions at read committed. Writers of a
// row queue on its FOR UPDATE lock and then read the latest committed version,
// and the version check in UpdateStockLevel still rejects lost updates.
var LedgerTxOptions = pgx.TxOptions{IsoLevel: pgx.ReadCommitted}

// WithTx executes the callback inside a ledger transaction. Serialization
// failures and deadlocks surface as shared.ErrConcurrency.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	err := db.WithTxOptions(ctx, r.pool, LedgerTxOptions, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
	if db.IsRetryable(err) {
		return fmt.Errorf("inventory: %w: %v", shared.ErrConcurrency, err)
	}
	return err
}

// LocationInUse reports whether movements, open reservations or pending
// adjustments reference the location.
func (r *Repository) LocationInUse(ctx context.Context, q db.Querier, id uuid.UUID) (bool, error) {
	if q == nil {
		q = r.pool
	}
	var inUse bool
	err := q.QueryRow(ctx, `SELECT
  EXISTS (SELECT 1 FROM stock_movements WHERE from_location_id = $1 OR to_location_id = $1)
  OR EXISTS (SELECT 1 FROM stock_reservation_allocations a JOIN stock_reservations r ON r.id = a.reservation_id
             WHERE a.location_id = $1 AND r.status IN ('ACTIVE', 'PARTIALLY_FULFILLED'))
  OR EXISTS (SELECT 1 FROM stock_adjustments WHERE location_id = $1 AND status = 'PENDING')`, id).Scan(&inUse)
	return inUse, err
}

const stockLevelColumns = `variant_id, location_id, quantity_on_hand, quantity_reserved, reorder_point, reorder_quantity, last_counted_at, version, updated_at`

func (r *Repository) GetStockLevel(ctx context.Context, key StockKey) (StockLevel, error) {
	return scanStockLevel(r.pool.QueryRow(ctx, `SELECT `+stockLevelColumns+` FROM stock_levels WHERE variant_id = $1 AND location_id = $2`,
		key.VariantID, key.LocationID))
}

func (r *Repository) ListStockLevels(ctx context.Context, variantID uuid.UUID) ([]StockLevel, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+stockLevelColumns+` FROM stock_levels WHERE variant_id = $1 ORDER BY location_id`, variantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	levels := []StockLevel{}
	for rows.Next() {
		level, err := scanStockLevel(rows)
		if err != nil {
			return nil, err
		}
		levels = append(levels, level)
	}
	return levels, rows.Err()
}

func scanStockLevel(row pgx.Row) (StockLevel, error) {
	var l StockLevel
	err := row.Scan(&l.VariantID, &l.LocationID, &l.OnHand, &l.Reserved, &l.ReorderPoint, &l.ReorderQuantity, &l.LastCountedAt, &l.Version, &l.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return StockLevel{}, ErrStockLevelNotFound
	}
	return l, err
}

const movementColumns = `id, variant_id, movement_type, quantity, from_location_id, from_location_code, from_location_name,
to_location_id, to_location_code, to_location_name, unit_cost, reference_type, reference_id, reference_number,
document_no, actor_id, note, occurred_at`

// ListMovements uses a dynamic query due to filter complexity
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	add := func(clause string, value any) {
		args = append(args, value)
		where += fmt.Sprintf(clause, len(args))
	}
	if filter.VariantID != nil {
		add(` AND variant_id = $%d`, *filter.VariantID)
	}
	if filter.LocationID != nil {
		args = append(args, *filter.LocationID)
		n := strconv.Itoa(len(args))
		where += ` AND (from_location_id = $` + n + ` OR to_location_id = $` + n + `)`
	}
	if filter.Type != "" {
		add(` AND movement_type = $%d`, string(filter.Type))
	}
	if !filter.From.IsZero() {
		add(` AND occurred_at >= $%d`, filter.From)
	}
	if !filter.To.IsZero() {
		add(` AND occurred_at <= $%d`, filter.To)
	}
	if filter.ReferenceType != "" {
		add(` AND reference_type = $%d`, filter.ReferenceType)
	}
	if filter.ReferenceID != "" {
		add(` AND reference_id = $%d`, filter.ReferenceID)
	}
	if filter.ReferenceNumber != "" {
		add(` AND reference_number = $%d`, filter.ReferenceNumber)
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_movements`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page, perPage := shared.NormalizePage(filter.Page, filter.PerPage)
	args = append(args, perPage, shared.Offset(page, perPage))
	query := `SELECT ` + movementColumns + ` FROM stock_movements` + where +
		fmt.Sprintf(` ORDER BY occurred_at ASC, id ASC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	movements := []Movement{}
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, 0, err
		}
		movements = append(movements, m)
	}
	return movements, total, rows.Err()
}

func scanMovement(row pgx.Row) (Movement, error) {
	var m Movement
	var typ string
	var fromCode, fromName, toCode, toName *string
	err := row.Scan(&m.ID, &m.VariantID, &typ, &m.Quantity, &m.FromLocationID, &fromCode, &fromName,
		&m.ToLocationID, &toCode, &toName, &m.UnitCost, &m.Reference.Type, &m.Reference.ID, &m.Reference.Number,
		&m.DocumentNo, &m.ActorID, &m.Note, &m.OccurredAt)
	if err != nil {
		return Movement{}, err
	}
	m.Type = MovementType(typ)
	m.FromLocationCode, m.FromLocationName = deref(fromCode), deref(fromName)
	m.ToLocationCode, m.ToLocationName = deref(toCode), deref(toName)
	return m, nil
}

// ReconcileSnapshot reads on hand and the movement sum of key in a single
// statement so a concurrent commit cannot land between the two.
func (r *Repository) ReconcileSnapshot(ctx context.Context, key StockKey) (int64, int64, error) {
	var onHand, sum int64
	err := r.pool.QueryRow(ctx, `SELECT
  COALESCE((SELECT quantity_on_hand FROM stock_levels WHERE variant_id = $1 AND location_id = $2), 0)::BIGINT,
  COALESCE((SELECT SUM(CASE
    WHEN movement_type = 'TRANSFER' AND from_location_id = $2 THEN -quantity
    WHEN movement_type = 'TRANSFER' AND to_location_id = $2 THEN quantity
    WHEN movement_type IN ('RECEIVE', 'SALE', 'ADJUSTMENT', 'FULFILL') THEN quantity
    ELSE 0 END)
  FROM stock_movements
  WHERE variant_id = $1 AND (from_location_id = $2 OR to_location_id = $2)), 0)::BIGINT`,
		key.VariantID, key.LocationID).Scan(&onHand, &sum)
	return onHand, sum, err
}

// SumOutbound returns the quantity sold or fulfilled from key since the cutoff.
func (r *Repository) SumOutbound(ctx context.Context, key StockKey, since time.Time) (int64, error) {
	var sum int64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(-quantity), 0)::BIGINT
FROM stock_movements
WHERE variant_id = $1 AND from_location_id = $2 AND movement_type IN ('SALE', 'FULFILL') AND occurred_at >= $3`,
		key.VariantID, key.LocationID, since).Scan(&sum)
	return sum, err
}

const reservationColumns = `id, variant_id, quantity_reserved, quantity_fulfilled, status, expires_at,
reference_type, reference_id, reference_number, created_by, created_at, updated_at`

func (r *Repository) GetReservation(ctx context.Context, id uuid.UUID) (Reservation, error) {
	return loadReservation(ctx, r.pool, id, false)
}

func (r *Repository) ListDueReservations(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT id FROM stock_reservations
WHERE status IN ('ACTIVE', 'PARTIALLY_FULFILLED') AND expires_at IS NOT NULL AND expires_at <= $1
ORDER BY expires_at ASC
LIMIT $2`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := []uuid.UUID{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func loadReservation(ctx context.Context, q db.Querier, id uuid.UUID, forUpdate bool) (Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM stock_reservations WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var res Reservation
	var status string
	err := q.QueryRow(ctx, query, id).Scan(&res.ID, &res.VariantID, &res.QuantityReserved, &res.QuantityFulfilled, &status,
		&res.ExpiresAt, &res.Reference.Type, &res.Reference.ID, &res.Reference.Number, &res.CreatedBy, &res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Reservation{}, ErrReservationNotFound
		}
		return Reservation{}, err
	}
	res.Status = ReservationStatus(status)

	rows, err := q.Query(ctx, `SELECT location_id, quantity, fulfilled FROM stock_reservation_allocations
WHERE reservation_id = $1 ORDER BY position ASC`, id)
	if err != nil {
		return Reservation{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var a Allocation
		if err := rows.Scan(&a.LocationID, &a.Quantity, &a.Fulfilled); err != nil {
			return Reservation{}, err
		}
		res.Allocations = append(res.Allocations, a)
	}
	return res, rows.Err()
}

const adjustmentColumns = `id, adjustment_number, location_id, variant_id, expected_qty, actual_qty, delta, reason, status,
submitted_by, approved_by, approved_at, notes, created_at`

func (r *Repository) GetAdjustment(ctx context.Context, id uuid.UUID) (Adjustment, error) {
	return scanAdjustment(r.pool.QueryRow(ctx, `SELECT `+adjustmentColumns+` FROM stock_adjustments WHERE id = $1`, id))
}

func (r *Repository) ListAdjustments(ctx context.Context, filter AdjustmentFilter) ([]Adjustment, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where += ` AND status = $` + strconv.Itoa(len(args))
	}
	if filter.LocationID != nil {
		args = append(args, *filter.LocationID)
		where += ` AND location_id = $` + strconv.Itoa(len(args))
	}
	if filter.VariantID != nil {
		args = append(args, *filter.VariantID)
		where += ` AND variant_id = $` + strconv.Itoa(len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_adjustments`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page, perPage := shared.NormalizePage(filter.Page, filter.PerPage)
	args = append(args, perPage, shared.Offset(page, perPage))
	query := `SELECT ` + adjustmentColumns + ` FROM stock_adjustments` + where +
		fmt.Sprintf(` ORDER BY created_at DESC, adjustment_number DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	adjustments := []Adjustment{}
	for rows.Next() {
		a, err := scanAdjustment(rows)
		if err != nil {
			return nil, 0, err
		}
		adjustments = append(adjustments, a)
	}
	return adjustments, total, rows.Err()
}

func scanAdjustment(row pgx.Row) (Adjustment, error) {
	var a Adjustment
	var reason, status string
	var approvedBy *string
	err := row.Scan(&a.ID, &a.Number, &a.LocationID, &a.VariantID, &a.ExpectedQty, &a.ActualQty, &a.Delta, &reason, &status,
		&a.SubmittedBy, &approvedBy, &a.ApprovedAt, &a.Notes, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Adjustment{}, ErrAdjustmentNotFound
		}
		return Adjustment{}, err
	}
	a.Reason = AdjustmentReason(reason)
	a.Status = AdjustmentStatus(status)
	a.ApprovedBy = deref(approvedBy)
	return a, nil
}

const alertColumns = `id, variant_id, location_id, current_qty, reorder_point, recommended_qty, status,
resolved_by, resolved_at, notes, created_at, updated_at`

func (r *Repository) GetAlert(ctx context.Context, id uuid.UUID) (Alert, error) {
	return scanAlert(r.pool.QueryRow(ctx, `SELECT `+alertColumns+` FROM stock_alerts WHERE id = $1`, id))
}

func (r *Repository) ListAlerts(ctx context.Context, filter AlertFilter) ([]Alert, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where += ` AND status = $` + strconv.Itoa(len(args))
	}
	if filter.LocationID != nil {
		args = append(args, *filter.LocationID)
		where += ` AND location_id = $` + strconv.Itoa(len(args))
	}
	if filter.VariantID != nil {
		args = append(args, *filter.VariantID)
		where += ` AND variant_id = $` + strconv.Itoa(len(args))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	args = append(args, limit)
	rows, err := r.pool.Query(ctx, `SELECT `+alertColumns+` FROM stock_alerts`+where+
		` ORDER BY updated_at DESC, id ASC LIMIT $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	alerts := []Alert{}
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func scanAlert(row pgx.Row) (Alert, error) {
	var a Alert
	var status string
	var resolvedBy *string
	err := row.Scan(&a.ID, &a.VariantID, &a.LocationID, &a.CurrentQty, &a.ReorderPoint, &a.RecommendedQty, &status,
		&resolvedBy, &a.ResolvedAt, &a.Notes, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Alert{}, ErrAlertNotFound
		}
		return Alert{}, err
	}
	a.Status = AlertStatus(status)
	a.ResolvedBy = deref(resolvedBy)
	return a, nil
}

func (t *txRepository) EnsureStockLevel(ctx context.Context, key StockKey, now time.Time) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO stock_levels (variant_id, location_id, updated_at) VALUES ($1, $2, $3)
ON CONFLICT (variant_id, location_id) DO NOTHING`, key.VariantID, key.LocationID, now)
	if db.IsForeignKeyViolation(err) {
		return locations.ErrNotFound
	}
	return err
}

func (t *txRepository) GetStockLevelForUpdate(ctx context.Context, key StockKey) (StockLevel, error) {
	return scanStockLevel(t.tx.QueryRow(ctx, `SELECT `+stockLevelColumns+` FROM stock_levels
WHERE variant_id = $1 AND location_id = $2 FOR UPDATE`, key.VariantID, key.LocationID))
}

func (t *txRepository) UpdateStockLevel(ctx context.Context, level StockLevel, expectedVersion int64) (bool, error) {
	tag, err := t.tx.Exec(ctx, `UPDATE stock_levels SET quantity_on_hand = $3, quantity_reserved = $4, reorder_point = $5,
reorder_quantity = $6, last_counted_at = $7, version = $8, updated_at = $9
WHERE variant_id = $1 AND location_id = $2 AND version = $10`,
		level.VariantID, level.LocationID, level.OnHand, level.Reserved, level.ReorderPoint, level.ReorderQuantity,
		level.LastCountedAt, level.Version, level.UpdatedAt, expectedVersion)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (t *txRepository) GetLocationRef(ctx context.Context, id uuid.UUID) (LocationRef, error) {
	var ref LocationRef
	err := t.tx.QueryRow(ctx, `SELECT id, code, name FROM locations WHERE id = $1`, id).Scan(&ref.ID, &ref.Code, &ref.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return LocationRef{}, locations.ErrNotFound
	}
	return ref, err
}

func (t *txRepository) InsertMovement(ctx context.Context, m Movement) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO stock_movements (`+movementColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		m.ID, m.VariantID, string(m.Type), m.Quantity, m.FromLocationID, nullString(m.FromLocationCode), nullString(m.FromLocationName),
		m.ToLocationID, nullString(m.ToLocationCode), nullString(m.ToLocationName), m.UnitCost,
		m.Reference.Type, m.Reference.ID, m.Reference.Number, m.DocumentNo, m.ActorID, m.Note, m.OccurredAt)
	return err
}

func (t *txRepository) InsertReservation(ctx context.Context, r Reservation) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO stock_reservations (`+reservationColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		r.ID, r.VariantID, r.QuantityReserved, r.QuantityFulfilled, string(r.Status), r.ExpiresAt,
		r.Reference.Type, r.Reference.ID, r.Reference.Number, r.CreatedBy, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return err
	}
	for i, a := range r.Allocations {
		if _, err := t.tx.Exec(ctx, `INSERT INTO stock_reservation_allocations (reservation_id, position, location_id, quantity, fulfilled)
VALUES ($1, $2, $3, $4, $5)`, r.ID, i, a.LocationID, a.Quantity, a.Fulfilled); err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepository) GetReservationForUpdate(ctx context.Context, id uuid.UUID) (Reservation, error) {
	return loadReservation(ctx, t.tx, id, true)
}

func (t *txRepository) UpdateReservation(ctx context.Context, r Reservation) error {
	tag, err := t.tx.Exec(ctx, `UPDATE stock_reservations SET quantity_fulfilled = $2, status = $3, updated_at = $4 WHERE id = $1`,
		r.ID, r.QuantityFulfilled, string(r.Status), r.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrReservationNotFound
	}
	for i, a := range r.Allocations {
		if _, err := t.tx.Exec(ctx, `UPDATE stock_reservation_allocations SET fulfilled = $3 WHERE reservation_id = $1 AND position = $2`,
			r.ID, i, a.Fulfilled); err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepository) InsertAdjustment(ctx context.Context, a Adjustment) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO stock_adjustments (`+adjustmentColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		a.ID, a.Number, a.LocationID, a.VariantID, a.ExpectedQty, a.ActualQty, a.Delta, string(a.Reason), string(a.Status),
		a.SubmittedBy, nullString(a.ApprovedBy), a.ApprovedAt, a.Notes, a.CreatedAt)
	if db.IsForeignKeyViolation(err) {
		return locations.ErrNotFound
	}
	return err
}

func (t *txRepository) GetAdjustmentForUpdate(ctx context.Context, id uuid.UUID) (Adjustment, error) {
	return scanAdjustment(t.tx.QueryRow(ctx, `SELECT `+adjustmentColumns+` FROM stock_adjustments WHERE id = $1 FOR UPDATE`, id))
}

func (t *txRepository) UpdateAdjustment(ctx context.Context, a Adjustment) error {
	tag, err := t.tx.Exec(ctx, `UPDATE stock_adjustments SET status = $2, approved_by = $3, approved_at = $4, notes = $5 WHERE id = $1`,
		a.ID, string(a.Status), nullString(a.ApprovedBy), a.ApprovedAt, a.Notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAdjustmentNotFound
	}
	return nil
}

func (t *txRepository) GetActiveAlertForUpdate(ctx context.Context, key StockKey) (Alert, error) {
	return scanAlert(t.tx.QueryRow(ctx, `SELECT `+alertColumns+` FROM stock_alerts
WHERE variant_id = $1 AND location_id = $2 AND status = 'ACTIVE' FOR UPDATE`, key.VariantID, key.LocationID))
}

func (t *txRepository) GetAlertForUpdate(ctx context.Context, id uuid.UUID) (Alert, error) {
	return scanAlert(t.tx.QueryRow(ctx, `SELECT `+alertColumns+` FROM stock_alerts WHERE id = $1 FOR UPDATE`, id))
}

func (t *txRepository) InsertAlert(ctx context.Context, a Alert) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO stock_alerts (`+alertColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		a.ID, a.VariantID, a.LocationID, a.CurrentQty, a.ReorderPoint, a.RecommendedQty, string(a.Status),
		nullString(a.ResolvedBy), a.ResolvedAt, a.Notes, a.CreatedAt, a.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("inventory: active alert already exists for %s: %w", a.Key(), shared.ErrConcurrency)
	}
	return err
}

func (t *txRepository) UpdateAlert(ctx context.Context, a Alert) error {
	tag, err := t.tx.Exec(ctx, `UPDATE stock_alerts SET current_qty = $2, reorder_point = $3, recommended_qty = $4, status = $5,
resolved_by = $6, resolved_at = $7, notes = $8, updated_at = $9 WHERE id = $1`,
		a.ID, a.CurrentQty, a.ReorderPoint, a.RecommendedQty, string(a.Status), nullString(a.ResolvedBy), a.ResolvedAt, a.Notes, a.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlertNotFound
	}
	return nil
}

func (t *txRepository) NextSequence(ctx context.Context, prefix string, day time.Time) (int64, error) {
	var value int64
	err := t.tx.QueryRow(ctx, `INSERT INTO doc_sequences (prefix, day, last_value) VALUES ($1, $2, 1)
ON CONFLICT (prefix, day) DO UPDATE SET last_value = doc_sequences.last_value + 1
RETURNING last_value`, prefix, day).Scan(&value)
	return value, err
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
