package locations

import (
	"context"
	"errors"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-stock/internal/masterdata/shared"
	"github.com/odyssey-erp/odyssey-stock/internal/platform/db"
)

type Repository interface {
	List(ctx context.Context, filters shared.ListFilters) ([]Location, int, error)
	Get(ctx context.Context, id uuid.UUID) (Location, error)
	GetByCode(ctx context.Context, code string) (Location, error)
	Create(ctx context.Context, location Location) (Location, error)
	Update(ctx context.Context, location Location) (Location, error)
	Delete(ctx context.Context, id uuid.UUID, guard DeleteGuard) error
	ListActive(ctx context.Context) ([]Location, error)
	GetDefault(ctx context.Context) (Location, error)
}

// DeleteGuard runs inside the delete transaction after the location row is
// locked. A non-nil error aborts the delete.
type DeleteGuard func(ctx context.Context, q db.Querier, id uuid.UUID) error

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const selectColumns = `SELECT id, code, name, location_type, priority, capacity, is_default, is_active, created_at, updated_at FROM locations`

// List uses a dynamic query due to filter complexity
func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]Location, int, error) {
	where := ` WHERE 1=1`
	args := []any{}

	if filters.IsActive != nil {
		args = append(args, *filters.IsActive)
		where += ` AND is_active = $` + strconv.Itoa(len(args))
	}
	if filters.Type != "" {
		args = append(args, filters.Type)
		where += ` AND location_type = $` + strconv.Itoa(len(args))
	}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		n := strconv.Itoa(len(args))
		where += ` AND (name ILIKE $` + n + ` OR code ILIKE $` + n + `)`
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM locations`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := selectColumns + where + " ORDER BY " + sortOrder(filters.SortBy, filters.SortDir)
	if filters.Limit > 0 {
		args = append(args, filters.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
		args = append(args, filters.Offset())
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	locations, err := scanLocations(rows)
	return locations, total, err
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (Location, error) {
	return scanLocation(r.pool.QueryRow(ctx, selectColumns+` WHERE id = $1`, id))
}

func (r *repository) GetByCode(ctx context.Context, code string) (Location, error) {
	return scanLocation(r.pool.QueryRow(ctx, selectColumns+` WHERE code = $1`, code))
}

// Create inserts the location and, when it is flagged as default, clears the
// flag on every other location in the same transaction.
func (r *repository) Create(ctx context.Context, location Location) (Location, error) {
	var created Location
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if location.IsDefault {
			if err := clearDefault(ctx, tx, location.ID); err != nil {
				return err
			}
		}
		row := tx.QueryRow(ctx, `INSERT INTO locations (id, code, name, location_type, priority, capacity, is_default, is_active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$9)
RETURNING id, code, name, location_type, priority, capacity, is_default, is_active, created_at, updated_at`,
			location.ID, location.Code, location.Name, string(location.Type), location.Priority, location.Capacity,
			location.IsDefault, location.Active, location.CreatedAt)
		var err error
		created, err = scanLocation(row)
		return err
	})
	return created, mapWriteError(err)
}

func (r *repository) Update(ctx context.Context, location Location) (Location, error) {
	var updated Location
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if location.IsDefault {
			if err := clearDefault(ctx, tx, location.ID); err != nil {
				return err
			}
		}
		row := tx.QueryRow(ctx, `UPDATE locations SET code=$2, name=$3, location_type=$4, priority=$5, capacity=$6, is_default=$7, is_active=$8, updated_at=$9
WHERE id=$1
RETURNING id, code, name, location_type, priority, capacity, is_default, is_active, created_at, updated_at`,
			location.ID, location.Code, location.Name, string(location.Type), location.Priority, location.Capacity,
			location.IsDefault, location.Active, location.UpdatedAt)
		var err error
		updated, err = scanLocation(row)
		return err
	})
	return updated, mapWriteError(err)
}

// Delete locks the location row before running guard, so rows that reference
// the location cannot be inserted between the check and the delete. The
// transaction runs at read committed so guard sees rows committed while the
// lock was awaited.
func (r *repository) Delete(ctx context.Context, id uuid.UUID, guard DeleteGuard) error {
	err := db.WithTxOptions(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		var locked uuid.UUID
		if err := tx.QueryRow(ctx, `SELECT id FROM locations WHERE id = $1 FOR UPDATE`, id).Scan(&locked); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if guard != nil {
			if err := guard(ctx, tx, id); err != nil {
				return err
			}
		}
		_, err := tx.Exec(ctx, `DELETE FROM locations WHERE id = $1`, id)
		return err
	})
	return mapWriteError(err)
}

func (r *repository) ListActive(ctx context.Context) ([]Location, error) {
	rows, err := r.pool.Query(ctx, selectColumns+` WHERE is_active ORDER BY priority ASC, code ASC`)
	if err != nil {
		return nil, err
	}
	return scanLocations(rows)
}

func (r *repository) GetDefault(ctx context.Context) (Location, error) {
	return scanLocation(r.pool.QueryRow(ctx, selectColumns+` WHERE is_default LIMIT 1`))
}

func clearDefault(ctx context.Context, tx pgx.Tx, keep uuid.UUID) error {
	_, err := tx.Exec(ctx, `UPDATE locations SET is_default = FALSE, updated_at = NOW() WHERE is_default AND id <> $1`, keep)
	return err
}

func scanLocation(row pgx.Row) (Location, error) {
	var l Location
	var typ string
	err := row.Scan(&l.ID, &l.Code, &l.Name, &typ, &l.Priority, &l.Capacity, &l.IsDefault, &l.Active, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Location{}, ErrNotFound
		}
		return Location{}, err
	}
	l.Type = Type(typ)
	return l, nil
}

func scanLocations(rows pgx.Rows) ([]Location, error) {
	defer rows.Close()
	locations := []Location{}
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		locations = append(locations, l)
	}
	return locations, rows.Err()
}

func mapWriteError(err error) error {
	switch {
	case err == nil:
		return nil
	case db.IsUniqueViolation(err):
		return ErrDuplicateCode
	case db.IsForeignKeyViolation(err):
		return ErrInUse
	default:
		return err
	}
}

func sortOrder(sortBy, sortDir string) string {
	dir := "ASC"
	if sortDir == shared.SortDesc {
		dir = "DESC"
	}
	switch sortBy {
	case "code":
		return "code " + dir
	case "name":
		return "name " + dir
	case "created_at":
		return "created_at " + dir
	default:
		return "priority " + dir + ", code ASC"
	}
}
