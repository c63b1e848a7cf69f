package locations

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stocktrail/stocktrail/internal/masterdata/shared"
	"github.com/stocktrail/stocktrail/internal/platform/db"
	"github.com/stocktrail/stocktrail/internal/platform/httpx"
)

type Repository interface {
	List(ctx context.Context, warehouseID int64, filters shared.ListFilters) ([]Location, int, error)
	Get(ctx context.Context, id int64) (Location, error)
	Create(ctx context.Context, location Location) (Location, error)
	Update(ctx context.Context, id int64, location Location) error
	Delete(ctx context.Context, id int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) List(ctx context.Context, warehouseID int64, filters shared.ListFilters) ([]Location, int, error) {
	where := ` WHERE 1=1`
	args := []interface{}{}
	argCount := 0
	if warehouseID != 0 {
		argCount++
		where += ` AND warehouse_id = $` + strconv.Itoa(argCount)
		args = append(args, warehouseID)
	}
	if filters.Search != "" {
		argCount++
		where += ` AND (code ILIKE $` + strconv.Itoa(argCount) + ` OR name ILIKE $` + strconv.Itoa(argCount) + `)`
		args = append(args, "%"+filters.Search+"%")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM locations`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	argCount++
	query := `SELECT id, warehouse_id, code, COALESCE(name, ''), created_at FROM locations` + where +
		` ORDER BY code ASC LIMIT $` + strconv.Itoa(argCount)
	args = append(args, filters.PerPage())
	argCount++
	query += ` OFFSET $` + strconv.Itoa(argCount)
	args = append(args, filters.Offset())

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var locations []Location
	for rows.Next() {
		var l Location
		if err := rows.Scan(&l.ID, &l.WarehouseID, &l.Code, &l.Name, &l.CreatedAt); err != nil {
			return nil, 0, err
		}
		locations = append(locations, l)
	}
	return locations, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Location, error) {
	var l Location
	err := r.pool.QueryRow(ctx, `SELECT id, warehouse_id, code, COALESCE(name, ''), created_at FROM locations WHERE id=$1`, id).
		Scan(&l.ID, &l.WarehouseID, &l.Code, &l.Name, &l.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Location{}, httpx.ErrNotFound
	}
	return l, err
}

func (r *repository) Create(ctx context.Context, location Location) (Location, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO locations (warehouse_id, code, name, created_at) VALUES ($1,$2,$3,NOW()) RETURNING id, created_at`,
		location.WarehouseID, location.Code, location.Name).Scan(&location.ID, &location.CreatedAt)
	if db.IsUniqueViolation(err) {
		return Location{}, httpx.ErrDuplicate
	}
	if db.IsForeignKeyViolation(err) {
		return Location{}, httpx.ErrValidation
	}
	return location, err
}

func (r *repository) Update(ctx context.Context, id int64, location Location) error {
	tag, err := r.pool.Exec(ctx, `UPDATE locations SET warehouse_id=$2, code=$3, name=$4 WHERE id=$1`,
		id, location.WarehouseID, location.Code, location.Name)
	if db.IsUniqueViolation(err) {
		return httpx.ErrDuplicate
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM locations WHERE id=$1`, id)
	if db.IsForeignKeyViolation(err) {
		return httpx.ErrConflict
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}
