package stock

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Store is the durable quantity table keyed by (product, location). It is a
// dumb ledger: callers are responsible for running mutations inside the same
// transaction as their paired journal and status writes.
type Store struct {
	db dbtx
}

// NewStore constructs a Store backed by the pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{db: pool}
}

// WithTx returns a Store scoped to the given transaction.
func (s *Store) WithTx(tx pgx.Tx) *Store {
	return &Store{db: tx}
}

// Get returns the current quantity, 0 when no row exists yet.
func (s *Store) Get(ctx context.Context, productID, locationID int64) (int64, error) {
	if s == nil {
		return 0, errors.New("stock: store not initialised")
	}
	var qty int64
	err := s.db.QueryRow(ctx, `SELECT quantity FROM stocks WHERE product_id=$1 AND location_id=$2`, productID, locationID).Scan(&qty)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return qty, nil
}

// ApplyDelta locks the balance row, creating it lazily at quantity 0, and
// adds delta. Returns the quantity before and after the write.
func (s *Store) ApplyDelta(ctx context.Context, productID, locationID, delta int64) (int64, int64, error) {
	previous, err := s.lockRow(ctx, productID, locationID)
	if err != nil {
		return 0, 0, err
	}
	current := previous + delta
	if _, err := s.db.Exec(ctx, `UPDATE stocks SET quantity=$3, updated_at=NOW() WHERE product_id=$1 AND location_id=$2`, productID, locationID, current); err != nil {
		return 0, 0, err
	}
	return previous, current, nil
}

// SetAbsolute locks the balance row, creating it lazily, and overwrites the
// quantity. Returns the quantity before and after the write.
func (s *Store) SetAbsolute(ctx context.Context, productID, locationID, quantity int64) (int64, int64, error) {
	previous, err := s.lockRow(ctx, productID, locationID)
	if err != nil {
		return 0, 0, err
	}
	if _, err := s.db.Exec(ctx, `UPDATE stocks SET quantity=$3, updated_at=NOW() WHERE product_id=$1 AND location_id=$2`, productID, locationID, quantity); err != nil {
		return 0, 0, err
	}
	return previous, quantity, nil
}

// lockRow serialises concurrent mutations of the same (product, location)
// key. The insert is a no-op when the row exists, and the FOR UPDATE blocks
// until any competing writer commits or aborts.
func (s *Store) lockRow(ctx context.Context, productID, locationID int64) (int64, error) {
	if s == nil {
		return 0, errors.New("stock: store not initialised")
	}
	if _, err := s.db.Exec(ctx, `INSERT INTO stocks (product_id, location_id, quantity, updated_at) VALUES ($1,$2,0,NOW()) ON CONFLICT (product_id, location_id) DO NOTHING`, productID, locationID); err != nil {
		return 0, err
	}
	var qty int64
	if err := s.db.QueryRow(ctx, `SELECT quantity FROM stocks WHERE product_id=$1 AND location_id=$2 FOR UPDATE`, productID, locationID).Scan(&qty); err != nil {
		return 0, err
	}
	return qty, nil
}

// ListByWarehouse returns current balances for every stocked location in the
// warehouse.
func (s *Store) ListByWarehouse(ctx context.Context, warehouseID int64) ([]WarehouseRow, error) {
	rows, err := s.db.Query(ctx, `SELECT st.product_id, p.sku, p.name, p.unit, st.location_id, l.code, st.quantity
FROM stocks st
JOIN products p ON p.id = st.product_id
JOIN locations l ON l.id = st.location_id
WHERE l.warehouse_id = $1
ORDER BY p.sku ASC, l.code ASC`, warehouseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []WarehouseRow{}
	for rows.Next() {
		var row WarehouseRow
		if err := rows.Scan(&row.ProductID, &row.SKU, &row.ProductName, &row.Unit, &row.LocationID, &row.LocationCode, &row.Quantity); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// ListByProduct returns the product's balances across all locations.
func (s *Store) ListByProduct(ctx context.Context, productID int64) ([]ProductRow, error) {
	rows, err := s.db.Query(ctx, `SELECT st.location_id, l.code, w.id, w.name, st.quantity
FROM stocks st
JOIN locations l ON l.id = st.location_id
JOIN warehouses w ON w.id = l.warehouse_id
WHERE st.product_id = $1
ORDER BY w.name ASC, l.code ASC`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []ProductRow{}
	for rows.Next() {
		var row ProductRow
		if err := rows.Scan(&row.LocationID, &row.LocationCode, &row.WarehouseID, &row.WarehouseName, &row.Quantity); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// ListLowStock returns products whose total on-hand quantity is at or below
// the reorder point.
func (s *Store) ListLowStock(ctx context.Context) ([]LowStockRow, error) {
	rows, err := s.db.Query(ctx, `SELECT p.id, p.sku, p.name, p.reorder_point, COALESCE(SUM(st.quantity), 0) AS on_hand
FROM products p
LEFT JOIN stocks st ON st.product_id = p.id
GROUP BY p.id, p.sku, p.name, p.reorder_point
HAVING COALESCE(SUM(st.quantity), 0) <= p.reorder_point
ORDER BY p.sku ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []LowStockRow{}
	for rows.Next() {
		var row LowStockRow
		if err := rows.Scan(&row.ProductID, &row.SKU, &row.ProductName, &row.ReorderPoint, &row.TotalOnHand); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}
