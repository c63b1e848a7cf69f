package movement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stocktrail/stocktrail/internal/ledger"
	"github.com/stocktrail/stocktrail/internal/platform/db"
	"github.com/stocktrail/stocktrail/internal/stock"
)

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// TxRepository exposes the operations the engine performs inside one
// atomic unit of work: document reads and writes, stock mutation,
// journal appends and the status transition.
type TxRepository interface {
	NextDocumentNumber(ctx context.Context, kind DocumentKind, period string) (string, error)

	InsertReceipt(ctx context.Context, doc Receipt) (int64, error)
	InsertDelivery(ctx context.Context, doc Delivery) (int64, error)
	InsertTransfer(ctx context.Context, doc Transfer) (int64, error)
	InsertAdjustment(ctx context.Context, doc Adjustment) (int64, error)

	GetReceipt(ctx context.Context, id int64) (Receipt, error)
	GetDelivery(ctx context.Context, id int64) (Delivery, error)
	GetTransfer(ctx context.Context, id int64) (Transfer, error)

	MarkValidated(ctx context.Context, kind DocumentKind, id, validatorID int64, at time.Time) error

	StockQuantity(ctx context.Context, productID, locationID int64) (int64, error)
	ApplyStockDelta(ctx context.Context, productID, locationID, delta int64) (previous, current int64, err error)
	SetStockQuantity(ctx context.Context, productID, locationID, quantity int64) (previous, current int64, err error)
	AppendLedger(ctx context.Context, entry ledger.Entry) error

	ProductSKU(ctx context.Context, productID int64) (string, error)
	LocationWarehouse(ctx context.Context, locationID int64) (int64, error)
}

// RepositoryPort abstracts repository usage for the engine.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	GetReceipt(ctx context.Context, id int64) (Receipt, error)
	GetDelivery(ctx context.Context, id int64) (Delivery, error)
	GetTransfer(ctx context.Context, id int64) (Transfer, error)
	GetAdjustment(ctx context.Context, id int64) (Adjustment, error)

	ListReceipts(ctx context.Context, filter DocumentFilter) ([]Receipt, int, error)
	ListDeliveries(ctx context.Context, filter DocumentFilter) ([]Delivery, int, error)
	ListTransfers(ctx context.Context, filter DocumentFilter) ([]Transfer, int, error)
	ListAdjustments(ctx context.Context, filter DocumentFilter) ([]Adjustment, int, error)
}

// Repository persists movement documents in PostgreSQL. Stock and journal
// writes are delegated to the stock store and ledger journal scoped to
// the repository's transaction.
type Repository struct {
	pool    *pgxpool.Pool
	stock   *stock.Store
	journal *ledger.Journal
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, store *stock.Store, journal *ledger.Journal) *Repository {
	return &Repository{pool: pool, stock: store, journal: journal}
}

// WithTx runs fn inside one repeatable-read transaction. Serialization
// failures surface as ErrConcurrentConflict so callers can retry the
// whole unit; foreign key violations surface as ErrInvalidReference.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{
			db:      tx,
			stock:   r.stock.WithTx(tx),
			journal: r.journal.WithTx(tx),
		})
	})
	switch {
	case err == nil:
		return nil
	case db.IsSerializationFailure(err):
		return fmt.Errorf("%w: %v", ErrConcurrentConflict, err)
	case db.IsForeignKeyViolation(err):
		return fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}
	return err
}

func (r *Repository) GetReceipt(ctx context.Context, id int64) (Receipt, error) {
	return getReceipt(ctx, r.pool, id)
}

func (r *Repository) GetDelivery(ctx context.Context, id int64) (Delivery, error) {
	return getDelivery(ctx, r.pool, id)
}

func (r *Repository) GetTransfer(ctx context.Context, id int64) (Transfer, error) {
	return getTransfer(ctx, r.pool, id)
}

func (r *Repository) GetAdjustment(ctx context.Context, id int64) (Adjustment, error) {
	var doc Adjustment
	err := r.pool.QueryRow(ctx, `SELECT id, document_number, date, status, reason, created_by, COALESCE(validated_by, 0), COALESCE(validated_at, 'epoch'::timestamptz), created_at
FROM adjustments WHERE id=$1`, id).
		Scan(&doc.ID, &doc.DocumentNumber, &doc.Date, &doc.Status, &doc.Reason, &doc.CreatedBy, &doc.ValidatedBy, &doc.ValidatedAt, &doc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Adjustment{}, ErrNotFound
	}
	if err != nil {
		return Adjustment{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, product_id, location_id, physical_count, difference FROM adjustment_items WHERE adjustment_id=$1 ORDER BY id ASC`, id)
	if err != nil {
		return Adjustment{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item AdjustmentItem
		if err := rows.Scan(&item.ID, &item.ProductID, &item.LocationID, &item.PhysicalCount, &item.Difference); err != nil {
			return Adjustment{}, err
		}
		doc.Items = append(doc.Items, item)
	}
	return doc, rows.Err()
}

func (r *Repository) ListReceipts(ctx context.Context, filter DocumentFilter) ([]Receipt, int, error) {
	rows, total, err := listHeaders(ctx, r.pool, "receipts", filter)
	if err != nil {
		return nil, 0, err
	}
	docs := make([]Receipt, 0, len(rows))
	for _, h := range rows {
		docs = append(docs, Receipt{ID: h.id, DocumentNumber: h.number, Date: h.date, Status: h.status, Reference: h.reference,
			Notes: h.notes, CreatedBy: h.createdBy, ValidatedBy: h.validatedBy, ValidatedAt: h.validatedAt, CreatedAt: h.createdAt})
	}
	return docs, total, nil
}

func (r *Repository) ListDeliveries(ctx context.Context, filter DocumentFilter) ([]Delivery, int, error) {
	rows, total, err := listHeaders(ctx, r.pool, "deliveries", filter)
	if err != nil {
		return nil, 0, err
	}
	docs := make([]Delivery, 0, len(rows))
	for _, h := range rows {
		docs = append(docs, Delivery{ID: h.id, DocumentNumber: h.number, Date: h.date, Status: h.status, Reference: h.reference,
			Notes: h.notes, CreatedBy: h.createdBy, ValidatedBy: h.validatedBy, ValidatedAt: h.validatedAt, CreatedAt: h.createdAt})
	}
	return docs, total, nil
}

func (r *Repository) ListTransfers(ctx context.Context, filter DocumentFilter) ([]Transfer, int, error) {
	where, args := headerFilter("transfers", filter)
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM transfers`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit, offset := pageArgs(filter)
	rows, err := r.pool.Query(ctx, `SELECT id, document_number, date, status, from_warehouse_id, to_warehouse_id, notes, created_by, COALESCE(validated_by, 0), COALESCE(validated_at, 'epoch'::timestamptz), created_at
FROM transfers`+where+fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d`, limit, offset), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	docs := []Transfer{}
	for rows.Next() {
		var doc Transfer
		if err := rows.Scan(&doc.ID, &doc.DocumentNumber, &doc.Date, &doc.Status, &doc.FromWarehouseID, &doc.ToWarehouseID,
			&doc.Notes, &doc.CreatedBy, &doc.ValidatedBy, &doc.ValidatedAt, &doc.CreatedAt); err != nil {
			return nil, 0, err
		}
		docs = append(docs, doc)
	}
	return docs, total, rows.Err()
}

func (r *Repository) ListAdjustments(ctx context.Context, filter DocumentFilter) ([]Adjustment, int, error) {
	where, args := headerFilter("adjustments", filter)
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM adjustments`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit, offset := pageArgs(filter)
	rows, err := r.pool.Query(ctx, `SELECT id, document_number, date, status, reason, created_by, COALESCE(validated_by, 0), COALESCE(validated_at, 'epoch'::timestamptz), created_at
FROM adjustments`+where+fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d`, limit, offset), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	docs := []Adjustment{}
	for rows.Next() {
		var doc Adjustment
		if err := rows.Scan(&doc.ID, &doc.DocumentNumber, &doc.Date, &doc.Status, &doc.Reason,
			&doc.CreatedBy, &doc.ValidatedBy, &doc.ValidatedAt, &doc.CreatedAt); err != nil {
			return nil, 0, err
		}
		docs = append(docs, doc)
	}
	return docs, total, rows.Err()
}

type txRepo struct {
	db      dbtx
	stock   *stock.Store
	journal *ledger.Journal
}

// NextDocumentNumber increments the per-(prefix, period) counter and
// formats the resulting sequence. The upsert serialises concurrent
// creations on the counter row, so two documents created in the same
// period can never share a number.
func (t *txRepo) NextDocumentNumber(ctx context.Context, kind DocumentKind, period string) (string, error) {
	var seq int64
	err := t.db.QueryRow(ctx, `INSERT INTO document_counters (prefix, period, last_seq) VALUES ($1, $2, 1)
ON CONFLICT (prefix, period) DO UPDATE SET last_seq = document_counters.last_seq + 1
RETURNING last_seq`, kind.Prefix(), period).Scan(&seq)
	if err != nil {
		return "", err
	}
	return FormatDocumentNumber(kind.Prefix(), period, seq), nil
}

func (t *txRepo) InsertReceipt(ctx context.Context, doc Receipt) (int64, error) {
	var id int64
	err := t.db.QueryRow(ctx, `INSERT INTO receipts (document_number, date, status, reference, notes, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW()) RETURNING id`,
		doc.DocumentNumber, doc.Date, string(doc.Status), doc.Reference, doc.Notes, doc.CreatedBy).Scan(&id)
	if err != nil {
		return 0, err
	}
	for _, item := range doc.Items {
		if _, err := t.db.Exec(ctx, `INSERT INTO receipt_items (receipt_id, product_id, location_id, quantity, unit_price) VALUES ($1,$2,$3,$4,$5)`,
			id, item.ProductID, item.LocationID, item.Quantity, item.UnitPrice); err != nil {
			return 0, err
		}
	}
	return id, nil
}

func (t *txRepo) InsertDelivery(ctx context.Context, doc Delivery) (int64, error) {
	var id int64
	err := t.db.QueryRow(ctx, `INSERT INTO deliveries (document_number, date, status, reference, notes, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW()) RETURNING id`,
		doc.DocumentNumber, doc.Date, string(doc.Status), doc.Reference, doc.Notes, doc.CreatedBy).Scan(&id)
	if err != nil {
		return 0, err
	}
	for _, item := range doc.Items {
		if _, err := t.db.Exec(ctx, `INSERT INTO delivery_items (delivery_id, product_id, location_id, quantity, unit_price) VALUES ($1,$2,$3,$4,$5)`,
			id, item.ProductID, item.LocationID, item.Quantity, item.UnitPrice); err != nil {
			return 0, err
		}
	}
	return id, nil
}

func (t *txRepo) InsertTransfer(ctx context.Context, doc Transfer) (int64, error) {
	var id int64
	err := t.db.QueryRow(ctx, `INSERT INTO transfers (document_number, date, status, from_warehouse_id, to_warehouse_id, notes, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NOW()) RETURNING id`,
		doc.DocumentNumber, doc.Date, string(doc.Status), doc.FromWarehouseID, doc.ToWarehouseID, doc.Notes, doc.CreatedBy).Scan(&id)
	if err != nil {
		return 0, err
	}
	for _, item := range doc.Items {
		if _, err := t.db.Exec(ctx, `INSERT INTO transfer_items (transfer_id, product_id, from_location_id, to_location_id, quantity) VALUES ($1,$2,$3,$4,$5)`,
			id, item.ProductID, item.FromLocationID, item.ToLocationID, item.Quantity); err != nil {
			return 0, err
		}
	}
	return id, nil
}

func (t *txRepo) InsertAdjustment(ctx context.Context, doc Adjustment) (int64, error) {
	var id int64
	err := t.db.QueryRow(ctx, `INSERT INTO adjustments (document_number, date, status, reason, created_by, validated_by, validated_at, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NOW()) RETURNING id`,
		doc.DocumentNumber, doc.Date, string(doc.Status), doc.Reason, doc.CreatedBy, doc.ValidatedBy, doc.ValidatedAt).Scan(&id)
	if err != nil {
		return 0, err
	}
	for _, item := range doc.Items {
		if _, err := t.db.Exec(ctx, `INSERT INTO adjustment_items (adjustment_id, product_id, location_id, physical_count, difference) VALUES ($1,$2,$3,$4,$5)`,
			id, item.ProductID, item.LocationID, item.PhysicalCount, item.Difference); err != nil {
			return 0, err
		}
	}
	return id, nil
}

func (t *txRepo) GetReceipt(ctx context.Context, id int64) (Receipt, error) {
	return getReceipt(ctx, t.db, id)
}

func (t *txRepo) GetDelivery(ctx context.Context, id int64) (Delivery, error) {
	return getDelivery(ctx, t.db, id)
}

func (t *txRepo) GetTransfer(ctx context.Context, id int64) (Transfer, error) {
	return getTransfer(ctx, t.db, id)
}

// MarkValidated is the guarded PENDING to VALIDATED transition. The
// status predicate makes it a compare-and-swap: zero affected rows
// means another transaction already validated the document.
func (t *txRepo) MarkValidated(ctx context.Context, kind DocumentKind, id, validatorID int64, at time.Time) error {
	tag, err := t.db.Exec(ctx, `UPDATE `+kind.table()+` SET status=$2, validated_by=$3, validated_at=$4 WHERE id=$1 AND status=$5`,
		id, string(StatusValidated), validatorID, at, string(StatusPending))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyValidated
	}
	return nil
}

func (t *txRepo) StockQuantity(ctx context.Context, productID, locationID int64) (int64, error) {
	return t.stock.Get(ctx, productID, locationID)
}

func (t *txRepo) ApplyStockDelta(ctx context.Context, productID, locationID, delta int64) (int64, int64, error) {
	return t.stock.ApplyDelta(ctx, productID, locationID, delta)
}

func (t *txRepo) SetStockQuantity(ctx context.Context, productID, locationID, quantity int64) (int64, int64, error) {
	return t.stock.SetAbsolute(ctx, productID, locationID, quantity)
}

func (t *txRepo) AppendLedger(ctx context.Context, entry ledger.Entry) error {
	return t.journal.Append(ctx, entry)
}

func (t *txRepo) ProductSKU(ctx context.Context, productID int64) (string, error) {
	var sku string
	err := t.db.QueryRow(ctx, `SELECT sku FROM products WHERE id=$1`, productID).Scan(&sku)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrInvalidReference
	}
	return sku, err
}

func (t *txRepo) LocationWarehouse(ctx context.Context, locationID int64) (int64, error) {
	var warehouseID int64
	err := t.db.QueryRow(ctx, `SELECT warehouse_id FROM locations WHERE id=$1`, locationID).Scan(&warehouseID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrInvalidReference
	}
	return warehouseID, err
}

func getReceipt(ctx context.Context, q dbtx, id int64) (Receipt, error) {
	var doc Receipt
	err := q.QueryRow(ctx, `SELECT id, document_number, date, status, COALESCE(reference, ''), notes, created_by, COALESCE(validated_by, 0), COALESCE(validated_at, 'epoch'::timestamptz), created_at
FROM receipts WHERE id=$1`, id).
		Scan(&doc.ID, &doc.DocumentNumber, &doc.Date, &doc.Status, &doc.Reference, &doc.Notes, &doc.CreatedBy, &doc.ValidatedBy, &doc.ValidatedAt, &doc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Receipt{}, ErrNotFound
	}
	if err != nil {
		return Receipt{}, err
	}
	rows, err := q.Query(ctx, `SELECT id, product_id, location_id, quantity, unit_price FROM receipt_items WHERE receipt_id=$1 ORDER BY id ASC`, id)
	if err != nil {
		return Receipt{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item ReceiptItem
		if err := rows.Scan(&item.ID, &item.ProductID, &item.LocationID, &item.Quantity, &item.UnitPrice); err != nil {
			return Receipt{}, err
		}
		doc.Items = append(doc.Items, item)
	}
	return doc, rows.Err()
}

func getDelivery(ctx context.Context, q dbtx, id int64) (Delivery, error) {
	var doc Delivery
	err := q.QueryRow(ctx, `SELECT id, document_number, date, status, COALESCE(reference, ''), notes, created_by, COALESCE(validated_by, 0), COALESCE(validated_at, 'epoch'::timestamptz), created_at
FROM deliveries WHERE id=$1`, id).
		Scan(&doc.ID, &doc.DocumentNumber, &doc.Date, &doc.Status, &doc.Reference, &doc.Notes, &doc.CreatedBy, &doc.ValidatedBy, &doc.ValidatedAt, &doc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Delivery{}, ErrNotFound
	}
	if err != nil {
		return Delivery{}, err
	}
	rows, err := q.Query(ctx, `SELECT id, product_id, location_id, quantity, unit_price FROM delivery_items WHERE delivery_id=$1 ORDER BY id ASC`, id)
	if err != nil {
		return Delivery{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item DeliveryItem
		if err := rows.Scan(&item.ID, &item.ProductID, &item.LocationID, &item.Quantity, &item.UnitPrice); err != nil {
			return Delivery{}, err
		}
		doc.Items = append(doc.Items, item)
	}
	return doc, rows.Err()
}

func getTransfer(ctx context.Context, q dbtx, id int64) (Transfer, error) {
	var doc Transfer
	err := q.QueryRow(ctx, `SELECT id, document_number, date, status, from_warehouse_id, to_warehouse_id, notes, created_by, COALESCE(validated_by, 0), COALESCE(validated_at, 'epoch'::timestamptz), created_at
FROM transfers WHERE id=$1`, id).
		Scan(&doc.ID, &doc.DocumentNumber, &doc.Date, &doc.Status, &doc.FromWarehouseID, &doc.ToWarehouseID, &doc.Notes, &doc.CreatedBy, &doc.ValidatedBy, &doc.ValidatedAt, &doc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transfer{}, ErrNotFound
	}
	if err != nil {
		return Transfer{}, err
	}
	rows, err := q.Query(ctx, `SELECT id, product_id, from_location_id, to_location_id, quantity FROM transfer_items WHERE transfer_id=$1 ORDER BY id ASC`, id)
	if err != nil {
		return Transfer{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item TransferItem
		if err := rows.Scan(&item.ID, &item.ProductID, &item.FromLocationID, &item.ToLocationID, &item.Quantity); err != nil {
			return Transfer{}, err
		}
		doc.Items = append(doc.Items, item)
	}
	return doc, rows.Err()
}

type headerRow struct {
	id          int64
	number      string
	date        time.Time
	status      DocumentStatus
	reference   string
	notes       string
	createdBy   int64
	validatedBy int64
	validatedAt time.Time
	createdAt   time.Time
}

// listHeaders pages document headers. Only receipts and deliveries carry
// a reference column; the other tables select an empty literal.
func listHeaders(ctx context.Context, q dbtx, table string, filter DocumentFilter) ([]headerRow, int, error) {
	where, args := headerFilter(table, filter)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM `+table+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	refCol := `''`
	if table == "receipts" || table == "deliveries" {
		refCol = `COALESCE(reference, '')`
	}
	limit, offset := pageArgs(filter)
	rows, err := q.Query(ctx, `SELECT id, document_number, date, status, `+refCol+`, notes, created_by, COALESCE(validated_by, 0), COALESCE(validated_at, 'epoch'::timestamptz), created_at
FROM `+table+where+fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d`, limit, offset), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	headers := []headerRow{}
	for rows.Next() {
		var h headerRow
		if err := rows.Scan(&h.id, &h.number, &h.date, &h.status, &h.reference, &h.notes, &h.createdBy, &h.validatedBy, &h.validatedAt, &h.createdAt); err != nil {
			return nil, 0, err
		}
		headers = append(headers, h)
	}
	return headers, total, rows.Err()
}

func headerFilter(table string, filter DocumentFilter) (string, []interface{}) {
	where := ` WHERE 1=1`
	args := []interface{}{}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		where += fmt.Sprintf(` AND date >= $%d`, len(args))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		where += fmt.Sprintf(` AND date <= $%d`, len(args))
	}
	if filter.WarehouseID != 0 && table == "transfers" {
		args = append(args, filter.WarehouseID)
		where += fmt.Sprintf(` AND (from_warehouse_id = $%d OR to_warehouse_id = $%d)`, len(args), len(args))
	}
	return where, args
}

func pageArgs(filter DocumentFilter) (int, int) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	return limit, (page - 1) * limit
}
