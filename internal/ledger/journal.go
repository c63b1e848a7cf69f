package ledger

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Journal appends and reads stock_ledger rows. Rows are write-once: no
// update or delete is exposed; corrections are made by posting a new
// adjustment document which produces a new entry.
type Journal struct {
	db dbtx
}

// NewJournal constructs a Journal backed by the pool.
func NewJournal(pool *pgxpool.Pool) *Journal {
	return &Journal{db: pool}
}

// WithTx returns a Journal scoped to the given transaction.
func (j *Journal) WithTx(tx pgx.Tx) *Journal {
	return &Journal{db: tx}
}

// Append writes one journal row.
func (j *Journal) Append(ctx context.Context, entry Entry) error {
	if j == nil {
		return errors.New("ledger: journal not initialised")
	}
	_, err := j.db.Exec(ctx, `INSERT INTO stock_ledger (date, product_id, location_id, entry_type, document_number, quantity, previous_stock, new_stock, user_id, notes, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NOW())`,
		entry.Date, entry.ProductID, entry.LocationID, string(entry.Type), entry.DocumentNumber,
		entry.Quantity, entry.PreviousStock, entry.NewStock, nullInt(entry.UserID), entry.Notes)
	return err
}

// List returns journal rows matching the filter, newest first, with total count.
func (j *Journal) List(ctx context.Context, filter Filter) ([]Entry, int, error) {
	if j == nil {
		return nil, 0, errors.New("ledger: journal not initialised")
	}
	where := ` WHERE 1=1`
	args := []interface{}{}
	argCount := 0

	if filter.ProductID != 0 {
		argCount++
		where += ` AND product_id = $` + strconv.Itoa(argCount)
		args = append(args, filter.ProductID)
	}
	if filter.LocationID != 0 {
		argCount++
		where += ` AND location_id = $` + strconv.Itoa(argCount)
		args = append(args, filter.LocationID)
	}
	if filter.Type != "" {
		argCount++
		where += ` AND entry_type = $` + strconv.Itoa(argCount)
		args = append(args, string(filter.Type))
	}
	if !filter.From.IsZero() && !filter.To.IsZero() {
		argCount++
		where += ` AND date >= $` + strconv.Itoa(argCount)
		args = append(args, filter.From)
		argCount++
		where += ` AND date <= $` + strconv.Itoa(argCount)
		args = append(args, filter.To)
	}

	var total int
	if err := j.db.QueryRow(ctx, `SELECT COUNT(*) FROM stock_ledger`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	argCount++
	query := `SELECT id, date, product_id, location_id, entry_type, document_number, quantity, previous_stock, new_stock, COALESCE(user_id, 0), notes, created_at
FROM stock_ledger` + where + ` ORDER BY created_at DESC, id DESC LIMIT $` + strconv.Itoa(argCount)
	args = append(args, limit)
	argCount++
	query += ` OFFSET $` + strconv.Itoa(argCount)
	args = append(args, (page-1)*limit)

	rows, err := j.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Date, &e.ProductID, &e.LocationID, &e.Type, &e.DocumentNumber,
			&e.Quantity, &e.PreviousStock, &e.NewStock, &e.UserID, &e.Notes, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

// ListForDocument returns all entries carrying the document number in
// insertion order, used to pair transfer halves during audit.
func (j *Journal) ListForDocument(ctx context.Context, documentNumber string) ([]Entry, error) {
	rows, err := j.db.Query(ctx, `SELECT id, date, product_id, location_id, entry_type, document_number, quantity, previous_stock, new_stock, COALESCE(user_id, 0), notes, created_at
FROM stock_ledger WHERE document_number = $1 ORDER BY id ASC`, documentNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Date, &e.ProductID, &e.LocationID, &e.Type, &e.DocumentNumber,
			&e.Quantity, &e.PreviousStock, &e.NewStock, &e.UserID, &e.Notes, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
