package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stocktrail/stocktrail/internal/ledger"
)

// LedgerIntegrityJob re-verifies that recent journal entries form a
// consistent before/after chain per (product, location).
type LedgerIntegrityJob struct {
	Pool   *pgxpool.Pool
	Logger *slog.Logger
	clock  func() time.Time
}

// NewLedgerIntegrityJob initialises the integrity handler.
func NewLedgerIntegrityJob(pool *pgxpool.Pool, logger *slog.Logger) *LedgerIntegrityJob {
	return &LedgerIntegrityJob{
		Pool:   pool,
		Logger: logger,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Violation describes one inconsistent journal entry.
type Violation struct {
	EntryID        int64
	ProductID      int64
	LocationID     int64
	DocumentNumber string
	Detail         string
}

// CheckEntries verifies entries for one or more (product, location)
// chains. Entries must be ordered by id ascending. Two checks run per
// entry: the internal arithmetic newStock = previousStock + quantity,
// and chain continuity, each entry's previousStock matching the
// newStock of the preceding entry for the same key.
func CheckEntries(entries []ledger.Entry) []Violation {
	type chainKey struct{ productID, locationID int64 }
	lastNew := map[chainKey]int64{}
	seen := map[chainKey]bool{}
	violations := []Violation{}
	for _, e := range entries {
		if e.NewStock != e.PreviousStock+e.Quantity {
			violations = append(violations, Violation{
				EntryID:        e.ID,
				ProductID:      e.ProductID,
				LocationID:     e.LocationID,
				DocumentNumber: e.DocumentNumber,
				Detail:         fmt.Sprintf("new_stock %d != previous_stock %d + quantity %d", e.NewStock, e.PreviousStock, e.Quantity),
			})
		}
		k := chainKey{e.ProductID, e.LocationID}
		if seen[k] && e.PreviousStock != lastNew[k] {
			violations = append(violations, Violation{
				EntryID:        e.ID,
				ProductID:      e.ProductID,
				LocationID:     e.LocationID,
				DocumentNumber: e.DocumentNumber,
				Detail:         fmt.Sprintf("previous_stock %d does not continue chain at %d", e.PreviousStock, lastNew[k]),
			})
		}
		seen[k] = true
		lastNew[k] = e.NewStock
	}
	return violations
}

// Handle executes the integrity scan.
func (j *LedgerIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("ledger integrity: handler not configured")
	}
	var payload LedgerIntegrityPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.WindowHours <= 0 {
		payload.WindowHours = 24
	}

	start := j.now()
	logger := j.logger().With(slog.Int("window_hours", payload.WindowHours))
	logger.Info("starting ledger integrity check")

	entries, err := j.load(ctx, start.Add(-time.Duration(payload.WindowHours)*time.Hour))
	if err != nil {
		logger.Error("load entries", slog.Any("error", err))
		return err
	}

	violations := CheckEntries(entries)
	for _, v := range violations {
		logger.Warn("ledger integrity violation",
			slog.Int64("entry_id", v.EntryID),
			slog.Int64("product_id", v.ProductID),
			slog.Int64("location_id", v.LocationID),
			slog.String("document_number", v.DocumentNumber),
			slog.String("detail", v.Detail),
		)
	}

	logger.Info("completed ledger integrity check",
		slog.Int("entries", len(entries)),
		slog.Int("violations", len(violations)),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *LedgerIntegrityJob) load(ctx context.Context, since time.Time) ([]ledger.Entry, error) {
	if j.Pool == nil {
		return nil, errors.New("ledger integrity: pool not configured")
	}
	rows, err := j.Pool.Query(ctx, `SELECT id, product_id, location_id, document_number, quantity, previous_stock, new_stock
FROM stock_ledger WHERE created_at >= $1 ORDER BY product_id, location_id, id ASC`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []ledger.Entry{}
	for rows.Next() {
		var e ledger.Entry
		if err := rows.Scan(&e.ID, &e.ProductID, &e.LocationID, &e.DocumentNumber, &e.Quantity, &e.PreviousStock, &e.NewStock); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (j *LedgerIntegrityJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLedgerIntegrity))
	}
	return slog.Default().With(slog.String("job", TaskLedgerIntegrity))
}

func (j *LedgerIntegrityJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
