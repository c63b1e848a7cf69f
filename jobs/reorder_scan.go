package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/stocktrail/stocktrail/internal/stock"
)

// ReorderScanJob flags products whose total on-hand quantity has fallen
// to or below the reorder point.
type ReorderScanJob struct {
	Store  *stock.Store
	Logger *slog.Logger
	clock  func() time.Time
}

// NewReorderScanJob initialises the reorder scan handler.
func NewReorderScanJob(store *stock.Store, logger *slog.Logger) *ReorderScanJob {
	return &ReorderScanJob{
		Store:  store,
		Logger: logger,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the reorder scan.
func (j *ReorderScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("reorder scan: handler not configured")
	}
	var payload ReorderScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	start := j.now()
	logger := j.logger()
	logger.Info("starting reorder scan")

	if j.Store == nil {
		return errors.New("reorder scan: store not configured")
	}
	rows, err := j.Store.ListLowStock(ctx)
	if err != nil {
		logger.Error("list low stock", slog.Any("error", err))
		return err
	}
	if payload.Limit > 0 && len(rows) > payload.Limit {
		rows = rows[:payload.Limit]
	}

	for _, row := range rows {
		logger.Warn("product at or below reorder point",
			slog.Int64("product_id", row.ProductID),
			slog.String("sku", row.SKU),
			slog.Int64("on_hand", row.TotalOnHand),
			slog.Int64("reorder_point", row.ReorderPoint),
		)
	}

	logger.Info("completed reorder scan",
		slog.Int("flagged", len(rows)),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *ReorderScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskReorderScan))
	}
	return slog.Default().With(slog.String("job", TaskReorderScan))
}

func (j *ReorderScanJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
