package movement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stocktrail/stocktrail/internal/ledger"
	"github.com/stocktrail/stocktrail/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Engine executes movement documents. Every apply operation runs as one
// atomic unit of work spanning the availability check, the stock
// mutation, the journal appends and the status transition; a failure
// anywhere leaves persisted state untouched.
type Engine struct {
	repo    RepositoryPort
	audit   AuditPort
	hooks   Hooks
	retries int
}

// NewEngine builds Engine. Audit and hooks may be nil.
func NewEngine(repo RepositoryPort, audit AuditPort, hooks Hooks) *Engine {
	return &Engine{repo: repo, audit: audit, hooks: hooks, retries: 3}
}

// CreateReceiptInput describes a receipt to create.
type CreateReceiptInput struct {
	Date      time.Time
	Reference string
	Notes     string
	ActorID   int64
	Items     []ReceiptItem
}

// CreateReceipt numbers and persists a PENDING receipt.
func (e *Engine) CreateReceipt(ctx context.Context, input CreateReceiptInput) (Receipt, error) {
	if len(input.Items) == 0 {
		return Receipt{}, ErrNoItems
	}
	for _, item := range input.Items {
		if item.Quantity <= 0 {
			return Receipt{}, ErrInvalidQuantity
		}
	}
	if err := checkReference(input.Reference); err != nil {
		return Receipt{}, err
	}
	date := documentDate(input.Date)
	var doc Receipt
	err := e.withRetry(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.NextDocumentNumber(ctx, KindReceipt, PeriodKey(date))
		if err != nil {
			return err
		}
		doc = Receipt{
			DocumentNumber: number,
			Date:           date,
			Status:         StatusPending,
			Reference:      input.Reference,
			Notes:          input.Notes,
			CreatedBy:      input.ActorID,
			Items:          input.Items,
		}
		doc.ID, err = tx.InsertReceipt(ctx, doc)
		return err
	})
	if err != nil {
		return Receipt{}, err
	}
	e.recordAudit(ctx, input.ActorID, "create", KindReceipt, doc.DocumentNumber, len(doc.Items))
	return doc, nil
}

// ApplyReceipt commits a PENDING receipt: stock is incremented per line
// and one RECEIPT journal entry is written per line. Receipts only add,
// so there is no availability check.
func (e *Engine) ApplyReceipt(ctx context.Context, id, actorID int64) (Receipt, error) {
	var doc Receipt
	err := e.withRetry(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		doc, err = tx.GetReceipt(ctx, id)
		if err != nil {
			return err
		}
		if doc.Status == StatusValidated {
			return ErrAlreadyValidated
		}
		movements := make([]stockMovement, 0, len(doc.Items))
		for _, item := range doc.Items {
			movements = append(movements, stockMovement{
				ProductID:  item.ProductID,
				LocationID: item.LocationID,
				Delta:      item.Quantity,
				Type:       ledger.TypeReceipt,
			})
		}
		if err := e.postMovements(ctx, tx, doc.Date, doc.DocumentNumber, actorID, doc.Notes, movements); err != nil {
			return err
		}
		return e.finalize(ctx, tx, KindReceipt, id, actorID, &doc.Status, &doc.ValidatedBy, &doc.ValidatedAt)
	})
	if err != nil {
		e.afterFail(ctx, KindReceipt, err)
		return Receipt{}, err
	}
	e.afterPost(ctx, actorID, KindReceipt, doc.DocumentNumber, len(doc.Items))
	return doc, nil
}

// CreateDeliveryInput describes a delivery to create.
type CreateDeliveryInput struct {
	Date      time.Time
	Reference string
	Notes     string
	ActorID   int64
	Items     []DeliveryItem
}

// CreateDelivery numbers and persists a PENDING delivery. Availability
// is not checked at creation time; it is checked when the document is
// applied, against the stock on hand at that moment.
func (e *Engine) CreateDelivery(ctx context.Context, input CreateDeliveryInput) (Delivery, error) {
	if len(input.Items) == 0 {
		return Delivery{}, ErrNoItems
	}
	for _, item := range input.Items {
		if item.Quantity <= 0 {
			return Delivery{}, ErrInvalidQuantity
		}
	}
	if err := checkReference(input.Reference); err != nil {
		return Delivery{}, err
	}
	date := documentDate(input.Date)
	var doc Delivery
	err := e.withRetry(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.NextDocumentNumber(ctx, KindDelivery, PeriodKey(date))
		if err != nil {
			return err
		}
		doc = Delivery{
			DocumentNumber: number,
			Date:           date,
			Status:         StatusPending,
			Reference:      input.Reference,
			Notes:          input.Notes,
			CreatedBy:      input.ActorID,
			Items:          input.Items,
		}
		doc.ID, err = tx.InsertDelivery(ctx, doc)
		return err
	})
	if err != nil {
		return Delivery{}, err
	}
	e.recordAudit(ctx, input.ActorID, "create", KindDelivery, doc.DocumentNumber, len(doc.Items))
	return doc, nil
}

// ApplyDelivery commits a PENDING delivery in two phases: first every
// line is checked against the stock on hand, then stock is decremented
// and DELIVERY journal entries are written. If any line lacks stock the
// whole unit aborts with InsufficientStockError and nothing changes.
func (e *Engine) ApplyDelivery(ctx context.Context, id, actorID int64) (Delivery, error) {
	var doc Delivery
	err := e.withRetry(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		doc, err = tx.GetDelivery(ctx, id)
		if err != nil {
			return err
		}
		if doc.Status == StatusValidated {
			return ErrAlreadyValidated
		}
		demands := make([]stockDemand, 0, len(doc.Items))
		movements := make([]stockMovement, 0, len(doc.Items))
		for _, item := range doc.Items {
			demands = append(demands, stockDemand{ProductID: item.ProductID, LocationID: item.LocationID, Required: item.Quantity})
			movements = append(movements, stockMovement{
				ProductID:  item.ProductID,
				LocationID: item.LocationID,
				Delta:      -item.Quantity,
				Type:       ledger.TypeDelivery,
			})
		}
		if err := e.checkAvailability(ctx, tx, demands); err != nil {
			return err
		}
		if err := e.postMovements(ctx, tx, doc.Date, doc.DocumentNumber, actorID, doc.Notes, movements); err != nil {
			return err
		}
		return e.finalize(ctx, tx, KindDelivery, id, actorID, &doc.Status, &doc.ValidatedBy, &doc.ValidatedAt)
	})
	if err != nil {
		e.afterFail(ctx, KindDelivery, err)
		return Delivery{}, err
	}
	e.afterPost(ctx, actorID, KindDelivery, doc.DocumentNumber, len(doc.Items))
	return doc, nil
}

// CreateTransferInput describes a transfer to create.
type CreateTransferInput struct {
	Date            time.Time
	FromWarehouseID int64
	ToWarehouseID   int64
	Notes           string
	ActorID         int64
	Items           []TransferItem
}

// CreateTransfer numbers and persists a PENDING transfer. Each line's
// source and destination locations must belong to the named warehouses.
func (e *Engine) CreateTransfer(ctx context.Context, input CreateTransferInput) (Transfer, error) {
	if len(input.Items) == 0 {
		return Transfer{}, ErrNoItems
	}
	if input.FromWarehouseID == input.ToWarehouseID {
		return Transfer{}, ErrSameWarehouse
	}
	for _, item := range input.Items {
		if item.Quantity <= 0 {
			return Transfer{}, ErrInvalidQuantity
		}
	}
	date := documentDate(input.Date)
	var doc Transfer
	err := e.withRetry(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, item := range input.Items {
			if err := checkLocationWarehouse(ctx, tx, item.FromLocationID, input.FromWarehouseID); err != nil {
				return err
			}
			if err := checkLocationWarehouse(ctx, tx, item.ToLocationID, input.ToWarehouseID); err != nil {
				return err
			}
		}
		number, err := tx.NextDocumentNumber(ctx, KindTransfer, PeriodKey(date))
		if err != nil {
			return err
		}
		doc = Transfer{
			DocumentNumber:  number,
			Date:            date,
			Status:          StatusPending,
			FromWarehouseID: input.FromWarehouseID,
			ToWarehouseID:   input.ToWarehouseID,
			Notes:           input.Notes,
			CreatedBy:       input.ActorID,
			Items:           input.Items,
		}
		doc.ID, err = tx.InsertTransfer(ctx, doc)
		return err
	})
	if err != nil {
		return Transfer{}, err
	}
	e.recordAudit(ctx, input.ActorID, "create", KindTransfer, doc.DocumentNumber, len(doc.Items))
	return doc, nil
}

// ApplyTransfer commits a PENDING transfer. Availability is checked at
// the source locations only; destinations are created lazily. Each line
// posts two journal entries, TRANSFER_OUT at the source before
// TRANSFER_IN at the destination, sharing the document number.
func (e *Engine) ApplyTransfer(ctx context.Context, id, actorID int64) (Transfer, error) {
	var doc Transfer
	err := e.withRetry(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		doc, err = tx.GetTransfer(ctx, id)
		if err != nil {
			return err
		}
		if doc.Status == StatusValidated {
			return ErrAlreadyValidated
		}
		demands := make([]stockDemand, 0, len(doc.Items))
		movements := make([]stockMovement, 0, 2*len(doc.Items))
		for _, item := range doc.Items {
			demands = append(demands, stockDemand{ProductID: item.ProductID, LocationID: item.FromLocationID, Required: item.Quantity})
			movements = append(movements,
				stockMovement{
					ProductID:  item.ProductID,
					LocationID: item.FromLocationID,
					Delta:      -item.Quantity,
					Type:       ledger.TypeTransferOut,
				},
				stockMovement{
					ProductID:  item.ProductID,
					LocationID: item.ToLocationID,
					Delta:      item.Quantity,
					Type:       ledger.TypeTransferIn,
				})
		}
		if err := e.checkAvailability(ctx, tx, demands); err != nil {
			return err
		}
		if err := e.postMovements(ctx, tx, doc.Date, doc.DocumentNumber, actorID, doc.Notes, movements); err != nil {
			return err
		}
		return e.finalize(ctx, tx, KindTransfer, id, actorID, &doc.Status, &doc.ValidatedBy, &doc.ValidatedAt)
	})
	if err != nil {
		e.afterFail(ctx, KindTransfer, err)
		return Transfer{}, err
	}
	e.afterPost(ctx, actorID, KindTransfer, doc.DocumentNumber, len(doc.Items))
	return doc, nil
}

// CreateAdjustmentInput describes an adjustment to create and apply.
type CreateAdjustmentInput struct {
	Date    time.Time
	Reason  string
	ActorID int64
	Items   []AdjustmentItem
}

// CreateAdjustment creates and applies an adjustment in one call.
// Adjustments are authoritative overwrites: each line sets the balance
// to the counted quantity and journals the signed difference. There is
// no PENDING stage and no availability check.
func (e *Engine) CreateAdjustment(ctx context.Context, input CreateAdjustmentInput) (Adjustment, error) {
	if len(input.Items) == 0 {
		return Adjustment{}, ErrNoItems
	}
	for _, item := range input.Items {
		if item.PhysicalCount < 0 {
			return Adjustment{}, ErrInvalidCount
		}
	}
	date := documentDate(input.Date)
	var doc Adjustment
	err := e.withRetry(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.NextDocumentNumber(ctx, KindAdjustment, PeriodKey(date))
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		items := make([]AdjustmentItem, len(input.Items))
		copy(items, input.Items)
		for i := range items {
			previous, current, err := tx.SetStockQuantity(ctx, items[i].ProductID, items[i].LocationID, items[i].PhysicalCount)
			if err != nil {
				return err
			}
			items[i].Difference = current - previous
			entry := ledger.Entry{
				Date:           date,
				ProductID:      items[i].ProductID,
				LocationID:     items[i].LocationID,
				Type:           ledger.TypeAdjustment,
				DocumentNumber: number,
				Quantity:       items[i].Difference,
				PreviousStock:  previous,
				NewStock:       current,
				UserID:         input.ActorID,
				Notes:          input.Reason,
			}
			if err := tx.AppendLedger(ctx, entry); err != nil {
				return err
			}
		}
		doc = Adjustment{
			DocumentNumber: number,
			Date:           date,
			Status:         StatusValidated,
			Reason:         input.Reason,
			CreatedBy:      input.ActorID,
			ValidatedBy:    input.ActorID,
			ValidatedAt:    now,
			Items:          items,
		}
		doc.ID, err = tx.InsertAdjustment(ctx, doc)
		return err
	})
	if err != nil {
		e.afterFail(ctx, KindAdjustment, err)
		return Adjustment{}, err
	}
	e.afterPost(ctx, input.ActorID, KindAdjustment, doc.DocumentNumber, len(doc.Items))
	return doc, nil
}

// GetReceipt loads one receipt with items.
func (e *Engine) GetReceipt(ctx context.Context, id int64) (Receipt, error) {
	return e.repo.GetReceipt(ctx, id)
}

// GetDelivery loads one delivery with items.
func (e *Engine) GetDelivery(ctx context.Context, id int64) (Delivery, error) {
	return e.repo.GetDelivery(ctx, id)
}

// GetTransfer loads one transfer with items.
func (e *Engine) GetTransfer(ctx context.Context, id int64) (Transfer, error) {
	return e.repo.GetTransfer(ctx, id)
}

// GetAdjustment loads one adjustment with items.
func (e *Engine) GetAdjustment(ctx context.Context, id int64) (Adjustment, error) {
	return e.repo.GetAdjustment(ctx, id)
}

// ListReceipts lists receipt headers.
func (e *Engine) ListReceipts(ctx context.Context, filter DocumentFilter) ([]Receipt, int, error) {
	return e.repo.ListReceipts(ctx, filter)
}

// ListDeliveries lists delivery headers.
func (e *Engine) ListDeliveries(ctx context.Context, filter DocumentFilter) ([]Delivery, int, error) {
	return e.repo.ListDeliveries(ctx, filter)
}

// ListTransfers lists transfer headers.
func (e *Engine) ListTransfers(ctx context.Context, filter DocumentFilter) ([]Transfer, int, error) {
	return e.repo.ListTransfers(ctx, filter)
}

// ListAdjustments lists adjustment headers.
func (e *Engine) ListAdjustments(ctx context.Context, filter DocumentFilter) ([]Adjustment, int, error) {
	return e.repo.ListAdjustments(ctx, filter)
}

type stockMovement struct {
	ProductID  int64
	LocationID int64
	Delta      int64
	Type       ledger.EntryType
}

type stockDemand struct {
	ProductID  int64
	LocationID int64
	Required   int64
}

// checkAvailability is the validation pass shared by every decrementing
// path. Demands are summed per (product, location) before comparing, so
// duplicate lines against the same balance cannot slip past the check
// individually and drive the balance negative together.
func (e *Engine) checkAvailability(ctx context.Context, tx TxRepository, demands []stockDemand) error {
	type key struct{ product, location int64 }
	required := map[key]int64{}
	order := []key{}
	for _, d := range demands {
		k := key{d.ProductID, d.LocationID}
		if _, seen := required[k]; !seen {
			order = append(order, k)
		}
		required[k] += d.Required
	}
	for _, k := range order {
		available, err := tx.StockQuantity(ctx, k.product, k.location)
		if err != nil {
			return err
		}
		if available < required[k] {
			sku, err := tx.ProductSKU(ctx, k.product)
			if err != nil {
				return err
			}
			return &InsufficientStockError{SKU: sku, Available: available, Required: required[k]}
		}
	}
	return nil
}

// postMovements applies the deltas in order and journals each with its
// before and after balance.
func (e *Engine) postMovements(ctx context.Context, tx TxRepository, date time.Time, documentNumber string, userID int64, notes string, movements []stockMovement) error {
	for _, m := range movements {
		previous, current, err := tx.ApplyStockDelta(ctx, m.ProductID, m.LocationID, m.Delta)
		if err != nil {
			return err
		}
		entry := ledger.Entry{
			Date:           date,
			ProductID:      m.ProductID,
			LocationID:     m.LocationID,
			Type:           m.Type,
			DocumentNumber: documentNumber,
			Quantity:       m.Delta,
			PreviousStock:  previous,
			NewStock:       current,
			UserID:         userID,
			Notes:          notes,
		}
		if err := tx.AppendLedger(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) finalize(ctx context.Context, tx TxRepository, kind DocumentKind, id, actorID int64, status *DocumentStatus, validatedBy *int64, validatedAt *time.Time) error {
	now := time.Now().UTC()
	if err := tx.MarkValidated(ctx, kind, id, actorID, now); err != nil {
		return err
	}
	*status = StatusValidated
	*validatedBy = actorID
	*validatedAt = now
	return nil
}

// withRetry re-runs the unit of work when it lost a race, up to the
// retry budget. Every other error surfaces immediately.
func (e *Engine) withRetry(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	var err error
	for attempt := 0; attempt < e.retries; attempt++ {
		err = e.repo.WithTx(ctx, fn)
		if !errors.Is(err, ErrConcurrentConflict) {
			return err
		}
	}
	return err
}

func (e *Engine) afterFail(ctx context.Context, kind DocumentKind, err error) {
	if e.hooks == nil {
		return
	}
	e.hooks.MovementFailed(ctx, kind, failureReason(err))
}

func failureReason(err error) string {
	var insufficient *InsufficientStockError
	switch {
	case errors.As(err, &insufficient):
		return "insufficient_stock"
	case errors.Is(err, ErrAlreadyValidated):
		return "already_validated"
	case errors.Is(err, ErrConcurrentConflict):
		return "conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidReference):
		return "invalid_reference"
	default:
		return "internal"
	}
}

func (e *Engine) afterPost(ctx context.Context, actorID int64, kind DocumentKind, documentNumber string, lines int) {
	e.recordAudit(ctx, actorID, "validate", kind, documentNumber, lines)
	if e.hooks != nil {
		e.hooks.MovementPosted(ctx, MovementPostedEvent{
			Kind:           kind,
			DocumentNumber: documentNumber,
			Lines:          lines,
			PostedAt:       time.Now().UTC(),
		})
	}
}

func (e *Engine) recordAudit(ctx context.Context, actorID int64, action string, kind DocumentKind, documentNumber string, lines int) {
	if e.audit == nil {
		return
	}
	_ = e.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   fmt.Sprintf("movement:%s:%s", action, kind),
		Entity:   "movement_document",
		EntityID: documentNumber,
		Meta: map[string]any{
			"kind":  string(kind),
			"lines": lines,
		},
	})
}

func checkLocationWarehouse(ctx context.Context, tx TxRepository, locationID, warehouseID int64) error {
	actual, err := tx.LocationWarehouse(ctx, locationID)
	if err != nil {
		return err
	}
	if actual != warehouseID {
		return fmt.Errorf("%w: location %d is not in warehouse %d", ErrInvalidReference, locationID, warehouseID)
	}
	return nil
}

func checkReference(reference string) error {
	if reference == "" {
		return nil
	}
	if _, err := uuid.Parse(reference); err != nil {
		return fmt.Errorf("%w: reference must be a UUID", ErrInvalidReference)
	}
	return nil
}

func documentDate(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
