package movement

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stocktrail/stocktrail/internal/ledger"
)

type balanceKey struct {
	productID  int64
	locationID int64
}

type memoryRepo struct {
	stocks      map[balanceKey]int64
	entries     []ledger.Entry
	receipts    map[int64]Receipt
	deliveries  map[int64]Delivery
	transfers   map[int64]Transfer
	adjustments map[int64]Adjustment
	counters    map[string]int64
	skus        map[int64]string
	warehouses  map[int64]int64
	nextID      int64
	conflicts   int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		stocks:      map[balanceKey]int64{},
		receipts:    map[int64]Receipt{},
		deliveries:  map[int64]Delivery{},
		transfers:   map[int64]Transfer{},
		adjustments: map[int64]Adjustment{},
		counters:    map[string]int64{},
		skus:        map[int64]string{},
		warehouses:  map[int64]int64{},
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r.conflicts > 0 {
		r.conflicts--
		return ErrConcurrentConflict
	}
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) GetReceipt(ctx context.Context, id int64) (Receipt, error) {
	return (&memoryTx{repo: r}).GetReceipt(ctx, id)
}

func (r *memoryRepo) GetDelivery(ctx context.Context, id int64) (Delivery, error) {
	return (&memoryTx{repo: r}).GetDelivery(ctx, id)
}

func (r *memoryRepo) GetTransfer(ctx context.Context, id int64) (Transfer, error) {
	return (&memoryTx{repo: r}).GetTransfer(ctx, id)
}

func (r *memoryRepo) GetAdjustment(ctx context.Context, id int64) (Adjustment, error) {
	doc, ok := r.adjustments[id]
	if !ok {
		return Adjustment{}, ErrNotFound
	}
	return doc, nil
}

func (r *memoryRepo) ListReceipts(ctx context.Context, filter DocumentFilter) ([]Receipt, int, error) {
	docs := []Receipt{}
	for _, doc := range r.receipts {
		docs = append(docs, doc)
	}
	return docs, len(docs), nil
}

func (r *memoryRepo) ListDeliveries(ctx context.Context, filter DocumentFilter) ([]Delivery, int, error) {
	docs := []Delivery{}
	for _, doc := range r.deliveries {
		docs = append(docs, doc)
	}
	return docs, len(docs), nil
}

func (r *memoryRepo) ListTransfers(ctx context.Context, filter DocumentFilter) ([]Transfer, int, error) {
	docs := []Transfer{}
	for _, doc := range r.transfers {
		docs = append(docs, doc)
	}
	return docs, len(docs), nil
}

func (r *memoryRepo) ListAdjustments(ctx context.Context, filter DocumentFilter) ([]Adjustment, int, error) {
	docs := []Adjustment{}
	for _, doc := range r.adjustments {
		docs = append(docs, doc)
	}
	return docs, len(docs), nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (tx *memoryTx) NextDocumentNumber(ctx context.Context, kind DocumentKind, period string) (string, error) {
	key := kind.Prefix() + ":" + period
	tx.repo.counters[key]++
	return FormatDocumentNumber(kind.Prefix(), period, tx.repo.counters[key]), nil
}

func (tx *memoryTx) InsertReceipt(ctx context.Context, doc Receipt) (int64, error) {
	tx.repo.nextID++
	doc.ID = tx.repo.nextID
	tx.repo.receipts[doc.ID] = doc
	return doc.ID, nil
}

func (tx *memoryTx) InsertDelivery(ctx context.Context, doc Delivery) (int64, error) {
	tx.repo.nextID++
	doc.ID = tx.repo.nextID
	tx.repo.deliveries[doc.ID] = doc
	return doc.ID, nil
}

func (tx *memoryTx) InsertTransfer(ctx context.Context, doc Transfer) (int64, error) {
	tx.repo.nextID++
	doc.ID = tx.repo.nextID
	tx.repo.transfers[doc.ID] = doc
	return doc.ID, nil
}

func (tx *memoryTx) InsertAdjustment(ctx context.Context, doc Adjustment) (int64, error) {
	tx.repo.nextID++
	doc.ID = tx.repo.nextID
	tx.repo.adjustments[doc.ID] = doc
	return doc.ID, nil
}

func (tx *memoryTx) GetReceipt(ctx context.Context, id int64) (Receipt, error) {
	doc, ok := tx.repo.receipts[id]
	if !ok {
		return Receipt{}, ErrNotFound
	}
	return doc, nil
}

func (tx *memoryTx) GetDelivery(ctx context.Context, id int64) (Delivery, error) {
	doc, ok := tx.repo.deliveries[id]
	if !ok {
		return Delivery{}, ErrNotFound
	}
	return doc, nil
}

func (tx *memoryTx) GetTransfer(ctx context.Context, id int64) (Transfer, error) {
	doc, ok := tx.repo.transfers[id]
	if !ok {
		return Transfer{}, ErrNotFound
	}
	return doc, nil
}

func (tx *memoryTx) MarkValidated(ctx context.Context, kind DocumentKind, id, validatorID int64, at time.Time) error {
	switch kind {
	case KindReceipt:
		doc, ok := tx.repo.receipts[id]
		if !ok || doc.Status != StatusPending {
			return ErrAlreadyValidated
		}
		doc.Status = StatusValidated
		doc.ValidatedBy = validatorID
		doc.ValidatedAt = at
		tx.repo.receipts[id] = doc
	case KindDelivery:
		doc, ok := tx.repo.deliveries[id]
		if !ok || doc.Status != StatusPending {
			return ErrAlreadyValidated
		}
		doc.Status = StatusValidated
		doc.ValidatedBy = validatorID
		doc.ValidatedAt = at
		tx.repo.deliveries[id] = doc
	case KindTransfer:
		doc, ok := tx.repo.transfers[id]
		if !ok || doc.Status != StatusPending {
			return ErrAlreadyValidated
		}
		doc.Status = StatusValidated
		doc.ValidatedBy = validatorID
		doc.ValidatedAt = at
		tx.repo.transfers[id] = doc
	}
	return nil
}

func (tx *memoryTx) StockQuantity(ctx context.Context, productID, locationID int64) (int64, error) {
	return tx.repo.stocks[balanceKey{productID, locationID}], nil
}

func (tx *memoryTx) ApplyStockDelta(ctx context.Context, productID, locationID, delta int64) (int64, int64, error) {
	key := balanceKey{productID, locationID}
	previous := tx.repo.stocks[key]
	tx.repo.stocks[key] = previous + delta
	return previous, previous + delta, nil
}

func (tx *memoryTx) SetStockQuantity(ctx context.Context, productID, locationID, quantity int64) (int64, int64, error) {
	key := balanceKey{productID, locationID}
	previous := tx.repo.stocks[key]
	tx.repo.stocks[key] = quantity
	return previous, quantity, nil
}

func (tx *memoryTx) AppendLedger(ctx context.Context, entry ledger.Entry) error {
	tx.repo.entries = append(tx.repo.entries, entry)
	return nil
}

func (tx *memoryTx) ProductSKU(ctx context.Context, productID int64) (string, error) {
	if sku, ok := tx.repo.skus[productID]; ok {
		return sku, nil
	}
	return fmt.Sprintf("P%d", productID), nil
}

func (tx *memoryTx) LocationWarehouse(ctx context.Context, locationID int64) (int64, error) {
	warehouseID, ok := tx.repo.warehouses[locationID]
	if !ok {
		return 0, ErrInvalidReference
	}
	return warehouseID, nil
}

func testDate() time.Time {
	return time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)
}

func TestApplyReceiptIncrementsStock(t *testing.T) {
	repo := newMemoryRepo()
	engine := NewEngine(repo, nil, nil)
	ctx := context.Background()

	doc, err := engine.CreateReceipt(ctx, CreateReceiptInput{
		Date:    testDate(),
		ActorID: 7,
		Items:   []ReceiptItem{{ProductID: 1, LocationID: 10, Quantity: 50, UnitPrice: 2.5}},
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, doc.Status)
	require.Equal(t, "REC-2026080001", doc.DocumentNumber)

	applied, err := engine.ApplyReceipt(ctx, doc.ID, 7)
	require.NoError(t, err)
	require.Equal(t, StatusValidated, applied.Status)
	require.EqualValues(t, 7, applied.ValidatedBy)

	require.EqualValues(t, 50, repo.stocks[balanceKey{1, 10}])
	require.Len(t, repo.entries, 1)
	entry := repo.entries[0]
	require.Equal(t, ledger.TypeReceipt, entry.Type)
	require.EqualValues(t, 50, entry.Quantity)
	require.EqualValues(t, 0, entry.PreviousStock)
	require.EqualValues(t, 50, entry.NewStock)
	require.Equal(t, doc.DocumentNumber, entry.DocumentNumber)
}

func TestApplyDeliveryDecrementsStock(t *testing.T) {
	repo := newMemoryRepo()
	repo.stocks[balanceKey{1, 10}] = 50
	engine := NewEngine(repo, nil, nil)
	ctx := context.Background()

	doc, err := engine.CreateDelivery(ctx, CreateDeliveryInput{
		Date:    testDate(),
		ActorID: 7,
		Items:   []DeliveryItem{{ProductID: 1, LocationID: 10, Quantity: 5}},
	})
	require.NoError(t, err)

	applied, err := engine.ApplyDelivery(ctx, doc.ID, 7)
	require.NoError(t, err)
	require.Equal(t, StatusValidated, applied.Status)

	require.EqualValues(t, 45, repo.stocks[balanceKey{1, 10}])
	require.Len(t, repo.entries, 1)
	entry := repo.entries[0]
	require.Equal(t, ledger.TypeDelivery, entry.Type)
	require.EqualValues(t, -5, entry.Quantity)
	require.EqualValues(t, 50, entry.PreviousStock)
	require.EqualValues(t, 45, entry.NewStock)
}

func TestApplyDeliveryInsufficientStock(t *testing.T) {
	repo := newMemoryRepo()
	repo.stocks[balanceKey{3, 20}] = 5
	repo.skus[3] = "SKU-003"
	engine := NewEngine(repo, nil, nil)
	ctx := context.Background()

	doc, err := engine.CreateDelivery(ctx, CreateDeliveryInput{
		Date:    testDate(),
		ActorID: 7,
		Items:   []DeliveryItem{{ProductID: 3, LocationID: 20, Quantity: 10}},
	})
	require.NoError(t, err)

	_, err = engine.ApplyDelivery(ctx, doc.ID, 7)
	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, "SKU-003", insufficient.SKU)
	require.EqualValues(t, 5, insufficient.Available)
	require.EqualValues(t, 10, insufficient.Required)
	require.Equal(t, "Insufficient stock for SKU-003. Available: 5, Required: 10", err.Error())

	require.EqualValues(t, 5, repo.stocks[balanceKey{3, 20}])
	require.Empty(t, repo.entries)
	reread, err := engine.GetDelivery(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, reread.Status)
}

func TestApplyDeliveryAggregatesDuplicateLines(t *testing.T) {
	repo := newMemoryRepo()
	repo.stocks[balanceKey{1, 10}] = 50
	engine := NewEngine(repo, nil, nil)
	ctx := context.Background()

	doc, err := engine.CreateDelivery(ctx, CreateDeliveryInput{
		Date:    testDate(),
		ActorID: 7,
		Items: []DeliveryItem{
			{ProductID: 1, LocationID: 10, Quantity: 30},
			{ProductID: 1, LocationID: 10, Quantity: 30},
		},
	})
	require.NoError(t, err)

	_, err = engine.ApplyDelivery(ctx, doc.ID, 7)
	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.EqualValues(t, 50, insufficient.Available)
	require.EqualValues(t, 60, insufficient.Required)
	require.EqualValues(t, 50, repo.stocks[balanceKey{1, 10}])
}

func TestApplyTransferConservesStock(t *testing.T) {
	repo := newMemoryRepo()
	repo.stocks[balanceKey{1, 10}] = 45
	repo.warehouses[10] = 1
	repo.warehouses[30] = 2
	engine := NewEngine(repo, nil, nil)
	ctx := context.Background()

	doc, err := engine.CreateTransfer(ctx, CreateTransferInput{
		Date:            testDate(),
		FromWarehouseID: 1,
		ToWarehouseID:   2,
		ActorID:         7,
		Items:           []TransferItem{{ProductID: 1, FromLocationID: 10, ToLocationID: 30, Quantity: 20}},
	})
	require.NoError(t, err)

	_, err = engine.ApplyTransfer(ctx, doc.ID, 7)
	require.NoError(t, err)

	require.EqualValues(t, 25, repo.stocks[balanceKey{1, 10}])
	require.EqualValues(t, 20, repo.stocks[balanceKey{1, 30}])
	require.EqualValues(t, 45, repo.stocks[balanceKey{1, 10}]+repo.stocks[balanceKey{1, 30}])

	require.Len(t, repo.entries, 2)
	out, in := repo.entries[0], repo.entries[1]
	require.Equal(t, ledger.TypeTransferOut, out.Type)
	require.EqualValues(t, -20, out.Quantity)
	require.EqualValues(t, 10, out.LocationID)
	require.Equal(t, ledger.TypeTransferIn, in.Type)
	require.EqualValues(t, 20, in.Quantity)
	require.EqualValues(t, 30, in.LocationID)
	require.Equal(t, out.DocumentNumber, in.DocumentNumber)
}

func TestTransferValidatesSourceOnly(t *testing.T) {
	repo := newMemoryRepo()
	repo.stocks[balanceKey{1, 10}] = 5
	repo.warehouses[10] = 1
	repo.warehouses[30] = 2
	engine := NewEngine(repo, nil, nil)
	ctx := context.Background()

	doc, err := engine.CreateTransfer(ctx, CreateTransferInput{
		Date:            testDate(),
		FromWarehouseID: 1,
		ToWarehouseID:   2,
		ActorID:         7,
		Items:           []TransferItem{{ProductID: 1, FromLocationID: 10, ToLocationID: 30, Quantity: 20}},
	})
	require.NoError(t, err)

	_, err = engine.ApplyTransfer(ctx, doc.ID, 7)
	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.EqualValues(t, 5, repo.stocks[balanceKey{1, 10}])
	require.EqualValues(t, 0, repo.stocks[balanceKey{1, 30}])
	require.Empty(t, repo.entries)
}

func TestCreateTransferSameWarehouse(t *testing.T) {
	repo := newMemoryRepo()
	engine := NewEngine(repo, nil, nil)

	_, err := engine.CreateTransfer(context.Background(), CreateTransferInput{
		Date:            testDate(),
		FromWarehouseID: 1,
		ToWarehouseID:   1,
		ActorID:         7,
		Items:           []TransferItem{{ProductID: 1, FromLocationID: 10, ToLocationID: 11, Quantity: 1}},
	})
	require.ErrorIs(t, err, ErrSameWarehouse)
}

func TestCreateTransferLocationOutsideWarehouse(t *testing.T) {
	repo := newMemoryRepo()
	repo.warehouses[10] = 1
	repo.warehouses[30] = 3
	engine := NewEngine(repo, nil, nil)

	_, err := engine.CreateTransfer(context.Background(), CreateTransferInput{
		Date:            testDate(),
		FromWarehouseID: 1,
		ToWarehouseID:   2,
		ActorID:         7,
		Items:           []TransferItem{{ProductID: 1, FromLocationID: 10, ToLocationID: 30, Quantity: 1}},
	})
	require.ErrorIs(t, err, ErrInvalidReference)
}

func TestCreateAdjustmentOverwritesStock(t *testing.T) {
	repo := newMemoryRepo()
	repo.stocks[balanceKey{2, 10}] = 12
	engine := NewEngine(repo, nil, nil)
	ctx := context.Background()

	doc, err := engine.CreateAdjustment(ctx, CreateAdjustmentInput{
		Date:    testDate(),
		Reason:  "cycle count",
		ActorID: 7,
		Items:   []AdjustmentItem{{ProductID: 2, LocationID: 10, PhysicalCount: 30}},
	})
	require.NoError(t, err)
	require.Equal(t, StatusValidated, doc.Status)
	require.EqualValues(t, 18, doc.Items[0].Difference)

	require.EqualValues(t, 30, repo.stocks[balanceKey{2, 10}])
	require.Len(t, repo.entries, 1)
	entry := repo.entries[0]
	require.Equal(t, ledger.TypeAdjustment, entry.Type)
	require.EqualValues(t, 18, entry.Quantity)
	require.EqualValues(t, 12, entry.PreviousStock)
	require.EqualValues(t, 30, entry.NewStock)
}

func TestCreateAdjustmentDownward(t *testing.T) {
	repo := newMemoryRepo()
	repo.stocks[balanceKey{2, 10}] = 12
	engine := NewEngine(repo, nil, nil)

	doc, err := engine.CreateAdjustment(context.Background(), CreateAdjustmentInput{
		Date:    testDate(),
		Reason:  "shrinkage",
		ActorID: 7,
		Items:   []AdjustmentItem{{ProductID: 2, LocationID: 10, PhysicalCount: 4}},
	})
	require.NoError(t, err)
	require.EqualValues(t, -8, doc.Items[0].Difference)
	require.EqualValues(t, 4, repo.stocks[balanceKey{2, 10}])
}

func TestApplyTwiceRejected(t *testing.T) {
	repo := newMemoryRepo()
	engine := NewEngine(repo, nil, nil)
	ctx := context.Background()

	doc, err := engine.CreateReceipt(ctx, CreateReceiptInput{
		Date:    testDate(),
		ActorID: 7,
		Items:   []ReceiptItem{{ProductID: 1, LocationID: 10, Quantity: 5}},
	})
	require.NoError(t, err)

	_, err = engine.ApplyReceipt(ctx, doc.ID, 7)
	require.NoError(t, err)

	_, err = engine.ApplyReceipt(ctx, doc.ID, 7)
	require.ErrorIs(t, err, ErrAlreadyValidated)
	require.EqualValues(t, 5, repo.stocks[balanceKey{1, 10}])
	require.Len(t, repo.entries, 1)
}

func TestApplyRetriesOnConflict(t *testing.T) {
	repo := newMemoryRepo()
	engine := NewEngine(repo, nil, nil)
	ctx := context.Background()

	doc, err := engine.CreateReceipt(ctx, CreateReceiptInput{
		Date:    testDate(),
		ActorID: 7,
		Items:   []ReceiptItem{{ProductID: 1, LocationID: 10, Quantity: 5}},
	})
	require.NoError(t, err)

	repo.conflicts = 2
	_, err = engine.ApplyReceipt(ctx, doc.ID, 7)
	require.NoError(t, err)

	doc2, err := engine.CreateReceipt(ctx, CreateReceiptInput{
		Date:    testDate(),
		ActorID: 7,
		Items:   []ReceiptItem{{ProductID: 1, LocationID: 10, Quantity: 5}},
	})
	require.NoError(t, err)

	repo.conflicts = 10
	_, err = engine.ApplyReceipt(ctx, doc2.ID, 7)
	require.ErrorIs(t, err, ErrConcurrentConflict)
}

func TestCreateRejectsBadInput(t *testing.T) {
	repo := newMemoryRepo()
	engine := NewEngine(repo, nil, nil)
	ctx := context.Background()

	_, err := engine.CreateReceipt(ctx, CreateReceiptInput{Date: testDate(), ActorID: 7})
	require.ErrorIs(t, err, ErrNoItems)

	_, err = engine.CreateDelivery(ctx, CreateDeliveryInput{
		Date:    testDate(),
		ActorID: 7,
		Items:   []DeliveryItem{{ProductID: 1, LocationID: 10, Quantity: 0}},
	})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = engine.CreateAdjustment(ctx, CreateAdjustmentInput{
		Date:    testDate(),
		Reason:  "typo",
		ActorID: 7,
		Items:   []AdjustmentItem{{ProductID: 1, LocationID: 10, PhysicalCount: -1}},
	})
	require.ErrorIs(t, err, ErrInvalidCount)
}

func TestCreateReceiptReference(t *testing.T) {
	repo := newMemoryRepo()
	engine := NewEngine(repo, nil, nil)
	ctx := context.Background()

	_, err := engine.CreateReceipt(ctx, CreateReceiptInput{
		Date: testDate(), ActorID: 7, Reference: "not-a-uuid",
		Items: []ReceiptItem{{ProductID: 1, LocationID: 10, Quantity: 5}},
	})
	require.ErrorIs(t, err, ErrInvalidReference)

	doc, err := engine.CreateReceipt(ctx, CreateReceiptInput{
		Date: testDate(), ActorID: 7, Reference: "6ba7b810-9dad-11d1-80b4-00c04fd430c8",
		Items: []ReceiptItem{{ProductID: 1, LocationID: 10, Quantity: 5}},
	})
	require.NoError(t, err)
	require.Equal(t, "6ba7b810-9dad-11d1-80b4-00c04fd430c8", doc.Reference)
}

func TestDocumentNumbersAreSequentialPerKind(t *testing.T) {
	repo := newMemoryRepo()
	engine := NewEngine(repo, nil, nil)
	ctx := context.Background()

	first, err := engine.CreateReceipt(ctx, CreateReceiptInput{
		Date: testDate(), ActorID: 7,
		Items: []ReceiptItem{{ProductID: 1, LocationID: 10, Quantity: 1}},
	})
	require.NoError(t, err)
	second, err := engine.CreateReceipt(ctx, CreateReceiptInput{
		Date: testDate(), ActorID: 7,
		Items: []ReceiptItem{{ProductID: 1, LocationID: 10, Quantity: 1}},
	})
	require.NoError(t, err)
	delivery, err := engine.CreateDelivery(ctx, CreateDeliveryInput{
		Date: testDate(), ActorID: 7,
		Items: []DeliveryItem{{ProductID: 1, LocationID: 10, Quantity: 1}},
	})
	require.NoError(t, err)

	require.Equal(t, "REC-2026080001", first.DocumentNumber)
	require.Equal(t, "REC-2026080002", second.DocumentNumber)
	require.Equal(t, "DEL-2026080001", delivery.DocumentNumber)
}
