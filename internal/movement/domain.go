package movement

import (
	"errors"
	"fmt"
	"time"
)

// DocumentStatus is the lifecycle state of a movement document.
type DocumentStatus string

const (
	// StatusPending marks a created document whose effects are not yet applied.
	StatusPending DocumentStatus = "PENDING"
	// StatusValidated marks a document whose effects have been committed.
	// Validated documents are terminal and can never be re-applied.
	StatusValidated DocumentStatus = "VALIDATED"
)

// DocumentKind enumerates the four movement document types.
type DocumentKind string

const (
	KindReceipt    DocumentKind = "RECEIPT"
	KindDelivery   DocumentKind = "DELIVERY"
	KindTransfer   DocumentKind = "TRANSFER"
	KindAdjustment DocumentKind = "ADJUSTMENT"
)

// Prefix returns the document-number prefix for the kind.
func (k DocumentKind) Prefix() string {
	switch k {
	case KindReceipt:
		return "REC"
	case KindDelivery:
		return "DEL"
	case KindTransfer:
		return "TRF"
	case KindAdjustment:
		return "ADJ"
	}
	return "DOC"
}

func (k DocumentKind) table() string {
	switch k {
	case KindReceipt:
		return "receipts"
	case KindDelivery:
		return "deliveries"
	case KindTransfer:
		return "transfers"
	case KindAdjustment:
		return "adjustments"
	}
	return ""
}

// Receipt records goods entering the warehouse. Reference optionally
// carries the UUID of the purchase order in the upstream system.
type Receipt struct {
	ID             int64
	DocumentNumber string
	Date           time.Time
	Status         DocumentStatus
	Reference      string
	Notes          string
	CreatedBy      int64
	ValidatedBy    int64
	ValidatedAt    time.Time
	CreatedAt      time.Time
	Items          []ReceiptItem
}

// ReceiptItem is one inbound line. Quantity is always positive.
type ReceiptItem struct {
	ID         int64
	ProductID  int64
	LocationID int64
	Quantity   int64
	UnitPrice  float64
}

// Delivery records goods leaving the warehouse. Reference optionally
// carries the UUID of the sales order in the upstream system.
type Delivery struct {
	ID             int64
	DocumentNumber string
	Date           time.Time
	Status         DocumentStatus
	Reference      string
	Notes          string
	CreatedBy      int64
	ValidatedBy    int64
	ValidatedAt    time.Time
	CreatedAt      time.Time
	Items          []DeliveryItem
}

// DeliveryItem is one outbound line. Quantity is always positive; the
// engine negates it when posting.
type DeliveryItem struct {
	ID         int64
	ProductID  int64
	LocationID int64
	Quantity   int64
	UnitPrice  float64
}

// Transfer moves stock between two warehouses. Each line names a source
// and a destination location and posts two ledger entries sharing the
// transfer's document number.
type Transfer struct {
	ID              int64
	DocumentNumber  string
	Date            time.Time
	Status          DocumentStatus
	FromWarehouseID int64
	ToWarehouseID   int64
	Notes           string
	CreatedBy       int64
	ValidatedBy     int64
	ValidatedAt     time.Time
	CreatedAt       time.Time
	Items           []TransferItem
}

// TransferItem is one transfer line.
type TransferItem struct {
	ID             int64
	ProductID      int64
	FromLocationID int64
	ToLocationID   int64
	Quantity       int64
}

// Adjustment overwrites on-hand quantities with counted ones. Unlike the
// other document kinds it is created and applied in the same call, so it
// is always persisted already VALIDATED.
type Adjustment struct {
	ID             int64
	DocumentNumber string
	Date           time.Time
	Status         DocumentStatus
	Reason         string
	CreatedBy      int64
	ValidatedBy    int64
	ValidatedAt    time.Time
	CreatedAt      time.Time
	Items          []AdjustmentItem
}

// AdjustmentItem is one counted line. Difference is computed by the
// engine as physical count minus the stock on hand at apply time.
type AdjustmentItem struct {
	ID            int64
	ProductID     int64
	LocationID    int64
	PhysicalCount int64
	Difference    int64
}

// DocumentFilter narrows document listings. WarehouseID matches either
// side of a transfer and is ignored for the other document kinds.
type DocumentFilter struct {
	Status      DocumentStatus
	From        time.Time
	To          time.Time
	WarehouseID int64
	Page        int
	Limit       int
}

// ErrNotFound indicates the referenced document does not exist.
var ErrNotFound = errors.New("movement: document not found")

// ErrAlreadyValidated indicates an attempt to re-apply a terminal document.
var ErrAlreadyValidated = errors.New("movement: document already validated")

// ErrInvalidReference indicates a dangling product, location or warehouse id.
var ErrInvalidReference = errors.New("movement: unknown product, location or warehouse reference")

// ErrConcurrentConflict indicates a lost race on a stock row or document
// status. The whole unit of work is safe to retry.
var ErrConcurrentConflict = errors.New("movement: concurrent conflict")

// ErrSameWarehouse indicates a transfer whose source and destination match.
var ErrSameWarehouse = errors.New("movement: source and destination warehouse must differ")

// ErrNoItems indicates a document created without line items.
var ErrNoItems = errors.New("movement: document requires at least one item")

// ErrInvalidQuantity indicates a non-positive line quantity.
var ErrInvalidQuantity = errors.New("movement: quantity must be positive")

// ErrInvalidCount indicates a negative physical count on an adjustment line.
var ErrInvalidCount = errors.New("movement: physical count must not be negative")

// InsufficientStockError reports the first line that failed the
// availability check of a delivery or transfer.
type InsufficientStockError struct {
	SKU       string
	Available int64
	Required  int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("Insufficient stock for %s. Available: %d, Required: %d", e.SKU, e.Available, e.Required)
}
