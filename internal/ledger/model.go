package ledger

import "time"

// EntryType enumerates the movement kinds recorded in the journal.
type EntryType string

const (
	// TypeReceipt records goods received into a location.
	TypeReceipt EntryType = "RECEIPT"
	// TypeDelivery records goods issued out of a location.
	TypeDelivery EntryType = "DELIVERY"
	// TypeAdjustment records a stock-take correction.
	TypeAdjustment EntryType = "ADJUSTMENT"
	// TypeTransferIn records the inbound half of a transfer.
	TypeTransferIn EntryType = "TRANSFER_IN"
	// TypeTransferOut records the outbound half of a transfer.
	TypeTransferOut EntryType = "TRANSFER_OUT"
)

// Entry is one immutable journal row. Quantity is the signed delta applied
// to the (product, location) balance; PreviousStock and NewStock snapshot
// the balance around the write, so NewStock = PreviousStock + Quantity.
type Entry struct {
	ID             int64
	Date           time.Time
	ProductID      int64
	LocationID     int64
	Type           EntryType
	DocumentNumber string
	Quantity       int64
	PreviousStock  int64
	NewStock       int64
	UserID         int64
	Notes          string
	CreatedAt      time.Time
}

// Filter narrows journal listings.
type Filter struct {
	ProductID  int64
	LocationID int64
	Type       EntryType
	From       time.Time
	To         time.Time
	Page       int
	Limit      int
}
