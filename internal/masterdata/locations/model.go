package locations

import "time"

// Location is a physical storage point inside exactly one warehouse.
// Stock balances and ledger entries are keyed against locations.
type Location struct {
	ID          int64     `json:"id"`
	WarehouseID int64     `json:"warehouseId"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	CreatedAt   time.Time `json:"createdAt"`
}
