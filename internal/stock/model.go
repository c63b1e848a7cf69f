package stock

import "time"

// Balance is the current on-hand quantity for a (product, location) pair.
// Rows are created lazily on the first movement into a location and must
// never go negative; admission control for decrements lives in the
// movement engine, not here.
type Balance struct {
	ProductID  int64
	LocationID int64
	Quantity   int64
	UpdatedAt  time.Time
}

// WarehouseRow is one line of the per-warehouse stock listing.
type WarehouseRow struct {
	ProductID    int64  `json:"productId"`
	SKU          string `json:"sku"`
	ProductName  string `json:"productName"`
	Unit         string `json:"unit"`
	LocationID   int64  `json:"locationId"`
	LocationCode string `json:"locationCode"`
	Quantity     int64  `json:"quantity"`
}

// ProductRow is one line of the per-product stock listing across locations.
type ProductRow struct {
	LocationID    int64  `json:"locationId"`
	LocationCode  string `json:"locationCode"`
	WarehouseID   int64  `json:"warehouseId"`
	WarehouseName string `json:"warehouseName"`
	Quantity      int64  `json:"quantity"`
}

// LowStockRow flags a product whose total on-hand quantity is at or below
// its reorder point.
type LowStockRow struct {
	ProductID    int64  `json:"productId"`
	SKU          string `json:"sku"`
	ProductName  string `json:"productName"`
	ReorderPoint int64  `json:"reorderPoint"`
	TotalOnHand  int64  `json:"totalOnHand"`
}
