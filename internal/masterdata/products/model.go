package products

import "time"

// Product is the immutable catalog identity referenced by stock and
// movements. The movement engine reads products; it never mutates them.
type Product struct {
	ID           int64     `json:"id"`
	SKU          string    `json:"sku"`
	Name         string    `json:"name"`
	Unit         string    `json:"unit"`
	CategoryID   int64     `json:"categoryId"`
	ReorderPoint int64     `json:"reorderPoint"`
	Price        float64   `json:"price"`
	CreatedAt    time.Time `json:"createdAt"`
}
