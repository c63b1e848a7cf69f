package stock

import (
	"context"
	"errors"
)

// Service is the read surface over the store, with cached listings.
type Service struct {
	store *Store
	cache *Cache
}

// NewService builds the read service.
func NewService(store *Store, cache *Cache) *Service {
	return &Service{store: store, cache: cache}
}

// WarehouseStock lists current balances for a warehouse.
func (s *Service) WarehouseStock(ctx context.Context, warehouseID int64) ([]WarehouseRow, error) {
	if warehouseID == 0 {
		return nil, errors.New("stock: warehouse required")
	}
	key, err := s.cache.BuildKey(ctx, "warehouse", formatInt(warehouseID))
	if err != nil {
		return nil, err
	}
	var rows []WarehouseRow
	err = s.cache.FetchJSON(ctx, key, &rows, func(ctx context.Context) (interface{}, error) {
		return s.store.ListByWarehouse(ctx, warehouseID)
	})
	return rows, err
}

// ProductStock lists a product's balances across locations.
func (s *Service) ProductStock(ctx context.Context, productID int64) ([]ProductRow, error) {
	if productID == 0 {
		return nil, errors.New("stock: product required")
	}
	key, err := s.cache.BuildKey(ctx, "product", formatInt(productID))
	if err != nil {
		return nil, err
	}
	var rows []ProductRow
	err = s.cache.FetchJSON(ctx, key, &rows, func(ctx context.Context) (interface{}, error) {
		return s.store.ListByProduct(ctx, productID)
	})
	return rows, err
}

// LowStock lists products at or below their reorder point.
func (s *Service) LowStock(ctx context.Context) ([]LowStockRow, error) {
	key, err := s.cache.BuildKey(ctx, "low")
	if err != nil {
		return nil, err
	}
	var rows []LowStockRow
	err = s.cache.FetchJSON(ctx, key, &rows, func(ctx context.Context) (interface{}, error) {
		return s.store.ListLowStock(ctx)
	})
	return rows, err
}

// Invalidate drops all cached listings. Called by the movement engine after
// each committed document.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}
