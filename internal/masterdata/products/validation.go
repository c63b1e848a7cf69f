package products

import (
	"fmt"
	"strings"

	"github.com/stocktrail/stocktrail/internal/platform/httpx"
)

func (s *Service) validate(p Product) error {
	if strings.TrimSpace(p.SKU) == "" {
		return fmt.Errorf("%w: product sku is required", httpx.ErrValidation)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: product name is required", httpx.ErrValidation)
	}
	if strings.TrimSpace(p.Unit) == "" {
		return fmt.Errorf("%w: product unit is required", httpx.ErrValidation)
	}
	if p.CategoryID <= 0 {
		return fmt.Errorf("%w: category is required", httpx.ErrValidation)
	}
	if p.ReorderPoint < 0 {
		return fmt.Errorf("%w: reorder point must be >= 0", httpx.ErrValidation)
	}
	if p.Price < 0 {
		return fmt.Errorf("%w: price must be >= 0", httpx.ErrValidation)
	}
	return nil
}
