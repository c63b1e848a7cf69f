package locations

import (
	"context"
	"fmt"
	"strings"

	"github.com/stocktrail/stocktrail/internal/masterdata/shared"
	"github.com/stocktrail/stocktrail/internal/platform/httpx"
)

// Service validates and coordinates location CRUD.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, warehouseID int64, filters shared.ListFilters) ([]Location, int, error) {
	return s.repo.List(ctx, warehouseID, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Location, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, location Location) (Location, error) {
	if err := s.validate(location); err != nil {
		return Location{}, err
	}
	return s.repo.Create(ctx, location)
}

func (s *Service) Update(ctx context.Context, id int64, location Location) error {
	if err := s.validate(location); err != nil {
		return err
	}
	return s.repo.Update(ctx, id, location)
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}

func (s *Service) validate(l Location) error {
	if l.WarehouseID <= 0 {
		return fmt.Errorf("%w: warehouse is required", httpx.ErrValidation)
	}
	if strings.TrimSpace(l.Code) == "" {
		return fmt.Errorf("%w: location code is required", httpx.ErrValidation)
	}
	return nil
}
