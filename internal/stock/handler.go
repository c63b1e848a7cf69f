package stock

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/singleflight"

	"github.com/stocktrail/stocktrail/internal/platform/httpx"
)

// Handler serves read-only stock endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	group   singleflight.Group
}

// NewHandler constructs the stock handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/warehouse/{id}", h.byWarehouse)
	r.Get("/product/{id}", h.byProduct)
	r.Get("/low", h.low)
}

func (h *Handler) byWarehouse(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid warehouse id")
		return
	}
	rows, err, _ := h.single(r.Context(), "warehouse:"+strconv.FormatInt(id, 10), func(ctx context.Context) (interface{}, error) {
		return h.service.WarehouseStock(ctx, id)
	})
	if err != nil {
		h.logger.Error("warehouse stock", slog.Any("error", err), slog.Int64("warehouse_id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": rows})
}

func (h *Handler) byProduct(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid product id")
		return
	}
	rows, err, _ := h.single(r.Context(), "product:"+strconv.FormatInt(id, 10), func(ctx context.Context) (interface{}, error) {
		return h.service.ProductStock(ctx, id)
	})
	if err != nil {
		h.logger.Error("product stock", slog.Any("error", err), slog.Int64("product_id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": rows})
}

func (h *Handler) low(w http.ResponseWriter, r *http.Request) {
	rows, err, _ := h.single(r.Context(), "low", func(ctx context.Context) (interface{}, error) {
		return h.service.LowStock(ctx)
	})
	if err != nil {
		h.logger.Error("low stock", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": rows})
}

// single collapses concurrent identical reads into one loader call.
func (h *Handler) single(ctx context.Context, key string, fn func(context.Context) (interface{}, error)) (interface{}, error, bool) {
	resultChan := h.group.DoChan(key, func() (interface{}, error) {
		return fn(ctx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err(), false
	case res := <-resultChan:
		return res.Val, res.Err, res.Shared
	}
}
