package movement

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/stocktrail/stocktrail/internal/platform/httpx"
	"github.com/stocktrail/stocktrail/internal/shared"
)

// Handler exposes the movement engine over JSON.
type Handler struct {
	logger   *slog.Logger
	engine   *Engine
	validate *validator.Validate
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, engine *Engine) *Handler {
	return &Handler{logger: logger, engine: engine, validate: validator.New()}
}

// MountRoutes registers the movement endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/receipts", func(r chi.Router) {
		r.Get("/", h.listReceipts)
		r.Post("/", h.createReceipt)
		r.Get("/{id}", h.getReceipt)
		r.Post("/{id}/validate", h.applyReceipt)
	})
	r.Route("/deliveries", func(r chi.Router) {
		r.Get("/", h.listDeliveries)
		r.Post("/", h.createDelivery)
		r.Get("/{id}", h.getDelivery)
		r.Post("/{id}/validate", h.applyDelivery)
	})
	r.Route("/transfers", func(r chi.Router) {
		r.Get("/", h.listTransfers)
		r.Post("/", h.createTransfer)
		r.Get("/{id}", h.getTransfer)
		r.Post("/{id}/validate", h.applyTransfer)
	})
	r.Route("/adjustments", func(r chi.Router) {
		r.Get("/", h.listAdjustments)
		r.Post("/", h.createAdjustment)
		r.Get("/{id}", h.getAdjustment)
	})
}

type receiptItemRequest struct {
	ProductID  int64   `json:"productId" validate:"required,gt=0"`
	LocationID int64   `json:"locationId" validate:"required,gt=0"`
	Quantity   int64   `json:"quantity" validate:"required,gt=0"`
	UnitPrice  float64 `json:"unitPrice" validate:"gte=0"`
}

type createReceiptRequest struct {
	Date      string               `json:"date"`
	Reference string               `json:"reference" validate:"omitempty,uuid"`
	Notes     string               `json:"notes"`
	Items     []receiptItemRequest `json:"items" validate:"required,min=1,dive"`
}

type transferItemRequest struct {
	ProductID      int64 `json:"productId" validate:"required,gt=0"`
	FromLocationID int64 `json:"fromLocationId" validate:"required,gt=0"`
	ToLocationID   int64 `json:"toLocationId" validate:"required,gt=0"`
	Quantity       int64 `json:"quantity" validate:"required,gt=0"`
}

type createTransferRequest struct {
	Date            string                `json:"date"`
	FromWarehouseID int64                 `json:"fromWarehouseId" validate:"required,gt=0"`
	ToWarehouseID   int64                 `json:"toWarehouseId" validate:"required,gt=0"`
	Notes           string                `json:"notes"`
	Items           []transferItemRequest `json:"items" validate:"required,min=1,dive"`
}

type adjustmentItemRequest struct {
	ProductID     int64 `json:"productId" validate:"required,gt=0"`
	LocationID    int64 `json:"locationId" validate:"required,gt=0"`
	PhysicalCount int64 `json:"physicalCount" validate:"gte=0"`
}

type createAdjustmentRequest struct {
	Date   string                  `json:"date"`
	Reason string                  `json:"reason" validate:"required"`
	Items  []adjustmentItemRequest `json:"items" validate:"required,min=1,dive"`
}

func (h *Handler) createReceipt(w http.ResponseWriter, r *http.Request) {
	var req createReceiptRequest
	if !h.decode(w, r, &req) {
		return
	}
	items := make([]ReceiptItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, ReceiptItem{ProductID: item.ProductID, LocationID: item.LocationID, Quantity: item.Quantity, UnitPrice: item.UnitPrice})
	}
	doc, err := h.engine.CreateReceipt(r.Context(), CreateReceiptInput{
		Date:      parseDate(req.Date),
		Reference: req.Reference,
		Notes:     req.Notes,
		ActorID:   shared.ActorFromContext(r.Context()),
		Items:     items,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"data": receiptResponse(doc)})
}

func (h *Handler) applyReceipt(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	doc, err := h.engine.ApplyReceipt(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": receiptResponse(doc)})
}

func (h *Handler) getReceipt(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	doc, err := h.engine.GetReceipt(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": receiptResponse(doc)})
}

func (h *Handler) listReceipts(w http.ResponseWriter, r *http.Request) {
	filter := listFilter(r)
	docs, total, err := h.engine.ListReceipts(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	data := make([]map[string]any, 0, len(docs))
	for _, doc := range docs {
		data = append(data, receiptResponse(doc))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data":       data,
		"pagination": shared.NewPagination(filter.Page, filter.Limit, total),
	})
}

func (h *Handler) createDelivery(w http.ResponseWriter, r *http.Request) {
	var req createReceiptRequest
	if !h.decode(w, r, &req) {
		return
	}
	items := make([]DeliveryItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, DeliveryItem{ProductID: item.ProductID, LocationID: item.LocationID, Quantity: item.Quantity, UnitPrice: item.UnitPrice})
	}
	doc, err := h.engine.CreateDelivery(r.Context(), CreateDeliveryInput{
		Date:      parseDate(req.Date),
		Reference: req.Reference,
		Notes:     req.Notes,
		ActorID:   shared.ActorFromContext(r.Context()),
		Items:     items,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"data": deliveryResponse(doc)})
}

func (h *Handler) applyDelivery(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	doc, err := h.engine.ApplyDelivery(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": deliveryResponse(doc)})
}

func (h *Handler) getDelivery(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	doc, err := h.engine.GetDelivery(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": deliveryResponse(doc)})
}

func (h *Handler) listDeliveries(w http.ResponseWriter, r *http.Request) {
	filter := listFilter(r)
	docs, total, err := h.engine.ListDeliveries(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	data := make([]map[string]any, 0, len(docs))
	for _, doc := range docs {
		data = append(data, deliveryResponse(doc))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data":       data,
		"pagination": shared.NewPagination(filter.Page, filter.Limit, total),
	})
}

func (h *Handler) createTransfer(w http.ResponseWriter, r *http.Request) {
	var req createTransferRequest
	if !h.decode(w, r, &req) {
		return
	}
	items := make([]TransferItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, TransferItem{ProductID: item.ProductID, FromLocationID: item.FromLocationID, ToLocationID: item.ToLocationID, Quantity: item.Quantity})
	}
	doc, err := h.engine.CreateTransfer(r.Context(), CreateTransferInput{
		Date:            parseDate(req.Date),
		FromWarehouseID: req.FromWarehouseID,
		ToWarehouseID:   req.ToWarehouseID,
		Notes:           req.Notes,
		ActorID:         shared.ActorFromContext(r.Context()),
		Items:           items,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"data": transferResponse(doc)})
}

func (h *Handler) applyTransfer(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	doc, err := h.engine.ApplyTransfer(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": transferResponse(doc)})
}

func (h *Handler) getTransfer(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	doc, err := h.engine.GetTransfer(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": transferResponse(doc)})
}

func (h *Handler) listTransfers(w http.ResponseWriter, r *http.Request) {
	filter := listFilter(r)
	docs, total, err := h.engine.ListTransfers(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	data := make([]map[string]any, 0, len(docs))
	for _, doc := range docs {
		data = append(data, transferResponse(doc))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data":       data,
		"pagination": shared.NewPagination(filter.Page, filter.Limit, total),
	})
}

func (h *Handler) createAdjustment(w http.ResponseWriter, r *http.Request) {
	var req createAdjustmentRequest
	if !h.decode(w, r, &req) {
		return
	}
	items := make([]AdjustmentItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, AdjustmentItem{ProductID: item.ProductID, LocationID: item.LocationID, PhysicalCount: item.PhysicalCount})
	}
	doc, err := h.engine.CreateAdjustment(r.Context(), CreateAdjustmentInput{
		Date:    parseDate(req.Date),
		Reason:  req.Reason,
		ActorID: shared.ActorFromContext(r.Context()),
		Items:   items,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"data": adjustmentResponse(doc)})
}

func (h *Handler) getAdjustment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	doc, err := h.engine.GetAdjustment(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": adjustmentResponse(doc)})
}

func (h *Handler) listAdjustments(w http.ResponseWriter, r *http.Request) {
	filter := listFilter(r)
	docs, total, err := h.engine.ListAdjustments(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	data := make([]map[string]any, 0, len(docs))
	for _, doc := range docs {
		data = append(data, adjustmentResponse(doc))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data":       data,
		"pagination": shared.NewPagination(filter.Page, filter.Limit, total),
	})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var insufficient *InsufficientStockError
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrAlreadyValidated):
		httpx.Problem(w, http.StatusConflict, "Already Validated", err.Error())
	case errors.As(err, &insufficient):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Insufficient Stock", err.Error())
	case errors.Is(err, ErrConcurrentConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrInvalidReference),
		errors.Is(err, ErrSameWarehouse),
		errors.Is(err, ErrNoItems),
		errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrInvalidCount):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("movement request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func listFilter(r *http.Request) DocumentFilter {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	warehouseID, _ := strconv.ParseInt(q.Get("warehouseId"), 10, 64)
	return DocumentFilter{
		Status:      DocumentStatus(q.Get("status")),
		From:        parseDate(q.Get("from")),
		To:          parseDate(q.Get("to")),
		WarehouseID: warehouseID,
		Page:        page,
		Limit:       limit,
	}
}

func parseDate(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	return time.Time{}
}

func documentFields(id int64, number string, date time.Time, status DocumentStatus, createdBy, validatedBy int64, validatedAt, createdAt time.Time) map[string]any {
	fields := map[string]any{
		"id":             id,
		"documentNumber": number,
		"date":           date,
		"status":         status,
		"createdBy":      createdBy,
		"createdAt":      createdAt,
	}
	if validatedBy != 0 {
		fields["validatedBy"] = validatedBy
		fields["validatedAt"] = validatedAt
	}
	return fields
}

func receiptResponse(doc Receipt) map[string]any {
	fields := documentFields(doc.ID, doc.DocumentNumber, doc.Date, doc.Status, doc.CreatedBy, doc.ValidatedBy, doc.ValidatedAt, doc.CreatedAt)
	fields["reference"] = doc.Reference
	fields["notes"] = doc.Notes
	if doc.Items != nil {
		items := make([]map[string]any, 0, len(doc.Items))
		for _, item := range doc.Items {
			items = append(items, map[string]any{
				"id": item.ID, "productId": item.ProductID, "locationId": item.LocationID,
				"quantity": item.Quantity, "unitPrice": item.UnitPrice,
			})
		}
		fields["items"] = items
	}
	return fields
}

func deliveryResponse(doc Delivery) map[string]any {
	fields := documentFields(doc.ID, doc.DocumentNumber, doc.Date, doc.Status, doc.CreatedBy, doc.ValidatedBy, doc.ValidatedAt, doc.CreatedAt)
	fields["reference"] = doc.Reference
	fields["notes"] = doc.Notes
	if doc.Items != nil {
		items := make([]map[string]any, 0, len(doc.Items))
		for _, item := range doc.Items {
			items = append(items, map[string]any{
				"id": item.ID, "productId": item.ProductID, "locationId": item.LocationID,
				"quantity": item.Quantity, "unitPrice": item.UnitPrice,
			})
		}
		fields["items"] = items
	}
	return fields
}

func transferResponse(doc Transfer) map[string]any {
	fields := documentFields(doc.ID, doc.DocumentNumber, doc.Date, doc.Status, doc.CreatedBy, doc.ValidatedBy, doc.ValidatedAt, doc.CreatedAt)
	fields["fromWarehouseId"] = doc.FromWarehouseID
	fields["toWarehouseId"] = doc.ToWarehouseID
	fields["notes"] = doc.Notes
	if doc.Items != nil {
		items := make([]map[string]any, 0, len(doc.Items))
		for _, item := range doc.Items {
			items = append(items, map[string]any{
				"id": item.ID, "productId": item.ProductID, "fromLocationId": item.FromLocationID,
				"toLocationId": item.ToLocationID, "quantity": item.Quantity,
			})
		}
		fields["items"] = items
	}
	return fields
}

func adjustmentResponse(doc Adjustment) map[string]any {
	fields := documentFields(doc.ID, doc.DocumentNumber, doc.Date, doc.Status, doc.CreatedBy, doc.ValidatedBy, doc.ValidatedAt, doc.CreatedAt)
	fields["reason"] = doc.Reason
	if doc.Items != nil {
		items := make([]map[string]any, 0, len(doc.Items))
		for _, item := range doc.Items {
			items = append(items, map[string]any{
				"id": item.ID, "productId": item.ProductID, "locationId": item.LocationID,
				"physicalCount": item.PhysicalCount, "difference": item.Difference,
			})
		}
		fields["items"] = items
	}
	return fields
}
