package ledger

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stocktrail/stocktrail/internal/platform/httpx"
	"github.com/stocktrail/stocktrail/internal/shared"
)

// Handler serves read-only journal endpoints.
type Handler struct {
	logger  *slog.Logger
	journal *Journal
}

// NewHandler constructs the journal handler.
func NewHandler(logger *slog.Logger, journal *Journal) *Handler {
	return &Handler{logger: logger, journal: journal}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/document/{documentNumber}", h.listForDocument)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := Filter{
		ProductID:  parseInt(q.Get("productId")),
		LocationID: parseInt(q.Get("locationId")),
		Type:       EntryType(q.Get("type")),
		Page:       int(parseInt(q.Get("page"))),
		Limit:      int(parseInt(q.Get("limit"))),
	}
	if from := q.Get("startDate"); from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid startDate")
			return
		}
		filter.From = t
	}
	if to := q.Get("endDate"); to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid endDate")
			return
		}
		filter.To = t.Add(24*time.Hour - time.Nanosecond)
	}

	entries, total, err := h.journal.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list ledger", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data":       toResponses(entries),
		"pagination": shared.NewPagination(filter.Page, filter.Limit, total),
	})
}

func (h *Handler) listForDocument(w http.ResponseWriter, r *http.Request) {
	documentNumber := chi.URLParam(r, "documentNumber")
	entries, err := h.journal.ListForDocument(r.Context(), documentNumber)
	if err != nil {
		h.logger.Error("list ledger for document", slog.Any("error", err), slog.String("document", documentNumber))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": toResponses(entries)})
}

type entryResponse struct {
	ID             int64     `json:"id"`
	Date           time.Time `json:"date"`
	ProductID      int64     `json:"productId"`
	LocationID     int64     `json:"locationId"`
	Type           EntryType `json:"type"`
	DocumentNumber string    `json:"documentNumber"`
	Quantity       int64     `json:"quantity"`
	PreviousStock  int64     `json:"previousStock"`
	NewStock       int64     `json:"newStock"`
	UserID         int64     `json:"userId"`
	Notes          string    `json:"notes"`
}

func toResponses(entries []Entry) []entryResponse {
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryResponse{
			ID:             e.ID,
			Date:           e.Date,
			ProductID:      e.ProductID,
			LocationID:     e.LocationID,
			Type:           e.Type,
			DocumentNumber: e.DocumentNumber,
			Quantity:       e.Quantity,
			PreviousStock:  e.PreviousStock,
			NewStock:       e.NewStock,
			UserID:         e.UserID,
			Notes:          e.Notes,
		})
	}
	return out
}

func parseInt(s string) int64 {
	if s == "" {
		return 0
	}
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}
