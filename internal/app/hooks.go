package app

import (
	"context"
	"log/slog"

	"github.com/stocktrail/stocktrail/internal/movement"
	"github.com/stocktrail/stocktrail/internal/observability"
	"github.com/stocktrail/stocktrail/internal/stock"
)

// MovementHooks reacts to movement engine outcomes: cached stock listings
// are invalidated and the applied/failure counters are bumped.
type MovementHooks struct {
	Logger  *slog.Logger
	Stock   *stock.Service
	Metrics *observability.Metrics
}

// MovementPosted implements movement.Hooks.
func (h *MovementHooks) MovementPosted(ctx context.Context, evt movement.MovementPostedEvent) {
	if h == nil {
		return
	}
	if h.Stock != nil {
		if err := h.Stock.Invalidate(ctx); err != nil && h.Logger != nil {
			h.Logger.Warn("invalidate stock cache",
				slog.String("document", evt.DocumentNumber),
				slog.Any("error", err),
			)
		}
	}
	if h.Metrics != nil {
		h.Metrics.CountMovementApplied(string(evt.Kind))
	}
}

// MovementFailed implements movement.Hooks.
func (h *MovementHooks) MovementFailed(ctx context.Context, kind movement.DocumentKind, reason string) {
	if h == nil || h.Metrics == nil {
		return
	}
	h.Metrics.CountMovementFailure(reason)
}
