package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/friendbet/internal/domain"
)

// AuditHandler serves the per-market audit trail.
type AuditHandler struct {
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewAuditHandler creates an AuditHandler.
func NewAuditHandler(audit domain.AuditStore, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{
		audit:  audit,
		logger: logger,
	}
}

type auditEntryView struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Trail returns the market's audit entries in append order.
// GET /api/markets/{id}/audit
func (h *AuditHandler) Trail(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	entries, err := h.audit.ListByMarket(r.Context(), id)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: audit trail failed",
			slog.Int64("market_id", id),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	views := make([]auditEntryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, auditEntryView{
			ID:        e.ID,
			Event:     e.Event,
			Detail:    e.Detail,
			CreatedAt: e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id,
		"entries":   views,
	})
}
