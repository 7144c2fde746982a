package handler

import (
	"log/slog"
	"net/http"

	"github.com/ankhone/alpacahq-zipline/internal/domain"
)

// AuditHandler lists recent engine decisions.
type AuditHandler struct {
	store  domain.AuditStore
	logger *slog.Logger
}

// NewAuditHandler creates an AuditHandler.
func NewAuditHandler(store domain.AuditStore, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{store: store, logger: logger}
}

type auditEntry struct {
	Event     string         `json:"event"`
	Symbol    string         `json:"symbol,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt string         `json:"created_at"`
}

// ListRecent returns the newest entries.
// GET /api/audit?limit=50
func (h *AuditHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	entries, err := h.store.ListRecent(r.Context(), parseLimit(r, 50, 500))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list audit failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list audit entries")
		return
	}
	out := make([]auditEntry, len(entries))
	for i, e := range entries {
		out[i] = auditEntry{
			Event:     e.Event,
			Symbol:    e.Symbol,
			Detail:    e.Detail,
			CreatedAt: e.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}
