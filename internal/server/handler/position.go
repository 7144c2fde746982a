package handler

import (
	"log/slog"
	"net/http"

	"github.com/ankhone/alpacahq-zipline/internal/domain"
)

// PositionHandler serves the engine's positions and the broker portfolio.
type PositionHandler struct {
	sessions SessionSource
	trading  domain.Trading
	logger   *slog.Logger
}

// NewPositionHandler creates a PositionHandler. trading may be nil, which
// disables the portfolio endpoint.
func NewPositionHandler(sessions SessionSource, trading domain.Trading, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{sessions: sessions, trading: trading, logger: logger}
}

type listPositionsResponse struct {
	Positions []domain.Position `json:"positions"`
}

// ListPositions returns the positions the engine holds this session.
// GET /api/positions
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	positions := []domain.Position{}
	if sess := h.sessions.Session(); sess != nil {
		positions = append(positions, sess.Positions()...)
	}
	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: positions})
}

// GetPortfolio returns the broker's account value and holdings.
// GET /api/portfolio
func (h *PositionHandler) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	if h.trading == nil {
		writeError(w, http.StatusNotImplemented, "no broker configured")
		return
	}
	pf, err := h.trading.Portfolio(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: portfolio failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "failed to load portfolio")
		return
	}
	writeJSON(w, http.StatusOK, pf)
}
