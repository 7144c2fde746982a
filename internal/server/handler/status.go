package handler

import (
	"net/http"

	"github.com/ankhone/alpacahq-zipline/internal/strategy"
)

// SessionSource exposes the engine's current session.
type SessionSource interface {
	Session() *strategy.Session
}

// StatusHandler reports the running mode and the current session.
type StatusHandler struct {
	mode     string
	sessions SessionSource
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode string, sessions SessionSource) *StatusHandler {
	return &StatusHandler{mode: mode, sessions: sessions}
}

type statusResponse struct {
	Mode    string             `json:"mode"`
	Session *strategy.Snapshot `json:"session"`
}

// GetStatus returns the mode and, once planned, the session snapshot.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Mode: h.mode}
	if h.sessions != nil {
		if sess := h.sessions.Session(); sess != nil {
			snap := sess.Snapshot()
			resp.Session = &snap
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
