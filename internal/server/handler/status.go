package handler

import (
	"net/http"
	"time"
)

// StatusHandler serves the backend status for the dashboard.
type StatusHandler struct {
	Mode        string
	ChainID     int64
	BondFactory string
	StartedAt   time.Time
	Sessions    func() int
}

// GetStatus responds with the current mode, chain and live session count.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	sessions := 0
	if h.Sessions != nil {
		sessions = h.Sessions()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.Mode,
		"chain_id":       h.ChainID,
		"bond_factory":   h.BondFactory,
		"uptime_seconds": int64(time.Since(h.StartedAt).Seconds()),
		"sessions":       sessions,
	})
}
