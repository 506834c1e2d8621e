package api

import (
	"net/http"
	"time"
)

// StatsProvider reports service statistics as a flat map.
type StatsProvider interface {
	GetStats() map[string]interface{}
}

// StatsHandler serves GET /stats.
type StatsHandler struct {
	statsProvider StatsProvider
	registeredAt  time.Time
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(statsProvider StatsProvider) *StatsHandler {
	return &StatsHandler{statsProvider: statsProvider, registeredAt: time.Now()}
}

// HandleStats writes the provider's stats plus the API uptime in seconds.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	stats := h.statsProvider.GetStats()
	out := make(map[string]interface{}, len(stats)+1)
	for k, v := range stats {
		out[k] = v
	}
	out["apiUptimeSeconds"] = int64(time.Since(h.registeredAt).Seconds())
	writeJSON(w, http.StatusOK, out)
}
