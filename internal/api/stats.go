package api

import (
	"net/http"
)

// statsResponse is the JSON response for GET /v1/stats.
type statsResponse struct {
	Total         int            `json:"total"`
	ByStatus      map[string]int `json:"by_status"`
	ByFailedKind  map[string]int `json:"by_failed_kind"`
	TimedOut      int            `json:"timed_out"`
	AvgDurationMS float64        `json:"avg_duration_ms"`
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetLoadStats(r.Context())
	if err != nil {
		s.logger.Error("get load stats", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	s.writeJSON(w, http.StatusOK, statsResponse{
		Total:         stats.Total,
		ByStatus:      stats.CountByStatus,
		ByFailedKind:  stats.CountByFailedKind,
		TimedOut:      stats.TimedOut,
		AvgDurationMS: stats.AvgDurationMS,
	})
}
