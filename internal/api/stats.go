package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/HammerLabML/atmn/internal/store"
)

// statsResponse is the JSON response for GET /v1/runs/{id}/stats.
type statsResponse struct {
	Total         int            `json:"total"`
	ByStatus      map[string]int `json:"by_status"`
	AvgDurationMS float64        `json:"avg_duration_ms"`
	PeakMemoryKB  int64          `json:"peak_memory_kb"`
}

func (s *Server) handleGetRunStats(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := s.store.GetRun(r.Context(), id); errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	} else if err != nil {
		s.logger.Error("get run", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}

	stats, err := s.store.GetRunStats(r.Context(), id)
	if err != nil {
		s.logger.Error("get run stats", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	s.writeJSON(w, http.StatusOK, statsResponse{
		Total:         stats.Total,
		ByStatus:      stats.CountByStatus,
		AvgDurationMS: stats.AvgDurationMS,
		PeakMemoryKB:  stats.PeakMemoryKB,
	})
}
