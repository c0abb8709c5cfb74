package httpapi

import "net/http"

// handlePerfLatency exposes the rolling per-stage latency window so a
// developer can watch recognize/completion/synthesis timings drift without
// scraping Prometheus. `?reset=1` clears the window for a fresh measurement
// run.
func (s *Server) handlePerfLatency(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		respondJSON(w, http.StatusOK, map[string]any{
			"generated_at": "",
			"window_size":  0,
			"stages":       []any{},
		})
		return
	}
	if r.URL.Query().Get("reset") == "1" {
		s.metrics.ResetTurnStages()
	}
	respondJSON(w, http.StatusOK, s.metrics.SnapshotTurnStages())
}
