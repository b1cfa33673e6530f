package bridge

import (
	"context"
	"net/http"
	"time"
)

// healthResponse is the JSON response for GET /health.
type healthResponse struct {
	Status        string `json:"status"` // "ok" or "degraded"
	Backend       string `json:"backend"`
	Model         string `json:"model"`
	Sessions      int    `json:"sessions"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// handleHealth reports bridge and backend health. Returns 200 when the
// backend is reachable, 503 when it is not; the bridge itself keeps
// serving session reads either way.
func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{
			Status:   "ok",
			Backend:  "ok",
			Model:    s.backend.Model(),
			Sessions: s.manager.Len(),
		}
		if !s.startedAt.IsZero() {
			resp.UptimeSeconds = int64(time.Since(s.startedAt).Seconds())
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.backend.Health(ctx); err != nil {
			resp.Status = "degraded"
			resp.Backend = err.Error()
		}

		status := http.StatusOK
		if resp.Status == "degraded" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, resp)
	}
}
