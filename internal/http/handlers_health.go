package httpx

import (
	"net/http"

	"github.com/planlab/evalplan-api/internal/service"
)

// HealthHandlers provides readiness/liveness checks backed by the job store.
type HealthHandlers struct {
	Svc *service.JobService
}

// Health runs a trivial store query and reports 200 when it succeeds,
// 503 when the store is unreachable.
func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Svc.Health(r.Context()); err != nil {
		WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":  "unavailable",
			"message": err.Error(),
		})
		return
	}

	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
