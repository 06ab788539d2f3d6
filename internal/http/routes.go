package httpx

import (
	"log/slog"
	"net/http"

	"github.com/planlab/evalplan-api/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Jobs *service.JobService

	// MaxBodyBytes caps accepted request body sizes; 0 disables the cap.
	MaxBodyBytes int64
	Logger       *slog.Logger // Logger for request logging and panics (optional)
}

// NewRouter creates and configures a new HTTP router.
func NewRouter(services RouterServices) http.Handler {
	mux := http.NewServeMux()

	jobHandlers := &JobHandlers{Svc: services.Jobs}
	healthHandlers := &HealthHandlers{Svc: services.Jobs}

	registerJobRoutes(mux, jobHandlers)
	mux.HandleFunc("GET /healthz", healthHandlers.Health)
	mux.HandleFunc("HEAD /healthz", healthHandlers.Health)

	var handler http.Handler = mux
	handler = MaxBody(services.MaxBodyBytes)(handler)
	if services.Logger != nil {
		handler = Logging(services.Logger)(handler)
		handler = Recover(services.Logger)(handler)
	}
	return handler
}

func registerJobRoutes(mux *http.ServeMux, h *JobHandlers) {
	mux.HandleFunc("POST /api/jobs", h.CreateJob)
	mux.HandleFunc("GET /api/jobs/stats", h.Stats)
	mux.HandleFunc("GET /api/jobs/{id}", h.GetStatus)
}
