package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	healthPath  = "/healthz"
	metricsPath = "/metrics"
)

// NewRouter создаёт chi router со всеми маршрутами API.
// metrics (опционально) обслуживает /metrics, обычно promhttp.Handler().
func (h *Handler) NewRouter(metrics http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(Recovery(h.logger))
	r.Use(Logging(h.logger))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		NotFound(w, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		MethodNotAllowed(w)
	})

	r.Get(healthPath, h.Health)
	if metrics != nil {
		r.Handle(metricsPath, metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/stats", h.GetStats)

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", h.ListTasks)
			r.Get("/{id}", h.GetTask)
			r.Get("/{id}/result", h.GetTaskResult)
			r.Post("/{id}/cancel", h.CancelTask)
		})

		r.Get("/runs/{run_id}/results", h.ListRunResults)
	})

	return r
}
