package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/coregx/mailbus"
)

// NewRouter mounts the API and the metrics endpoint.
// A nil gatherer leaves /metrics unmounted.
func NewRouter(h *Handler, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(loggingMiddleware(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/email", h.HandleSendEmail)
		r.Get("/health", h.HandleHealth)

		r.Get("/storage", h.HandleListStorage)
		r.Get("/storage/{bucket}", h.HandleGetBucket)
		r.Delete("/storage", h.HandleClearStorage)

		r.Get("/services/status", h.HandleServicesStatus)
		r.Get("/services/{name}", h.HandleGetService)
		r.Patch("/services/{name}/activate", h.HandleActivateService)
		r.Patch("/services/{name}/disable", h.HandleDisableService)
	})

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// loggingMiddleware logs HTTP requests.
func loggingMiddleware(logger mailbus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Infof("%s %s %d (%v, req=%s)", r.Method, r.URL.Path, ww.Status(), time.Since(start), middleware.GetReqID(r.Context()))
		})
	}
}
