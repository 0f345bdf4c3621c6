package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	custommiddleware "github.com/mmeshcher/streak-tracker/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса стриков.
// gatherer отдаётся на /metrics; если он nil, маршрут не регистрируется.
func (h *Handler) SetupRouter(gatherer prometheus.Gatherer) *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.Logger(h.logger))
	r.Use(h.metrics.Middleware)

	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(custommiddleware.GzipMiddleware)
		r.Use(h.authMiddleware.Middleware)

		r.Route("/api/streak", func(r chi.Router) {
			r.Get("/", h.GetStatus)
			r.Post("/refresh", h.Refresh)
			r.Get("/milestones", h.GetMilestones)

			r.Group(func(r chi.Router) {
				if h.limiter != nil {
					r.Use(h.limiter.Middleware)
				}

				r.Post("/freezes/purchase", h.PurchaseFreeze)
				r.Post("/freezes/use", h.UseFreeze)
			})
		})

		r.Post("/api/session", h.SignIn)
		r.Delete("/api/session", h.SignOut)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
