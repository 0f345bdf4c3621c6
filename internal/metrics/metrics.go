// Package metrics содержит счётчики Prometheus сервиса стриков.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics объединяет метрики сервиса. Методы безопасны для nil-получателя.
type Metrics struct {
	statusFetches  *prometheus.CounterVec
	freezeOps      *prometheus.CounterVec
	activeSessions prometheus.Gauge
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	authRejections prometheus.Counter
}

// New создаёт метрики и регистрирует их в reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		statusFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "streak_status_fetches_total",
				Help: "Streak status resolutions by the source that produced them",
			},
			[]string{"source"},
		),
		freezeOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "streak_freeze_operations_total",
				Help: "Freeze purchases and uses by outcome",
			},
			[]string{"op", "outcome"},
		),
		activeSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "streak_active_sessions",
				Help: "Number of active per-user trackers",
			},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"path", "method", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path", "method"},
		),
		authRejections: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "auth_rejections_total",
				Help: "Total number of unauthorized requests",
			},
		),
	}

	reg.MustRegister(
		m.statusFetches,
		m.freezeOps,
		m.activeSessions,
		m.httpRequests,
		m.httpDuration,
		m.authRejections,
	)

	return m
}

// StatusFetched учитывает получение статуса из указанного источника.
func (m *Metrics) StatusFetched(source string) {
	if m == nil {
		return
	}
	m.statusFetches.WithLabelValues(source).Inc()
}

// FreezeOp учитывает результат операции с заморозкой.
func (m *Metrics) FreezeOp(op, outcome string) {
	if m == nil {
		return
	}
	m.freezeOps.WithLabelValues(op, outcome).Inc()
}

// SetActiveSessions выставляет число активных трекеров.
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware собирает метрики HTTP-запросов. Путь берётся из шаблона маршрута chi,
// чтобы не плодить метки.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rec, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}

		m.httpRequests.WithLabelValues(path, r.Method, strconv.Itoa(rec.statusCode)).Inc()
		m.httpDuration.WithLabelValues(path, r.Method).Observe(time.Since(start).Seconds())

		if rec.statusCode == http.StatusUnauthorized {
			m.authRejections.Inc()
		}
	})
}
