package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Исходы checkout с заголовком Idempotency-Key.
const (
	IdempotencyStored     = "stored"
	IdempotencyReplayed   = "replayed"
	IdempotencyConflict   = "conflict"
	IdempotencyInProgress = "in_progress"
)

// HTTPMetrics содержит метрики HTTP API. Методы безопасно вызывать на nil.
type HTTPMetrics struct {
	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	idempotency *prometheus.CounterVec
}

// NewHTTPMetrics создаёт HTTP-метрики в глобальном registry.
func NewHTTPMetrics() *HTTPMetrics {
	return NewHTTPMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewHTTPMetricsWithRegisterer создаёт HTTP-метрики в переданном registry.
func NewHTTPMetricsWithRegisterer(registerer prometheus.Registerer) *HTTPMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &HTTPMetrics{
		requests: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "eshop_http_requests_total",
			Help: "Total number of HTTP API requests by route and status code",
		}, []string{"method", "route", "code"}),
		duration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "eshop_http_request_duration_seconds",
			Help:    "HTTP API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		idempotency: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "eshop_http_idempotent_requests_total",
			Help: "Checkout requests carrying Idempotency-Key by outcome",
		}, []string{"outcome"}),
	}
}

// ObserveRequest учитывает обработанный запрос. route должен быть шаблоном маршрута, а не сырым путём.
func (m *HTTPMetrics) ObserveRequest(method, route string, status int, started time.Time) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(method, route).Observe(time.Since(started).Seconds())
}

// ObserveIdempotency учитывает исход запроса с ключом идемпотентности.
func (m *HTTPMetrics) ObserveIdempotency(outcome string) {
	if m == nil {
		return
	}
	m.idempotency.WithLabelValues(outcome).Inc()
}
