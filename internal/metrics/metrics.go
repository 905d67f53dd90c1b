package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callout_http_requests_total",
			Help: "Total HTTP requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "callout_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	alertsTriggered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callout_alerts_triggered_total",
			Help: "Total alerts triggered by category",
		},
		[]string{"category"},
	)

	deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callout_deliveries_total",
			Help: "Delivery attempts by channel and outcome",
		},
		[]string{"channel", "outcome"},
	)

	deliveryRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callout_delivery_retries_total",
			Help: "Retry attempts by channel",
		},
		[]string{"channel"},
	)

	deliveriesExhausted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callout_deliveries_exhausted_total",
			Help: "Deliveries that consumed their full retry budget",
		},
		[]string{"channel"},
	)

	deliveryLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "callout_delivery_latency_seconds",
			Help:    "Time from alert creation to confirmed delivery",
			Buckets: []float64{.1, .5, 1, 2, 5, 10, 30, 60, 300},
		},
		[]string{"channel"},
	)

	idempotencyHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "callout_idempotency_hits_total",
			Help: "Alert triggers served from the idempotency cache",
		},
	)

	rateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callout_rate_limit_rejections_total",
			Help: "Requests rejected by the rate limiter",
		},
		[]string{"user_id"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records HTTP request metrics.
func RecordRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordAlertTriggered records a triggered alert.
func RecordAlertTriggered(category string) {
	alertsTriggered.WithLabelValues(category).Inc()
}

// RecordDelivery records a delivery attempt outcome ("sent"/"failed").
func RecordDelivery(channel, outcome string) {
	deliveries.WithLabelValues(channel, outcome).Inc()
}

// RecordRetry records a retry attempt.
func RecordRetry(channel string) {
	deliveryRetries.WithLabelValues(channel).Inc()
}

// RecordExhausted records a delivery that ran out of retries.
func RecordExhausted(channel string) {
	deliveriesExhausted.WithLabelValues(channel).Inc()
}

// RecordDeliveryLatency records creation-to-delivery time.
func RecordDeliveryLatency(channel string, latency time.Duration) {
	deliveryLatency.WithLabelValues(channel).Observe(latency.Seconds())
}

// RecordIdempotencyHit records a trigger replayed from cache.
func RecordIdempotencyHit() {
	idempotencyHits.Inc()
}

// RecordRateLimitRejection records a rate limit rejection.
func RecordRateLimitRejection(userID string) {
	rateLimitRejections.WithLabelValues(userID).Inc()
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		RecordRequest(r.Method, r.URL.Path, wrapped.status, time.Since(start))
	})
}
