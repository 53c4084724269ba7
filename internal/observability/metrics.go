package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors used by API and background flows.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal      *prometheus.CounterVec
	httpRequestDuration    *prometheus.HistogramVec
	documentsAcceptedTotal prometheus.Counter
	documentsRejectedTotal prometheus.Counter
	submissionsFailedTotal *prometheus.CounterVec
	submitDuration         prometheus.Histogram
	retryScheduledTotal    *prometheus.CounterVec
	retryCompletedTotal    *prometheus.CounterVec
	retryExhaustedTotal    *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "einvoice_engine",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "einvoice_engine",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		documentsAcceptedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "einvoice_engine",
				Name:      "documents_accepted_total",
				Help:      "Total number of documents accepted by the tax authority.",
			},
		),
		documentsRejectedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "einvoice_engine",
				Name:      "documents_rejected_total",
				Help:      "Total number of documents rejected by the tax authority.",
			},
		),
		submissionsFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "einvoice_engine",
				Name:      "submissions_failed_total",
				Help:      "Total number of submission calls that failed, by error kind.",
			},
			[]string{"kind"},
		),
		submitDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "einvoice_engine",
				Name:      "submit_duration_seconds",
				Help:      "Submission round-trip duration in seconds, retries included.",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
			},
		),
		retryScheduledTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "einvoice_engine",
				Name:      "retry_scheduled_total",
				Help:      "Total number of operations scheduled for retry.",
			},
			[]string{"operation"},
		),
		retryCompletedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "einvoice_engine",
				Name:      "retry_completed_total",
				Help:      "Total number of retries that eventually succeeded.",
			},
			[]string{"operation"},
		),
		retryExhaustedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "einvoice_engine",
				Name:      "retry_exhausted_total",
				Help:      "Total number of retry entries that ran out of budget.",
			},
			[]string{"operation"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.documentsAcceptedTotal,
		m.documentsRejectedTotal,
		m.submissionsFailedTotal,
		m.submitDuration,
		m.retryScheduledTotal,
		m.retryCompletedTotal,
		m.retryExhaustedTotal,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncDocumentAccepted() {
	if m == nil {
		return
	}
	m.documentsAcceptedTotal.Inc()
}

func (m *Metrics) IncDocumentRejected() {
	if m == nil {
		return
	}
	m.documentsRejectedTotal.Inc()
}

func (m *Metrics) IncSubmissionFailed(kind string) {
	if m == nil {
		return
	}
	m.submissionsFailedTotal.WithLabelValues(normalizeLabel(kind)).Inc()
}

func (m *Metrics) ObserveSubmitDuration(duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.submitDuration.Observe(seconds)
}

func (m *Metrics) IncRetryScheduled(operation string) {
	if m == nil {
		return
	}
	m.retryScheduledTotal.WithLabelValues(normalizeLabel(operation)).Inc()
}

func (m *Metrics) IncRetryCompleted(operation string) {
	if m == nil {
		return
	}
	m.retryCompletedTotal.WithLabelValues(normalizeLabel(operation)).Inc()
}

func (m *Metrics) IncRetryExhausted(operation string) {
	if m == nil {
		return
	}
	m.retryExhaustedTotal.WithLabelValues(normalizeLabel(operation)).Inc()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
