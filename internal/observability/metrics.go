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

// Metrics stores Prometheus collectors used by the API and batch flows.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal      *prometheus.CounterVec
	httpRequestDuration    *prometheus.HistogramVec
	diplomasProcessedTotal prometheus.Counter
	diplomasFailedTotal    *prometheus.CounterVec
	batchDuration          prometheus.Histogram
	lookupDuration         prometheus.Histogram
	activeSessions         prometheus.Gauge
	sessionsSweptTotal     prometheus.Counter
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "diploma_engine",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "diploma_engine",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		diplomasProcessedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "diploma_engine",
				Name:      "diplomas_processed_total",
				Help:      "Total number of diplomas stamped successfully.",
			},
		),
		diplomasFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "diploma_engine",
				Name:      "diplomas_failed_total",
				Help:      "Total number of diploma items that failed, grouped by reason.",
			},
			[]string{"reason"},
		),
		batchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "diploma_engine",
				Name:      "batch_duration_seconds",
				Help:      "End-to-end batch processing duration in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
			},
		),
		lookupDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "diploma_engine",
				Name:      "registry_lookup_duration_seconds",
				Help:      "Student registry lookup duration in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),
		activeSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "diploma_engine",
				Name:      "active_sessions",
				Help:      "Current number of live processing sessions.",
			},
		),
		sessionsSweptTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "diploma_engine",
				Name:      "sessions_swept_total",
				Help:      "Total number of expired sessions removed by the sweeper.",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.diplomasProcessedTotal,
		m.diplomasFailedTotal,
		m.batchDuration,
		m.lookupDuration,
		m.activeSessions,
		m.sessionsSweptTotal,
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

func (m *Metrics) IncDiplomaProcessed() {
	if m == nil {
		return
	}
	m.diplomasProcessedTotal.Inc()
}

func (m *Metrics) IncDiplomaFailed(reason string) {
	if m == nil {
		return
	}
	reasonLabel := strings.TrimSpace(strings.ToLower(reason))
	if reasonLabel == "" {
		reasonLabel = "unknown"
	}
	m.diplomasFailedTotal.WithLabelValues(reasonLabel).Inc()
}

func (m *Metrics) ObserveBatchDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.batchDuration.Observe(nonNegativeSeconds(duration))
}

func (m *Metrics) ObserveLookupDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.lookupDuration.Observe(nonNegativeSeconds(duration))
}

func (m *Metrics) SetActiveSessions(count int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(count))
}

func (m *Metrics) AddSessionsSwept(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.sessionsSweptTotal.Add(float64(count))
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

func nonNegativeSeconds(duration time.Duration) float64 {
	seconds := duration.Seconds()
	if seconds < 0 {
		return 0
	}
	return seconds
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
