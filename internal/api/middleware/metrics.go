// Package middleware provides HTTP middleware components for the gateway
// server. This file contains Prometheus metrics middleware for observability.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// httpRequestsTotal counts the total number of HTTP requests processed.
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentgate_http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDurationSeconds tracks the duration of HTTP requests.
	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agentgate_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// httpRequestSizeBytes tracks the size of HTTP request bodies.
	httpRequestSizeBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agentgate_http_request_size_bytes",
			Help:    "Size of HTTP request bodies in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 6), // 100B to 10MB
		},
		[]string{"method", "path"},
	)

	// activeConnections tracks the number of currently active connections.
	activeConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "agentgate_active_connections",
			Help: "Number of currently active HTTP connections",
		},
	)

	// activeConnectionsCount provides atomic access to the connection count.
	activeConnectionsCount int64

	// upstreamRequestsTotal counts calls forwarded to the backend agent
	// service, grouped by logical endpoint and upstream status.
	upstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentgate_upstream_requests_total",
			Help: "Total requests forwarded to the backend agent service",
		},
		[]string{"endpoint", "status"},
	)

	// upstreamUnreachableTotal counts transport-level upstream failures.
	upstreamUnreachableTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentgate_upstream_unreachable_total",
			Help: "Total upstream calls that failed at the transport level",
		},
		[]string{"endpoint"},
	)

	// activeStreams tracks stream relays currently held open.
	activeStreams = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "agentgate_active_streams",
			Help: "Number of stream relays currently open",
		},
	)

	// streamDurationSeconds tracks how long stream relays stay open.
	streamDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agentgate_stream_duration_seconds",
			Help:    "Duration of stream relays in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~3.5min
		},
	)

	// metricsRegistered ensures metrics are only registered once.
	metricsRegistered atomic.Bool
	metricsEnabled    atomic.Bool
)

// SetMetricsEnabled toggles Prometheus metrics collection.
func SetMetricsEnabled(enabled bool) {
	metricsEnabled.Store(enabled)
}

// IsMetricsEnabled reports whether metrics are enabled.
func IsMetricsEnabled() bool {
	return metricsEnabled.Load()
}

// RegisterMetrics registers all Prometheus metrics.
// It is safe to call multiple times; metrics will only be registered once.
func RegisterMetrics() {
	if !metricsRegistered.CompareAndSwap(false, true) {
		return
	}

	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDurationSeconds,
		httpRequestSizeBytes,
		activeConnections,
		upstreamRequestsTotal,
		upstreamUnreachableTotal,
		activeStreams,
		streamDurationSeconds,
	)
}

// PrometheusMiddleware returns a Gin middleware that collects Prometheus
// metrics for HTTP requests including request count, duration, and active
// connections.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsMetricsEnabled() {
			c.Next()
			return
		}
		RegisterMetrics()

		// Skip metrics endpoint to avoid self-referential metrics
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		atomic.AddInt64(&activeConnectionsCount, 1)
		activeConnections.Inc()
		defer func() {
			atomic.AddInt64(&activeConnectionsCount, -1)
			activeConnections.Dec()
		}()

		// Normalize path for metrics to avoid high cardinality
		path := normalizePath(c.Request.URL.Path)
		method := c.Request.Method

		if c.Request.ContentLength > 0 {
			httpRequestSizeBytes.WithLabelValues(method, path).Observe(float64(c.Request.ContentLength))
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start).Seconds()

		status := strconv.Itoa(c.Writer.Status())
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDurationSeconds.WithLabelValues(method, path).Observe(duration)
	}
}

// normalizePath normalizes URL paths to prevent high cardinality in metrics.
// It replaces dynamic path segments with placeholders.
func normalizePath(path string) string {
	switch {
	case path == "/":
		return "/"
	case path == "/healthz":
		return "/healthz"
	case path == "/metrics":
		return "/metrics"
	case path == "/agent/agents":
		return "/agent/agents"
	case path == "/agent/inbox":
		return "/agent/inbox"
	case path == "/agent/chats":
		return "/agent/chats"
	case strings.HasPrefix(path, "/agent/chats/") && strings.HasSuffix(path, "/messages/stream"):
		return "/agent/chats/:chat_id/messages/stream"
	case strings.HasPrefix(path, "/agent/chats/") && strings.HasSuffix(path, "/messages"):
		return "/agent/chats/:chat_id/messages"
	case strings.HasPrefix(path, "/agent/chats/"):
		return "/agent/chats/:chat_id"
	default:
		if len(path) > 50 {
			return path[:50] + "..."
		}
		return path
	}
}

// MetricsHandler returns the Prometheus HTTP handler for the /metrics endpoint.
func MetricsHandler() gin.HandlerFunc {
	handler := promhttp.Handler()
	return func(c *gin.Context) {
		if !IsMetricsEnabled() {
			c.AbortWithStatus(http.StatusNotFound)
			return
		}
		RegisterMetrics()
		handler.ServeHTTP(c.Writer, c.Request)
	}
}

// GetActiveConnections returns the current number of active connections.
func GetActiveConnections() int64 {
	return atomic.LoadInt64(&activeConnectionsCount)
}

// RecordUpstreamRequest records one forwarded call's outcome. endpoint is a
// short logical name, status the upstream HTTP status.
func RecordUpstreamRequest(endpoint string, status int) {
	if !IsMetricsEnabled() {
		return
	}
	upstreamRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
}

// RecordUpstreamUnreachable records a transport-level upstream failure.
func RecordUpstreamUnreachable(endpoint string) {
	if !IsMetricsEnabled() {
		return
	}
	upstreamUnreachableTotal.WithLabelValues(endpoint).Inc()
}

// RecordStreamOpened marks one stream relay as open.
func RecordStreamOpened() {
	if !IsMetricsEnabled() {
		return
	}
	activeStreams.Inc()
}

// RecordStreamClosed marks one stream relay as finished and observes how long
// it stayed open.
func RecordStreamClosed(duration time.Duration) {
	if !IsMetricsEnabled() {
		return
	}
	activeStreams.Dec()
	streamDurationSeconds.Observe(duration.Seconds())
}
