package observability

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messenger_http_requests_total",
			Help: "Total number of HTTP requests processed by the messenger service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "messenger_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	wsActiveConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "messenger_ws_active_connections",
			Help: "Number of active websocket connections.",
		},
		[]string{"kind"},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messenger_ws_events_total",
			Help: "Total number of websocket events.",
		},
		[]string{"kind", "event"},
	)
	backplanePublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "messenger_backplane_publish_errors_total",
			Help: "Total number of backplane publish errors.",
		},
	)
	backplaneDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messenger_backplane_dropped_events_total",
			Help: "Events dropped because a subscriber could not keep up.",
		},
		[]string{"kind"},
	)
	fanoutPartialFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "messenger_read_fanout_partial_failures_total",
			Help: "Read-status fanout rows that failed to write.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		wsActiveConnections,
		wsEventsTotal,
		backplanePublishErrorsTotal,
		backplaneDroppedTotal,
		fanoutPartialFailuresTotal,
	)
}

// HTTPMetricsMiddleware records request counts and latency per route.
func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func IncWSActive(kind string) {
	wsActiveConnections.WithLabelValues(kind).Inc()
}

func DecWSActive(kind string) {
	wsActiveConnections.WithLabelValues(kind).Dec()
}

func IncWSEvent(kind, event string) {
	wsEventsTotal.WithLabelValues(kind, event).Inc()
}

func IncBackplanePublishError() {
	backplanePublishErrorsTotal.Inc()
}

// IncBackplaneDrop counts a dropped event; the group name is reduced to
// its kind prefix ("room", "user") to keep label cardinality bounded.
func IncBackplaneDrop(group string) {
	kind := group
	if i := strings.IndexByte(group, '.'); i > 0 {
		kind = group[:i]
	}
	backplaneDroppedTotal.WithLabelValues(kind).Inc()
}

func IncFanoutPartialFailure() {
	fanoutPartialFailuresTotal.Inc()
}
