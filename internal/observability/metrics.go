package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hub_http_requests_total",
			Help: "Total number of HTTP requests processed by the hub.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hub_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	wsActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hub_ws_active_connections",
			Help: "Number of active websocket connections.",
		},
	)
	inboundEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hub_inbound_events_total",
			Help: "Total number of inbound websocket events by action and outcome.",
		},
		[]string{"action", "status"},
	)
	fanoutPushesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hub_fanout_pushes_total",
			Help: "Total number of per-recipient push attempts by result.",
		},
		[]string{"result"},
	)
	taskPublishErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hub_task_publish_errors_total",
			Help: "Total number of background task publish errors.",
		},
		[]string{"routing_key"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		wsActiveConnections,
		inboundEventsTotal,
		fanoutPushesTotal,
		taskPublishErrorsTotal,
	)
}

// HTTPMetricsMiddleware records request counts and latencies per route.
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

func IncWSActive() {
	wsActiveConnections.Inc()
}

func DecWSActive() {
	wsActiveConnections.Dec()
}

func IncInboundEvent(action, status string) {
	inboundEventsTotal.WithLabelValues(action, status).Inc()
}

func IncFanoutPush(result string) {
	fanoutPushesTotal.WithLabelValues(result).Inc()
}

func IncTaskPublishError(routingKey string) {
	taskPublishErrorsTotal.WithLabelValues(routingKey).Inc()
}
