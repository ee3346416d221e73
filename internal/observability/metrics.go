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
			Name: "portal_chat_http_requests_total",
			Help: "Total number of HTTP requests processed by the chat service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "portal_chat_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	feedActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "portal_chat_feed_active_connections",
			Help: "Number of active change feed websocket connections.",
		},
	)
	feedEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_chat_feed_events_total",
			Help: "Total number of change feed events by kind.",
		},
		[]string{"event"},
	)
	feedReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "portal_chat_feed_reconnects_total",
			Help: "Total number of subscriber reconnect attempts.",
		},
	)
	signedURLsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_chat_signed_urls_total",
			Help: "Total number of signed URL issuances by outcome.",
		},
		[]string{"outcome"},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "portal_chat_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		feedActiveConnections,
		feedEventsTotal,
		feedReconnectsTotal,
		signedURLsTotal,
		amqpPublishErrorsTotal,
	)
}

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

func IncFeedActive() {
	feedActiveConnections.Inc()
}

func DecFeedActive() {
	feedActiveConnections.Dec()
}

func IncFeedEvent(event string) {
	feedEventsTotal.WithLabelValues(event).Inc()
}

func IncFeedReconnect() {
	feedReconnectsTotal.Inc()
}

func IncSignedURL(outcome string) {
	signedURLsTotal.WithLabelValues(outcome).Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
