package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	WsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "loveroom_ws_connections",
		Help: "Current number of active websocket connections",
	})
	SpacesCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "loveroom_spaces_created_total",
		Help: "Total number of spaces created",
	})
	MessagesAppended = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "loveroom_messages_appended_total",
		Help: "Total number of messages appended, by message type",
	}, []string{"type"})
	PollFetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "loveroom_poll_fetches_total",
		Help: "Total number of poll fetches, by result",
	}, []string{"result"})
	AIRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "loveroom_ai_requests_total",
		Help: "Total number of AI advisory requests, by kind and outcome",
	}, []string{"kind", "outcome"})
	HttpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
	HttpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

func init() {
	prometheus.MustRegister(WsConnections, SpacesCreated, MessagesAppended, PollFetches, AIRequests, HttpRequestsTotal, HttpRequestDuration)
}

// GinMiddleware 统计基础请求指标，供 Prometheus 拉取。
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		labels := prometheus.Labels{"method": c.Request.Method, "path": path, "status": status}
		HttpRequestsTotal.With(labels).Inc()
		HttpRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	}
}
