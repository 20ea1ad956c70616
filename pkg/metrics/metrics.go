// package metrics exposes Prometheus collectors for the task engine and the
// HTTP surface.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TasksSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schemamigration_tasks_submitted_total",
			Help: "Total number of tasks submitted, by kind.",
		},
		[]string{"kind"},
	)

	TasksFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schemamigration_tasks_finished_total",
			Help: "Total number of tasks reaching a terminal state, by kind and state.",
		},
		[]string{"kind", "state"},
	)

	TasksRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "schemamigration_tasks_running",
			Help: "Number of task bodies currently executing.",
		},
	)

	TaskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "schemamigration_task_duration_seconds",
			Help:    "Task body execution duration in seconds, by kind.",
			Buckets: prometheus.ExponentialBuckets(0.1, 4, 8),
		},
		[]string{"kind"},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schemamigration_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "schemamigration_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

func init() {
	prometheus.MustRegister(
		TasksSubmitted,
		TasksFinished,
		TasksRunning,
		TaskDuration,
		httpRequestsTotal,
		httpRequestDuration,
	)
}

// Middleware records request count and duration for every HTTP request.
// Uses the gin route pattern (not the raw path) to avoid unbounded
// cardinality.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler returns the Prometheus metrics handler wrapped for gin.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
