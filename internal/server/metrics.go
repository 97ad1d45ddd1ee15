package server

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// #region metrics

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coherence_http_requests_total",
		Help: "HTTP requests by path and status code.",
	}, []string{"path", "code"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "coherence_http_request_seconds",
		Help:    "HTTP request latency by path.",
		Buckets: prometheus.DefBuckets,
	}, []string{"path"})

	appendsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coherence_ledger_appends_total",
		Help: "Entries appended through the HTTP surface.",
	})

	verifyFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coherence_trail_verify_failures_total",
		Help: "Trail verifications that reported tampering or broken chains.",
	})

	gateAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coherence_gate_attempts_total",
		Help: "Gate attempts by result.",
	}, []string{"result"})
)

// #endregion metrics

// #region middleware

// metricsMiddleware records request counts and latency per route.
func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		requestsTotal.WithLabelValues(path, strconv.Itoa(c.Writer.Status())).Inc()
		requestDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())
	}
}

// #endregion middleware
