// Package metrics exposes Prometheus collectors for the HTTP surface and the
// attempt lifecycle.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stemsi/exstem-attempt/internal/model"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	AttemptsStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attempts_started_total",
			Help: "Successful Start calls, split by whether an existing attempt was resumed",
		},
		[]string{"resumed"},
	)

	Submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attempt_submissions_total",
			Help: "Attempts finalized, by submit trigger",
		},
		[]string{"trigger"},
	)

	Violations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attempt_violations_total",
			Help: "Proctoring violations recorded, by type",
		},
		[]string{"type"},
	)

	SessionKicks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "attempt_session_kicks_total",
			Help: "Heartbeats answered with a kick because a newer session took over",
		},
	)

	ProgressSaves = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attempt_progress_saves_total",
			Help: "Autosave calls, by result",
		},
		[]string{"result"},
	)

	ExpiredSubmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "attempt_expired_submitted_total",
			Help: "Attempts finalized by the expiry sweeper",
		},
	)

	EventsPersisted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attempt_events_persisted_total",
			Help: "Attempt events written to the audit table, by write path",
		},
		[]string{"path"},
	)
)

var initOnce sync.Once

// Init registers all collectors with the default registry. Safe to call more
// than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			RequestCounter,
			RequestDuration,
			AttemptsStarted,
			Submissions,
			Violations,
			SessionKicks,
			ProgressSaves,
			ExpiredSubmitted,
			EventsPersisted,
		)
	})
}

// ViolationLabel bounds the label cardinality of client-supplied violation
// types. Unknown tags are counted as OTHER.
func ViolationLabel(violationType string) string {
	switch violationType {
	case model.ViolationFullscreenExit, model.ViolationTabSwitch,
		model.ViolationWindowBlur, model.ViolationCopyPaste:
		return violationType
	}
	return "OTHER"
}

// Middleware records request counts and latencies per route template.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}

		RequestCounter.WithLabelValues(
			c.Request.Method,
			endpoint,
			strconv.Itoa(c.Writer.Status()),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			endpoint,
		).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the Prometheus scrape endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
