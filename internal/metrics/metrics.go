package metrics

import (
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
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

	// Submissions counts graded attempts by submission_status.
	Submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exam_submissions_total",
			Help: "Graded exam submissions by submission status",
		},
		[]string{"status"},
	)

	// SubmissionRejections counts refused submissions by reason.
	SubmissionRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exam_submission_rejections_total",
			Help: "Refused exam submissions by reason",
		},
		[]string{"reason"},
	)

	// LiveSessions is the number of server-hosted attempt sessions.
	LiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "exam_live_sessions",
			Help: "Attempt sessions currently hosted over WebSocket",
		},
	)

	// QueueDepth is the backlog of a persistence queue, sampled by workers.
	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "exam_persist_queue_depth",
			Help: "Items waiting in a persistence queue",
		},
		[]string{"queue"},
	)
)

var once sync.Once

// Init registers all collectors. Safe to call more than once.
func Init() {
	once.Do(func() {
		prometheus.MustRegister(
			RequestCounter,
			RequestDuration,
			Submissions,
			SubmissionRejections,
			LiveSessions,
			QueueDepth,
		)
	})
}

// Handler exposes the default registry.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
