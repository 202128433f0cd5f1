package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	emailsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_emails_sent_total",
			Help: "Total number of outreach emails sent",
		},
		[]string{"brand"},
	)

	emailsBounced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_emails_bounced_total",
			Help: "Total number of hard-bounced emails",
		},
		[]string{"brand"},
	)

	dealsClosed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_deals_closed_total",
			Help: "Total number of deals closed",
		},
		[]string{"status", "reason"},
	)

	aiCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_ai_calls_total",
			Help: "Total number of LLM calls",
		},
		[]string{"prompt_type", "outcome"},
	)
)

// Middleware records request counts and latencies per route
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())

		httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// RecordEmailSent counts one delivered outreach email
func RecordEmailSent(brand string) {
	emailsSent.WithLabelValues(brand).Inc()
}

// RecordEmailBounced counts one hard bounce
func RecordEmailBounced(brand string) {
	emailsBounced.WithLabelValues(brand).Inc()
}

// RecordDealClosed counts one deal closure by status and reason
func RecordDealClosed(status, reason string) {
	dealsClosed.WithLabelValues(status, reason).Inc()
}

// RecordAICall counts one LLM call by prompt type and outcome
func RecordAICall(promptType, outcome string) {
	aiCalls.WithLabelValues(promptType, outcome).Inc()
}
