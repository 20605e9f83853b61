package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"content-distributor/infrastructure/scheduler"
)

const namespace = "distributor"

// Metrics holds every Prometheus collector of the distributor.
type Metrics struct {
	gatherer prometheus.Gatherer

	// Fan-out and publishing
	Dispatches     *prometheus.CounterVec
	PublishResults *prometheus.CounterVec

	// Scheduler
	Tasks *prometheus.CounterVec

	// Token lifecycle
	TokenRefreshes *prometheus.CounterVec

	// Engagement metrics refresh
	MetricsRefreshes *prometheus.CounterVec

	// HTTP
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// New registers the collectors on reg. Pass a fresh prometheus.NewRegistry() in tests.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		gatherer: reg,
		Dispatches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatched_total",
			Help:      "Publish tasks produced by the fan-out, by platform and result.",
		}, []string{"platform", "result"}),
		PublishResults: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_results_total",
			Help:      "Publish attempts by platform and resulting record status.",
		}, []string{"platform", "status"}),
		Tasks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Finished task attempts by class and outcome.",
		}, []string{"class", "outcome"}),
		TokenRefreshes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_refreshes_total",
			Help:      "OAuth token refresh attempts by platform and outcome.",
		}, []string{"platform", "outcome"}),
		MetricsRefreshes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metrics_refreshes_total",
			Help:      "Engagement metrics refreshes by platform and result.",
		}, []string{"platform", "result"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "code"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "code"}),
	}
}

func (m *Metrics) TaskFinished(class string, outcome scheduler.Outcome) {
	m.Tasks.WithLabelValues(class, string(outcome)).Inc()
}

func (m *Metrics) TokenRefreshed(platform, outcome string) {
	m.TokenRefreshes.WithLabelValues(platform, outcome).Inc()
}

func (m *Metrics) Dispatched(platform, result string) {
	m.Dispatches.WithLabelValues(platform, result).Inc()
}

func (m *Metrics) PublishFinished(platform, status string) {
	m.PublishResults.WithLabelValues(platform, status).Inc()
}

func (m *Metrics) MetricsRefreshed(platform string, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	m.MetricsRefreshes.WithLabelValues(platform, result).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// GinMiddleware records request count and latency by route template.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		code := strconv.Itoa(c.Writer.Status())
		m.HTTPRequests.WithLabelValues(c.Request.Method, route, code).Inc()
		m.HTTPDuration.WithLabelValues(c.Request.Method, route, code).Observe(time.Since(start).Seconds())
	}
}
