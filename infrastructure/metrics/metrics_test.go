package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"content-distributor/infrastructure/scheduler"
)

func TestObserversIncrementCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.TaskFinished("publish", scheduler.OutcomeRetried)
	m.TaskFinished("publish", scheduler.OutcomeRetried)
	m.TokenRefreshed("linkedin", "refreshed")
	m.Dispatched("facebook", "queued")
	m.PublishFinished("facebook", "published")
	m.MetricsRefreshed("twitter", false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Tasks.WithLabelValues("publish", "retried")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TokenRefreshes.WithLabelValues("linkedin", "refreshed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Dispatches.WithLabelValues("facebook", "queued")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PublishResults.WithLabelValues("facebook", "published")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MetricsRefreshes.WithLabelValues("twitter", "error")))
}

func TestGinMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New(prometheus.NewRegistry())
	r := gin.New()
	r.Use(m.GinMiddleware())
	r.GET("/api/platforms", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/platforms", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/api/platforms", "200")))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(w.Body)
	assert.Contains(t, string(body), `distributor_http_requests_total{code="200",method="GET",route="/api/platforms"} 1`)
}
