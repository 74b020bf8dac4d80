package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveJob(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.ObserveJob("syllabus", "completed", 2*time.Second)
	c.ObserveJob("syllabus", "completed", time.Second)
	c.ObserveJob("content", "failed", time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.jobs.WithLabelValues("syllabus", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.jobs.WithLabelValues("content", "failed")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.jobDuration))
}

func TestAIRequestsAndTruncations(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.AIRequest("ok")
	c.AIRequest("invalid_json")
	c.PromptTruncated()

	assert.Equal(t, 1.0, testutil.ToFloat64(c.aiRequests.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.truncations))
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.ObserveJob("content", "completed", time.Second)
		c.AIRequest("ok")
		c.PromptTruncated()
	})
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.AIRequest("error")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `coursegen_ai_requests_total{outcome="error"} 1`))
}
