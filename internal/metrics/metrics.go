// Package metrics exposes prometheus counters for the generation pipeline.
//
//	coursegen_jobs_total{kind,outcome}       processor invocations by result
//	coursegen_job_duration_seconds{kind}     wall time of one invocation
//	coursegen_ai_requests_total{outcome}     provider calls: ok, error, invalid_json
//	coursegen_prompt_truncations_total       user prompts cut to fit the token budget
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector is safe to use as a nil pointer; every method is then a no-op.
type Collector struct {
	jobs        *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	aiRequests  *prometheus.CounterVec
	truncations prometheus.Counter
}

// NewCollector registers the pipeline metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coursegen_jobs_total",
			Help: "Generation job invocations by kind and outcome",
		}, []string{"kind", "outcome"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "coursegen_job_duration_seconds",
			Help:    "Time spent processing one generation job",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		}, []string{"kind"}),
		aiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coursegen_ai_requests_total",
			Help: "AI provider requests by outcome",
		}, []string{"outcome"}),
		truncations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coursegen_prompt_truncations_total",
			Help: "User prompts truncated to fit the token budget",
		}),
	}
	reg.MustRegister(c.jobs, c.jobDuration, c.aiRequests, c.truncations)
	return c
}

func (c *Collector) ObserveJob(kind, outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.jobs.WithLabelValues(kind, outcome).Inc()
	c.jobDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

func (c *Collector) AIRequest(outcome string) {
	if c == nil {
		return
	}
	c.aiRequests.WithLabelValues(outcome).Inc()
}

func (c *Collector) PromptTruncated() {
	if c == nil {
		return
	}
	c.truncations.Inc()
}

// Handler serves the registry in the prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
