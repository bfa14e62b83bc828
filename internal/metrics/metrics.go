// Package metrics defines the Prometheus collectors exported by the worker.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the job and step collectors.
type Metrics struct {
	Jobs         *prometheus.CounterVec
	JobDuration  *prometheus.HistogramVec
	StepDuration *prometheus.HistogramVec
}

// Terraform steps routinely run for minutes.
var durationBuckets = []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "provisioner_jobs_total",
			Help: "Completed provisioning jobs by flow and outcome.",
		}, []string{"flow", "outcome"}),
		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "provisioner_job_duration_seconds",
			Help:    "Wall-clock time of provisioning jobs.",
			Buckets: durationBuckets,
		}, []string{"flow"}),
		StepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "provisioner_step_duration_seconds",
			Help:    "Wall-clock time of individual terraform steps.",
			Buckets: durationBuckets,
		}, []string{"step"}),
	}
	reg.MustRegister(m.Jobs, m.JobDuration, m.StepDuration)
	return m
}

// ObserveFlow records a finished flow. Its signature matches jobs.FlowObserver.
func (m *Metrics) ObserveFlow(flow, outcome string, d time.Duration) {
	m.Jobs.WithLabelValues(flow, outcome).Inc()
	m.JobDuration.WithLabelValues(flow).Observe(d.Seconds())
}

// ObserveStep records a terraform step. Its signature matches
// terraform.StepObserver.
func (m *Metrics) ObserveStep(step string, d time.Duration, _ bool) {
	m.StepDuration.WithLabelValues(step).Observe(d.Seconds())
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
