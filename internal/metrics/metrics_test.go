package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kiranshivaraju/provisioner/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveFlow(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.ObserveFlow("create", "success", 3*time.Second)
	m.ObserveFlow("create", "success", time.Second)
	m.ObserveFlow("destroy", "failed", time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Jobs.WithLabelValues("create", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Jobs.WithLabelValues("destroy", "failed")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.JobDuration))
}

func TestObserveStep(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.ObserveStep("init", 2*time.Second, true)
	m.ObserveStep("apply", time.Minute, false)

	assert.Equal(t, 2, testutil.CollectAndCount(m.StepDuration))
}

func TestHandlerServesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.ObserveFlow("create", "error", time.Second)

	rec := httptest.NewRecorder()
	metrics.Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `provisioner_jobs_total{flow="create",outcome="error"} 1`)
}

func TestNewPanicsOnDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics.New(reg)
	assert.Panics(t, func() { metrics.New(reg) })
}
