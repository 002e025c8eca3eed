package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.Upload("completed")
	m.Upload("completed")
	m.Upload("error")
	m.Failure("permanent")
	m.NotifyFailure()
	m.AdmissionWait(2 * time.Second)
	m.ObserveStage("geo", time.Now())

	assert.Equal(t, 2.0, testutil.ToFloat64(m.uploads.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.uploads.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("permanent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifyFailures))

	n, err := testutil.GatherAndCount(reg, "geoupload_worker_admission_wait_seconds", "geoupload_worker_stage_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMetrics_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := New(reg)
	require.NoError(t, err)
	b, err := New(reg)
	require.NoError(t, err)

	a.Upload("completed")
	b.Upload("completed")
	assert.Equal(t, 2.0, testutil.ToFloat64(a.uploads.WithLabelValues("completed")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.Upload("completed")
	m.Failure("x")
	m.ObserveStage("x", time.Now())
	m.AdmissionWait(time.Second)
	m.NotifyFailure()
}
