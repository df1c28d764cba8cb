package metric

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/dataforge/errors"
)

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	require.NotNil(t, r.Core)
	require.NotNil(t, r.PrometheusRegistry())
}

func TestRegisterAndUnregister(t *testing.T) {
	r := NewRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_component_ops_total",
		Help: "test counter",
	})

	require.NoError(t, r.Register("batch", "ops_total", counter))
	assert.True(t, r.Unregister("batch", "ops_total"))
	assert.False(t, r.Unregister("batch", "ops_total"))
}

func TestRegisterDuplicate(t *testing.T) {
	r := NewRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_dup_total",
		Help: "test counter",
	})

	require.NoError(t, r.Register("stream", "dup_total", counter))
	err := r.Register("stream", "dup_total", counter)
	require.Error(t, err)
	assert.True(t, errors.IsInvalidState(err))
}

func TestCoreMetricsRecord(t *testing.T) {
	r := NewRegistry()

	// Exercise all helpers; gathering must not error
	r.Core.RecordPipelineStatus("p1", 1)
	r.Core.RecordTick("p1", "batch", 100, 2, 4096, 50*time.Millisecond)
	r.Core.RecordSourceHealth("s1", true)
	r.Core.RecordStreamBuffer("sub1", 42)
	r.Core.RecordBackpressure("sub1", "drop")
	r.Core.RecordEventDropped()

	families, err := r.PrometheusRegistry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestHandlerServesMetrics(t *testing.T) {
	r := NewRegistry()
	r.Core.RecordPipelineStatus("p1", 1)

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
