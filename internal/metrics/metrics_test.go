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

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveTask("fetched")
		m.ObserveResolution(true)
		m.ObserveFetch(time.Second, 10)
	})
	assert.NotNil(t, m.Handler())
}

func TestCountersAndHandler(t *testing.T) {
	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)

	m.ObserveTask("fetched")
	m.ObserveTask("fetched")
	m.ObserveTask("failed")
	m.ObserveResolution(false)
	m.ObserveFetch(120*time.Millisecond, 20000)
	m.ObserveFetch(80*time.Millisecond, 0)

	assert.InDelta(t, 2, testutil.ToFloat64(m.Tasks.WithLabelValues("fetched")), 0.001)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Tasks.WithLabelValues("failed")), 0.001)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Resolutions.WithLabelValues("missing")), 0.001)
	assert.InDelta(t, 20000, testutil.ToFloat64(m.BytesWritten), 0.001)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "carimages_tasks_total"))
}

func TestDoubleRegistrationFails(t *testing.T) {
	registry := prometheus.NewRegistry()
	_, err := New(registry)
	require.NoError(t, err)
	_, err = New(registry)
	assert.Error(t, err)
}
