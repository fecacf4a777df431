package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	m := NewMetrics("node0")

	m.Iteration(2 * time.Second)
	m.Iteration(3 * time.Second)
	m.Published(true)
	m.Published(false)
	m.Published(false)
	m.NeighborUpdate("tag1")
	m.ResilienceAction("stop")
	m.State(3)
	m.Solution([]float64{1.5, 2})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.iterations))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.publishes))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.suppressed))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.runSeconds))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.neighborUpdates.WithLabelValues("tag1")))
	assert.Equal(t, 1.5, testutil.ToFloat64(m.solution.WithLabelValues("0")))
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics("node0")
	m.Iteration(time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `iterum_iterations_total{node="node0"} 1`))

	// registries are per node
	other := NewMetrics("node0")
	assert.NotSame(t, m.Registry(), other.Registry())
}
