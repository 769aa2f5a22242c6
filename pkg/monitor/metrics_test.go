package monitor

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMonitor(t *testing.T) *Monitor {
	t.Helper()
	log, _ := test.NewNullLogger()
	m, err := New(log)
	require.NoError(t, err)
	return m
}

func TestNew_RegistersCollectors(t *testing.T) {
	m := newTestMonitor(t)

	SamplingRate.Set(1000)
	count, err := testutil.GatherAndCount(m.Registry(), "bpm_sampling_rate_hz")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Each monitor has its own registry.
	newTestMonitor(t)
}

func TestRegisterQueueDepth(t *testing.T) {
	m := newTestMonitor(t)
	depth := 7
	require.NoError(t, m.RegisterQueueDepth(func() int { return depth }))

	expected := `
# HELP bpm_bridge_queue_depth Scalar updates waiting for the display
# TYPE bpm_bridge_queue_depth gauge
bpm_bridge_queue_depth 7
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "bpm_bridge_queue_depth"))

	assert.Error(t, m.RegisterQueueDepth(func() int { return 0 }))
}

func TestHandler(t *testing.T) {
	m := newTestMonitor(t)
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))

	SamplesRead.Inc()
	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), "bpm_samples_read_total")
}

func TestSampleRuntime(t *testing.T) {
	m := newTestMonitor(t)
	m.sampleRuntime()
	assert.Greater(t, testutil.ToFloat64(GoroutineCount), 0.0)
	assert.Greater(t, testutil.ToFloat64(MemoryUsage), 0.0)
}
