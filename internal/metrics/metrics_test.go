package metrics

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryReturnsExistingMetric(t *testing.T) {
	r := NewRegistry("pocketd", "")

	a := r.RegisterCounter("frames_total", "frames")
	b := r.RegisterCounter("frames_total", "frames")
	require.Same(t, a, b)
	assert.Equal(t, "pocketd_frames_total", a.Name())

	g := NewRegistry("pocketd", "input").RegisterGauge("lines", "lines")
	assert.Equal(t, "pocketd_input_lines", g.Name())
}

func TestHistogramBucketsAreCumulativeOnce(t *testing.T) {
	r := NewRegistry("", "")
	h := r.RegisterHistogram("blit", "blit", []float64{0.001, 0.01})

	h.Observe(0.0005)
	h.Observe(0.005)
	h.ObserveDuration(50 * time.Millisecond)

	var buf bytes.Buffer
	require.NoError(t, r.WritePrometheus(&buf))
	out := buf.String()

	assert.Contains(t, out, `blit_bucket{le="0.001"} 1`)
	assert.Contains(t, out, `blit_bucket{le="0.01"} 2`)
	assert.Contains(t, out, `blit_bucket{le="+Inf"} 3`)
	assert.Contains(t, out, "blit_count 3")
	assert.Equal(t, uint64(3), h.Count())
}

func TestWritePrometheusSorted(t *testing.T) {
	r := NewRegistry("x", "")
	r.RegisterCounter("b_total", "b").Add(2)
	r.RegisterCounter("a_total", "a").Inc()
	r.RegisterGauge("g", "g").Set(-4)

	var buf bytes.Buffer
	require.NoError(t, r.WritePrometheus(&buf))
	out := buf.String()

	assert.Less(t, strings.Index(out, "x_a_total 1"), strings.Index(out, "x_b_total 2"))
	assert.Contains(t, out, "# TYPE x_g gauge\nx_g -4\n")
}

func TestHTTPHandlerJSON(t *testing.T) {
	m := NewConsoleMetrics(nil)
	m.FramesPresented.Add(7)
	m.FramesDropped.Inc()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	m.Registry().HTTPHandler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(7), body["pocketd_frames_presented_total"])
	assert.Equal(t, float64(1), body["pocketd_frames_dropped_total"])
}

func TestHTTPHandlerText(t *testing.T) {
	m := NewConsoleMetrics(nil)
	m.PollCycles.Add(3)

	rec := httptest.NewRecorder()
	m.Registry().HTTPHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, rec.Body.String(), "pocketd_poll_cycles_total 3")
}
