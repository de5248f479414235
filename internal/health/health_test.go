package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollerCheck(t *testing.T) {
	ctx := context.Background()

	var last time.Time
	check := PollerCheck(func() time.Time { return last }, 5*time.Millisecond)

	assert.Equal(t, StatusUnknown, check(ctx).Status)

	last = time.Now()
	assert.Equal(t, StatusHealthy, check(ctx).Status)

	last = time.Now().Add(-time.Second)
	assert.Equal(t, StatusUnhealthy, check(ctx).Status)
}

func TestBlitterCheck(t *testing.T) {
	ctx := context.Background()
	var drops int64
	check := BlitterCheck(func() int64 { return drops }, 5)

	assert.Equal(t, StatusHealthy, check(ctx).Status)
	drops = 5
	res := check(ctx)
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Equal(t, int64(5), res.Details["consecutive_drops"])
}

func TestOverallStatus(t *testing.T) {
	c := NewChecker()
	c.RegisterFunc("poller", true, func(context.Context) CheckResult {
		return CheckResult{Status: StatusHealthy}
	})
	c.RegisterFunc("blitter", false, func(context.Context) CheckResult {
		return CheckResult{Status: StatusDegraded}
	})

	assert.Equal(t, StatusUnknown, c.OverallStatus(), "critical check not run yet")

	results := c.Check(context.Background())
	require.Len(t, results, 2)
	assert.Equal(t, StatusDegraded, c.OverallStatus())
	assert.Equal(t, []string{"blitter", "poller"}, c.Names())

	c.RegisterFunc("store", true, PingCheck(func(context.Context) error {
		return errors.New("disk I/O error")
	}))
	c.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, c.OverallStatus())
}

func TestCheckRecoversPanic(t *testing.T) {
	c := NewChecker()
	c.RegisterFunc("bad", true, func(context.Context) CheckResult {
		panic("boom")
	})

	res, ok := c.CheckComponent(context.Background(), "bad")
	require.True(t, ok)
	assert.Equal(t, StatusUnhealthy, res.Status)
	assert.Equal(t, "boom", res.Error)
}

func TestReadinessHandler(t *testing.T) {
	c := NewChecker()
	c.RegisterFunc("poller", true, func(context.Context) CheckResult {
		return CheckResult{Status: StatusHealthy}
	})
	mux := http.NewServeMux()
	c.Routes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	c.SetReady(true)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Contains(t, resp.Components, "poller")
}
