package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveRun(t *testing.T) {
	r := New()

	r.ObserveRun("backtest", time.Now(), nil)
	r.ObserveRun("backtest", time.Now(), errors.New("boom"))
	r.ObserveRun("evaluate", time.Now(), nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.RunsTotal.WithLabelValues("backtest", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.RunsTotal.WithLabelValues("backtest", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.RunsTotal.WithLabelValues("evaluate", "success")))
}

func TestCounters(t *testing.T) {
	r := New()

	r.FitFallback("ols")
	r.FitFallback("ols")
	r.ForecastMissing("ridge")
	r.VolFloor()
	r.CacheLookup("comparison", true)
	r.CacheLookup("comparison", false)
	r.JobRun("nightly", false)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.FitFallbacks.WithLabelValues("ols")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.MissingForecast.WithLabelValues("ridge")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.VolFloorEvents))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.CacheLookups.WithLabelValues("comparison", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.JobRuns.WithLabelValues("nightly", "error")))
}

func TestActiveRuns(t *testing.T) {
	r := New()

	done := r.RunStarted()
	assert.Equal(t, 1.0, testutil.ToFloat64(r.ActiveRuns))
	done()
	assert.Equal(t, 0.0, testutil.ToFloat64(r.ActiveRuns))
}

func TestNilRegistry(t *testing.T) {
	var r *Registry

	// nil registry must be a no-op
	r.ObserveRun("batch", time.Now(), nil)
	r.FitFallback("gbt")
	r.VolFloor()
	r.RunStarted()()
	r.CacheLookup("comparison", true)
	r.JobRun("nightly", true)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 404, rec.Code)
}

func TestHandler(t *testing.T) {
	r := New()
	r.VolFloor()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "qval_vol_floor_events_total 1"))
}
