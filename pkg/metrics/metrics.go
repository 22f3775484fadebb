package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the Prometheus collectors for evaluation and backtest runs.
// ⭐ SSOT: 메트릭 정의는 여기서만
//
// All methods are nil-safe so components can be built without metrics.
type Registry struct {
	reg *prometheus.Registry

	RunsTotal       *prometheus.CounterVec
	RunDuration     *prometheus.HistogramVec
	ActiveRuns      prometheus.Gauge
	FitFallbacks    *prometheus.CounterVec
	MissingForecast *prometheus.CounterVec
	VolFloorEvents  prometheus.Counter
	CacheLookups    *prometheus.CounterVec
	JobRuns         *prometheus.CounterVec
}

// New creates a Registry backed by its own prometheus.Registry.
func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qval_runs_total",
				Help: "Total number of runs by kind and result",
			},
			[]string{"kind", "result"},
		),

		RunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "qval_run_duration_seconds",
				Help:    "Duration of a single run in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"kind"},
		),

		ActiveRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "qval_active_runs",
				Help: "Number of runs currently executing",
			},
		),

		FitFallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qval_fit_fallbacks_total",
				Help: "Fits that did not converge and reused the last converged parameters",
			},
			[]string{"family"},
		),

		MissingForecast: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qval_missing_forecasts_total",
				Help: "Dates withheld because of insufficient history or missing inputs",
			},
			[]string{"family"},
		),

		VolFloorEvents: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "qval_vol_floor_events_total",
				Help: "Sizing steps where trailing volatility was replaced by the floor",
			},
		),

		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qval_cache_lookups_total",
				Help: "Report cache lookups by result",
			},
			[]string{"cache", "result"},
		),

		JobRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qval_scheduled_jobs_total",
				Help: "Scheduled job executions by job and status",
			},
			[]string{"job", "status"},
		),
	}

	r.reg.MustRegister(
		r.RunsTotal,
		r.RunDuration,
		r.ActiveRuns,
		r.FitFallbacks,
		r.MissingForecast,
		r.VolFloorEvents,
		r.CacheLookups,
		r.JobRuns,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return r
}

// Handler exposes the registry for scraping.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// ObserveRun records the outcome and duration of a run.
func (r *Registry) ObserveRun(kind string, started time.Time, err error) {
	if r == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	r.RunsTotal.WithLabelValues(kind, result).Inc()
	r.RunDuration.WithLabelValues(kind).Observe(time.Since(started).Seconds())
}

// RunStarted increments the active-run gauge and returns a func that decrements it.
func (r *Registry) RunStarted() func() {
	if r == nil {
		return func() {}
	}
	r.ActiveRuns.Inc()
	return r.ActiveRuns.Dec
}

// FitFallback counts a non-converged fit.
func (r *Registry) FitFallback(family string) {
	if r == nil {
		return
	}
	r.FitFallbacks.WithLabelValues(family).Inc()
}

// ForecastMissing counts a withheld forecast.
func (r *Registry) ForecastMissing(family string) {
	if r == nil {
		return
	}
	r.MissingForecast.WithLabelValues(family).Inc()
}

// VolFloor counts a degenerate-volatility substitution.
func (r *Registry) VolFloor() {
	if r == nil {
		return
	}
	r.VolFloorEvents.Inc()
}

// CacheLookup records a cache hit or miss.
func (r *Registry) CacheLookup(cache string, hit bool) {
	if r == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	r.CacheLookups.WithLabelValues(cache, result).Inc()
}

// JobRun records one scheduled job execution after retries.
func (r *Registry) JobRun(job string, success bool) {
	if r == nil {
		return
	}
	status := "success"
	if !success {
		status = "error"
	}
	r.JobRuns.WithLabelValues(job, status).Inc()
}
