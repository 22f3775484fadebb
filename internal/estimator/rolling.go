package estimator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/wonny/qval/internal/contracts"
	"github.com/wonny/qval/pkg/metrics"
)

// Estimate is the parameter set usable at Date. Params is nil when withheld.
// SpanEnd is always strictly before Date.
type Estimate struct {
	Date      time.Time `json:"date"`
	Params    *Params   `json:"params,omitempty"`
	SpanStart time.Time `json:"span_start,omitempty"`
	SpanEnd   time.Time `json:"span_end,omitempty"`
	Obs       int       `json:"obs"`
	Fallback  bool      `json:"fallback,omitempty"`
}

// FitEvent records a non-converged fit and the policy applied.
type FitEvent struct {
	Date        time.Time `json:"date"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	Error       string    `json:"error"`
	Fallback    bool      `json:"fallback"` // false when no converged params existed yet
}

// Result is the full output of one estimator run.
type Result struct {
	Model     string               `json:"model"`
	Estimates []Estimate           `json:"estimates"`
	Forecasts []contracts.Forecast `json:"forecasts"`
	Events    []FitEvent           `json:"events,omitempty"`
	Missing   int                  `json:"missing"`
	Last      *Params              `json:"last,omitempty"`
}

// Estimator produces lag-safe parameters and forecasts for one model spec.
// ⭐ SSOT: 파라미터는 항상 사용 시점 이전 데이터로만 추정
type Estimator struct {
	spec    contracts.ModelSpec
	reg     Regressor
	log     zerolog.Logger
	metrics *metrics.Registry
}

// NewEstimator validates the spec and builds its regressor.
func NewEstimator(spec contracts.ModelSpec, log zerolog.Logger, m *metrics.Registry) (*Estimator, error) {
	if err := spec.Window.Validate(); err != nil {
		return nil, fmt.Errorf("model %s: %w", spec.Name, err)
	}
	reg, err := New(spec)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", spec.Name, err)
	}
	return &Estimator{
		spec:    spec,
		reg:     reg,
		log:     log.With().Str("component", "estimator").Str("model", spec.Name).Logger(),
		metrics: m,
	}, nil
}

// Spec returns the model spec.
func (e *Estimator) Spec() contracts.ModelSpec {
	return e.spec
}

// fitState is the parameter set currently in force.
type fitState struct {
	params     *Params
	start, end int
	obs        int
	fallback   bool
}

// Run walks the design once in date order.
//
//   - rolling: params at t are fit on complete rows in [t-W, t)
//   - expanding: params at t are fit on complete rows in [0, t)
//   - static: params are fit once on [0, split) and used for t >= split
//
// Fewer than MinObs complete rows leaves the date without params. A non-converged
// fit falls back to the last converged params and is logged.
func (e *Estimator) Run(ctx context.Context, d *Design, split int) (*Result, error) {
	n := d.Len()
	res := &Result{
		Model:     e.spec.Name,
		Estimates: make([]Estimate, n),
		Forecasts: make([]contracts.Forecast, n),
	}

	minObs := e.spec.MinObs()
	refitEvery := e.spec.Window.RefitEvery
	if refitEvery < 1 {
		refitEvery = 1
	}

	if e.spec.Window.Mode == contracts.ModeStatic && split <= 0 {
		return nil, fmt.Errorf("%w: static model %s needs a training partition", ErrInsufficientData, e.spec.Name)
	}

	var current, lastGood *fitState
	lastFit := -1

	for t := 0; t < n; t++ {
		if t%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		lo, hi, due := e.windowFor(t, split, lastFit, refitEvery, current)
		if due {
			current = e.refit(d, res, t, lo, hi, minObs, lastGood)
			if current != nil && !current.fallback {
				lastGood = current
				lastFit = t
			}
		}

		est := Estimate{Date: d.Dates[t]}
		fc := contracts.Forecast{Date: d.Dates[t]}
		if current != nil {
			est.Params = current.params
			est.SpanStart = d.Dates[current.start]
			est.SpanEnd = d.Dates[current.end]
			est.Obs = current.obs
			est.Fallback = current.fallback

			if err := CheckSpan(d.Dates[t], est.SpanEnd); err != nil {
				return nil, fmt.Errorf("model %s: %w", e.spec.Name, err)
			}

			if d.X[t] != nil {
				v, err := e.reg.Predict(*current.params, d.X[t])
				if err != nil {
					return nil, fmt.Errorf("model %s predict at %s: %w", e.spec.Name, d.Dates[t].Format("2006-01-02"), err)
				}
				fc = contracts.Forecast{
					Date:      d.Dates[t],
					Value:     v,
					OK:        true,
					SpanStart: est.SpanStart,
					SpanEnd:   est.SpanEnd,
					Obs:       est.Obs,
					Fallback:  est.Fallback,
				}
			}
		}
		if !fc.OK {
			res.Missing++
			e.metrics.ForecastMissing(string(e.spec.Family))
		}

		res.Estimates[t] = est
		res.Forecasts[t] = fc
	}

	if lastGood != nil {
		res.Last = lastGood.params
	}
	return res, nil
}

// windowFor returns the fit window for t and whether a refit is due.
func (e *Estimator) windowFor(t, split, lastFit, refitEvery int, current *fitState) (lo, hi int, due bool) {
	switch e.spec.Window.Mode {
	case contracts.ModeStatic:
		return 0, split, t == split
	case contracts.ModeRolling:
		lo = t - e.spec.Window.Size
		if lo < 0 {
			lo = 0
		}
	}
	hi = t
	due = current == nil || current.fallback || lastFit < 0 || t-lastFit >= refitEvery
	return lo, hi, due
}

// refit fits on [lo, hi) and applies the fallback policy.
func (e *Estimator) refit(d *Design, res *Result, t, lo, hi, minObs int, lastGood *fitState) *fitState {
	X, y, first, last := d.window(lo, hi)
	if len(y) < minObs || len(y) == 0 {
		return nil
	}

	params, err := e.reg.Fit(X, y)
	if err == nil {
		return &fitState{params: &params, start: first, end: last, obs: len(y)}
	}

	if !errors.Is(err, ErrFitNonConvergence) {
		// Family-specific sample requirements (e.g. boosted tree leaves) behave like MinObs.
		e.log.Debug().Err(err).Time("date", d.Dates[t]).Msg("fit skipped")
		return nil
	}

	event := FitEvent{
		Date:        d.Dates[t],
		WindowStart: d.Dates[first],
		WindowEnd:   d.Dates[last],
		Error:       err.Error(),
		Fallback:    lastGood != nil,
	}
	res.Events = append(res.Events, event)
	e.metrics.FitFallback(string(e.spec.Family))

	if lastGood == nil {
		e.log.Warn().Err(err).
			Time("date", event.Date).
			Time("window_start", event.WindowStart).
			Time("window_end", event.WindowEnd).
			Msg("fit did not converge and no converged parameters exist, withholding forecast")
		return nil
	}

	e.log.Warn().Err(err).
		Time("date", event.Date).
		Time("window_start", event.WindowStart).
		Time("window_end", event.WindowEnd).
		Time("fallback_span_end", d.Dates[lastGood.end]).
		Msg("fit did not converge, using last converged parameters")

	fb := *lastGood
	fb.fallback = true
	return &fb
}

// CheckSpan enforces that parameters used at date were estimated strictly before it.
func CheckSpan(date, spanEnd time.Time) error {
	if !spanEnd.Before(date) {
		return fmt.Errorf("%w: forecast for %s uses a fit ending %s", ErrLookahead,
			date.Format("2006-01-02"), spanEnd.Format("2006-01-02"))
	}
	return nil
}

// Forecasts is a convenience that builds the design and runs the estimator.
func (e *Estimator) Forecasts(ctx context.Context, ds *contracts.Dataset, split int) (*Result, error) {
	d, err := BuildDesign(ds, e.spec)
	if err != nil {
		return nil, err
	}
	return e.Run(ctx, d, split)
}
