// Package evaluation compares an ordered family of model specs on a shared
// out-of-sample partition.
package evaluation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/wonny/qval/internal/contracts"
	"github.com/wonny/qval/internal/estimator"
	"github.com/wonny/qval/pkg/metrics"
)

var (
	// ErrEmptyPartition means the boundary leaves no training or no test rows.
	ErrEmptyPartition = errors.New("empty train or test partition")

	// ErrMixedTargets means the specs do not share one target.
	ErrMixedTargets = errors.New("model specs use different targets")
)

// Evaluator fits each spec on the training rows and scores it on the test rows.
// It never selects a winner.
// ⭐ SSOT: 모든 모델은 동일한 테스트 구간, 동일한 벤치마크로 비교
type Evaluator struct {
	log     zerolog.Logger
	metrics *metrics.Registry
}

// NewEvaluator creates an evaluator.
func NewEvaluator(log zerolog.Logger, m *metrics.Registry) *Evaluator {
	return &Evaluator{
		log:     log.With().Str("component", "evaluation").Logger(),
		metrics: m,
	}
}

// Evaluate scores specs in order. Rows dated before boundary train; the rest test.
// Static specs fit once on the training rows; rolling and expanding specs walk forward
// under the same lag discipline. A lookahead violation aborts the evaluation.
func (e *Evaluator) Evaluate(ctx context.Context, ds *contracts.Dataset, specs []contracts.ModelSpec, boundary time.Time) (*contracts.ComparisonReport, error) {
	started := time.Now()
	report, err := e.evaluate(ctx, ds, specs, boundary)
	e.metrics.ObserveRun("evaluate", started, err)
	return report, err
}

func (e *Evaluator) evaluate(ctx context.Context, ds *contracts.Dataset, specs []contracts.ModelSpec, boundary time.Time) (*contracts.ComparisonReport, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("no model specs to evaluate")
	}
	target := specs[0].Target
	for _, s := range specs[1:] {
		if s.Target != target {
			return nil, fmt.Errorf("%w: %s uses %s, %s uses %s", ErrMixedTargets, specs[0].Name, target, s.Name, s.Target)
		}
	}

	split := ds.SplitIndex(boundary)
	if split == 0 || split == ds.Len() {
		return nil, fmt.Errorf("%w: boundary %s splits %d rows at %d", ErrEmptyPartition, boundary.Format("2006-01-02"), ds.Len(), split)
	}

	trainMean, err := TrainMean(ds, target, split)
	if err != nil {
		return nil, err
	}

	report := &contracts.ComparisonReport{
		Boundary:    boundary,
		Target:      target,
		TrainRows:   split,
		TestRows:    ds.Len() - split,
		TrainMean:   trainMean,
		Models:      make([]contracts.ModelComparison, 0, len(specs)),
		GeneratedAt: time.Now().UTC(),
	}

	e.log.Info().
		Str("target", target).
		Time("boundary", boundary).
		Int("train_rows", report.TrainRows).
		Int("test_rows", report.TestRows).
		Int("models", len(specs)).
		Msg("evaluation started")

	fits := make([]*estimator.Result, len(specs))
	for i, spec := range specs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := e.forecast(ctx, ds, spec, split)
		if err != nil {
			return nil, fmt.Errorf("evaluate %s: %w", spec.Name, err)
		}
		fits[i] = res
	}

	rows := commonRows(ds, target, split, fits)
	report.ScoredRows = len(rows)
	if len(rows) < report.TestRows {
		e.log.Warn().
			Int("test_rows", report.TestRows).
			Int("scored_rows", len(rows)).
			Msg("some test rows lack a forecast from every model; scoring on the shared rows")
	}

	for i, spec := range specs {
		report.Models = append(report.Models, e.score(ds, spec, fits[i], rows, split, trainMean))
	}
	return report, nil
}

// forecast fits spec and re-checks every test forecast span at the scoring boundary.
func (e *Evaluator) forecast(ctx context.Context, ds *contracts.Dataset, spec contracts.ModelSpec, split int) (*estimator.Result, error) {
	est, err := estimator.NewEstimator(spec, e.log, e.metrics)
	if err != nil {
		return nil, err
	}
	res, err := est.Forecasts(ctx, ds, split)
	if err != nil {
		return nil, err
	}
	for t := split; t < ds.Len(); t++ {
		fc := res.Forecasts[t]
		if !fc.OK {
			continue
		}
		// redundant with the estimator guard, kept at the scoring boundary
		if err := estimator.CheckSpan(fc.Date, fc.SpanEnd); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// commonRows returns the test rows with a realized target and a forecast from every model.
// ⭐ SSOT: 모든 모델은 동일한 행 집합에서 채점
func commonRows(ds *contracts.Dataset, target string, split int, fits []*estimator.Result) []int {
	var rows []int
	for t := split; t < ds.Len(); t++ {
		if _, ok := ds.Rows[t].Value(target); !ok {
			continue
		}
		shared := true
		for _, res := range fits {
			if !res.Forecasts[t].OK {
				shared = false
				break
			}
		}
		if shared {
			rows = append(rows, t)
		}
	}
	return rows
}

func (e *Evaluator) score(ds *contracts.Dataset, spec contracts.ModelSpec, res *estimator.Result, rows []int, split int, trainMean float64) contracts.ModelComparison {
	missing := 0
	for t := split; t < ds.Len(); t++ {
		if _, ok := ds.Rows[t].Value(spec.Target); !ok || !res.Forecasts[t].OK {
			missing++
		}
	}

	pred := make([]float64, len(rows))
	actual := make([]float64, len(rows))
	for i, t := range rows {
		pred[i] = res.Forecasts[t].Value
		actual[i], _ = ds.Rows[t].Value(spec.Target)
	}

	k := 0
	var coefs []float64
	if res.Last != nil {
		k = res.Last.K
		coefs = res.Last.Coefficients()
	}
	s := Score(pred, actual, trainMean, k)

	row := contracts.ModelComparison{
		Model:      spec.Name,
		Family:     spec.Family,
		Mode:       spec.Window.Mode,
		Features:   spec.Features,
		NumParams:  k,
		NObs:       s.N,
		Missing:    missing,
		Fallbacks:  len(res.Events),
		MSE:        s.MSE,
		RMSE:       s.RMSE,
		MAE:        s.MAE,
		R2OOS:      s.R2OOS,
		AIC:        s.AIC,
		BIC:        s.BIC,
		HitRate:    s.HitRate,
		FinalCoefs: coefs,
	}

	ev := e.log.Info()
	if !s.R2OOS.Defined {
		ev = e.log.Warn().Str("r2_oos_reason", s.R2OOS.Reason)
	}
	ev.Str("model", spec.Name).
		Int("n", s.N).
		Int("k", k).
		Int("missing", missing).
		Int("fallbacks", row.Fallbacks).
		Str("mse", s.MSE.String()).
		Str("r2_oos", s.R2OOS.String()).
		Msg("model evaluated")

	return row
}

// TrainMean is the benchmark forecast: the mean target over rows before split.
// It goes through the historical-mean family so the benchmark and a historical-mean
// model produce bit-identical forecasts.
func TrainMean(ds *contracts.Dataset, target string, split int) (float64, error) {
	var ys []float64
	for t := 0; t < split; t++ {
		if v, ok := ds.Rows[t].Value(target); ok {
			ys = append(ys, v)
		}
	}
	p, err := estimator.HistoricalMean{}.Fit(nil, ys)
	if err != nil {
		return 0, fmt.Errorf("%w: no %s values before the boundary", ErrEmptyPartition, target)
	}
	return p.Intercept, nil
}
