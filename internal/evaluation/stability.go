package evaluation

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/qval/internal/contracts"
	"github.com/wonny/qval/internal/estimator"
)

// Stability defaults.
const (
	DefaultStabilityWindow = 252
	DefaultStabilityStep   = 5
)

// StabilityPoint is the in-sample fit of a base and an extended model over one window.
type StabilityPoint struct {
	WindowStart time.Time        `json:"window_start"`
	WindowEnd   time.Time        `json:"window_end"`
	N           int              `json:"n"`
	R2Base      contracts.Metric `json:"r2_base"`
	AdjR2Base   contracts.Metric `json:"adj_r2_base"`
	R2Ext       contracts.Metric `json:"r2_ext"`
	AdjR2Ext    contracts.Metric `json:"adj_r2_ext"`
	DeltaR2     contracts.Metric `json:"delta_r2"`
	DeltaAdjR2  contracts.Metric `json:"delta_adj_r2"`
}

// RollingR2 slides a window over rows where both models are complete and reports
// in-sample R² and adjusted R² for each. This is a descriptive stability view,
// not an out-of-sample evaluation. Both specs are fit by OLS.
func RollingR2(ctx context.Context, ds *contracts.Dataset, base, ext contracts.ModelSpec, window, step int) ([]StabilityPoint, error) {
	if window <= 0 {
		window = DefaultStabilityWindow
	}
	if step <= 0 {
		step = DefaultStabilityStep
	}
	if base.Target != ext.Target {
		return nil, fmt.Errorf("%w: %s vs %s", ErrMixedTargets, base.Target, ext.Target)
	}

	db, err := estimator.BuildDesign(ds, base)
	if err != nil {
		return nil, err
	}
	de, err := estimator.BuildDesign(ds, ext)
	if err != nil {
		return nil, err
	}

	var rows []int
	for t := 0; t < db.Len(); t++ {
		if db.Complete(t) && de.Complete(t) {
			rows = append(rows, t)
		}
	}
	if len(rows) < window {
		return nil, fmt.Errorf("%w: %d complete rows, window %d", estimator.ErrInsufficientData, len(rows), window)
	}

	baseFit := &estimator.OLS{Intercept: !base.NoIntercept}
	extFit := &estimator.OLS{Intercept: !ext.NoIntercept}

	var out []StabilityPoint
	for start := 0; start+window <= len(rows); start += step {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		idx := rows[start : start+window]

		r2b, adjb := inSampleR2(baseFit, db, idx)
		r2e, adje := inSampleR2(extFit, de, idx)

		out = append(out, StabilityPoint{
			WindowStart: db.Dates[idx[0]],
			WindowEnd:   db.Dates[idx[len(idx)-1]],
			N:           len(idx),
			R2Base:      r2b,
			AdjR2Base:   adjb,
			R2Ext:       r2e,
			AdjR2Ext:    adje,
			DeltaR2:     delta(r2e, r2b),
			DeltaAdjR2:  delta(adje, adjb),
		})
	}
	return out, nil
}

func inSampleR2(reg estimator.Regressor, d *estimator.Design, idx []int) (r2, adj contracts.Metric) {
	X := make([][]float64, len(idx))
	y := make([]float64, len(idx))
	for i, t := range idx {
		X[i], y[i] = d.X[t], d.Y[t]
	}

	p, err := reg.Fit(X, y)
	if err != nil {
		u := contracts.UndefinedMetric(err.Error())
		return u, u
	}

	var yBar float64
	for _, v := range y {
		yBar += v
	}
	yBar /= float64(len(y))

	var sse, sst float64
	for i := range y {
		yh, _ := reg.Predict(p, X[i])
		sse += (y[i] - yh) * (y[i] - yh)
		sst += (y[i] - yBar) * (y[i] - yBar)
	}
	if sst == 0 {
		u := contracts.UndefinedMetric("zero target variance")
		return u, u
	}

	n := float64(len(y))
	k := float64(len(d.Features))
	r := 1 - sse/sst
	r2 = contracts.DefinedMetric(r)
	if n-k-1 <= 0 {
		return r2, contracts.UndefinedMetric("no residual degrees of freedom")
	}
	return r2, contracts.DefinedMetric(1 - (1-r)*(n-1)/(n-k-1))
}

func delta(a, b contracts.Metric) contracts.Metric {
	if !a.Defined || !b.Defined {
		return contracts.UndefinedMetric("undefined operand")
	}
	return contracts.DefinedMetric(a.Value - b.Value)
}
