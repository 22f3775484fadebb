package evaluation

import (
	"math"

	"github.com/wonny/qval/internal/contracts"
)

// Scores holds out-of-sample diagnostics for one forecast series.
type Scores struct {
	N        int
	SSE      float64
	MSE      contracts.Metric
	RMSE     contracts.Metric
	MAE      contracts.Metric
	MSEBench contracts.Metric
	R2OOS    contracts.Metric
	AIC      contracts.Metric
	BIC      contracts.Metric
	HitRate  contracts.Metric
}

// Score compares predictions with realized values against a constant benchmark.
//
//	R²_OOS = 1 - MSE / MSE_bench
//	AIC    = n·ln(SSE/n) + 2k
//	BIC    = n·ln(SSE/n) + k·ln(n)
//
// AIC and BIC assume i.i.d. normal errors; they are comparative, not likelihoods.
func Score(pred, actual []float64, benchmark float64, k int) Scores {
	n := len(actual)
	s := Scores{N: n}
	if n == 0 || len(pred) != n {
		undefined := contracts.UndefinedMetric("empty test sample")
		s.MSE, s.RMSE, s.MAE, s.MSEBench = undefined, undefined, undefined, undefined
		s.R2OOS, s.AIC, s.BIC, s.HitRate = undefined, undefined, undefined, undefined
		return s
	}

	var sse, sae, sseBench float64
	hits := 0
	for i := range actual {
		e := actual[i] - pred[i]
		sse += e * e
		sae += math.Abs(e)
		b := actual[i] - benchmark
		sseBench += b * b
		if (pred[i] > 0) == (actual[i] > 0) {
			hits++
		}
	}

	fn := float64(n)
	mse := sse / fn
	mseBench := sseBench / fn
	s.SSE = sse
	s.MSE = contracts.DefinedMetric(mse)
	s.RMSE = contracts.DefinedMetric(math.Sqrt(mse))
	s.MAE = contracts.DefinedMetric(sae / fn)
	s.MSEBench = contracts.DefinedMetric(mseBench)
	s.HitRate = contracts.DefinedMetric(float64(hits) / fn)

	if mseBench == 0 {
		s.R2OOS = contracts.UndefinedMetric("zero benchmark MSE")
	} else {
		s.R2OOS = contracts.DefinedMetric(1 - mse/mseBench)
	}

	if sse == 0 {
		s.AIC = contracts.UndefinedMetric("zero SSE")
		s.BIC = contracts.UndefinedMetric("zero SSE")
	} else {
		ll := fn * math.Log(sse/fn)
		s.AIC = contracts.DefinedMetric(ll + 2*float64(k))
		s.BIC = contracts.DefinedMetric(ll + float64(k)*math.Log(fn))
	}
	return s
}
