package evaluation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name      string
		pred      []float64
		actual    []float64
		benchmark float64
		k         int
		check     func(t *testing.T, s Scores)
	}{
		{
			name:      "known values",
			pred:      []float64{0.1, -0.1, 0.2, 0.0},
			actual:    []float64{0.2, -0.2, 0.1, 0.1},
			benchmark: 0,
			k:         2,
			check: func(t *testing.T, s Scores) {
				// errors 0.1, -0.1, -0.1, 0.1
				assert.InDelta(t, 0.01, s.MSE.Value, 1e-12)
				assert.InDelta(t, 0.1, s.RMSE.Value, 1e-12)
				assert.InDelta(t, 0.1, s.MAE.Value, 1e-12)
				assert.InDelta(t, 0.025, s.MSEBench.Value, 1e-12)
				assert.InDelta(t, 1-0.01/0.025, s.R2OOS.Value, 1e-12)
				assert.InDelta(t, 4*math.Log(0.01)+4, s.AIC.Value, 1e-9)
				assert.InDelta(t, 4*math.Log(0.01)+2*math.Log(4), s.BIC.Value, 1e-9)
				// signs agree on rows 0..2; pred 0 vs actual 0.1 misses
				assert.InDelta(t, 0.75, s.HitRate.Value, 1e-12)
			},
		},
		{
			name:      "benchmark forecasts itself",
			pred:      []float64{0.3, 0.3, 0.3},
			actual:    []float64{0.1, 0.5, 0.2},
			benchmark: 0.3,
			check: func(t *testing.T, s Scores) {
				assert.True(t, s.R2OOS.Defined)
				assert.Equal(t, 0.0, s.R2OOS.Value)
			},
		},
		{
			name:      "zero benchmark MSE",
			pred:      []float64{0.1, 0.2},
			actual:    []float64{0.5, 0.5},
			benchmark: 0.5,
			check: func(t *testing.T, s Scores) {
				assert.False(t, s.R2OOS.Defined)
				assert.Equal(t, "zero benchmark MSE", s.R2OOS.Reason)
				assert.True(t, s.AIC.Defined)
			},
		},
		{
			name:      "perfect fit",
			pred:      []float64{0.1, 0.2},
			actual:    []float64{0.1, 0.2},
			benchmark: 0,
			k:         1,
			check: func(t *testing.T, s Scores) {
				assert.Equal(t, 1.0, s.R2OOS.Value)
				assert.False(t, s.AIC.Defined)
				assert.False(t, s.BIC.Defined)
			},
		},
		{
			name: "empty",
			check: func(t *testing.T, s Scores) {
				assert.Equal(t, 0, s.N)
				assert.False(t, s.MSE.Defined)
				assert.False(t, s.R2OOS.Defined)
				assert.False(t, s.HitRate.Defined)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, Score(tt.pred, tt.actual, tt.benchmark, tt.k))
		})
	}
}
