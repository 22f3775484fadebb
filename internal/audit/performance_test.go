package audit

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/qval/internal/contracts"
)

func series(net []float64, exposure []float64, asset []float64, rf float64) []contracts.StrategyPoint {
	points := make([]contracts.StrategyPoint, len(net))
	d := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range net {
		state := contracts.Flat
		if exposure[i] > 0 {
			state = contracts.Long
		}
		points[i] = contracts.StrategyPoint{
			Date:        d.AddDate(0, 0, i),
			State:       state,
			Exposure:    exposure[i],
			AssetReturn: asset[i],
			RiskFree:    rf,
			Gross:       net[i],
			Net:         net[i],
		}
	}
	return points
}

func TestCompoundEquity(t *testing.T) {
	returns := []float64{0.01, -0.02, 0.035, 0, -0.004, 0.12}
	curve := CompoundEquity(returns)
	require.Len(t, curve, len(returns))

	want := 1.0
	for _, r := range returns {
		want *= 1 + r
	}
	assert.InDelta(t, want, curve[len(curve)-1], 1e-15)
	assert.Empty(t, CompoundEquity(nil))
}

func TestAnalyze(t *testing.T) {
	net := []float64{0.10, -0.05, 0.02, -0.10, 0.03}
	exposure := []float64{1, 1, 0, 1, 1}
	asset := []float64{0.10, -0.05, 0.01, -0.10, 0.03}
	points := series(net, exposure, asset, 0)

	r := Analyze(points, 252)

	final := 1.10 * 0.95 * 1.02 * 0.90 * 1.03
	assert.Equal(t, 5, r.Periods)
	assert.InDelta(t, final, r.FinalEquity, 1e-12)
	assert.InDelta(t, final-1, r.TotalReturn, 1e-12)
	require.True(t, r.AnnualReturn.Defined)
	assert.InDelta(t, math.Pow(final, 252.0/5)-1, r.AnnualReturn.Value, 1e-9)

	// peak 1.10 → trough 1.10*0.95*1.02*0.90
	trough := 1.10 * 0.95 * 1.02 * 0.90
	assert.InDelta(t, (1.10-trough)/1.10, r.MaxDrawdown, 1e-12)
	assert.Positive(t, r.MaxDrawdown)

	// long on dates 0,1,3,4; asset up on 0 and 4
	require.True(t, r.WinRate.Defined)
	assert.Equal(t, 4, r.LongDays)
	assert.InDelta(t, 0.5, r.WinRate.Value, 1e-12)

	// Flat→Long, Long→Flat, Flat→Long
	assert.Equal(t, 3, r.TotalTrades)
	assert.InDelta(t, 3, r.Turnover, 1e-12)

	require.True(t, r.Volatility.Defined)
	require.True(t, r.Sharpe.Defined)
	require.True(t, r.Sortino.Defined)

	// 5 returns, floor(0.05*5)=0 → worst return
	assert.InDelta(t, 0.10, r.VaR95, 1e-12)
	assert.InDelta(t, 0.10, r.CVaR95, 1e-12)
}

func TestAnalyzeDegenerate(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		r := Analyze(nil, 252)
		assert.Equal(t, 0, r.Periods)
		assert.False(t, r.AnnualReturn.Defined)
		assert.False(t, r.Sharpe.Defined)
	})

	t.Run("risk-free only", func(t *testing.T) {
		n := 10
		net := make([]float64, n)
		zero := make([]float64, n)
		for i := range net {
			net[i] = 0.0001
		}
		r := Analyze(series(net, zero, zero, 0.0001), 252)

		assert.False(t, r.Sharpe.Defined, "zero excess volatility")
		assert.False(t, r.Sortino.Defined)
		assert.False(t, r.WinRate.Defined, "never long")
		assert.Equal(t, 0, r.TotalTrades)
		assert.Zero(t, r.MaxDrawdown)
		assert.True(t, r.Volatility.Defined)
		assert.InDelta(t, 0, r.Volatility.Value, 1e-15)
	})

	t.Run("wiped out", func(t *testing.T) {
		r := Analyze(series([]float64{-1, 0.1}, []float64{1, 1}, []float64{-1, 0.1}, 0), 252)
		assert.False(t, r.AnnualReturn.Defined)
		assert.InDelta(t, 1, r.MaxDrawdown, 1e-12)
	})
}

func TestCalculateVaR(t *testing.T) {
	returns := make([]float64, 100)
	for i := range returns {
		returns[i] = float64(i-10) / 1000 // -0.010 .. 0.089
	}

	v := CalculateVaR(returns, 0.95)
	// idx = floor(0.05*100) = 5 → -0.005; tail mean of -0.010..-0.005 = -0.0075
	assert.InDelta(t, 0.005, v.VaR, 1e-12)
	assert.InDelta(t, 0.0075, v.CVaR, 1e-12)

	gains := CalculateVaR([]float64{0.01, 0.02}, 0.95)
	assert.Zero(t, gains.VaR)
	assert.Zero(t, gains.CVaR)

	assert.Zero(t, CalculateVaR(nil, 0.95).VaR)
}
