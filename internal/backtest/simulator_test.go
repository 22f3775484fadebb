package backtest

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/qval/internal/contracts"
	"github.com/wonny/qval/pkg/metrics"
)

func dates(n int) []time.Time {
	out := make([]time.Time, n)
	d := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range out {
		out[i] = d.AddDate(0, 0, i)
	}
	return out
}

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func allOK(n int) []bool {
	out := make([]bool, n)
	for i := range out {
		out[i] = true
	}
	return out
}

func hysteresis(cost float64) contracts.StrategyParams {
	return contracts.StrategyParams{
		Name:           "hysteresis",
		Signal:         contracts.SignalForecast,
		EntryThreshold: 0.02,
		ExitThreshold:  0.0,
		CostRate:       cost,
	}
}

func TestSimulatorHysteresisScenario(t *testing.T) {
	in := Input{
		Dates:       dates(5),
		Signal:      []float64{0.03, 0.01, -0.01, 0.03, 0.03},
		SignalOK:    allOK(5),
		AssetReturn: []float64{0.01, 0.02, -0.01, 0.03, 0.01},
		RiskFree:    constant(5, 0.0001),
	}

	out, err := NewSimulator(hysteresis(0.001), zerolog.Nop(), nil).Run(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, out.Points, 5)

	states := make([]contracts.Position, 5)
	exposures := make([]float64, 5)
	costs := make([]float64, 5)
	for i, p := range out.Points {
		states[i], exposures[i], costs[i] = p.State, p.Exposure, p.Cost
	}

	// Flat -> Long -> Long -> Flat -> Long, decided at each close
	assert.Equal(t, []contracts.Position{contracts.Long, contracts.Long, contracts.Flat, contracts.Long, contracts.Long}, states)
	assert.Equal(t, 3, out.Transitions)

	// each decision earns the next date's return
	assert.Equal(t, []float64{0, 1, 1, 0, 1}, exposures)
	assert.InDeltaSlice(t, []float64{0, 0.001, 0, 0.001, 0.001}, costs, 1e-15)

	assert.InDelta(t, 0.0001, out.Points[0].Gross, 1e-15, "first date starts Flat")
	assert.InDelta(t, 0.02, out.Points[1].Gross, 1e-15)
	assert.InDelta(t, 0.0001, out.Points[3].Gross, 1e-15)

	var diff float64
	equity := 1.0
	for _, p := range out.Points {
		diff += p.Gross - p.Net
		equity *= 1 + p.Net
	}
	assert.InDelta(t, 3*0.001, diff, 1e-12)
	assert.InDelta(t, 3*0.001, out.TotalCost, 1e-12)
	assert.InDelta(t, 3.0, out.Turnover, 1e-12)
	assert.InDelta(t, equity, out.Points[4].Equity, 1e-12)
}

func TestSimulatorThresholdBoundaries(t *testing.T) {
	tests := []struct {
		name   string
		signal []float64
		ok     []bool
		want   []contracts.Position
	}{
		{
			name:   "signal equal to entry stays flat",
			signal: []float64{0.02, 0.02},
			ok:     allOK(2),
			want:   []contracts.Position{contracts.Flat, contracts.Flat},
		},
		{
			name:   "signal equal to exit stays long",
			signal: []float64{0.03, 0.0, 0.0},
			ok:     allOK(3),
			want:   []contracts.Position{contracts.Long, contracts.Long, contracts.Long},
		},
		{
			name:   "inside the band holds",
			signal: []float64{0.01, 0.03, 0.01, 0.015},
			ok:     allOK(4),
			want:   []contracts.Position{contracts.Flat, contracts.Long, contracts.Long, contracts.Long},
		},
		{
			name:   "missing signal holds state",
			signal: []float64{0.03, -1, -1},
			ok:     []bool{true, false, true},
			want:   []contracts.Position{contracts.Long, contracts.Long, contracts.Flat},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := len(tt.signal)
			out, err := NewSimulator(hysteresis(0), zerolog.Nop(), nil).Run(context.Background(), Input{
				Dates:       dates(n),
				Signal:      tt.signal,
				SignalOK:    tt.ok,
				AssetReturn: constant(n, 0.01),
				RiskFree:    constant(n, 0),
			})
			require.NoError(t, err)
			for i, p := range out.Points {
				assert.Equal(t, tt.want[i], p.State, "date %d", i)
			}
		})
	}
}

func TestSimulatorDegenerateVolatility(t *testing.T) {
	n := 30
	p := hysteresis(0)
	p.VolTarget = contracts.VolTarget{Enabled: true}
	reg := metrics.New()

	out, err := NewSimulator(p, zerolog.Nop(), reg).Run(context.Background(), Input{
		Dates:       dates(n),
		Signal:      constant(n, 0.05),
		SignalOK:    allOK(n),
		AssetReturn: constant(n, 0), // zero trailing vol everywhere
		RiskFree:    constant(n, 0),
	})
	require.NoError(t, err)

	want := contracts.DefaultAnnualVolTarget / math.Sqrt(PeriodsPerYear) / contracts.DefaultVolFloor
	assert.Equal(t, n, out.FloorEvents)
	for _, pt := range out.Points[1:] {
		assert.False(t, math.IsNaN(pt.Exposure))
		assert.InDelta(t, want, pt.Exposure, 1e-12)
		assert.LessOrEqual(t, pt.Exposure, 1.0)
	}
}

func TestSimulatorVolScaling(t *testing.T) {
	n := 40
	asset := make([]float64, n)
	for i := range asset {
		asset[i] = 0.02
		if i%2 == 1 {
			asset[i] = -0.02
		}
	}
	p := hysteresis(0)
	p.VolTarget = contracts.VolTarget{Enabled: true, AnnualTarget: 0.15, Lookback: 20}

	out, err := NewSimulator(p, zerolog.Nop(), nil).Run(context.Background(), Input{
		Dates:       dates(n),
		Signal:      constant(n, 0.05),
		SignalOK:    allOK(n),
		AssetReturn: asset,
		RiskFree:    constant(n, 0),
	})
	require.NoError(t, err)
	// the first Long decision has a one-return window, so its vol is floored
	assert.Equal(t, 1, out.FloorEvents)

	vol, ok := TrailingVol(asset, 30, 20)
	require.True(t, ok)
	assert.InDelta(t, 0.15/math.Sqrt(252)/vol, out.Points[31].Exposure, 1e-12)
	assert.Less(t, out.Points[31].Exposure, 1.0)
}

func TestSimulatorLengthMismatch(t *testing.T) {
	_, err := NewSimulator(hysteresis(0), zerolog.Nop(), nil).Run(context.Background(), Input{
		Dates:       dates(3),
		Signal:      constant(2, 0),
		SignalOK:    allOK(3),
		AssetReturn: constant(3, 0),
		RiskFree:    constant(3, 0),
	})
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestExposure(t *testing.T) {
	tests := []struct {
		name        string
		target, vol float64
		want        float64
		wantFloored bool
	}{
		{"half", 0.01, 0.02, 0.5, false},
		{"capped at one", 0.01, 0.005, 1, false},
		{"zero vol uses floor", 0.005, 0, 0.5, true},
		{"nan vol uses floor", 0.005, math.NaN(), 0.5, true},
		{"negative vol uses floor", 0.02, -1, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, floored := Exposure(tt.target, tt.vol, 0.01)
			assert.InDelta(t, tt.want, got, 1e-12)
			assert.Equal(t, tt.wantFloored, floored)
		})
	}
}

func TestSignals(t *testing.T) {
	fc := []contracts.Forecast{
		{Value: 9, OK: true},
		{Value: 0.01, OK: true},
		{OK: false},
	}

	v, ok := ForecastSignal(fc)
	assert.Equal(t, []bool{true, false, false}, ok)
	assert.Equal(t, 0.01, v[0], "signal at t is the forecast for t+1")

	up, upOK, err := UpsideSignal(fc, []float64{0.001, 0.001, 0.001}, 1)
	require.NoError(t, err)
	assert.Equal(t, ok, upOK)
	assert.InDelta(t, 1.01/1.001-1, up[0], 1e-15)

	up5, _, err := UpsideSignal(fc, []float64{0.001, 0.001, 0.001}, 5)
	require.NoError(t, err)
	assert.InDelta(t, 1.01/math.Pow(1.001, 5)-1, up5[0], 1e-15)

	_, _, err = UpsideSignal(fc, []float64{0.001}, 1)
	assert.ErrorIs(t, err, ErrLengthMismatch)

	_, _, err = BuildSignal(contracts.StrategyParams{Signal: "momentum"}, fc, nil)
	assert.Error(t, err)
}
