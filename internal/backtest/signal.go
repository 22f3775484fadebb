package backtest

import (
	"fmt"
	"math"

	"github.com/wonny/qval/internal/contracts"
)

// ForecastSignal aligns forecasts to decision dates: the signal at row t is
// Forecast[t+1], whose parameters were fit on rows before t+1. The last row has no signal.
func ForecastSignal(forecasts []contracts.Forecast) (values []float64, ok []bool) {
	n := len(forecasts)
	values = make([]float64, n)
	ok = make([]bool, n)
	for t := 0; t+1 < n; t++ {
		fc := forecasts[t+1]
		if fc.OK && !math.IsNaN(fc.Value) && !math.IsInf(fc.Value, 0) {
			values[t], ok[t] = fc.Value, true
		}
	}
	return values, ok
}

// UpsideSignal converts forecast returns into upside over the risk-free rate
// compounded across the horizon: (1+pred)/(1+rf_h) - 1 with rf_h = (1+rf)^H - 1.
// rf is the rate known at the decision date.
func UpsideSignal(forecasts []contracts.Forecast, rf []float64, horizon int) (values []float64, ok []bool, err error) {
	if len(rf) != len(forecasts) {
		return nil, nil, fmt.Errorf("%w: %d forecasts, %d risk-free rates", ErrLengthMismatch, len(forecasts), len(rf))
	}
	if horizon < 1 {
		horizon = 1
	}
	values, ok = ForecastSignal(forecasts)
	for t := range values {
		if !ok[t] {
			continue
		}
		rfH := math.Pow(1+rf[t], float64(horizon)) - 1
		values[t] = (1+values[t])/(1+rfH) - 1
	}
	return values, ok, nil
}

// BuildSignal dispatches on the strategy's signal kind.
func BuildSignal(p contracts.StrategyParams, forecasts []contracts.Forecast, rf []float64) ([]float64, []bool, error) {
	switch p.Signal {
	case contracts.SignalForecast, "":
		v, ok := ForecastSignal(forecasts)
		return v, ok, nil
	case contracts.SignalUpside:
		return UpsideSignal(forecasts, rf, p.HorizonDays)
	default:
		return nil, nil, fmt.Errorf("unknown signal kind %q", p.Signal)
	}
}
