// Package backtest turns walk-forward forecasts into a Flat/Long strategy with
// hysteresis, execution lag, volatility sizing and proportional costs.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/wonny/qval/internal/contracts"
	"github.com/wonny/qval/pkg/metrics"
)

// PeriodsPerYear is the trading-day annualization factor.
const PeriodsPerYear = 252

// ErrLengthMismatch is returned when simulator inputs differ in length.
var ErrLengthMismatch = errors.New("input series lengths differ")

// Input is the per-date data one simulation consumes. Signal[t] is known at the close of Dates[t].
type Input struct {
	Dates       []time.Time
	Signal      []float64
	SignalOK    []bool
	AssetReturn []float64
	RiskFree    []float64
}

func (in Input) validate() error {
	n := len(in.Dates)
	if len(in.Signal) != n || len(in.SignalOK) != n || len(in.AssetReturn) != n || len(in.RiskFree) != n {
		return fmt.Errorf("%w: dates=%d signal=%d signal_ok=%d asset=%d rf=%d", ErrLengthMismatch,
			n, len(in.Signal), len(in.SignalOK), len(in.AssetReturn), len(in.RiskFree))
	}
	return nil
}

// Output is the simulated series plus running totals.
type Output struct {
	Points      []contracts.StrategyPoint `json:"points"`
	Transitions int                       `json:"transitions"`
	Turnover    float64                   `json:"turnover"`
	TotalCost   float64                   `json:"total_cost"`
	FloorEvents int                       `json:"floor_events"`
}

// NetReturns returns the net return column.
func (o *Output) NetReturns() []float64 {
	out := make([]float64, len(o.Points))
	for i, p := range o.Points {
		out[i] = p.Net
	}
	return out
}

// Simulator advances the Flat/Long state machine once per date.
// ⭐ SSOT: 포지션 전이, 체결 지연, 비용 계산은 여기서만
//
// Rules:
//   - Flat -> Long when signal > entry; Long -> Flat when signal < exit (strict)
//   - a missing signal keeps the state
//   - the exposure decided at t earns the return of t+1
//   - cost = cost_rate * |Δexposure| on the date the new exposure first earns a return
type Simulator struct {
	params  contracts.StrategyParams
	log     zerolog.Logger
	metrics *metrics.Registry
}

// NewSimulator creates a simulator for one strategy. Vol targeting defaults are filled in.
func NewSimulator(p contracts.StrategyParams, log zerolog.Logger, m *metrics.Registry) *Simulator {
	if p.VolTarget.Enabled {
		if p.VolTarget.AnnualTarget <= 0 {
			p.VolTarget.AnnualTarget = contracts.DefaultAnnualVolTarget
		}
		if p.VolTarget.Lookback < 2 {
			p.VolTarget.Lookback = contracts.DefaultVolLookback
		}
		if p.VolTarget.Floor <= 0 {
			p.VolTarget.Floor = contracts.DefaultVolFloor
		}
	}
	return &Simulator{
		params:  p,
		log:     log.With().Str("component", "backtest.simulator").Str("strategy", p.Name).Logger(),
		metrics: m,
	}
}

// Params returns the effective strategy parameters.
func (s *Simulator) Params() contracts.StrategyParams {
	return s.params
}

// Run simulates the whole input, starting Flat with equity 1.
func (s *Simulator) Run(ctx context.Context, in Input) (*Output, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	n := len(in.Dates)
	out := &Output{Points: make([]contracts.StrategyPoint, n)}
	dailyTarget := s.params.VolTarget.DailyTarget(PeriodsPerYear)

	state := contracts.Flat
	realized := 0.0 // exposure earning the current date's return
	pending := 0.0  // exposure decided at the previous close
	equity := 1.0

	for t := 0; t < n; t++ {
		if t%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		// realize yesterday's decision
		exposure := pending
		gross := exposure*in.AssetReturn[t] + (1-exposure)*in.RiskFree[t]
		delta := math.Abs(exposure - realized)
		cost := s.params.CostRate * delta
		net := gross - cost
		equity *= 1 + net
		realized = exposure

		out.Turnover += delta
		out.TotalCost += cost

		// decide at today's close
		next := s.transition(state, in.Signal[t], in.SignalOK[t])
		if next != state {
			out.Transitions++
			s.log.Debug().
				Time("date", in.Dates[t]).
				Str("from", state.String()).
				Str("to", next.String()).
				Float64("signal", in.Signal[t]).
				Msg("state transition")
		}
		state = next

		pending = 0
		if state == contracts.Long {
			pending = s.size(in, t, dailyTarget, out)
		}

		out.Points[t] = contracts.StrategyPoint{
			Date:        in.Dates[t],
			Signal:      in.Signal[t],
			SignalOK:    in.SignalOK[t],
			State:       state,
			Exposure:    exposure,
			AssetReturn: in.AssetReturn[t],
			RiskFree:    in.RiskFree[t],
			Gross:       gross,
			Cost:        cost,
			Net:         net,
			Equity:      equity,
		}
	}
	return out, nil
}

func (s *Simulator) transition(state contracts.Position, signal float64, ok bool) contracts.Position {
	if !ok {
		return state
	}
	switch state {
	case contracts.Flat:
		if signal > s.params.EntryThreshold {
			return contracts.Long
		}
	case contracts.Long:
		if signal < s.params.ExitThreshold {
			return contracts.Flat
		}
	}
	return state
}

// size returns the Long exposure decided at t.
func (s *Simulator) size(in Input, t int, dailyTarget float64, out *Output) float64 {
	vt := s.params.VolTarget
	if !vt.Enabled {
		return 1
	}
	vol, ok := TrailingVol(in.AssetReturn, t, vt.Lookback)
	if !ok {
		vol = 0
	}
	exposure, floored := Exposure(dailyTarget, vol, vt.Floor)
	if floored {
		out.FloorEvents++
		s.metrics.VolFloor()
		s.log.Warn().
			Time("date", in.Dates[t]).
			Float64("trailing_vol", vol).
			Float64("floor", vt.Floor).
			Msg("degenerate trailing volatility, using floor")
	}
	return exposure
}
