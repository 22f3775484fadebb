package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/wonny/qval/internal/audit"
	"github.com/wonny/qval/internal/contracts"
	"github.com/wonny/qval/internal/estimator"
	"github.com/wonny/qval/pkg/metrics"
)

var (
	// ErrContemporaneousModel rejects strategies driven by models that use same-date features.
	ErrContemporaneousModel = errors.New("contemporaneous model cannot drive a strategy")

	// ErrNoTestRows means the boundary leaves nothing to simulate.
	ErrNoTestRows = errors.New("no rows to simulate")
)

// Result is one (model, strategy) run over the test rows.
type Result struct {
	Config     contracts.RunConfig         `json:"config"`
	Boundary   time.Time                   `json:"boundary"`
	Missing    int                         `json:"missing_forecasts"`
	Fallbacks  int                         `json:"fit_fallbacks"`
	Strategy   *Output                     `json:"strategy"`
	Report     contracts.PerformanceReport `json:"report"`
	BuyAndHold contracts.PerformanceReport `json:"buy_and_hold"`
	RiskFree   contracts.PerformanceReport `json:"risk_free"`
	Duration   time.Duration               `json:"duration"`
}

// Engine runs estimator → signal → simulator → analyzer for one configuration.
// ⭐ SSOT: 백테스팅 실행은 여기서만
type Engine struct {
	log     zerolog.Logger
	metrics *metrics.Registry
}

// NewEngine creates a new backtest engine
func NewEngine(log zerolog.Logger, m *metrics.Registry) *Engine {
	return &Engine{
		log:     log.With().Str("component", "backtest.engine").Logger(),
		metrics: m,
	}
}

// Run fits cfg.Model walk-forward, simulates cfg.Strategy over rows dated on or after
// boundary and reports the strategy next to buy-and-hold and risk-free benchmarks.
// The dataset is only read.
func (e *Engine) Run(ctx context.Context, ds *contracts.Dataset, cfg contracts.RunConfig, boundary time.Time) (*Result, error) {
	started := time.Now()
	res, err := e.run(ctx, ds, cfg, boundary)
	e.metrics.ObserveRun("backtest", started, err)
	if res != nil {
		res.Duration = time.Since(started)
	}
	return res, err
}

func (e *Engine) run(ctx context.Context, ds *contracts.Dataset, cfg contracts.RunConfig, boundary time.Time) (*Result, error) {
	if cfg.Model.Lag() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrContemporaneousModel, cfg.Model.Name)
	}
	split := ds.SplitIndex(boundary)
	if split >= ds.Len() {
		return nil, fmt.Errorf("%w: boundary %s is after the last row", ErrNoTestRows, boundary.Format("2006-01-02"))
	}

	log := e.log.With().Str("model", cfg.Model.Name).Str("strategy", cfg.Strategy.Name).Logger()

	est, err := estimator.NewEstimator(cfg.Model, log, e.metrics)
	if err != nil {
		return nil, err
	}
	fits, err := est.Forecasts(ctx, ds, split)
	if err != nil {
		return nil, err
	}

	rf, _ := ds.Column(contracts.FieldRiskFree)
	asset, _ := ds.Column(contracts.FieldAssetReturn)
	signal, signalOK, err := BuildSignal(cfg.Strategy, fits.Forecasts, rf)
	if err != nil {
		return nil, err
	}

	in := Input{
		Dates:       ds.Dates()[split:],
		Signal:      signal[split:],
		SignalOK:    signalOK[split:],
		AssetReturn: asset[split:],
		RiskFree:    rf[split:],
	}

	sim := NewSimulator(cfg.Strategy, log, e.metrics)
	out, err := sim.Run(ctx, in)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Config:     cfg,
		Boundary:   boundary,
		Missing:    countMissing(fits.Forecasts[split:]),
		Fallbacks:  len(fits.Events),
		Strategy:   out,
		Report:     audit.Analyze(out.Points, PeriodsPerYear),
		BuyAndHold: audit.Analyze(BuyAndHold(in), PeriodsPerYear),
		RiskFree:   audit.Analyze(RiskFreeCurve(in), PeriodsPerYear),
	}

	log.Info().
		Int("rows", len(out.Points)).
		Int("transitions", out.Transitions).
		Int("floor_events", out.FloorEvents).
		Int("missing_forecasts", res.Missing).
		Float64("total_return", res.Report.TotalReturn).
		Str("sharpe", res.Report.Sharpe.String()).
		Float64("max_drawdown", res.Report.MaxDrawdown).
		Msg("backtest completed")

	return res, nil
}

// BuyAndHold is fully exposed from the first date, without costs.
func BuyAndHold(in Input) []contracts.StrategyPoint {
	return benchmarkCurve(in, 1)
}

// RiskFreeCurve stays Flat and earns the risk-free rate.
func RiskFreeCurve(in Input) []contracts.StrategyPoint {
	return benchmarkCurve(in, 0)
}

func benchmarkCurve(in Input, exposure float64) []contracts.StrategyPoint {
	state := contracts.Flat
	if exposure > 0 {
		state = contracts.Long
	}
	points := make([]contracts.StrategyPoint, len(in.Dates))
	equity := 1.0
	for t := range in.Dates {
		r := exposure*in.AssetReturn[t] + (1-exposure)*in.RiskFree[t]
		equity *= 1 + r
		points[t] = contracts.StrategyPoint{
			Date:        in.Dates[t],
			State:       state,
			Exposure:    exposure,
			AssetReturn: in.AssetReturn[t],
			RiskFree:    in.RiskFree[t],
			Gross:       r,
			Net:         r,
			Equity:      equity,
		}
	}
	return points
}

func countMissing(forecasts []contracts.Forecast) int {
	n := 0
	for _, fc := range forecasts {
		if !fc.OK {
			n++
		}
	}
	return n
}
