package contracts

import (
	"math"
	"time"
)

// Position is the simulator state held over a trading date.
type Position int

const (
	Flat Position = iota // capital earns the risk-free rate
	Long                 // capital earns the asset return
)

// String returns the state name
func (p Position) String() string {
	if p == Long {
		return "LONG"
	}
	return "FLAT"
}

// SignalKind selects how forecasts become a decision signal.
type SignalKind string

const (
	SignalForecast SignalKind = "forecast" // raw next-period forecast
	SignalUpside   SignalKind = "upside"   // (1+pred)/(1+rf_h) - 1
)

// VolTarget configures volatility-scaled sizing.
type VolTarget struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	AnnualTarget float64 `yaml:"annual_target" json:"annual_target"`
	Lookback     int     `yaml:"lookback" json:"lookback"`
	Floor        float64 `yaml:"floor" json:"floor"` // daily vol floor for zero/missing trailing vol
}

// Vol targeting defaults.
const (
	DefaultAnnualVolTarget = 0.15
	DefaultVolLookback     = 20
	DefaultVolFloor        = 0.01
)

// DailyTarget converts the annual target to a per-period one.
func (v VolTarget) DailyTarget(periodsPerYear int) float64 {
	return v.AnnualTarget / math.Sqrt(float64(periodsPerYear))
}

// StrategyParams is one hysteresis strategy configuration.
// ⭐ SSOT: 진입/청산 임계값, 비용, 변동성 타겟
type StrategyParams struct {
	Name           string     `yaml:"name" json:"name"`
	Signal         SignalKind `yaml:"signal" json:"signal"`
	HorizonDays    int        `yaml:"horizon_days,omitempty" json:"horizon_days,omitempty"`
	EntryThreshold float64    `yaml:"entry_threshold" json:"entry_threshold"`
	ExitThreshold  float64    `yaml:"exit_threshold" json:"exit_threshold"`
	CostRate       float64    `yaml:"cost_rate" json:"cost_rate"`
	VolTarget      VolTarget  `yaml:"vol_target,omitempty" json:"vol_target,omitempty"`
}

// NaiveDirectional is the benchmark rule: Long above zero, Flat below zero.
func NaiveDirectional(costRate float64) StrategyParams {
	return StrategyParams{
		Name:           "naive_directional",
		Signal:         SignalForecast,
		EntryThreshold: 0,
		ExitThreshold:  0,
		CostRate:       costRate,
	}
}

// StrategyPoint is one simulated date.
// Exposure is the realized exposure earning this date's return, decided on the previous date.
type StrategyPoint struct {
	Date        time.Time `json:"date"`
	Signal      float64   `json:"signal"`
	SignalOK    bool      `json:"signal_ok"`
	State       Position  `json:"state"` // decided at this date's close
	Exposure    float64   `json:"exposure"`
	AssetReturn float64   `json:"asset_return"`
	RiskFree    float64   `json:"risk_free"`
	Gross       float64   `json:"gross"`
	Cost        float64   `json:"cost"`
	Net         float64   `json:"net"`
	Equity      float64   `json:"equity"`
}

// RunConfig pairs a model spec with a strategy for one batch run.
type RunConfig struct {
	Model    ModelSpec      `json:"model"`
	Strategy StrategyParams `json:"strategy"`
}

// Name returns "model/strategy".
func (c RunConfig) Name() string {
	return c.Model.Name + "/" + c.Strategy.Name
}
