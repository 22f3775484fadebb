package marketdata

import (
	"math/rand"
	"time"

	"github.com/wonny/qval/internal/contracts"
)

// SyntheticConfig drives the deterministic demo/test generator.
type SyntheticConfig struct {
	Seed       int64
	Start      time.Time
	Days       int     // business days
	Beta       float64 // loading of excess return on the previous day's signal
	MarketBeta float64 // loading on the same-day market excess return
	SignalVol  float64
	MarketVol  float64
	Noise      float64
	RiskFree   float64 // daily
	LagMonths  int
}

// DefaultSyntheticConfig mirrors a liquid single stock: ~10 years of business days.
func DefaultSyntheticConfig() SyntheticConfig {
	return SyntheticConfig{
		Seed:       42,
		Start:      time.Date(2014, 1, 2, 0, 0, 0, 0, time.UTC),
		Days:       2520,
		Beta:       0.5,
		MarketBeta: 1.0,
		SignalVol:  0.01,
		MarketVol:  0.012,
		Noise:      0.01,
		RiskFree:   0.0004,
		LagMonths:  contracts.DefaultDisclosureLagMonths,
	}
}

// SyntheticData is a generated market series plus quarterly fundamentals.
type SyntheticData struct {
	Observations []contracts.Observation
	Fundamentals []contracts.FundamentalRecord
}

// Synthetic generates
//
//	excess_t = Beta·signal_{t-1} + MarketBeta·market_excess_t + Noise·ε_t
//
// together with a quarterly "score_value" fundamental published LagMonths after period end.
func Synthetic(cfg SyntheticConfig) SyntheticData {
	rng := rand.New(rand.NewSource(cfg.Seed))

	var out SyntheticData
	date := cfg.Start
	prevSignal := 0.0
	for len(out.Observations) < cfg.Days {
		if wd := date.Weekday(); wd == time.Saturday || wd == time.Sunday {
			date = date.AddDate(0, 0, 1)
			continue
		}

		signal := cfg.SignalVol * rng.NormFloat64()
		mktExcess := 0.0003 + cfg.MarketVol*rng.NormFloat64()
		excess := cfg.Beta*prevSignal + cfg.MarketBeta*mktExcess + cfg.Noise*rng.NormFloat64()

		out.Observations = append(out.Observations, contracts.Observation{
			Date:         date,
			AssetReturn:  excess + cfg.RiskFree,
			MarketReturn: mktExcess + cfg.RiskFree,
			RiskFree:     cfg.RiskFree,
			Factors:      map[string]float64{"signal": signal},
		})
		prevSignal = signal
		date = date.AddDate(0, 0, 1)
	}
	if len(out.Observations) == 0 {
		return out
	}

	last := out.Observations[len(out.Observations)-1].Date
	y, _, _ := cfg.Start.Date()
	first := time.Date(y, time.March, 31, 0, 0, 0, 0, time.UTC)
	for k := 0; ; k++ {
		q := contracts.AddMonths(first, 3*k)
		if q.After(last) {
			break
		}
		out.Fundamentals = append(out.Fundamentals, contracts.NewFundamentalRecord(q, cfg.LagMonths, map[string]float64{
			"score_value": rng.NormFloat64(),
		}))
	}
	return out
}
