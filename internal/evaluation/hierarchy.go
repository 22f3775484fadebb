package evaluation

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/wonny/qval/internal/contracts"
	"github.com/wonny/qval/internal/estimator"
	"github.com/wonny/qval/pkg/metrics"
)

// Window defaults for walk-forward specs.
const (
	DefaultRollingWindow = 252
	DefaultMinObs        = 126
)

// NaiveBenchmarks returns the reference rows every comparison should carry:
// the zero (random walk) forecast, the training mean and the expanding mean.
func NaiveBenchmarks(target string) []contracts.ModelSpec {
	return []contracts.ModelSpec{
		{
			Name:   "naive_random_walk",
			Family: contracts.FamilyRandomWalk,
			Target: target,
			Window: contracts.WindowSpec{Mode: contracts.ModeStatic},
		},
		{
			Name:   "naive_historical_mean",
			Family: contracts.FamilyHistoricalMean,
			Target: target,
			Window: contracts.WindowSpec{Mode: contracts.ModeStatic},
		},
		{
			Name:   "naive_expanding_mean",
			Family: contracts.FamilyHistoricalMean,
			Target: target,
			Window: contracts.WindowSpec{Mode: contracts.ModeExpanding, MinObs: DefaultMinObs},
		},
	}
}

// HierarchyConfig names the fields of the nested model family.
type HierarchyConfig struct {
	Target       string
	Market       string   // market excess return, the CAPM factor
	Macro        []string // exogenous factors added in M3
	Fundamentals []string // disclosure-lagged scores added in M4
	Window       int
	MinObs       int
}

// AnchorField is the dataset field holding a model's walk-forward forecast.
func AnchorField(model string) string {
	return "y_hat_" + model
}

// DefaultHierarchy builds the nested family M1..M5.
//
//	M1  static CAPM
//	M2  rolling CAPM
//	M3  M2 forecast + macro factors
//	M4  M3 + fundamentals
//	M5  M4 features on ridge and on boosted trees
//
// M1 and M2 condition on the same-date market return, so they explain returns
// but cannot drive a strategy. M3 onward lag every feature by one row.
// M3+ expect AnchorField("m2_rolling_capm") to exist (see AddForecastColumn).
func DefaultHierarchy(cfg HierarchyConfig) []contracts.ModelSpec {
	window := cfg.Window
	if window <= 0 {
		window = DefaultRollingWindow
	}
	minObs := cfg.MinObs
	if minObs <= 0 {
		minObs = DefaultMinObs
	}
	static := contracts.WindowSpec{Mode: contracts.ModeStatic}

	m3 := append([]string{AnchorField("m2_rolling_capm")}, cfg.Macro...)
	m4 := append(append([]string{}, m3...), cfg.Fundamentals...)

	return []contracts.ModelSpec{
		{
			Name:            "m1_static_capm",
			Family:          contracts.FamilyOLS,
			Target:          cfg.Target,
			Features:        []string{cfg.Market},
			Contemporaneous: true,
			Window:          static,
		},
		{
			Name:            "m2_rolling_capm",
			Family:          contracts.FamilyOLS,
			Target:          cfg.Target,
			Features:        []string{cfg.Market},
			Contemporaneous: true,
			Window:          contracts.WindowSpec{Mode: contracts.ModeRolling, Size: window, MinObs: minObs},
		},
		{
			Name:     "m3_macro",
			Family:   contracts.FamilyOLS,
			Target:   cfg.Target,
			Features: m3,
			Window:   static,
		},
		{
			Name:     "m4_fundamentals",
			Family:   contracts.FamilyOLS,
			Target:   cfg.Target,
			Features: m4,
			Window:   static,
		},
		{
			Name:     "m5_ridge",
			Family:   contracts.FamilyRidge,
			Target:   cfg.Target,
			Features: m4,
			Window:   static,
			Ridge:    contracts.RidgeParams{Lambda: estimator.DefaultRidgeLambda},
		},
		{
			Name:     "m5_gbt",
			Family:   contracts.FamilyGBT,
			Target:   cfg.Target,
			Features: m4,
			Window:   static,
		},
	}
}

// AddForecastColumn runs spec walk-forward and stores its forecasts as
// AnchorField(spec.Name). Every stored value satisfies the estimator's lag guard,
// so lagging the column again keeps downstream models point-in-time.
func AddForecastColumn(ctx context.Context, ds *contracts.Dataset, spec contracts.ModelSpec, split int, log zerolog.Logger, m *metrics.Registry) (*contracts.Dataset, error) {
	est, err := estimator.NewEstimator(spec, log, m)
	if err != nil {
		return nil, err
	}
	res, err := est.Forecasts(ctx, ds, split)
	if err != nil {
		return nil, fmt.Errorf("anchor %s: %w", spec.Name, err)
	}

	values := make([]float64, ds.Len())
	ok := make([]bool, ds.Len())
	for t, fc := range res.Forecasts {
		values[t], ok[t] = fc.Value, fc.OK
	}
	return ds.WithColumn(AnchorField(spec.Name), values, ok)
}

// PrepareHierarchy adds the anchor column needed by DefaultHierarchy's M3 onward.
func PrepareHierarchy(ctx context.Context, ds *contracts.Dataset, specs []contracts.ModelSpec, split int, log zerolog.Logger, m *metrics.Registry) (*contracts.Dataset, error) {
	needed := make(map[string]bool)
	for _, s := range specs {
		for _, f := range s.Features {
			needed[f] = true
		}
	}

	out := ds
	for _, s := range specs {
		if !needed[AnchorField(s.Name)] {
			continue
		}
		var err error
		out, err = AddForecastColumn(ctx, out, s, split, log, m)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
