package contracts

import (
	"fmt"
	"time"
)

// Family identifies a model family behind the fit/predict capability.
type Family string

const (
	FamilyOLS            Family = "ols"
	FamilyRidge          Family = "ridge"
	FamilyGBT            Family = "gbt"
	FamilyHistoricalMean Family = "historical_mean"
	FamilyRandomWalk     Family = "random_walk"
)

// WindowMode selects how the estimation window advances.
type WindowMode string

const (
	ModeStatic    WindowMode = "static"    // one fit on the training partition
	ModeExpanding WindowMode = "expanding" // [0, t)
	ModeRolling   WindowMode = "rolling"   // [t-W, t)
)

// WindowSpec configures the estimation window.
type WindowSpec struct {
	Mode       WindowMode `yaml:"mode" json:"mode"`
	Size       int        `yaml:"size,omitempty" json:"size,omitempty"`
	MinObs     int        `yaml:"min_obs,omitempty" json:"min_obs,omitempty"`
	RefitEvery int        `yaml:"refit_every,omitempty" json:"refit_every,omitempty"`
}

// Validate checks window bounds.
func (w WindowSpec) Validate() error {
	switch w.Mode {
	case ModeStatic, ModeExpanding:
	case ModeRolling:
		if w.Size <= 0 {
			return fmt.Errorf("rolling window size must be positive, got %d", w.Size)
		}
		if w.MinObs > w.Size {
			return fmt.Errorf("min_obs %d exceeds window size %d", w.MinObs, w.Size)
		}
	default:
		return fmt.Errorf("unknown window mode %q", w.Mode)
	}
	if w.MinObs < 0 || w.RefitEvery < 0 {
		return fmt.Errorf("min_obs and refit_every must be non-negative")
	}
	return nil
}

// RidgeParams configures the ridge family.
type RidgeParams struct {
	Lambda float64 `yaml:"lambda" json:"lambda"`
}

// GBTParams configures gradient-boosted trees.
type GBTParams struct {
	Rounds       int     `yaml:"rounds" json:"rounds"`
	LearningRate float64 `yaml:"learning_rate" json:"learning_rate"`
	MaxDepth     int     `yaml:"max_depth" json:"max_depth"`
	MinLeaf      int     `yaml:"min_leaf" json:"min_leaf"`
}

// ModelSpec names an ordered feature list, a target and an estimation mode.
// ⭐ SSOT: 모델 정의 (features, target, window)
type ModelSpec struct {
	Name     string     `yaml:"name" json:"name"`
	Family   Family     `yaml:"family" json:"family"`
	Features []string   `yaml:"features" json:"features"`
	Target   string     `yaml:"target" json:"target"`
	Window   WindowSpec `yaml:"window" json:"window"`

	// NoIntercept drops the constant term for linear families.
	NoIntercept bool `yaml:"no_intercept,omitempty" json:"no_intercept,omitempty"`

	// FeatureLag is the number of rows between a feature and the target it explains.
	// Zero means the default of 1. Contemporaneous forces 0, which conditions each
	// forecast on same-date factor realizations.
	FeatureLag      int  `yaml:"feature_lag,omitempty" json:"feature_lag,omitempty"`
	Contemporaneous bool `yaml:"contemporaneous,omitempty" json:"contemporaneous,omitempty"`

	Ridge RidgeParams `yaml:"ridge,omitempty" json:"ridge,omitempty"`
	GBT   GBTParams   `yaml:"gbt,omitempty" json:"gbt,omitempty"`
}

// Lag returns the effective feature lag.
func (m ModelSpec) Lag() int {
	if m.Contemporaneous {
		return 0
	}
	if m.FeatureLag <= 0 {
		return 1
	}
	return m.FeatureLag
}

// MinObs returns the minimum sample size, defaulting to the number of parameters plus one.
func (m ModelSpec) MinObs() int {
	if m.Window.MinObs > 0 {
		return m.Window.MinObs
	}
	if m.Window.Mode == ModeRolling {
		return m.Window.Size
	}
	return len(m.Features) + 2
}

// Forecast is a prediction for Date built from a fit whose span ends strictly before Date.
// OK is false when the forecast is withheld (insufficient history or missing inputs).
type Forecast struct {
	Date      time.Time `json:"date"`
	Value     float64   `json:"value"`
	OK        bool      `json:"ok"`
	SpanStart time.Time `json:"span_start,omitempty"`
	SpanEnd   time.Time `json:"span_end,omitempty"`
	Obs       int       `json:"obs,omitempty"`
	Fallback  bool      `json:"fallback,omitempty"`
}
