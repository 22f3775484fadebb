package estimator

import (
	"fmt"
	"math"

	"github.com/wonny/qval/internal/contracts"
)

// Regressor is the fit/predict capability every model family implements.
// Evaluator and simulator code is written once against this interface.
type Regressor interface {
	Family() contracts.Family
	Fit(X [][]float64, y []float64) (Params, error)
	Predict(p Params, x []float64) (float64, error)
}

// Params holds fitted parameters. Linear families use Intercept and Coef;
// boosted trees use Intercept as the base score plus Trees.
type Params struct {
	Family    contracts.Family `json:"family"`
	Intercept float64          `json:"intercept"`
	Coef      []float64        `json:"coef,omitempty"`
	Trees     []Tree           `json:"trees,omitempty"`
	Shrinkage float64          `json:"shrinkage,omitempty"`
	K         int              `json:"k"` // parameter count used by AIC/BIC
}

// Coefficients returns intercept followed by slopes for linear families.
func (p Params) Coefficients() []float64 {
	if len(p.Trees) > 0 {
		return nil
	}
	out := make([]float64, 0, len(p.Coef)+1)
	out = append(out, p.Intercept)
	return append(out, p.Coef...)
}

// New builds the regressor for a spec's family.
func New(spec contracts.ModelSpec) (Regressor, error) {
	intercept := !spec.NoIntercept
	switch spec.Family {
	case contracts.FamilyOLS:
		return &OLS{Intercept: intercept}, nil
	case contracts.FamilyRidge:
		lambda := spec.Ridge.Lambda
		if lambda == 0 {
			lambda = DefaultRidgeLambda
		}
		if lambda < 0 {
			return nil, fmt.Errorf("ridge lambda must be positive, got %f", lambda)
		}
		return &Ridge{Lambda: lambda}, nil
	case contracts.FamilyGBT:
		return NewGBT(spec.GBT), nil
	case contracts.FamilyHistoricalMean:
		return HistoricalMean{}, nil
	case contracts.FamilyRandomWalk:
		return RandomWalk{}, nil
	default:
		return nil, fmt.Errorf("unknown model family %q", spec.Family)
	}
}

// linearPredict evaluates intercept + coef·x.
func linearPredict(p Params, x []float64) (float64, error) {
	if len(x) != len(p.Coef) {
		return 0, fmt.Errorf("%w: got %d features, fitted %d", ErrDimension, len(x), len(p.Coef))
	}
	y := p.Intercept
	for j, c := range p.Coef {
		y += c * x[j]
	}
	return y, nil
}

func allFinite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func mean(y []float64) float64 {
	if len(y) == 0 {
		return 0
	}
	var s float64
	for _, v := range y {
		s += v
	}
	return s / float64(len(y))
}

func width(X [][]float64) int {
	if len(X) == 0 {
		return 0
	}
	return len(X[0])
}
