package estimator

import (
	"fmt"

	"github.com/wonny/qval/internal/contracts"
)

// HistoricalMean predicts the mean of the target over the fit window. Features are ignored.
type HistoricalMean struct{}

// Family implements Regressor
func (HistoricalMean) Family() contracts.Family { return contracts.FamilyHistoricalMean }

// Fit implements Regressor
func (HistoricalMean) Fit(_ [][]float64, y []float64) (Params, error) {
	if len(y) == 0 {
		return Params{}, fmt.Errorf("%w: empty window", ErrInsufficientData)
	}
	return Params{Family: contracts.FamilyHistoricalMean, Intercept: mean(y), K: 1}, nil
}

// Predict implements Regressor
func (HistoricalMean) Predict(p Params, _ []float64) (float64, error) {
	return p.Intercept, nil
}

// RandomWalk predicts a zero return, the martingale benchmark.
type RandomWalk struct{}

// Family implements Regressor
func (RandomWalk) Family() contracts.Family { return contracts.FamilyRandomWalk }

// Fit implements Regressor
func (RandomWalk) Fit(_ [][]float64, _ []float64) (Params, error) {
	return Params{Family: contracts.FamilyRandomWalk}, nil
}

// Predict implements Regressor
func (RandomWalk) Predict(Params, []float64) (float64, error) {
	return 0, nil
}
