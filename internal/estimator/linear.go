package estimator

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/wonny/qval/internal/contracts"
)

// DefaultRidgeLambda is used when a ridge spec leaves lambda unset.
const DefaultRidgeLambda = 1.0

// maxCondition bounds the design condition number accepted by OLS.
const maxCondition = 1e12

// OLS is ordinary least squares solved by QR decomposition.
type OLS struct {
	Intercept bool
}

// Family implements Regressor
func (o *OLS) Family() contracts.Family { return contracts.FamilyOLS }

// Fit solves min ||y - Xb||². A rank-deficient design is a non-convergence.
func (o *OLS) Fit(X [][]float64, y []float64) (Params, error) {
	n, k := len(y), width(X)
	p := k
	if o.Intercept {
		p++
	}
	if n == 0 || n < p {
		return Params{}, fmt.Errorf("%w: %d rows for %d parameters", ErrInsufficientData, n, p)
	}
	if p == 0 {
		return Params{Family: contracts.FamilyOLS}, nil
	}

	A := mat.NewDense(n, p, nil)
	for i, row := range X {
		col := 0
		if o.Intercept {
			A.Set(i, 0, 1)
			col = 1
		}
		for j, v := range row {
			A.Set(i, col+j, v)
		}
	}
	b := mat.NewVecDense(n, append([]float64(nil), y...))

	var qr mat.QR
	qr.Factorize(A)
	if c := qr.Cond(); math.IsNaN(c) || c > maxCondition {
		return Params{}, fmt.Errorf("%w: design condition number %.3g", ErrFitNonConvergence, c)
	}

	var beta mat.VecDense
	if err := qr.SolveVecTo(&beta, false, b); err != nil {
		return Params{}, fmt.Errorf("%w: %v", ErrFitNonConvergence, err)
	}

	params := Params{Family: contracts.FamilyOLS, Coef: make([]float64, k), K: p}
	col := 0
	if o.Intercept {
		params.Intercept = beta.AtVec(0)
		col = 1
	}
	for j := 0; j < k; j++ {
		params.Coef[j] = beta.AtVec(col + j)
	}
	if !allFinite(params.Coefficients()...) {
		return Params{}, fmt.Errorf("%w: non-finite coefficients", ErrFitNonConvergence)
	}
	return params, nil
}

// Predict implements Regressor
func (o *OLS) Predict(p Params, x []float64) (float64, error) {
	return linearPredict(p, x)
}

// Ridge is L2-penalized least squares. Features and target are centered so the
// intercept is never penalized.
type Ridge struct {
	Lambda float64
}

// Family implements Regressor
func (r *Ridge) Family() contracts.Family { return contracts.FamilyRidge }

// Fit solves (Xc'Xc + λI)b = Xc'yc with a Cholesky factorization.
func (r *Ridge) Fit(X [][]float64, y []float64) (Params, error) {
	n, k := len(y), width(X)
	if n < 2 {
		return Params{}, fmt.Errorf("%w: %d rows", ErrInsufficientData, n)
	}

	yBar := mean(y)
	xBar := make([]float64, k)
	for _, row := range X {
		for j, v := range row {
			xBar[j] += v
		}
	}
	for j := range xBar {
		xBar[j] /= float64(n)
	}
	if k == 0 {
		return Params{Family: contracts.FamilyRidge, Intercept: yBar, Coef: []float64{}, K: 1}, nil
	}

	gram := mat.NewSymDense(k, nil)
	rhs := mat.NewVecDense(k, nil)
	for i, row := range X {
		yc := y[i] - yBar
		for a := 0; a < k; a++ {
			xa := row[a] - xBar[a]
			rhs.SetVec(a, rhs.AtVec(a)+xa*yc)
			for b := a; b < k; b++ {
				gram.SetSym(a, b, gram.At(a, b)+xa*(row[b]-xBar[b]))
			}
		}
	}
	for a := 0; a < k; a++ {
		gram.SetSym(a, a, gram.At(a, a)+r.Lambda)
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(gram); !ok {
		return Params{}, fmt.Errorf("%w: penalized gram matrix not positive definite", ErrFitNonConvergence)
	}
	var beta mat.VecDense
	if err := chol.SolveVecTo(&beta, rhs); err != nil {
		return Params{}, fmt.Errorf("%w: %v", ErrFitNonConvergence, err)
	}

	params := Params{Family: contracts.FamilyRidge, Coef: make([]float64, k), K: k + 1}
	params.Intercept = yBar
	for j := 0; j < k; j++ {
		params.Coef[j] = beta.AtVec(j)
		params.Intercept -= params.Coef[j] * xBar[j]
	}
	if !allFinite(params.Coefficients()...) {
		return Params{}, fmt.Errorf("%w: non-finite coefficients", ErrFitNonConvergence)
	}
	return params, nil
}

// Predict implements Regressor
func (r *Ridge) Predict(p Params, x []float64) (float64, error) {
	return linearPredict(p, x)
}
