package estimator

import "errors"

var (
	// ErrInsufficientData means a window holds fewer complete rows than required.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrFitNonConvergence means the fitting primitive failed (singular design, non-finite solution).
	ErrFitNonConvergence = errors.New("fit did not converge")

	// ErrLookahead means a forecast would use a fit whose span does not end before its date.
	// It is fatal for the run.
	ErrLookahead = errors.New("lookahead violation")

	// ErrUnknownField means a feature or target never appears in the dataset.
	ErrUnknownField = errors.New("unknown field")

	// ErrDimension means a feature vector does not match the fitted parameters.
	ErrDimension = errors.New("feature dimension mismatch")
)
