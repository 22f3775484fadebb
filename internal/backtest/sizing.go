package backtest

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// TrailingVol is the sample standard deviation of returns[t-lookback+1 .. t].
// It reports false with fewer than two returns in the window.
func TrailingVol(returns []float64, t, lookback int) (float64, bool) {
	lo := t - lookback + 1
	if lo < 0 {
		lo = 0
	}
	window := returns[lo : t+1]
	if len(window) < 2 {
		return 0, false
	}
	return stat.StdDev(window, nil), true
}

// Exposure is min(1, target/vol). A zero, negative or non-finite vol is replaced by floor;
// floored reports that substitution.
func Exposure(target, vol, floor float64) (exposure float64, floored bool) {
	if vol <= 0 || math.IsNaN(vol) || math.IsInf(vol, 0) {
		vol, floored = floor, true
	}
	if vol <= 0 {
		// no usable floor: stay fully invested rather than divide by zero
		return 1, floored
	}
	return math.Min(1, target/vol), floored
}
