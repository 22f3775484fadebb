package audit

import (
	"math"
	"sort"
)

// VaRResult is a historical-simulation VaR/CVaR pair, losses as positive fractions.
type VaRResult struct {
	Confidence float64 `json:"confidence"`
	VaR        float64 `json:"var"`
	CVaR       float64 `json:"cvar"`
}

// CalculateVaR 과거 수익률 기반 VaR 계산 (Historical Simulation)
// confidence: 신뢰수준 (예: 0.95). VaR/CVaR는 손실을 양수로 표현, 손실이 없으면 0.
func CalculateVaR(returns []float64, confidence float64) VaRResult {
	if len(returns) == 0 {
		return VaRResult{Confidence: confidence}
	}

	// 오름차순: 손실이 앞에
	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	idx := int(math.Floor((1 - confidence) * float64(len(sorted))))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}

	return VaRResult{
		Confidence: confidence,
		VaR:        lossOf(sorted[idx]),
		CVaR:       calculateCVaR(sorted, idx),
	}
}

// calculateCVaR is the mean of the tail sorted[0..varIdx] (Expected Shortfall).
func calculateCVaR(sorted []float64, varIdx int) float64 {
	var sum float64
	for i := 0; i <= varIdx; i++ {
		sum += sorted[i]
	}
	return lossOf(sum / float64(varIdx+1))
}

func lossOf(r float64) float64 {
	if r < 0 {
		return -r
	}
	return 0
}
