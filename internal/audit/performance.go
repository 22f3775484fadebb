// Package audit computes performance reports over finished strategy series and
// persists run results.
package audit

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/wonny/qval/internal/contracts"
)

// VaRConfidence is the confidence level of the reported VaR/CVaR.
const VaRConfidence = 0.95

// Analyze computes the performance report of a finished series.
// ⭐ SSOT: 성과 분석 로직은 여기서만 (상태 없음, 어떤 시리즈에도 호출 가능)
//
// Returns are net of cost. Sharpe and Sortino use excess over each point's
// risk-free rate. Undefined ratios are reported as such, never as 0 or Inf.
func Analyze(points []contracts.StrategyPoint, periodsPerYear int) contracts.PerformanceReport {
	report := contracts.PerformanceReport{Periods: len(points), FinalEquity: 1}
	if len(points) == 0 {
		empty := contracts.UndefinedMetric("empty series")
		report.AnnualReturn, report.Volatility, report.Sharpe = empty, empty, empty
		report.Sortino, report.WinRate = empty, empty
		return report
	}
	report.StartDate = points[0].Date
	report.EndDate = points[len(points)-1].Date

	net := make([]float64, len(points))
	excess := make([]float64, len(points))
	for i, p := range points {
		net[i] = p.Net
		excess[i] = p.Net - p.RiskFree
	}
	p := float64(periodsPerYear)

	// 수익률
	equity := CompoundEquity(net)
	report.FinalEquity = equity[len(equity)-1]
	report.TotalReturn = report.FinalEquity - 1
	report.AnnualReturn = annualize(report.FinalEquity, len(net), p)

	// 리스크
	report.Volatility = calculateVolatility(net, p)
	report.Sharpe = calculateSharpe(excess, p)
	report.Sortino = calculateSortino(excess, p)
	report.MaxDrawdown = calculateMaxDrawdown(equity)
	v := CalculateVaR(net, VaRConfidence)
	report.VaR95, report.CVaR95 = v.VaR, v.CVaR

	// 거래 통계
	report.WinRate, report.LongDays = calculateWinRate(points)
	report.TotalTrades, report.Turnover, report.TotalCost = tradeStats(points)

	return report
}

// CompoundEquity returns the equity curve starting from 1: equity[i] = ∏_{j≤i}(1+r_j).
func CompoundEquity(returns []float64) []float64 {
	out := make([]float64, len(returns))
	equity := 1.0
	for i, r := range returns {
		equity *= 1 + r
		out[i] = equity
	}
	return out
}

// annualize is the geometric annual return: final^(P/n) - 1.
func annualize(finalEquity float64, n int, periodsPerYear float64) contracts.Metric {
	if n == 0 {
		return contracts.UndefinedMetric("empty series")
	}
	if finalEquity <= 0 {
		return contracts.UndefinedMetric("equity wiped out")
	}
	return contracts.DefinedMetric(math.Pow(finalEquity, periodsPerYear/float64(n)) - 1)
}

// calculateVolatility is the sample standard deviation scaled by √P.
func calculateVolatility(returns []float64, periodsPerYear float64) contracts.Metric {
	if len(returns) < 2 {
		return contracts.UndefinedMetric("fewer than two returns")
	}
	return contracts.DefinedMetric(stat.StdDev(returns, nil) * math.Sqrt(periodsPerYear))
}

func calculateSharpe(excess []float64, periodsPerYear float64) contracts.Metric {
	if len(excess) < 2 {
		return contracts.UndefinedMetric("fewer than two returns")
	}
	mean, std := stat.MeanStdDev(excess, nil)
	if std == 0 {
		return contracts.UndefinedMetric("zero excess return volatility")
	}
	return contracts.DefinedMetric(mean / std * math.Sqrt(periodsPerYear))
}

// calculateSortino divides mean excess by downside deviation sqrt(mean(min(0,x)²)).
func calculateSortino(excess []float64, periodsPerYear float64) contracts.Metric {
	if len(excess) < 2 {
		return contracts.UndefinedMetric("fewer than two returns")
	}
	var sumSq float64
	for _, x := range excess {
		if x < 0 {
			sumSq += x * x
		}
	}
	downside := math.Sqrt(sumSq / float64(len(excess)))
	if downside == 0 {
		return contracts.UndefinedMetric("no downside returns")
	}
	return contracts.DefinedMetric(stat.Mean(excess, nil) / downside * math.Sqrt(periodsPerYear))
}

// calculateMaxDrawdown is the largest peak-to-trough decline as a positive fraction.
// The curve starts from an implicit peak of 1.
func calculateMaxDrawdown(equity []float64) float64 {
	peak := 1.0
	maxDD := 0.0
	for _, v := range equity {
		if v > peak {
			peak = v
		}
		if dd := (peak - v) / peak; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// calculateWinRate is the share of Long-exposed dates whose asset return was positive.
func calculateWinRate(points []contracts.StrategyPoint) (contracts.Metric, int) {
	longDays, wins := 0, 0
	for _, p := range points {
		if p.Exposure <= 0 {
			continue
		}
		longDays++
		if p.AssetReturn > 0 {
			wins++
		}
	}
	if longDays == 0 {
		return contracts.UndefinedMetric("never long"), 0
	}
	return contracts.DefinedMetric(float64(wins) / float64(longDays)), longDays
}

// tradeStats counts state transitions from the initial Flat state, turnover and cost.
func tradeStats(points []contracts.StrategyPoint) (trades int, turnover, cost float64) {
	state := contracts.Flat
	exposure := 0.0
	for _, p := range points {
		if p.State != state {
			trades++
			state = p.State
		}
		turnover += math.Abs(p.Exposure - exposure)
		exposure = p.Exposure
		cost += p.Cost
	}
	return trades, turnover, cost
}
