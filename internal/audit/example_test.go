package audit_test

import (
	"fmt"
	"time"

	"github.com/wonny/qval/internal/audit"
	"github.com/wonny/qval/internal/contracts"
)

// Example_analyze shows the analyzer on a hand-written series.
func Example_analyze() {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	net := []float64{0.004, -0.002, 0.0001, 0.006}
	exposure := []float64{1, 1, 0, 1}

	points := make([]contracts.StrategyPoint, len(net))
	for i := range net {
		state := contracts.Flat
		if exposure[i] > 0 {
			state = contracts.Long
		}
		points[i] = contracts.StrategyPoint{
			Date:        start.AddDate(0, 0, i),
			State:       state,
			Exposure:    exposure[i],
			AssetReturn: net[i],
			RiskFree:    0.0001,
			Net:         net[i],
		}
	}

	report := audit.Analyze(points, 252)
	fmt.Printf("total return: %.4f\n", report.TotalReturn)
	fmt.Printf("sharpe: %s\n", report.Sharpe)
	fmt.Printf("max drawdown: %.4f\n", report.MaxDrawdown)
	fmt.Printf("trades: %d\n", report.TotalTrades)

	equity := audit.CompoundEquity(net)
	fmt.Printf("final equity: %.6f\n", equity[len(equity)-1])
}
