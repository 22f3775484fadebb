package commands

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/qval/internal/audit"
	"github.com/wonny/qval/internal/backtest"
	"github.com/wonny/qval/internal/contracts"
	"github.com/wonny/qval/internal/strategyconfig"
)

// backtestCmd represents the backtest command
var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "단일 모델 × 전략 백테스트",
	Long: `하나의 모델 예측으로 히스테리시스 전략을 시뮬레이션합니다.

백테스트는 테스트 구간(evaluation.boundary 이후)에서만 실행되며
t일에 결정된 포지션은 t+1일 수익률을 받습니다.

결과:
- 전략 / Buy&Hold / 무위험 수익률 성과 비교
- Sharpe, Sortino, MDD, VaR/CVaR
- 승률, 거래 횟수, 회전율, 비용

Flags:
  --model      모델 이름 (필수)
  --strategy   전략 이름 (필수, naive_directional 포함)
  --out        일별 포인트 CSV 저장 경로

Example:
  go run ./cmd/quant backtest --model m3_macro --strategy fair_value_band
  go run ./cmd/quant backtest --model ols_signal --strategy upside_vol_target --out points.csv`,
	RunE: runBacktest,
}

var (
	backtestModel    string
	backtestStrategy string
	backtestOut      string
)

func init() {
	rootCmd.AddCommand(backtestCmd)

	backtestCmd.Flags().StringVar(&backtestModel, "model", "", "모델 이름 (필수)")
	backtestCmd.Flags().StringVar(&backtestStrategy, "strategy", "", "전략 이름 (필수)")
	backtestCmd.Flags().StringVar(&backtestOut, "out", "", "일별 포인트 CSV 경로")

	backtestCmd.MarkFlagRequired("model")
	backtestCmd.MarkFlagRequired("strategy")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	started := time.Now()

	sess, err := newSession(true)
	if err != nil {
		return err
	}
	defer sess.Close()

	runCfg, err := findRunConfig(sess.exp, backtestModel, backtestStrategy)
	if err != nil {
		return err
	}

	ds, fingerprint, boundary, err := sess.prepared(ctx)
	if err != nil {
		return err
	}

	engine := backtest.NewEngine(sess.log.Zerolog(), sess.metrics)
	result, err := engine.Run(ctx, ds, runCfg, boundary)
	if err != nil {
		return fmt.Errorf("backtest failed: %w", err)
	}

	if backtestOut != "" {
		if err := writePointsCSV(backtestOut, result.Strategy.Points); err != nil {
			return err
		}
	}

	runID, err := sess.persist(ctx, audit.KindBacktest, runCfg.Name(), fingerprint, started, result)
	if err != nil {
		sess.log.WithError(err).Error("Failed to persist backtest")
	}

	if jsonOutput {
		return printJSON(result)
	}

	printBacktestResult(sess.exp, result)
	if backtestOut != "" {
		PrintSuccess("Points written to " + backtestOut)
	}
	if runID != "" {
		PrintSuccess("Saved run " + runID)
	}
	return nil
}

// findRunConfig resolves model and strategy names against the experiment.
func findRunConfig(exp *strategyconfig.Config, model, strategy string) (contracts.RunConfig, error) {
	var cfg contracts.RunConfig
	found := false
	for _, m := range exp.ModelSpecs() {
		if m.Name == model {
			cfg.Model, found = m, true
			break
		}
	}
	if !found {
		return cfg, fmt.Errorf("unknown model %q", model)
	}

	found = false
	params := exp.StrategyParams()
	if strategy == "naive_directional" && !exp.Batch.IncludeNaiveDirectional {
		params = append(params, contracts.NaiveDirectional(exp.Batch.NaiveCostRate))
	}
	for _, s := range params {
		if s.Name == strategy {
			cfg.Strategy, found = s, true
			break
		}
	}
	if !found {
		return cfg, fmt.Errorf("unknown strategy %q", strategy)
	}
	return cfg, nil
}

func printBacktestResult(exp *strategyconfig.Config, result *backtest.Result) {
	out := result.Strategy
	points := out.Points

	PrintHeader(Header{
		Title:      "Backtest: " + result.Config.Name(),
		Experiment: exp.Meta.ExperimentID,
		Boundary:   result.Boundary.Format("2006-01-02"),
		Extra: [][2]string{
			{"Period", fmt.Sprintf("%s ~ %s (%d days)",
				result.Report.StartDate.Format("2006-01-02"),
				result.Report.EndDate.Format("2006-01-02"),
				result.Report.Periods)},
			{"Thresholds", fmt.Sprintf("entry %g / exit %g", result.Config.Strategy.EntryThreshold, result.Config.Strategy.ExitThreshold)},
			{"Cost rate", fmt.Sprintf("%g", result.Config.Strategy.CostRate)},
		},
	})

	printPerformance(
		[]string{"Strategy", "Buy&Hold", "Risk-free"},
		[]contracts.PerformanceReport{result.Report, result.BuyAndHold, result.RiskFree},
	)
	fmt.Println()

	PrintKeyValue("Missing forecasts", strconv.Itoa(result.Missing), 18)
	PrintKeyValue("Fit fallbacks", strconv.Itoa(result.Fallbacks), 18)
	PrintKeyValue("Vol floor events", strconv.Itoa(out.FloorEvents), 18)
	PrintKeyValue("Duration", result.Duration.Round(time.Millisecond).String(), 18)
	fmt.Println()

	// Equity curve (last 10 points)
	fmt.Println("📈 Equity Curve (Last 10 Days)")
	start := len(points) - 10
	if start < 0 {
		start = 0
	}
	for _, p := range points[start:] {
		fmt.Printf("   %s  %-5s  exp %.2f  net %+.4f%%  equity %.4f\n",
			p.Date.Format("2006-01-02"), p.State, p.Exposure, p.Net*100, p.Equity)
	}
	fmt.Println()

	if result.Report.TotalTrades == 0 {
		PrintWarning("The strategy never changed state; thresholds may be outside the signal range")
	}
}

// writePointsCSV writes the daily strategy series.
func writePointsCSV(path string, points []contracts.StrategyPoint) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Write([]string{"date", "signal", "signal_ok", "state", "exposure", "asset_return", "risk_free", "gross", "cost", "net", "equity"})
	for _, p := range points {
		w.Write([]string{
			p.Date.Format("2006-01-02"),
			ff(p.Signal),
			strconv.FormatBool(p.SignalOK),
			p.State.String(),
			ff(p.Exposure),
			ff(p.AssetReturn),
			ff(p.RiskFree),
			ff(p.Gross),
			ff(p.Cost),
			ff(p.Net),
			ff(p.Equity),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

func ff(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
