package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/qval/internal/backtest"
	"github.com/wonny/qval/internal/batch"
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "모델 × 전략 그리드 병렬 실행",
	Long: `실험의 모든 (모델, 전략) 조합을 병렬로 백테스트합니다.

- 워커 수: BATCH_WORKERS (기본 4)
- 실행당 타임아웃: RUN_TIMEOUT (기본 10m)
- 결과 저장: PERSIST_RESULTS=true (PostgreSQL qval.runs)

lookahead 위반은 전체 배치를 중단합니다. 그 외 실패는 해당 실행에만 기록됩니다.

Example:
  go run ./cmd/quant batch -e configs/experiment.yaml
  BATCH_WORKERS=8 go run ./cmd/quant batch --json`,
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	sess, err := newSession(true)
	if err != nil {
		return err
	}
	defer sess.Close()

	configs := sess.exp.RunConfigs()
	if len(configs) == 0 {
		return fmt.Errorf("experiment has no runnable (model, strategy) pairs")
	}

	ds, _, boundary, err := sess.prepared(ctx)
	if err != nil {
		return err
	}

	runner, err := newBatchRunner(ctx, sess)
	if err != nil {
		return err
	}

	report, err := runner.Run(ctx, ds, configs, boundary)
	if err != nil {
		return fmt.Errorf("batch aborted: %w", err)
	}

	if jsonOutput {
		return printJSON(report)
	}

	PrintHeader(Header{
		Title:      "Batch " + report.BatchID,
		Experiment: sess.exp.Meta.ExperimentID,
		Hash:       sess.expHash,
		Boundary:   boundary.Format("2006-01-02"),
		Extra: [][2]string{
			{"Runs", fmt.Sprintf("%d (%d failed)", len(report.Outcomes), report.Failed)},
			{"Workers", fmt.Sprintf("%d", sess.cfg.Batch.Workers)},
			{"Duration", report.Duration},
		},
	})
	printBatch(report)
	fmt.Println()
	if report.Failed > 0 {
		PrintWarning(fmt.Sprintf("%d run(s) failed; see the Error column", report.Failed))
	} else {
		PrintSuccess("All runs completed")
	}
	return nil
}

// newBatchRunner wires the engine, worker pool and optional run store.
func newBatchRunner(ctx context.Context, sess *session) (*batch.Runner, error) {
	opts := batch.Options{
		Workers:    sess.cfg.Batch.Workers,
		RunTimeout: sess.cfg.Batch.RunTimeout,
		ConfigHash: sess.expHash,
	}

	store, err := sess.runStore(ctx)
	if err != nil {
		return nil, err
	}
	if store != nil {
		opts.Store = store
	}

	engine := backtest.NewEngine(sess.log.Zerolog(), sess.metrics)
	return batch.NewRunner(engine, opts, sess.log.Zerolog(), sess.metrics), nil
}

func printBatch(report *batch.Report) {
	widths := []int{40, 10, 10, 8, 9, 7, 9}
	PrintTableHeader([]string{"Run", "Total", "Annual", "Sharpe", "MaxDD", "Trades", "Cost"}, widths)

	for _, o := range report.Outcomes {
		name := truncate(o.Config.Name(), widths[0])
		if o.Error != "" {
			fmt.Printf("%-*s  ❌ %s\n", widths[0], name, o.Error)
			continue
		}
		r := o.Result.Report
		PrintTableRow([]string{
			name,
			fmtPct(r.TotalReturn),
			fmtPctMetric(r.AnnualReturn),
			fmtMetric(r.Sharpe, "%.3f"),
			fmtPct(r.MaxDrawdown),
			fmt.Sprintf("%d", r.TotalTrades),
			fmtPct(r.TotalCost),
		}, widths)
	}
}
