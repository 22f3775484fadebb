package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/qval/internal/audit"
	"github.com/wonny/qval/internal/contracts"
	"github.com/wonny/qval/internal/evaluation"
	"github.com/wonny/qval/pkg/redis"
)

// evaluateCmd represents the evaluate command
var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "중첩 모델 비교 (MSE, R²_OOS, AIC, BIC)",
	Long: `실험 설정의 모든 모델을 동일한 학습/테스트 분할로 비교합니다.

비교 대상:
- naive 벤치마크 (random walk, 학습 평균, 확장 평균)
- M1~M5 중첩 모델 (evaluation.hierarchy.enabled)
- models 섹션의 사용자 모델

R²_OOS 벤치마크는 학습 구간 평균입니다. 정의되지 않는 지표는 n/a로 표시됩니다.
결과는 (설정 해시, 데이터 지문)으로 Redis에 캐시됩니다 (REDIS_ENABLED).

Example:
  go run ./cmd/quant evaluate -e configs/experiment.yaml
  go run ./cmd/quant evaluate --no-cache --json`,
	RunE: runEvaluate,
}

var evaluateNoCache bool

func init() {
	rootCmd.AddCommand(evaluateCmd)

	evaluateCmd.Flags().BoolVar(&evaluateNoCache, "no-cache", false, "Redis 캐시 무시")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	started := time.Now()

	sess, err := newSession(true)
	if err != nil {
		return err
	}
	defer sess.Close()

	ds, fingerprint, boundary, err := sess.prepared(ctx)
	if err != nil {
		return err
	}

	specs := sess.exp.ModelSpecs()
	evaluator := evaluation.NewEvaluator(sess.log.Zerolog(), sess.metrics)
	compute := func() (*contracts.ComparisonReport, error) {
		return evaluator.Evaluate(ctx, ds, specs, boundary)
	}

	report, hit, err := evaluate(ctx, sess, fingerprint, compute)
	if err != nil {
		return err
	}
	sess.metrics.CacheLookup("comparison", hit)

	runID, err := sess.persist(ctx, audit.KindEvaluate, sess.exp.Meta.ExperimentID, fingerprint, started, report)
	if err != nil {
		sess.log.WithError(err).Error("Failed to persist evaluation")
	}

	if jsonOutput {
		return printJSON(report)
	}

	PrintHeader(Header{
		Title:      "Nested Model Evaluation",
		Experiment: sess.exp.Meta.ExperimentID,
		Hash:       sess.expHash,
		Boundary:   boundary.Format("2006-01-02"),
		Extra: [][2]string{
			{"Target", report.Target},
			{"Rows", fmt.Sprintf("train %d / test %d / scored %d", report.TrainRows, report.TestRows, report.ScoredRows)},
			{"Train mean", fmt.Sprintf("%.6f", report.TrainMean)},
		},
	})
	printComparison(report)
	fmt.Println()
	if hit {
		PrintInfo("Served from cache")
	}
	if runID != "" {
		PrintSuccess("Saved run " + runID)
	}
	return nil
}

func evaluate(ctx context.Context, sess *session, fingerprint string,
	compute func() (*contracts.ComparisonReport, error)) (*contracts.ComparisonReport, bool, error) {
	if evaluateNoCache {
		report, err := compute()
		return report, false, err
	}
	key := redis.ComparisonKey(sess.expHash, fingerprint)
	return redis.GetOrCompute(ctx, sess.cache(ctx), key, sess.cfg.Redis.TTL, compute)
}

// printComparison prints one row per model in evaluation order.
func printComparison(report *contracts.ComparisonReport) {
	widths := []int{24, 6, 4, 5, 10, 10, 10, 9, 11, 11, 8}
	PrintTableHeader([]string{
		"Model", "Family", "k", "Miss", "MSE", "RMSE", "MAE", "R²_OOS", "AIC", "BIC", "Hit",
	}, widths)

	for _, m := range report.Models {
		PrintTableRow([]string{
			truncate(m.Model, widths[0]),
			truncate(string(m.Family), widths[1]),
			fmt.Sprintf("%d", m.NumParams),
			fmt.Sprintf("%d", m.Missing),
			fmtMetric(m.MSE, "%.3e"),
			fmtMetric(m.RMSE, "%.3e"),
			fmtMetric(m.MAE, "%.3e"),
			fmtMetric(m.R2OOS, "%.4f"),
			fmtMetric(m.AIC, "%.1f"),
			fmtMetric(m.BIC, "%.1f"),
			fmtPctMetric(m.HitRate),
		}, widths)
	}
}
