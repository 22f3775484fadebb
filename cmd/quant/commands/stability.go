package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/qval/internal/audit"
	"github.com/wonny/qval/internal/evaluation"
	"github.com/wonny/qval/pkg/redis"
)

// stabilityCmd represents the stability command
var stabilityCmd = &cobra.Command{
	Use:   "stability",
	Short: "롤링 R² 안정성 비교",
	Long: `두 모델(stability.base, stability.extended)의 롤링 윈도우 in-sample R²와
adjusted R²를 비교합니다. 확장 모델의 추가 설명력이 시간에 따라 안정적인지 확인합니다.

Example:
  go run ./cmd/quant stability -e configs/experiment.yaml
  go run ./cmd/quant stability --window 126 --step 21`,
	RunE: runStability,
}

var (
	stabilityWindow int
	stabilityStep   int
)

func init() {
	rootCmd.AddCommand(stabilityCmd)

	stabilityCmd.Flags().IntVar(&stabilityWindow, "window", 0, "윈도우 길이 (기본: stability.window)")
	stabilityCmd.Flags().IntVar(&stabilityStep, "step", 0, "이동 간격 (기본: stability.step)")
}

func runStability(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	started := time.Now()

	sess, err := newSession(true)
	if err != nil {
		return err
	}
	defer sess.Close()

	base, ext, err := sess.exp.StabilitySpecs()
	if err != nil {
		return err
	}
	window, step := sess.exp.Stability.Window, sess.exp.Stability.Step
	if stabilityWindow > 0 {
		window = stabilityWindow
	}
	if stabilityStep > 0 {
		step = stabilityStep
	}

	ds, fingerprint, _, err := sess.prepared(ctx)
	if err != nil {
		return err
	}

	compute := func() ([]evaluation.StabilityPoint, error) {
		return evaluation.RollingR2(ctx, ds, base, ext, window, step)
	}
	key := redis.StabilityKey(sess.expHash, fmt.Sprintf("%s:%d:%d", fingerprint, window, step))
	points, hit, err := redis.GetOrCompute(ctx, sess.cache(ctx), key, sess.cfg.Redis.TTL, compute)
	if err != nil {
		return err
	}
	sess.metrics.CacheLookup("stability", hit)

	runID, err := sess.persist(ctx, audit.KindStability, base.Name+"/"+ext.Name, fingerprint, started, points)
	if err != nil {
		sess.log.WithError(err).Error("Failed to persist stability run")
	}

	if jsonOutput {
		return printJSON(points)
	}

	PrintHeader(Header{
		Title:      "Rolling R² Stability",
		Experiment: sess.exp.Meta.ExperimentID,
		Hash:       sess.expHash,
		Extra: [][2]string{
			{"Base", base.Name},
			{"Extended", ext.Name},
			{"Window", fmt.Sprintf("%d rows, step %d", window, step)},
		},
	})
	printStability(points)
	fmt.Println()
	summarizeStability(points)
	if runID != "" {
		PrintSuccess("Saved run " + runID)
	}
	return nil
}

func printStability(points []evaluation.StabilityPoint) {
	widths := []int{10, 10, 5, 9, 9, 9, 9, 9, 9}
	PrintTableHeader([]string{"Start", "End", "n", "R² base", "R² ext", "ΔR²", "adj base", "adj ext", "Δadj"}, widths)
	for _, p := range points {
		PrintTableRow([]string{
			p.WindowStart.Format("2006-01-02"),
			p.WindowEnd.Format("2006-01-02"),
			fmt.Sprintf("%d", p.N),
			fmtMetric(p.R2Base, "%.4f"),
			fmtMetric(p.R2Ext, "%.4f"),
			fmtMetric(p.DeltaR2, "%+.4f"),
			fmtMetric(p.AdjR2Base, "%.4f"),
			fmtMetric(p.AdjR2Ext, "%.4f"),
			fmtMetric(p.DeltaAdjR2, "%+.4f"),
		}, widths)
	}
}

// summarizeStability reports how often the extension improves adjusted R².
func summarizeStability(points []evaluation.StabilityPoint) {
	defined, improved := 0, 0
	for _, p := range points {
		if !p.DeltaAdjR2.Defined {
			continue
		}
		defined++
		if p.DeltaAdjR2.Value > 0 {
			improved++
		}
	}
	if defined == 0 {
		PrintWarning("No window produced a defined adjusted R² difference")
		return
	}
	PrintInfo(fmt.Sprintf("Extension improves adjusted R² in %d of %d windows (%s)",
		improved, defined, fmtPct(float64(improved)/float64(defined))))
}
