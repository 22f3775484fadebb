package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/qval/internal/marketdata"
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "데이터셋 커버리지 점검",
	Long: `실험에 사용되는 모든 모델 입력 필드의 학습/테스트 구간 커버리지를 점검합니다.
테스트 구간 커버리지가 기준 미만인 필드가 있으면 오류로 종료합니다.

Example:
  go run ./cmd/quant check -e configs/experiment.yaml
  go run ./cmd/quant check --min-coverage 0.95`,
	RunE: runCheck,
}

var checkMinCoverage float64

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().Float64Var(&checkMinCoverage, "min-coverage", marketdata.DefaultMinCoverage, "테스트 구간 최소 커버리지 (0-1)")
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	sess, err := newSession(true)
	if err != nil {
		return err
	}
	defer sess.Close()

	ds, fingerprint, boundary, err := sess.prepared(ctx)
	if err != nil {
		return err
	}

	gate := marketdata.NewQualityGate(checkMinCoverage)
	report := gate.Check(ds, marketdata.RequiredFields(sess.exp.ModelSpecs()), ds.SplitIndex(boundary))
	violations := gate.Violations(report)

	if jsonOutput {
		if err := printJSON(report); err != nil {
			return err
		}
	} else {
		PrintHeader(Header{
			Title:      "Dataset Coverage",
			Experiment: sess.exp.Meta.ExperimentID,
			Hash:       sess.expHash,
			Boundary:   boundary.Format("2006-01-02"),
			Extra: [][2]string{
				{"Fingerprint", shortHash(fingerprint)},
				{"Rows", fmt.Sprintf("%d (train %d, test %d)", report.Rows, report.TrainRows, report.TestRows)},
			},
		})
		widths := []int{22, 9, 9, 12}
		PrintTableHeader([]string{"Field", "Train", "Test", "First"}, widths)
		for _, fc := range report.Fields {
			first := "-"
			if !fc.FirstAvailable.IsZero() {
				first = fc.FirstAvailable.Format("2006-01-02")
			}
			PrintTableRow([]string{fc.Field, fmtPct(fc.Train), fmtPct(fc.Test), first}, widths)
		}
		fmt.Println()
		fmt.Printf("Score: %s\n", fmtPct(report.Score))
	}

	if len(violations) > 0 {
		for _, v := range violations {
			PrintWarning(fmt.Sprintf("%s: test coverage %s < %s", v.Field, fmtPct(v.Test), fmtPct(gate.MinCoverage)))
		}
		return fmt.Errorf("%d field(s) below minimum coverage", len(violations))
	}
	if !jsonOutput {
		PrintSuccess("All fields meet minimum coverage")
	}
	return nil
}
