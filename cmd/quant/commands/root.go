package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	experimentFile string
	jsonOutput     bool
	verbose        bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "quant",
	Short: "qval - point-in-time 모델 평가 및 백테스트 엔진",
	Long: `qval Unified CLI

Point-in-time 데이터 정렬, 롤링/워크포워드 추정,
중첩 모델 비교(M1~M5), 히스테리시스 전략 시뮬레이션과 성과 분석.

실험 설정은 YAML (--experiment), 실행 환경은 .env / 환경변수.

Usage:
  go run ./cmd/quant [command]

Examples:
  go run ./cmd/quant generate --out data
  go run ./cmd/quant check -e configs/experiment.yaml
  go run ./cmd/quant evaluate -e configs/experiment.yaml
  go run ./cmd/quant batch -e configs/experiment.yaml
  go run ./cmd/quant api`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&experimentFile, "experiment", "e", "configs/experiment.yaml", "experiment YAML file")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON instead of tables")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (LOG_LEVEL=debug)")
}
