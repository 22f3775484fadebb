package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/qval/internal/api"
	"github.com/wonny/qval/internal/api/handlers"
	"github.com/wonny/qval/internal/audit"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "API 서버 시작 (읽기 전용)",
	Long: `저장된 실행 결과를 조회하는 REST API 서버를 시작합니다.

Endpoints:
  GET  /health           - Health check
  GET  /api/runs         - 최근 실행 목록 (?kind=backtest&limit=20)
  GET  /api/runs/{id}    - 실행 상세 (payload 포함)
  GET  /metrics          - Prometheus 메트릭 (METRICS_ENABLED)

Example:
  go run ./cmd/quant api
  go run ./cmd/quant api --port 8080`,
	RunE: runAPIServer,
}

var (
	apiPort string
)

func init() {
	rootCmd.AddCommand(apiCmd)

	// Flags
	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (기본: PORT)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	sess, err := newSession(false)
	if err != nil {
		return err
	}
	defer sess.Close()

	if apiPort != "" {
		sess.cfg.Port = apiPort
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sess.database(ctx)
	if err != nil {
		return err
	}
	repo := audit.NewRepository(db.Pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		return err
	}

	routes := api.Routes{
		Runs: handlers.NewRunHandler(repo, sess.log),
	}
	if sess.cfg.MetricsEnabled {
		routes.Metrics = sess.metrics.Handler()
	}

	server := api.New(":"+sess.cfg.Port, sess.log, api.NewRouter(routes, sess.log))

	fmt.Printf("\n✅ Server running on http://localhost:%s\n", sess.cfg.Port)
	fmt.Println("\nAvailable endpoints:")
	fmt.Println("  GET  /health")
	fmt.Println("  GET  /api/runs")
	fmt.Println("  GET  /api/runs/{id}")
	if routes.Metrics != nil {
		fmt.Println("  GET  /metrics")
	}
	fmt.Println("\nPress Ctrl+C to stop")

	return server.Serve(ctx)
}
