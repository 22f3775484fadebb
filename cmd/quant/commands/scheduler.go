package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/qval/internal/api"
	"github.com/wonny/qval/internal/api/handlers"
	"github.com/wonny/qval/internal/contracts"
	"github.com/wonny/qval/internal/scheduler"
	"github.com/wonny/qval/internal/scheduler/jobs"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "배치 스케줄러",
	Long: `실험 배치를 schedule.cron 에 따라 주기적으로 실행합니다.

각 실행마다 데이터를 다시 읽고 (CSV / PostgreSQL) 전체 그리드를 돌립니다.
실패 시 schedule.max_retries 만큼 재시도합니다.

Subcommands:
  start   - 스케줄러 데몬 시작 (상태: :METRICS_PORT/api/jobs, 실시간: /ws/jobs)
  run     - 배치 작업 즉시 1회 실행

Example:
  go run ./cmd/quant scheduler start -e configs/experiment.yaml
  go run ./cmd/quant scheduler run`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "스케줄러 시작",
		RunE:  runSchedulerStart,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run",
		Short: "배치 작업 즉시 실행",
		RunE:  runSchedulerOnce,
	}

	schedulerRetryDelay time.Duration
	schedulerRetention  time.Duration
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)

	schedulerCmd.PersistentFlags().DurationVar(&schedulerRetryDelay, "retry-delay", scheduler.DefaultRetryDelay, "재시도 간격")
	schedulerStartCmd.Flags().DurationVar(&schedulerRetention, "retention", 90*24*time.Hour, "저장된 실행 보관 기간 (PERSIST_RESULTS)")
}

// initScheduler registers the batch job, plus run retention when results are persisted.
func initScheduler(ctx context.Context, sess *session, extra ...scheduler.Option) (*scheduler.Scheduler, *jobs.BatchJob, error) {
	sched := sess.exp.Schedule
	if sched.Cron == "" {
		return nil, nil, fmt.Errorf("schedule.cron is not set in %s", experimentFile)
	}

	loc := time.Local
	if sched.Timezone != "" {
		var err error
		if loc, err = time.LoadLocation(sched.Timezone); err != nil {
			return nil, nil, err
		}
	}

	boundary, err := sess.boundary()
	if err != nil {
		return nil, nil, err
	}
	runner, err := newBatchRunner(ctx, sess)
	if err != nil {
		return nil, nil, err
	}

	opts := append([]scheduler.Option{
		scheduler.WithRetries(sched.MaxRetries, schedulerRetryDelay),
		scheduler.WithLocation(loc),
		scheduler.WithMetrics(sess.metrics),
	}, extra...)
	s := scheduler.New(sess.log, opts...)

	load := func(ctx context.Context) (*contracts.Dataset, error) {
		ds, _, _, err := sess.prepared(ctx)
		return ds, err
	}
	job := jobs.NewBatchJob(sess.exp.Meta.ExperimentID+"_batch", sched.Cron, load, runner,
		sess.exp.RunConfigs(), boundary, sess.log)
	if err := s.AddJob(job); err != nil {
		return nil, nil, err
	}

	store, err := sess.runStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if store != nil && schedulerRetention > 0 {
		if err := s.AddJob(jobs.NewRetentionJob(store, schedulerRetention, sess.log)); err != nil {
			return nil, nil, err
		}
	}

	return s, job, nil
}

func runSchedulerStart(cmd *cobra.Command, args []string) error {
	sess, err := newSession(true)
	if err != nil {
		return err
	}
	defer sess.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := api.NewHub(sess.log)
	defer hub.Close()

	sched, job, err := initScheduler(ctx, sess, scheduler.WithListener(func(r scheduler.JobResult) {
		hub.Publish(r)
	}))
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	sched.Start()
	defer sched.Stop()

	PrintHeader(Header{
		Title:      "Scheduler",
		Experiment: sess.exp.Meta.ExperimentID,
		Hash:       sess.expHash,
	})
	for _, name := range sched.GetAllJobs() {
		next, _ := sched.Next(name)
		fmt.Printf("  - %-32s next %s\n", name, next.Format(time.RFC3339))
	}
	fmt.Printf("\n  Status: http://localhost:%s/api/jobs\n", sess.cfg.MetricsPort)
	fmt.Printf("  Live  : ws://localhost:%s/ws/jobs\n", sess.cfg.MetricsPort)
	fmt.Println("\nPress Ctrl+C to stop")

	routes := api.Routes{Jobs: handlers.NewJobHandler(sched), Stream: hub}
	if sess.cfg.MetricsEnabled {
		routes.Metrics = sess.metrics.Handler()
	}
	server := api.New(":"+sess.cfg.MetricsPort, sess.log, api.NewRouter(routes, sess.log))
	if err := server.Serve(ctx); err != nil {
		return err
	}

	if last := job.LastReport(); last != nil {
		sess.log.WithFields(map[string]interface{}{
			"batch_id": last.BatchID,
			"failed":   last.Failed,
		}).Info("Last scheduled batch")
	}
	return nil
}

func runSchedulerOnce(cmd *cobra.Command, args []string) error {
	sess, err := newSession(true)
	if err != nil {
		return err
	}
	defer sess.Close()

	ctx := cmd.Context()
	sched, job, err := initScheduler(ctx, sess)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	result, err := sched.RunNow(ctx, job.Name())
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(struct {
			Job    scheduler.JobResult `json:"job"`
			Report interface{}         `json:"report,omitempty"`
		}{result, job.LastReport()})
	}

	if report := job.LastReport(); report != nil {
		PrintHeader(Header{
			Title:      "Batch " + report.BatchID,
			Experiment: sess.exp.Meta.ExperimentID,
			Hash:       sess.expHash,
		})
		printBatch(report)
		fmt.Println()
	}
	if !result.Success {
		return fmt.Errorf("job %s failed after %d attempt(s): %s", result.JobName, result.Attempts, result.Error)
	}
	PrintSuccess(fmt.Sprintf("Job %s completed in %s (%d attempt(s))",
		result.JobName, result.Duration.Round(time.Millisecond), result.Attempts))
	return nil
}
