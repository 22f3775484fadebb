package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wonny/qval/internal/align"
	"github.com/wonny/qval/internal/batch"
	"github.com/wonny/qval/internal/contracts"
	"github.com/wonny/qval/internal/estimator"
	"github.com/wonny/qval/internal/scheduler"
	"github.com/wonny/qval/pkg/logger"
)

// ErrAllRunsFailed makes the scheduler retry a batch in which nothing succeeded.
var ErrAllRunsFailed = errors.New("every run in the batch failed")

// DatasetLoader reloads the dataset for each scheduled batch.
type DatasetLoader func(ctx context.Context) (*contracts.Dataset, error)

// BatchRunner runs a configuration grid. *batch.Runner satisfies it.
type BatchRunner interface {
	Run(ctx context.Context, ds *contracts.Dataset, configs []contracts.RunConfig, boundary time.Time) (*batch.Report, error)
}

// BatchJob reloads the data and runs the experiment grid on a schedule.
// Partial failures are recorded on the report and do not trigger a retry.
type BatchJob struct {
	name     string
	schedule string
	load     DatasetLoader
	runner   BatchRunner
	configs  []contracts.RunConfig
	boundary time.Time
	logger   *logger.Logger

	mu   sync.Mutex
	last *batch.Report
}

// NewBatchJob creates a new batch job
func NewBatchJob(name, schedule string, load DatasetLoader, runner BatchRunner,
	configs []contracts.RunConfig, boundary time.Time, log *logger.Logger) *BatchJob {
	return &BatchJob{
		name:     name,
		schedule: schedule,
		load:     load,
		runner:   runner,
		configs:  configs,
		boundary: boundary,
		logger:   log,
	}
}

// Name returns the job name
func (j *BatchJob) Name() string {
	return j.name
}

// Schedule returns the cron schedule
func (j *BatchJob) Schedule() string {
	return j.schedule
}

// Run loads the dataset and executes the grid
func (j *BatchJob) Run(ctx context.Context) error {
	j.logger.WithField("job", j.name).Info("Starting scheduled batch")

	ds, err := j.load(ctx)
	if err != nil {
		return j.fail(fmt.Errorf("load dataset: %w", err))
	}

	report, err := j.runner.Run(ctx, ds, j.configs, j.boundary)
	if err != nil {
		return j.fail(fmt.Errorf("run batch: %w", err))
	}

	j.mu.Lock()
	j.last = report
	j.mu.Unlock()

	j.logger.WithFields(map[string]interface{}{
		"job":      j.name,
		"batch_id": report.BatchID,
		"runs":     len(report.Outcomes),
		"failed":   report.Failed,
	}).Info("Scheduled batch completed")

	if len(report.Outcomes) > 0 && report.Failed == len(report.Outcomes) {
		return fmt.Errorf("batch %s: %w", report.BatchID, ErrAllRunsFailed)
	}
	if report.Failed > 0 {
		j.logger.Warnf("Batch %s: %d of %d runs failed", report.BatchID, report.Failed, len(report.Outcomes))
	}
	return nil
}

// fail marks leakage errors permanent; the same data would leak again on retry.
func (j *BatchJob) fail(err error) error {
	if errors.Is(err, estimator.ErrLookahead) || errors.Is(err, align.ErrPointInTime) {
		j.logger.Errorf("Batch %s aborted: %v", j.name, err)
		return scheduler.Permanent(err)
	}
	return err
}

// LastReport returns the most recent completed batch, or nil.
func (j *BatchJob) LastReport() *batch.Report {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.last
}
