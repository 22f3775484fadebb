package jobs

import (
	"context"
	"time"

	"github.com/wonny/qval/pkg/logger"
)

// RunPruner deletes old runs. *audit.Repository satisfies it.
type RunPruner interface {
	DeleteRunsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionJob deletes persisted runs older than the retention period
type RetentionJob struct {
	store  RunPruner
	keep   time.Duration
	logger *logger.Logger
	now    func() time.Time
}

// NewRetentionJob creates a new retention job
func NewRetentionJob(store RunPruner, keep time.Duration, log *logger.Logger) *RetentionJob {
	return &RetentionJob{
		store:  store,
		keep:   keep,
		logger: log,
		now:    time.Now,
	}
}

// Name returns the job name
func (j *RetentionJob) Name() string {
	return "run_retention"
}

// Schedule returns the cron schedule (daily at 3 AM)
func (j *RetentionJob) Schedule() string {
	return "0 3 * * *"
}

// Run executes the cleanup
func (j *RetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().Add(-j.keep)

	count, err := j.store.DeleteRunsBefore(ctx, cutoff)
	if err != nil {
		return err
	}

	if count == 0 {
		j.logger.Infof("Run retention: nothing older than %s", cutoff.Format(time.RFC3339))
		return nil
	}
	j.logger.WithFields(map[string]interface{}{
		"removed": count,
		"cutoff":  cutoff.Format(time.RFC3339),
	}).Info("Run retention completed")
	return nil
}
