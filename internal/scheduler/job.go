package scheduler

import (
	"context"
	"time"
)

// MaxHistory is the number of results kept per job.
const MaxHistory = 100

// Job represents a scheduled job
// ⭐ SSOT: 스케줄 작업 인터페이스는 여기서만 정의
type Job interface {
	// Name returns the job name
	Name() string

	// Run executes the job. A returned error triggers a retry.
	Run(ctx context.Context) error

	// Schedule returns a standard 5-field cron expression or a descriptor
	// Examples: "30 18 * * 1-5" (weekdays at 6:30 PM)
	//           "@daily", "@every 1h"
	Schedule() string
}

// JobResult represents the result of a job execution
type JobResult struct {
	JobName   string        `json:"job_name"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Attempts  int           `json:"attempts"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
}

// JobHistory stores job execution history, oldest first
type JobHistory struct {
	Results []JobResult
}

// AddResult adds a job result to history
func (h *JobHistory) AddResult(result JobResult) {
	h.Results = append(h.Results, result)

	if len(h.Results) > MaxHistory {
		h.Results = h.Results[len(h.Results)-MaxHistory:]
	}
}

// Latest returns the latest n results
func (h *JobHistory) Latest(n int) []JobResult {
	if n > len(h.Results) {
		n = len(h.Results)
	}
	if n <= 0 {
		return []JobResult{}
	}

	out := make([]JobResult, n)
	copy(out, h.Results[len(h.Results)-n:])
	return out
}

// Stats summarizes the history.
func (h *JobHistory) Stats(name, schedule string) JobStats {
	stats := JobStats{
		JobName:   name,
		Schedule:  schedule,
		TotalRuns: len(h.Results),
	}

	for _, r := range h.Results {
		started := r.StartTime
		if r.Success {
			stats.SuccessCount++
			stats.LastSuccess = &started
		} else {
			stats.FailureCount++
			stats.LastFailure = &started
		}
		stats.LastRun = &started
	}
	if stats.TotalRuns > 0 {
		stats.SuccessRate = float64(stats.SuccessCount) / float64(stats.TotalRuns)
	}
	return stats
}

// JobStats represents statistics for a job
type JobStats struct {
	JobName      string     `json:"job_name"`
	Schedule     string     `json:"schedule"`
	TotalRuns    int        `json:"total_runs"`
	SuccessCount int        `json:"success_count"`
	FailureCount int        `json:"failure_count"`
	SuccessRate  float64    `json:"success_rate"`
	LastRun      *time.Time `json:"last_run,omitempty"`
	LastSuccess  *time.Time `json:"last_success,omitempty"`
	LastFailure  *time.Time `json:"last_failure,omitempty"`
}
