package handlers

import (
	"net/http"
	"sort"

	"github.com/wonny/qval/internal/scheduler"
)

// JobReporter exposes scheduler statistics. *scheduler.Scheduler satisfies it.
type JobReporter interface {
	GetJobStats() map[string]scheduler.JobStats
}

// JobHandler serves scheduler status
type JobHandler struct {
	jobs JobReporter
}

// NewJobHandler creates a new job handler
func NewJobHandler(jobs JobReporter) *JobHandler {
	return &JobHandler{jobs: jobs}
}

// ListJobs returns per-job statistics sorted by name
// GET /api/jobs
func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	stats := h.jobs.GetJobStats()

	out := make([]scheduler.JobStats, 0, len(stats))
	for _, s := range stats {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JobName < out[j].JobName })

	respondJSON(w, http.StatusOK, out)
}
