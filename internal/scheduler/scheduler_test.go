package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/qval/pkg/logger"
	"github.com/wonny/qval/pkg/metrics"
)

// flakyJob fails its first failures calls.
type flakyJob struct {
	name     string
	schedule string
	failures int32
	calls    atomic.Int32
}

func (j *flakyJob) Name() string     { return j.name }
func (j *flakyJob) Schedule() string { return j.schedule }

func (j *flakyJob) Run(ctx context.Context) error {
	if j.calls.Add(1) <= j.failures {
		return errors.New("transient")
	}
	return nil
}

func newTestScheduler(maxRetries int) *Scheduler {
	return New(logger.Nop(), WithRetries(maxRetries, time.Millisecond), WithLocation(time.UTC))
}

func TestRunNowRetries(t *testing.T) {
	tests := []struct {
		name         string
		failures     int32
		maxRetries   int
		wantSuccess  bool
		wantAttempts int
	}{
		{"first attempt", 0, 2, true, 1},
		{"recovers on retry", 2, 2, true, 3},
		{"exhausts retries", 5, 2, false, 3},
		{"no retries", 1, 0, false, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestScheduler(tt.maxRetries)
			job := &flakyJob{name: "batch", schedule: "@daily", failures: tt.failures}
			require.NoError(t, s.AddJob(job))

			result, err := s.RunNow(context.Background(), "batch")
			require.NoError(t, err)
			assert.Equal(t, tt.wantSuccess, result.Success)
			assert.Equal(t, tt.wantAttempts, result.Attempts)
			if !tt.wantSuccess {
				assert.Equal(t, "transient", result.Error)
			}

			history, err := s.GetJobHistory("batch")
			require.NoError(t, err)
			require.Len(t, history, 1)
			assert.Equal(t, result.Attempts, history[0].Attempts)
		})
	}
}

type fatalJob struct {
	err   error
	calls atomic.Int32
}

func (j *fatalJob) Name() string     { return "fatal" }
func (j *fatalJob) Schedule() string { return "@daily" }

func (j *fatalJob) Run(ctx context.Context) error {
	j.calls.Add(1)
	return j.err
}

func TestRunNowSkipsRetryOnPermanentError(t *testing.T) {
	cause := errors.New("lookahead violation")
	s := newTestScheduler(3)
	job := &fatalJob{err: fmt.Errorf("run batch: %w", Permanent(cause))}
	require.NoError(t, s.AddJob(job))

	result, err := s.RunNow(context.Background(), "fatal")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, int32(1), job.calls.Load())
	assert.Equal(t, "run batch: lookahead violation", result.Error)
}

func TestPermanent(t *testing.T) {
	cause := errors.New("boom")
	err := Permanent(cause)
	assert.ErrorIs(t, err, ErrPermanent)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "boom", err.Error())
	assert.Nil(t, Permanent(nil))
	assert.NotErrorIs(t, cause, ErrPermanent)
}

func TestRunNowCancelledDuringRetry(t *testing.T) {
	s := New(logger.Nop(), WithRetries(3, time.Hour))
	job := &flakyJob{name: "batch", schedule: "@daily", failures: 10}
	require.NoError(t, s.AddJob(job))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	result, err := s.RunNow(ctx, "batch")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, context.DeadlineExceeded.Error(), result.Error)
}

func TestAddRemoveJob(t *testing.T) {
	s := newTestScheduler(0)

	require.NoError(t, s.AddJob(&flakyJob{name: "b", schedule: "30 18 * * 1-5"}))
	require.NoError(t, s.AddJob(&flakyJob{name: "a", schedule: "@every 1h"}))
	assert.Error(t, s.AddJob(&flakyJob{name: "a", schedule: "@daily"}), "duplicate name")
	assert.Error(t, s.AddJob(&flakyJob{name: "c", schedule: "every day"}), "bad schedule")

	assert.Equal(t, []string{"a", "b"}, s.GetAllJobs())

	require.NoError(t, s.RemoveJob("a"))
	assert.Error(t, s.RemoveJob("a"))
	assert.Equal(t, []string{"b"}, s.GetAllJobs())

	_, err := s.RunNow(context.Background(), "a")
	assert.Error(t, err)
}

func TestNext(t *testing.T) {
	s := newTestScheduler(0)
	require.NoError(t, s.AddJob(&flakyJob{name: "b", schedule: "30 18 * * 1-5"}))

	// entries get their next time once the cron loop starts
	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool {
		next, err := s.Next("b")
		return err == nil && !next.IsZero()
	}, time.Second, 5*time.Millisecond)

	next, _ := s.Next("b")
	assert.Equal(t, 18, next.Hour())
	assert.Equal(t, 30, next.Minute())
	assert.NotEqual(t, time.Saturday, next.Weekday())
	assert.NotEqual(t, time.Sunday, next.Weekday())
}

func TestGetJobStats(t *testing.T) {
	s := newTestScheduler(0)
	job := &flakyJob{name: "batch", schedule: "@daily", failures: 1}
	require.NoError(t, s.AddJob(job))

	for i := 0; i < 3; i++ {
		_, err := s.RunNow(context.Background(), "batch")
		require.NoError(t, err)
	}

	stats := s.GetJobStats()["batch"]
	assert.Equal(t, 3, stats.TotalRuns)
	assert.Equal(t, 2, stats.SuccessCount)
	assert.Equal(t, 1, stats.FailureCount)
	assert.InDelta(t, 2.0/3.0, stats.SuccessRate, 1e-12)
	require.NotNil(t, stats.LastFailure)
	require.NotNil(t, stats.LastSuccess)
	assert.Equal(t, "@daily", stats.Schedule)
}

func TestJobHistoryCap(t *testing.T) {
	h := &JobHistory{}
	for i := 0; i < MaxHistory+10; i++ {
		h.AddResult(JobResult{Attempts: i})
	}

	assert.Len(t, h.Results, MaxHistory)
	assert.Equal(t, 10, h.Results[0].Attempts)

	latest := h.Latest(2)
	require.Len(t, latest, 2)
	assert.Equal(t, MaxHistory+9, latest[1].Attempts)
	assert.Empty(t, (&JobHistory{}).Latest(5))

	empty := (&JobHistory{}).Stats("x", "@daily")
	assert.Zero(t, empty.SuccessRate)
	assert.Nil(t, empty.LastRun)
}

func TestJobMetrics(t *testing.T) {
	m := metrics.New()
	s := New(logger.Nop(), WithRetries(1, time.Millisecond), WithMetrics(m))
	require.NoError(t, s.AddJob(&flakyJob{name: "nightly", schedule: "@daily", failures: 2}))

	// attempts 1-2 fail, then the next call succeeds on its first attempt
	_, err := s.RunNow(context.Background(), "nightly")
	require.NoError(t, err)
	_, err = s.RunNow(context.Background(), "nightly")
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobRuns.WithLabelValues("nightly", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobRuns.WithLabelValues("nightly", "success")))
}

func TestListenerReceivesResults(t *testing.T) {
	var got []JobResult
	s := New(logger.Nop(), WithRetries(0, 0), WithListener(func(r JobResult) {
		got = append(got, r)
	}))
	require.NoError(t, s.AddJob(&flakyJob{name: "nightly", schedule: "@daily", failures: 1}))

	_, _ = s.RunNow(context.Background(), "nightly")
	_, _ = s.RunNow(context.Background(), "nightly")

	require.Len(t, got, 2)
	assert.False(t, got[0].Success)
	assert.True(t, got[1].Success)
	assert.Equal(t, "nightly", got[1].JobName)
}
