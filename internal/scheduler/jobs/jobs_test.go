package jobs

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/qval/internal/align"
	"github.com/wonny/qval/internal/batch"
	"github.com/wonny/qval/internal/contracts"
	"github.com/wonny/qval/internal/estimator"
	"github.com/wonny/qval/internal/scheduler"
	"github.com/wonny/qval/pkg/config"
	"github.com/wonny/qval/pkg/logger"
)

type fakeRunner struct {
	report *batch.Report
	err    error
	calls  int
}

func (f *fakeRunner) Run(ctx context.Context, ds *contracts.Dataset, configs []contracts.RunConfig, boundary time.Time) (*batch.Report, error) {
	f.calls++
	return f.report, f.err
}

func loaderOf(err error) DatasetLoader {
	return func(ctx context.Context) (*contracts.Dataset, error) {
		if err != nil {
			return nil, err
		}
		return &contracts.Dataset{}, nil
	}
}

func TestBatchJob(t *testing.T) {
	boundary := time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		loadErr   error
		runner    *fakeRunner
		wantErr   error
		permanent bool
		wantCalls int
		wantLast  bool
	}{
		{
			name:      "success",
			runner:    &fakeRunner{report: &batch.Report{BatchID: "b1", Outcomes: make([]batch.Outcome, 2), Failed: 1}},
			wantCalls: 1,
			wantLast:  true,
		},
		{
			name:      "all runs failed",
			runner:    &fakeRunner{report: &batch.Report{BatchID: "b2", Outcomes: make([]batch.Outcome, 2), Failed: 2}},
			wantErr:   ErrAllRunsFailed,
			wantCalls: 1,
			wantLast:  true,
		},
		{
			name:      "load failure",
			loadErr:   errors.New("db down"),
			runner:    &fakeRunner{},
			wantCalls: 0,
		},
		{
			name:      "lookahead is permanent",
			runner:    &fakeRunner{err: estimator.ErrLookahead},
			wantErr:   estimator.ErrLookahead,
			permanent: true,
			wantCalls: 1,
		},
		{
			name:      "leaky dataset is permanent",
			loadErr:   align.ErrPointInTime,
			runner:    &fakeRunner{},
			permanent: true,
			wantCalls: 0,
		},
		{
			name:      "transient runner failure",
			runner:    &fakeRunner{err: context.DeadlineExceeded},
			wantErr:   context.DeadlineExceeded,
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := NewBatchJob("nightly", "30 18 * * 1-5", loaderOf(tt.loadErr), tt.runner, nil, boundary, logger.Nop())
			assert.Equal(t, "nightly", job.Name())
			assert.Equal(t, "30 18 * * 1-5", job.Schedule())

			err := job.Run(context.Background())
			switch {
			case tt.loadErr != nil:
				assert.ErrorIs(t, err, tt.loadErr)
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			default:
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.permanent, errors.Is(err, scheduler.ErrPermanent))
			assert.Equal(t, tt.wantCalls, tt.runner.calls)
			assert.Equal(t, tt.wantLast, job.LastReport() != nil)
		})
	}
}

func TestBatchJobLogsPartialFailure(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(&config.Config{Env: "test", LogLevel: "debug", LogFormat: "json"}, &buf)
	runner := &fakeRunner{report: &batch.Report{BatchID: "b9", Outcomes: make([]batch.Outcome, 3), Failed: 1}}
	job := NewBatchJob("nightly", "@daily", loaderOf(nil), runner, nil, time.Time{}, log)

	require.NoError(t, job.Run(context.Background()))
	assert.Contains(t, buf.String(), "Batch b9: 1 of 3 runs failed")
	assert.Contains(t, buf.String(), `"level":"warn"`)
}

type fakePruner struct {
	cutoff time.Time
	n      int64
}

func (f *fakePruner) DeleteRunsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return f.n, nil
}

func TestRetentionJob(t *testing.T) {
	store := &fakePruner{n: 3}
	job := NewRetentionJob(store, 30*24*time.Hour, logger.Nop())
	now := time.Date(2024, 3, 31, 3, 0, 0, 0, time.UTC)
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, time.Date(2024, 3, 1, 3, 0, 0, 0, time.UTC), store.cutoff)
	assert.Equal(t, "run_retention", job.Name())
}

func TestRetentionJobNothingToPrune(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(&config.Config{Env: "test", LogLevel: "debug", LogFormat: "json"}, &buf)
	job := NewRetentionJob(&fakePruner{}, time.Hour, log)
	job.now = func() time.Time { return time.Date(2024, 3, 31, 3, 0, 0, 0, time.UTC) }

	require.NoError(t, job.Run(context.Background()))
	assert.Contains(t, buf.String(), "Run retention: nothing older than 2024-03-31T02:00:00Z")
}
