// Package batch runs independent (model, strategy) configurations in parallel
// over one read-only dataset.
package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/wonny/qval/internal/align"
	"github.com/wonny/qval/internal/audit"
	"github.com/wonny/qval/internal/backtest"
	"github.com/wonny/qval/internal/contracts"
	"github.com/wonny/qval/internal/estimator"
	"github.com/wonny/qval/pkg/metrics"
)

// Defaults.
const (
	DefaultWorkers    = 4
	DefaultRunTimeout = 10 * time.Minute
)

// Backtester runs one configuration. *backtest.Engine satisfies it.
type Backtester interface {
	Run(ctx context.Context, ds *contracts.Dataset, cfg contracts.RunConfig, boundary time.Time) (*backtest.Result, error)
}

// RunStore persists finished runs. *audit.Repository satisfies it.
type RunStore interface {
	SaveRun(ctx context.Context, rec audit.RunRecord, payload interface{}) error
}

// Options configures a Runner.
type Options struct {
	Workers    int
	RunTimeout time.Duration
	ConfigHash string   // provenance recorded with each persisted run
	Store      RunStore // optional
}

// Outcome is one configuration's result. Exactly one of Result and Error is set.
type Outcome struct {
	RunID      string              `json:"run_id"`
	Config     contracts.RunConfig `json:"config"`
	Result     *backtest.Result    `json:"result,omitempty"`
	Error      string              `json:"error,omitempty"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt time.Time           `json:"finished_at"`
}

// Report is a whole batch.
type Report struct {
	BatchID         string    `json:"batch_id"`
	DataFingerprint string    `json:"data_fingerprint"`
	Boundary        time.Time `json:"boundary"`
	Outcomes        []Outcome `json:"outcomes"`
	Failed          int       `json:"failed"`
	Duration        string    `json:"duration"`
}

// Runner fans configurations out to a bounded worker pool.
// ⭐ SSOT: 구성 단위 병렬 실행은 여기서만 (한 실행 내부의 날짜 루프는 순차)
type Runner struct {
	engine  Backtester
	opts    Options
	log     zerolog.Logger
	metrics *metrics.Registry
}

// NewRunner creates a runner. Zero options take the package defaults.
func NewRunner(engine Backtester, opts Options, log zerolog.Logger, m *metrics.Registry) *Runner {
	if opts.Workers < 1 {
		opts.Workers = DefaultWorkers
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = DefaultRunTimeout
	}
	return &Runner{
		engine:  engine,
		opts:    opts,
		log:     log.With().Str("component", "batch").Logger(),
		metrics: m,
	}
}

// Run executes every configuration and returns outcomes in input order.
// A lookahead violation in any run cancels the batch and is returned; every
// other failure is recorded on its outcome.
func (r *Runner) Run(ctx context.Context, ds *contracts.Dataset, configs []contracts.RunConfig, boundary time.Time) (*Report, error) {
	if err := align.CheckPointInTime(ds); err != nil {
		return nil, err
	}

	started := time.Now()
	report := &Report{
		BatchID:         ulid.Make().String(),
		DataFingerprint: ds.Fingerprint(),
		Boundary:        boundary,
		Outcomes:        make([]Outcome, len(configs)),
	}

	log := r.log.With().Str("batch_id", report.BatchID).Logger()
	log.Info().
		Int("configs", len(configs)).
		Int("workers", r.opts.Workers).
		Dur("run_timeout", r.opts.RunTimeout).
		Msg("batch started")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)

	for i, cfg := range configs {
		i, cfg := i, cfg
		g.Go(func() error {
			out, err := r.runOne(gctx, report, ds, cfg, boundary)
			report.Outcomes[i] = out
			return err
		})
	}

	err := g.Wait()
	r.metrics.ObserveRun("batch", started, err)
	if err != nil {
		log.Error().Err(err).Msg("batch aborted")
		return nil, err
	}

	for _, o := range report.Outcomes {
		if o.Error != "" {
			report.Failed++
		}
	}
	report.Duration = time.Since(started).Round(time.Millisecond).String()

	log.Info().
		Int("succeeded", len(configs)-report.Failed).
		Int("failed", report.Failed).
		Str("duration", report.Duration).
		Msg("batch completed")
	return report, nil
}

// runOne returns a non-nil error only when the batch must stop.
func (r *Runner) runOne(ctx context.Context, report *Report, ds *contracts.Dataset, cfg contracts.RunConfig, boundary time.Time) (Outcome, error) {
	done := r.metrics.RunStarted()
	defer done()

	out := Outcome{
		RunID:     ulid.Make().String(),
		Config:    cfg,
		StartedAt: time.Now().UTC(),
	}

	runCtx, cancel := context.WithTimeout(ctx, r.opts.RunTimeout)
	defer cancel()

	res, err := r.engine.Run(runCtx, ds, cfg, boundary)
	out.FinishedAt = time.Now().UTC()

	if err != nil {
		if errors.Is(err, estimator.ErrLookahead) {
			return out, fmt.Errorf("run %s (%s): %w", out.RunID, cfg.Name(), err)
		}
		if ctx.Err() != nil {
			// batch already cancelled by another run
			return out, ctx.Err()
		}
		out.Error = err.Error()
		r.log.Warn().Err(err).
			Str("run_id", out.RunID).
			Str("config", cfg.Name()).
			Msg("run failed")
	} else {
		out.Result = res
	}

	r.persist(ctx, report, out)
	return out, nil
}

func (r *Runner) persist(ctx context.Context, report *Report, out Outcome) {
	if r.opts.Store == nil {
		return
	}
	rec := audit.RunRecord{
		ID:              out.RunID,
		BatchID:         report.BatchID,
		Kind:            audit.KindBacktest,
		Name:            out.Config.Name(),
		ConfigHash:      r.opts.ConfigHash,
		DataFingerprint: report.DataFingerprint,
		Status:          audit.StatusSucceeded,
		Error:           out.Error,
		StartedAt:       out.StartedAt,
		FinishedAt:      out.FinishedAt,
	}
	if out.Error != "" {
		rec.Status = audit.StatusFailed
	}
	if err := r.opts.Store.SaveRun(ctx, rec, out); err != nil {
		// persistence failure does not fail the run
		r.log.Error().Err(err).Str("run_id", out.RunID).Msg("failed to persist run")
	}
}
