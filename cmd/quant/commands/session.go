package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/wonny/qval/internal/audit"
	"github.com/wonny/qval/internal/contracts"
	"github.com/wonny/qval/internal/evaluation"
	"github.com/wonny/qval/internal/marketdata"
	"github.com/wonny/qval/internal/strategyconfig"
	"github.com/wonny/qval/pkg/config"
	"github.com/wonny/qval/pkg/database"
	"github.com/wonny/qval/pkg/httputil"
	"github.com/wonny/qval/pkg/logger"
	"github.com/wonny/qval/pkg/metrics"
	"github.com/wonny/qval/pkg/redis"
)

// CachePrefix namespaces report cache keys.
const CachePrefix = "qval"

// session bundles everything a command needs. Connections open lazily.
type session struct {
	cfg     *config.Config
	log     *logger.Logger
	metrics *metrics.Registry

	exp     *strategyconfig.Config
	expYAML []byte
	expHash string

	db    *database.DB
	redis *redis.Client
}

// newSession loads process config and, when withExperiment is set, the experiment YAML.
func newSession(withExperiment bool) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	s := &session{
		cfg:     cfg,
		log:     logger.New(cfg),
		metrics: metrics.New(),
	}

	if !withExperiment {
		return s, nil
	}

	exp, raw, err := strategyconfig.Load(experimentFile)
	if err != nil {
		return nil, fmt.Errorf("load experiment %s: %w", experimentFile, err)
	}
	hash, err := strategyconfig.Hash(exp)
	if err != nil {
		return nil, fmt.Errorf("hash experiment: %w", err)
	}
	s.exp, s.expYAML, s.expHash = exp, raw, hash

	for _, w := range strategyconfig.Warn(exp) {
		s.log.WithField("code", w.Code).Warn(w.Message)
	}
	s.log.WithFields(map[string]interface{}{
		"experiment": exp.Meta.ExperimentID,
		"hash":       hash[:12],
	}).Debug("Experiment loaded")

	return s, nil
}

// Close releases open connections.
func (s *session) Close() {
	if s.db != nil {
		s.db.Close()
	}
	if s.redis != nil {
		_ = s.redis.Close()
	}
}

// database connects on first use.
func (s *session) database(ctx context.Context) (*database.DB, error) {
	if s.db != nil {
		return s.db, nil
	}
	db, err := database.New(ctx, s.cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	s.db = db
	return db, nil
}

// cache returns the report cache. An unreachable Redis degrades to no caching.
func (s *session) cache(ctx context.Context) *redis.Cache {
	if s.redis == nil {
		client, err := redis.New(ctx, s.cfg)
		if err != nil {
			s.log.WithError(err).Warn("Redis unavailable, report cache disabled")
			client = redis.Disabled()
		}
		s.redis = client
	}
	return redis.NewCache(s.redis, CachePrefix)
}

// runStore returns the run repository when PERSIST_RESULTS is on, else nil.
func (s *session) runStore(ctx context.Context) (*audit.Repository, error) {
	if !s.cfg.Batch.PersistResults {
		return nil, nil
	}
	db, err := s.database(ctx)
	if err != nil {
		return nil, err
	}
	return audit.NewRepository(db.Pool), nil
}

// boundary parses evaluation.boundary.
func (s *session) boundary() (time.Time, error) {
	b, err := s.exp.BoundaryDate()
	if err != nil {
		return time.Time{}, fmt.Errorf("evaluation.boundary: %w", err)
	}
	return b, nil
}

// dataset loads the experiment's data source and runs the point-in-time join.
func (s *session) dataset(ctx context.Context) (*contracts.Dataset, error) {
	d := s.exp.Data

	switch d.Source {
	case strategyconfig.SourceCSV:
		sources := make([]marketdata.SourceFile, len(d.Fundamentals))
		for i, f := range d.Fundamentals {
			sources[i] = marketdata.SourceFile{Name: f.Name, Path: s.resolve(f.Path)}
		}
		return marketdata.LoadCSV(ctx, httputil.New(s.cfg, s.log).Open, s.resolve(d.Observations), sources, d.DisclosureLagMonths)

	case strategyconfig.SourcePostgres:
		db, err := s.database(ctx)
		if err != nil {
			return nil, err
		}
		names := make([]string, len(d.Fundamentals))
		for i, f := range d.Fundamentals {
			names[i] = f.Name
		}
		from, to := s.exp.DateRange()
		return marketdata.NewRepository(db.Pool).LoadDataset(ctx, d.Symbol, names, from, to)

	case strategyconfig.SourceSynthetic:
		gen := syntheticConfig(d)
		source := "fundamentals"
		if len(d.Fundamentals) > 0 {
			source = d.Fundamentals[0].Name
		}
		return marketdata.FromSynthetic(marketdata.Synthetic(gen), source)
	}
	return nil, fmt.Errorf("unknown data source %q", d.Source)
}

// prepared loads the dataset and adds the hierarchy anchor columns.
// The fingerprint is taken before the anchors are added.
func (s *session) prepared(ctx context.Context) (ds *contracts.Dataset, fingerprint string, boundary time.Time, err error) {
	if boundary, err = s.boundary(); err != nil {
		return nil, "", boundary, err
	}
	raw, err := s.dataset(ctx)
	if err != nil {
		return nil, "", boundary, fmt.Errorf("load dataset: %w", err)
	}
	fingerprint = raw.Fingerprint()

	split := raw.SplitIndex(boundary)
	ds, err = evaluation.PrepareHierarchy(ctx, raw, s.exp.ModelSpecs(), split, s.log.Zerolog(), s.metrics)
	if err != nil {
		return nil, "", boundary, err
	}

	gate := marketdata.NewQualityGate(marketdata.DefaultMinCoverage)
	for _, v := range gate.Violations(gate.Check(ds, marketdata.RequiredFields(s.exp.ModelSpecs()), split)) {
		s.log.WithFields(map[string]interface{}{
			"field":         v.Field,
			"test_coverage": v.Test,
		}).Warn("Low field coverage in test partition")
	}

	s.log.WithFields(map[string]interface{}{
		"rows":        ds.Len(),
		"train_rows":  split,
		"test_rows":   ds.Len() - split,
		"fingerprint": fingerprint[:12],
	}).Info("Dataset ready")
	return ds, fingerprint, boundary, nil
}

// resolve makes relative local data paths relative to the experiment file.
func (s *session) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || httputil.IsRemote(path) {
		return path
	}
	return filepath.Join(filepath.Dir(experimentFile), path)
}

// persist saves a single run when PERSIST_RESULTS is on.
func (s *session) persist(ctx context.Context, kind, name, fingerprint string, started time.Time, payload interface{}) (string, error) {
	store, err := s.runStore(ctx)
	if err != nil || store == nil {
		return "", err
	}

	snapshot, err := strategyconfig.NewDecisionSnapshot(s.exp, s.expYAML, fingerprint)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(struct {
		Snapshot *strategyconfig.DecisionSnapshot `json:"snapshot"`
		Result   interface{}                      `json:"result"`
	}{snapshot, payload})
	if err != nil {
		return "", err
	}

	rec := audit.RunRecord{
		ID:              ulid.Make().String(),
		Kind:            kind,
		Name:            name,
		ConfigHash:      s.expHash,
		DataFingerprint: fingerprint,
		Status:          audit.StatusSucceeded,
		StartedAt:       started,
		FinishedAt:      time.Now(),
	}
	if err := store.SaveRun(ctx, rec, json.RawMessage(body)); err != nil {
		return "", err
	}
	return rec.ID, nil
}

func syntheticConfig(d strategyconfig.Data) marketdata.SyntheticConfig {
	gen := marketdata.DefaultSyntheticConfig()
	gen.LagMonths = d.DisclosureLagMonths
	if o := d.Synthetic; o != nil {
		if o.Seed != 0 {
			gen.Seed = o.Seed
		}
		if o.Days > 0 {
			gen.Days = o.Days
		}
		if o.Beta != 0 {
			gen.Beta = o.Beta
		}
	}
	return gen
}

// isNotConfigured reports a missing DATABASE_URL.
func isNotConfigured(err error) bool {
	return errors.Is(err, database.ErrNotConfigured)
}
