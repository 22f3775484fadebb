package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrRunNotFound is returned by GetRun for an unknown id.
var ErrRunNotFound = errors.New("run not found")

// Run kinds.
const (
	KindEvaluate  = "evaluate"
	KindBacktest  = "backtest"
	KindStability = "stability"
)

// Run statuses.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Schema creates the run table. Applied by `quant db init`.
var Schema = []string{
	`CREATE SCHEMA IF NOT EXISTS qval`,
	`CREATE TABLE IF NOT EXISTS qval.runs (
		run_id           TEXT        PRIMARY KEY,
		batch_id         TEXT        NOT NULL DEFAULT '',
		kind             TEXT        NOT NULL,
		name             TEXT        NOT NULL,
		config_hash      TEXT        NOT NULL DEFAULT '',
		data_fingerprint TEXT        NOT NULL DEFAULT '',
		status           TEXT        NOT NULL,
		error            TEXT        NOT NULL DEFAULT '',
		started_at       TIMESTAMPTZ NOT NULL,
		finished_at      TIMESTAMPTZ NOT NULL,
		payload          JSONB
	)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_started ON qval.runs (started_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_batch ON qval.runs (batch_id)`,
}

// RunRecord is one persisted evaluation, backtest or stability run.
type RunRecord struct {
	ID              string          `json:"run_id"`
	BatchID         string          `json:"batch_id,omitempty"`
	Kind            string          `json:"kind"`
	Name            string          `json:"name"`
	ConfigHash      string          `json:"config_hash,omitempty"`
	DataFingerprint string          `json:"data_fingerprint,omitempty"`
	Status          string          `json:"status"`
	Error           string          `json:"error,omitempty"`
	StartedAt       time.Time       `json:"started_at"`
	FinishedAt      time.Time       `json:"finished_at"`
	Payload         json.RawMessage `json:"payload,omitempty"`
}

// Repository handles run persistence
// ⭐ SSOT: 실행 결과 저장/조회는 여기서만
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new run repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// EnsureSchema creates the run table if needed.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	for _, stmt := range Schema {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure run schema: %w", err)
		}
	}
	return nil
}

// SaveRun upserts a run. payload is marshaled to JSONB.
func (r *Repository) SaveRun(ctx context.Context, rec RunRecord, payload interface{}) error {
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal run payload: %w", err)
		}
		rec.Payload = raw
	}

	query := `
		INSERT INTO qval.runs (
			run_id, batch_id, kind, name, config_hash, data_fingerprint,
			status, error, started_at, finished_at, payload
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (run_id) DO UPDATE SET
			status = EXCLUDED.status,
			error = EXCLUDED.error,
			finished_at = EXCLUDED.finished_at,
			payload = EXCLUDED.payload
	`

	_, err := r.pool.Exec(ctx, query,
		rec.ID, rec.BatchID, rec.Kind, rec.Name, rec.ConfigHash, rec.DataFingerprint,
		rec.Status, rec.Error, rec.StartedAt, rec.FinishedAt, []byte(rec.Payload),
	)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", rec.ID, err)
	}
	return nil
}

// GetRun retrieves a run with its payload.
func (r *Repository) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	query := `
		SELECT run_id, batch_id, kind, name, config_hash, data_fingerprint,
		       status, error, started_at, finished_at, payload
		FROM qval.runs
		WHERE run_id = $1
	`

	var rec RunRecord
	var payload []byte
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&rec.ID, &rec.BatchID, &rec.Kind, &rec.Name, &rec.ConfigHash, &rec.DataFingerprint,
		&rec.Status, &rec.Error, &rec.StartedAt, &rec.FinishedAt, &payload,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	rec.Payload = payload
	return &rec, nil
}

// ListRuns returns the most recent runs without payloads. An empty kind lists all kinds.
func (r *Repository) ListRuns(ctx context.Context, kind string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT run_id, batch_id, kind, name, config_hash, data_fingerprint,
		       status, error, started_at, finished_at
		FROM qval.runs
		WHERE ($1 = '' OR kind = $1)
		ORDER BY started_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, kind, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var rec RunRecord
		if err := rows.Scan(
			&rec.ID, &rec.BatchID, &rec.Kind, &rec.Name, &rec.ConfigHash, &rec.DataFingerprint,
			&rec.Status, &rec.Error, &rec.StartedAt, &rec.FinishedAt,
		); err != nil {
			return nil, err
		}
		runs = append(runs, rec)
	}
	return runs, rows.Err()
}

// DeleteRunsBefore removes runs that started before cutoff and returns the count.
func (r *Repository) DeleteRunsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM qval.runs WHERE started_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete runs: %w", err)
	}
	return tag.RowsAffected(), nil
}
