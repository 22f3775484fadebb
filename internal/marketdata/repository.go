package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/qval/internal/contracts"
)

// Schema creates the market data tables. Applied by `quant db init`.
var Schema = []string{
	`CREATE SCHEMA IF NOT EXISTS qval`,
	`CREATE TABLE IF NOT EXISTS qval.observations (
		symbol        TEXT             NOT NULL,
		trade_date    DATE             NOT NULL,
		asset_return  DOUBLE PRECISION NOT NULL,
		market_return DOUBLE PRECISION NOT NULL,
		risk_free     DOUBLE PRECISION NOT NULL,
		factors       JSONB            NOT NULL DEFAULT '{}'::jsonb,
		PRIMARY KEY (symbol, trade_date)
	)`,
	`CREATE TABLE IF NOT EXISTS qval.fundamentals (
		symbol         TEXT  NOT NULL,
		source         TEXT  NOT NULL,
		period_end     DATE  NOT NULL,
		available_date DATE  NOT NULL,
		fields         JSONB NOT NULL,
		PRIMARY KEY (symbol, source, period_end)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_fundamentals_available
		ON qval.fundamentals (symbol, source, available_date)`,
}

// Repository loads and stores market data in PostgreSQL.
// ⭐ SSOT: 시장/펀더멘털 데이터 저장소는 여기서만
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new market data repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// LoadObservations retrieves observations for a symbol within [from, to], date ascending.
// Zero from/to leave that side open.
func (r *Repository) LoadObservations(ctx context.Context, symbol string, from, to time.Time) ([]contracts.Observation, error) {
	query := `
		SELECT trade_date, asset_return, market_return, risk_free, factors
		FROM qval.observations
		WHERE symbol = $1
		  AND ($2::date IS NULL OR trade_date >= $2)
		  AND ($3::date IS NULL OR trade_date <= $3)
		ORDER BY trade_date ASC
	`

	rows, err := r.pool.Query(ctx, query, symbol, nullDate(from), nullDate(to))
	if err != nil {
		return nil, fmt.Errorf("query observations: %w", err)
	}
	defer rows.Close()

	var obs []contracts.Observation
	for rows.Next() {
		var o contracts.Observation
		if err := rows.Scan(&o.Date, &o.AssetReturn, &o.MarketReturn, &o.RiskFree, &o.Factors); err != nil {
			return nil, err
		}
		if len(o.Factors) == 0 {
			o.Factors = nil
		}
		obs = append(obs, o)
	}
	return obs, rows.Err()
}

// LoadFundamentals retrieves one fundamentals source for a symbol ordered by period end.
func (r *Repository) LoadFundamentals(ctx context.Context, symbol, source string) ([]contracts.FundamentalRecord, error) {
	query := `
		SELECT period_end, available_date, fields
		FROM qval.fundamentals
		WHERE symbol = $1 AND source = $2
		ORDER BY period_end ASC
	`

	rows, err := r.pool.Query(ctx, query, symbol, source)
	if err != nil {
		return nil, fmt.Errorf("query fundamentals: %w", err)
	}
	defer rows.Close()

	var records []contracts.FundamentalRecord
	for rows.Next() {
		var fr contracts.FundamentalRecord
		if err := rows.Scan(&fr.PeriodEnd, &fr.AvailableDate, &fr.Fields); err != nil {
			return nil, err
		}
		records = append(records, fr)
	}
	return records, rows.Err()
}

// ListSources returns the fundamentals sources stored for a symbol.
func (r *Repository) ListSources(ctx context.Context, symbol string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT source FROM qval.fundamentals WHERE symbol = $1 ORDER BY source`, symbol)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

// SaveObservations upserts observations in a single batch.
func (r *Repository) SaveObservations(ctx context.Context, symbol string, obs []contracts.Observation) error {
	query := `
		INSERT INTO qval.observations (symbol, trade_date, asset_return, market_return, risk_free, factors)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (symbol, trade_date) DO UPDATE SET
			asset_return  = EXCLUDED.asset_return,
			market_return = EXCLUDED.market_return,
			risk_free     = EXCLUDED.risk_free,
			factors       = EXCLUDED.factors
	`

	batch := &pgx.Batch{}
	for _, o := range obs {
		factors := o.Factors
		if factors == nil {
			factors = map[string]float64{}
		}
		batch.Queue(query, symbol, o.Date, o.AssetReturn, o.MarketReturn, o.RiskFree, factors)
	}
	return r.sendBatch(ctx, batch, "observations")
}

// SaveFundamentals upserts records for one source.
func (r *Repository) SaveFundamentals(ctx context.Context, symbol, source string, records []contracts.FundamentalRecord) error {
	query := `
		INSERT INTO qval.fundamentals (symbol, source, period_end, available_date, fields)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (symbol, source, period_end) DO UPDATE SET
			available_date = EXCLUDED.available_date,
			fields         = EXCLUDED.fields
	`

	batch := &pgx.Batch{}
	for _, fr := range records {
		batch.Queue(query, symbol, source, fr.PeriodEnd, fr.AvailableDate, fr.Fields)
	}
	return r.sendBatch(ctx, batch, "fundamentals")
}

func (r *Repository) sendBatch(ctx context.Context, batch *pgx.Batch, what string) error {
	if batch.Len() == 0 {
		return nil
	}
	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("save %s row %d: %w", what, i, err)
		}
	}
	return nil
}

func nullDate(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
