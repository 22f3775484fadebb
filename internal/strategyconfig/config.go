package strategyconfig

import (
	"time"

	"github.com/wonny/qval/internal/contracts"
)

// Config는 하나의 실험(평가 + 백테스트 그리드)의 전체 설정
type Config struct {
	Meta       Meta       `yaml:"meta" json:"meta"`
	Data       Data       `yaml:"data" json:"data"`
	Evaluation Evaluation `yaml:"evaluation" json:"evaluation"`
	Models     []Model    `yaml:"models" json:"models"`
	Strategies []Strategy `yaml:"strategies" json:"strategies"`
	Batch      Batch      `yaml:"batch" json:"batch"`
	Stability  Stability  `yaml:"stability" json:"stability"`
	Schedule   Schedule   `yaml:"schedule" json:"schedule"`
}

// Meta 메타 정보
type Meta struct {
	ExperimentID string `yaml:"experiment_id" json:"experiment_id"`
	Version      string `yaml:"version" json:"version"`
	Description  string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Data sources
const (
	SourceCSV       = "csv"
	SourcePostgres  = "postgres"
	SourceSynthetic = "synthetic"
)

// Data 입력 데이터 (CSV, PostgreSQL, 합성 데이터)
type Data struct {
	Source              string            `yaml:"source" json:"source"`
	Observations        string            `yaml:"observations,omitempty" json:"observations,omitempty"` // csv path
	Symbol              string            `yaml:"symbol,omitempty" json:"symbol,omitempty"`             // postgres
	From                string            `yaml:"from,omitempty" json:"from,omitempty"`                 // YYYY-MM-DD
	To                  string            `yaml:"to,omitempty" json:"to,omitempty"`
	Fundamentals        []Fundamentals    `yaml:"fundamentals,omitempty" json:"fundamentals,omitempty"`
	DisclosureLagMonths int               `yaml:"disclosure_lag_months" json:"disclosure_lag_months"`
	Synthetic           *SyntheticOptions `yaml:"synthetic,omitempty" json:"synthetic,omitempty"`
}

// Fundamentals is one named lower-frequency source.
type Fundamentals struct {
	Name string `yaml:"name" json:"name"`
	Path string `yaml:"path,omitempty" json:"path,omitempty"` // csv only; postgres reads by name
}

// SyntheticOptions overrides the generator defaults.
type SyntheticOptions struct {
	Seed int64   `yaml:"seed" json:"seed"`
	Days int     `yaml:"days" json:"days"`
	Beta float64 `yaml:"beta" json:"beta"`
}

// Evaluation 모델 비교 설정
type Evaluation struct {
	Boundary     string    `yaml:"boundary" json:"boundary"` // YYYY-MM-DD, first test date
	Target       string    `yaml:"target" json:"target"`
	IncludeNaive bool      `yaml:"include_naive" json:"include_naive"`
	Hierarchy    Hierarchy `yaml:"hierarchy" json:"hierarchy"`
}

// Hierarchy M1~M5 중첩 모델 구성
type Hierarchy struct {
	Enabled      bool     `yaml:"enabled" json:"enabled"`
	Market       string   `yaml:"market" json:"market"`
	Macro        []string `yaml:"macro" json:"macro"`
	Fundamentals []string `yaml:"fundamentals" json:"fundamentals"`
	Window       int      `yaml:"window" json:"window"`
	MinObs       int      `yaml:"min_obs" json:"min_obs"`
}

// Model is a YAML model spec. An empty target defaults to evaluation.target.
type Model = contracts.ModelSpec

// Strategy is a YAML hysteresis strategy.
type Strategy = contracts.StrategyParams

// Batch (모델 × 전략) 그리드
type Batch struct {
	Models                  []string `yaml:"models" json:"models"` // empty: every model usable by a strategy
	IncludeNaiveDirectional bool     `yaml:"include_naive_directional" json:"include_naive_directional"`
	NaiveCostRate           float64  `yaml:"naive_cost_rate" json:"naive_cost_rate"`
}

// Stability 롤링 R² 비교
type Stability struct {
	Base     string `yaml:"base" json:"base"`
	Extended string `yaml:"extended" json:"extended"`
	Window   int    `yaml:"window" json:"window"`
	Step     int    `yaml:"step" json:"step"`
}

// Schedule 주기 실행 (cron)
type Schedule struct {
	Cron       string `yaml:"cron" json:"cron"`
	Timezone   string `yaml:"timezone" json:"timezone"`
	MaxRetries int    `yaml:"max_retries" json:"max_retries"`
}

// DecisionSnapshot records which configuration produced a run.
type DecisionSnapshot struct {
	ConfigHash      string    `json:"config_hash"`
	ConfigYAML      string    `json:"config_yaml"`
	ExperimentID    string    `json:"experiment_id"`
	DataFingerprint string    `json:"data_fingerprint"`
	CreatedAt       time.Time `json:"created_at"`
}
