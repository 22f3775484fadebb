package contracts

import "time"

// ModelComparison is one row of the nested evaluation table.
type ModelComparison struct {
	Model      string     `json:"model"`
	Family     Family     `json:"family"`
	Mode       WindowMode `json:"mode"`
	Features   []string   `json:"features"`
	NumParams  int        `json:"k"`
	NObs       int        `json:"n"`
	Missing    int        `json:"missing"`
	Fallbacks  int        `json:"fallbacks"`
	MSE        Metric     `json:"mse"`
	RMSE       Metric     `json:"rmse"`
	MAE        Metric     `json:"mae"`
	R2OOS      Metric     `json:"r2_oos"`
	AIC        Metric     `json:"aic"`
	BIC        Metric     `json:"bic"`
	HitRate    Metric     `json:"hit_rate"` // sign agreement between forecast and realized target
	FinalCoefs []float64  `json:"final_coefs,omitempty"`
}

// ComparisonReport is the evaluator output. It never names a winner.
// ⭐ SSOT: 모델 비교 결과 (MSE, RMSE, MAE, R²_OOS, AIC, BIC)
type ComparisonReport struct {
	Boundary    time.Time         `json:"boundary"`
	Target      string            `json:"target"`
	TrainRows   int               `json:"train_rows"`
	TestRows    int               `json:"test_rows"`
	ScoredRows  int               `json:"scored_rows"` // test rows every model forecasts; each NObs equals it
	TrainMean   float64           `json:"train_mean"`
	Models      []ModelComparison `json:"models"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// Find returns the comparison row for a model name.
func (r *ComparisonReport) Find(name string) (ModelComparison, bool) {
	for _, m := range r.Models {
		if m.Model == name {
			return m, true
		}
	}
	return ModelComparison{}, false
}

// PerformanceReport is computed once over a finished strategy series.
// ⭐ SSOT: 전략 성과 분석 결과
type PerformanceReport struct {
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Periods   int       `json:"periods"`

	// 수익률
	TotalReturn  float64 `json:"total_return"`
	AnnualReturn Metric  `json:"annual_return"`
	FinalEquity  float64 `json:"final_equity"`

	// 리스크
	Volatility  Metric  `json:"volatility"`
	Sharpe      Metric  `json:"sharpe"`
	Sortino     Metric  `json:"sortino"`
	MaxDrawdown float64 `json:"max_drawdown"` // positive fraction of peak equity
	VaR95       float64 `json:"var_95"`
	CVaR95      float64 `json:"cvar_95"`

	// 거래 통계
	WinRate     Metric  `json:"win_rate"` // share of Long-exposed dates with a positive asset return
	LongDays    int     `json:"long_days"`
	TotalTrades int     `json:"total_trades"` // state transitions
	Turnover    float64 `json:"turnover"`     // sum of |Δexposure|
	TotalCost   float64 `json:"total_cost"`
}
