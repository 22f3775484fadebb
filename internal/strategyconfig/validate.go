package strategyconfig

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wonny/qval/internal/contracts"
)

// DateLayout is the date format used in YAML.
const DateLayout = "2006-01-02"

// ValidationError 검증 실패 (프로그램 중단)
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects every failure found in one pass.
type ValidationErrors []ValidationError

func (es ValidationErrors) Error() string {
	msgs := make([]string, len(es))
	for i, e := range es {
		msgs[i] = e.Error()
	}
	return "invalid config: " + strings.Join(msgs, "; ")
}

// Warning 권장 위반 (경고만)
type Warning struct {
	Code    string
	Message string
}

type validator struct {
	errs ValidationErrors
}

func (v *validator) add(field, format string, args ...interface{}) {
	v.errs = append(v.errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// applyDefaults fills optional values before validation.
func applyDefaults(cfg *Config) {
	if cfg.Data.DisclosureLagMonths == 0 {
		cfg.Data.DisclosureLagMonths = contracts.DefaultDisclosureLagMonths
	}
	if cfg.Evaluation.Target == "" {
		cfg.Evaluation.Target = contracts.FieldExcessReturn
	}
	if cfg.Evaluation.Hierarchy.Enabled && cfg.Evaluation.Hierarchy.Market == "" {
		cfg.Evaluation.Hierarchy.Market = contracts.FieldMarketExcess
	}
	for i := range cfg.Models {
		if cfg.Models[i].Target == "" {
			cfg.Models[i].Target = cfg.Evaluation.Target
		}
	}
	for i := range cfg.Strategies {
		if cfg.Strategies[i].Signal == "" {
			cfg.Strategies[i].Signal = contracts.SignalForecast
		}
	}
}

// Validate checks all required constraints and returns ValidationErrors on failure.
func Validate(cfg *Config) error {
	v := &validator{}

	// === Meta ===
	if cfg.Meta.ExperimentID == "" {
		v.add("meta.experiment_id", "required")
	}

	// === Data ===
	validateData(v, cfg.Data)

	// === Evaluation ===
	if _, err := time.Parse(DateLayout, cfg.Evaluation.Boundary); err != nil {
		v.add("evaluation.boundary", "must be YYYY-MM-DD")
	}
	if h := cfg.Evaluation.Hierarchy; h.Enabled {
		if h.Window < 0 || h.MinObs < 0 {
			v.add("evaluation.hierarchy", "window and min_obs must be >= 0")
		}
		if h.Window > 0 && h.MinObs > h.Window {
			v.add("evaluation.hierarchy.min_obs", "must be <= window")
		}
	}

	// === Models ===
	names := make(map[string]bool)
	for i, m := range cfg.Models {
		field := fmt.Sprintf("models[%d]", i)
		if m.Name == "" {
			v.add(field+".name", "required")
		} else if names[m.Name] {
			v.add(field+".name", "duplicate model %q", m.Name)
		}
		names[m.Name] = true

		switch m.Family {
		case contracts.FamilyOLS, contracts.FamilyRidge, contracts.FamilyGBT,
			contracts.FamilyHistoricalMean, contracts.FamilyRandomWalk:
		default:
			v.add(field+".family", "unknown family %q", m.Family)
		}
		if m.Target != cfg.Evaluation.Target {
			v.add(field+".target", "must equal evaluation.target %q", cfg.Evaluation.Target)
		}
		if err := m.Window.Validate(); err != nil {
			v.add(field+".window", "%v", err)
		}
		if m.FeatureLag < 0 {
			v.add(field+".feature_lag", "must be >= 0")
		}
		if m.Ridge.Lambda < 0 {
			v.add(field+".ridge.lambda", "must be >= 0")
		}
	}

	// === Strategies ===
	strategies := make(map[string]bool)
	for i, s := range cfg.Strategies {
		field := fmt.Sprintf("strategies[%d]", i)
		if s.Name == "" {
			v.add(field+".name", "required")
		} else if strategies[s.Name] {
			v.add(field+".name", "duplicate strategy %q", s.Name)
		}
		strategies[s.Name] = true

		if s.Signal != contracts.SignalForecast && s.Signal != contracts.SignalUpside {
			v.add(field+".signal", "must be forecast or upside")
		}
		if s.EntryThreshold < s.ExitThreshold {
			v.add(field, "entry_threshold must be >= exit_threshold")
		}
		if s.CostRate < 0 || s.CostRate >= 1 {
			v.add(field+".cost_rate", "must be in [0, 1)")
		}
		if s.HorizonDays < 0 {
			v.add(field+".horizon_days", "must be >= 0")
		}
		if vt := s.VolTarget; vt.Enabled {
			if vt.AnnualTarget < 0 || vt.Floor < 0 {
				v.add(field+".vol_target", "annual_target and floor must be >= 0")
			}
			if vt.Lookback == 1 || vt.Lookback < 0 {
				v.add(field+".vol_target.lookback", "must be >= 2")
			}
		}
	}

	// === Batch ===
	for i, name := range cfg.Batch.Models {
		field := fmt.Sprintf("batch.models[%d]", i)
		m, ok := cfg.model(name)
		if !ok {
			v.add(field, "unknown model %q", name)
			continue
		}
		if m.Lag() == 0 {
			v.add(field, "model %q is contemporaneous and cannot drive a strategy", name)
		}
	}
	if cfg.Batch.NaiveCostRate < 0 {
		v.add("batch.naive_cost_rate", "must be >= 0")
	}

	// === Stability ===
	if cfg.Stability.Base != "" || cfg.Stability.Extended != "" {
		if _, ok := cfg.model(cfg.Stability.Base); !ok {
			v.add("stability.base", "unknown model %q", cfg.Stability.Base)
		}
		if _, ok := cfg.model(cfg.Stability.Extended); !ok {
			v.add("stability.extended", "unknown model %q", cfg.Stability.Extended)
		}
	}
	if cfg.Stability.Window < 0 || cfg.Stability.Step < 0 {
		v.add("stability", "window and step must be >= 0")
	}

	// === Schedule ===
	if cfg.Schedule.Cron != "" {
		if _, err := cron.ParseStandard(cfg.Schedule.Cron); err != nil {
			v.add("schedule.cron", "%v", err)
		}
	}
	if cfg.Schedule.Timezone != "" {
		if _, err := time.LoadLocation(cfg.Schedule.Timezone); err != nil {
			v.add("schedule.timezone", "%v", err)
		}
	}
	if cfg.Schedule.MaxRetries < 0 {
		v.add("schedule.max_retries", "must be >= 0")
	}

	if len(v.errs) > 0 {
		return v.errs
	}
	return nil
}

func validateData(v *validator, d Data) {
	switch d.Source {
	case SourceCSV:
		if d.Observations == "" {
			v.add("data.observations", "required for csv source")
		}
		for i, f := range d.Fundamentals {
			if f.Path == "" {
				v.add(fmt.Sprintf("data.fundamentals[%d].path", i), "required for csv source")
			}
		}
	case SourcePostgres:
		if d.Symbol == "" {
			v.add("data.symbol", "required for postgres source")
		}
	case SourceSynthetic:
	default:
		v.add("data.source", "must be csv, postgres or synthetic")
	}

	for i, f := range d.Fundamentals {
		if f.Name == "" {
			v.add(fmt.Sprintf("data.fundamentals[%d].name", i), "required")
		}
	}
	for _, f := range []struct{ field, value string }{{"data.from", d.From}, {"data.to", d.To}} {
		if f.value == "" {
			continue
		}
		if _, err := time.Parse(DateLayout, f.value); err != nil {
			v.add(f.field, "must be YYYY-MM-DD")
		}
	}
	if d.DisclosureLagMonths < 0 {
		v.add("data.disclosure_lag_months", "must be >= 0")
	}
}

// Warn checks recommended constraints (non-fatal)
func Warn(cfg *Config) []Warning {
	var warnings []Warning

	for _, s := range cfg.Strategies {
		if s.EntryThreshold == s.ExitThreshold {
			warnings = append(warnings, Warning{
				Code:    "NO_HYSTERESIS_BAND",
				Message: fmt.Sprintf("strategy %s: entry == exit, every sign flip trades", s.Name),
			})
		}
		if s.CostRate == 0 {
			warnings = append(warnings, Warning{
				Code:    "ZERO_COST",
				Message: fmt.Sprintf("strategy %s: no transaction cost", s.Name),
			})
		}
	}

	for _, m := range cfg.Models {
		if m.Family == contracts.FamilyGBT && m.Window.Mode != contracts.ModeStatic && m.Window.RefitEvery <= 1 {
			warnings = append(warnings, Warning{
				Code:    "SLOW_REFIT",
				Message: fmt.Sprintf("model %s: boosted trees refit every step, consider window.refit_every", m.Name),
			})
		}
	}

	if cfg.Data.DisclosureLagMonths < contracts.DefaultDisclosureLagMonths && len(cfg.Data.Fundamentals) > 0 {
		warnings = append(warnings, Warning{
			Code:    "SHORT_DISCLOSURE_LAG",
			Message: fmt.Sprintf("disclosure lag %d months is shorter than the usual %d", cfg.Data.DisclosureLagMonths, contracts.DefaultDisclosureLagMonths),
		})
	}

	return warnings
}
