package strategyconfig

import (
	"fmt"
	"time"

	"github.com/wonny/qval/internal/contracts"
	"github.com/wonny/qval/internal/evaluation"
)

// BoundaryDate is the first test date.
func (c *Config) BoundaryDate() (time.Time, error) {
	return time.Parse(DateLayout, c.Evaluation.Boundary)
}

// DateRange returns the optional data window; zero values are open.
func (c *Config) DateRange() (from, to time.Time) {
	if c.Data.From != "" {
		from, _ = time.Parse(DateLayout, c.Data.From)
	}
	if c.Data.To != "" {
		to, _ = time.Parse(DateLayout, c.Data.To)
	}
	return from, to
}

// HierarchyConfig maps the YAML hierarchy section.
func (c *Config) HierarchyConfig() evaluation.HierarchyConfig {
	h := c.Evaluation.Hierarchy
	return evaluation.HierarchyConfig{
		Target:       c.Evaluation.Target,
		Market:       h.Market,
		Macro:        h.Macro,
		Fundamentals: h.Fundamentals,
		Window:       h.Window,
		MinObs:       h.MinObs,
	}
}

// ModelSpecs returns the evaluation list in order: naive benchmarks, the nested
// hierarchy, then the configured models.
func (c *Config) ModelSpecs() []contracts.ModelSpec {
	var specs []contracts.ModelSpec
	if c.Evaluation.IncludeNaive {
		specs = append(specs, evaluation.NaiveBenchmarks(c.Evaluation.Target)...)
	}
	if c.Evaluation.Hierarchy.Enabled {
		specs = append(specs, evaluation.DefaultHierarchy(c.HierarchyConfig())...)
	}
	return append(specs, c.Models...)
}

func (c *Config) model(name string) (contracts.ModelSpec, bool) {
	for _, m := range c.ModelSpecs() {
		if m.Name == name {
			return m, true
		}
	}
	return contracts.ModelSpec{}, false
}

// StrategyParams returns the configured strategies plus the naive directional rule when enabled.
func (c *Config) StrategyParams() []contracts.StrategyParams {
	out := append([]contracts.StrategyParams{}, c.Strategies...)
	if c.Batch.IncludeNaiveDirectional {
		out = append(out, contracts.NaiveDirectional(c.Batch.NaiveCostRate))
	}
	return out
}

// RunConfigs is the (model × strategy) grid. Without batch.models every
// non-benchmark model that lags its features is used.
func (c *Config) RunConfigs() []contracts.RunConfig {
	var models []contracts.ModelSpec
	if len(c.Batch.Models) > 0 {
		for _, name := range c.Batch.Models {
			if m, ok := c.model(name); ok {
				models = append(models, m)
			}
		}
	} else {
		naive := make(map[string]bool)
		for _, m := range evaluation.NaiveBenchmarks(c.Evaluation.Target) {
			naive[m.Name] = true
		}
		for _, m := range c.ModelSpecs() {
			if !naive[m.Name] && m.Lag() > 0 {
				models = append(models, m)
			}
		}
	}

	strategies := c.StrategyParams()
	configs := make([]contracts.RunConfig, 0, len(models)*len(strategies))
	for _, m := range models {
		for _, s := range strategies {
			configs = append(configs, contracts.RunConfig{Model: m, Strategy: s})
		}
	}
	return configs
}

// StabilitySpecs resolves the stability section.
func (c *Config) StabilitySpecs() (base, extended contracts.ModelSpec, err error) {
	var ok bool
	if base, ok = c.model(c.Stability.Base); !ok {
		return base, extended, fmt.Errorf("stability.base: unknown model %q", c.Stability.Base)
	}
	if extended, ok = c.model(c.Stability.Extended); !ok {
		return base, extended, fmt.Errorf("stability.extended: unknown model %q", c.Stability.Extended)
	}
	return base, extended, nil
}
