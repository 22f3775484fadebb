package contracts

import (
	"encoding/json"
	"math"
)

// Metric is a scalar that may be undefined (zero benchmark variance, empty sample).
// Undefined metrics encode as JSON null and never carry NaN or Inf.
type Metric struct {
	Value   float64
	Defined bool
	Reason  string
}

// DefinedMetric wraps a finite value. Non-finite values become undefined.
func DefinedMetric(v float64) Metric {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return UndefinedMetric("non-finite value")
	}
	return Metric{Value: v, Defined: true}
}

// UndefinedMetric returns an undefined metric with a reason.
func UndefinedMetric(reason string) Metric {
	return Metric{Reason: reason}
}

// MarshalJSON encodes the value or null.
func (m Metric) MarshalJSON() ([]byte, error) {
	if !m.Defined {
		return []byte("null"), nil
	}
	return json.Marshal(m.Value)
}

// UnmarshalJSON accepts a number or null.
func (m *Metric) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*m = Metric{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*m = Metric{Value: v, Defined: true}
	return nil
}

// String formats the metric for tables.
func (m Metric) String() string {
	if !m.Defined {
		return "n/a"
	}
	b, _ := json.Marshal(math.Round(m.Value*1e6) / 1e6)
	return string(b)
}
