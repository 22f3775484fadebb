package marketdata

import (
	"sort"
	"time"

	"github.com/wonny/qval/internal/contracts"
)

// DefaultMinCoverage is the share of test rows on which a field must be present.
const DefaultMinCoverage = 0.8

// FieldCoverage is the share of rows carrying a field, per partition.
type FieldCoverage struct {
	Field          string    `json:"field"`
	Train          float64   `json:"train"`
	Test           float64   `json:"test"`
	FirstAvailable time.Time `json:"first_available,omitempty"`
}

// QualityReport summarizes field coverage around the train/test boundary.
type QualityReport struct {
	Rows      int             `json:"rows"`
	TrainRows int             `json:"train_rows"`
	TestRows  int             `json:"test_rows"`
	Fields    []FieldCoverage `json:"fields"`
	Score     float64         `json:"score"` // mean test coverage
}

// QualityGate checks that model inputs are populated before anything is fit.
// ⭐ SSOT: 데이터셋 커버리지 검증
type QualityGate struct {
	MinCoverage float64
}

// NewQualityGate creates a gate; a non-positive threshold takes DefaultMinCoverage.
func NewQualityGate(minCoverage float64) *QualityGate {
	if minCoverage <= 0 {
		minCoverage = DefaultMinCoverage
	}
	return &QualityGate{MinCoverage: minCoverage}
}

// Check measures coverage of fields on rows [0, split) and [split, n).
func (g *QualityGate) Check(ds *contracts.Dataset, fields []string, split int) *QualityReport {
	n := ds.Len()
	if split < 0 {
		split = 0
	}
	if split > n {
		split = n
	}

	report := &QualityReport{
		Rows:      n,
		TrainRows: split,
		TestRows:  n - split,
		Fields:    make([]FieldCoverage, 0, len(fields)),
	}

	for _, f := range fields {
		_, ok := ds.Column(f)
		fc := FieldCoverage{
			Field: f,
			Train: share(ok[:split]),
			Test:  share(ok[split:]),
		}
		for t, present := range ok {
			if present {
				fc.FirstAvailable = ds.Rows[t].Date
				break
			}
		}
		report.Fields = append(report.Fields, fc)
		report.Score += fc.Test
	}
	if len(fields) > 0 {
		report.Score /= float64(len(fields))
	}
	return report
}

// Violations returns fields whose test coverage falls below the gate threshold.
func (g *QualityGate) Violations(report *QualityReport) []FieldCoverage {
	var out []FieldCoverage
	for _, fc := range report.Fields {
		if fc.Test < g.MinCoverage {
			out = append(out, fc)
		}
	}
	return out
}

// RequiredFields lists every target and feature used by specs, sorted and unique.
func RequiredFields(specs []contracts.ModelSpec) []string {
	seen := make(map[string]bool)
	for _, s := range specs {
		if s.Target != "" {
			seen[s.Target] = true
		}
		for _, f := range s.Features {
			seen[f] = true
		}
	}
	out := make([]string, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func share(ok []bool) float64 {
	if len(ok) == 0 {
		return 0
	}
	n := 0
	for _, v := range ok {
		if v {
			n++
		}
	}
	return float64(n) / float64(len(ok))
}
