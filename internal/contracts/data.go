package contracts

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"time"
)

// Field names emitted by FromObservations.
const (
	FieldAssetReturn  = "asset_return"
	FieldMarketReturn = "market_return"
	FieldRiskFree     = "risk_free"
	FieldExcessReturn = "excess_return" // asset_return - risk_free
	FieldMarketExcess = "market_excess" // market_return - risk_free
)

// DefaultDisclosureLagMonths is the publication delay applied to fundamentals.
const DefaultDisclosureLagMonths = 3

// Observation is a single trading-date record.
// ⭐ SSOT: 일별 시장 데이터 (수익률, 벤치마크, 무위험 수익률)
type Observation struct {
	Date         time.Time          `json:"date"`
	AssetReturn  float64            `json:"asset_return"`
	MarketReturn float64            `json:"market_return"`
	RiskFree     float64            `json:"risk_free"`
	Factors      map[string]float64 `json:"factors,omitempty"`
}

// FundamentalRecord is a lower-frequency snapshot usable from AvailableDate on.
type FundamentalRecord struct {
	PeriodEnd     time.Time          `json:"period_end"`
	AvailableDate time.Time          `json:"available_date"`
	Fields        map[string]float64 `json:"fields"`
}

// NewFundamentalRecord derives AvailableDate as PeriodEnd plus lagMonths calendar months.
// Month ends are clamped (Mar 31 + 3 months = Jun 30).
func NewFundamentalRecord(periodEnd time.Time, lagMonths int, fields map[string]float64) FundamentalRecord {
	return FundamentalRecord{
		PeriodEnd:     periodEnd,
		AvailableDate: AddMonths(periodEnd, lagMonths),
		Fields:        fields,
	}
}

// AddMonths adds n calendar months, clamping the day to the target month's length.
func AddMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return first.AddDate(0, 0, d-1)
}

// Stamp records which secondary record populated a row's fields.
type Stamp struct {
	PeriodEnd     time.Time `json:"period_end"`
	AvailableDate time.Time `json:"available_date"`
}

// Row is one aligned dataset row. A missing field is an absent key, never zero.
type Row struct {
	Date   time.Time          `json:"date"`
	Values map[string]float64 `json:"values"`
	AsOf   map[string]Stamp   `json:"as_of,omitempty"`
}

// Value returns the field value and whether it is present.
func (r Row) Value(field string) (float64, bool) {
	v, ok := r.Values[field]
	if !ok || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// Clone returns a deep copy of the row.
func (r Row) Clone() Row {
	out := Row{Date: r.Date, Values: make(map[string]float64, len(r.Values))}
	for k, v := range r.Values {
		out.Values[k] = v
	}
	if len(r.AsOf) > 0 {
		out.AsOf = make(map[string]Stamp, len(r.AsOf))
		for k, v := range r.AsOf {
			out.AsOf[k] = v
		}
	}
	return out
}

// Dataset is the aligned, date-ordered table every run reads.
// It is shared read-only across concurrent runs.
type Dataset struct {
	Rows []Row `json:"rows"`
}

// FromObservations builds a Dataset with one row per observation.
// Dates must be unique and strictly increasing.
func FromObservations(obs []Observation) (*Dataset, error) {
	ds := &Dataset{Rows: make([]Row, 0, len(obs))}
	for i, o := range obs {
		if i > 0 && !o.Date.After(obs[i-1].Date) {
			return nil, fmt.Errorf("observation %d (%s) is not after %s", i, o.Date.Format("2006-01-02"), obs[i-1].Date.Format("2006-01-02"))
		}
		values := map[string]float64{
			FieldAssetReturn:  o.AssetReturn,
			FieldMarketReturn: o.MarketReturn,
			FieldRiskFree:     o.RiskFree,
			FieldExcessReturn: o.AssetReturn - o.RiskFree,
			FieldMarketExcess: o.MarketReturn - o.RiskFree,
		}
		for k, v := range o.Factors {
			if math.IsNaN(v) {
				continue
			}
			values[k] = v
		}
		ds.Rows = append(ds.Rows, Row{Date: o.Date, Values: values})
	}
	return ds, nil
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	return len(d.Rows)
}

// Dates returns the row dates in order.
func (d *Dataset) Dates() []time.Time {
	out := make([]time.Time, len(d.Rows))
	for i, r := range d.Rows {
		out[i] = r.Date
	}
	return out
}

// Column extracts a field. ok[i] is false where the field is missing.
func (d *Dataset) Column(field string) (values []float64, ok []bool) {
	values = make([]float64, len(d.Rows))
	ok = make([]bool, len(d.Rows))
	for i, r := range d.Rows {
		values[i], ok[i] = r.Value(field)
	}
	return values, ok
}

// SplitIndex returns the index of the first row dated on or after boundary.
func (d *Dataset) SplitIndex(boundary time.Time) int {
	return sort.Search(len(d.Rows), func(i int) bool {
		return !d.Rows[i].Date.Before(boundary)
	})
}

// Clone returns a deep copy.
func (d *Dataset) Clone() *Dataset {
	out := &Dataset{Rows: make([]Row, len(d.Rows))}
	for i, r := range d.Rows {
		out.Rows[i] = r.Clone()
	}
	return out
}

// WithColumn returns a copy with field set where ok[i] and removed elsewhere.
func (d *Dataset) WithColumn(field string, values []float64, ok []bool) (*Dataset, error) {
	if len(values) != len(d.Rows) || len(ok) != len(d.Rows) {
		return nil, fmt.Errorf("column %s: got %d values for %d rows", field, len(values), len(d.Rows))
	}
	out := d.Clone()
	for i := range out.Rows {
		if ok[i] {
			out.Rows[i].Values[field] = values[i]
		} else {
			delete(out.Rows[i].Values, field)
		}
	}
	return out, nil
}

// Fingerprint hashes dates and values so cached reports can be keyed by content.
func (d *Dataset) Fingerprint() string {
	h := sha256.New()
	var buf [8]byte
	for _, r := range d.Rows {
		binary.LittleEndian.PutUint64(buf[:], uint64(r.Date.Unix()))
		h.Write(buf[:])

		keys := make([]string, 0, len(r.Values))
		for k := range r.Values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			h.Write([]byte(k))
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(r.Values[k]))
			h.Write(buf[:])
		}
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
