// Package align attaches lower-frequency, lag-adjusted records to a daily dataset
// with a backward as-of join.
package align

import (
	"errors"
	"fmt"
	"sort"

	"github.com/wonny/qval/internal/contracts"
)

var (
	// ErrUnorderedPrimary is returned when primary dates are not strictly increasing.
	ErrUnorderedPrimary = errors.New("primary dates are not strictly increasing")

	// ErrInvalidRecord is returned for a record available on or before its period end.
	ErrInvalidRecord = errors.New("record available on or before its period end")

	// ErrFieldCollision is returned when a field name is supplied by two secondaries,
	// or by a secondary and the primary rows.
	ErrFieldCollision = errors.New("field supplied by more than one source")

	// ErrPointInTime is returned when a row references a record not yet available.
	ErrPointInTime = errors.New("row references a record not yet available")
)

var baseFields = map[string]bool{
	contracts.FieldAssetReturn:  true,
	contracts.FieldMarketReturn: true,
	contracts.FieldRiskFree:     true,
	contracts.FieldExcessReturn: true,
	contracts.FieldMarketExcess: true,
}

// Secondary is a named lower-frequency series.
type Secondary struct {
	Name    string
	Records []contracts.FundamentalRecord
}

// fields returns the sorted union of field names across records.
func (s Secondary) fields() []string {
	seen := make(map[string]bool)
	for _, r := range s.Records {
		for k := range r.Fields {
			seen[k] = true
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Join returns a copy of ds where every row carries, for each secondary, the fields of the
// most recent record with AvailableDate <= row date. Ties on AvailableDate go to the latest
// PeriodEnd. Rows with no such record have the secondary's fields removed.
//
// Joining the result again with the same secondaries returns an identical dataset.
func Join(ds *contracts.Dataset, secondaries ...Secondary) (*contracts.Dataset, error) {
	for i := 1; i < len(ds.Rows); i++ {
		if !ds.Rows[i].Date.After(ds.Rows[i-1].Date) {
			return nil, fmt.Errorf("%w: row %d (%s)", ErrUnorderedPrimary, i, ds.Rows[i].Date.Format("2006-01-02"))
		}
	}

	owner := make(map[string]string)
	fieldSets := make([][]string, len(secondaries))
	for i, sec := range secondaries {
		fieldSets[i] = sec.fields()
		for _, f := range fieldSets[i] {
			if baseFields[f] {
				return nil, fmt.Errorf("%w: %s in %s shadows a market field", ErrFieldCollision, f, sec.Name)
			}
			if prev, ok := owner[f]; ok && prev != sec.Name {
				return nil, fmt.Errorf("%w: %s in %s and %s", ErrFieldCollision, f, prev, sec.Name)
			}
			owner[f] = sec.Name
		}
		if err := checkPrimaryCollision(ds, sec.Name, fieldSets[i]); err != nil {
			return nil, err
		}
	}

	out := ds.Clone()
	for i, sec := range secondaries {
		records, err := sortRecords(sec)
		if err != nil {
			return nil, err
		}
		attach(out, sec.Name, records, fieldSets[i])
	}
	return out, nil
}

// checkPrimaryCollision rejects secondary fields already present on rows the secondary has
// not stamped, i.e. values that came from the primary itself. Stamped rows are earlier joins.
func checkPrimaryCollision(ds *contracts.Dataset, name string, fields []string) error {
	for _, row := range ds.Rows {
		if _, joined := row.AsOf[name]; joined {
			continue
		}
		for _, f := range fields {
			if _, ok := row.Values[f]; ok {
				return fmt.Errorf("%w: %s in %s is also a primary field (%s)", ErrFieldCollision, f, name,
					row.Date.Format("2006-01-02"))
			}
		}
	}
	return nil
}

// sortRecords validates and orders records by (AvailableDate, PeriodEnd).
func sortRecords(sec Secondary) ([]contracts.FundamentalRecord, error) {
	records := make([]contracts.FundamentalRecord, len(sec.Records))
	copy(records, sec.Records)
	for _, r := range records {
		if !r.AvailableDate.After(r.PeriodEnd) {
			return nil, fmt.Errorf("%w: %s period %s available %s", ErrInvalidRecord, sec.Name,
				r.PeriodEnd.Format("2006-01-02"), r.AvailableDate.Format("2006-01-02"))
		}
	}
	sort.SliceStable(records, func(a, b int) bool {
		if !records[a].AvailableDate.Equal(records[b].AvailableDate) {
			return records[a].AvailableDate.Before(records[b].AvailableDate)
		}
		return records[a].PeriodEnd.Before(records[b].PeriodEnd)
	})
	return records, nil
}

// attach walks rows and records once; both are sorted so the cursor only moves forward.
func attach(ds *contracts.Dataset, name string, records []contracts.FundamentalRecord, fields []string) {
	next := 0
	for i := range ds.Rows {
		row := &ds.Rows[i]
		for next < len(records) && !records[next].AvailableDate.After(row.Date) {
			next++
		}

		if next == 0 {
			for _, f := range fields {
				delete(row.Values, f)
			}
			delete(row.AsOf, name)
			continue
		}

		rec := records[next-1]
		for _, f := range fields {
			if v, ok := rec.Fields[f]; ok {
				row.Values[f] = v
			} else {
				delete(row.Values, f)
			}
		}
		if row.AsOf == nil {
			row.AsOf = make(map[string]contracts.Stamp)
		}
		row.AsOf[name] = contracts.Stamp{PeriodEnd: rec.PeriodEnd, AvailableDate: rec.AvailableDate}
	}
}

// CheckPointInTime verifies that no row carries a record stamped after the row's date.
func CheckPointInTime(ds *contracts.Dataset) error {
	for _, row := range ds.Rows {
		for name, stamp := range row.AsOf {
			if stamp.AvailableDate.After(row.Date) {
				return fmt.Errorf("%w: %s on %s uses %s record available %s", ErrPointInTime, name,
					row.Date.Format("2006-01-02"), stamp.PeriodEnd.Format("2006-01-02"),
					stamp.AvailableDate.Format("2006-01-02"))
			}
		}
	}
	return nil
}
