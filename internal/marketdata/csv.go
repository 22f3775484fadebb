package marketdata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/wonny/qval/internal/contracts"
)

// DateLayout is the date format of every input file.
const DateLayout = "2006-01-02"

// ErrBadHeader is returned when a CSV lacks required columns.
var ErrBadHeader = errors.New("missing required column")

var observationColumns = []string{"date", "asset_return", "market_return", "risk_free"}

// ReadObservationsCSV reads date,asset_return,market_return,risk_free[,factor...].
// An empty factor cell is missing; an empty required cell is an error.
func ReadObservationsCSV(r io.Reader) ([]contracts.Observation, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := indexHeader(header)
	for _, c := range observationColumns {
		if _, ok := col[c]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrBadHeader, c)
		}
	}

	var out []contracts.Observation
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		date, err := time.Parse(DateLayout, rec[col["date"]])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		o := contracts.Observation{Date: date}
		for name, dst := range map[string]*float64{
			"asset_return":  &o.AssetReturn,
			"market_return": &o.MarketReturn,
			"risk_free":     &o.RiskFree,
		} {
			v, ok, err := parseCell(rec[col[name]])
			if err != nil || !ok {
				return nil, fmt.Errorf("line %d: %s: invalid or empty value %q", line, name, rec[col[name]])
			}
			*dst = v
		}

		for i, name := range header {
			if isObservationColumn(name) {
				continue
			}
			v, ok, err := parseCell(rec[i])
			if err != nil {
				return nil, fmt.Errorf("line %d: %s: %w", line, name, err)
			}
			if !ok {
				continue
			}
			if o.Factors == nil {
				o.Factors = make(map[string]float64)
			}
			o.Factors[name] = v
		}
		out = append(out, o)
	}
	return out, nil
}

// WriteObservationsCSV writes observations with one column per factor seen.
func WriteObservationsCSV(w io.Writer, obs []contracts.Observation) error {
	factors := make(map[string]bool)
	for _, o := range obs {
		for k := range o.Factors {
			factors[k] = true
		}
	}
	names := sortedKeys(factors)

	cw := csv.NewWriter(w)
	if err := cw.Write(append(append([]string{}, observationColumns...), names...)); err != nil {
		return err
	}
	for _, o := range obs {
		rec := []string{o.Date.Format(DateLayout), formatFloat(o.AssetReturn), formatFloat(o.MarketReturn), formatFloat(o.RiskFree)}
		for _, n := range names {
			if v, ok := o.Factors[n]; ok {
				rec = append(rec, formatFloat(v))
			} else {
				rec = append(rec, "")
			}
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadFundamentalsCSV reads period_end[,available_date],field... . Without an
// available_date column the date is period_end plus lagMonths.
func ReadFundamentalsCSV(r io.Reader, lagMonths int) ([]contracts.FundamentalRecord, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := indexHeader(header)
	if _, ok := col["period_end"]; !ok {
		return nil, fmt.Errorf("%w: period_end", ErrBadHeader)
	}
	availIdx, hasAvail := col["available_date"]

	var out []contracts.FundamentalRecord
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		periodEnd, err := time.Parse(DateLayout, rec[col["period_end"]])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		fields := make(map[string]float64)
		for i, name := range header {
			if name == "period_end" || name == "available_date" {
				continue
			}
			v, ok, err := parseCell(rec[i])
			if err != nil {
				return nil, fmt.Errorf("line %d: %s: %w", line, name, err)
			}
			if ok {
				fields[name] = v
			}
		}

		fr := contracts.NewFundamentalRecord(periodEnd, lagMonths, fields)
		if hasAvail && rec[availIdx] != "" {
			avail, err := time.Parse(DateLayout, rec[availIdx])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			fr.AvailableDate = avail
		}
		out = append(out, fr)
	}
	return out, nil
}

// WriteFundamentalsCSV writes records with explicit available dates.
func WriteFundamentalsCSV(w io.Writer, records []contracts.FundamentalRecord) error {
	fields := make(map[string]bool)
	for _, r := range records {
		for k := range r.Fields {
			fields[k] = true
		}
	}
	names := sortedKeys(fields)

	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{"period_end", "available_date"}, names...)); err != nil {
		return err
	}
	for _, r := range records {
		rec := []string{r.PeriodEnd.Format(DateLayout), r.AvailableDate.Format(DateLayout)}
		for _, n := range names {
			if v, ok := r.Fields[n]; ok {
				rec = append(rec, formatFloat(v))
			} else {
				rec = append(rec, "")
			}
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func indexHeader(header []string) map[string]int {
	col := make(map[string]int, len(header))
	for i, h := range header {
		header[i] = strings.TrimSpace(h)
		col[header[i]] = i
	}
	return col
}

func isObservationColumn(name string) bool {
	for _, c := range observationColumns {
		if c == name {
			return true
		}
	}
	return false
}

// parseCell returns ok=false for empty or NaN cells.
func parseCell(s string) (float64, bool, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") || strings.EqualFold(s, "na") {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, err
	}
	if math.IsNaN(v) {
		return 0, false, nil
	}
	return v, true, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
