package estimator

import (
	"fmt"
	"time"

	"github.com/wonny/qval/internal/contracts"
)

// Design is the regression view of a dataset for one model spec.
// Row t pairs the target at t with features taken from row t-Lag.
type Design struct {
	Dates    []time.Time
	Features []string
	X        [][]float64 // nil where a lagged feature is missing
	Y        []float64
	YOK      []bool
	Lag      int
}

// BuildDesign lags features by spec.Lag() rows. Features and target must appear
// somewhere in the dataset; individual missing values only blank their row.
func BuildDesign(ds *contracts.Dataset, spec contracts.ModelSpec) (*Design, error) {
	if spec.Target == "" {
		return nil, fmt.Errorf("%w: model %s has no target", ErrUnknownField, spec.Name)
	}
	for _, f := range append([]string{spec.Target}, spec.Features...) {
		if !hasField(ds, f) {
			return nil, fmt.Errorf("%w: %s (model %s)", ErrUnknownField, f, spec.Name)
		}
	}

	n := ds.Len()
	lag := spec.Lag()
	d := &Design{
		Dates:    ds.Dates(),
		Features: spec.Features,
		X:        make([][]float64, n),
		Y:        make([]float64, n),
		YOK:      make([]bool, n),
		Lag:      lag,
	}

	for t := 0; t < n; t++ {
		d.Y[t], d.YOK[t] = ds.Rows[t].Value(spec.Target)

		if len(spec.Features) == 0 {
			d.X[t] = []float64{}
			continue
		}
		src := t - lag
		if src < 0 {
			continue
		}
		x := make([]float64, len(spec.Features))
		complete := true
		for j, f := range spec.Features {
			v, ok := ds.Rows[src].Value(f)
			if !ok {
				complete = false
				break
			}
			x[j] = v
		}
		if complete {
			d.X[t] = x
		}
	}
	return d, nil
}

// Len returns the number of rows.
func (d *Design) Len() int {
	return len(d.Dates)
}

// Complete reports whether row t can be used for fitting.
func (d *Design) Complete(t int) bool {
	return d.X[t] != nil && d.YOK[t]
}

// window collects complete rows in [lo, hi).
func (d *Design) window(lo, hi int) (X [][]float64, y []float64, first, last int) {
	first, last = -1, -1
	for i := lo; i < hi; i++ {
		if !d.Complete(i) {
			continue
		}
		if first < 0 {
			first = i
		}
		last = i
		X = append(X, d.X[i])
		y = append(y, d.Y[i])
	}
	return X, y, first, last
}

func hasField(ds *contracts.Dataset, field string) bool {
	for _, r := range ds.Rows {
		if _, ok := r.Values[field]; ok {
			return true
		}
	}
	return false
}
