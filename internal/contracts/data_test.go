package contracts

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestAddMonths(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"2020-03-31", 3, "2020-06-30"},
		{"2020-12-31", 3, "2021-03-31"},
		{"2020-11-30", 3, "2021-02-28"},
		{"2019-11-30", 3, "2020-02-29"},
		{"2020-06-30", 3, "2020-09-30"},
		{"2020-01-15", 1, "2020-02-15"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, day(tt.want), AddMonths(day(tt.in), tt.n))
		})
	}
}

func TestNewFundamentalRecord(t *testing.T) {
	rec := NewFundamentalRecord(day("2021-09-30"), DefaultDisclosureLagMonths, map[string]float64{"score_value": 0.4})
	assert.Equal(t, day("2021-12-30"), rec.AvailableDate)
	assert.True(t, rec.AvailableDate.After(rec.PeriodEnd))
}

func TestFromObservations(t *testing.T) {
	obs := []Observation{
		{Date: day("2022-01-03"), AssetReturn: 0.01, MarketReturn: 0.005, RiskFree: 0.0004, Factors: map[string]float64{"brent": 0.02}},
		{Date: day("2022-01-04"), AssetReturn: -0.02, MarketReturn: -0.01, RiskFree: 0.0004, Factors: map[string]float64{"brent": math.NaN()}},
	}

	ds, err := FromObservations(obs)
	require.NoError(t, err)
	require.Equal(t, 2, ds.Len())

	v, ok := ds.Rows[0].Value(FieldExcessReturn)
	require.True(t, ok)
	assert.InDelta(t, 0.0096, v, 1e-12)

	v, ok = ds.Rows[0].Value(FieldMarketExcess)
	require.True(t, ok)
	assert.InDelta(t, 0.0046, v, 1e-12)

	_, ok = ds.Rows[1].Value("brent")
	assert.False(t, ok, "NaN factor must be missing, not zero")
}

func TestFromObservationsRejectsUnordered(t *testing.T) {
	obs := []Observation{
		{Date: day("2022-01-04")},
		{Date: day("2022-01-04")},
	}
	_, err := FromObservations(obs)
	assert.Error(t, err)
}

func TestDatasetSplitIndexAndColumn(t *testing.T) {
	ds, err := FromObservations([]Observation{
		{Date: day("2022-12-29"), AssetReturn: 0.01},
		{Date: day("2022-12-30"), AssetReturn: 0.02},
		{Date: day("2023-01-02"), AssetReturn: 0.03},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, ds.SplitIndex(day("2023-01-01")))
	assert.Equal(t, 0, ds.SplitIndex(day("2020-01-01")))
	assert.Equal(t, 3, ds.SplitIndex(day("2024-01-01")))

	vals, ok := ds.Column(FieldAssetReturn)
	assert.Equal(t, []float64{0.01, 0.02, 0.03}, vals)
	assert.Equal(t, []bool{true, true, true}, ok)
}

func TestDatasetWithColumn(t *testing.T) {
	ds, err := FromObservations([]Observation{
		{Date: day("2022-01-03")},
		{Date: day("2022-01-04")},
	})
	require.NoError(t, err)

	out, err := ds.WithColumn("y_hat_m2", []float64{0, 0.5}, []bool{false, true})
	require.NoError(t, err)

	_, ok := out.Rows[0].Value("y_hat_m2")
	assert.False(t, ok)
	v, ok := out.Rows[1].Value("y_hat_m2")
	assert.True(t, ok)
	assert.Equal(t, 0.5, v)

	// source untouched
	_, ok = ds.Rows[1].Value("y_hat_m2")
	assert.False(t, ok)

	_, err = ds.WithColumn("bad", []float64{1}, []bool{true})
	assert.Error(t, err)
}

func TestDatasetFingerprint(t *testing.T) {
	build := func(r float64) *Dataset {
		ds, err := FromObservations([]Observation{{Date: day("2022-01-03"), AssetReturn: r}})
		require.NoError(t, err)
		return ds
	}

	assert.Equal(t, build(0.01).Fingerprint(), build(0.01).Fingerprint())
	assert.NotEqual(t, build(0.01).Fingerprint(), build(0.02).Fingerprint())
}

func TestMetricJSON(t *testing.T) {
	type payload struct {
		A Metric `json:"a"`
		B Metric `json:"b"`
	}

	data, err := json.Marshal(payload{A: DefinedMetric(0.25), B: UndefinedMetric("zero benchmark variance")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":0.25,"b":null}`, string(data))

	var back payload
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, back.A.Defined)
	assert.Equal(t, 0.25, back.A.Value)
	assert.False(t, back.B.Defined)
}

func TestDefinedMetricRejectsNonFinite(t *testing.T) {
	assert.False(t, DefinedMetric(math.Inf(1)).Defined)
	assert.False(t, DefinedMetric(math.NaN()).Defined)
	assert.Equal(t, "n/a", UndefinedMetric("x").String())
}

func TestModelSpecDefaults(t *testing.T) {
	spec := ModelSpec{Features: []string{"a", "b"}, Window: WindowSpec{Mode: ModeRolling, Size: 252}}
	assert.Equal(t, 1, spec.Lag())
	assert.Equal(t, 252, spec.MinObs())

	spec.Contemporaneous = true
	assert.Equal(t, 0, spec.Lag())

	spec.Window = WindowSpec{Mode: ModeExpanding}
	assert.Equal(t, 4, spec.MinObs())
}

func TestWindowSpecValidate(t *testing.T) {
	tests := []struct {
		name    string
		w       WindowSpec
		wantErr bool
	}{
		{"rolling ok", WindowSpec{Mode: ModeRolling, Size: 252, MinObs: 126}, false},
		{"rolling min exceeds size", WindowSpec{Mode: ModeRolling, Size: 100, MinObs: 126}, true},
		{"rolling zero size", WindowSpec{Mode: ModeRolling}, true},
		{"expanding ok", WindowSpec{Mode: ModeExpanding, MinObs: 30}, false},
		{"unknown", WindowSpec{Mode: "weekly"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.w.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
