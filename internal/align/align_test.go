package align

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/qval/internal/contracts"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func primary(t *testing.T, dates ...string) *contracts.Dataset {
	t.Helper()
	obs := make([]contracts.Observation, len(dates))
	for i, d := range dates {
		obs[i] = contracts.Observation{Date: day(d), AssetReturn: 0.001 * float64(i+1)}
	}
	ds, err := contracts.FromObservations(obs)
	require.NoError(t, err)
	return ds
}

func quarterly() Secondary {
	return Secondary{
		Name: "qval",
		Records: []contracts.FundamentalRecord{
			contracts.NewFundamentalRecord(day("2021-03-31"), 3, map[string]float64{"score_value": 1, "score_quality": 10}),
			contracts.NewFundamentalRecord(day("2021-06-30"), 3, map[string]float64{"score_value": 2, "score_quality": 20}),
			contracts.NewFundamentalRecord(day("2021-09-30"), 3, map[string]float64{"score_value": 3}),
		},
	}
}

func TestJoinBackwardAsOf(t *testing.T) {
	// available: 2021-06-30, 2021-09-30, 2021-12-30
	ds := primary(t, "2021-06-29", "2021-06-30", "2021-07-15", "2021-09-30", "2021-12-29", "2021-12-30", "2022-01-03")

	out, err := Join(ds, quarterly())
	require.NoError(t, err)

	tests := []struct {
		row         int
		wantValue   float64
		wantPresent bool
		wantQuality bool
	}{
		{0, 0, false, false}, // before first availability
		{1, 1, true, true},   // available on the same date
		{2, 1, true, true},
		{3, 2, true, true},
		{4, 2, true, true},
		{5, 3, true, false}, // latest record lacks score_quality
		{6, 3, true, false},
	}

	for _, tt := range tests {
		row := out.Rows[tt.row]
		v, ok := row.Value("score_value")
		assert.Equal(t, tt.wantPresent, ok, "row %d presence", tt.row)
		if tt.wantPresent {
			assert.Equal(t, tt.wantValue, v, "row %d value", tt.row)
			assert.False(t, row.AsOf["qval"].AvailableDate.After(row.Date))
		}
		_, ok = row.Value("score_quality")
		assert.Equal(t, tt.wantQuality, ok, "row %d quality", tt.row)
	}

	// primary fields untouched
	v, ok := out.Rows[0].Value(contracts.FieldAssetReturn)
	assert.True(t, ok)
	assert.Equal(t, 0.001, v)
	require.NoError(t, CheckPointInTime(out))
}

func TestJoinTieBreaksOnLatestPeriodEnd(t *testing.T) {
	ds := primary(t, "2022-04-01")
	sec := Secondary{
		Name: "restated",
		Records: []contracts.FundamentalRecord{
			{PeriodEnd: day("2021-12-31"), AvailableDate: day("2022-03-31"), Fields: map[string]float64{"book": 2}},
			{PeriodEnd: day("2021-09-30"), AvailableDate: day("2022-03-31"), Fields: map[string]float64{"book": 1}},
		},
	}

	out, err := Join(ds, sec)
	require.NoError(t, err)

	v, ok := out.Rows[0].Value("book")
	require.True(t, ok)
	assert.Equal(t, 2.0, v)
	assert.Equal(t, day("2021-12-31"), out.Rows[0].AsOf["restated"].PeriodEnd)
}

func TestJoinIdempotent(t *testing.T) {
	ds := primary(t, "2021-06-29", "2021-07-15", "2021-10-01", "2022-01-03")
	sec := quarterly()

	once, err := Join(ds, sec)
	require.NoError(t, err)
	twice, err := Join(once, sec)
	require.NoError(t, err)

	assert.Equal(t, once, twice)
	assert.Equal(t, once.Fingerprint(), twice.Fingerprint())
}

func TestJoinDoesNotMutateInput(t *testing.T) {
	ds := primary(t, "2021-07-15")
	_, err := Join(ds, quarterly())
	require.NoError(t, err)

	_, ok := ds.Rows[0].Value("score_value")
	assert.False(t, ok)
}

func TestJoinErrors(t *testing.T) {
	tests := []struct {
		name string
		ds   *contracts.Dataset
		secs []Secondary
		want error
	}{
		{
			name: "unordered primary",
			ds: &contracts.Dataset{Rows: []contracts.Row{
				{Date: day("2022-01-04"), Values: map[string]float64{}},
				{Date: day("2022-01-03"), Values: map[string]float64{}},
			}},
			want: ErrUnorderedPrimary,
		},
		{
			name: "record available at period end",
			ds:   primary(t, "2022-01-03"),
			secs: []Secondary{{Name: "bad", Records: []contracts.FundamentalRecord{
				{PeriodEnd: day("2021-12-31"), AvailableDate: day("2021-12-31"), Fields: map[string]float64{"x": 1}},
			}}},
			want: ErrInvalidRecord,
		},
		{
			name: "collision between secondaries",
			ds:   primary(t, "2022-01-03"),
			secs: []Secondary{
				{Name: "a", Records: []contracts.FundamentalRecord{contracts.NewFundamentalRecord(day("2021-06-30"), 3, map[string]float64{"x": 1})}},
				{Name: "b", Records: []contracts.FundamentalRecord{contracts.NewFundamentalRecord(day("2021-06-30"), 3, map[string]float64{"x": 2})}},
			},
			want: ErrFieldCollision,
		},
		{
			name: "shadows primary factor",
			ds: &contracts.Dataset{Rows: []contracts.Row{
				{Date: day("2021-07-01"), Values: map[string]float64{"roe": 0.7}},
				{Date: day("2021-10-01"), Values: map[string]float64{"roe": 0.7}},
			}},
			secs: []Secondary{{Name: "fundamentals", Records: []contracts.FundamentalRecord{
				contracts.NewFundamentalRecord(day("2021-06-30"), 3, map[string]float64{"roe": 0.1}),
			}}},
			want: ErrFieldCollision,
		},
		{
			name: "shadows market field",
			ds:   primary(t, "2022-01-03"),
			secs: []Secondary{{Name: "a", Records: []contracts.FundamentalRecord{
				contracts.NewFundamentalRecord(day("2021-06-30"), 3, map[string]float64{contracts.FieldRiskFree: 1}),
			}}},
			want: ErrFieldCollision,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Join(tt.ds, tt.secs...)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestCheckPointInTime(t *testing.T) {
	ds := primary(t, "2021-07-01")
	ds.Rows[0].Values["score_value"] = 9
	ds.Rows[0].AsOf = map[string]contracts.Stamp{
		"qval": {PeriodEnd: day("2021-06-30"), AvailableDate: day("2021-09-30")},
	}

	err := CheckPointInTime(ds)
	assert.ErrorIs(t, err, ErrPointInTime)
}
