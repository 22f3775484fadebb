package marketdata

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/qval/internal/contracts"
)

func date(s string) time.Time {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestReadObservationsCSV(t *testing.T) {
	in := `date,asset_return,market_return,risk_free,signal
2024-01-02,0.01,0.005,0.0001,0.3
2024-01-03,-0.02,-0.01,0.0001,
`
	obs, err := ReadObservationsCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, obs, 2)

	assert.Equal(t, date("2024-01-02"), obs[0].Date)
	assert.InDelta(t, 0.01, obs[0].AssetReturn, 1e-12)
	assert.InDelta(t, 0.3, obs[0].Factors["signal"], 1e-12)

	// empty factor cell is missing, not zero
	_, ok := obs[1].Factors["signal"]
	assert.False(t, ok)
}

func TestReadObservationsCSVErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"missing column", "date,asset_return,risk_free\n2024-01-02,0.01,0\n"},
		{"empty required", "date,asset_return,market_return,risk_free\n2024-01-02,,0.01,0\n"},
		{"bad date", "date,asset_return,market_return,risk_free\n02/01/2024,0.01,0.01,0\n"},
		{"bad factor", "date,asset_return,market_return,risk_free,f\n2024-01-02,0.01,0.01,0,abc\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadObservationsCSV(strings.NewReader(tt.in))
			assert.Error(t, err)
		})
	}
}

func TestObservationsRoundTripThroughCSV(t *testing.T) {
	data := Synthetic(SyntheticConfig{
		Seed: 1, Start: date("2024-01-01"), Days: 15,
		Beta: 0.5, MarketBeta: 1, SignalVol: 0.01, MarketVol: 0.01, Noise: 0.01, RiskFree: 0.0001, LagMonths: 3,
	})

	var buf bytes.Buffer
	require.NoError(t, WriteObservationsCSV(&buf, data.Observations))

	got, err := ReadObservationsCSV(&buf)
	require.NoError(t, err)
	assert.Equal(t, data.Observations, got)
}

func TestReadFundamentalsCSV(t *testing.T) {
	t.Run("derived availability", func(t *testing.T) {
		in := "period_end,score_value\n2023-03-31,1.5\n2023-06-30,\n"
		recs, err := ReadFundamentalsCSV(strings.NewReader(in), 3)
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, date("2023-06-30"), recs[0].AvailableDate)
		assert.Equal(t, date("2023-09-30"), recs[1].AvailableDate)
		assert.Empty(t, recs[1].Fields)
	})

	t.Run("explicit availability", func(t *testing.T) {
		in := "period_end,available_date,score_value\n2023-03-31,2023-05-15,1.5\n"
		recs, err := ReadFundamentalsCSV(strings.NewReader(in), 3)
		require.NoError(t, err)
		assert.Equal(t, date("2023-05-15"), recs[0].AvailableDate)
	})

	t.Run("missing period_end", func(t *testing.T) {
		_, err := ReadFundamentalsCSV(strings.NewReader("date,x\n"), 3)
		assert.ErrorIs(t, err, ErrBadHeader)
	})
}

func TestSyntheticIsDeterministic(t *testing.T) {
	cfg := DefaultSyntheticConfig()
	cfg.Days = 300

	a := Synthetic(cfg)
	b := Synthetic(cfg)
	assert.Equal(t, a, b)
	require.Len(t, a.Observations, 300)

	for i, o := range a.Observations {
		wd := o.Date.Weekday()
		assert.NotEqual(t, time.Saturday, wd)
		assert.NotEqual(t, time.Sunday, wd)
		if i > 0 {
			assert.True(t, o.Date.After(a.Observations[i-1].Date))
		}
	}
	require.NotEmpty(t, a.Fundamentals)
	for _, fr := range a.Fundamentals {
		assert.True(t, fr.AvailableDate.After(fr.PeriodEnd))
	}
}

func TestFromSyntheticIsPointInTime(t *testing.T) {
	cfg := DefaultSyntheticConfig()
	cfg.Days = 400

	ds, err := FromSynthetic(Synthetic(cfg), "fundamentals")
	require.NoError(t, err)
	require.Equal(t, 400, ds.Len())

	// first quarter end + 3 months is published late June; nothing before that.
	for _, row := range ds.Rows {
		_, ok := row.Value("score_value")
		if row.Date.Before(date("2014-06-30")) {
			assert.False(t, ok, row.Date)
		} else {
			assert.True(t, ok, row.Date)
		}
	}

	_, ok := ds.Rows[0].Value(contracts.FieldExcessReturn)
	assert.True(t, ok)
}

func TestLoadCSVMatchesInMemoryAssembly(t *testing.T) {
	cfg := DefaultSyntheticConfig()
	cfg.Days = 260
	data := Synthetic(cfg)

	dir := t.TempDir()
	obsPath := filepath.Join(dir, "observations.csv")
	fundPath := filepath.Join(dir, "fundamentals.csv")

	var obsBuf, fundBuf bytes.Buffer
	require.NoError(t, WriteObservationsCSV(&obsBuf, data.Observations))
	require.NoError(t, WriteFundamentalsCSV(&fundBuf, data.Fundamentals))
	require.NoError(t, os.WriteFile(obsPath, obsBuf.Bytes(), 0o644))
	require.NoError(t, os.WriteFile(fundPath, fundBuf.Bytes(), 0o644))

	loaded, err := LoadCSV(context.Background(), OpenFile, obsPath,
		[]SourceFile{{Name: "fundamentals", Path: fundPath}}, cfg.LagMonths)
	require.NoError(t, err)

	want, err := FromSynthetic(data, "fundamentals")
	require.NoError(t, err)
	assert.Equal(t, want.Fingerprint(), loaded.Fingerprint())

	_, err = LoadCSV(context.Background(), OpenFile, filepath.Join(dir, "missing.csv"), nil, 3)
	assert.Error(t, err)
}
