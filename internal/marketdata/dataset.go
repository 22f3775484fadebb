package marketdata

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/wonny/qval/internal/align"
	"github.com/wonny/qval/internal/contracts"
)

// SourceFile is one named fundamentals CSV.
type SourceFile struct {
	Name string
	Path string
}

// Assemble builds the aligned dataset: primary rows, as-of joined secondaries,
// then the point-in-time check.
func Assemble(obs []contracts.Observation, secondaries ...align.Secondary) (*contracts.Dataset, error) {
	ds, err := contracts.FromObservations(obs)
	if err != nil {
		return nil, err
	}
	joined, err := align.Join(ds, secondaries...)
	if err != nil {
		return nil, err
	}
	if err := align.CheckPointInTime(joined); err != nil {
		return nil, err
	}
	return joined, nil
}

// Opener returns a reader for a data path. httputil.Client.Open fetches
// remote paths; OpenFile only reads the local filesystem.
type Opener func(ctx context.Context, path string) (io.ReadCloser, error)

// OpenFile opens a local file.
func OpenFile(_ context.Context, path string) (io.ReadCloser, error) {
	return os.Open(path)
}

// LoadCSV reads an observations file and any fundamentals files, then assembles them.
func LoadCSV(ctx context.Context, open Opener, observationsPath string, sources []SourceFile, lagMonths int) (*contracts.Dataset, error) {
	f, err := open(ctx, observationsPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	obs, err := ReadObservationsCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", observationsPath, err)
	}

	secondaries := make([]align.Secondary, 0, len(sources))
	for _, src := range sources {
		records, err := readFundamentalsFile(ctx, open, src.Path, lagMonths)
		if err != nil {
			return nil, err
		}
		secondaries = append(secondaries, align.Secondary{Name: src.Name, Records: records})
	}
	return Assemble(obs, secondaries...)
}

func readFundamentalsFile(ctx context.Context, open Opener, path string, lagMonths int) ([]contracts.FundamentalRecord, error) {
	f, err := open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := ReadFundamentalsCSV(f, lagMonths)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

// LoadDataset reads a symbol and the named fundamentals sources from PostgreSQL.
func (r *Repository) LoadDataset(ctx context.Context, symbol string, sources []string, from, to time.Time) (*contracts.Dataset, error) {
	obs, err := r.LoadObservations(ctx, symbol, from, to)
	if err != nil {
		return nil, err
	}
	if len(obs) == 0 {
		return nil, fmt.Errorf("no observations for %s", symbol)
	}

	secondaries := make([]align.Secondary, 0, len(sources))
	for _, src := range sources {
		records, err := r.LoadFundamentals(ctx, symbol, src)
		if err != nil {
			return nil, err
		}
		secondaries = append(secondaries, align.Secondary{Name: src, Records: records})
	}
	return Assemble(obs, secondaries...)
}

// FromSynthetic assembles generated data with its fundamentals under the given source name.
func FromSynthetic(data SyntheticData, source string) (*contracts.Dataset, error) {
	return Assemble(data.Observations, align.Secondary{Name: source, Records: data.Fundamentals})
}
