package timeseries

import (
	"fmt"
	"strings"

	"github.com/KyungWonPark/GroupICA/internal/calc"
	"github.com/KyungWonPark/GroupICA/internal/diag"
	"github.com/KyungWonPark/GroupICA/internal/errs"
	"github.com/gonum/matrix/mat64"
)

// Mode selects the axis z-scoring runs along.
type Mode int

const (
	// ByVoxel standardizes every voxel's series over time.
	ByVoxel Mode = iota
	// ByTimepoint standardizes every time point across voxels, the scaling
	// connTask applies to a voxel by time array.
	ByTimepoint
)

func (m Mode) String() string {
	switch m {
	case ByVoxel:
		return "voxel"
	case ByTimepoint:
		return "timepoint"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode parses "voxel" or "timepoint".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", "voxel":
		return ByVoxel, nil
	case "timepoint":
		return ByTimepoint, nil
	}
	return ByVoxel, fmt.Errorf("unknown standardize mode %q, want voxel or timepoint", s)
}

// Options controls LoadAndNormalize.
type Options struct {
	Trim        []int // time indices to keep, all when empty
	Standardize Mode
	VoxelCount  int // 0 falls back to the larger axis
}

// LoadAndNormalize reads every source, standardizes and detrends it on its own
// and concatenates the results along time. The result is voxels by total time.
func LoadAndNormalize(p *calc.PipeLine, sources []Source, opts Options, c *diag.Collector) (*mat64.Dense, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w: no time series sources", errs.ErrUnsupportedInput)
	}
	if opts.VoxelCount <= 0 {
		c.Warn("OrientationWarning", "voxel count unknown, assuming the larger axis of each source holds voxels")
	}

	var all *mat64.Dense
	for i, src := range sources {
		data, err := prepare(p, src, opts, c)
		if err != nil {
			return nil, fmt.Errorf("source %d: %w", i, err)
		}

		if all == nil {
			all = data
			continue
		}

		allRows, _ := all.Dims()
		rows, _ := data.Dims()
		if rows != allRows {
			return nil, fmt.Errorf("%w: source %d has %d voxels, previous sources %d", errs.ErrDimensionMismatch, i, rows, allRows)
		}

		var joined mat64.Dense
		joined.Augment(all, data)
		all = &joined
	}

	return all, nil
}

// prepare returns one source as standardized, detrended voxels by time.
func prepare(p *calc.PipeLine, src Source, opts Options, c *diag.Collector) (*mat64.Dense, error) {
	raw, err := src.TimeByVoxel(c)
	if err != nil {
		return nil, err
	}

	data, err := calc.Orient(raw, opts.VoxelCount)
	if err != nil {
		return nil, err
	}

	if len(opts.Trim) > 0 {
		if data, err = trim(data, opts.Trim); err != nil {
			return nil, err
		}
	}

	switch opts.Standardize {
	case ByVoxel:
		if err := p.ZScoring(data, data); err != nil {
			return nil, err
		}
	case ByTimepoint:
		data = p.NormaliseColumns(data)
	default:
		return nil, fmt.Errorf("unknown standardize mode %v", opts.Standardize)
	}

	if err := p.Detrend(data, data); err != nil {
		return nil, err
	}
	return data, nil
}

// trim keeps the given time columns in the given order.
func trim(data *mat64.Dense, indices []int) (*mat64.Dense, error) {
	rows, cols := data.Dims()
	for _, idx := range indices {
		if idx < 0 || idx >= cols {
			return nil, fmt.Errorf("%w: trim index %d out of range [0, %d)", errs.ErrDimensionMismatch, idx, cols)
		}
	}

	out := mat64.NewDense(rows, len(indices), nil)
	for r := 0; r < rows; r++ {
		src := data.RawRowView(r)
		dst := out.RawRowView(r)
		for j, idx := range indices {
			dst[j] = src[idx]
		}
	}
	return out, nil
}
