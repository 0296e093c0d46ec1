// Package timeseries loads subject time series and prepares them for
// regression.
package timeseries

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/KyungWonPark/GroupICA/internal/diag"
	"github.com/KyungWonPark/GroupICA/internal/errs"
	"github.com/KyungWonPark/GroupICA/internal/io"
	"github.com/KyungWonPark/GroupICA/internal/mask"
	"github.com/KyungWonPark/GroupICA/internal/nifti"
	"github.com/gonum/matrix/mat64"
)

// Source yields one time by voxel matrix.
type Source interface {
	TimeByVoxel(c *diag.Collector) (*mat64.Dense, error)
}

// Matrix is a time series already in memory. It is used as is.
type Matrix struct {
	Data *mat64.Dense
}

// TimeByVoxel returns the wrapped matrix.
func (m Matrix) TimeByVoxel(c *diag.Collector) (*mat64.Dense, error) {
	if m.Data == nil {
		return nil, fmt.Errorf("%w: nil matrix", errs.ErrUnsupportedInput)
	}
	return m.Data, nil
}

// File is a time series on disk: a .npy or .csv matrix, or a NIfTI image
// flattened through an already conformed Mask.
type File struct {
	Path string
	Mask *nifti.Volume
}

// TimeByVoxel reads the file.
func (f File) TimeByVoxel(c *diag.Collector) (*mat64.Dense, error) {
	switch ext := fileKind(f.Path); ext {
	case ".npy":
		return io.NpytoMat64(f.Path)
	case ".csv":
		return io.CSVtoMat64(f.Path)
	case ".nii", ".nii.gz":
		if f.Mask == nil {
			return nil, fmt.Errorf("%w: %s: image sources need a mask", errs.ErrUnsupportedInput, f.Path)
		}
		img, err := nifti.Load(f.Path, c)
		if err != nil {
			return nil, err
		}
		return mask.ApplyMask(f.Mask, img)
	default:
		return nil, fmt.Errorf("%w: %s: unknown extension %q", errs.ErrUnsupportedInput, f.Path, ext)
	}
}

func fileKind(path string) string {
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, ".nii.gz") {
		return ".nii.gz"
	}
	return filepath.Ext(lower)
}

// Resolve turns a caller supplied handle into sources. Accepted are a path, a
// list of paths, a matrix, a list of matrices, a Source or a list of Sources.
// Paths to images are flattened through the conformed mask.
func Resolve(v interface{}, conformed *nifti.Volume) ([]Source, error) {
	switch in := v.(type) {
	case string:
		return []Source{File{Path: in, Mask: conformed}}, nil
	case []string:
		sources := make([]Source, len(in))
		for i, path := range in {
			sources[i] = File{Path: path, Mask: conformed}
		}
		return sources, nil
	case *mat64.Dense:
		return []Source{Matrix{Data: in}}, nil
	case []*mat64.Dense:
		sources := make([]Source, len(in))
		for i, m := range in {
			sources[i] = Matrix{Data: m}
		}
		return sources, nil
	case Source:
		return []Source{in}, nil
	case []Source:
		return in, nil
	default:
		return nil, fmt.Errorf("%w: %T", errs.ErrUnsupportedInput, v)
	}
}
