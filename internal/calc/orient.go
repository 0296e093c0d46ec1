package calc

import (
	"fmt"

	"github.com/KyungWonPark/GroupICA/internal/errs"
	"github.com/gonum/matrix/mat64"
)

// Orient returns m laid out with voxels along the rows. Exactly one axis must
// equal nVoxels; a square matrix is taken as already oriented. When nVoxels is
// 0 the voxel count is unknown and the larger axis is assumed to be voxels,
// which silently mis-orients data with fewer voxels than time points.
func Orient(m mat64.Matrix, nVoxels int) (*mat64.Dense, error) {
	rows, cols := m.Dims()

	transpose := false
	switch {
	case nVoxels <= 0:
		transpose = rows < cols
	case rows == nVoxels:
	case cols == nVoxels:
		transpose = true
	default:
		return nil, fmt.Errorf("%w: %d by %d matrix has no axis of %d voxels", errs.ErrShape, rows, cols, nVoxels)
	}

	var out mat64.Dense
	if transpose {
		out.Clone(m.T())
	} else {
		out.Clone(m)
	}
	return &out, nil
}

// VoxelAxis returns the voxel count implied by the legacy rule, the larger axis.
func VoxelAxis(m mat64.Matrix) int {
	rows, cols := m.Dims()
	return max(rows, cols)
}
