package calc

import (
	"github.com/gonum/matrix/mat64"
)

// NormaliseColumns centres every column and divides it by its population
// standard deviation (divisor N, not N-1), the normalisation the MATLAB
// reference pipeline applies before the seed-to-voxel product. Constant
// columns become zeros.
func (p *PipeLine) NormaliseColumns(inputMat mat64.Matrix) *mat64.Dense {
	var transposed mat64.Dense
	transposed.Clone(inputMat.T())

	rows, _ := transposed.Dims()
	p.each(rows, func(index int) {
		zScoring(&transposed, &transposed, index)
	})

	var out mat64.Dense
	out.Clone(transposed.T())
	return &out
}
