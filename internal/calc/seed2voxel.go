package calc

import (
	"fmt"

	"github.com/gonum/matrix/mat64"
)

// WeightedSeedToVoxel computes the connectivity map of every seed. seeds is
// V by K (or K by V), data is V by T. The result is V by K:
//  ts       = pinv(seeds) · data
//  features = norm(dataᵀ)ᵀ · norm(tsᵀ)
// where norm is NormaliseColumns.
func (p *PipeLine) WeightedSeedToVoxel(seeds, data mat64.Matrix) (*mat64.Dense, error) {
	nVoxels, _ := data.Dims()

	s, err := Orient(seeds, nVoxels)
	if err != nil {
		return nil, fmt.Errorf("seeds: %w", err)
	}

	pinvSeeds, err := Pinv(s)
	if err != nil {
		return nil, err
	}
	var ts mat64.Dense
	ts.Mul(pinvSeeds, data)

	tsNorm := p.NormaliseColumns(ts.T())     // T by K
	dataNorm := p.NormaliseColumns(data.T()) // T by V

	var features mat64.Dense
	features.Mul(dataNorm.T(), tsNorm)
	return &features, nil
}
