package calc

import (
	"fmt"

	"github.com/gonum/matrix/mat64"
)

// DualRegressionResult holds both stages of a dual regression.
type DualRegressionResult struct {
	TimeCourses *mat64.Dense // K by T, stage 1
	Maps        *mat64.Dense // V by K, stage 2
}

// DualRegression recovers subject specific component time courses and spatial
// maps from group components.
//
// data and components may come in either orientation; nVoxels decides which
// axis holds voxels. With nVoxels == 0 the voxel count is taken from the larger
// axis of components and data is oriented to match it. data without an axis of
// that length fails with errs.ErrShape.
//
// Stage 1 projects the data on the pseudo-inverse of the components,
//  TC = pinv(C) · D
// stage 2 regresses every voxel on all time courses jointly,
//  M = (pinv(TCᵀ) · Dᵀ)ᵀ
func DualRegression(data, components mat64.Matrix, nVoxels int) (*DualRegressionResult, error) {
	if nVoxels <= 0 {
		nVoxels = VoxelAxis(components)
	}

	comps, err := Orient(components, nVoxels)
	if err != nil {
		return nil, fmt.Errorf("group components: %w", err)
	}
	d, err := Orient(data, nVoxels)
	if err != nil {
		return nil, fmt.Errorf("data: %w", err)
	}

	// step 1: subject specific time series for each component
	pinvComp, err := Pinv(comps)
	if err != nil {
		return nil, err
	}
	var ts mat64.Dense
	ts.Mul(pinvComp, d)

	// step 2: subject specific spatial pattern for each component
	pinvTS, err := Pinv(ts.T())
	if err != nil {
		return nil, err
	}
	var maps mat64.Dense
	maps.Mul(pinvTS, d.T())

	var mapsT mat64.Dense
	mapsT.Clone(maps.T())

	return &DualRegressionResult{TimeCourses: &ts, Maps: &mapsT}, nil
}
