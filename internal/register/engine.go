// Package register aligns 4D fMRI series to a template: one transform is
// estimated from the mean volume and applied to every time point.
package register

import "context"

// Transform is the ordered pair of files produced by one estimation. Apply
// composes them warp first, then affine.
type Transform struct {
	Warp   string
	Affine string
}

// Engine estimates and applies nonlinear transforms between 3D volumes on
// disk.
type Engine interface {
	// Estimate registers moving to fixed. Transform files are written with the
	// given path prefix.
	Estimate(ctx context.Context, fixed, moving, prefix string) (Transform, error)
	// Apply warps moving into the space of fixed and writes it to output.
	Apply(ctx context.Context, fixed, moving, output string, tf Transform) error
}
