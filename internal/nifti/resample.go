package nifti

import (
	"fmt"
	"math"

	"github.com/KyungWonPark/GroupICA/internal/errs"
)

// Interpolation selects how Resample reads between source voxels.
type Interpolation int

const (
	// Nearest keeps discrete labels intact.
	Nearest Interpolation = iota
	// Linear is trilinear interpolation.
	Linear
)

func (i Interpolation) String() string {
	switch i {
	case Nearest:
		return "nearest"
	case Linear:
		return "linear"
	}
	return fmt.Sprintf("Interpolation(%d)", int(i))
}

// Resample maps src onto the grid described by affine and shape. Every frame
// of a 4D source is resampled; points falling outside the source grid are 0.
func Resample(src *Volume, affine Affine, shape [3]int, interp Interpolation) (*Volume, error) {
	for i, n := range shape {
		if n < 1 {
			return nil, fmt.Errorf("%w: target shape[%d] = %d", errs.ErrGeometryMismatch, i, n)
		}
	}
	if !affine.finite() {
		return nil, fmt.Errorf("%w: target affine has non-finite entries", errs.ErrGeometryMismatch)
	}

	srcInv, err := src.Affine.Inverse()
	if err != nil {
		return nil, err
	}
	// target voxel -> world -> source voxel
	vox2vox := srcInv.Mul(affine)

	out := New(shape[0], shape[1], shape[2], src.Frames(), affine)
	out.DataType = src.DataType
	if interp == Linear && out.DataType != DTFloat64 {
		out.DataType = DTFloat32
	}
	out.Header = src.Header

	for z := 0; z < shape[2]; z++ {
		for y := 0; y < shape[1]; y++ {
			for x := 0; x < shape[0]; x++ {
				i, j, k := vox2vox.Apply(float64(x), float64(y), float64(z))
				for t := 0; t < src.Frames(); t++ {
					var val float64
					switch interp {
					case Nearest:
						val = src.nearest(i, j, k, t)
					case Linear:
						val = src.trilinear(i, j, k, t)
					default:
						return nil, fmt.Errorf("nifti: unknown interpolation %v", interp)
					}
					out.Set(x, y, z, t, val)
				}
			}
		}
	}

	return out, nil
}

func (v *Volume) inside(x, y, z int) bool {
	return x >= 0 && y >= 0 && z >= 0 && x < v.Shape[0] && y < v.Shape[1] && z < v.Shape[2]
}

func (v *Volume) nearest(i, j, k float64, t int) float64 {
	x, y, z := roundHalfEven(i), roundHalfEven(j), roundHalfEven(k)
	if !v.inside(x, y, z) {
		return 0
	}
	return v.At(x, y, z, t)
}

func (v *Volume) trilinear(i, j, k float64, t int) float64 {
	x0, y0, z0 := int(math.Floor(i)), int(math.Floor(j)), int(math.Floor(k))
	fx, fy, fz := i-float64(x0), j-float64(y0), k-float64(z0)

	var acc float64
	for dz := 0; dz < 2; dz++ {
		wz := 1 - fz
		if dz == 1 {
			wz = fz
		}
		for dy := 0; dy < 2; dy++ {
			wy := 1 - fy
			if dy == 1 {
				wy = fy
			}
			for dx := 0; dx < 2; dx++ {
				wx := 1 - fx
				if dx == 1 {
					wx = fx
				}
				w := wx * wy * wz
				if w == 0 {
					continue
				}
				x, y, z := x0+dx, y0+dy, z0+dz
				if !v.inside(x, y, z) {
					continue
				}
				acc += w * v.At(x, y, z, t)
			}
		}
	}
	return acc
}

// roundHalfEven matches numpy rounding so voxel centres exactly between two
// source voxels pick the same neighbour as the reference pipeline.
func roundHalfEven(f float64) int {
	return int(math.RoundToEven(f))
}
