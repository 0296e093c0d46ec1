// Package mask conforms a brain mask to an image grid and flattens images to
// their foreground voxels.
package mask

import (
	"fmt"
	"sync"

	"github.com/KyungWonPark/GroupICA/internal/errs"
	"github.com/KyungWonPark/GroupICA/internal/nifti"
	"github.com/gonum/matrix/mat64"
)

// Conform resamples reference onto the grid of target with nearest neighbour
// interpolation and binarizes it. Only the first frame of a 4D reference is
// used.
func Conform(reference, target *nifti.Volume) (*nifti.Volume, error) {
	ref := reference
	if reference.Frames() > 1 {
		frame, err := reference.Frame(0)
		if err != nil {
			return nil, err
		}
		ref = frame
	}

	resampled, err := nifti.Resample(ref, target.Affine, target.Dims(), nifti.Nearest)
	if err != nil {
		return nil, fmt.Errorf("mask: %w", err)
	}

	out := resampled.Binarize()
	out.SetDescription(fmt.Sprintf("binary mask, %d foreground voxels", Count(out)))
	return out, nil
}

// BuildMask conforms reference to target and applies it. The masked data is
// time by foreground voxels for a 4D target and a single row for a 3D one.
// The conformed mask is returned so later stages can reload it instead of
// resampling again.
func BuildMask(reference, target *nifti.Volume) (*mat64.Dense, *nifti.Volume, error) {
	conformed, err := Conform(reference, target)
	if err != nil {
		return nil, nil, err
	}

	masked, err := ApplyMask(conformed, target)
	if err != nil {
		return nil, nil, err
	}

	return masked, conformed, nil
}

// ApplyMask flattens image to the foreground voxels of an already conformed
// mask. Row t holds frame t, columns follow Indices.
func ApplyMask(mask, image *nifti.Volume) (*mat64.Dense, error) {
	if mask.Frames() != 1 {
		return nil, fmt.Errorf("%w: mask has %d frames", errs.ErrDimensionMismatch, mask.Frames())
	}
	if !mask.SameGrid(image) {
		return nil, fmt.Errorf("%w: mask grid %v does not match image grid %v", errs.ErrDimensionMismatch, mask.Dims(), image.Dims())
	}

	indices := Indices(mask)
	if len(indices) == 0 {
		return nil, fmt.Errorf("%w: mask has no foreground voxels", errs.ErrDimensionMismatch)
	}

	frames := image.Frames()
	n := image.VoxelsPerFrame()
	out := mat64.NewDense(frames, len(indices), nil)

	var wg sync.WaitGroup
	for t := 0; t < frames; t++ {
		wg.Add(1)
		go func(t int) {
			defer wg.Done()

			frame := image.Data[t*n : (t+1)*n]
			row := out.RawRowView(t)
			for col, idx := range indices {
				row[col] = frame[idx]
			}
		}(t)
	}
	wg.Wait()

	return out, nil
}

// Indices returns the offsets into a frame of every voxel with a non-zero mask
// value, enumerated x outermost and z innermost (NumPy C order).
func Indices(mask *nifti.Volume) []int {
	dims := mask.Dims()

	var indices []int
	for x := 0; x < dims[0]; x++ {
		for y := 0; y < dims[1]; y++ {
			for z := 0; z < dims[2]; z++ {
				idx := mask.Index(x, y, z, 0)
				if mask.Data[idx] != 0 {
					indices = append(indices, idx)
				}
			}
		}
	}
	return indices
}

// Count returns the number of foreground voxels.
func Count(mask *nifti.Volume) int {
	var cnt int
	for _, v := range mask.Data[:mask.VoxelsPerFrame()] {
		if v != 0 {
			cnt++
		}
	}
	return cnt
}
