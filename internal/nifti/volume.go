package nifti

import (
	"bytes"
	"fmt"
	"math"

	"github.com/KyungWonPark/GroupICA/internal/errs"
)

// Volume is a 3D or 4D image on a voxel grid. Data is stored x fastest, then
// y, z and t, the same order as on disk.
type Volume struct {
	Shape    [4]int // nx, ny, nz, nt; nt is 1 for 3D images
	Affine   Affine
	Data     []float64
	DataType int16  // datatype written by Save, float32 when zero
	Header   Header // header the volume was read from, zero for new volumes
}

// New returns a zero filled volume. A non-positive nt gives a 3D volume.
func New(nx, ny, nz, nt int, affine Affine) *Volume {
	if nt < 1 {
		nt = 1
	}
	return &Volume{
		Shape:  [4]int{nx, ny, nz, nt},
		Affine: affine,
		Data:   make([]float64, nx*ny*nz*nt),
	}
}

// Dims returns the spatial shape.
func (v *Volume) Dims() [3]int {
	return [3]int{v.Shape[0], v.Shape[1], v.Shape[2]}
}

// Frames returns the number of time points.
func (v *Volume) Frames() int {
	return v.Shape[3]
}

// VoxelsPerFrame returns nx*ny*nz.
func (v *Volume) VoxelsPerFrame() int {
	return v.Shape[0] * v.Shape[1] * v.Shape[2]
}

// Index returns the offset of (x, y, z, t) in Data.
func (v *Volume) Index(x, y, z, t int) int {
	return x + v.Shape[0]*(y+v.Shape[1]*(z+v.Shape[2]*t))
}

// At returns the value at (x, y, z, t).
func (v *Volume) At(x, y, z, t int) float64 {
	return v.Data[v.Index(x, y, z, t)]
}

// Set stores val at (x, y, z, t).
func (v *Volume) Set(x, y, z, t int, val float64) {
	v.Data[v.Index(x, y, z, t)] = val
}

// Frame returns a copy of time point t as a 3D volume.
func (v *Volume) Frame(t int) (*Volume, error) {
	if t < 0 || t >= v.Frames() {
		return nil, fmt.Errorf("%w: frame %d out of range [0, %d)", errs.ErrDimensionMismatch, t, v.Frames())
	}

	n := v.VoxelsPerFrame()
	out := New(v.Shape[0], v.Shape[1], v.Shape[2], 1, v.Affine)
	out.DataType = v.DataType
	out.Header = v.Header
	copy(out.Data, v.Data[t*n:(t+1)*n])
	return out, nil
}

// Mean returns the temporal mean as a 3D volume.
func (v *Volume) Mean() *Volume {
	n := v.VoxelsPerFrame()
	frames := v.Frames()

	out := New(v.Shape[0], v.Shape[1], v.Shape[2], 1, v.Affine)
	out.Header = v.Header
	for t := 0; t < frames; t++ {
		frame := v.Data[t*n : (t+1)*n]
		for i, val := range frame {
			out.Data[i] += val
		}
	}
	for i := range out.Data {
		out.Data[i] /= float64(frames)
	}
	return out
}

// SameGrid reports whether both volumes share spatial shape and affine.
func (v *Volume) SameGrid(o *Volume) bool {
	return v.Dims() == o.Dims() && v.Affine.EqualApprox(o.Affine, 1e-4)
}

// Stack concatenates 3D volumes along time. All frames must share a grid;
// the result carries the given affine.
func Stack(frames []*Volume, affine Affine) (*Volume, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("%w: nothing to stack", errs.ErrDimensionMismatch)
	}

	dims := frames[0].Dims()
	n := frames[0].VoxelsPerFrame()
	out := New(dims[0], dims[1], dims[2], len(frames), affine)
	out.Header = frames[0].Header

	for t, frame := range frames {
		if frame.Dims() != dims || frame.Frames() != 1 {
			return nil, fmt.Errorf("%w: frame %d has shape %v, expected %v", errs.ErrDimensionMismatch, t, frame.Shape, dims)
		}
		copy(out.Data[t*n:(t+1)*n], frame.Data)
	}
	return out, nil
}

// Binarize returns a copy with values > 0 set to 1 and everything else to 0.
func (v *Volume) Binarize() *Volume {
	out := &Volume{
		Shape:    v.Shape,
		Affine:   v.Affine,
		Data:     make([]float64, len(v.Data)),
		DataType: DTUint8,
		Header:   v.Header,
	}
	for i, val := range v.Data {
		if val > 0 {
			out.Data[i] = 1
		}
	}
	return out
}

// Description returns the descrip field of the header.
func (v *Volume) Description() string {
	b := v.Header.Descrip[:]
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// SetDescription stores s in the descrip field, truncated to 79 characters.
func (v *Volume) SetDescription(s string) {
	v.Header.Descrip = [80]byte{}
	copy(v.Header.Descrip[:len(v.Header.Descrip)-1], s)
}

func (v *Volume) validate() error {
	for i, n := range v.Shape {
		if n < 1 {
			return fmt.Errorf("%w: shape[%d] = %d", errs.ErrDimensionMismatch, i, n)
		}
		if n > math.MaxInt16 {
			return fmt.Errorf("%w: shape[%d] = %d does not fit a NIfTI-1 header", errs.ErrDimensionMismatch, i, n)
		}
	}
	if len(v.Data) != v.Shape[0]*v.Shape[1]*v.Shape[2]*v.Shape[3] {
		return fmt.Errorf("%w: %d values for shape %v", errs.ErrDimensionMismatch, len(v.Data), v.Shape)
	}
	return nil
}
