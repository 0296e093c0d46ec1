package nifti

import (
	"fmt"
	"math"

	"github.com/KyungWonPark/GroupICA/internal/diag"
	"github.com/KyungWonPark/GroupICA/internal/errs"
	"github.com/gonum/matrix/mat64"
)

// Affine maps voxel indices (i, j, k, 1) to world coordinates (x, y, z, 1).
type Affine [4][4]float64

// Identity returns the identity affine
func Identity() Affine {
	return Affine{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
		{0, 0, 0, 1},
	}
}

// Scaling returns a diagonal affine with the given voxel sizes.
func Scaling(dx, dy, dz float64) Affine {
	a := Identity()
	a[0][0], a[1][1], a[2][2] = dx, dy, dz
	return a
}

// Apply maps (i, j, k) through the affine.
func (a Affine) Apply(i, j, k float64) (float64, float64, float64) {
	x := a[0][0]*i + a[0][1]*j + a[0][2]*k + a[0][3]
	y := a[1][0]*i + a[1][1]*j + a[1][2]*k + a[1][3]
	z := a[2][0]*i + a[2][1]*j + a[2][2]*k + a[2][3]
	return x, y, z
}

// Mul returns a·b.
func (a Affine) Mul(b Affine) Affine {
	var out Affine
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			var acc float64
			for k := 0; k < 4; k++ {
				acc += a[i][k] * b[k][j]
			}
			out[i][j] = acc
		}
	}
	return out
}

// Inverse returns the inverse affine, ErrGeometryMismatch when it is singular or not finite.
func (a Affine) Inverse() (Affine, error) {
	if !a.finite() {
		return Affine{}, fmt.Errorf("%w: affine has non-finite entries", errs.ErrGeometryMismatch)
	}

	data := make([]float64, 0, 16)
	for i := 0; i < 4; i++ {
		data = append(data, a[i][:]...)
	}

	var inv mat64.Dense
	if err := inv.Inverse(mat64.NewDense(4, 4, data)); err != nil {
		return Affine{}, fmt.Errorf("%w: affine is not invertible: %v", errs.ErrGeometryMismatch, err)
	}

	var out Affine
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			out[i][j] = inv.At(i, j)
		}
	}
	return out, nil
}

// EqualApprox reports whether every entry differs by at most tol.
func (a Affine) EqualApprox(b Affine, tol float64) bool {
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			if math.Abs(a[i][j]-b[i][j]) > tol {
				return false
			}
		}
	}
	return true
}

// Zooms returns the voxel sizes, the norms of the first three columns.
func (a Affine) Zooms() [3]float64 {
	var z [3]float64
	for j := 0; j < 3; j++ {
		z[j] = math.Sqrt(a[0][j]*a[0][j] + a[1][j]*a[1][j] + a[2][j]*a[2][j])
	}
	return z
}

func (a Affine) finite() bool {
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			if math.IsNaN(a[i][j]) || math.IsInf(a[i][j], 0) {
				return false
			}
		}
	}
	return true
}

// affineFromHeader picks sform, then qform, then a pixdim scaling, the same
// preference order nibabel uses.
func affineFromHeader(h Header, c *diag.Collector) Affine {
	if h.SformCode > 0 {
		return Affine{
			{float64(h.SrowX[0]), float64(h.SrowX[1]), float64(h.SrowX[2]), float64(h.SrowX[3])},
			{float64(h.SrowY[0]), float64(h.SrowY[1]), float64(h.SrowY[2]), float64(h.SrowY[3])},
			{float64(h.SrowZ[0]), float64(h.SrowZ[1]), float64(h.SrowZ[2]), float64(h.SrowZ[3])},
			{0, 0, 0, 1},
		}
	}

	if h.QformCode > 0 {
		return qformAffine(h, c)
	}

	c.Warn("NiftiWarning", "neither sform nor qform set, using pixdim scaling as affine")
	return Scaling(pixdimOrOne(h.Pixdim[1]), pixdimOrOne(h.Pixdim[2]), pixdimOrOne(h.Pixdim[3]))
}

func qformAffine(h Header, c *diag.Collector) Affine {
	b := float64(h.QuaternB)
	cq := float64(h.QuaternC)
	d := float64(h.QuaternD)

	a := 1.0 - (b*b + cq*cq + d*d)
	if a < 1e-7 {
		// a is effectively zero, renormalise (b, c, d)
		n := math.Sqrt(b*b + cq*cq + d*d)
		if n > 0 {
			b, cq, d = b/n, cq/n, d/n
		}
		a = 0
	} else {
		a = math.Sqrt(a)
	}

	qfac := float64(h.Pixdim[0])
	if qfac != -1 && qfac != 1 {
		c.Warn("NiftiWarning", "invalid qfac %g in pixdim[0], assuming 1", qfac)
		qfac = 1
	}

	dx := pixdimOrOne(h.Pixdim[1])
	dy := pixdimOrOne(h.Pixdim[2])
	dz := pixdimOrOne(h.Pixdim[3]) * qfac

	r := [3][3]float64{
		{a*a + b*b - cq*cq - d*d, 2 * (b*cq - a*d), 2 * (b*d + a*cq)},
		{2 * (b*cq + a*d), a*a + cq*cq - b*b - d*d, 2 * (cq*d - a*b)},
		{2 * (b*d - a*cq), 2 * (cq*d + a*b), a*a + d*d - cq*cq - b*b},
	}

	return Affine{
		{r[0][0] * dx, r[0][1] * dy, r[0][2] * dz, float64(h.QoffsetX)},
		{r[1][0] * dx, r[1][1] * dy, r[1][2] * dz, float64(h.QoffsetY)},
		{r[2][0] * dx, r[2][1] * dy, r[2][2] * dz, float64(h.QoffsetZ)},
		{0, 0, 0, 1},
	}
}

func pixdimOrOne(v float32) float64 {
	if v <= 0 {
		return 1
	}
	return float64(v)
}
