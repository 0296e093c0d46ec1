package calc

import (
	"fmt"
	"math"

	"github.com/KyungWonPark/GroupICA/internal/errs"
	"github.com/gonum/matrix"
	"github.com/gonum/matrix/mat64"
)

const eps = 2.220446049250313e-16

// Pinv returns the Moore-Penrose pseudo-inverse of a through a thin SVD.
// Singular values at or below max(m, n) * eps * σ₁ are treated as zero, the
// tolerance MATLAB's pinv uses, so rank deficient inputs (e.g. two collinear
// components) stay finite.
func Pinv(a mat64.Matrix) (*mat64.Dense, error) {
	m, n := a.Dims()
	if m == 0 || n == 0 {
		return nil, fmt.Errorf("%w: Pinv: empty %d by %d matrix", errs.ErrShape, m, n)
	}

	// factorize the tall orientation and transpose back
	tall := m >= n
	src := a
	if !tall {
		src = a.T()
	}

	var svd mat64.SVD
	if ok := svd.Factorize(src, matrix.SVDThin); !ok {
		return nil, fmt.Errorf("Pinv: SVD of %d by %d matrix did not converge", m, n)
	}

	s := svd.Values(nil)
	var u, v mat64.Dense
	u.UFromSVD(&svd)
	v.VFromSVD(&svd)

	tol := float64(max(m, n)) * eps * s[0]

	// V * S⁺
	vr, _ := v.Dims()
	for j, sv := range s {
		scale := 0.0
		if sv > tol && !math.IsNaN(sv) {
			scale = 1 / sv
		}
		for i := 0; i < vr; i++ {
			v.Set(i, j, v.At(i, j)*scale)
		}
	}

	var pinv mat64.Dense
	pinv.Mul(&v, u.T())

	if tall {
		return &pinv, nil
	}

	var out mat64.Dense
	out.Clone(pinv.T())
	return &out, nil
}
