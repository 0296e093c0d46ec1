// Package errs holds the error kinds shared by the pipeline packages.
// Callers wrap them with fmt.Errorf("%w: ...") and match with errors.Is.
package errs

import "errors"

var (
	// ErrGeometryMismatch means two grids could not be aligned by resampling.
	ErrGeometryMismatch = errors.New("geometry mismatch")
	// ErrDimensionMismatch means an image, mask or matrix does not share the expected grid or shape.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrUnsupportedInput means a caller handed over a data representation we cannot read.
	ErrUnsupportedInput = errors.New("unsupported input type")
	// ErrShape means the matrices of a regression do not agree on the voxel axis.
	ErrShape = errors.New("shape error")
	// ErrRegistration means transform estimation or application failed.
	ErrRegistration = errors.New("registration failure")
	// ErrMissingResource means a mask or group map needed at startup is absent or unreadable.
	ErrMissingResource = errors.New("missing resource")
	// ErrAborted means the user declined to continue.
	ErrAborted = errors.New("aborted")
)
