package io

import (
	"fmt"

	"github.com/gonum/matrix/mat64"
	"github.com/kshedden/gonpy"
)

// Mat64toNpy writes mat64 matrix to Python numpy npy binary file
func Mat64toNpy(path string, matrix *mat64.Dense) error {
	rows, cols := matrix.Dims()

	// RawMatrix may carry a stride wider than cols for views
	data := make([]float64, 0, rows*cols)
	for i := 0; i < rows; i++ {
		data = append(data, matrix.RawRowView(i)...)
	}

	w, err := gonpy.NewFileWriter(path)
	if err != nil {
		return fmt.Errorf("[Mat64toNpy] Failed to open file: %w", err)
	}
	w.Shape = []int{rows, cols}
	w.Version = 2
	if err := w.WriteFloat64(data); err != nil {
		return fmt.Errorf("[Mat64toNpy] Failed to write file: %w", err)
	}

	return nil
}

// NpytoMat64 reads Python numpy npy binary file as mat64 matrix. One dimensional
// arrays come back as a single row.
func NpytoMat64(path string) (*mat64.Dense, error) {
	r, err := gonpy.NewFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("[NpytoMat64] Failed to open file: %w", err)
	}

	var rows, cols int
	switch len(r.Shape) {
	case 1:
		rows, cols = 1, r.Shape[0]
	case 2:
		rows, cols = r.Shape[0], r.Shape[1]
	default:
		return nil, fmt.Errorf("[NpytoMat64] %s: expected a 1 or 2 dimensional array, got shape %v", path, r.Shape)
	}

	data, err := r.GetFloat64()
	if err != nil {
		return nil, fmt.Errorf("[NpytoMat64] Failed to read file: %w", err)
	}
	if len(data) != rows*cols {
		return nil, fmt.Errorf("[NpytoMat64] %s: %d values for shape %v", path, len(data), r.Shape)
	}

	return mat64.NewDense(rows, cols, data), nil
}
