package calc

import (
	"fmt"

	"github.com/KyungWonPark/GroupICA/internal/errs"
	"github.com/gonum/matrix/mat64"
)

func detrend(inputMat *mat64.Dense, outputMat *mat64.Dense, index int) {
	row := inputMat.RawRowView(index)
	out := outputMat.RawRowView(index)

	n := len(row)
	tMean := float64(n-1) / 2
	stat := getStat(row)

	var accCov, accVar float64
	for t, value := range row {
		dt := float64(t) - tMean
		accCov += dt * (value - stat.avg)
		accVar += dt * dt
	}

	var slope float64
	if accVar > 0 {
		slope = accCov / accVar
	}

	for t, value := range row {
		out[t] = value - (stat.avg + slope*(float64(t)-tMean))
	}
}

// Detrend removes the least-squares line over time from each row.
// outputMat may be inputMat.
func (p *PipeLine) Detrend(inputMat *mat64.Dense, outputMat *mat64.Dense) error {
	inputRows, inputCols := inputMat.Dims()
	outputRows, outputCols := outputMat.Dims()

	if outputRows != inputRows || outputCols != inputCols {
		return fmt.Errorf("%w: Detrend: input is %d by %d but output is %d by %d", errs.ErrDimensionMismatch, inputRows, inputCols, outputRows, outputCols)
	}

	p.each(inputRows, func(index int) {
		detrend(inputMat, outputMat, index)
	})

	return nil
}
