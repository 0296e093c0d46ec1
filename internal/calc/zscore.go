package calc

import (
	"fmt"

	"github.com/KyungWonPark/GroupICA/internal/errs"
	"github.com/gonum/matrix/mat64"
)

func zScoring(inputMat *mat64.Dense, outputMat *mat64.Dense, index int) {
	row := inputMat.RawRowView(index)
	stat := getStat(row)

	out := outputMat.RawRowView(index)
	for t, value := range row {
		if stat.std == 0 {
			// constant series, same as sklearn's StandardScaler
			out[t] = 0
			continue
		}
		out[t] = (value - stat.avg) / stat.std
	}
}

// ZScoring does z-scoring on each row with the population standard deviation.
// Constant rows become zeros. outputMat may be inputMat.
func (p *PipeLine) ZScoring(inputMat *mat64.Dense, outputMat *mat64.Dense) error {
	inputRows, inputCols := inputMat.Dims()
	outputRows, outputCols := outputMat.Dims()

	if outputRows != inputRows || outputCols != inputCols {
		return fmt.Errorf("%w: ZScoring: input is %d by %d but output is %d by %d", errs.ErrDimensionMismatch, inputRows, inputCols, outputRows, outputCols)
	}

	p.each(inputRows, func(index int) {
		zScoring(inputMat, outputMat, index)
	})

	return nil
}
