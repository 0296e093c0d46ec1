package calc

import (
	"fmt"

	"github.com/KyungWonPark/GroupICA/internal/errs"
	"github.com/gonum/matrix/mat64"
)

func pearson(timeSeriesMat *mat64.Dense, pearsonMat *mat64.Dense, stats []statistic, from int) {
	inputRows, inputCols := timeSeriesMat.Dims()
	fromRow := timeSeriesMat.RawRowView(from)

	for to := from; to < inputRows; to++ {
		toRow := timeSeriesMat.RawRowView(to)

		var accProd float64
		for t := 0; t < inputCols; t++ {
			accProd += (fromRow[t] - stats[from].avg) * (toRow[t] - stats[to].avg)
		}

		var r float64
		if denom := stats[from].std * stats[to].std; denom > 0 {
			cov := accProd / float64(inputCols)
			r = cov / denom
		}

		pearsonMat.Set(from, to, r)
		pearsonMat.Set(to, from, r)
	}
}

// Pearson does Pearson's correlation calculation between every pair of rows.
// Pairs involving a constant row are 0.
func (p *PipeLine) Pearson(timeSeriesMat *mat64.Dense, outputMat *mat64.Dense) error {
	inputRows, inputCols := timeSeriesMat.Dims()
	outputRows, outputCols := outputMat.Dims()

	{ // Check input matrix and output matrix dimensions
		if outputRows != inputRows || outputCols != inputRows {
			return fmt.Errorf("%w: Pearson: input is %d by %d but output is %d by %d", errs.ErrDimensionMismatch, inputRows, inputCols, outputRows, outputCols)
		}
	}

	stats := make([]statistic, inputRows)

	{ // Get statistics for each time series
		p.each(inputRows, func(index int) {
			stats[index] = getStat(timeSeriesMat.RawRowView(index))
		})
	}

	{ // Calculate Pearson's correlation
		p.each(inputRows, func(from int) {
			pearson(timeSeriesMat, outputMat, stats, from)
		})
	}

	return nil
}
