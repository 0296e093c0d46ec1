package calc

import (
	"math"
	"runtime"
	"sync"

	"github.com/gonum/floats"
)

// PipeLine represents a compute pipeline: a fixed number of workers that
// row-parallel kernels fan out to.
type PipeLine struct {
	numPoper int
}

// Init returns a compute PipeLine with numWorkers workers, runtime.NumCPU()
// when numWorkers < 1.
func Init(numWorkers int) *PipeLine {
	if numWorkers < 1 {
		numWorkers = runtime.NumCPU()
	}

	return &PipeLine{numPoper: numWorkers}
}

// GetNP returns the number of workers
func (p *PipeLine) GetNP() int {
	return p.numPoper
}

// each calls fn(i) for i in [0, n) on the pipeline workers and waits for all of them.
func (p *PipeLine) each(n int, fn func(index int)) {
	if n == 0 {
		return
	}

	order := make(chan int, p.numPoper)
	var wg sync.WaitGroup

	wg.Add(n)

	for i := 0; i < p.numPoper; i++ {
		go func() {
			for {
				index, ok := <-order
				if ok {
					fn(index)
					wg.Done()
				} else {
					break
				}
			}
		}()
	}

	for i := 0; i < n; i++ {
		order <- i
	}

	wg.Wait()
	close(order)
}

type statistic struct {
	avg float64
	std float64
}

// getStat returns mean and population standard deviation (divisor N) of row.
func getStat(row []float64) statistic {
	n := float64(len(row))
	avgVal := floats.Sum(row) / n

	var accSqrDev float64
	for _, value := range row {
		dev := value - avgVal
		accSqrDev += dev * dev
	}

	return statistic{avg: avgVal, std: math.Sqrt(accSqrDev / n)}
}
