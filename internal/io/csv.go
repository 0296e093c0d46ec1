package io

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/gonum/matrix/mat64"
)

// Mat64toCSV saves Mat64 as a csv file. Rows are formatted in parallel,
// runtime.NumCPU() at a time, and written in order.
func Mat64toCSV(path string, matrix *mat64.Dense) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("[Mat64toCSV] Failed to open: %s: %w", path, err)
	}
	w := bufio.NewWriter(f)

	rows, _ := matrix.Dims()

	stride := runtime.NumCPU()
	parsed := make([]string, stride)

	for row := 0; row < rows; row += stride {
		var wg sync.WaitGroup
		jobMark := stride

		if row+stride >= rows {
			jobMark = rows - row
		}

		wg.Add(jobMark)
		for offset := 0; offset < jobMark; offset++ {
			go formatLine(matrix, parsed, offset, row, &wg)
		}
		wg.Wait()

		for i := 0; i < jobMark; i++ {
			if _, err := fmt.Fprintf(w, "%s\n", parsed[i]); err != nil {
				f.Close()
				return fmt.Errorf("[Mat64toCSV] Failed to write: %s: %w", path, err)
			}
		}
	}

	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("[Mat64toCSV] Failed to write: %s: %w", path, err)
	}
	return f.Close()
}

func formatLine(matrix *mat64.Dense, parsed []string, offset int, row int, wg *sync.WaitGroup) {
	defer wg.Done()

	_, cols := matrix.Dims()

	nums := make([]string, cols)
	for i := 0; i < cols; i++ {
		nums[i] = strconv.FormatFloat(matrix.At(row+offset, i), 'g', -1, 64)
	}

	parsed[offset] = strings.Join(nums, ", ")
}

// CSVtoMat64 reads a csv file written by Mat64toCSV. Rows are parsed by
// runtime.NumCPU() workers.
func CSVtoMat64(path string) (*mat64.Dense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("[CSVtoMat64] Failed to open file: %w", err)
	}
	defer f.Close()

	csvReader := csv.NewReader(f)
	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("[CSVtoMat64] Failed to parse CSV file: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("[CSVtoMat64] %s: empty file", path)
	}

	rows, cols := len(records), len(records[0])
	matrix := mat64.NewDense(rows, cols, nil)

	workers := runtime.NumCPU()
	order := make(chan int, workers)
	errc := make(chan error, rows)
	var wg sync.WaitGroup

	wg.Add(rows)

	for i := 0; i < workers; i++ {
		go parseLine(records, matrix, order, errc, &wg)
	}

	for i := 0; i < rows; i++ {
		order <- i
	}

	wg.Wait()
	close(order)
	close(errc)

	if err := <-errc; err != nil {
		return nil, fmt.Errorf("[CSVtoMat64] %s: %w", path, err)
	}
	return matrix, nil
}

func parseLine(records [][]string, matrix *mat64.Dense, order <-chan int, errc chan<- error, wg *sync.WaitGroup) {
	_, cols := matrix.Dims()

	for {
		index, ok := <-order
		if ok {
			for i := 0; i < cols; i++ {
				str := strings.TrimSpace(records[index][i])
				value, err := strconv.ParseFloat(str, 64)
				if err != nil {
					errc <- fmt.Errorf("row %d: %w", index, err)
					break
				}

				matrix.Set(index, i, value)
			}

			wg.Done()
		} else {
			break
		}
	}
	return
}
