package register

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
)

// FailureLog is the default name of the list of inputs that failed to
// register.
const FailureLog = "failed_registration.txt"

// Result is the outcome of one subject of a batch.
type Result struct {
	Subject string
	Input   string
	Output  string
	Err     error
	Elapsed time.Duration
}

// OK reports whether the subject registered.
func (r Result) OK() bool {
	return r.Err == nil
}

// Report collects the results of a batch in processing order.
type Report struct {
	Results []Result
}

// Failed returns the results that carry an error.
func (r Report) Failed() []Result {
	var failed []Result
	for _, res := range r.Results {
		if !res.OK() {
			failed = append(failed, res)
		}
	}
	return failed
}

// DefaultOutputDir is registered_<input dir>, next to the input dir.
func DefaultOutputDir(inputDir string) string {
	clean := filepath.Clean(inputDir)
	return filepath.Join(filepath.Dir(clean), "registered_"+filepath.Base(clean))
}

// RegisterBatch registers every *.nii.gz file of inputDir, one subject at a
// time, writing outputs of the same name to outputDir. A failing subject is
// recorded in the report and the batch moves on. The returned error is set
// only when the batch could not run at all or ctx was cancelled.
func (d *Driver) RegisterBatch(ctx context.Context, inputDir, outputDir, template string) (Report, error) {
	var report Report

	inputs, err := filepath.Glob(filepath.Join(inputDir, "*.nii.gz"))
	if err != nil {
		return report, err
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return report, fmt.Errorf("failed to create output directory %s: %w", outputDir, err)
	}

	logger := d.logger()
	for i, input := range inputs {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		info, err := os.Stat(input)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}

		name := filepath.Base(input)
		res := Result{Subject: name, Input: input, Output: filepath.Join(outputDir, name)}
		logger.WithFields(log.Fields{"subject": name, "progress": fmt.Sprintf("%d/%d", i+1, len(inputs))}).Info("Processing")

		start := time.Now()
		res.Err = d.RegisterSubject(ctx, res.Input, res.Output, template)
		res.Elapsed = time.Since(start)

		if res.Err != nil {
			logger.WithField("subject", name).Errorf("Failed to register %s: %v", input, res.Err)
		}
		report.Results = append(report.Results, res)
	}

	return report, nil
}

// WriteFailures overwrites path with the input path of every failed subject,
// one per line. Nothing is written when every subject succeeded.
func WriteFailures(path string, report Report) error {
	failed := report.Failed()
	if len(failed) == 0 {
		return nil
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, res := range failed {
		fmt.Fprintln(w, res.Input)
	}
	return w.Flush()
}
