package extract

import (
	"time"

	"github.com/montanaflynn/stats"
	log "github.com/sirupsen/logrus"
)

// Result is the outcome of one subject.
type Result struct {
	Subject string
	File    string
	Output  string
	Skipped bool // output already existed
	Err     error
	Elapsed time.Duration
}

// Report collects the results of a run in processing order.
type Report struct {
	RunID   string
	Started time.Time
	Elapsed time.Duration
	Total   int // subjects found in the data dir
	Results []Result
}

// Failed returns the subjects that raised an error.
func (r Report) Failed() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}

// Summary condenses a Report.
type Summary struct {
	Processed     int
	Skipped       int
	Failed        int
	MeanSeconds   float64 // over processed subjects
	MedianSeconds float64
}

// Summarize counts the outcomes and the time spent per processed subject.
func (r Report) Summarize() Summary {
	var s Summary
	var seconds stats.Float64Data
	for _, res := range r.Results {
		switch {
		case res.Err != nil:
			s.Failed++
		case res.Skipped:
			s.Skipped++
		default:
			s.Processed++
			seconds = append(seconds, res.Elapsed.Seconds())
		}
	}

	if len(seconds) > 0 {
		s.MeanSeconds, _ = seconds.Mean()
		s.MedianSeconds, _ = seconds.Median()
	}
	return s
}

// Log writes the summary line of the run.
func (r Report) Log(logger log.FieldLogger) {
	s := r.Summarize()
	entry := logger.WithFields(log.Fields{
		"run":       r.RunID,
		"processed": s.Processed,
		"skipped":   s.Skipped,
		"failed":    s.Failed,
	})
	if s.Processed > 0 {
		entry = entry.WithFields(log.Fields{"mean_s": s.MeanSeconds, "median_s": s.MedianSeconds})
	}

	if s.Failed > 0 {
		entry.Warnf("Finished in %s with %d failed subjects", r.Elapsed, s.Failed)
		return
	}
	entry.Infof("Finished in %s", r.Elapsed)
}
