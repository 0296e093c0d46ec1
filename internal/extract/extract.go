// Package extract runs dual regression and seed-to-voxel connectivity over a
// directory of resting state subjects.
package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/KyungWonPark/GroupICA/internal/calc"
	"github.com/KyungWonPark/GroupICA/internal/diag"
	"github.com/KyungWonPark/GroupICA/internal/errs"
	"github.com/KyungWonPark/GroupICA/internal/io"
	"github.com/KyungWonPark/GroupICA/internal/mask"
	"github.com/KyungWonPark/GroupICA/internal/nifti"
	"github.com/KyungWonPark/GroupICA/internal/timeseries"
	"github.com/gonum/matrix/mat64"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Options configures an Extractor.
type Options struct {
	GroupICADir string // holds output/melodic_IC_masked.npy
	MaskFile    string // conformed mask written by the mask step
	DataDir     string
	OutDir      string
	Suffix      string // features are saved as {id}_{Suffix}.npy
	StartIdx    int    // position in the sorted subject list to start at
	Standardize timeseries.Mode
	Trim        []int
	Netmat      bool // also save the component network matrix
	CSV         bool // also save the features as CSV
	FailureLog  string
}

// ComponentsPath returns the masked group ICA array inside groupICADir.
func ComponentsPath(groupICADir string) string {
	return filepath.Join(groupICADir, "output", "melodic_IC_masked.npy")
}

// SubjectID returns the base name up to the first '.'.
func SubjectID(path string) string {
	name := filepath.Base(path)
	if i := strings.Index(name, "."); i >= 0 {
		return name[:i]
	}
	return name
}

// Extractor holds the resources shared by every subject.
type Extractor struct {
	opts Options
	pl   *calc.PipeLine
	log  log.FieldLogger
	diag *diag.Collector

	mask       *nifti.Volume
	components *mat64.Dense // voxels by K
	nVoxels    int
}

// New loads the conformed mask and the masked group components. Any failure
// is an ErrMissingResource.
func New(opts Options, pl *calc.PipeLine, logger log.FieldLogger, c *diag.Collector) (*Extractor, error) {
	if logger == nil {
		logger = diag.Discard()
	}

	logger.WithField("workers", pl.GetNP()).Info("Loading mask...")
	m, err := nifti.Load(opts.MaskFile, c)
	if err != nil {
		return nil, fmt.Errorf("%w: could not load mask: %w", errs.ErrMissingResource, err)
	}
	nVoxels := mask.Count(m)
	if nVoxels == 0 {
		return nil, fmt.Errorf("%w: mask %s has no foreground voxels", errs.ErrMissingResource, opts.MaskFile)
	}
	logger.WithField("descrip", m.Description()).Infof("Shape of mask: %v, %d voxels", m.Dims(), nVoxels)

	logger.Info("Loading group ICA...")
	raw, err := io.NpytoMat64(ComponentsPath(opts.GroupICADir))
	if err != nil {
		return nil, fmt.Errorf("%w: could not load group ICA map: %w", errs.ErrMissingResource, err)
	}
	components, err := calc.Orient(raw, nVoxels)
	if err != nil {
		return nil, fmt.Errorf("%w: group ICA map does not fit the mask: %w", errs.ErrMissingResource, err)
	}
	r, k := components.Dims()
	logger.Infof("Shape of group ICA map: %d voxels, %d components", r, k)

	return &Extractor{
		opts:       opts,
		pl:         pl,
		log:        logger,
		diag:       c,
		mask:       m,
		components: components,
		nVoxels:    nVoxels,
	}, nil
}

// Subjects returns the regular files of the data dir in lexicographic order.
func (e *Extractor) Subjects() ([]string, error) {
	entries, err := os.ReadDir(e.opts.DataDir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// Run processes every subject from StartIdx on. Subject failures end up in
// the report and the failure log; the returned error is reserved for a data
// dir that cannot be listed or a cancelled ctx.
func (e *Extractor) Run(ctx context.Context) (Report, error) {
	report := Report{RunID: uuid.NewString(), Started: time.Now()}
	logger := e.log.WithField("run", report.RunID)

	subjects, err := e.Subjects()
	if err != nil {
		return report, err
	}
	report.Total = len(subjects)

	start := e.opts.StartIdx
	if start < 0 {
		return report, fmt.Errorf("start index %d is negative", start)
	}
	if start > len(subjects) {
		start = len(subjects)
	}

	for i, name := range subjects[start:] {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		logger.Infof("subject %d/%d: %s", start+i+1, len(subjects), name)
		res := e.Process(filepath.Join(e.opts.DataDir, name))

		switch {
		case res.Err != nil:
			logger.WithField("subject", res.Subject).Errorf("Having problems in file %s: %v", name, res.Err)
			if err := AppendFailure(e.opts.FailureLog, res.Subject); err != nil {
				e.diag.Warn("FailureLogWarning", "could not record %s in %s: %v", res.Subject, e.opts.FailureLog, err)
			}
		case res.Skipped:
			logger.WithField("subject", res.Subject).Info("File already exists!")
		default:
			logger.WithField("subject", res.Subject).Infof("Success! Features saved to %s", res.Output)
		}
		logger.WithField("subject", res.Subject).Infof("Time taken to process %s: %s", name, res.Elapsed)

		report.Results = append(report.Results, res)
	}

	report.Elapsed = time.Since(report.Started)
	return report, nil
}

// Process extracts the features of one subject file.
func (e *Extractor) Process(path string) Result {
	start := time.Now()
	id := SubjectID(path)
	res := Result{Subject: id, File: path, Output: e.outputPath(id, ".npy")}

	if _, err := os.Stat(res.Output); err == nil {
		res.Skipped = true
	} else {
		res.Err = e.process(path, id)
	}

	res.Elapsed = time.Since(start)
	return res
}

func (e *Extractor) outputPath(id, ext string) string {
	return filepath.Join(e.opts.OutDir, id+"_"+e.opts.Suffix+ext)
}

func (e *Extractor) process(path, id string) error {
	logger := e.log.WithField("subject", id)

	logger.Debug("Loading image...")
	src := timeseries.File{Path: path, Mask: e.mask}
	data, err := timeseries.LoadAndNormalize(e.pl, []timeseries.Source{src}, timeseries.Options{
		Trim:        e.opts.Trim,
		Standardize: e.opts.Standardize,
		VoxelCount:  e.nVoxels,
	}, e.diag)
	if err != nil {
		return err
	}

	logger.Debug("Extracting features...")
	dr, err := calc.DualRegression(data, e.components, e.nVoxels)
	if err != nil {
		return err
	}
	features, err := e.pl.WeightedSeedToVoxel(dr.Maps, data)
	if err != nil {
		return err
	}

	logger.Debug("Saving features...")
	var toSave mat64.Dense
	toSave.Clone(features.T()) // K by voxels

	// the feature file marks the subject as done, so it is written last
	if e.opts.Netmat {
		k, _ := dr.TimeCourses.Dims()
		netmat := mat64.NewDense(k, k, nil)
		if err := e.pl.Pearson(dr.TimeCourses, netmat); err != nil {
			return err
		}
		if err := io.Mat64toNpy(e.outputPath(id, "_netmat.npy"), netmat); err != nil {
			return err
		}
	}

	if e.opts.CSV {
		if err := io.Mat64toCSV(e.outputPath(id, ".csv"), &toSave); err != nil {
			return err
		}
	}

	return io.Mat64toNpy(e.outputPath(id, ".npy"), &toSave)
}

// AppendFailure appends id as a line to the failure log at path. An empty
// path disables the log.
func AppendFailure(path, id string) error {
	if path == "" {
		return nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = fmt.Fprintln(f, id)
	return err
}
