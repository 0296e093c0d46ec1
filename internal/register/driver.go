package register

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/KyungWonPark/GroupICA/internal/diag"
	"github.com/KyungWonPark/GroupICA/internal/errs"
	"github.com/KyungWonPark/GroupICA/internal/nifti"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Subject states, logged as the driver advances.
const (
	StateLoaded             = "LOADED"
	StateMeanComputed       = "MEAN_COMPUTED"
	StateTransformEstimated = "TRANSFORM_ESTIMATED"
	StatePerVolumeWarped    = "PER_VOLUME_WARPED"
	StateMerged             = "MERGED"
	StateSaved              = "SAVED"
)

// Driver registers subjects with a single Engine.
type Driver struct {
	Engine  Engine
	Workers int // concurrent per-volume warps, runtime.NumCPU() when < 1
	Log     log.FieldLogger
	Diag    *diag.Collector
	TempDir string // parent of the per-subject scratch dirs, os.TempDir() when empty

	// UseRegisteredAffine writes the merged series with the affine of the
	// registered volumes instead of the input's.
	UseRegisteredAffine bool
}

func (d *Driver) logger() log.FieldLogger {
	if d.Log == nil {
		return diag.Discard()
	}
	return d.Log
}

func (d *Driver) workers() int {
	if d.Workers < 1 {
		return runtime.NumCPU()
	}
	return d.Workers
}

// RegisterSubject registers the 4D image at input to template and writes the
// result to output. Intermediate files live in a scratch dir that is removed
// on every return path. Any failure is an ErrRegistration.
func (d *Driver) RegisterSubject(ctx context.Context, input, output, template string) error {
	logger := d.logger().WithField("input", filepath.Base(input))

	img, err := nifti.Load(input, d.Diag)
	if err != nil {
		return fmt.Errorf("%w: %w", errs.ErrRegistration, err)
	}
	logger.WithField("state", StateLoaded).Infof("Loaded %v", img.Shape)

	tmp, err := os.MkdirTemp(d.TempDir, "register-*")
	if err != nil {
		return fmt.Errorf("%w: %w", errs.ErrRegistration, err)
	}
	defer os.RemoveAll(tmp)

	logger.Info("Calculating mean image...")
	meanPath := filepath.Join(tmp, "mean_fMRI_3D.nii.gz")
	if err := nifti.Save(img.Mean(), meanPath); err != nil {
		return fmt.Errorf("%w: %w", errs.ErrRegistration, err)
	}
	logger.WithField("state", StateMeanComputed).Debug(meanPath)

	logger.Info("Registering mean image...")
	tf, err := d.Engine.Estimate(ctx, template, meanPath, filepath.Join(tmp, "mean_"))
	if err != nil {
		return fmt.Errorf("%w: estimate: %w", errs.ErrRegistration, err)
	}
	logger.WithField("state", StateTransformEstimated).Debugf("warp %s, affine %s", tf.Warp, tf.Affine)

	logger.Infof("Will register %d separate timepoints...", img.Frames())
	registered, err := d.warpVolumes(ctx, logger, img, tmp, template, tf)
	if err != nil {
		return err
	}

	logger.Info("Done, now merging registered timepoints on temporal axis...")
	merged, err := d.merge(img, registered)
	if err != nil {
		return err
	}
	logger.WithField("state", StateMerged).Debugf("merged %v", merged.Shape)

	if err := nifti.Save(merged, output); err != nil {
		return fmt.Errorf("%w: %w", errs.ErrRegistration, err)
	}
	logger.WithField("state", StateSaved).Infof("Saved %s", output)

	return nil
}

// warpVolumes applies tf to every frame of img on a bounded pool and returns
// the registered file paths in completion order. The first failure cancels
// the remaining volumes.
func (d *Driver) warpVolumes(ctx context.Context, logger log.FieldLogger, img *nifti.Volume, tmp, template string, tf Transform) ([]string, error) {
	var lock sync.Mutex
	registered := make([]string, 0, img.Frames())

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers())

	for i := 0; i < img.Frames(); i++ {
		i := i
		g.Go(func() error {
			frame, err := img.Frame(i)
			if err != nil {
				return err
			}

			moving := filepath.Join(tmp, fmt.Sprintf("timepoint_%d.nii.gz", i))
			if err := nifti.Save(frame, moving); err != nil {
				return err
			}

			out := filepath.Join(tmp, fmt.Sprintf("timepoint_%d_registered.nii.gz", i))
			if err := d.Engine.Apply(gctx, template, moving, out, tf); err != nil {
				return fmt.Errorf("volume %d: %w", i, err)
			}

			lock.Lock()
			registered = append(registered, out)
			lock.Unlock()

			logger.WithFields(log.Fields{"state": StatePerVolumeWarped, "volume": i}).Debug("warped")
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrRegistration, err)
	}
	return registered, nil
}

// merge stacks the registered volumes in natural file name order.
func (d *Driver) merge(img *nifti.Volume, registered []string) (*nifti.Volume, error) {
	sortNatural(registered)

	frames := make([]*nifti.Volume, len(registered))
	for i, path := range registered {
		frame, err := nifti.Load(path, d.Diag)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", errs.ErrRegistration, err)
		}
		frames[i] = frame
	}

	affine := img.Affine
	if d.UseRegisteredAffine {
		affine = frames[0].Affine
	}

	merged, err := nifti.Stack(frames, affine)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrRegistration, err)
	}
	merged.DataType = frames[0].DataType
	return merged, nil
}
