package register

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/KyungWonPark/GroupICA/internal/errs"
	log "github.com/sirupsen/logrus"
)

const (
	synQuick       = "antsRegistrationSyNQuick.sh"
	applyTransform = "antsApplyTransforms"
)

// ANTs runs the ANTs command line tools. Registration is SyN quick
// (rigid + affine + deformable syn).
type ANTs struct {
	BinDir  string // directory of the ANTs binaries, $PATH when empty
	Threads int    // threads for one estimation
	Log     log.FieldLogger
}

// CheckTools reports ErrMissingResource when an ANTs binary cannot be found.
func (a *ANTs) CheckTools() error {
	for _, name := range []string{synQuick, applyTransform} {
		if _, err := exec.LookPath(a.bin(name)); err != nil {
			return fmt.Errorf("%w: %s: %v", errs.ErrMissingResource, name, err)
		}
	}
	return nil
}

// Estimate implements Engine.
func (a *ANTs) Estimate(ctx context.Context, fixed, moving, prefix string) (Transform, error) {
	if err := a.run(ctx, a.Threads, synQuick, estimateArgs(fixed, moving, prefix, a.Threads)...); err != nil {
		return Transform{}, err
	}

	tf := Transform{
		Warp:   prefix + "1Warp.nii.gz",
		Affine: prefix + "0GenericAffine.mat",
	}
	for _, path := range []string{tf.Warp, tf.Affine} {
		if _, err := os.Stat(path); err != nil {
			return Transform{}, fmt.Errorf("%w: %s produced no %s", errs.ErrRegistration, synQuick, filepath.Base(path))
		}
	}
	return tf, nil
}

// Apply implements Engine. Every call is single threaded; parallelism comes
// from the driver.
func (a *ANTs) Apply(ctx context.Context, fixed, moving, output string, tf Transform) error {
	return a.run(ctx, 1, applyTransform, applyArgs(fixed, moving, output, tf)...)
}

func estimateArgs(fixed, moving, prefix string, threads int) []string {
	args := []string{"-d", "3", "-f", fixed, "-m", moving, "-o", prefix, "-t", "s"}
	if threads > 0 {
		args = append(args, "-n", strconv.Itoa(threads))
	}
	return args
}

func applyArgs(fixed, moving, output string, tf Transform) []string {
	return []string{
		"-d", "3",
		"-i", moving,
		"-r", fixed,
		"-o", output,
		"-n", "Linear",
		"-t", tf.Warp,
		"-t", tf.Affine,
	}
}

func (a *ANTs) bin(name string) string {
	if a.BinDir == "" {
		return name
	}
	return filepath.Join(a.BinDir, name)
}

func (a *ANTs) run(ctx context.Context, threads int, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, a.bin(name), args...)
	if threads > 0 {
		cmd.Env = append(os.Environ(), "ITK_GLOBAL_DEFAULT_NUMBER_OF_THREADS="+strconv.Itoa(threads))
	}

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if a.Log != nil {
		a.Log.WithField("cmd", name).Debug(strings.Join(args, " "))
	}

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %s: %v: %s", errs.ErrRegistration, name, err, lastLine(out.String()))
	}
	return nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return lines[len(lines)-1]
}
