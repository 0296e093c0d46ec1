package extract

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/KyungWonPark/GroupICA/internal/calc"
	"github.com/KyungWonPark/GroupICA/internal/diag"
	"github.com/KyungWonPark/GroupICA/internal/errs"
	"github.com/KyungWonPark/GroupICA/internal/io"
	"github.com/KyungWonPark/GroupICA/internal/mask"
	"github.com/KyungWonPark/GroupICA/internal/nifti"
	"github.com/gonum/matrix/mat64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	nComponents = 3
	nFrames     = 20
)

type fixture struct {
	opts    Options
	nVoxels int
}

// newFixture writes a conformed mask, masked group components and five
// subjects, subject_3 being unreadable.
func newFixture(t *testing.T) fixture {
	t.Helper()
	rng := rand.New(rand.NewSource(42))
	root := t.TempDir()

	opts := Options{
		GroupICADir: filepath.Join(root, "group"),
		MaskFile:    filepath.Join(root, "metadata", "mask_IC.nii.gz"),
		DataDir:     filepath.Join(root, "rs_data"),
		OutDir:      filepath.Join(root, "out"),
		Suffix:      "features",
		FailureLog:  filepath.Join(root, "corrupted_files.txt"),
	}
	for _, dir := range []string{filepath.Join(opts.GroupICADir, "output"), filepath.Dir(opts.MaskFile), opts.DataDir, opts.OutDir} {
		require.NoError(t, os.MkdirAll(dir, 0755))
	}

	m := nifti.New(4, 4, 3, 1, nifti.Identity())
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			for z := 0; z < 3; z++ {
				if (x+y+z)%2 == 0 {
					m.Set(x, y, z, 0, 1)
				}
			}
		}
	}
	m.DataType = nifti.DTUint8
	require.NoError(t, nifti.Save(m, opts.MaskFile))
	indices := mask.Indices(m)

	comps := mat64.NewDense(nComponents, len(indices), nil)
	comps.Apply(func(i, j int, v float64) float64 { return rng.NormFloat64() }, comps)
	require.NoError(t, io.Mat64toNpy(ComponentsPath(opts.GroupICADir), comps))

	for s := 1; s <= 5; s++ {
		path := filepath.Join(opts.DataDir, "subject_"+string(rune('0'+s))+".nii.gz")
		if s == 3 {
			require.NoError(t, os.WriteFile(path, []byte("corrupted"), 0644))
			continue
		}

		img := nifti.New(4, 4, 3, nFrames, nifti.Identity())
		img.DataType = nifti.DTFloat64
		n := img.VoxelsPerFrame()
		for tp := 0; tp < nFrames; tp++ {
			for i := 0; i < n; i++ {
				img.Data[tp*n+i] = rng.NormFloat64()
			}
			tc := make([]float64, nComponents)
			for k := range tc {
				tc[k] = rng.NormFloat64()
			}
			for col, idx := range indices {
				var v float64
				for k := range tc {
					v += comps.At(k, col) * tc[k]
				}
				img.Data[tp*n+idx] = 100 + v + 0.1*rng.NormFloat64()
			}
		}
		require.NoError(t, nifti.Save(img, path))
	}

	return fixture{opts: opts, nVoxels: len(indices)}
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Fields(string(content))
}

func TestSubjectID(t *testing.T) {
	assert.Equal(t, "subject_3", SubjectID("/data/rs/subject_3.nii.gz"))
	assert.Equal(t, "sub-01_task-rest", SubjectID("sub-01_task-rest.feat.nii"))
	assert.Equal(t, "plain", SubjectID("plain"))
}

func TestRunIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	c := diag.NewCollector()

	e, err := New(f.opts, calc.Init(2), nil, c)
	require.NoError(t, err)

	report, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 5, report.Total)
	require.Len(t, report.Results, 5)

	failed := report.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "subject_3", failed[0].Subject)
	assert.Equal(t, []string{"subject_3"}, readLines(t, f.opts.FailureLog))

	for _, id := range []string{"subject_1", "subject_2", "subject_4", "subject_5"} {
		features, err := io.NpytoMat64(filepath.Join(f.opts.OutDir, id+"_features.npy"))
		require.NoError(t, err, id)

		r, c := features.Dims()
		assert.Equal(t, nComponents, r, id)
		assert.Equal(t, f.nVoxels, c, id)
		for _, v := range features.RawMatrix().Data {
			assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), id)
		}
	}
	_, err = os.Stat(filepath.Join(f.opts.OutDir, "subject_3_features.npy"))
	assert.True(t, os.IsNotExist(err))

	s := report.Summarize()
	assert.Equal(t, 4, s.Processed)
	assert.Equal(t, 1, s.Failed)
}

func TestRunIsolatesOversizedHeader(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.Remove(filepath.Join(f.opts.DataDir, "subject_3.nii.gz")))

	// valid magic and datatype, dims far beyond the bytes that follow
	var h nifti.Header
	h.SizeofHdr = 348
	h.Magic = [4]byte{'n', '+', '1', 0}
	h.Datatype = nifti.DTFloat64
	h.Bitpix = 64
	h.VoxOffset = 352
	h.Dim = [8]int16{4, math.MaxInt16, math.MaxInt16, math.MaxInt16, math.MaxInt16, 1, 1, 1}

	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, &h))
	buf.Write(make([]byte, 4+16))
	require.NoError(t, os.WriteFile(filepath.Join(f.opts.DataDir, "subject_3.nii"), buf.Bytes(), 0644))

	e, err := New(f.opts, calc.Init(2), nil, nil)
	require.NoError(t, err)

	report, err := e.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Results, 5)

	failed := report.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "subject_3", failed[0].Subject)
	assert.Equal(t, 4, report.Summarize().Processed)
}

func TestRunRetriesSubjectAfterExportFailure(t *testing.T) {
	f := newFixture(t)
	f.opts.CSV = true
	blocked := filepath.Join(f.opts.OutDir, "subject_1_features.csv")
	require.NoError(t, os.Mkdir(blocked, 0755))

	e, err := New(f.opts, calc.Init(2), nil, nil)
	require.NoError(t, err)
	report, err := e.Run(context.Background())
	require.NoError(t, err)

	var ids []string
	for _, r := range report.Failed() {
		ids = append(ids, r.Subject)
	}
	assert.Equal(t, []string{"subject_1", "subject_3"}, ids)
	_, err = os.Stat(filepath.Join(f.opts.OutDir, "subject_1_features.npy"))
	assert.True(t, os.IsNotExist(err), "no feature file for an incomplete subject")

	require.NoError(t, os.Remove(blocked))
	report, err = e.Run(context.Background())
	require.NoError(t, err)

	first := report.Results[0]
	assert.Equal(t, "subject_1", first.Subject)
	assert.False(t, first.Skipped)
	assert.NoError(t, first.Err)
	_, err = io.CSVtoMat64(blocked)
	assert.NoError(t, err)
}

func TestRunSkipsExistingAndAppendsFailures(t *testing.T) {
	f := newFixture(t)

	e, err := New(f.opts, calc.Init(2), nil, nil)
	require.NoError(t, err)

	_, err = e.Run(context.Background())
	require.NoError(t, err)

	report, err := e.Run(context.Background())
	require.NoError(t, err)

	s := report.Summarize()
	assert.Equal(t, 0, s.Processed)
	assert.Equal(t, 4, s.Skipped)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, []string{"subject_3", "subject_3"}, readLines(t, f.opts.FailureLog))
}

func TestRunFromStartIndex(t *testing.T) {
	f := newFixture(t)
	f.opts.StartIdx = 3

	e, err := New(f.opts, calc.Init(2), nil, nil)
	require.NoError(t, err)

	report, err := e.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Results, 2)
	assert.Equal(t, "subject_4", report.Results[0].Subject)
	assert.Equal(t, "subject_5", report.Results[1].Subject)

	for _, id := range []string{"subject_1", "subject_2"} {
		_, err := os.Stat(filepath.Join(f.opts.OutDir, id+"_features.npy"))
		assert.True(t, os.IsNotExist(err), id)
	}
	_, err = os.Stat(f.opts.FailureLog)
	assert.True(t, os.IsNotExist(err), "subject_3 was never attempted")

	f.opts.StartIdx = 10
	e, err = New(f.opts, calc.Init(2), nil, nil)
	require.NoError(t, err)
	report, err = e.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Results)
}

func TestProcessWritesNetmatAndCSV(t *testing.T) {
	f := newFixture(t)
	f.opts.Netmat = true
	f.opts.CSV = true

	e, err := New(f.opts, calc.Init(2), nil, nil)
	require.NoError(t, err)

	res := e.Process(filepath.Join(f.opts.DataDir, "subject_1.nii.gz"))
	require.NoError(t, res.Err)
	assert.False(t, res.Skipped)

	netmat, err := io.NpytoMat64(filepath.Join(f.opts.OutDir, "subject_1_features_netmat.npy"))
	require.NoError(t, err)
	r, c := netmat.Dims()
	require.Equal(t, nComponents, r)
	require.Equal(t, nComponents, c)
	for i := 0; i < nComponents; i++ {
		assert.InDelta(t, 1, netmat.At(i, i), 1e-9)
		for j := 0; j < nComponents; j++ {
			assert.Equal(t, netmat.At(i, j), netmat.At(j, i))
		}
	}

	features, err := io.NpytoMat64(res.Output)
	require.NoError(t, err)
	csv, err := io.CSVtoMat64(filepath.Join(f.opts.OutDir, "subject_1_features.csv"))
	require.NoError(t, err)
	assert.True(t, mat64.EqualApprox(features, csv, 1e-12))
}

func TestNewMissingResources(t *testing.T) {
	f := newFixture(t)

	opts := f.opts
	opts.MaskFile = filepath.Join(t.TempDir(), "absent.nii.gz")
	_, err := New(opts, calc.Init(1), nil, nil)
	assert.True(t, errors.Is(err, errs.ErrMissingResource))

	opts = f.opts
	opts.GroupICADir = t.TempDir()
	_, err = New(opts, calc.Init(1), nil, nil)
	assert.True(t, errors.Is(err, errs.ErrMissingResource))

	wrong := mat64.NewDense(nComponents, f.nVoxels+1, nil)
	require.NoError(t, io.Mat64toNpy(ComponentsPath(f.opts.GroupICADir), wrong))
	_, err = New(f.opts, calc.Init(1), nil, nil)
	assert.True(t, errors.Is(err, errs.ErrMissingResource))
	assert.True(t, errors.Is(err, errs.ErrShape))
}

func TestRunCancelled(t *testing.T) {
	f := newFixture(t)
	e, err := New(f.opts, calc.Init(1), nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := e.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, report.Results)
}

func TestSummarize(t *testing.T) {
	report := Report{Results: []Result{
		{Subject: "a", Elapsed: 1 * time.Second},
		{Subject: "b", Elapsed: 3 * time.Second},
		{Subject: "c", Elapsed: 8 * time.Second},
		{Subject: "d", Skipped: true},
		{Subject: "e", Err: errors.New("bad")},
	}}

	s := report.Summarize()
	assert.Equal(t, 3, s.Processed)
	assert.Equal(t, 1, s.Skipped)
	assert.Equal(t, 1, s.Failed)
	assert.InDelta(t, 4, s.MeanSeconds, 1e-9)
	assert.InDelta(t, 3, s.MedianSeconds, 1e-9)

	assert.Equal(t, Summary{}, Report{}.Summarize())
	report.Log(diag.Discard())
}

func TestAppendFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupted_files.txt")
	require.NoError(t, AppendFailure(path, "a"))
	require.NoError(t, AppendFailure(path, "b"))
	assert.Equal(t, []string{"a", "b"}, readLines(t, path))

	assert.NoError(t, AppendFailure("", "ignored"))
}
