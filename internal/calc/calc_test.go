package calc

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/KyungWonPark/GroupICA/internal/errs"
	"github.com/gonum/floats"
	"github.com/gonum/matrix/mat64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomDense(rng *rand.Rand, rows, cols int) *mat64.Dense {
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = rng.NormFloat64()
	}
	return mat64.NewDense(rows, cols, data)
}

func allFinite(m mat64.Matrix) bool {
	rows, cols := m.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

func TestGetStatUsesPopulationDenominator(t *testing.T) {
	stat := getStat([]float64{1, 2, 3, 4})
	assert.InDelta(t, 2.5, stat.avg, 1e-12)
	assert.InDelta(t, math.Sqrt(1.25), stat.std, 1e-12)
}

func TestNormaliseColumnsPopulationDenominator(t *testing.T) {
	pl := Init(2)
	col := mat64.NewDense(4, 1, []float64{1, 2, 3, 4})

	out := pl.NormaliseColumns(col)

	// divisor N = 4: std = sqrt(1.25)
	std := math.Sqrt(1.25)
	expected := []float64{-1.5 / std, -0.5 / std, 0.5 / std, 1.5 / std}
	got := []float64{out.At(0, 0), out.At(1, 0), out.At(2, 0), out.At(3, 0)}
	assert.True(t, floats.EqualApprox(expected, got, 1e-12), "got %v", got)
	assert.InDelta(t, -1.3416407865, got[0], 1e-9)

	// the sample std (divisor 3) would give a different first entry
	sampleStd := math.Sqrt(5.0 / 3.0)
	assert.NotEqual(t, math.Round(-1.5/sampleStd*1e6), math.Round(got[0]*1e6))
}

func TestNormaliseColumnsIndependentColumns(t *testing.T) {
	pl := Init(3)
	m := mat64.NewDense(3, 2, []float64{
		1, 10,
		2, 10,
		3, 10,
	})

	out := pl.NormaliseColumns(m)

	r, c := out.Dims()
	require.Equal(t, 3, r)
	require.Equal(t, 2, c)
	assert.InDelta(t, -math.Sqrt(1.5), out.At(0, 0), 1e-12)
	assert.InDelta(t, 0, out.At(1, 0), 1e-12)
	assert.InDelta(t, math.Sqrt(1.5), out.At(2, 0), 1e-12)
	for i := 0; i < 3; i++ {
		assert.Equal(t, 0.0, out.At(i, 1), "constant column maps to zeros")
	}
}

func TestZScoring(t *testing.T) {
	pl := Init(4)
	rng := rand.New(rand.NewSource(7))
	in := randomDense(rng, 10, 30)
	in.Apply(func(i, j int, v float64) float64 { return 100 + 5*v }, in)

	out := mat64.NewDense(10, 30, nil)
	require.NoError(t, pl.ZScoring(in, out))

	for i := 0; i < 10; i++ {
		stat := getStat(out.RawRowView(i))
		assert.InDelta(t, 0, stat.avg, 1e-10)
		assert.InDelta(t, 1, stat.std, 1e-10)
	}
}

func TestZScoringConstantRowAndInPlace(t *testing.T) {
	pl := Init(2)
	m := mat64.NewDense(2, 3, []float64{
		5, 5, 5,
		1, 2, 3,
	})

	require.NoError(t, pl.ZScoring(m, m))
	assert.Equal(t, []float64{0, 0, 0}, m.RawRowView(0))
	assert.InDelta(t, 0, m.At(1, 1), 1e-12)
}

func TestZScoringDimensionMismatch(t *testing.T) {
	pl := Init(2)
	err := pl.ZScoring(mat64.NewDense(2, 3, nil), mat64.NewDense(3, 2, nil))
	assert.True(t, errors.Is(err, errs.ErrDimensionMismatch))
}

func TestDetrendRemovesLine(t *testing.T) {
	pl := Init(2)
	n := 20
	line := make([]float64, n)
	wave := make([]float64, n)
	for i := 0; i < n; i++ {
		line[i] = 3 + 2*float64(i)
		wave[i] = math.Sin(float64(i)) + 0.5*float64(i) - 1
	}
	m := mat64.NewDense(2, n, append(line, wave...))

	require.NoError(t, pl.Detrend(m, m))

	for _, v := range m.RawRowView(0) {
		assert.InDelta(t, 0, v, 1e-10)
	}

	// residual has neither mean nor slope left
	residual := m.RawRowView(1)
	assert.InDelta(t, 0, floats.Sum(residual), 1e-10)
	var slope float64
	for i, v := range residual {
		slope += (float64(i) - float64(n-1)/2) * v
	}
	assert.InDelta(t, 0, slope, 1e-9)
}

func TestPinvPenroseConditions(t *testing.T) {
	rng := rand.New(rand.NewSource(11))

	for _, dims := range [][2]int{{12, 4}, {4, 12}, {6, 6}} {
		a := randomDense(rng, dims[0], dims[1])

		p, err := Pinv(a)
		require.NoError(t, err)

		r, c := p.Dims()
		require.Equal(t, dims[1], r)
		require.Equal(t, dims[0], c)

		var ap, apa mat64.Dense
		ap.Mul(a, p)
		apa.Mul(&ap, a)
		assert.True(t, mat64.EqualApprox(&apa, a, 1e-9), "A·A⁺·A != A for %v", dims)

		var pa, pap mat64.Dense
		pa.Mul(p, a)
		pap.Mul(&pa, p)
		assert.True(t, mat64.EqualApprox(&pap, p, 1e-9), "A⁺·A·A⁺ != A⁺ for %v", dims)
	}
}

func TestPinvRankDeficient(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	a := randomDense(rng, 20, 3)
	for i := 0; i < 20; i++ {
		a.Set(i, 2, a.At(i, 1))
	}

	p, err := Pinv(a)
	require.NoError(t, err)
	assert.True(t, allFinite(p))

	var ap, apa mat64.Dense
	ap.Mul(a, p)
	apa.Mul(&ap, a)
	assert.True(t, mat64.EqualApprox(&apa, a, 1e-9))

	// the minimum norm solution splits the weight evenly across the twins
	for j := 0; j < 20; j++ {
		assert.InDelta(t, p.At(1, j), p.At(2, j), 1e-9)
	}
}

func TestPinvEmpty(t *testing.T) {
	_, err := Pinv(&mat64.Dense{})
	assert.True(t, errors.Is(err, errs.ErrShape))
}

func TestOrient(t *testing.T) {
	m := mat64.NewDense(2, 5, nil)

	out, err := Orient(m, 5)
	require.NoError(t, err)
	r, c := out.Dims()
	assert.Equal(t, 5, r)
	assert.Equal(t, 2, c)

	out, err = Orient(m, 2)
	require.NoError(t, err)
	r, _ = out.Dims()
	assert.Equal(t, 2, r)

	// unknown voxel count: the larger axis is voxels
	out, err = Orient(m, 0)
	require.NoError(t, err)
	r, _ = out.Dims()
	assert.Equal(t, 5, r)

	_, err = Orient(m, 7)
	assert.True(t, errors.Is(err, errs.ErrShape))
}

func TestDualRegressionOrientationInvariance(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	comps := randomDense(rng, 30, 4) // V by K
	data := randomDense(rng, 30, 12) // V by T

	var dataT mat64.Dense
	dataT.Clone(data.T())
	var compsT mat64.Dense
	compsT.Clone(comps.T())

	ref, err := DualRegression(data, comps, 30)
	require.NoError(t, err)

	for name, in := range map[string][2]mat64.Matrix{
		"data transposed":       {&dataT, comps},
		"components transposed": {data, &compsT},
		"both transposed":       {&dataT, &compsT},
	} {
		got, err := DualRegression(in[0], in[1], 30)
		require.NoError(t, err, name)
		assert.True(t, mat64.EqualApprox(ref.Maps, got.Maps, 1e-10), name)
		assert.True(t, mat64.EqualApprox(ref.TimeCourses, got.TimeCourses, 1e-10), name)
	}

	// unknown voxel count still follows the components
	got, err := DualRegression(&dataT, comps, 0)
	require.NoError(t, err)
	assert.True(t, mat64.EqualApprox(ref.Maps, got.Maps, 1e-10))
}

func TestDualRegressionReconstruction(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	const v, k, n = 50, 4, 20

	comps := randomDense(rng, v, k)
	known := randomDense(rng, k, n)

	var data mat64.Dense
	data.Mul(comps, known)

	res, err := DualRegression(&data, comps, v)
	require.NoError(t, err)

	r, c := res.TimeCourses.Dims()
	require.Equal(t, k, r)
	require.Equal(t, n, c)
	assert.True(t, mat64.EqualApprox(res.TimeCourses, known, 1e-8))

	r, c = res.Maps.Dims()
	require.Equal(t, v, r)
	require.Equal(t, k, c)
	assert.True(t, mat64.EqualApprox(res.Maps, comps, 1e-8))

	// small noise gives a small error
	noisy := mat64.DenseCopyOf(&data)
	noisy.Apply(func(i, j int, x float64) float64 { return x + 1e-6*rng.NormFloat64() }, noisy)
	res, err = DualRegression(noisy, comps, v)
	require.NoError(t, err)
	assert.True(t, mat64.EqualApprox(res.TimeCourses, known, 1e-4))
}

func TestDualRegressionCollinearComponents(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	comps := randomDense(rng, 25, 3)
	for i := 0; i < 25; i++ {
		comps.Set(i, 2, comps.At(i, 0))
	}
	data := randomDense(rng, 25, 10)

	res, err := DualRegression(data, comps, 25)
	require.NoError(t, err)
	assert.True(t, allFinite(res.TimeCourses))
	assert.True(t, allFinite(res.Maps))
}

func TestDualRegressionShapeError(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	_, err := DualRegression(randomDense(rng, 10, 8), randomDense(rng, 30, 3), 30)
	assert.True(t, errors.Is(err, errs.ErrShape))
}

func TestWeightedSeedToVoxel(t *testing.T) {
	pl := Init(4)
	rng := rand.New(rand.NewSource(21))
	const v, k, n = 40, 3, 16

	seeds := randomDense(rng, v, k)
	data := randomDense(rng, v, n)

	features, err := pl.WeightedSeedToVoxel(seeds, data)
	require.NoError(t, err)
	r, c := features.Dims()
	require.Equal(t, v, r)
	require.Equal(t, k, c)
	assert.True(t, allFinite(features))

	// every entry is N times the Pearson correlation of the voxel series with
	// the seed time course
	pinvSeeds, err := Pinv(seeds)
	require.NoError(t, err)
	var ts mat64.Dense
	ts.Mul(pinvSeeds, data)

	var stacked mat64.Dense
	stacked.Stack(&ts, data)
	corr := mat64.NewDense(k+v, k+v, nil)
	require.NoError(t, pl.Pearson(&stacked, corr))

	for vox := 0; vox < v; vox++ {
		for comp := 0; comp < k; comp++ {
			assert.InDelta(t, float64(n)*corr.At(k+vox, comp), features.At(vox, comp), 1e-9)
		}
	}

	// seeds given as K by V give the same features
	var seedsT mat64.Dense
	seedsT.Clone(seeds.T())
	again, err := pl.WeightedSeedToVoxel(&seedsT, data)
	require.NoError(t, err)
	assert.True(t, mat64.EqualApprox(features, again, 1e-10))
}

func TestPearson(t *testing.T) {
	pl := Init(3)
	m := mat64.NewDense(3, 4, []float64{
		1, 2, 3, 4,
		2, 4, 6, 8,
		4, 3, 2, 1,
	})
	out := mat64.NewDense(3, 3, nil)

	require.NoError(t, pl.Pearson(m, out))

	for i := 0; i < 3; i++ {
		assert.InDelta(t, 1, out.At(i, i), 1e-12)
		for j := 0; j < 3; j++ {
			assert.Equal(t, out.At(i, j), out.At(j, i))
		}
	}
	assert.InDelta(t, 1, out.At(0, 1), 1e-12)
	assert.InDelta(t, -1, out.At(0, 2), 1e-12)

	err := pl.Pearson(m, mat64.NewDense(3, 4, nil))
	assert.True(t, errors.Is(err, errs.ErrDimensionMismatch))
}
