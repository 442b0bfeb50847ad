package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescriptive(t *testing.T) {
	assert.Equal(t, 2.5, Median([]float64{3, 1, 2, 10}))
	assert.Equal(t, 2.0, Median([]float64{3, 1, 2}))
	assert.True(t, math.IsNaN(Median(nil)))
	assert.Equal(t, 4.0, Mean([]float64{2, 4, 6}))
	assert.Equal(t, 1.0, Min([]float64{3, 1, 2}))
	assert.Equal(t, 3.0, Max([]float64{3, 1, 2}))
	assert.True(t, math.IsNaN(Max(nil)))
}

func TestGeometric(t *testing.T) {
	gm, err := GeometricMean([]float64{1, 4})
	require.NoError(t, err)
	assert.InDelta(t, 2.0, gm, 1e-12)

	gstd, err := GeometricStdDev([]float64{1, math.Exp(2)})
	require.NoError(t, err)
	assert.InDelta(t, math.Exp(math.Sqrt2), gstd, 1e-12)

	gstd, err = GeometricStdDev([]float64{3})
	require.NoError(t, err)
	assert.True(t, math.IsNaN(gstd))

	_, err = GeometricMean(nil)
	assert.ErrorIs(t, err, ErrEmptySample)
	_, err = GeometricStdDev(nil)
	assert.ErrorIs(t, err, ErrEmptySample)
}

func TestRank(t *testing.T) {
	ranks, ties := Rank([]float64{10, 20, 10, 30})
	assert.Equal(t, []float64{1.5, 3, 1.5, 4}, ranks)
	assert.True(t, ties)

	ranks, ties = Rank([]float64{3, 1, 2})
	assert.Equal(t, []float64{3, 1, 2}, ranks)
	assert.False(t, ties)
}

func TestMannWhitneyExact(t *testing.T) {
	res, err := MannWhitneyU([]float64{1, 2, 3}, []float64{4, 5, 6})
	require.NoError(t, err)
	assert.True(t, res.Exact)
	assert.Equal(t, 0.0, res.U1)
	assert.InDelta(t, 0.1, res.PValue, 1e-12)

	res, err = MannWhitneyU([]float64{6, 7, 8, 9, 10}, []float64{1, 2, 3, 4, 5})
	require.NoError(t, err)
	assert.Equal(t, 25.0, res.U1)
	assert.InDelta(t, 2.0/252, res.PValue, 1e-12)

	// interleaved samples are indistinguishable
	res, err = MannWhitneyU([]float64{1, 4, 5, 8}, []float64{2, 3, 6, 7})
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.PValue)
}

func TestMannWhitneyAsymptotic(t *testing.T) {
	res, err := MannWhitneyU([]float64{1, 2, 2, 3, 4, 5}, []float64{3, 4, 5, 5, 6, 7, 8})
	require.NoError(t, err)
	assert.False(t, res.Exact)
	assert.Equal(t, 5.0, res.U1)
	assert.InDelta(t, 0.025359042166350532, res.PValue, 1e-9)

	x := append(repeat(1, 10), repeat(2, 5)...)
	y := append(repeat(2, 8), repeat(3, 7)...)
	res, err = MannWhitneyU(x, y)
	require.NoError(t, err)
	assert.Equal(t, 20.0, res.U1)
	assert.InDelta(t, 4.285874495340282e-05, res.PValue, 1e-12)

	res, err = MannWhitneyU(repeat(7, 10), repeat(7, 10))
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.PValue)

	_, err = MannWhitneyU(nil, []float64{1})
	assert.ErrorIs(t, err, ErrEmptySample)
}

func TestA12(t *testing.T) {
	a, err := A12([]float64{1, 2, 3}, []float64{4, 5, 6})
	require.NoError(t, err)
	assert.Equal(t, 0.0, a)

	a, err = A12([]float64{4, 5, 6}, []float64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 1.0, a)

	a, err = A12([]float64{1, 2}, []float64{1, 2})
	require.NoError(t, err)
	assert.Equal(t, 0.5, a)
}

func TestFisherExact(t *testing.T) {
	tests := []struct {
		table [2][2]int
		p     float64
		odds  float64
	}{
		{[2][2]int{{8, 2}, {1, 5}}, 0.03496503496503495, 20},
		{[2][2]int{{6, 2}, {1, 4}}, 0.10256410256410282, 12},
		{[2][2]int{{10, 0}, {0, 10}}, 1.0825088224469003e-05, math.Inf(1)},
	}
	for _, tt := range tests {
		res, err := FisherExact(tt.table)
		require.NoError(t, err)
		assert.InDelta(t, tt.p, res.PValue, 1e-12, "%v", tt.table)
		assert.Equal(t, tt.odds, res.OddsRatio, "%v", tt.table)
	}

	// a zero off-diagonal cell makes the ratio infinite, a zero diagonal
	// cell only zeroes it
	for table, odds := range map[[2][2]int]float64{
		{{5, 0}, {2, 4}}: math.Inf(1),
		{{3, 2}, {0, 4}}: math.Inf(1),
		{{0, 3}, {4, 2}}: 0,
	} {
		res, err := FisherExact(table)
		require.NoError(t, err)
		assert.Equal(t, odds, res.OddsRatio, "%v", table)
	}

	res, err := FisherExact([2][2]int{{0, 0}, {3, 4}})
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.PValue)
	assert.True(t, math.IsNaN(res.OddsRatio))

	_, err = FisherExact([2][2]int{{-1, 0}, {3, 4}})
	assert.Error(t, err)
}

func TestBonferroniLevel(t *testing.T) {
	assert.Equal(t, 0.05, BonferroniLevel(1, 0.05))
	assert.InDelta(t, 0.05/15, BonferroniLevel(6, 0.05), 1e-15)
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
