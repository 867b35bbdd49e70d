package compare

import (
	"math"
	"testing"

	"github.com/kamusis/embr/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestCosineAndEuclidean(t *testing.T) {
	cos, err := Cosine([]float64{1, 2, 3}, []float64{2, 4, 6})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, cos, 1e-12)
	assert.LessOrEqual(t, cos, 1.0)

	cos, err = Cosine([]float64{1, 0}, []float64{0, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0, cos, 1e-12)

	d, err := Euclidean([]float64{0, 0}, []float64{3, 4})
	require.NoError(t, err)
	assert.InDelta(t, 5, d, 1e-12)
}

func TestCompareFailures(t *testing.T) {
	tests := []struct {
		name  string
		a, b  []float64
		check func(error) bool
		msg   string
	}{
		{"dimension mismatch", []float64{1, 2}, []float64{1, 2, 3}, errs.IsDimensionMismatch, "Embedding dimensions do not match"},
		{"nan", []float64{1, math.NaN()}, []float64{1, 2}, errs.IsInvalidValues, "Invalid embedding values"},
		{"inf", []float64{1, 2}, []float64{math.Inf(1), 2}, errs.IsInvalidValues, "Invalid embedding values"},
		{"zero magnitude", []float64{0, 0}, []float64{1, 2}, errs.IsInvalidValues, "zero-magnitude"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compare(tt.a, tt.b)
			require.Error(t, err)
			assert.True(t, tt.check(err))
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestEuclideanRejectsNaN(t *testing.T) {
	_, err := Euclidean([]float64{math.NaN()}, []float64{1})
	assert.True(t, errs.IsInvalidValues(err))
}

func TestIdentity(t *testing.T) {
	r := Identity(MethodCosine)
	assert.Equal(t, 1.0, r.Similarity())
	assert.Equal(t, 0.0, r.Euclidean)
	require.NotNil(t, r.Neighborhood)
	assert.Equal(t, 1.0, *r.Neighborhood)
	assert.True(t, r.Identical)
}

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod("semantic")
	require.NoError(t, err)
	assert.Equal(t, MethodSemantic, m)

	_, err = ParseMethod("magic")
	assert.True(t, errs.IsValidation(err))
}

func TestNeighborhoodPreservation(t *testing.T) {
	before := [][]float64{{1, 0}, {0.9, 0.1}, {0, 1}, {0.1, 0.9}}
	scaled := make([][]float64, len(before))
	for i, v := range before {
		scaled[i] = []float64{v[0] * 3, v[1] * 3}
	}

	score, err := NeighborhoodPreservation(before, scaled, 1)
	require.NoError(t, err)
	assert.Equal(t, 1.0, score)

	swapped := [][]float64{{1, 0}, {0, 1}, {0.9, 0.1}, {0.1, 0.9}}
	score, err = NeighborhoodPreservation(before, swapped, 1)
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)

	_, err = NeighborhoodPreservation(before[:1], scaled[:1], 1)
	assert.True(t, errs.IsValidation(err))
}

func TestPairNeighborhood(t *testing.T) {
	corpus := [][]float64{{1, 0}, {0.95, 0.05}, {0, 1}, {0.05, 0.95}}

	score, k, err := PairNeighborhood([]float64{1, 0.01}, []float64{1, 0.01}, corpus, 2)
	require.NoError(t, err)
	assert.Equal(t, 1.0, score)
	assert.Equal(t, 2, k)

	score, _, err = PairNeighborhood([]float64{1, 0.02}, []float64{1, 0.03}, corpus, 2)
	require.NoError(t, err)
	assert.Equal(t, 1.0, score)

	score, _, err = PairNeighborhood([]float64{1, 0.02}, []float64{0.02, 1}, corpus, 2)
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)

	_, k, err = PairNeighborhood([]float64{1, 0}, []float64{0, 1}, nil, 5)
	require.NoError(t, err)
	assert.Zero(t, k)
}

func TestSpearmanRanks(t *testing.T) {
	assert.Equal(t, []float64{1, 2.5, 2.5, 4}, ranks([]float64{10, 20, 20, 30}))

	rho, err := spearman([]float64{1, 2, 3}, []float64{10, 20, 30})
	require.NoError(t, err)
	assert.InDelta(t, 1, rho, 1e-12)

	rho, err = spearman([]float64{1, 2, 3}, []float64{3, 2, 1})
	require.NoError(t, err)
	assert.InDelta(t, -1, rho, 1e-12)

	_, err = spearman([]float64{1, 1, 1}, []float64{1, 2, 3})
	assert.Error(t, err)
}

func TestSolve(t *testing.T) {
	x, ok := solve(mat.NewSymDense(2, []float64{2, 1, 1, 3}), mat.NewVecDense(2, []float64{3, 5}))
	require.True(t, ok)
	assert.InDelta(t, 0.8, x.AtVec(0), 1e-12)
	assert.InDelta(t, 1.4, x.AtVec(1), 1e-12)

	_, ok = solve(mat.NewSymDense(2, []float64{1, 1, 1, 1}), mat.NewVecDense(2, []float64{1, 1}))
	assert.False(t, ok)
}
