package repo

import (
	"context"
	"math"
	"testing"

	"github.com/kamusis/embr/internal/compare"
	"github.com/kamusis/embr/internal/errs"
	"github.com/kamusis/embr/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiffSelfIsIdentical(t *testing.T) {
	r := newRepo(t)
	v := store(t, r, "a.txt", "m", 0.1, 0.2, 0.3)

	res, err := r.Diff(context.Background(), DiffRequest{Ref1: v.Hash, Ref2: v.Hash[:6]})
	require.NoError(t, err)
	assert.True(t, res.Result.Identical)
	assert.Equal(t, 1.0, res.Result.Similarity())
	assert.Equal(t, 0.0, res.Result.Euclidean)
}

func TestDiffSameModel(t *testing.T) {
	r := newRepo(t)
	a := store(t, r, "a.txt", "m", 1, 0, 0)
	b := store(t, r, "b.txt", "m", 0, 1, 0)
	store(t, r, "c.txt", "m", 1, 0.1, 0)
	store(t, r, "d.txt", "m", 0, 1, 0.1)
	store(t, r, "e.txt", "m", 0, 0, 1)

	res, err := r.Diff(context.Background(), DiffRequest{Ref1: a.Hash[:8], Ref2: b.Hash[:8], K: 1})
	require.NoError(t, err)
	assert.Equal(t, compare.MethodCosine, res.Result.Method)
	assert.InDelta(t, 0.0, res.Result.Cosine, 1e-9)
	assert.InDelta(t, math.Sqrt2, res.Result.Euclidean, 1e-9)
	require.NotNil(t, res.Result.Neighborhood)
	assert.Equal(t, 1, res.Result.NeighborhoodK)
	assert.Equal(t, 0.0, *res.Result.Neighborhood)
	assert.Equal(t, "m", res.ModelA)
}

func TestDiffWithoutCorpusHasNoNeighborhood(t *testing.T) {
	r := newRepo(t)
	a := store(t, r, "a.txt", "m", 1, 2, 3)
	b := store(t, r, "b.txt", "m", 1, 2, 4)

	res, err := r.Diff(context.Background(), DiffRequest{Ref1: a.Hash, Ref2: b.Hash})
	require.NoError(t, err)
	assert.Nil(t, res.Result.Neighborhood)
	assert.Greater(t, res.Result.Similarity(), 0.9)
}

func TestDiffDimensionMismatch(t *testing.T) {
	r := newRepo(t)
	a := store(t, r, "a.txt", "m", 1, 2, 3)
	b := store(t, r, "b.txt", "n", 1, 2, 3, 4)

	_, err := r.Diff(context.Background(), DiffRequest{Ref1: a.Hash, Ref2: b.Hash})
	require.Error(t, err)
	assert.True(t, errs.IsDimensionMismatch(err))
	assert.Contains(t, err.Error(), "Embedding dimensions do not match")

	_, err = r.RegisterModel(model.Model{Name: "m", Dimensions: 3})
	require.NoError(t, err)
	_, err = r.Diff(context.Background(), DiffRequest{Ref1: a.Hash, Ref2: b.Hash, Model: "m"})
	require.Error(t, err)
	assert.True(t, errs.IsDimensionMismatch(err))
}

func TestDiffRejectsNonFiniteValues(t *testing.T) {
	r := newRepo(t)
	a := store(t, r, "a.txt", "m", 1, math.NaN(), 3)
	b := store(t, r, "b.txt", "m", 1, 2, 3)

	_, err := r.Diff(context.Background(), DiffRequest{Ref1: a.Hash, Ref2: b.Hash})
	require.Error(t, err)
	assert.True(t, errs.IsInvalidValues(err))

	_, err = r.Diff(context.Background(), DiffRequest{Ref1: b.Hash, Ref2: a.Hash})
	require.Error(t, err)
	assert.True(t, errs.IsInvalidValues(err))
}

func TestDiffSelfIsIdenticalEvenWithNonFiniteValues(t *testing.T) {
	r := newRepo(t)
	v := store(t, r, "a.txt", "m", math.NaN(), 0.2, math.Inf(1))

	res, err := r.Diff(context.Background(), DiffRequest{Ref1: v.Hash, Ref2: v.Hash})
	require.NoError(t, err)
	assert.True(t, res.Result.Identical)
	assert.Equal(t, 1.0, res.Result.Similarity())
}

func TestDiffAcrossModelsNeedsAMethod(t *testing.T) {
	r := newRepo(t)
	a := store(t, r, "a.txt", "model-a", 1, 0, 0)
	b := store(t, r, "b.txt", "model-b", 0.5, 0.5, 0)

	_, err := r.Diff(context.Background(), DiffRequest{Ref1: a.Hash, Ref2: b.Hash})
	require.Error(t, err)
	assert.True(t, errs.IsDimensionMismatch(err))
	assert.Contains(t, err.Error(), "--models M1,M2")

	res, err := r.Diff(context.Background(), DiffRequest{Ref1: a.Hash, Ref2: b.Hash, Model: "model-a"})
	require.NoError(t, err)
	assert.Equal(t, compare.MethodCosine, res.Result.Method)
	assert.InDelta(t, math.Sqrt(0.5), res.Result.Cosine, 1e-9)

	res, err = r.Diff(context.Background(), DiffRequest{
		Ref1: a.Hash, Ref2: b.Hash, ModelA: "model-a", ModelB: "model-b", Method: compare.MethodProjection,
	})
	require.NoError(t, err)
	assert.Equal(t, compare.MethodProjection, res.Result.Method)
}

func TestDiffReferenceErrors(t *testing.T) {
	r := newRepo(t)
	a := store(t, r, "a.txt", "m", 1, 2, 3)

	_, err := r.Diff(context.Background(), DiffRequest{Ref1: "abc", Ref2: a.Hash})
	require.Error(t, err)
	assert.True(t, errs.IsValidation(err))
	assert.Contains(t, err.Error(), "Hash too short")

	_, err = r.Diff(context.Background(), DiffRequest{Ref1: a.Hash, Ref2: "zzzzzz"})
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err))
	assert.Contains(t, err.Error(), "Embedding not found")
}

func crossModelRepo(t *testing.T) *Repo {
	t.Helper()
	r := newRepo(t)
	store(t, r, "s1.txt", "big", 1, 0, 0)
	store(t, r, "s2.txt", "big", 0, 1, 0)
	store(t, r, "s3.txt", "big", 0, 0, 1)
	store(t, r, "s4.txt", "big", 1, 1, 0)
	store(t, r, "s1.txt", "small", 1, 0)
	store(t, r, "s2.txt", "small", 0, 1)
	store(t, r, "s3.txt", "small", -1, 0)
	store(t, r, "s4.txt", "small", 1, 1)
	return r
}

func currentHash(t *testing.T, r *Repo, source, modelName string) string {
	t.Helper()
	st, err := r.Status(r.path(source), false)
	require.NoError(t, err)
	h, ok := st.Current[modelName]
	require.True(t, ok)
	return h
}

func TestDiffCrossModel(t *testing.T) {
	r := crossModelRepo(t)
	a := currentHash(t, r, "s1.txt", "big")
	b := currentHash(t, r, "s1.txt", "small")

	res, err := r.Diff(context.Background(), DiffRequest{
		Ref1: a, Ref2: b, ModelA: "big", ModelB: "small", Method: compare.MethodProjection,
	})
	require.NoError(t, err)
	assert.Equal(t, compare.MethodProjection, res.Result.Method)
	assert.Equal(t, 3, res.DimsA)
	assert.Equal(t, 2, res.DimsB)
	assert.GreaterOrEqual(t, res.Result.Similarity(), -1.0)
	assert.LessOrEqual(t, res.Result.Similarity(), 1.0)

	res, err = r.Diff(context.Background(), DiffRequest{
		Ref1: a, Ref2: b, ModelA: "big", ModelB: "small", Method: compare.MethodSemantic,
	})
	require.NoError(t, err)
	require.NotNil(t, res.Result.Semantic)
	assert.Equal(t, 4, res.Result.Refs)

	_, err = r.Diff(context.Background(), DiffRequest{
		Ref1: a, Ref2: b, ModelA: "big", ModelB: "small", Method: compare.MethodCosine,
	})
	require.Error(t, err)
	assert.True(t, errs.IsDimensionMismatch(err))
}

func TestDiffCrossModelNeedsBothModels(t *testing.T) {
	r := crossModelRepo(t)
	a := currentHash(t, r, "s1.txt", "big")
	b := currentHash(t, r, "s1.txt", "small")

	_, err := r.Diff(context.Background(), DiffRequest{Ref1: a, Ref2: b, ModelA: "big"})
	require.Error(t, err)
	assert.True(t, errs.IsValidation(err))
}

func TestDiffSemanticNeedsReferences(t *testing.T) {
	r := newRepo(t)
	a := store(t, r, "s1.txt", "big", 1, 0, 0)
	b := store(t, r, "s1.txt", "small", 1, 0)

	_, err := r.Diff(context.Background(), DiffRequest{
		Ref1: a.Hash, Ref2: b.Hash, ModelA: "big", ModelB: "small", Method: compare.MethodSemantic,
	})
	require.Error(t, err)
	assert.True(t, errs.IsValidation(err))
}
