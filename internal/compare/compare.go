// Package compare scores the similarity of embeddings, within one model's
// space and across models.
package compare

import (
	"math"

	"github.com/kamusis/embr/internal/errs"
	"gonum.org/v1/gonum/floats"
)

// Method selects how two embeddings are compared.
type Method string

const (
	MethodCosine     Method = "cosine"
	MethodProjection Method = "projection"
	MethodSemantic   Method = "semantic"
)

// ParseMethod parses a --method value.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case MethodCosine, MethodProjection, MethodSemantic:
		return Method(s), nil
	default:
		return "", errs.Errorf(errs.CodeCompareInvalidInput,
			"unknown comparison method %q (want cosine, projection or semantic)", s)
	}
}

// Result is the outcome of one comparison. Optional scores are nil when the
// inputs did not allow computing them.
type Result struct {
	Method       Method
	Cosine       float64
	Euclidean    float64
	Neighborhood *float64
	// NeighborhoodK is the neighbour count behind Neighborhood.
	NeighborhoodK int
	Semantic      *float64
	// Refs is the number of reference pairs a cross-model method used.
	Refs      int
	Identical bool
}

// Similarity is the headline score shown to users, in [-1, 1].
func (r Result) Similarity() float64 {
	if r.Method == MethodSemantic && r.Semantic != nil {
		return *r.Semantic
	}
	return r.Cosine
}

// Identity is the exact result of comparing an object with itself.
func Identity(method Method) Result {
	one := 1.0
	semantic := 1.0
	return Result{
		Method:       method,
		Cosine:       1,
		Euclidean:    0,
		Neighborhood: &one,
		Semantic:     &semantic,
		Identical:    true,
	}
}

func checkFinite(v []float64) error {
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return errs.Errorf(errs.CodeCompareInvalidValues, "Invalid embedding values: %v at index %d", x, i)
		}
	}
	return nil
}

func checkPair(a, b []float64) error {
	if len(a) == 0 || len(b) == 0 {
		return errs.New(errs.CodeCompareInvalidInput, "cannot compare empty embeddings")
	}
	if len(a) != len(b) {
		return errs.Errorf(errs.CodeCompareDimMismatch,
			"Embedding dimensions do not match: %d vs %d", len(a), len(b))
	}
	if err := checkFinite(a); err != nil {
		return err
	}
	return checkFinite(b)
}

func dot(a, b []float64) float64 { return floats.Dot(a, b) }

func norm(a []float64) float64 { return floats.Norm(a, 2) }

// Cosine returns dot(a,b)/(|a||b|), clamped to [-1, 1].
func Cosine(a, b []float64) (float64, error) {
	if err := checkPair(a, b); err != nil {
		return 0, err
	}
	na, nb := norm(a), norm(b)
	if na == 0 || nb == 0 {
		return 0, errs.New(errs.CodeCompareInvalidValues, "Invalid embedding values: zero-magnitude vector")
	}
	return clamp(dot(a, b) / (na * nb)), nil
}

// Euclidean returns the L2 distance between a and b.
func Euclidean(a, b []float64) (float64, error) {
	if err := checkPair(a, b); err != nil {
		return 0, err
	}
	return euclidean(a, b), nil
}

func euclidean(a, b []float64) float64 { return floats.Distance(a, b, 2) }

// Compare scores two embeddings of the same model.
func Compare(a, b []float64) (Result, error) {
	cos, err := Cosine(a, b)
	if err != nil {
		return Result{}, err
	}
	return Result{Method: MethodCosine, Cosine: cos, Euclidean: euclidean(a, b)}, nil
}

func clamp(x float64) float64 {
	switch {
	case x > 1:
		return 1
	case x < -1:
		return -1
	default:
		return x
	}
}

// similarity is cosine without validation, used for ranking; zero vectors
// score 0 against everything.
func similarity(a, b []float64) float64 {
	na, nb := norm(a), norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return dot(a, b) / (na * nb)
}

func equal(a, b []float64) bool { return floats.Equal(a, b) }
