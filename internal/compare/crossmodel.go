package compare

import (
	"github.com/kamusis/embr/internal/errs"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Pair is one item embedded by both models: A in the first model's space,
// B in the second's.
type Pair struct {
	A []float64
	B []float64
}

// MinSemanticRefs is the fewest reference pairs a rank correlation needs.
const MinSemanticRefs = 3

// CompareCrossModel scores a (from modelA) against b (from modelB). refs are
// items embedded by both models; pairs with the wrong dimensions are ignored.
func CompareCrossModel(a, b []float64, modelA, modelB string, method Method, refs []Pair) (Result, error) {
	if len(a) == 0 || len(b) == 0 {
		return Result{}, errs.New(errs.CodeCompareInvalidInput, "cannot compare empty embeddings")
	}
	if err := checkFinite(a); err != nil {
		return Result{}, err
	}
	if err := checkFinite(b); err != nil {
		return Result{}, err
	}
	usable := usablePairs(refs, len(a), len(b))

	switch method {
	case MethodCosine:
		if len(a) != len(b) {
			return Result{}, errs.Errorf(errs.CodeCompareDimMismatch,
				"Embedding dimensions do not match: %s has %d, %s has %d (use --method projection or semantic)",
				modelA, len(a), modelB, len(b))
		}
		return Compare(a, b)
	case MethodProjection:
		return project(a, b, usable)
	case MethodSemantic:
		return semantic(a, b, usable)
	default:
		return Result{}, errs.Errorf(errs.CodeCompareInvalidInput, "unknown comparison method %q", method)
	}
}

func usablePairs(refs []Pair, dimA, dimB int) []Pair {
	var out []Pair
	for _, p := range refs {
		if len(p.A) != dimA || len(p.B) != dimB || checkFinite(p.A) != nil || checkFinite(p.B) != nil {
			continue
		}
		out = append(out, p)
	}
	return out
}

// project maps a into b's space and scores it there. With reference pairs the
// map is a ridge regression learnt in dual form:
//
//	â = Yᵀ (XXᵀ + λI)⁻¹ X a
//
// where the rows of X and Y are the pairs' A and B vectors. Without pairs,
// or when a has no component the pairs can express, both vectors are cut to
// their shared leading dimensions.
func project(a, b []float64, refs []Pair) (Result, error) {
	if len(refs) > 0 {
		if mapped, ok := ridgeMap(a, refs, len(b)); ok {
			cos, err := Cosine(mapped, b)
			if err != nil {
				return Result{}, err
			}
			res := Result{Method: MethodProjection, Cosine: cos, Euclidean: euclidean(mapped, b), Refs: len(refs)}
			if len(refs) >= MinSemanticRefs {
				if rho, err := profileCorrelation(a, b, refs); err == nil {
					res.Semantic = &rho
				}
			}
			return res, nil
		}
	}
	d := min(len(a), len(b))
	ta, tb := a[:d], b[:d]
	cos, err := Cosine(ta, tb)
	if err != nil {
		return Result{}, err
	}
	return Result{Method: MethodProjection, Cosine: cos, Euclidean: euclidean(ta, tb)}, nil
}

func ridgeMap(a []float64, refs []Pair, dimB int) ([]float64, bool) {
	n := len(refs)
	x := mat.NewDense(n, len(a), nil)
	y := mat.NewDense(n, dimB, nil)
	for i, p := range refs {
		x.SetRow(i, p.A)
		y.SetRow(i, p.B)
	}

	var gram mat.SymDense
	gram.SymOuterK(1, x)
	lambda := 1e-3
	if trace := mat.Trace(&gram); trace > 0 {
		lambda *= trace / float64(n)
	}
	for i := 0; i < n; i++ {
		gram.SetSym(i, i, gram.At(i, i)+lambda)
	}

	rhs := mat.NewVecDense(n, nil)
	rhs.MulVec(x, mat.NewVecDense(len(a), a))
	alpha, ok := solve(&gram, rhs)
	if !ok {
		return nil, false
	}
	out := mat.NewVecDense(dimB, nil)
	out.MulVec(y.T(), alpha)
	if mat.Norm(out, 2) == 0 {
		return nil, false
	}
	return out.RawVector().Data, true
}

// solve returns x with m·x = rhs for a positive definite m.
func solve(m *mat.SymDense, rhs mat.Vector) (*mat.VecDense, bool) {
	var chol mat.Cholesky
	if !chol.Factorize(m) {
		return nil, false
	}
	var x mat.VecDense
	if err := chol.SolveVecTo(&x, rhs); err != nil {
		return nil, false
	}
	return &x, true
}

// semantic compares the two vectors through their cosine profiles against
// each model's reference vectors. The headline score is the Spearman rank
// correlation of the profiles.
func semantic(a, b []float64, refs []Pair) (Result, error) {
	if len(refs) < MinSemanticRefs {
		return Result{}, errs.Errorf(errs.CodeCompareInvalidInput,
			"semantic comparison needs at least %d sources embedded by both models, found %d",
			MinSemanticRefs, len(refs))
	}
	pa, pb := profiles(a, b, refs)
	rho, err := spearman(pa, pb)
	if err != nil {
		return Result{}, err
	}
	res := Result{Method: MethodSemantic, Semantic: &rho, Refs: len(refs), Euclidean: euclidean(pa, pb)}
	if na, nb := norm(pa), norm(pb); na > 0 && nb > 0 {
		res.Cosine = clamp(dot(pa, pb) / (na * nb))
	}
	return res, nil
}

func profileCorrelation(a, b []float64, refs []Pair) (float64, error) {
	pa, pb := profiles(a, b, refs)
	return spearman(pa, pb)
}

func profiles(a, b []float64, refs []Pair) ([]float64, []float64) {
	pa := make([]float64, len(refs))
	pb := make([]float64, len(refs))
	for i, p := range refs {
		pa[i] = similarity(a, p.A)
		pb[i] = similarity(b, p.B)
	}
	return pa, pb
}

// spearman is the Pearson correlation of average ranks.
func spearman(x, y []float64) (float64, error) {
	rx, ry := ranks(x), ranks(y)
	if stat.Variance(rx, nil) == 0 || stat.Variance(ry, nil) == 0 {
		return 0, errs.New(errs.CodeCompareInvalidInput,
			"rank correlation undefined: a similarity profile is constant")
	}
	return clamp(stat.Correlation(rx, ry, nil)), nil
}

// ranks assigns 1-based ranks, averaging ties.
func ranks(v []float64) []float64 {
	sorted := append([]float64(nil), v...)
	idx := make([]int, len(v))
	floats.Argsort(sorted, idx)
	out := make([]float64, len(v))
	for i := 0; i < len(idx); {
		j := i
		for j+1 < len(idx) && sorted[j+1] == sorted[i] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			out[idx[k]] = avg
		}
		i = j + 1
	}
	return out
}
