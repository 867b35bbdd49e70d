package compare

import (
	"sort"

	"github.com/kamusis/embr/internal/errs"
)

// NeighborhoodPreservation measures how much local structure survives a
// mapping. before[i] and after[i] are the same item in two spaces; the score
// is the mean overlap of each item's k nearest neighbours (by cosine) in the
// two spaces, in [0, 1].
func NeighborhoodPreservation(before, after [][]float64, k int) (float64, error) {
	if len(before) != len(after) {
		return 0, errs.Errorf(errs.CodeCompareInvalidInput,
			"neighbourhood sets differ in size: %d vs %d", len(before), len(after))
	}
	n := len(before)
	if n < 2 {
		return 0, errs.New(errs.CodeCompareInvalidInput, "neighbourhood preservation needs at least 2 items")
	}
	if k <= 0 {
		return 0, errs.Errorf(errs.CodeCompareInvalidInput, "neighbour count must be positive, got %d", k)
	}
	if k > n-1 {
		k = n - 1
	}
	for _, space := range [][][]float64{before, after} {
		for _, v := range space {
			if err := checkFinite(v); err != nil {
				return 0, err
			}
			if len(v) != len(space[0]) {
				return 0, errs.Errorf(errs.CodeCompareDimMismatch,
					"Embedding dimensions do not match: %d vs %d", len(v), len(space[0]))
			}
		}
	}
	var total float64
	for i := 0; i < n; i++ {
		nb := nearest(before[i], before, k, i)
		na := nearest(after[i], after, k, i)
		total += overlap(nb, na, k)
	}
	return total / float64(n), nil
}

// PairNeighborhood is the pairwise form used by diff: the overlap between the
// k nearest corpus members of a and of b. Corpus members identical to a or b
// are ignored. Identical inputs score 1 without consulting the corpus. The
// returned k is 0 when the corpus is too small to score.
func PairNeighborhood(a, b []float64, corpus [][]float64, k int) (float64, int, error) {
	if err := checkPair(a, b); err != nil {
		return 0, 0, err
	}
	if equal(a, b) {
		return 1, k, nil
	}
	var pool [][]float64
	for _, v := range corpus {
		if len(v) != len(a) || equal(v, a) || equal(v, b) || checkFinite(v) != nil {
			continue
		}
		pool = append(pool, v)
	}
	if k > len(pool) {
		k = len(pool)
	}
	if k <= 0 {
		return 0, 0, nil
	}
	na := nearest(a, pool, k, -1)
	nb := nearest(b, pool, k, -1)
	return overlap(na, nb, k), k, nil
}

// nearest returns the indices of the k members of pool most similar to q,
// skipping index skip. Ties keep pool order.
func nearest(q []float64, pool [][]float64, k, skip int) []int {
	type scored struct {
		idx int
		sim float64
	}
	cand := make([]scored, 0, len(pool))
	for i, v := range pool {
		if i == skip {
			continue
		}
		cand = append(cand, scored{idx: i, sim: similarity(q, v)})
	}
	sort.SliceStable(cand, func(i, j int) bool { return cand[i].sim > cand[j].sim })
	if len(cand) > k {
		cand = cand[:k]
	}
	out := make([]int, len(cand))
	for i, c := range cand {
		out[i] = c.idx
	}
	return out
}

func overlap(a, b []int, k int) float64 {
	set := make(map[int]struct{}, len(a))
	for _, i := range a {
		set[i] = struct{}{}
	}
	shared := 0
	for _, i := range b {
		if _, ok := set[i]; ok {
			shared++
		}
	}
	return float64(shared) / float64(k)
}
