package repo

import (
	"context"

	"github.com/kamusis/embr/internal/compare"
	"github.com/kamusis/embr/internal/embedding"
	"github.com/kamusis/embr/internal/errs"
	"github.com/kamusis/embr/internal/ledger"
	"github.com/kamusis/embr/internal/object"
	"golang.org/x/sync/errgroup"
)

// loadParallelism bounds concurrent object reads.
const loadParallelism = 8

// DiffRequest names two objects to compare.
type DiffRequest struct {
	Ref1, Ref2 string
	// Model, when set, is the model both objects are expected to belong to.
	Model string
	// ModelA and ModelB request a cross-model comparison.
	ModelA, ModelB string
	// Method applies to cross-model comparisons; empty uses diff.method.
	Method compare.Method
	// K is the neighbour count; 0 uses diff.neighbors.
	K int
}

// DiffResult is a comparison plus what was compared.
type DiffResult struct {
	HashA, HashB   string
	ModelA, ModelB string
	DimsA, DimsB   int
	Result         compare.Result
}

// Diff resolves both references and compares the objects. Invalid values and
// incompatible dimensions are errors, never scores.
func (r *Repo) Diff(ctx context.Context, req DiffRequest) (*DiffResult, error) {
	hashes, err := r.Objects.List()
	if err != nil {
		return nil, err
	}
	table := object.NewTable(hashes)
	h1, err := table.Resolve(req.Ref1)
	if err != nil {
		return nil, err
	}
	h2, err := table.Resolve(req.Ref2)
	if err != nil {
		return nil, err
	}
	a, metaA, err := r.Objects.Get(h1)
	if err != nil {
		return nil, err
	}
	b, metaB, err := r.Objects.Get(h2)
	if err != nil {
		return nil, err
	}
	cross := req.ModelA != "" || req.ModelB != ""
	res := &DiffResult{HashA: h1, HashB: h2, DimsA: a.Dims(), DimsB: b.Dims()}
	res.ModelA = firstNonEmpty(req.ModelA, req.Model, metaA.Model)
	res.ModelB = firstNonEmpty(req.ModelB, req.Model, metaB.Model)

	method := compare.MethodCosine
	if cross {
		if req.ModelA == "" || req.ModelB == "" {
			return nil, errs.New(errs.CodeInputInvalid, "--models takes two model names: M1,M2")
		}
		method = req.Method
		if method == "" {
			if method, err = compare.ParseMethod(r.Config.Diff.Method); err != nil {
				return nil, err
			}
		}
	}
	if h1 == h2 {
		res.Result = compare.Identity(method)
		return res, nil
	}
	for _, e := range []*embedding.Embedding{a, b} {
		if err := embedding.CheckFinite(e.Values); err != nil {
			return nil, err
		}
	}

	reg, err := r.models()
	if err != nil {
		return nil, err
	}
	if err := reg.Validate(res.ModelA, a.Dims()); err != nil {
		return nil, err
	}
	if err := reg.Validate(res.ModelB, b.Dims()); err != nil {
		return nil, err
	}

	_, l, err := r.ActiveSet()
	if err != nil {
		return nil, err
	}
	if !cross {
		if a.Dims() != b.Dims() {
			return nil, errs.Errorf(errs.CodeCompareDimMismatch,
				"Embedding dimensions do not match: %s has %d, %s has %d (use --models M1,M2 to compare across models)",
				short(h1), a.Dims(), short(h2), b.Dims())
		}
		if res.ModelA != res.ModelB {
			return nil, errs.Errorf(errs.CodeCompareDimMismatch,
				"%s was stored under %s and %s under %s (use --models M1,M2 to compare across models, or --model M to compare them as one model)",
				short(h1), res.ModelA, short(h2), res.ModelB)
		}
		result, err := compare.Compare(a.Values, b.Values)
		if err != nil {
			return nil, err
		}
		corpus, err := r.corpus(ctx, l, res.ModelA, a.Dims())
		if err != nil {
			return nil, err
		}
		k := req.K
		if k <= 0 {
			k = r.Config.Diff.Neighbors
		}
		score, used, err := compare.PairNeighborhood(a.Values, b.Values, corpus, k)
		if err != nil {
			return nil, err
		}
		if used > 0 {
			result.Neighborhood = &score
			result.NeighborhoodK = used
		}
		res.Result = result
		return res, nil
	}

	refs, err := r.referencePairs(ctx, l, req.ModelA, req.ModelB)
	if err != nil {
		return nil, err
	}
	result, err := compare.CompareCrossModel(a.Values, b.Values, req.ModelA, req.ModelB, method, refs)
	if err != nil {
		return nil, err
	}
	res.Result = result
	return res, nil
}

// corpus loads the current embeddings of model in the set, skipping objects
// of a different dimension.
func (r *Repo) corpus(ctx context.Context, l *ledger.Ledger, model string, dims int) ([][]float64, error) {
	idx, err := l.ReadIndex()
	if err != nil {
		return nil, err
	}
	var hashes []string
	seen := map[string]bool{}
	for _, source := range idx.Sources() {
		if h, ok := idx.Get(source, model); ok && !seen[h] {
			seen[h] = true
			hashes = append(hashes, h)
		}
	}
	loaded, err := r.loadAll(ctx, hashes)
	if err != nil {
		return nil, err
	}
	out := make([][]float64, 0, len(loaded))
	for _, e := range loaded {
		if e.Dims() == dims {
			out = append(out, e.Values)
		}
	}
	return out, nil
}

// referencePairs loads the sources tracked under both models in the set.
func (r *Repo) referencePairs(ctx context.Context, l *ledger.Ledger, modelA, modelB string) ([]compare.Pair, error) {
	if modelA == modelB {
		return nil, nil
	}
	idx, err := l.ReadIndex()
	if err != nil {
		return nil, err
	}
	var hashes []string
	for _, source := range idx.Sources() {
		ha, okA := idx.Get(source, modelA)
		hb, okB := idx.Get(source, modelB)
		if okA && okB {
			hashes = append(hashes, ha, hb)
		}
	}
	loaded, err := r.loadAll(ctx, hashes)
	if err != nil {
		return nil, err
	}
	pairs := make([]compare.Pair, 0, len(loaded)/2)
	for i := 0; i+1 < len(loaded); i += 2 {
		pairs = append(pairs, compare.Pair{A: loaded[i].Values, B: loaded[i+1].Values})
	}
	return pairs, nil
}

// loadAll reads objects concurrently, preserving order.
func (r *Repo) loadAll(ctx context.Context, hashes []string) ([]*embedding.Embedding, error) {
	out := make([]*embedding.Embedding, len(hashes))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(loadParallelism)
	for i, h := range hashes {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			e, _, err := r.Objects.Get(h)
			if err != nil {
				return err
			}
			out[i] = e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func short(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
