package repo

import (
	"fmt"
	"sort"

	"github.com/kamusis/embr/internal/embedding"
	"github.com/kamusis/embr/internal/errs"
	"github.com/kamusis/embr/internal/ledger"
	"github.com/kamusis/embr/internal/object"
)

// MergeStrategy decides what happens when both sets point (source, model)
// at different objects.
type MergeStrategy string

const (
	MergeUnion  MergeStrategy = "union"
	MergeTheirs MergeStrategy = "theirs"
	MergeMean   MergeStrategy = "mean"
)

// ParseMergeStrategy validates a --strategy value. Empty means union.
func ParseMergeStrategy(s string) (MergeStrategy, error) {
	switch MergeStrategy(s) {
	case "", MergeUnion:
		return MergeUnion, nil
	case MergeTheirs, MergeMean:
		return MergeStrategy(s), nil
	}
	return "", errs.Errorf(errs.CodeRepoMergeInvalid, "unknown merge strategy %q (want union, theirs or mean)", s)
}

// MergeConflict is a pointer both sets disagree on.
type MergeConflict struct {
	Source string
	Model  string
	Ours   string
	Theirs string
	// Result is the hash the target ends up with.
	Result string
}

// MergeResult summarizes a set merge.
type MergeResult struct {
	From      string
	Into      string
	Strategy  MergeStrategy
	Added     int
	Conflicts []MergeConflict
	Entries   []ledger.Entry
}

// MergeSet brings from's current pointers into the active set. Pointers the
// active set lacks are added; conflicts follow strategy.
func (r *Repo) MergeSet(from string, strategy MergeStrategy) (*MergeResult, error) {
	if _, err := r.Sets.Get(from); err != nil {
		return nil, err
	}
	into, l, err := r.ActiveSet()
	if err != nil {
		return nil, err
	}
	if from == into {
		return nil, errs.New(errs.CodeRepoMergeInvalid, "cannot merge set "+from+" into itself", errs.FieldSet(from))
	}
	theirs, err := r.Sets.Ledger(from).ReadIndex()
	if err != nil {
		return nil, err
	}
	ours, err := l.ReadIndex()
	if err != nil {
		return nil, err
	}

	res := &MergeResult{From: from, Into: into, Strategy: strategy}
	var changes []ledger.Change
	for _, source := range theirs.Sources() {
		for _, m := range sortedKeys(theirs.Entries[source]) {
			their := theirs.Entries[source][m]
			our, ok := ours.Get(source, m)
			switch {
			case !ok:
				res.Added++
				changes = append(changes, ledger.Change{Source: source, Model: m, Hash: their, Action: ledger.ActionMerge})
				continue
			case our == their:
				continue
			}
			c := MergeConflict{Source: source, Model: m, Ours: our, Theirs: their, Result: our}
			switch strategy {
			case MergeTheirs:
				c.Result = their
			case MergeMean:
				if c.Result, err = r.average(source, m, our, their); err != nil {
					return nil, err
				}
			}
			res.Conflicts = append(res.Conflicts, c)
			if c.Result != our {
				changes = append(changes, ledger.Change{Source: source, Model: m, Hash: c.Result, Action: ledger.ActionMerge})
			}
		}
	}
	if res.Entries, err = l.Apply(changes); err != nil {
		return nil, err
	}
	r.log.Debug("sets merged", "from", from, "into", into, "strategy", strategy,
		"added", res.Added, "conflicts", len(res.Conflicts))
	return res, nil
}

// average stores the element-wise mean of two objects. int8 inputs yield a
// float32 result since the mean is not integral.
func (r *Repo) average(source, model, a, b string) (string, error) {
	ea, _, err := r.Objects.Get(a)
	if err != nil {
		return "", err
	}
	eb, _, err := r.Objects.Get(b)
	if err != nil {
		return "", err
	}
	if ea.Dims() != eb.Dims() {
		return "", errs.New(errs.CodeCompareDimMismatch,
			fmt.Sprintf("Embedding dimensions do not match: %d vs %d", ea.Dims(), eb.Dims()),
			errs.FieldSource(source), errs.FieldModel(model))
	}
	values := make([]float64, ea.Dims())
	for i := range values {
		values[i] = (ea.Values[i] + eb.Values[i]) / 2
	}
	dtype := embedding.Float32
	if ea.DType == embedding.Float64 || eb.DType == embedding.Float64 {
		dtype = embedding.Float64
	}
	var attrs object.Attributes
	attrs.Set("merged_from", a+","+b)
	hash, _, err := r.Objects.Put(embedding.New(values, dtype), object.PutInfo{
		Source:     source,
		Model:      model,
		Parent:     a,
		Attributes: attrs,
	})
	return hash, err
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
