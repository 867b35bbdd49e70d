package repo

import (
	"sort"
	"strings"

	"github.com/kamusis/embr/internal/errs"
	"github.com/kamusis/embr/internal/ledger"
)

// RollbackResult describes a rollback.
type RollbackResult struct {
	Source   string
	Model    string
	Hash     string
	Previous string
	// NoOp is set when the target already was current; nothing is recorded.
	NoOp bool
	// Seen reports whether the target appeared earlier in this chain.
	Seen bool
}

// Rollback points (source, model) back at an existing object. History is only
// appended to. model may be empty when the source tracks exactly one model.
func (r *Repo) Rollback(ref, path, modelName string) (*RollbackResult, error) {
	source, err := r.ResolveSource(path)
	if err != nil {
		return nil, err
	}
	hash, err := r.Objects.Resolve(ref)
	if err != nil {
		return nil, err
	}
	_, l, err := r.ActiveSet()
	if err != nil {
		return nil, err
	}
	cur, err := l.Status(source)
	if err != nil {
		return nil, err
	}
	if len(cur) == 0 {
		return nil, errs.New(errs.CodeRepoRollbackNotTracked, "not tracked: "+source, errs.FieldSource(source))
	}
	meta, err := r.Objects.Meta(hash)
	if err != nil {
		return nil, err
	}
	if modelName == "" {
		switch {
		case len(cur) == 1:
			for m := range cur {
				modelName = m
			}
		case cur[meta.Model] != "":
			modelName = meta.Model
		default:
			models := make([]string, 0, len(cur))
			for m := range cur {
				models = append(models, m)
			}
			sort.Strings(models)
			return nil, errs.New(errs.CodeRepoModelRequired,
				source+" is tracked under several models ("+strings.Join(models, ", ")+"); pass --model",
				errs.FieldSource(source))
		}
	}
	previous, ok := cur[modelName]
	if !ok {
		return nil, errs.New(errs.CodeRepoRollbackNotTracked,
			"not tracked: "+source+" has no embedding for model "+modelName,
			errs.FieldSource(source), errs.FieldModel(modelName))
	}
	reg, err := r.models()
	if err != nil {
		return nil, err
	}
	if err := reg.Validate(modelName, meta.Dims); err != nil {
		return nil, err
	}
	res := &RollbackResult{Source: source, Model: modelName, Hash: hash, Previous: previous}
	if previous == hash {
		res.NoOp = true
		res.Seen = true
		return res, nil
	}
	if res.Seen, err = l.Seen(source, modelName, hash); err != nil {
		return nil, err
	}
	if !res.Seen {
		r.log.Warn("rolling back to an object never recorded for this source", "source", source, "model", modelName, "hash", hash)
	}
	if _, err := l.Record(source, modelName, hash, ledger.ActionRollback); err != nil {
		return nil, err
	}
	return res, nil
}

// Remove untracks path (one model, or all of them) in the active set.
// Objects are never deleted here; gc reclaims unreferenced ones.
func (r *Repo) Remove(path, modelName string) (string, []string, error) {
	source, err := r.ResolveSource(path)
	if err != nil {
		return "", nil, err
	}
	_, l, err := r.ActiveSet()
	if err != nil {
		return "", nil, err
	}
	removed, err := l.Untrack(source, modelName)
	if err != nil {
		return source, nil, err
	}
	r.log.Debug("untracked", "source", source, "models", removed)
	return source, removed, nil
}
