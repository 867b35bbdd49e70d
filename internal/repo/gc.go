package repo

import (
	"time"

	"github.com/kamusis/embr/internal/errs"
)

// DefaultPrune is how old an unreferenced object must be before gc deletes it.
const DefaultPrune = 14 * 24 * time.Hour

// GCOptions control garbage collection.
type GCOptions struct {
	// Prune is the minimum age of a deletable object; 0 deletes regardless.
	Prune  time.Duration
	DryRun bool
}

// GCReport lists what gc removed (or would remove).
type GCReport struct {
	Removed []string
	Swept   []string
	Kept    int
	// Young counts unreferenced objects spared by the prune window.
	Young int
}

// GC deletes objects that no set's index or history references. The prune
// window protects objects a concurrent store has written but not recorded yet.
func (r *Repo) GC(opts GCOptions) (*GCReport, error) {
	refs, err := r.references()
	if err != nil {
		return nil, err
	}
	hashes, err := r.Objects.List()
	if err != nil {
		return nil, err
	}
	cutoff := time.Now().Add(-opts.Prune)
	rep := &GCReport{}
	for _, h := range hashes {
		if _, ok := refs[h]; ok {
			rep.Kept++
			continue
		}
		info, err := r.Objects.Stat(h)
		if err != nil {
			return nil, err
		}
		if opts.Prune > 0 && info.ModTime.After(cutoff) {
			rep.Young++
			continue
		}
		rep.Removed = append(rep.Removed, h)
		if opts.DryRun {
			continue
		}
		if err := r.Objects.Remove(h); err != nil {
			return rep, err
		}
		r.log.Debug("object removed", "hash", h)
	}
	if rep.Swept, err = r.Objects.Sweep(cutoff, opts.DryRun); err != nil {
		return rep, err
	}
	return rep, nil
}

func (r *Repo) references() (map[string]struct{}, error) {
	all, err := r.Sets.List()
	if err != nil {
		return nil, err
	}
	refs := map[string]struct{}{}
	for _, s := range all {
		set, err := r.Sets.Ledger(s.Name).Referenced()
		if err != nil {
			return nil, errs.Wrap(err, errs.CodeRepoIOFailure, "cannot read set "+s.Name, errs.FieldSet(s.Name))
		}
		for h := range set {
			refs[h] = struct{}{}
		}
	}
	return refs, nil
}
