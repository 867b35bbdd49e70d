package repo

import (
	"context"

	"github.com/kamusis/embr/internal/ledger"
	"golang.org/x/sync/errgroup"
)

// Problem is one finding of Verify.
type Problem struct {
	Kind   string
	Set    string
	Detail string
}

// VerifyReport summarizes repository health.
type VerifyReport struct {
	Objects  int
	Sets     int
	Problems []Problem
}

// Verify checks every object against its hash, every set's history for
// readability, and every index pointer for a backing object matching the
// history replay.
func (r *Repo) Verify(ctx context.Context) (*VerifyReport, error) {
	hashes, err := r.Objects.List()
	if err != nil {
		return nil, err
	}
	rep := &VerifyReport{Objects: len(hashes)}
	objectErrs := make([]error, len(hashes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(loadParallelism)
	for i, h := range hashes {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			_, _, objectErrs[i] = r.Objects.Get(h)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i, err := range objectErrs {
		if err != nil {
			rep.Problems = append(rep.Problems, Problem{Kind: "object", Detail: hashes[i] + ": " + err.Error()})
		}
	}

	all, err := r.Sets.List()
	if err != nil {
		return nil, err
	}
	rep.Sets = len(all)
	for _, s := range all {
		rep.Problems = append(rep.Problems, r.verifySet(s.Name, r.Sets.Ledger(s.Name))...)
	}
	return rep, nil
}

func (r *Repo) verifySet(name string, l *ledger.Ledger) []Problem {
	var out []Problem
	hist, err := l.History()
	if err != nil {
		return append(out, Problem{Kind: "history", Set: name, Detail: err.Error()})
	}
	idx, err := l.ReadIndex()
	if err != nil {
		return append(out, Problem{Kind: "index", Set: name, Detail: err.Error()})
	}
	for _, source := range idx.Sources() {
		for m, h := range idx.Entries[source] {
			if !r.Objects.Has(h) {
				out = append(out, Problem{Kind: "index", Set: name,
					Detail: source + " (" + m + ") points at missing object " + h})
			}
		}
	}
	replayed := ledger.Replay(hist)
	if !sameIndex(idx, replayed) {
		out = append(out, Problem{Kind: "index", Set: name,
			Detail: "index differs from history replay; run embr doctor --rebuild-index"})
	}
	return out
}

func sameIndex(a, b *ledger.Index) bool {
	if len(a.Entries) != len(b.Entries) {
		return false
	}
	for source, models := range a.Entries {
		other := b.Entries[source]
		if len(other) != len(models) {
			return false
		}
		for m, h := range models {
			if other[m] != h {
				return false
			}
		}
	}
	return true
}

// RebuildIndex replays the active set's history into its index.
func (r *Repo) RebuildIndex() (string, *ledger.Index, error) {
	name, l, err := r.ActiveSet()
	if err != nil {
		return "", nil, err
	}
	idx, err := l.Rebuild()
	if err != nil {
		return name, nil, err
	}
	return name, idx, nil
}
