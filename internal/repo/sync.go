package repo

import (
	"context"
	"os"
	"sort"

	"github.com/kamusis/embr/internal/config"
	"github.com/kamusis/embr/internal/errs"
	"github.com/kamusis/embr/internal/ledger"
	"github.com/kamusis/embr/internal/remote"
	"golang.org/x/sync/errgroup"
)

// DefaultRemote is used when push or pull names no remote.
const DefaultRemote = "origin"

// AddRemote records a named remote in the repository config.
func (r *Repo) AddRemote(name, rawURL string) error {
	if err := r.Config.Set("remotes."+name+".url", rawURL); err != nil {
		return err
	}
	return r.SaveConfig()
}

// RemoveRemote deletes a named remote from the config.
func (r *Repo) RemoveRemote(name string) error {
	if _, ok := r.Config.Remotes[name]; !ok {
		return errs.New(errs.CodeRepoRemoteNotFound, "no such remote: "+name)
	}
	next := make(map[string]config.RemoteConfig, len(r.Config.Remotes))
	for k, v := range r.Config.Remotes {
		if k != name {
			next[k] = v
		}
	}
	r.Config.Remotes = next
	return r.SaveConfig()
}

// Remotes returns the configured remote names in sorted order.
func (r *Repo) Remotes() []string {
	names := make([]string, 0, len(r.Config.Remotes))
	for name := range r.Config.Remotes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Repo) transport(name string) (string, remote.Transport, error) {
	if name == "" {
		name = DefaultRemote
	}
	cfg, ok := r.Config.Remotes[name]
	if !ok {
		return name, nil, errs.New(errs.CodeRepoRemoteNotFound,
			"no such remote: "+name+"; add one with embr remote add")
	}
	t, err := remote.Open(cfg, r.Dir)
	return name, t, err
}

// SyncResult summarizes a push or pull.
type SyncResult struct {
	Remote string
	Set    string
	// Objects is the number of objects transferred.
	Objects int
	// UpToDate is set when pull found nothing new.
	UpToDate bool
}

// Push uploads the objects the remote lacks, then the active set's history
// and index. Sidecars go before blobs so a remote object is complete once its
// blob is visible.
func (r *Repo) Push(ctx context.Context, name string) (*SyncResult, error) {
	name, t, err := r.transport(name)
	if err != nil {
		return nil, err
	}
	set, l, err := r.ActiveSet()
	if err != nil {
		return nil, err
	}
	remoteNames, err := t.List(ctx, "objects/")
	if err != nil {
		return nil, err
	}
	have := make(map[string]struct{}, len(remoteNames))
	for _, n := range remoteNames {
		have[n] = struct{}{}
	}
	local, err := r.Objects.List()
	if err != nil {
		return nil, err
	}
	var missing []string
	for _, h := range local {
		if _, ok := have[remote.ObjectName(h, ".bin")]; !ok {
			missing = append(missing, h)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(loadParallelism)
	for _, h := range missing {
		g.Go(func() error {
			blob, meta, err := r.Objects.ReadFiles(h)
			if err != nil {
				return err
			}
			if err := t.Put(gctx, remote.ObjectName(h, ".meta"), meta); err != nil {
				return err
			}
			return t.Put(gctx, remote.ObjectName(h, ".bin"), blob)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// History before index, matching the local write order.
	for _, f := range []struct{ name, path string }{
		{ledger.HistoryFile, l.HistoryPath()},
		{ledger.IndexFile, l.IndexPath()},
	} {
		data, err := os.ReadFile(f.path)
		if err != nil && !os.IsNotExist(err) {
			return nil, errs.Errorf(errs.CodeRepoIOFailure, "cannot read %s: %w", f.path, err)
		}
		if err := t.Put(ctx, remote.SetFile(set, f.name), data); err != nil {
			return nil, err
		}
	}
	r.log.Debug("pushed", "remote", name, "set", set, "objects", len(missing))
	return &SyncResult{Remote: name, Set: set, Objects: len(missing)}, nil
}

// Pull downloads the active set's history from the remote together with
// every object it references, then adopts it. Adoption requires the local
// history to be empty or a prefix of the remote one, unless force is set.
func (r *Repo) Pull(ctx context.Context, name string, force bool) (*SyncResult, error) {
	name, t, err := r.transport(name)
	if err != nil {
		return nil, err
	}
	set, l, err := r.ActiveSet()
	if err != nil {
		return nil, err
	}
	data, err := t.Get(ctx, remote.SetFile(set, ledger.HistoryFile))
	if err != nil {
		if errs.IsNotFound(err) {
			return nil, errs.New(errs.CodeRepoRemoteNotFound,
				"remote "+name+" has no set "+set, errs.FieldSet(set))
		}
		return nil, err
	}
	theirs, _, err := ledger.ParseHistory(data)
	if err != nil {
		return nil, err
	}
	ours, err := l.History()
	if err != nil {
		return nil, err
	}
	res := &SyncResult{Remote: name, Set: set}
	if !force && !isPrefix(ours, theirs) {
		return nil, errs.New(errs.CodeRepoSetNotEmpty,
			"local set "+set+" has history the remote lacks; push first or pull --force", errs.FieldSet(set))
	}
	if len(ours) == len(theirs) && !force {
		res.UpToDate = true
		return res, nil
	}

	var missing []string
	for _, h := range referencedBy(theirs) {
		if !r.Objects.Has(h) {
			missing = append(missing, h)
		}
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(loadParallelism)
	for _, h := range missing {
		g.Go(func() error {
			meta, err := t.Get(gctx, remote.ObjectName(h, ".meta"))
			if err != nil {
				return err
			}
			blob, err := t.Get(gctx, remote.ObjectName(h, ".bin"))
			if err != nil {
				return err
			}
			return r.Objects.Import(h, blob, meta)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	adopted, err := l.ReplaceIf(theirs, func(current []ledger.Entry) bool {
		return force || isPrefix(current, theirs)
	})
	if err != nil {
		return nil, err
	}
	if !adopted {
		return nil, errs.New(errs.CodeRepoSetNotEmpty,
			"local set "+set+" changed during pull; pull again", errs.FieldSet(set))
	}
	res.Objects = len(missing)
	r.log.Debug("pulled", "remote", name, "set", set, "objects", len(missing), "entries", len(theirs))
	return res, nil
}

func isPrefix(prefix, full []ledger.Entry) bool {
	if len(prefix) > len(full) {
		return false
	}
	for i := range prefix {
		if prefix[i].ID != full[i].ID {
			return false
		}
	}
	return true
}

func referencedBy(entries []ledger.Entry) []string {
	seen := map[string]struct{}{}
	for _, e := range entries {
		for _, h := range []string{e.Hash, e.Parent} {
			if h != "" {
				seen[h] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}
