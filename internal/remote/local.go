package remote

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kamusis/embr/internal/errs"
	"github.com/kamusis/embr/internal/fsutil"
)

// Local is a Transport over a directory, for file:// remotes.
type Local struct {
	root string
}

// NewLocal returns a transport rooted at root.
func NewLocal(root string) *Local {
	return &Local{root: root}
}

func (l *Local) path(name string) string {
	return filepath.Join(l.root, filepath.FromSlash(name))
}

func (l *Local) Put(_ context.Context, name string, data []byte) error {
	if err := fsutil.WriteFileAtomic(l.path(name), data, 0o644); err != nil {
		return errs.Wrap(err, errs.CodeRepoRemoteFailure, "cannot write to remote", errs.FieldPath(name))
	}
	return nil
}

func (l *Local) Get(_ context.Context, name string) ([]byte, error) {
	data, err := os.ReadFile(l.path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, notFound(name)
		}
		return nil, errs.Errorf(errs.CodeRepoRemoteFailure, "cannot read %s from remote: %w", name, err)
	}
	return data, nil
}

func (l *Local) List(_ context.Context, prefix string) ([]string, error) {
	var names []string
	err := filepath.WalkDir(l.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() || fsutil.IsTempName(d.Name()) {
			return nil
		}
		rel, err := filepath.Rel(l.root, p)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
		return nil
	})
	if err != nil {
		return nil, errs.Errorf(errs.CodeRepoRemoteFailure, "cannot list remote %s: %w", l.root, err)
	}
	sort.Strings(names)
	return names, nil
}
