// Package repo is the embedding repository engine. It ties the object pool,
// model registry, set ledgers and comparator together behind the operations
// the CLI exposes.
package repo

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/kamusis/embr/internal/config"
	"github.com/kamusis/embr/internal/errs"
	"github.com/kamusis/embr/internal/fsutil"
	"github.com/kamusis/embr/internal/ledger"
	"github.com/kamusis/embr/internal/model"
	"github.com/kamusis/embr/internal/object"
	"github.com/kamusis/embr/internal/sets"
	"golang.org/x/text/unicode/norm"
)

const (
	// DirName is the repository marker directory.
	DirName = ".embr"

	objectsDir   = "objects"
	modelsFile   = "models.yaml"
	repoLockFile = "repo.lock"
)

// Repo is an opened embedding repository.
type Repo struct {
	// Root is the working-tree root; tracked sources are relative to it.
	Root string
	// Dir is Root/.embr.
	Dir     string
	Config  *config.Config
	Objects *object.Store
	Sets    *sets.Manager
	log     *slog.Logger
}

// Init creates a repository at root.
func Init(root string, log *slog.Logger) (*Repo, error) {
	if log == nil {
		log = slog.Default()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errs.Errorf(errs.CodeRepoPathUnresolvable, "Cannot resolve path: %s", root)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	dir := filepath.Join(abs, DirName)
	if _, err := os.Stat(dir); err == nil {
		return nil, errs.New(errs.CodeRepoAlreadyExists,
			"embedding repository already exists in "+dir, errs.FieldPath(dir))
	}
	if err := os.MkdirAll(filepath.Join(dir, objectsDir), 0o755); err != nil {
		return nil, errs.Errorf(errs.CodeRepoIOFailure, "cannot create %s: %w", dir, err)
	}
	if err := config.Save(filepath.Join(dir, config.FileName), config.DefaultConfig()); err != nil {
		return nil, err
	}
	reg, err := model.Load(filepath.Join(dir, modelsFile))
	if err != nil {
		return nil, err
	}
	if err := reg.Save(); err != nil {
		return nil, err
	}
	if err := config.EnsureDotEnvTemplate(dir); err != nil {
		return nil, err
	}
	r, err := load(abs, log)
	if err != nil {
		return nil, err
	}
	if err := r.Sets.Init(); err != nil {
		return nil, err
	}
	log.Debug("repository initialized", "path", dir)
	return r, nil
}

// Open finds the repository containing start by walking up the directory tree.
func Open(start string, log *slog.Logger) (*Repo, error) {
	if log == nil {
		log = slog.Default()
	}
	abs, err := filepath.Abs(start)
	if err != nil {
		return nil, errs.Errorf(errs.CodeRepoPathUnresolvable, "Cannot resolve path: %s", start)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	for dir := abs; ; {
		if st, err := os.Stat(filepath.Join(dir, DirName)); err == nil && st.IsDir() {
			return load(dir, log)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return nil, errs.New(errs.CodeRepoNotFound,
		"Not in an embedding repository (or any parent directory); run embr init")
}

func load(root string, log *slog.Logger) (*Repo, error) {
	dir := filepath.Join(root, DirName)
	cfg, err := config.Load(filepath.Join(dir, config.FileName))
	if err != nil {
		return nil, err
	}
	comp, err := object.ParseCompression(cfg.Core.Compression)
	if err != nil {
		return nil, err
	}
	return &Repo{
		Root:    root,
		Dir:     dir,
		Config:  cfg,
		Objects: object.NewStore(filepath.Join(dir, objectsDir), comp, log),
		Sets:    sets.NewManager(dir, cfg.LockTimeout(), log),
		log:     log,
	}, nil
}

// SaveConfig persists r.Config.
func (r *Repo) SaveConfig() error {
	return config.Save(filepath.Join(r.Dir, config.FileName), r.Config)
}

// ResolveSource maps a user-supplied path to the canonical tracked name:
// slash separated, relative to Root, NFC normalized. The file itself need
// not exist (a removed file can still be queried) but its directory must.
func (r *Repo) ResolveSource(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errs.New(errs.CodeRepoPathUnresolvable, "Cannot resolve path: "+path, errs.FieldPath(path))
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return "", errs.New(errs.CodeRepoPathUnresolvable, "Cannot resolve path: "+path, errs.FieldPath(path))
		}
		parent, perr := filepath.EvalSymlinks(filepath.Dir(abs))
		if perr != nil {
			return "", errs.New(errs.CodeRepoPathUnresolvable, "Cannot resolve path: "+path, errs.FieldPath(path))
		}
		resolved = filepath.Join(parent, filepath.Base(abs))
	}
	rel, err := filepath.Rel(r.Root, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", errs.New(errs.CodeRepoPathOutside, "Files must be within repository: "+path, errs.FieldPath(path))
	}
	if rel == "." {
		return "", errs.New(errs.CodeRepoPathOutside,
			"Files must be within repository: "+path+" is the repository root", errs.FieldPath(path))
	}
	rel = filepath.ToSlash(rel)
	if rel == DirName || strings.HasPrefix(rel, DirName+"/") {
		return "", errs.New(errs.CodeInputInvalid, "cannot track files inside "+DirName, errs.FieldPath(path))
	}
	return norm.NFC.String(rel), nil
}

// ActiveSet returns the active set's name and ledger.
func (r *Repo) ActiveSet() (string, *ledger.Ledger, error) {
	name, err := r.Sets.Active()
	if err != nil {
		return "", nil, err
	}
	if _, err := r.Sets.Get(name); err != nil {
		return "", nil, err
	}
	return name, r.Sets.Ledger(name), nil
}

func (r *Repo) models() (*model.Registry, error) {
	return model.Load(filepath.Join(r.Dir, modelsFile))
}

// lock serializes registry mutations across processes.
func (r *Repo) lock() (func(), error) {
	release, err := fsutil.Lock(filepath.Join(r.Dir, repoLockFile), r.Config.LockTimeout())
	if err != nil {
		return release, errs.Wrap(err, errs.CodeRepoLockFailure, "cannot lock repository")
	}
	return release, nil
}
