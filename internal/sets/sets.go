// Package sets manages named, branch-like index/history namespaces that
// share one object pool.
package sets

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/kamusis/embr/internal/errs"
	"github.com/kamusis/embr/internal/fsutil"
	"github.com/kamusis/embr/internal/ledger"
	"gopkg.in/yaml.v3"
)

const (
	// Main is the set every repository starts with.
	Main = "main"

	headFile     = "HEAD"
	registryFile = "sets.yaml"
	lockFile     = "repo.lock"
	setsDir      = "sets"
)

var nameRe = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// ValidateName checks a set name.
func ValidateName(name string) error {
	if !nameRe.MatchString(name) || name == "." || name == ".." {
		return errs.New(errs.CodeSetNameInvalid,
			"invalid set name "+`"`+name+`"`+" (letters, digits, '.', '_' and '-', at most 64)", errs.FieldSet(name))
	}
	return nil
}

// Set describes one namespace.
type Set struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description,omitempty"`
	Base        string    `yaml:"base,omitempty"`
	CreatedAt   time.Time `yaml:"created_at"`
}

type registry struct {
	Sets []Set `yaml:"sets"`
}

// Manager owns HEAD and the set registry inside a repository directory.
type Manager struct {
	dir         string
	lockTimeout time.Duration
	log         *slog.Logger
	now         func() time.Time
}

// NewManager returns a manager for the repository directory dir (.embr).
func NewManager(dir string, lockTimeout time.Duration, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	if lockTimeout <= 0 {
		lockTimeout = 10 * time.Second
	}
	return &Manager{dir: dir, lockTimeout: lockTimeout, log: log, now: time.Now}
}

// Init creates the main set and points HEAD at it. It is idempotent.
func (m *Manager) Init() error {
	return m.withLock(func() error {
		reg, err := m.load()
		if err != nil {
			return err
		}
		if _, ok := find(reg, Main); !ok {
			reg.Sets = append(reg.Sets, Set{Name: Main, Description: "default set", CreatedAt: m.now().UTC()})
			if err := m.save(reg); err != nil {
				return err
			}
		}
		if _, err := os.Stat(m.headPath()); errors.Is(err, fs.ErrNotExist) {
			return m.writeHead(Main)
		}
		return nil
	})
}

// Dir returns the ledger directory of a set. main lives at the top level.
func (m *Manager) Dir(name string) string {
	if name == Main {
		return m.dir
	}
	return filepath.Join(m.dir, setsDir, name)
}

// Ledger opens the ledger of a set.
func (m *Manager) Ledger(name string) *ledger.Ledger {
	return ledger.Open(m.Dir(name), ledger.Options{LockTimeout: m.lockTimeout, Logger: m.log})
}

// Active returns the name of the active set.
func (m *Manager) Active() (string, error) {
	data, err := os.ReadFile(m.headPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Main, nil
		}
		return "", errs.Errorf(errs.CodeSetIOFailure, "cannot read HEAD: %w", err)
	}
	name := strings.TrimSpace(string(data))
	if name == "" {
		return Main, nil
	}
	return name, nil
}

// List returns all sets sorted by name.
func (m *Manager) List() ([]Set, error) {
	reg, err := m.load()
	if err != nil {
		return nil, err
	}
	out := append([]Set(nil), reg.Sets...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Get returns the named set.
func (m *Manager) Get(name string) (Set, error) {
	reg, err := m.load()
	if err != nil {
		return Set{}, err
	}
	s, ok := find(reg, name)
	if !ok {
		return Set{}, errs.New(errs.CodeSetNotFound, "set not found: "+name, errs.FieldSet(name))
	}
	return s, nil
}

// Create adds a set. With a base, the new set starts from a copy of the
// base's index and history; otherwise it starts empty.
func (m *Manager) Create(name, description, base string) (Set, error) {
	if err := ValidateName(name); err != nil {
		return Set{}, err
	}
	var created Set
	err := m.withLock(func() error {
		reg, err := m.load()
		if err != nil {
			return err
		}
		if _, ok := find(reg, name); ok {
			return errs.New(errs.CodeSetExists, "set already exists: "+name, errs.FieldSet(name))
		}
		if base != "" {
			if _, ok := find(reg, base); !ok {
				return errs.New(errs.CodeSetNotFound, "base set not found: "+base, errs.FieldSet(base))
			}
		}
		dir := m.Dir(name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errs.Errorf(errs.CodeSetIOFailure, "cannot create set directory: %w", err)
		}
		if base != "" {
			from := m.Dir(base)
			for _, f := range []string{ledger.HistoryFile, ledger.IndexFile} {
				if err := fsutil.CopyFile(filepath.Join(from, f), filepath.Join(dir, f)); err != nil {
					return errs.Wrap(err, errs.CodeSetIOFailure, "cannot copy base set", errs.FieldSet(base))
				}
			}
		}
		created = Set{Name: name, Description: description, Base: base, CreatedAt: m.now().UTC()}
		reg.Sets = append(reg.Sets, created)
		return m.save(reg)
	})
	if err != nil {
		return Set{}, err
	}
	m.log.Debug("set created", "set", name, "base", base)
	return created, nil
}

// Switch makes name the active set.
func (m *Manager) Switch(name string) error {
	if _, err := m.Get(name); err != nil {
		return err
	}
	return m.withLock(func() error { return m.writeHead(name) })
}

// Delete removes a set and its ledger. The active set and main cannot be
// deleted; a set that still tracks sources needs force.
func (m *Manager) Delete(name string, force bool) error {
	if name == Main {
		return errs.New(errs.CodeSetActive, "cannot delete the main set", errs.FieldSet(name))
	}
	active, err := m.Active()
	if err != nil {
		return err
	}
	if name == active {
		return errs.New(errs.CodeSetActive, "cannot delete the active set "+name+"; switch first", errs.FieldSet(name))
	}
	return m.withLock(func() error {
		reg, err := m.load()
		if err != nil {
			return err
		}
		if _, ok := find(reg, name); !ok {
			return errs.New(errs.CodeSetNotFound, "set not found: "+name, errs.FieldSet(name))
		}
		tracked, err := m.Ledger(name).Tracked()
		if err != nil {
			return err
		}
		if len(tracked) > 0 && !force {
			return errs.New(errs.CodeSetNotEmpty,
				"set "+name+" still tracks sources; use --force to delete it", errs.FieldSet(name))
		}
		kept := reg.Sets[:0]
		for _, s := range reg.Sets {
			if s.Name != name {
				kept = append(kept, s)
			}
		}
		reg.Sets = kept
		if err := m.save(reg); err != nil {
			return err
		}
		if err := os.RemoveAll(m.Dir(name)); err != nil {
			return errs.Errorf(errs.CodeSetIOFailure, "cannot remove set directory: %w", err)
		}
		return nil
	})
}

// Status summarizes one set.
type Status struct {
	Name    string
	Active  bool
	Tracked int
	Models  []string
}

// Status reports the tracked-source count and models of a set.
func (m *Manager) Status(name string) (Status, error) {
	if _, err := m.Get(name); err != nil {
		return Status{}, err
	}
	active, err := m.Active()
	if err != nil {
		return Status{}, err
	}
	l := m.Ledger(name)
	tracked, err := l.Tracked()
	if err != nil {
		return Status{}, err
	}
	models, err := l.Models()
	if err != nil {
		return Status{}, err
	}
	return Status{Name: name, Active: name == active, Tracked: len(tracked), Models: models}, nil
}

func (m *Manager) withLock(fn func() error) error {
	release, err := fsutil.Lock(filepath.Join(m.dir, lockFile), m.lockTimeout)
	if err != nil {
		return errs.Wrap(err, errs.CodeSetIOFailure, "cannot lock repository")
	}
	defer release()
	return fn()
}

func (m *Manager) headPath() string     { return filepath.Join(m.dir, headFile) }
func (m *Manager) registryPath() string { return filepath.Join(m.dir, registryFile) }

func (m *Manager) writeHead(name string) error {
	if err := fsutil.WriteFileAtomic(m.headPath(), []byte(name+"\n"), 0o644); err != nil {
		return errs.Wrap(err, errs.CodeSetIOFailure, "cannot write HEAD")
	}
	return nil
}

func (m *Manager) load() (*registry, error) {
	data, err := os.ReadFile(m.registryPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &registry{}, nil
		}
		return nil, errs.Errorf(errs.CodeSetIOFailure, "cannot read set registry: %w", err)
	}
	var reg registry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil, errs.Errorf(errs.CodeSetIOFailure, "invalid YAML in %s: %w", m.registryPath(), err)
	}
	return &reg, nil
}

func (m *Manager) save(reg *registry) error {
	data, err := yaml.Marshal(reg)
	if err != nil {
		return errs.Errorf(errs.CodeSetIOFailure, "cannot marshal set registry: %w", err)
	}
	if err := fsutil.WriteFileAtomic(m.registryPath(), data, 0o644); err != nil {
		return errs.Wrap(err, errs.CodeSetIOFailure, "cannot write set registry")
	}
	return nil
}

func find(reg *registry, name string) (Set, bool) {
	for _, s := range reg.Sets {
		if s.Name == name {
			return s, true
		}
	}
	return Set{}, false
}
