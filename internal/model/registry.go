// Package model keeps the registry of named embedding models.
package model

import (
	"errors"
	"io/fs"
	"os"
	"regexp"
	"sort"
	"time"

	"github.com/kamusis/embr/internal/errs"
	"github.com/kamusis/embr/internal/fsutil"
	"gopkg.in/yaml.v3"
)

// Model is one registered embedding model.
type Model struct {
	Name        string    `yaml:"name"`
	Dimensions  int       `yaml:"dimensions"`
	Normalize   bool      `yaml:"normalize"`
	Description string    `yaml:"description,omitempty"`
	CreatedAt   time.Time `yaml:"created_at"`
	UpdatedAt   time.Time `yaml:"updated_at,omitempty"`
}

type registryFile struct {
	Models []Model `yaml:"models"`
}

var nameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:/@+-]{0,127}$`)

// ValidateName rejects names that cannot be used on the command line
// (--models takes a comma separated pair).
func ValidateName(name string) error {
	if !nameRe.MatchString(name) {
		return errs.New(errs.CodeModelNameInvalid, "invalid model name "+`"`+name+`"`, errs.FieldModel(name))
	}
	return nil
}

// Registry is the in-memory view of models.yaml.
type Registry struct {
	path   string
	models map[string]Model
	now    func() time.Time
}

// Load reads the registry at path. A missing file is an empty registry.
func Load(path string) (*Registry, error) {
	r := &Registry{path: path, models: map[string]Model{}, now: time.Now}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return r, nil
		}
		return nil, errs.Errorf(errs.CodeModelIOFailure, "cannot read model registry %s: %w", path, err)
	}
	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errs.Errorf(errs.CodeModelIOFailure, "invalid YAML in %s: %w", path, err)
	}
	for _, m := range f.Models {
		r.models[m.Name] = m
	}
	return r, nil
}

// Save writes the registry atomically.
func (r *Registry) Save() error {
	data, err := yaml.Marshal(registryFile{Models: r.List()})
	if err != nil {
		return errs.Errorf(errs.CodeModelIOFailure, "cannot marshal model registry: %w", err)
	}
	if err := fsutil.WriteFileAtomic(r.path, data, 0o644); err != nil {
		return errs.Wrap(err, errs.CodeModelIOFailure, "cannot write model registry")
	}
	return nil
}

// Register adds m or updates an existing entry's description and normalize
// flag. Changing the dimensions of an existing model is only allowed when
// dimsLocked is false; callers set it when the model already has history.
// It reports whether an existing entry was updated.
func (r *Registry) Register(m Model, dimsLocked bool) (updated bool, err error) {
	if err := ValidateName(m.Name); err != nil {
		return false, err
	}
	if m.Dimensions <= 0 {
		return false, errs.Errorf(errs.CodeModelInvalidDimensions,
			"Invalid dimensions: %d (must be a positive integer)", m.Dimensions)
	}
	now := r.now().UTC()
	prev, ok := r.models[m.Name]
	if !ok {
		m.CreatedAt = now
		m.UpdatedAt = time.Time{}
		r.models[m.Name] = m
		return false, nil
	}
	if prev.Dimensions != m.Dimensions && dimsLocked {
		return false, errs.New(errs.CodeModelDimensionsInUse,
			"cannot change dimensions of a model that already has stored embeddings",
			errs.FieldModel(m.Name), errs.Field("dimensions", prev.Dimensions))
	}
	m.CreatedAt = prev.CreatedAt
	m.UpdatedAt = now
	r.models[m.Name] = m
	return true, nil
}

// Get returns the named model.
func (r *Registry) Get(name string) (Model, bool) {
	m, ok := r.models[name]
	return m, ok
}

// List returns all models sorted by name.
func (r *Registry) List() []Model {
	out := make([]Model, 0, len(r.models))
	for _, m := range r.models {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Validate checks dims against the registered model. Unregistered models
// accept any dimension count.
func (r *Registry) Validate(name string, dims int) error {
	m, ok := r.models[name]
	if !ok {
		return nil
	}
	if dims != m.Dimensions {
		return errs.Errorf(errs.CodeModelDimMismatch,
			"Embedding dimensions do not match: model %s expects %d, got %d", name, m.Dimensions, dims)
	}
	return nil
}
