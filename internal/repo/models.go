package repo

import (
	"github.com/kamusis/embr/internal/model"
)

// RegisterModel adds or updates a model. Changing the dimensions of a model
// that any set's history already uses is refused.
func (r *Repo) RegisterModel(m model.Model) (updated bool, err error) {
	release, err := r.lock()
	if err != nil {
		return false, err
	}
	defer release()

	reg, err := r.models()
	if err != nil {
		return false, err
	}
	inUse := false
	if prev, ok := reg.Get(m.Name); ok && prev.Dimensions != m.Dimensions {
		if inUse, err = r.modelInUse(m.Name); err != nil {
			return false, err
		}
	}
	if updated, err = reg.Register(m, inUse); err != nil {
		return false, err
	}
	if err := reg.Save(); err != nil {
		return false, err
	}
	r.log.Debug("model registered", "model", m.Name, "dimensions", m.Dimensions, "updated", updated)
	return updated, nil
}

// Models lists registered models.
func (r *Repo) Models() ([]model.Model, error) {
	reg, err := r.models()
	if err != nil {
		return nil, err
	}
	return reg.List(), nil
}

func (r *Repo) modelInUse(name string) (bool, error) {
	all, err := r.Sets.List()
	if err != nil {
		return false, err
	}
	for _, s := range all {
		used, err := r.Sets.Ledger(s.Name).UsesModel(name)
		if err != nil {
			return false, err
		}
		if used {
			return true, nil
		}
	}
	return false, nil
}
