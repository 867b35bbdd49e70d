package repo

import (
	"github.com/kamusis/embr/internal/errs"
	"github.com/kamusis/embr/internal/ledger"
)

// recentLimit is how many history entries verbose status shows.
const recentLimit = 5

// SourceStatus is the current state of one source in the active set.
type SourceStatus struct {
	Source  string
	Set     string
	Current map[string]string
	// Recent holds the newest history entries, newest first, when requested.
	Recent []ledger.Entry
}

// Tracked reports whether the source has any current pointer.
func (s *SourceStatus) Tracked() bool { return len(s.Current) > 0 }

// Status reads the index for path; verbose adds recent history.
func (r *Repo) Status(path string, verbose bool) (*SourceStatus, error) {
	source, err := r.ResolveSource(path)
	if err != nil {
		return nil, err
	}
	set, l, err := r.ActiveSet()
	if err != nil {
		return nil, err
	}
	cur, err := l.Status(source)
	if err != nil {
		return nil, err
	}
	st := &SourceStatus{Source: source, Set: set, Current: cur}
	if verbose {
		if st.Recent, err = l.Recent(source, recentLimit); err != nil {
			return nil, err
		}
	}
	return st, nil
}

// Log returns path's history grouped by model, oldest first.
func (r *Repo) Log(path string) (string, []ledger.ModelLog, error) {
	source, err := r.ResolveSource(path)
	if err != nil {
		return "", nil, err
	}
	_, l, err := r.ActiveSet()
	if err != nil {
		return "", nil, err
	}
	logs, err := l.Log(source)
	if err != nil {
		return "", nil, err
	}
	if len(logs) == 0 {
		return source, nil, errs.New(errs.CodeLedgerNotTracked, "no history for "+source, errs.FieldSource(source))
	}
	return source, logs, nil
}
