// Package ledger maintains a set's current-pointer index and its append-only
// history.
//
// The history is the source of truth: every mutation appends one JSON line
// per (source, model) change and then rewrites the materialized index. The
// index can always be rebuilt by replaying the history.
package ledger

import (
	"bytes"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/kamusis/embr/internal/errs"
	"github.com/kamusis/embr/internal/fsutil"
	"gopkg.in/yaml.v3"
)

const (
	IndexFile   = "index"
	HistoryFile = "history"
	LockFile    = "history.lock"

	indexVersion       = 1
	defaultLockTimeout = 10 * time.Second
)

// Action is the kind of a history event.
type Action string

const (
	ActionStore    Action = "store"
	ActionRollback Action = "rollback"
	ActionRemove   Action = "remove"
	ActionMerge    Action = "merge"
)

// Entry is one immutable history record.
type Entry struct {
	ID     string    `json:"id"`
	Time   time.Time `json:"time"`
	Source string    `json:"source"`
	Model  string    `json:"model"`
	Hash   string    `json:"hash,omitempty"`
	Parent string    `json:"parent,omitempty"`
	Action Action    `json:"action"`
}

// Index is the materialized current state: source -> model -> hash.
type Index struct {
	Version int                          `yaml:"version"`
	Entries map[string]map[string]string `yaml:"entries"`
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{Version: indexVersion, Entries: map[string]map[string]string{}}
}

// Get returns the current hash for (source, model).
func (idx *Index) Get(source, model string) (string, bool) {
	h, ok := idx.Entries[source][model]
	return h, ok
}

// Set points (source, model) at hash.
func (idx *Index) Set(source, model, hash string) {
	if idx.Entries[source] == nil {
		idx.Entries[source] = map[string]string{}
	}
	idx.Entries[source][model] = hash
}

// Delete drops (source, model), and the source once it has no models left.
func (idx *Index) Delete(source, model string) {
	delete(idx.Entries[source], model)
	if len(idx.Entries[source]) == 0 {
		delete(idx.Entries, source)
	}
}

// Apply folds one history entry into the index.
func (idx *Index) Apply(e Entry) {
	if e.Action == ActionRemove {
		idx.Delete(e.Source, e.Model)
		return
	}
	idx.Set(e.Source, e.Model, e.Hash)
}

// Sources returns tracked sources in sorted order.
func (idx *Index) Sources() []string {
	out := make([]string, 0, len(idx.Entries))
	for s := range idx.Entries {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Replay rebuilds an index from history.
func Replay(entries []Entry) *Index {
	idx := NewIndex()
	for _, e := range entries {
		idx.Apply(e)
	}
	return idx
}

// Options tune a Ledger.
type Options struct {
	LockTimeout time.Duration
	Logger      *slog.Logger
}

// Ledger is the index/history pair of one set, stored in one directory.
type Ledger struct {
	dir         string
	lockTimeout time.Duration
	log         *slog.Logger
	now         func() time.Time
}

// Open returns the ledger stored in dir. Files are created lazily.
func Open(dir string, opts Options) *Ledger {
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = defaultLockTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Ledger{dir: dir, lockTimeout: opts.LockTimeout, log: opts.Logger, now: time.Now}
}

func (l *Ledger) IndexPath() string   { return filepath.Join(l.dir, IndexFile) }
func (l *Ledger) HistoryPath() string { return filepath.Join(l.dir, HistoryFile) }
func (l *Ledger) lockPath() string    { return filepath.Join(l.dir, LockFile) }

// lock serializes writers of this ledger across processes.
func (l *Ledger) lock() (func(), error) {
	release, err := fsutil.Lock(l.lockPath(), l.lockTimeout)
	if err != nil {
		var timeout *fsutil.LockTimeoutError
		if errors.As(err, &timeout) {
			return release, errs.Wrap(err, errs.CodeLedgerLockTimeout, "set is locked", errs.FieldPath(timeout.Path))
		}
		return release, errs.Wrap(err, errs.CodeLedgerIOFailure, "cannot lock set")
	}
	return release, nil
}

// ReadIndex loads the materialized index. A missing file is an empty index.
func (l *Ledger) ReadIndex() (*Index, error) {
	data, err := os.ReadFile(l.IndexPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return NewIndex(), nil
		}
		return nil, errs.Errorf(errs.CodeLedgerIOFailure, "cannot read index: %w", err)
	}
	idx := NewIndex()
	if err := yaml.Unmarshal(data, idx); err != nil {
		return nil, errs.Errorf(errs.CodeLedgerCorrupt, "invalid index %s: %w", l.IndexPath(), err)
	}
	if idx.Entries == nil {
		idx.Entries = map[string]map[string]string{}
	}
	return idx, nil
}

func (l *Ledger) writeIndex(idx *Index) error {
	idx.Version = indexVersion
	data, err := yaml.Marshal(idx)
	if err != nil {
		return errs.Errorf(errs.CodeLedgerIOFailure, "cannot marshal index: %w", err)
	}
	if err := fsutil.WriteFileAtomic(l.IndexPath(), data, 0o644); err != nil {
		return errs.Wrap(err, errs.CodeLedgerIOFailure, "cannot write index")
	}
	return nil
}

// History reads every history entry in append order.
func (l *Ledger) History() ([]Entry, error) {
	data, err := os.ReadFile(l.HistoryPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, errs.Errorf(errs.CodeLedgerIOFailure, "cannot read history: %w", err)
	}
	entries, torn, err := ParseHistory(data)
	if err != nil {
		return nil, err
	}
	if torn {
		l.log.Warn("ignoring torn history record", "path", l.HistoryPath())
	}
	return entries, nil
}

// ParseHistory decodes JSON Lines history. A torn final line left by a crash
// is dropped and reported through torn; any other unreadable line is
// corruption.
func ParseHistory(data []byte) (entries []Entry, torn bool, err error) {
	lines := bytes.Split(data, []byte("\n"))
	complete := bytes.HasSuffix(data, []byte("\n"))
	for i, raw := range lines {
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			if !complete && i == len(lines)-1 {
				return entries, true, nil
			}
			return nil, false, errs.Errorf(errs.CodeLedgerCorrupt, "history line %d is unreadable: %w", i+1, err)
		}
		entries = append(entries, e)
	}
	return entries, false, nil
}

// EncodeHistory renders entries as JSON Lines.
func EncodeHistory(entries []Entry) ([]byte, error) {
	var buf bytes.Buffer
	for _, e := range entries {
		line, err := json.Marshal(e)
		if err != nil {
			return nil, errs.Errorf(errs.CodeLedgerIOFailure, "cannot encode history entry: %w", err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// Change is a requested pointer update.
type Change struct {
	Source string
	Model  string
	Hash   string
	Action Action
}

// Record applies one change and returns its history entry.
func (l *Ledger) Record(source, model, hash string, action Action) (Entry, error) {
	entries, err := l.Apply([]Change{{Source: source, Model: model, Hash: hash, Action: action}})
	if err != nil {
		return Entry{}, err
	}
	return entries[0], nil
}

// Apply records changes as one locked batch: each change gets a history entry
// whose parent is the pointer it replaces, the history is appended, and only
// then is the index rewritten.
func (l *Ledger) Apply(changes []Change) ([]Entry, error) {
	release, err := l.lock()
	if err != nil {
		return nil, err
	}
	defer release()

	idx, err := l.ReadIndex()
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(changes))
	var buf bytes.Buffer
	for _, c := range changes {
		parent, _ := idx.Get(c.Source, c.Model)
		e := Entry{
			ID:     uuid.NewString(),
			Time:   l.now().UTC(),
			Source: c.Source,
			Model:  c.Model,
			Hash:   c.Hash,
			Parent: parent,
			Action: c.Action,
		}
		if c.Action == ActionRemove {
			e.Hash = ""
		}
		line, err := json.Marshal(e)
		if err != nil {
			return nil, errs.Errorf(errs.CodeLedgerIOFailure, "cannot encode history entry: %w", err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
		idx.Apply(e)
		entries = append(entries, e)
	}
	if len(entries) == 0 {
		return nil, nil
	}
	if err := fsutil.AppendRecord(l.HistoryPath(), buf.Bytes()); err != nil {
		return nil, errs.Wrap(err, errs.CodeLedgerIOFailure, "cannot append history")
	}
	if err := l.writeIndex(idx); err != nil {
		return nil, err
	}
	for _, e := range entries {
		l.log.Debug("ledger updated", "action", e.Action, "source", e.Source, "model", e.Model, "hash", e.Hash, "parent", e.Parent)
	}
	return entries, nil
}

// Untrack drops source (or only source's model, when model is non-empty)
// from the index. Objects are untouched; a remove event is logged per model.
func (l *Ledger) Untrack(source, model string) ([]string, error) {
	idx, err := l.ReadIndex()
	if err != nil {
		return nil, err
	}
	models := idx.Entries[source]
	if len(models) == 0 {
		return nil, errs.New(errs.CodeLedgerNotTracked, "not tracked: "+source, errs.FieldSource(source))
	}
	var targets []string
	if model != "" {
		if _, ok := models[model]; !ok {
			return nil, errs.New(errs.CodeLedgerNotTracked,
				"not tracked: "+source+" has no embedding for model "+model,
				errs.FieldSource(source), errs.FieldModel(model))
		}
		targets = []string{model}
	} else {
		for m := range models {
			targets = append(targets, m)
		}
		sort.Strings(targets)
	}
	changes := make([]Change, len(targets))
	for i, m := range targets {
		changes[i] = Change{Source: source, Model: m, Action: ActionRemove}
	}
	if _, err := l.Apply(changes); err != nil {
		return nil, err
	}
	return targets, nil
}

// Status returns model -> current hash for source.
func (l *Ledger) Status(source string) (map[string]string, error) {
	idx, err := l.ReadIndex()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(idx.Entries[source]))
	for m, h := range idx.Entries[source] {
		out[m] = h
	}
	return out, nil
}

// Recent returns up to n of source's latest history entries, newest first.
func (l *Ledger) Recent(source string, n int) ([]Entry, error) {
	all, err := l.History()
	if err != nil {
		return nil, err
	}
	var out []Entry
	for i := len(all) - 1; i >= 0 && len(out) < n; i-- {
		if all[i].Source == source {
			out = append(out, all[i])
		}
	}
	return out, nil
}

// LogEntry is a history entry annotated for display.
type LogEntry struct {
	Entry
	Current bool
}

// ModelLog is the chain of one (source, model).
type ModelLog struct {
	Model   string
	Entries []LogEntry
}

// Log returns source's history grouped by model (sorted by name), oldest
// first. The latest entry whose hash equals the current pointer is marked.
func (l *Ledger) Log(source string) ([]ModelLog, error) {
	all, err := l.History()
	if err != nil {
		return nil, err
	}
	idx, err := l.ReadIndex()
	if err != nil {
		return nil, err
	}
	byModel := map[string][]LogEntry{}
	for _, e := range all {
		if e.Source == source {
			byModel[e.Model] = append(byModel[e.Model], LogEntry{Entry: e})
		}
	}
	out := make([]ModelLog, 0, len(byModel))
	for m, chain := range byModel {
		if cur, ok := idx.Get(source, m); ok {
			for i := len(chain) - 1; i >= 0; i-- {
				if chain[i].Hash == cur && chain[i].Action != ActionRemove {
					chain[i].Current = true
					break
				}
			}
		}
		out = append(out, ModelLog{Model: m, Entries: chain})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Model < out[j].Model })
	return out, nil
}

// Seen reports whether hash ever appeared in the (source, model) chain.
func (l *Ledger) Seen(source, model, hash string) (bool, error) {
	all, err := l.History()
	if err != nil {
		return false, err
	}
	for _, e := range all {
		if e.Source == source && e.Model == model && (e.Hash == hash || e.Parent == hash) {
			return true, nil
		}
	}
	return false, nil
}

// UsesModel reports whether model appears anywhere in the history.
func (l *Ledger) UsesModel(model string) (bool, error) {
	all, err := l.History()
	if err != nil {
		return false, err
	}
	for _, e := range all {
		if e.Model == model {
			return true, nil
		}
	}
	return false, nil
}

// Referenced returns every hash named by the index or the history.
func (l *Ledger) Referenced() (map[string]struct{}, error) {
	refs := map[string]struct{}{}
	idx, err := l.ReadIndex()
	if err != nil {
		return nil, err
	}
	for _, models := range idx.Entries {
		for _, h := range models {
			refs[h] = struct{}{}
		}
	}
	all, err := l.History()
	if err != nil {
		return nil, err
	}
	for _, e := range all {
		if e.Hash != "" {
			refs[e.Hash] = struct{}{}
		}
		if e.Parent != "" {
			refs[e.Parent] = struct{}{}
		}
	}
	return refs, nil
}

// Rebuild replaces the index with the replay of the history.
func (l *Ledger) Rebuild() (*Index, error) {
	release, err := l.lock()
	if err != nil {
		return nil, err
	}
	defer release()

	all, err := l.History()
	if err != nil {
		return nil, err
	}
	idx := Replay(all)
	if err := l.writeIndex(idx); err != nil {
		return nil, err
	}
	return idx, nil
}

// Replace swaps in a whole history (and the index replayed from it), as when
// adopting a set from a remote.
func (l *Ledger) Replace(history []Entry) error {
	_, err := l.ReplaceIf(history, nil)
	return err
}

// ReplaceIf is Replace guarded by accept, which sees the current history
// under the set lock. It reports whether the history was replaced.
func (l *Ledger) ReplaceIf(history []Entry, accept func(current []Entry) bool) (bool, error) {
	release, err := l.lock()
	if err != nil {
		return false, err
	}
	defer release()

	if accept != nil {
		current, err := l.History()
		if err != nil {
			return false, err
		}
		if !accept(current) {
			return false, nil
		}
	}
	data, err := EncodeHistory(history)
	if err != nil {
		return false, err
	}
	if err := fsutil.WriteFileAtomic(l.HistoryPath(), data, 0o644); err != nil {
		return false, errs.Wrap(err, errs.CodeLedgerIOFailure, "cannot write history")
	}
	return true, l.writeIndex(Replay(history))
}

// Tracked returns the sorted list of tracked sources.
func (l *Ledger) Tracked() ([]string, error) {
	idx, err := l.ReadIndex()
	if err != nil {
		return nil, err
	}
	return idx.Sources(), nil
}

// Models returns the sorted distinct models present in the index.
func (l *Ledger) Models() ([]string, error) {
	idx, err := l.ReadIndex()
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	for _, models := range idx.Entries {
		for m := range models {
			seen[m] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for m := range seen {
		out = append(out, m)
	}
	sort.Strings(out)
	return out, nil
}
