package ledger

import (
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/kamusis/embr/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func h(c string) string { return strings.Repeat(c, 64) }

func TestRecordUpdatesIndexAndHistory(t *testing.T) {
	l := Open(t.TempDir(), Options{})

	e1, err := l.Record("docs/a.md", "m", h("1"), ActionStore)
	require.NoError(t, err)
	assert.Empty(t, e1.Parent)
	assert.NotEmpty(t, e1.ID)

	e2, err := l.Record("docs/a.md", "m", h("2"), ActionStore)
	require.NoError(t, err)
	assert.Equal(t, h("1"), e2.Parent)

	status, err := l.Status("docs/a.md")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"m": h("2")}, status)

	hist, err := l.History()
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, ActionStore, hist[1].Action)
}

func TestLogMarksCurrentAfterRollback(t *testing.T) {
	l := Open(t.TempDir(), Options{})
	_, err := l.Record("f", "m", h("1"), ActionStore)
	require.NoError(t, err)
	_, err = l.Record("f", "m", h("2"), ActionStore)
	require.NoError(t, err)
	_, err = l.Record("f", "m", h("1"), ActionRollback)
	require.NoError(t, err)

	logs, err := l.Log("f")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	chain := logs[0].Entries
	require.Len(t, chain, 3)
	assert.Equal(t, []Action{ActionStore, ActionStore, ActionRollback},
		[]Action{chain[0].Action, chain[1].Action, chain[2].Action})
	assert.False(t, chain[0].Current)
	assert.False(t, chain[1].Current)
	assert.True(t, chain[2].Current)
	assert.Equal(t, h("2"), chain[2].Parent)
}

func TestLogGroupsByModel(t *testing.T) {
	l := Open(t.TempDir(), Options{})
	_, err := l.Record("f", "zeta", h("1"), ActionStore)
	require.NoError(t, err)
	_, err = l.Record("f", "alpha", h("2"), ActionStore)
	require.NoError(t, err)
	_, err = l.Record("g", "alpha", h("3"), ActionStore)
	require.NoError(t, err)

	logs, err := l.Log("f")
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "alpha", logs[0].Model)
	assert.Equal(t, "zeta", logs[1].Model)
	assert.True(t, logs[0].Entries[0].Current)
}

func TestUntrack(t *testing.T) {
	l := Open(t.TempDir(), Options{})
	_, err := l.Record("f", "a", h("1"), ActionStore)
	require.NoError(t, err)
	_, err = l.Record("f", "b", h("2"), ActionStore)
	require.NoError(t, err)

	removed, err := l.Untrack("f", "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, removed)
	status, err := l.Status("f")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"b": h("2")}, status)

	removed, err = l.Untrack("f", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, removed)
	tracked, err := l.Tracked()
	require.NoError(t, err)
	assert.Empty(t, tracked)

	_, err = l.Untrack("f", "")
	assert.True(t, errs.IsNotTracked(err))

	hist, err := l.History()
	require.NoError(t, err)
	assert.Len(t, hist, 4, "untracking appends remove events and never prunes")
}

func TestRebuildMatchesIndex(t *testing.T) {
	dir := t.TempDir()
	l := Open(dir, Options{})
	_, err := l.Record("f", "m", h("1"), ActionStore)
	require.NoError(t, err)
	_, err = l.Record("g", "m", h("2"), ActionStore)
	require.NoError(t, err)
	_, err = l.Untrack("g", "")
	require.NoError(t, err)

	want, err := l.ReadIndex()
	require.NoError(t, err)
	require.NoError(t, os.Remove(l.IndexPath()))

	got, err := l.Rebuild()
	require.NoError(t, err)
	assert.Equal(t, want.Entries, got.Entries)
}

func TestHistorySkipsTornFinalLine(t *testing.T) {
	l := Open(t.TempDir(), Options{})
	_, err := l.Record("f", "m", h("1"), ActionStore)
	require.NoError(t, err)

	f, err := os.OpenFile(l.HistoryPath(), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"id":"x","sour`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	hist, err := l.History()
	require.NoError(t, err)
	assert.Len(t, hist, 1)
}

func TestHistoryCorruptMiddleLine(t *testing.T) {
	l := Open(t.TempDir(), Options{})
	require.NoError(t, os.WriteFile(l.HistoryPath(), []byte("garbage\n{}\n"), 0o644))

	_, err := l.History()
	assert.Equal(t, errs.CodeLedgerCorrupt, errs.CodeOf(err))
}

func TestConcurrentRecordsAreAllLogged(t *testing.T) {
	l := Open(t.TempDir(), Options{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := Open(l.dir, Options{}).Record("f", "m", h(string(rune('a'+i))), ActionStore)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	hist, err := l.History()
	require.NoError(t, err)
	assert.Len(t, hist, 8)
	for i := 1; i < len(hist); i++ {
		assert.Equal(t, hist[i-1].Hash, hist[i].Parent)
	}
}

func TestReferencedAndUsesModel(t *testing.T) {
	l := Open(t.TempDir(), Options{})
	_, err := l.Record("f", "m", h("1"), ActionStore)
	require.NoError(t, err)
	_, err = l.Record("f", "m", h("2"), ActionStore)
	require.NoError(t, err)

	refs, err := l.Referenced()
	require.NoError(t, err)
	assert.Contains(t, refs, h("1"))
	assert.Contains(t, refs, h("2"))

	used, err := l.UsesModel("m")
	require.NoError(t, err)
	assert.True(t, used)
	used, err = l.UsesModel("other")
	require.NoError(t, err)
	assert.False(t, used)
}

func TestReplaceAdoptsHistory(t *testing.T) {
	src := Open(t.TempDir(), Options{})
	_, err := src.Record("f", "m", h("1"), ActionStore)
	require.NoError(t, err)
	hist, err := src.History()
	require.NoError(t, err)

	dst := Open(t.TempDir(), Options{})
	require.NoError(t, dst.Replace(hist))
	status, err := dst.Status("f")
	require.NoError(t, err)
	assert.Equal(t, h("1"), status["m"])
}

func TestReplaceIfSeesEntriesRecordedMeanwhile(t *testing.T) {
	l := Open(t.TempDir(), Options{})
	_, err := l.Record("f", "m", h("1"), ActionStore)
	require.NoError(t, err)
	snapshot, err := l.History()
	require.NoError(t, err)

	_, err = l.Record("f", "m", h("2"), ActionStore)
	require.NoError(t, err)

	unchanged := func(current []Entry) bool { return len(current) == len(snapshot) }
	ok, err := l.ReplaceIf(snapshot, unchanged)
	require.NoError(t, err)
	assert.False(t, ok)

	hist, err := l.History()
	require.NoError(t, err)
	assert.Len(t, hist, 2)
	status, err := l.Status("f")
	require.NoError(t, err)
	assert.Equal(t, h("2"), status["m"])

	ok, err = l.ReplaceIf(snapshot, nil)
	require.NoError(t, err)
	assert.True(t, ok)
	hist, err = l.History()
	require.NoError(t, err)
	assert.Len(t, hist, 1)
}
