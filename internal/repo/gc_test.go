package repo

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGCRemovesOnlyUnreferencedObjects(t *testing.T) {
	r := newRepo(t)
	kept := store(t, r, "a.txt", "m", 1, 2, 3)
	loose := putLoose(t, r, 4, 5, 6)

	rep, err := r.GC(GCOptions{Prune: 0, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, []string{loose}, rep.Removed)
	assert.True(t, r.Objects.Has(loose))

	rep, err = r.GC(GCOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{loose}, rep.Removed)
	assert.Equal(t, 1, rep.Kept)
	assert.False(t, r.Objects.Has(loose))
	assert.True(t, r.Objects.Has(kept.Hash))
}

func TestGCHonoursPruneWindow(t *testing.T) {
	r := newRepo(t)
	loose := putLoose(t, r, 4, 5, 6)

	rep, err := r.GC(GCOptions{Prune: DefaultPrune})
	require.NoError(t, err)
	assert.Empty(t, rep.Removed)
	assert.Equal(t, 1, rep.Young)

	old := time.Now().Add(-30 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(r.Objects.Dir(), loose+".bin"), old, old))
	rep, err = r.GC(GCOptions{Prune: DefaultPrune})
	require.NoError(t, err)
	assert.Equal(t, []string{loose}, rep.Removed)
}

func TestGCSparesObjectReusedByStore(t *testing.T) {
	r := newRepo(t)
	loose := putLoose(t, r, 4, 5, 6)
	old := time.Now().Add(-30 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(r.Objects.Dir(), loose+".bin"), old, old))

	again := putLoose(t, r, 4, 5, 6)
	require.Equal(t, loose, again)

	rep, err := r.GC(GCOptions{Prune: DefaultPrune})
	require.NoError(t, err)
	assert.Empty(t, rep.Removed)
	assert.Equal(t, 1, rep.Young)
	assert.True(t, r.Objects.Has(loose))
}

func TestGCKeepsHistoryAndOtherSets(t *testing.T) {
	r := newRepo(t)
	v1 := store(t, r, "a.txt", "m", 1, 2, 3)
	store(t, r, "a.txt", "m", 3, 2, 1)
	_, _, err := r.Remove(r.path("a.txt"), "")
	require.NoError(t, err)

	_, err = r.Sets.Create("exp", "", "")
	require.NoError(t, err)
	require.NoError(t, r.Sets.Switch("exp"))
	onlyExp := store(t, r, "b.txt", "m", 7, 7, 7)
	require.NoError(t, r.Sets.Switch("main"))

	rep, err := r.GC(GCOptions{})
	require.NoError(t, err)
	assert.Empty(t, rep.Removed)
	assert.True(t, r.Objects.Has(v1.Hash))

	require.NoError(t, r.Sets.Delete("exp", true))
	rep, err = r.GC(GCOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{onlyExp.Hash}, rep.Removed)
}

func TestVerifyHealthyRepository(t *testing.T) {
	r := newRepo(t)
	store(t, r, "a.txt", "m", 1, 2, 3)
	store(t, r, "b.txt", "m", 3, 2, 1)

	rep, err := r.Verify(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Objects)
	assert.Equal(t, 1, rep.Sets)
	assert.Empty(t, rep.Problems)
}

func TestVerifyFindsCorruptObjectAndStaleIndex(t *testing.T) {
	r := newRepo(t)
	v := store(t, r, "a.txt", "m", 1, 2, 3)
	store(t, r, "b.txt", "m", 3, 2, 1)

	blob := filepath.Join(r.Objects.Dir(), v.Hash+".bin")
	require.NoError(t, os.Chmod(blob, 0o644))
	data, err := os.ReadFile(blob)
	require.NoError(t, err)
	data[0] ^= 0xff
	require.NoError(t, os.WriteFile(blob, data, 0o644))

	_, l, err := r.ActiveSet()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(l.IndexPath(), []byte("version: 1\nentries: {}\n"), 0o644))

	rep, err := r.Verify(context.Background())
	require.NoError(t, err)
	kinds := map[string]int{}
	for _, p := range rep.Problems {
		kinds[p.Kind]++
	}
	assert.Equal(t, 1, kinds["object"])
	assert.Equal(t, 1, kinds["index"])

	_, idx, err := r.RebuildIndex()
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt"}, idx.Sources())
}
