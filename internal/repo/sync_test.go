package repo

import (
	"context"
	"testing"

	"github.com/kamusis/embr/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemotesConfig(t *testing.T) {
	r := newRepo(t)
	require.NoError(t, r.AddRemote("origin", t.TempDir()))
	require.NoError(t, r.AddRemote("backup", "file:///tmp/embr-backup"))
	assert.Equal(t, []string{"backup", "origin"}, r.Remotes())

	reopened, err := Open(r.Root, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"backup", "origin"}, reopened.Remotes())

	require.NoError(t, r.RemoveRemote("backup"))
	assert.Equal(t, []string{"origin"}, r.Remotes())
	err = r.RemoveRemote("backup")
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err))
}

func TestPushPullRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	a := newRepo(t)
	require.NoError(t, a.AddRemote("origin", dir))
	v1 := store(t, a, "doc.txt", "m", 1, 2, 3)
	v2 := store(t, a, "doc.txt", "m", 3, 2, 1)

	pushed, err := a.Push(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "origin", pushed.Remote)
	assert.Equal(t, 2, pushed.Objects)

	again, err := a.Push(ctx, "origin")
	require.NoError(t, err)
	assert.Zero(t, again.Objects)

	b := newRepo(t)
	require.NoError(t, b.AddRemote("origin", dir))
	pulled, err := b.Pull(ctx, "", false)
	require.NoError(t, err)
	assert.Equal(t, 2, pulled.Objects)
	assert.True(t, b.Objects.Has(v1.Hash))
	assert.Equal(t, v2.Hash, currentHash(t, b, "doc.txt", "m"))

	pulled, err = b.Pull(ctx, "", false)
	require.NoError(t, err)
	assert.True(t, pulled.UpToDate)

	// Fast-forward: a moves on, b pulls the new entry.
	v3 := store(t, a, "doc.txt", "m", 5, 5, 5)
	_, err = a.Push(ctx, "")
	require.NoError(t, err)
	pulled, err = b.Pull(ctx, "", false)
	require.NoError(t, err)
	assert.Equal(t, 1, pulled.Objects)
	assert.Equal(t, v3.Hash, currentHash(t, b, "doc.txt", "m"))
}

func TestPullRefusesDivergedHistory(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	a := newRepo(t)
	require.NoError(t, a.AddRemote("origin", dir))
	remoteHash := store(t, a, "doc.txt", "m", 1, 2, 3).Hash
	_, err := a.Push(ctx, "")
	require.NoError(t, err)

	b := newRepo(t)
	require.NoError(t, b.AddRemote("origin", dir))
	store(t, b, "doc.txt", "m", 9, 9, 9)

	_, err = b.Pull(ctx, "", false)
	require.Error(t, err)
	assert.True(t, errs.IsConflict(err))

	_, err = b.Pull(ctx, "", true)
	require.NoError(t, err)
	assert.Equal(t, remoteHash, currentHash(t, b, "doc.txt", "m"))
}

func TestPushPullErrors(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t)

	_, err := r.Push(ctx, "")
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err))

	require.NoError(t, r.AddRemote("origin", t.TempDir()))
	_, err = r.Pull(ctx, "", false)
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err))
}
