package object

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kamusis/embr/internal/embedding"
	"github.com/kamusis/embr/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, c Compression) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "objects"), c, nil)
}

func TestHashIsDeterministicAndCoversDims(t *testing.T) {
	raw := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	assert.Equal(t, Hash(raw, 2), Hash(raw, 2))
	assert.NotEqual(t, Hash(raw, 2), Hash(raw, 1))
	assert.Len(t, Hash(raw, 2), HashLen)
}

func TestPutDedupsAcrossSourcesAndModels(t *testing.T) {
	s := newTestStore(t, CompressionNone)
	emb := embedding.New([]float64{0.1, 0.2, 0.3}, embedding.Float32)

	h1, created, err := s.Put(emb, PutInfo{Source: "a.txt", Model: "m1"})
	require.NoError(t, err)
	assert.True(t, created)

	h2, created, err := s.Put(emb, PutInfo{Source: "b.txt", Model: "m2"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, h1, h2)

	hashes, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{h1}, hashes)

	m, err := s.Meta(h1)
	require.NoError(t, err)
	assert.Equal(t, "a.txt", m.Source)
	assert.Equal(t, "m1", m.Model)
}

func TestGetRoundTripWithCompression(t *testing.T) {
	values := make([]float64, 256)
	for i := range values {
		values[i] = float64(i % 4)
	}
	for _, c := range []Compression{CompressionNone, CompressionZSTD, CompressionLZ4} {
		t.Run(string(c), func(t *testing.T) {
			s := newTestStore(t, c)
			h, _, err := s.Put(embedding.New(values, embedding.Float32), PutInfo{})
			require.NoError(t, err)

			emb, m, err := s.Get(h)
			require.NoError(t, err)
			assert.Equal(t, values, emb.Values)
			assert.Equal(t, c, m.Compression)
			assert.Equal(t, 256*4, m.Size)
		})
	}
}

func TestCompressionFallsBackWhenPayloadDoesNotShrink(t *testing.T) {
	s := newTestStore(t, CompressionZSTD)
	h, _, err := s.Put(embedding.New([]float64{0.123}, embedding.Float32), PutInfo{})
	require.NoError(t, err)

	m, err := s.Meta(h)
	require.NoError(t, err)
	assert.Equal(t, CompressionNone, m.Compression)
}

func TestHashIgnoresCompression(t *testing.T) {
	emb := embedding.New([]float64{1, 1, 1, 1, 1, 1, 1, 1}, embedding.Float32)
	plain, _, err := newTestStore(t, CompressionNone).Put(emb, PutInfo{})
	require.NoError(t, err)
	packed, _, err := newTestStore(t, CompressionLZ4).Put(emb, PutInfo{})
	require.NoError(t, err)
	assert.Equal(t, plain, packed)
}

func TestGetDetectsTampering(t *testing.T) {
	s := newTestStore(t, CompressionNone)
	h, _, err := s.Put(embedding.New([]float64{1, 2}, embedding.Float32), PutInfo{})
	require.NoError(t, err)

	blob := filepath.Join(s.Dir(), h+".bin")
	require.NoError(t, os.Chmod(blob, 0o644))
	require.NoError(t, os.WriteFile(blob, []byte{0, 0, 0, 0, 0, 0, 0, 0}, 0o644))

	_, _, err = s.Get(h)
	require.Error(t, err)
	assert.Equal(t, errs.CodeObjectCorrupt, errs.CodeOf(err))
}

func TestGetMissing(t *testing.T) {
	s := newTestStore(t, CompressionNone)
	_, _, err := s.Get(Hash([]byte{1}, 1))
	assert.True(t, errs.IsNotFound(err))
	assert.Contains(t, err.Error(), "Embedding not found")
}

func TestMetaAttributesKeepOrder(t *testing.T) {
	s := newTestStore(t, CompressionNone)
	var attrs Attributes
	attrs.Set("zeta", "1")
	attrs.Set("alpha", "2")
	attrs.Set("zeta", "3")

	h, _, err := s.Put(embedding.New([]float64{4}, embedding.Float32), PutInfo{Attributes: attrs})
	require.NoError(t, err)
	m, err := s.Meta(h)
	require.NoError(t, err)
	assert.Equal(t, Attributes{{"zeta", "3"}, {"alpha", "2"}}, m.Attributes)
}

func TestImportVerifiesContent(t *testing.T) {
	src := newTestStore(t, CompressionZSTD)
	h, _, err := src.Put(embedding.New(make([]float64, 64), embedding.Float32), PutInfo{})
	require.NoError(t, err)
	blob, meta, err := src.ReadFiles(h)
	require.NoError(t, err)

	dst := newTestStore(t, CompressionNone)
	require.NoError(t, dst.Import(h, blob, meta))
	_, _, err = dst.Get(h)
	require.NoError(t, err)

	other := Hash([]byte{9, 9, 9, 9}, 1)
	err = newTestStore(t, CompressionNone).Import(other, blob, meta)
	assert.True(t, errs.IsInvalidValues(err))
}

func TestRemoveAndSweep(t *testing.T) {
	s := newTestStore(t, CompressionNone)
	h, _, err := s.Put(embedding.New([]float64{1}, embedding.Float32), PutInfo{})
	require.NoError(t, err)

	orphan := filepath.Join(s.Dir(), Hash([]byte{7}, 1)+".meta")
	require.NoError(t, os.WriteFile(orphan, []byte("{}"), 0o644))
	tmp := filepath.Join(s.Dir(), ".index.tmp-123")
	require.NoError(t, os.WriteFile(tmp, nil, 0o644))

	removed, err := s.Sweep(time.Now().Add(time.Minute), true)
	require.NoError(t, err)
	assert.Len(t, removed, 2)
	assert.FileExists(t, orphan)

	_, err = s.Sweep(time.Now().Add(time.Minute), false)
	require.NoError(t, err)
	assert.NoFileExists(t, orphan)
	assert.NoFileExists(t, tmp)
	assert.True(t, s.Has(h))

	require.NoError(t, s.Remove(h))
	assert.False(t, s.Has(h))
}
