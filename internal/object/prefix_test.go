package object

import (
	"strings"
	"testing"

	"github.com/kamusis/embr/internal/embedding"
	"github.com/kamusis/embr/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeHash(prefix string) string {
	return prefix + strings.Repeat("0", HashLen-len(prefix))
}

func TestTableResolve(t *testing.T) {
	table := NewTable([]string{fakeHash("abcd1"), fakeHash("abcd2"), fakeHash("ffee")})

	tests := []struct {
		name  string
		ref   string
		want  string
		check func(error) bool
	}{
		{name: "too short", ref: "abc", check: errs.IsValidation},
		{name: "ambiguous", ref: "abcd", check: errs.IsAmbiguous},
		{name: "unique", ref: "abcd1", want: fakeHash("abcd1")},
		{name: "upper case", ref: "FFEE", want: fakeHash("ffee")},
		{name: "full", ref: fakeHash("ffee"), want: fakeHash("ffee")},
		{name: "missing", ref: "0123", check: errs.IsNotFound},
		{name: "not hex", ref: "zzzz", check: errs.IsNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := table.Resolve(tt.ref)
			if tt.check != nil {
				require.Error(t, err)
				assert.True(t, tt.check(err), "unexpected error %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveMessages(t *testing.T) {
	table := NewTable([]string{fakeHash("abcd1"), fakeHash("abcd2")})

	_, err := table.Resolve("ab")
	assert.Contains(t, err.Error(), "Hash too short")
	_, err = table.Resolve("abcd")
	assert.Contains(t, err.Error(), "ambiguous hash")
	_, err = table.Resolve("9999")
	assert.Contains(t, err.Error(), "Embedding not found")
}

func TestStoreResolve(t *testing.T) {
	s := newTestStore(t, CompressionNone)
	h, _, err := s.Put(embedding.New([]float64{1, 2, 3}, embedding.Float32), PutInfo{})
	require.NoError(t, err)

	got, err := s.Resolve(h[:8])
	require.NoError(t, err)
	assert.Equal(t, h, got)

	got, err = s.Resolve(h)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}
