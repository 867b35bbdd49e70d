package object

import (
	"bytes"
	"testing"

	"github.com/kamusis/embr/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCompression(t *testing.T) {
	for in, want := range map[string]Compression{
		"":     CompressionNone,
		"none": CompressionNone,
		"zstd": CompressionZSTD,
		"lz4":  CompressionLZ4,
	} {
		got, err := ParseCompression(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseCompression("brotli")
	require.Error(t, err)
	assert.True(t, errs.HasCode(err, errs.CodeObjectCodecInvalid))
}

func TestCompressRoundTrip(t *testing.T) {
	raw := bytes.Repeat([]byte{0, 0, 128, 63}, 256)

	for _, c := range []Compression{CompressionZSTD, CompressionLZ4} {
		t.Run(string(c), func(t *testing.T) {
			out, used, err := compress(raw, c)
			require.NoError(t, err)
			assert.Equal(t, c, used)
			assert.Less(t, len(out), len(raw))

			back, err := decompress(out, used, len(raw))
			require.NoError(t, err)
			assert.Equal(t, raw, back)
		})
	}
}

func TestDecompressRejectsGarbage(t *testing.T) {
	_, err := decompress([]byte("not zstd"), CompressionZSTD, 16)
	require.Error(t, err)
	assert.True(t, errs.IsInvalidValues(err))
}
