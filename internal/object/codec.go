package object

import (
	"sync"

	"github.com/kamusis/embr/internal/errs"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression names the codec applied to a blob on disk.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionZSTD Compression = "zstd"
	CompressionLZ4  Compression = "lz4"
)

// ParseCompression parses a core.compression value.
func ParseCompression(s string) (Compression, error) {
	switch Compression(s) {
	case "", CompressionNone:
		return CompressionNone, nil
	case CompressionZSTD, CompressionLZ4:
		return Compression(s), nil
	default:
		return "", errs.Errorf(errs.CodeObjectCodecInvalid, "unsupported compression %q (want none, zstd or lz4)", s)
	}
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// compress returns the encoded payload and the codec actually used. Payloads
// that do not shrink are stored raw.
func compress(raw []byte, c Compression) ([]byte, Compression, error) {
	var out []byte
	switch c {
	case CompressionNone, "":
		return raw, CompressionNone, nil
	case CompressionZSTD:
		enc := getZstdEncoder()
		out = enc.EncodeAll(raw, nil)
		zstdEncoderPool.Put(enc)
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(raw)))
		n, err := lz4.CompressBlock(raw, buf, nil)
		if err != nil {
			return nil, "", errs.Errorf(errs.CodeObjectWriteFailure, "lz4 compression failed: %w", err)
		}
		// n == 0 means incompressible
		out = buf[:n]
	default:
		return nil, "", errs.Errorf(errs.CodeObjectCodecInvalid, "unsupported compression %q", c)
	}
	if len(out) == 0 || len(out) >= len(raw) {
		return raw, CompressionNone, nil
	}
	return out, c, nil
}

// decompress reverses compress. size is the raw payload length from the sidecar.
func decompress(data []byte, c Compression, size int) ([]byte, error) {
	switch c {
	case CompressionNone, "":
		return data, nil
	case CompressionZSTD:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)
		out, err := dec.DecodeAll(data, make([]byte, 0, size))
		if err != nil {
			return nil, errs.Errorf(errs.CodeObjectCorrupt, "zstd decompression failed: %w", err)
		}
		return out, nil
	case CompressionLZ4:
		out := make([]byte, size)
		n, err := lz4.UncompressBlock(data, out)
		if err != nil {
			return nil, errs.Errorf(errs.CodeObjectCorrupt, "lz4 decompression failed: %w", err)
		}
		return out[:n], nil
	default:
		return nil, errs.Errorf(errs.CodeObjectCodecInvalid, "unsupported compression %q", c)
	}
}
