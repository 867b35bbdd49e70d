// Package embedding defines the in-memory embedding value and its raw byte codec.
package embedding

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/kamusis/embr/internal/errs"
)

// DType is the element type of the raw embedding bytes.
type DType string

const (
	Float32 DType = "float32"
	Float64 DType = "float64"
	Int8    DType = "int8"
)

// ParseDType parses a dtype tag.
func ParseDType(s string) (DType, error) {
	switch DType(s) {
	case Float32, Float64, Int8:
		return DType(s), nil
	case "":
		return Float32, nil
	default:
		return "", errs.Errorf(errs.CodeEmbeddingDTypeInvalid, "unsupported dtype %q (want float32, float64 or int8)", s)
	}
}

// Size returns the byte width of one element.
func (d DType) Size() int {
	switch d {
	case Float64:
		return 8
	case Int8:
		return 1
	default:
		return 4
	}
}

// Embedding is a fixed-length vector plus the dtype its bytes are stored in.
// Values are always held as float64 so comparisons run at full precision.
type Embedding struct {
	Values []float64
	DType  DType
}

// New returns an embedding over values with the given dtype.
func New(values []float64, dtype DType) *Embedding {
	if dtype == "" {
		dtype = Float32
	}
	return &Embedding{Values: values, DType: dtype}
}

// Dims returns the dimension count.
func (e *Embedding) Dims() int {
	return len(e.Values)
}

// Encode renders the embedding as little-endian raw bytes in its dtype.
func (e *Embedding) Encode() ([]byte, error) {
	if len(e.Values) == 0 {
		return nil, errs.New(errs.CodeEmbeddingInvalidDims, "Invalid dimensions: embedding is empty")
	}
	size := e.DType.Size()
	out := make([]byte, len(e.Values)*size)
	for i, v := range e.Values {
		off := i * size
		switch e.DType {
		case Float32:
			binary.LittleEndian.PutUint32(out[off:], math.Float32bits(float32(v)))
		case Float64:
			binary.LittleEndian.PutUint64(out[off:], math.Float64bits(v))
		case Int8:
			if v != math.Trunc(v) || v < math.MinInt8 || v > math.MaxInt8 {
				return nil, errs.Errorf(errs.CodeEmbeddingInvalidValues,
					"Invalid embedding values: %v at index %d does not fit int8", v, i)
			}
			out[off] = byte(int8(v))
		default:
			return nil, errs.Errorf(errs.CodeEmbeddingDTypeInvalid, "unsupported dtype %q", e.DType)
		}
	}
	return out, nil
}

// Decode parses raw little-endian bytes holding dims elements of dtype.
func Decode(raw []byte, dims int, dtype DType) (*Embedding, error) {
	if dims <= 0 {
		return nil, errs.Errorf(errs.CodeEmbeddingInvalidDims, "Invalid dimensions: %d", dims)
	}
	size := dtype.Size()
	if len(raw)%size != 0 || len(raw)/size != dims {
		return nil, errs.Errorf(errs.CodeEmbeddingDimMismatch,
			"Embedding dimensions do not match: %d bytes cannot hold %d %s values", len(raw), dims, dtype)
	}
	values := make([]float64, dims)
	for i := range values {
		off := i * size
		switch dtype {
		case Float32:
			values[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(raw[off:])))
		case Float64:
			values[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[off:]))
		case Int8:
			values[i] = float64(int8(raw[off]))
		default:
			return nil, errs.Errorf(errs.CodeEmbeddingDTypeInvalid, "unsupported dtype %q", dtype)
		}
	}
	return &Embedding{Values: values, DType: dtype}, nil
}

// CheckFinite returns a data-integrity error if any value is NaN or Inf.
func CheckFinite(values []float64) error {
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errs.Errorf(errs.CodeEmbeddingInvalidValues,
				"Invalid embedding values: %v at index %d", v, i)
		}
	}
	return nil
}

// NormalizeL2 returns a new vector normalized to unit L2 norm.
func NormalizeL2(v []float64) []float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	out := make([]float64, len(v))
	n := math.Sqrt(sum)
	if n == 0 {
		copy(out, v)
		return out
	}
	for i := range v {
		out[i] = v[i] / n
	}
	return out
}

func (e *Embedding) String() string {
	return fmt.Sprintf("embedding(%d x %s)", len(e.Values), e.DType)
}
