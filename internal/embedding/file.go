package embedding

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/kamusis/embr/internal/errs"
)

// ReadFile loads a single embedding from an input file.
//
// Supported formats, chosen by extension:
//   - .bin, .raw, .f32: flat little-endian float32; dims must be supplied
//   - .npy: NumPy array file; dims come from the header
//   - .json: a flat number array, or an object with an "embedding" array
//
// dims == 0 means "not supplied". A supplied dims that disagrees with a
// self-describing file is a dimension mismatch.
func ReadFile(path string, dims int) (*Embedding, error) {
	if dims < 0 {
		return nil, errs.Errorf(errs.CodeEmbeddingInvalidDims, "Invalid dimensions: %d", dims)
	}
	ext := strings.ToLower(filepath.Ext(path))
	var (
		emb *Embedding
		err error
	)
	switch ext {
	case ".bin", ".raw", ".f32":
		emb, err = readRawFloat32(path, dims)
	case ".npy":
		emb, err = readNPY(path)
	case ".json":
		emb, err = readJSON(path)
	default:
		return nil, errs.Errorf(errs.CodeEmbeddingFormatInvalid,
			"unsupported embedding file format %q (want .bin, .npy or .json)", ext)
	}
	if err != nil {
		return nil, err
	}
	if dims > 0 && emb.Dims() != dims {
		return nil, errs.Errorf(errs.CodeEmbeddingDimMismatch,
			"Embedding dimensions do not match: file has %d, --dims %d", emb.Dims(), dims)
	}
	return emb, nil
}

func readRawFloat32(path string, dims int) (*Embedding, error) {
	if dims == 0 {
		return nil, errs.New(errs.CodeEmbeddingDimsRequired, "--dims required for .bin files", errs.FieldPath(path))
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.Errorf(errs.CodeEmbeddingReadFailure, "cannot open embedding file %s: %w", path, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, errs.Errorf(errs.CodeEmbeddingReadFailure, "cannot stat embedding file %s: %w", path, err)
	}
	if st.Size()%4 != 0 {
		return nil, errs.Errorf(errs.CodeEmbeddingFormatInvalid,
			"embedding file size is not a multiple of 4 bytes: %d", st.Size())
	}
	expected := int64(dims) * 4
	if st.Size() != expected {
		return nil, errs.Errorf(errs.CodeEmbeddingInvalidDims,
			"Invalid dimensions: file holds %d float32 values, --dims is %d", st.Size()/4, dims)
	}

	out := make([]float32, dims)
	if err := binary.Read(io.LimitReader(f, expected), binary.LittleEndian, out); err != nil {
		return nil, errs.Errorf(errs.CodeEmbeddingReadFailure, "cannot read vector from %s: %w", path, err)
	}
	values := make([]float64, dims)
	for i, v := range out {
		values[i] = float64(v)
	}
	return New(values, Float32), nil
}

var npyMagic = []byte("\x93NUMPY")

var (
	npyDescrRe = regexp.MustCompile(`'descr'\s*:\s*'([^']+)'`)
	npyShapeRe = regexp.MustCompile(`'shape'\s*:\s*\(([^)]*)\)`)
	npyOrderRe = regexp.MustCompile(`'fortran_order'\s*:\s*True`)
)

func readNPY(path string) (*Embedding, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Errorf(errs.CodeEmbeddingReadFailure, "cannot read embedding file %s: %w", path, err)
	}
	return ParseNPY(data)
}

// ParseNPY decodes a one-vector NumPy array file (format versions 1 to 3).
func ParseNPY(data []byte) (*Embedding, error) {
	if len(data) < 10 || !bytes.Equal(data[:6], npyMagic) {
		return nil, errs.New(errs.CodeEmbeddingFormatInvalid, "not a .npy file: bad magic")
	}
	major := data[6]
	var headerLen, offset int
	switch major {
	case 1:
		headerLen = int(binary.LittleEndian.Uint16(data[8:10]))
		offset = 10
	case 2, 3:
		if len(data) < 12 {
			return nil, errs.New(errs.CodeEmbeddingFormatInvalid, "truncated .npy header")
		}
		headerLen = int(binary.LittleEndian.Uint32(data[8:12]))
		offset = 12
	default:
		return nil, errs.Errorf(errs.CodeEmbeddingFormatInvalid, "unsupported .npy version %d", major)
	}
	if offset+headerLen > len(data) {
		return nil, errs.New(errs.CodeEmbeddingFormatInvalid, "truncated .npy header")
	}
	header := string(data[offset : offset+headerLen])
	body := data[offset+headerLen:]

	m := npyDescrRe.FindStringSubmatch(header)
	if m == nil {
		return nil, errs.New(errs.CodeEmbeddingFormatInvalid, ".npy header has no descr")
	}
	var dtype DType
	switch m[1] {
	case "<f4":
		dtype = Float32
	case "<f8":
		dtype = Float64
	case "|i1", "<i1", "i1":
		dtype = Int8
	default:
		return nil, errs.Errorf(errs.CodeEmbeddingDTypeInvalid, "unsupported .npy dtype %q", m[1])
	}
	s := npyShapeRe.FindStringSubmatch(header)
	if s == nil {
		return nil, errs.New(errs.CodeEmbeddingFormatInvalid, ".npy header has no shape")
	}
	dims, rank, err := vectorLength(s[1])
	if err != nil {
		return nil, err
	}
	if rank > 1 && npyOrderRe.MatchString(header) {
		return nil, errs.Errorf(errs.CodeEmbeddingFormatInvalid,
			"unsupported .npy layout: fortran_order with shape (%s)", s[1])
	}
	return Decode(body, dims, dtype)
}

// vectorLength accepts (N,), (1, N) and (N, 1) and returns N and the rank.
func vectorLength(shape string) (int, int, error) {
	var sizes []int
	for _, part := range strings.Split(shape, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(part, "L"))
		if err != nil {
			return 0, 0, errs.Errorf(errs.CodeEmbeddingFormatInvalid, "bad .npy shape %q", shape)
		}
		sizes = append(sizes, n)
	}
	switch {
	case len(sizes) == 1:
		if sizes[0] <= 0 {
			return 0, 0, errs.Errorf(errs.CodeEmbeddingInvalidDims, "Invalid dimensions: %d", sizes[0])
		}
		return sizes[0], 1, nil
	case len(sizes) == 2 && sizes[0] == 1 && sizes[1] > 0:
		return sizes[1], 2, nil
	case len(sizes) == 2 && sizes[1] == 1 && sizes[0] > 0:
		return sizes[0], 2, nil
	default:
		return 0, 0, errs.Errorf(errs.CodeEmbeddingInvalidDims,
			"Invalid dimensions: .npy shape (%s) is not a single vector", shape)
	}
}

func readJSON(path string) (*Embedding, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Errorf(errs.CodeEmbeddingReadFailure, "cannot read embedding file %s: %w", path, err)
	}
	var values []float64
	if err := json.Unmarshal(data, &values); err != nil {
		var wrapped struct {
			Embedding []float64 `json:"embedding"`
		}
		if err2 := json.Unmarshal(data, &wrapped); err2 != nil || wrapped.Embedding == nil {
			return nil, errs.Errorf(errs.CodeEmbeddingFormatInvalid, "invalid embedding JSON in %s: %w", path, err)
		}
		values = wrapped.Embedding
	}
	if len(values) == 0 {
		return nil, errs.New(errs.CodeEmbeddingInvalidDims, "Invalid dimensions: embedding is empty")
	}
	return New(values, Float32), nil
}
