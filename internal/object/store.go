// Package object implements the content-addressable embedding pool.
//
// Every object is a pair of files under the pool directory: <hash>.meta, a
// JSON sidecar, and <hash>.bin, the (optionally compressed) raw vector bytes.
// The .bin file is written last and acts as the commit marker: an object
// exists if and only if its .bin exists.
package object

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/kamusis/embr/internal/embedding"
	"github.com/kamusis/embr/internal/errs"
	"github.com/kamusis/embr/internal/fsutil"
)

const (
	blobExt = ".bin"
	metaExt = ".meta"

	// HashLen is the length of a full hex hash.
	HashLen = sha256.Size * 2
)

// Store is an object pool rooted at a directory.
type Store struct {
	dir         string
	compression Compression
	log         *slog.Logger
	now         func() time.Time
}

// NewStore returns a store over dir. New blobs are written with compression c.
func NewStore(dir string, c Compression, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	if c == "" {
		c = CompressionNone
	}
	return &Store{dir: dir, compression: c, log: log, now: time.Now}
}

// Dir returns the pool directory.
func (s *Store) Dir() string { return s.dir }

// Hash computes the content hash of raw embedding bytes. Only the dimension
// count and the bytes take part; metadata never does.
func Hash(raw []byte, dims int) string {
	h := sha256.New()
	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(dims))
	h.Write(hdr[:])
	h.Write(raw)
	return hex.EncodeToString(h.Sum(nil))
}

// PutInfo carries the metadata recorded when an object is first written.
type PutInfo struct {
	Source     string
	Model      string
	Parent     string
	Attributes Attributes
}

// Put stores emb and returns its hash. created is false when the object was
// already present; in that case only the blob's mtime is refreshed, so gc's
// prune window covers the caller until it records the hash, and the first
// writer's sidecar is kept.
func (s *Store) Put(emb *embedding.Embedding, info PutInfo) (hash string, created bool, err error) {
	raw, err := emb.Encode()
	if err != nil {
		return "", false, err
	}
	hash = Hash(raw, emb.Dims())
	if s.Has(hash) {
		s.log.Debug("object exists, skipping write", "hash", hash)
		_, blobPath := s.paths(hash)
		now := s.now()
		if err := os.Chtimes(blobPath, now, now); err != nil {
			s.log.Warn("cannot refresh object mtime", "hash", hash, "error", err)
		}
		return hash, false, nil
	}

	payload, used, err := compress(raw, s.compression)
	if err != nil {
		return "", false, err
	}
	meta := Meta{
		Hash:        hash,
		Dims:        emb.Dims(),
		DType:       emb.DType,
		Compression: used,
		Size:        len(raw),
		Source:      info.Source,
		Model:       info.Model,
		CreatedAt:   s.now().UTC(),
		Parent:      info.Parent,
		Attributes:  info.Attributes,
	}
	metaData, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", false, errs.Errorf(errs.CodeObjectWriteFailure, "cannot encode metadata for %s: %w", hash, err)
	}
	if err := s.commit(hash, payload, append(metaData, '\n')); err != nil {
		return "", false, err
	}
	s.log.Debug("object written", "hash", hash, "dims", meta.Dims, "compression", used, "bytes", len(payload))
	return hash, true, nil
}

// commit writes the sidecar then the blob, each atomically.
func (s *Store) commit(hash string, payload, metaData []byte) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return errs.Errorf(errs.CodeObjectWriteFailure, "cannot create object directory: %w", err)
	}
	metaPath, blobPath := s.paths(hash)
	if err := fsutil.WriteFileAtomic(metaPath, metaData, 0o444); err != nil {
		return errs.Wrap(err, errs.CodeObjectWriteFailure, "cannot write object metadata", errs.FieldHash(hash))
	}
	if err := fsutil.WriteFileAtomic(blobPath, payload, 0o444); err != nil {
		return errs.Wrap(err, errs.CodeObjectWriteFailure, "cannot write object", errs.FieldHash(hash))
	}
	return nil
}

// Has reports whether a committed object exists for a full hash.
func (s *Store) Has(hash string) bool {
	if !isHash(hash) {
		return false
	}
	_, blobPath := s.paths(hash)
	_, err := os.Stat(blobPath)
	return err == nil
}

// Meta reads the sidecar of a committed object.
func (s *Store) Meta(hash string) (*Meta, error) {
	if !s.Has(hash) {
		return nil, errs.New(errs.CodeObjectNotFound, "Embedding not found", errs.FieldHash(hash))
	}
	metaPath, _ := s.paths(hash)
	data, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, errs.Errorf(errs.CodeObjectReadFailure, "cannot read metadata for %s: %w", hash, err)
	}
	var m Meta
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errs.Errorf(errs.CodeObjectCorrupt, "object %s has unreadable metadata: %w", hash, err)
	}
	return &m, nil
}

// Get loads an object, verifying that its bytes still hash to its name.
func (s *Store) Get(hash string) (*embedding.Embedding, *Meta, error) {
	m, err := s.Meta(hash)
	if err != nil {
		return nil, nil, err
	}
	_, blobPath := s.paths(hash)
	payload, err := os.ReadFile(blobPath)
	if err != nil {
		return nil, nil, errs.Errorf(errs.CodeObjectReadFailure, "cannot read object %s: %w", hash, err)
	}
	raw, err := decompress(payload, m.Compression, m.Size)
	if err != nil {
		return nil, nil, err
	}
	if got := Hash(raw, m.Dims); got != hash {
		return nil, nil, errs.New(errs.CodeObjectCorrupt,
			"object content does not match its hash", errs.FieldHash(hash), errs.Field("actual", got))
	}
	emb, err := embedding.Decode(raw, m.Dims, m.DType)
	if err != nil {
		return nil, nil, errs.Wrap(err, errs.CodeObjectCorrupt, "object has inconsistent metadata", errs.FieldHash(hash))
	}
	return emb, m, nil
}

// ReadFiles returns the on-disk blob and sidecar bytes of an object, as used
// by remote transfer.
func (s *Store) ReadFiles(hash string) (blob, meta []byte, err error) {
	if !s.Has(hash) {
		return nil, nil, errs.New(errs.CodeObjectNotFound, "Embedding not found", errs.FieldHash(hash))
	}
	metaPath, blobPath := s.paths(hash)
	if meta, err = os.ReadFile(metaPath); err != nil {
		return nil, nil, errs.Errorf(errs.CodeObjectReadFailure, "cannot read metadata for %s: %w", hash, err)
	}
	if blob, err = os.ReadFile(blobPath); err != nil {
		return nil, nil, errs.Errorf(errs.CodeObjectReadFailure, "cannot read object %s: %w", hash, err)
	}
	return blob, meta, nil
}

// Import adds an object received from elsewhere after checking that the blob
// really hashes to hash. Existing objects are left untouched.
func (s *Store) Import(hash string, blob, metaData []byte) error {
	if !isHash(hash) {
		return errs.Errorf(errs.CodeObjectHashInvalid, "invalid object hash %q", hash)
	}
	if s.Has(hash) {
		return nil
	}
	var m Meta
	if err := json.Unmarshal(metaData, &m); err != nil {
		return errs.Errorf(errs.CodeObjectCorrupt, "object %s has unreadable metadata: %w", hash, err)
	}
	raw, err := decompress(blob, m.Compression, m.Size)
	if err != nil {
		return err
	}
	if Hash(raw, m.Dims) != hash || m.Hash != hash {
		return errs.New(errs.CodeObjectCorrupt, "object content does not match its hash", errs.FieldHash(hash))
	}
	return s.commit(hash, blob, metaData)
}

// Info is what gc needs to know about an object.
type Info struct {
	Hash    string
	Size    int64
	ModTime time.Time
}

// List returns every committed hash in sorted order.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, errs.Errorf(errs.CodeObjectReadFailure, "cannot list objects: %w", err)
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, blobExt) {
			continue
		}
		if h := strings.TrimSuffix(name, blobExt); isHash(h) {
			out = append(out, h)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Stat returns size and modification time of a committed object's blob.
func (s *Store) Stat(hash string) (Info, error) {
	if !isHash(hash) {
		return Info{}, errs.Errorf(errs.CodeObjectHashInvalid, "invalid object hash %q", hash)
	}
	_, blobPath := s.paths(hash)
	st, err := os.Stat(blobPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Info{}, errs.New(errs.CodeObjectNotFound, "Embedding not found", errs.FieldHash(hash))
		}
		return Info{}, errs.Errorf(errs.CodeObjectReadFailure, "cannot stat object %s: %w", hash, err)
	}
	return Info{Hash: hash, Size: st.Size(), ModTime: st.ModTime()}, nil
}

// Remove deletes an object. The blob goes first so a crash leaves at most a
// harmless orphan sidecar.
func (s *Store) Remove(hash string) error {
	if !isHash(hash) {
		return errs.Errorf(errs.CodeObjectHashInvalid, "invalid object hash %q", hash)
	}
	metaPath, blobPath := s.paths(hash)
	for _, p := range []string{blobPath, metaPath} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return errs.Errorf(errs.CodeObjectWriteFailure, "cannot remove %s: %w", p, err)
		}
	}
	return fsutil.SyncDir(s.dir)
}

// Sweep removes leftovers of interrupted writes older than before: temp files
// and sidecars whose blob was never committed. It returns the removed names.
func (s *Store) Sweep(before time.Time, dryRun bool) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, errs.Errorf(errs.CodeObjectReadFailure, "cannot list objects: %w", err)
	}
	var removed []string
	for _, e := range entries {
		name := e.Name()
		stale := fsutil.IsTempName(name)
		if !stale && strings.HasSuffix(name, metaExt) {
			stale = !s.Has(strings.TrimSuffix(name, metaExt))
		}
		if !stale {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(before) {
			continue
		}
		removed = append(removed, name)
		if dryRun {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, errs.Errorf(errs.CodeObjectWriteFailure, "cannot remove %s: %w", name, err)
		}
	}
	return removed, nil
}

func (s *Store) paths(hash string) (metaPath, blobPath string) {
	return filepath.Join(s.dir, hash+metaExt), filepath.Join(s.dir, hash+blobExt)
}

func isHash(s string) bool {
	return len(s) == HashLen && isHex(s)
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
