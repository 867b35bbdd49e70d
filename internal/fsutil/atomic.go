// Package fsutil holds the crash-safe file primitives the repository relies on.
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// WriteFileAtomic replaces path with data so that readers observe either the
// old or the new content, never a partial write.
//
// The data is written to a temp file in the same directory, fsynced, renamed
// over path, and the directory entry is fsynced.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("cannot create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("cannot write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("cannot sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("cannot close %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("cannot chmod %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("cannot rename %s to %s: %w", tmpName, path, err)
	}
	committed = true
	return SyncDir(dir)
}

// AppendRecord appends one record to path with a single write and fsyncs it.
// Callers serialize concurrent appenders with a lock; O_APPEND keeps each
// record contiguous even if they do not.
func AppendRecord(path string, record []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create %s: %w", filepath.Dir(path), err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("cannot open %s: %w", path, err)
	}
	if _, err := f.Write(record); err != nil {
		_ = f.Close()
		return fmt.Errorf("cannot append to %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("cannot sync %s: %w", path, err)
	}
	return f.Close()
}

// CopyFile copies src to dst atomically. A missing src produces an empty dst.
func CopyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("cannot read %s: %w", src, err)
	}
	return WriteFileAtomic(dst, data, 0o644)
}

// IsTempName reports whether name was produced by WriteFileAtomic.
func IsTempName(name string) bool {
	return strings.HasPrefix(name, ".") && strings.Contains(name, ".tmp-")
}
