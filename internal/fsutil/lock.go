package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// lockPoll is how often a busy lock is retried.
const lockPoll = 50 * time.Millisecond

// Lock takes an exclusive advisory lock on path, retrying until timeout.
// The returned func releases it.
func Lock(path string, timeout time.Duration) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return func() {}, fmt.Errorf("cannot create %s: %w", filepath.Dir(path), err)
	}
	l := flock.New(path)
	deadline := time.Now().Add(timeout)
	for {
		locked, err := l.TryLock()
		if err != nil {
			return func() {}, fmt.Errorf("cannot acquire lock %s: %w", path, err)
		}
		if locked {
			return func() { _ = l.Unlock() }, nil
		}
		if time.Now().After(deadline) {
			return func() {}, &LockTimeoutError{Path: path}
		}
		time.Sleep(lockPoll)
	}
}

// LockTimeoutError reports that another process held a lock for too long.
type LockTimeoutError struct {
	Path string
}

func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("another embr process is holding %s", e.Path)
}
