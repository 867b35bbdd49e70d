//go:build !windows

package fsutil

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// SyncDir fsyncs a directory so that a preceding rename into it survives a crash.
func SyncDir(dir string) error {
	fd, err := unix.Open(dir, unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("cannot open directory %s: %w", dir, err)
	}
	defer unix.Close(fd)
	if err := unix.Fsync(fd); err != nil && err != unix.EINVAL {
		return fmt.Errorf("cannot sync directory %s: %w", dir, err)
	}
	return nil
}
