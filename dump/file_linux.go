//go:build linux

package dump

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// createDumpFile opens path for writing and reserves prealloc bytes with
// fallocate. Filesystems without fallocate support are written unreserved.
func createDumpFile(path string, prealloc int64) (*os.File, error) {
	fd, err := unix.Open(path, unix.O_WRONLY|unix.O_CREAT|unix.O_TRUNC|unix.O_CLOEXEC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open dump file: %w", err)
	}

	if prealloc > 0 {
		if err := unix.Fallocate(fd, 0, 0, prealloc); err != nil && !errors.Is(err, unix.EOPNOTSUPP) {
			unix.Close(fd)
			return nil, fmt.Errorf("failed to preallocate dump file: %w", err)
		}
	}

	file := os.NewFile(uintptr(fd), path)
	if file == nil {
		unix.Close(fd)
		return nil, fmt.Errorf("failed to create file descriptor")
	}
	return file, nil
}

// finishDumpFile drops the unused preallocation and flushes data to disk.
func finishDumpFile(f *os.File, size int64) error {
	fd := int(f.Fd())
	if err := unix.Ftruncate(fd, size); err != nil {
		return fmt.Errorf("failed to truncate dump file: %w", err)
	}
	if err := unix.Fdatasync(fd); err != nil {
		return fmt.Errorf("failed to sync dump file: %w", err)
	}
	return nil
}
