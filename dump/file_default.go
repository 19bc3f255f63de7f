//go:build !linux

package dump

import (
	"fmt"
	"os"
)

func createDumpFile(path string, _ int64) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open dump file: %w", err)
	}
	return f, nil
}

func finishDumpFile(f *os.File, size int64) error {
	if err := f.Truncate(size); err != nil {
		return fmt.Errorf("failed to truncate dump file: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync dump file: %w", err)
	}
	return nil
}
