// Package dump writes ring snapshots to files.
package dump

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/neehar-mavuduru/logring/samlog"
)

const timestampFormat = "2006-01-02_15-04-05.000000"

// Config holds the dump writer configuration
type Config struct {
	Dir string // Directory receiving dump files (required)

	// PreallocateSize is reserved with fallocate before writing; the file is
	// truncated to its real size afterwards. 0 uses the ring size.
	PreallocateSize int64

	ReadBufferSize int // Bytes pulled from the session per write (default: 64KB)

	// UploadChannel receives the path of every completed dump (optional)
	UploadChannel chan<- string
}

// Validate checks if the configuration is valid and applies defaults where needed
func (c *Config) Validate() error {
	if c.Dir == "" {
		return fmt.Errorf("dump directory is required")
	}
	if c.PreallocateSize < 0 {
		return fmt.Errorf("preallocate size cannot be negative")
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = 64 * 1024
	}
	return nil
}

// Writer renders snapshot sessions into files
type Writer struct {
	config Config
	log    *slog.Logger
	now    func() time.Time
}

// NewWriter creates the dump directory and returns a Writer
func NewWriter(config Config, log *slog.Logger) (*Writer, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := os.MkdirAll(config.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create dump directory: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Writer{config: config, log: log, now: time.Now}, nil
}

// WriteSnapshot dumps a frozen copy of l to <dir>/<ring>_<timestamp>.log and
// returns the file path and its size.
func (w *Writer) WriteSnapshot(ctx context.Context, l *samlog.Logger) (string, int64, error) {
	s, err := l.OpenSession(samlog.SessionOptions{Snapshot: true})
	if err != nil {
		return "", 0, fmt.Errorf("failed to open snapshot of %s: %w", l.Name(), err)
	}
	defer s.Close()

	path := filepath.Join(w.config.Dir, fmt.Sprintf("%s_%s.log", l.Name(), w.now().Format(timestampFormat)))

	prealloc := w.config.PreallocateSize
	if prealloc == 0 {
		prealloc = int64(l.Config().RingSize)
	}
	f, err := createDumpFile(path, prealloc)
	if err != nil {
		return "", 0, err
	}

	written, err := w.copySession(ctx, f, s)
	if err == nil {
		err = finishDumpFile(f, written)
	}
	if cerr := f.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("failed to close dump file: %w", cerr)
	}
	if err != nil {
		os.Remove(path)
		return "", 0, err
	}

	w.log.Debug("ring dumped", "ring", l.Name(), "path", path, "bytes", written,
		"snapshot", s.IsSnapshot())
	w.complete(path)
	return path, written, nil
}

func (w *Writer) copySession(ctx context.Context, f *os.File, s *samlog.Session) (int64, error) {
	buf := make([]byte, w.config.ReadBufferSize)
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		n, err := s.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				return written, fmt.Errorf("failed to write dump: %w", werr)
			}
			written += int64(n)
		}
		if errors.Is(err, io.EOF) {
			return written, nil
		}
		if err != nil {
			return written, fmt.Errorf("failed to read ring: %w", err)
		}
	}
}

// complete hands a finished dump to the upload channel without blocking.
func (w *Writer) complete(path string) {
	if w.config.UploadChannel == nil {
		return
	}
	select {
	case w.config.UploadChannel <- path:
	default:
		w.log.Warn("upload channel full, skipping upload", "path", path)
	}
}

// DumpAll writes a snapshot of every ring held by m. It keeps going after a
// failed ring and returns the first error.
func (w *Writer) DumpAll(ctx context.Context, m *samlog.Manager) ([]string, error) {
	var paths []string
	var firstErr error
	for _, name := range m.Names() {
		l, ok := m.Lookup(name)
		if !ok {
			continue
		}
		path, _, err := w.WriteSnapshot(ctx, l)
		if err != nil {
			w.log.Error("ring dump failed", "ring", name, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		paths = append(paths, path)
	}
	return paths, firstErr
}

// Run dumps every ring each interval until ctx is done.
func (w *Writer) Run(ctx context.Context, m *samlog.Manager, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.DumpAll(ctx, m)
		}
	}
}
