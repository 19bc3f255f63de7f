// Package samlog is the front end of a logring ring: filtered logging entry
// points for producers and per-reader sessions for consumers.
package samlog

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/neehar-mavuduru/logring/logring"
)

var (
	ErrClosed  = errors.New("samlog: logger closed")
	ErrDropped = errors.New("samlog: record dropped")
)

// Statistics holds operational statistics for the logger
type Statistics struct {
	TotalLogs    atomic.Int64 // Push attempts that passed filtering
	DroppedLogs  atomic.Int64 // Records refused by the ring (too long, closed)
	FilteredLogs atomic.Int64 // Records below the tag drop level or while disabled
	BytesWritten atomic.Int64 // Payload bytes committed
	Sessions     atomic.Int64 // Open reader sessions
}

// Stats is a point-in-time copy of the ring and logger counters.
type Stats struct {
	logring.Stats
	TotalLogs    int64
	DroppedLogs  int64
	FilteredLogs int64
	BytesWritten int64
	Sessions     int64
}

// Option customizes a Logger.
type Option func(*Logger)

// WithSlog sets the logger used for front-end diagnostics.
func WithSlog(log *slog.Logger) Option {
	return func(l *Logger) { l.log = log }
}

// WithRingOptions passes options through to the ring allocation.
func WithRingOptions(opts ...logring.Option) Option {
	return func(l *Logger) { l.ringOpts = append(l.ringOpts, opts...) }
}

// Logger owns one ring and serializes every access to it.
type Logger struct {
	ring   *logring.Ring
	config Config
	drop   [256]int8
	log    *slog.Logger

	ringOpts []logring.Option

	// allocSnapshot provides snapshot backing memory.
	allocSnapshot func(n int) []byte

	stats   Statistics
	enabled atomic.Bool
	closed  atomic.Bool
}

// New allocates a ring named name and its front end
func New(name string, config Config, opts ...Option) (*Logger, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	l := &Logger{
		config:        config,
		drop:          config.dropTable(),
		log:           slog.Default(),
		allocSnapshot: func(n int) []byte { return make([]byte, n) },
	}
	for _, opt := range opts {
		opt(l)
	}

	ring, err := logring.New(config.RingSize, config.SpareSize, name, l.ringOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate ring %s: %w", name, err)
	}
	ring.SetBinaryDecodeLen(config.BinaryDecodeLen)
	ring.Owner = l
	l.ring = ring
	l.enabled.Store(config.Enable)

	return l, nil
}

// Name returns the ring name.
func (l *Logger) Name() string { return l.ring.Name() }

// Config returns the validated configuration.
func (l *Logger) Config() Config { return l.config }

// Ring exposes the underlying ring. Callers must follow its locking contract.
func (l *Logger) Ring() *logring.Ring { return l.ring }

// SetEnabled turns recording on or off at runtime.
func (l *Logger) SetEnabled(on bool) { l.enabled.Store(on) }

// Enabled reports whether records are being recorded.
func (l *Logger) Enabled() bool { return l.enabled.Load() }

func (l *Logger) accept(tag logring.Tag, level uint8) bool {
	if !l.enabled.Load() || int(level) > int(l.drop[tag]) {
		l.stats.FilteredLogs.Add(1)
		return false
	}
	l.stats.TotalLogs.Add(1)
	return true
}

func (l *Logger) account(n int) int {
	if n == 0 {
		l.stats.DroppedLogs.Add(1)
		return 0
	}
	l.stats.BytesWritten.Add(int64(n))
	return n
}

// Printf records a formatted text line. It returns the payload length
// committed, 0 when filtered or dropped.
func (l *Logger) Printf(tag logring.Tag, level uint8, format string, args ...any) int {
	if !l.accept(tag, level) {
		return 0
	}
	l.ring.Lock()
	n := l.ring.PushString(tag, level, l.config.PrependHeader, format, args...)
	l.ring.Unlock()
	return l.account(n)
}

// Print records msg verbatim.
func (l *Logger) Print(tag logring.Tag, level uint8, msg string) int {
	return l.Printf(tag, level, "%s", msg)
}

// PrintBin records a binary payload, clamped to logring.MaxBlobSize.
func (l *Logger) PrintBin(tag logring.Tag, level uint8, data []byte) int {
	if !l.accept(tag, level) {
		return 0
	}
	l.ring.Lock()
	n := l.ring.PushBlob(tag, level, l.config.PrependHeader, data)
	l.ring.Unlock()
	return l.account(n)
}

// Inject records msg as a test_me line. Drop levels do not apply.
func (l *Logger) Inject(msg string) int {
	if l.closed.Load() {
		return 0
	}
	l.stats.TotalLogs.Add(1)
	l.ring.Lock()
	n := l.ring.PushString(logring.TagTestMe, LevelInfo, l.config.PrependHeader, "%s", msg)
	l.ring.Unlock()
	return l.account(n)
}

// Write implements io.Writer on top of Inject. p is recorded as one line.
func (l *Logger) Write(p []byte) (int, error) {
	if l.closed.Load() {
		return 0, ErrClosed
	}
	if l.Inject(string(p)) == 0 {
		return 0, ErrDropped
	}
	return len(p), nil
}

// Truncate discards every record.
func (l *Logger) Truncate() {
	l.ring.Lock()
	l.ring.Truncate()
	l.ring.Unlock()
}

// Stats returns the current ring and logger counters.
func (l *Logger) Stats() Stats {
	l.ring.Lock()
	rs := l.ring.Stats()
	l.ring.Unlock()
	return Stats{
		Stats:        rs,
		TotalLogs:    l.stats.TotalLogs.Load(),
		DroppedLogs:  l.stats.DroppedLogs.Load(),
		FilteredLogs: l.stats.FilteredLogs.Load(),
		BytesWritten: l.stats.BytesWritten.Load(),
		Sessions:     l.stats.Sessions.Load(),
	}
}

// Snapshot returns a frozen copy of the ring that can be read without
// locking.
func (l *Logger) Snapshot() (*logring.Ring, error) {
	if l.closed.Load() {
		return nil, ErrClosed
	}
	buf := l.allocSnapshot(l.config.RingSize + l.config.SpareSize)
	l.ring.Lock()
	defer l.ring.Unlock()
	return l.ring.Snapshot(buf, l.ring.Name())
}

// Close frees the ring and wakes blocked sessions. Further pushes are
// dropped and sessions report ErrClosed.
func (l *Logger) Close() error {
	if l.closed.Swap(true) {
		return nil
	}
	l.enabled.Store(false)
	l.ring.Lock()
	l.ring.Free()
	l.ring.Unlock()
	return nil
}
