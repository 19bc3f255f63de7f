package samlog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/neehar-mavuduru/logring/logring"
)

var (
	ErrSessionClosed = errors.New("samlog: session closed")

	// ErrStalled means the next record cannot be rendered into the session
	// buffer, so the session can make no progress.
	ErrStalled = errors.New("samlog: record does not fit the session buffer")
)

// SessionOptions selects what a session reads.
type SessionOptions struct {
	// Snapshot reads a frozen copy taken at open time instead of the live
	// ring. When no snapshot can be taken the session reads the live ring.
	Snapshot bool

	// Truncate discards the ring contents before the session starts.
	Truncate bool
}

type bufState int

const (
	emptied bufState = iota
	filled
)

// Session is one reader of a ring. Rendered records are pulled into a
// private double buffer and handed out from there, so a record that does not
// fit the caller's slice is served over several reads.
//
// A Session is not safe for concurrent use.
type Session struct {
	logger *Logger
	ring   *logring.Ring
	live   bool // ring is shared with producers and needs locking

	cur        logring.Cursor
	maxRecords int

	dbuf  []byte
	state bufState
	off   int // next byte of dbuf to hand out while filled
	used  int

	pos int64 // bytes delivered since the last seek

	closeOnce sync.Once
	closed    bool
}

// OpenSession starts a new reader positioned at the ring tail.
func (l *Logger) OpenSession(opts SessionOptions) (*Session, error) {
	if l.closed.Load() {
		return nil, ErrClosed
	}
	if opts.Truncate {
		l.Truncate()
	}

	s := &Session{
		logger:     l,
		ring:       l.ring,
		live:       true,
		maxRecords: l.config.MaxRecordsPerRead,
		dbuf:       make([]byte, l.config.DoubleBufferSize),
	}
	if opts.Snapshot {
		snap, err := l.Snapshot()
		if err != nil {
			l.log.Warn("snapshot unavailable, reading live ring",
				"ring", l.Name(), "error", err)
		} else {
			s.ring = snap
			s.live = false
		}
	}

	l.stats.Sessions.Add(1)
	return s, nil
}

// IsSnapshot reports whether the session reads a frozen copy.
func (s *Session) IsSnapshot() bool { return !s.live }

func (s *Session) lock() {
	if s.live {
		s.ring.Lock()
	}
}

func (s *Session) unlock() {
	if s.live {
		s.ring.Unlock()
	}
}

func (s *Session) usable() error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.live && s.logger.closed.Load() {
		return ErrClosed
	}
	return nil
}

// fill pulls the next batch of records into the double buffer. Only valid
// while emptied. It returns io.EOF when the cursor is at head.
func (s *Session) fill() error {
	s.lock()
	defer s.unlock()
	return s.fillLocked()
}

func (s *Session) fillLocked() error {
	n := s.ring.ReadNextRecords(s.maxRecords, &s.cur, s.dbuf)
	if n == 0 {
		if !s.ring.AtHead(s.cur) {
			return ErrStalled
		}
		return io.EOF
	}
	s.state, s.off, s.used = filled, 0, n
	return nil
}

// take hands out up to len(p) cached bytes.
func (s *Session) take(p []byte) int {
	k := copy(p, s.dbuf[s.off:s.used])
	s.off += k
	if s.off == s.used {
		s.state, s.off, s.used = emptied, 0, 0
	}
	s.pos += int64(k)
	return k
}

// Buffered returns how many rendered bytes are cached and not yet read.
func (s *Session) Buffered() int {
	if s.state == emptied {
		return 0
	}
	return s.used - s.off
}

// Read returns rendered records without blocking. It returns io.EOF when
// nothing is pending; on a live ring more data may arrive later.
func (s *Session) Read(p []byte) (int, error) {
	if err := s.usable(); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}
	if s.state == emptied {
		if err := s.fill(); err != nil {
			return 0, err
		}
	}
	return s.take(p), nil
}

// ReadContext is Read that waits for new records on a live ring until ctx
// is done. A snapshot session returns io.EOF once exhausted.
func (s *Session) ReadContext(ctx context.Context, p []byte) (int, error) {
	if !s.live {
		return s.Read(p)
	}
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if err := s.usable(); err != nil {
			return 0, err
		}
		if len(p) == 0 {
			return 0, nil
		}
		if s.state == filled {
			return s.take(p), nil
		}

		s.ring.Lock()
		if s.logger.closed.Load() {
			s.ring.Unlock()
			return 0, ErrClosed
		}
		err := s.fillLocked()
		if !errors.Is(err, io.EOF) {
			s.ring.Unlock()
			if err != nil {
				return 0, err
			}
			return s.take(p), nil
		}
		changed := s.ring.Changed()
		s.ring.Unlock()

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-changed:
		}
	}
}

// Seek repositions the session within the rendered stream, reached by
// replaying from the tail. The target is clamped to [0, LoggedBytes-1].
// LoggedBytes counts stored payload, which equals the rendered length only
// for text records: binary records render as a header plus hex and lost
// spans as resync markers, so on such rings the upper clamp is approximate
// and positions past it are reached by reading on.
func (s *Session) Seek(offset int64, whence int) (int64, error) {
	if err := s.usable(); err != nil {
		return 0, err
	}

	s.lock()
	logged := int64(s.ring.LoggedBytes())
	s.unlock()

	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = s.pos + offset
	case io.SeekEnd:
		target = logged + offset
	default:
		return 0, fmt.Errorf("samlog: invalid whence %d", whence)
	}
	target = min(max(target, 0), max(logged-1, 0))

	s.cur.Reset()
	s.state, s.off, s.used = emptied, 0, 0
	s.pos = 0

	for s.pos < target {
		if err := s.fill(); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return s.pos, err
		}
		skip := int(min(target-s.pos, int64(s.used)))
		s.off = skip
		s.pos += int64(skip)
		if s.off == s.used {
			s.state, s.off, s.used = emptied, 0, 0
		}
	}
	return s.pos, nil
}

// Close releases the double buffer and any snapshot.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closed = true
		if !s.live {
			s.ring.Free()
		}
		s.dbuf = nil
		s.logger.stats.Sessions.Add(-1)
	})
	return nil
}
