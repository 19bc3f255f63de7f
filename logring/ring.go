// Package logring implements a self-describing circular log buffer.
//
// Every record is a fixed DescriptorSize descriptor followed by its payload.
// The descriptor carries a sync marker and a CRC bound to the record's own
// offset, so a reader holding a stale position notices it has been lapped
// and resynchronizes instead of decoding garbage.
//
// A Ring is not internally synchronized. Every data operation (pushes,
// reads, Truncate, Snapshot) must run while the caller holds the ring's lock
// (Ring.Lock / Ring.Unlock), and none of them block or perform I/O. One lock
// covers both the ring bytes and the spare staging area, so formatting a
// record and committing it happen as a single critical section.
package logring

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

const (
	// MaxNameLen bounds the ring name.
	MaxNameLen = 16

	// MaxBlobSize is the largest binary payload accepted by PushBlob;
	// longer blobs are clamped.
	MaxBlobSize = 1920

	// DefaultBinaryDecodeLen is how many payload bytes of a binary record
	// are hex dumped when it is read back.
	DefaultBinaryDecodeLen = 64
)

var (
	ErrInvalidSize  = errors.New("logring: invalid ring size")
	ErrSpareSize    = errors.New("logring: invalid spare size")
	ErrSnapshotSize = errors.New("logring: snapshot buffer size mismatch")
	ErrFreed        = errors.New("logring: ring has been freed")
)

var epoch = time.Now()

func monotonicNanos() int64 {
	return int64(time.Since(epoch))
}

// Option customizes a Ring at allocation.
type Option func(*Ring)

// WithClock sets the monotonic nanosecond clock used to stamp records.
func WithClock(now func() int64) Option {
	return func(r *Ring) { r.now = now }
}

// WithCore sets the function reporting the CPU a record originates from.
func WithCore(core func() uint8) Option {
	return func(r *Ring) { r.core = core }
}

// WithContext sets the function reporting the execution context marker
// (CtxProcess, CtxIRQ, CtxSoftIRQ) of the producer.
func WithContext(ctx func() byte) Option {
	return func(r *Ring) { r.ctx = ctx }
}

// Ring is a fixed-size byte ring holding whole, CRC-protected records.
//
// head is the offset of the most recently written record, not the next free
// byte. tail is the oldest live record and last the highest record start in
// the current era. Records never straddle bufSize: a record that does not fit
// at the end is placed at offset 0.
type Ring struct {
	mu sync.Mutex

	name      string
	buf       []byte // ring proper followed by the spare area
	bufSize   int
	spareSize int

	head    Offset
	tail    Offset
	last    Offset
	records int
	written uint64
	wraps   uint64
	oos     uint64

	decodeLen int

	// changed is closed by the next append; nil until someone waits.
	changed chan struct{}

	now  func() int64
	core func() uint8
	ctx  func() byte

	// Owner is front-end bookkeeping, never interpreted by the ring.
	Owner any
}

// New allocates a zeroed ring of size bytes plus a spare staging area of
// spareSize bytes. spareSize bounds the largest record.
func New(size, spareSize int, name string, opts ...Option) (*Ring, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	if spareSize <= DescriptorSize || spareSize >= size {
		return nil, fmt.Errorf("%w: %d (ring %d)", ErrSpareSize, spareSize, size)
	}

	r := &Ring{
		name:      truncateName(name),
		buf:       make([]byte, size+spareSize),
		bufSize:   size,
		spareSize: spareSize,
		decodeLen: DefaultBinaryDecodeLen,
		now:       monotonicNanos,
		core:      func() uint8 { return 0 },
		ctx:       func() byte { return CtxProcess },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func truncateName(name string) string {
	if len(name) > MaxNameLen {
		return name[:MaxNameLen]
	}
	return name
}

// Free releases the ring storage and wakes any waiter. Safe on nil.
func (r *Ring) Free() {
	if r == nil {
		return
	}
	r.notify()
	r.Truncate()
	r.buf = nil
}

// Lock acquires the ring lock.
func (r *Ring) Lock() { r.mu.Lock() }

// Unlock releases the ring lock.
func (r *Ring) Unlock() { r.mu.Unlock() }

// Name returns the ring name.
func (r *Ring) Name() string { return r.name }

// Size returns the size of the ring proper.
func (r *Ring) Size() int { return r.bufSize }

// SpareSize returns the size of the spare staging area.
func (r *Ring) SpareSize() int { return r.spareSize }

func (r *Ring) Head() Offset    { return r.head }
func (r *Ring) Tail() Offset    { return r.tail }
func (r *Ring) Last() Offset    { return r.last }
func (r *Ring) Records() int    { return r.records }
func (r *Ring) Written() uint64 { return r.written }
func (r *Ring) Wraps() uint64   { return r.wraps }
func (r *Ring) OOS() uint64     { return r.oos }

// SetBinaryDecodeLen sets how many bytes of a binary payload are rendered
// on read. Values <= 0 restore the default.
func (r *Ring) SetBinaryDecodeLen(n int) {
	if n <= 0 {
		n = DefaultBinaryDecodeLen
	}
	r.decodeLen = n
}

// Changed returns a channel closed by the next successful append or by Free.
// Call it with the lock held, then wait on the channel without it.
func (r *Ring) Changed() <-chan struct{} {
	if r.changed == nil {
		r.changed = make(chan struct{})
	}
	return r.changed
}

func (r *Ring) notify() {
	if r.changed != nil {
		close(r.changed)
		r.changed = nil
	}
}

// Truncate discards every record and resets all cursors and counters.
func (r *Ring) Truncate() {
	r.head, r.tail, r.last = 0, 0, 0
	r.records = 0
	r.written = 0
	r.wraps = 0
	if r.buf != nil {
		clear(r.buf[:DescriptorSize])
	}
}

func (r *Ring) spare() []byte {
	return r.buf[r.bufSize:]
}

func (r *Ring) recordAt(pos Offset) Record {
	return UnmarshalRecord(r.buf[pos:])
}

func (r *Ring) slotLenAt(pos Offset) int {
	rec := r.recordAt(pos)
	return rec.SlotLen()
}

// nextFreeSlot is where the next record would go without wrapping.
func (r *Ring) nextFreeSlot() Offset {
	if r.records == 0 {
		return r.head
	}
	return r.head + Offset(r.slotLenAt(r.head))
}

// FreeBytes is the contiguous room between the next free slot and either
// the tail or the end of the ring.
func (r *Ring) FreeBytes() int {
	next := r.nextFreeSlot()
	if r.head >= r.tail {
		return r.bufSize - int(next)
	}
	return int(r.tail - next)
}

// UsedBytes is bufSize minus FreeBytes.
func (r *Ring) UsedBytes() int {
	return r.bufSize - r.FreeBytes()
}

// LoggedBytes counts payload bytes only.
func (r *Ring) LoggedBytes() int {
	return r.UsedBytes() - r.records*DescriptorSize
}

// IsPositionSafe reports whether pos is inside the ring and within the live
// head/tail span. It does not look at the bytes at pos.
func (r *Ring) IsPositionSafe(pos Offset) bool {
	return pos.InSpan(r.tail, r.head, r.bufSize)
}

// IsReadPositionValid reports whether a whole valid record starts at pos.
// Failures are counted in OOS.
func (r *Ring) IsReadPositionValid(pos Offset) bool {
	if r.IsPositionSafe(pos) && r.validAt(pos) {
		return true
	}
	r.oos++
	return false
}

// validAt checks sync and CRC at pos without touching counters.
func (r *Ring) validAt(pos Offset) bool {
	if pos < 0 || int(pos)+DescriptorSize > len(r.buf) {
		return false
	}
	rec := r.recordAt(pos)
	if !rec.Synced() || !IsValid(rec, int64(pos)) {
		return false
	}
	return pos.Fits(rec.SlotLen(), r.bufSize)
}

func (r *Ring) newRecord(tag Tag, level uint8) Record {
	return Record{
		Sync: SyncMagic,
		Tag:  tag,
		Lev:  level,
		Ctx:  r.ctx(),
		Core: r.core(),
		Nsec: uint64(r.now()),
	}
}

// PushString formats a text record into the spare area and commits it,
// optionally preceded by a rendered header line. Lines that do not fit the
// spare area are dropped whole. It returns the payload length written, 0 on
// drop.
func (r *Ring) PushString(tag Tag, level uint8, prependHeader bool, format string, args ...any) int {
	if r.buf == nil {
		return 0
	}
	spare := r.spare()
	rec := r.newRecord(tag, level)

	room := len(spare) - DescriptorSize
	body := spare[DescriptorSize:DescriptorSize:len(spare)]
	if prependHeader {
		body = appendHeader(body, rec)
	}
	body = fmt.Appendf(body, format, args...)
	if len(body) == 0 || len(body) > room || len(body) > math.MaxUint16 {
		return 0
	}

	rec.Len = uint16(len(body))
	rec.MarshalTo(spare)
	r.commit(spare[:DescriptorSize+len(body)], nil)
	return len(body)
}

// PushBlob commits a record whose payload is copied straight from data.
// data is clamped to MaxBlobSize and to what the spare area could hold after
// the descriptor and header, so no record is longer than a text record could
// be. Only the descriptor, plus the header line for text tags when
// prependHeader is set, is staged in the spare area; binary records get their
// header rendered on read instead.
func (r *Ring) PushBlob(tag Tag, level uint8, prependHeader bool, data []byte) int {
	if r.buf == nil || len(data) == 0 {
		return 0
	}
	spare := r.spare()
	rec := r.newRecord(tag, level)

	staged := spare[:DescriptorSize:len(spare)]
	if prependHeader && !tag.IsBinary() {
		staged = appendHeader(staged, rec)
	}
	limit := min(MaxBlobSize, len(spare)-len(staged))
	if limit <= 0 {
		return 0
	}
	if len(data) > limit {
		data = data[:limit]
	}
	total := len(staged) + len(data)
	if total > r.bufSize || total-DescriptorSize > math.MaxUint16 {
		return 0
	}

	rec.Len = uint16(total - DescriptorSize)
	rec.MarshalTo(spare)
	r.commit(staged, data)
	return len(data)
}

// commit places prefix followed by payload as one record, overwriting the
// oldest records when needed.
func (r *Ring) commit(prefix, payload []byte) {
	n := len(prefix) + len(payload)
	if n <= r.FreeBytes() {
		r.plainAppend(prefix, payload)
	} else {
		r.overlapAppend(prefix, payload)
	}
	r.written += uint64(n - DescriptorSize)
	r.notify()
}

// plainAppend writes after head when the free space is enough.
func (r *Ring) plainAppend(prefix, payload []byte) {
	// The very first record goes at head itself.
	if r.records > 0 {
		r.head = r.nextFreeSlot()
	}
	r.place(prefix, payload)
}

// overlapAppend writes a record that needs older records evicted. If the
// record still fits before the end of the ring it goes after head,
// otherwise head wraps to 0. Either way tail is pushed past every record
// the write will clobber.
func (r *Ring) overlapAppend(prefix, payload []byte) {
	n := len(prefix) + len(payload)
	next := r.nextFreeSlot()
	if r.head < r.tail && next.Fits(n, r.bufSize) {
		r.head = next
	} else {
		if r.head < r.tail {
			// What is left of the previous era lies past next and is lost.
			r.tail = r.findNextTailFarEnough(next, r.bufSize)
		}
		r.last = r.head
		r.head = 0
		r.wraps++
	}
	r.tail = r.findNextTailFarEnough(r.head, n)
	r.place(prefix, payload)
}

// findNextTailFarEnough walks tail forward, evicting one record per step,
// until writing n bytes at start no longer reaches it. Reaching last
// without clearing the overlap evicts last too and wraps tail to 0.
func (r *Ring) findNextTailFarEnough(start Offset, n int) Offset {
	tail := r.tail
	for tail.Overlaps(start, n) && tail < r.last {
		tail += Offset(r.slotLenAt(tail))
		r.records--
	}
	if tail.Overlaps(start, n) {
		tail = 0
		r.records--
		r.last = 0
	}
	return tail
}

func (r *Ring) place(prefix, payload []byte) {
	at := r.buf[r.head:]
	copy(at, prefix)
	copy(at[len(prefix):], payload)
	rec := FinalizeCRC(UnmarshalRecord(at), int64(r.head))
	rec.MarshalTo(at)
	r.records++
	if r.head > r.last {
		r.last = r.head
	}
}

// Stats is a point-in-time view of the ring counters.
type Stats struct {
	Name        string
	Size        int
	SpareSize   int
	Head        Offset
	Tail        Offset
	Last        Offset
	Records     int
	Written     uint64
	Wraps       uint64
	OOS         uint64
	FreeBytes   int
	UsedBytes   int
	LoggedBytes int
}

// Stats returns the current counters. Caller holds the lock.
func (r *Ring) Stats() Stats {
	return Stats{
		Name:        r.name,
		Size:        r.bufSize,
		SpareSize:   r.spareSize,
		Head:        r.head,
		Tail:        r.tail,
		Last:        r.last,
		Records:     r.records,
		Written:     r.written,
		Wraps:       r.wraps,
		OOS:         r.oos,
		FreeBytes:   r.FreeBytes(),
		UsedBytes:   r.UsedBytes(),
		LoggedBytes: r.LoggedBytes(),
	}
}
