package logring

import "fmt"

// Snapshot copies the whole ring, spare area included, into buf and returns
// an independent Ring backed by it. len(buf) must equal Size()+SpareSize().
//
// The caller must hold r's lock for the duration of the call. The returned
// ring shares nothing with r: it has its own lock and notifier, a zeroed OOS
// counter, and can be read without any locking by a single consumer.
func (r *Ring) Snapshot(buf []byte, name string) (*Ring, error) {
	if r.buf == nil {
		return nil, ErrFreed
	}
	if want := r.bufSize + r.spareSize; len(buf) != want {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrSnapshotSize, len(buf), want)
	}
	copy(buf, r.buf)

	return &Ring{
		name:      truncateName(name),
		buf:       buf,
		bufSize:   r.bufSize,
		spareSize: r.spareSize,
		head:      r.head,
		tail:      r.tail,
		last:      r.last,
		records:   r.records,
		written:   r.written,
		wraps:     r.wraps,
		decodeLen: r.decodeLen,
		now:       r.now,
		core:      r.core,
		ctx:       r.ctx,
	}, nil
}
