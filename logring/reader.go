package logring

import (
	"encoding/hex"
	"fmt"
)

// Cursor tracks one reader's position in a ring.
//
// The zero Cursor has not read anything yet and starts at the ring tail.
// Otherwise it holds the offset of the last record delivered, or of a
// record still to be delivered after a resync.
type Cursor struct {
	pos     Offset
	pending bool // pos itself has not been delivered
	set     bool
}

// CursorAt returns a cursor that has already delivered the record at pos.
func CursorAt(pos Offset) Cursor {
	return Cursor{pos: pos, set: true}
}

// Pos returns the cursor offset and whether the cursor has been positioned.
func (c Cursor) Pos() (Offset, bool) {
	return c.pos, c.set
}

// Pending reports whether the record at Pos is yet to be delivered.
func (c Cursor) Pending() bool {
	return c.pending
}

// Reset rewinds the cursor to the ring tail.
func (c *Cursor) Reset() {
	*c = Cursor{}
}

// AtHead reports whether the cursor has nothing more to read.
func (r *Ring) AtHead(c Cursor) bool {
	if r.records == 0 {
		return true
	}
	return c.set && !c.pending && c.pos == r.head
}

// ReadNextRecords renders whole records following cur into dst and returns
// the number of bytes written. At most maxRecords records are delivered,
// 0 meaning no limit. A record that does not fit the remaining space is left
// for the next call, so dst never holds a partial record.
//
// If cur no longer points at a valid record the reader has been lapped:
// a synthetic OUT OF SYNC line is emitted and reading restarts from the next
// valid record, or from head when none is found.
func (r *Ring) ReadNextRecords(maxRecords int, cur *Cursor, dst []byte) int {
	if r.buf == nil || len(dst) == 0 || r.records == 0 {
		return 0
	}
	if !cur.set {
		*cur = Cursor{pos: r.tail, pending: true, set: true}
	}
	if !cur.pending && cur.pos == r.head {
		return 0
	}

	n := 0
	pos := cur.pos
	if !r.IsReadPositionValid(pos) {
		skipped := 0
		if r.IsPositionSafe(pos) {
			pos, skipped = r.Resync(pos)
		} else {
			pos = r.head
		}
		*cur = Cursor{pos: pos, pending: true, set: true}
		if marker := r.appendOOSMarker(dst[:0:len(dst)], skipped); len(marker) <= len(dst) {
			n = len(marker)
		}
	} else if !cur.pending {
		pos = r.nextRecordPos(pos)
	}

	count := 0
	for {
		if !r.validAt(pos) {
			*cur = Cursor{pos: pos, pending: true, set: true}
			break
		}
		m, ok := r.renderRecord(dst[n:], pos)
		if !ok {
			break
		}
		n += m
		*cur = Cursor{pos: pos, set: true}
		count++
		if pos == r.head || (maxRecords > 0 && count >= maxRecords) {
			break
		}
		pos = r.nextRecordPos(pos)
	}
	return n
}

func (r *Ring) nextRecordPos(pos Offset) Offset {
	if pos == r.last {
		return 0
	}
	return pos + Offset(r.slotLenAt(pos))
}

// Resync scans forward one byte at a time from an invalid position until it
// finds a record with valid sync and CRC or reaches head. Positions past
// last hold no live record and wrap to 0. It returns the position found and
// how many bytes were skipped.
func (r *Ring) Resync(from Offset) (Offset, int) {
	pos := from
	skipped := 0
	for steps := 0; steps <= r.bufSize; steps++ {
		if pos > r.last {
			pos = 0
		}
		if pos == r.head || r.validAt(pos) {
			return pos, skipped
		}
		pos = pos.Add(1, r.last)
		skipped++
	}
	return r.head, skipped
}

// renderRecord decodes the record at pos into dst. ok is false when the
// rendered record would not fit.
func (r *Ring) renderRecord(dst []byte, pos Offset) (int, bool) {
	rec := r.recordAt(pos)
	start := int(pos) + DescriptorSize
	payload := r.buf[start : start+int(rec.Len)]
	if !rec.Tag.IsBinary() {
		if len(payload) > len(dst) {
			return 0, false
		}
		return copy(dst, payload), true
	}
	out := appendBinary(dst[:0:len(dst)], rec, payload, r.decodeLen)
	if len(out) > len(dst) {
		return 0, false
	}
	return len(out), true
}

// appendBinary renders a binary record as a header line followed by
//
//	HEX[decoded/total]:<hex>\n
//
// where every aligned 4-byte group is printed most significant byte first.
func appendBinary(dst []byte, rec Record, payload []byte, decodeLen int) []byte {
	dec := min(len(payload), decodeLen)
	dst = appendHeader(dst, rec)
	dst = fmt.Appendf(dst, "HEX[%d/%d]:", dec, len(payload))
	dst = appendSwappedHex(dst, payload[:dec])
	return append(dst, '\n')
}

func appendSwappedHex(dst, b []byte) []byte {
	i := 0
	for ; i+4 <= len(b); i += 4 {
		dst = hex.AppendEncode(dst, []byte{b[i+3], b[i+2], b[i+1], b[i]})
	}
	return hex.AppendEncode(dst, b[i:])
}

func (r *Ring) appendOOSMarker(dst []byte, skipped int) []byte {
	rec := Record{
		Tag:  TagOOS,
		Lev:  7,
		Ctx:  CtxProcess,
		Core: r.core(),
		Nsec: uint64(r.now()),
	}
	dst = appendHeader(dst, rec)
	return fmt.Appendf(dst, "[[[ OUT OF SYNC -- RESYNC'ED BYTES %d ]]]\n", skipped)
}
