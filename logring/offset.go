package logring

// Offset is a byte position inside the ring proper.
type Offset int64

// Add returns the position n bytes after o, wrapping to 0 once the result
// would pass limit.
func (o Offset) Add(n int, limit Offset) Offset {
	next := o + Offset(n)
	if next > limit {
		return 0
	}
	return next
}

// Fits reports whether a slot of n bytes starting at o ends inside a ring
// of size bufSize.
func (o Offset) Fits(n, bufSize int) bool {
	return o >= 0 && int64(o)+int64(n) <= int64(bufSize)
}

// Overlaps reports whether writing n bytes at start reaches o.
// A write ending exactly at o counts as reaching it so the descriptor that
// starts there is always treated as clobbered.
func (o Offset) Overlaps(start Offset, n int) bool {
	return start+Offset(n) >= o
}

// InSpan reports whether o lies in the live span delimited by tail and head.
// When head is behind tail the span wraps: [tail, bufSize] plus [0, head].
func (o Offset) InSpan(tail, head Offset, bufSize int) bool {
	if o < 0 || o > Offset(bufSize) {
		return false
	}
	if head >= tail {
		return o >= tail && o <= head
	}
	return o <= head || o >= tail
}
