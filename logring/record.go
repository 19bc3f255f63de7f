package logring

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// SyncMagic marks the start of every record descriptor.
const SyncMagic uint32 = 0xDEADBEEF

// DescriptorSize is the packed size of a record descriptor:
// sync(4) crc(4) tag(1) len(2) lev(1) ctx(1) core(1) nsec(8)
const DescriptorSize = 4 + 4 + 1 + 2 + 1 + 1 + 1 + 8

// Execution context markers stored in Record.Ctx.
const (
	CtxProcess = 'P'
	CtxIRQ     = 'I'
	CtxSoftIRQ = 'S'
)

// Record is the descriptor prefixed to every payload in the ring.
type Record struct {
	Sync uint32
	CRC  uint32
	Tag  Tag
	Len  uint16
	Lev  uint8
	Ctx  byte
	Core uint8
	Nsec uint64
}

// MarshalTo encodes r into the first DescriptorSize bytes of b.
func (r *Record) MarshalTo(b []byte) {
	_ = b[DescriptorSize-1]
	binary.LittleEndian.PutUint32(b[0:4], r.Sync)
	binary.LittleEndian.PutUint32(b[4:8], r.CRC)
	b[8] = byte(r.Tag)
	binary.LittleEndian.PutUint16(b[9:11], r.Len)
	b[11] = r.Lev
	b[12] = r.Ctx
	b[13] = r.Core
	binary.LittleEndian.PutUint64(b[14:22], r.Nsec)
}

// UnmarshalRecord decodes a descriptor from the first DescriptorSize bytes of b.
func UnmarshalRecord(b []byte) Record {
	_ = b[DescriptorSize-1]
	return Record{
		Sync: binary.LittleEndian.Uint32(b[0:4]),
		CRC:  binary.LittleEndian.Uint32(b[4:8]),
		Tag:  Tag(b[8]),
		Len:  binary.LittleEndian.Uint16(b[9:11]),
		Lev:  b[11],
		Ctx:  b[12],
		Core: b[13],
		Nsec: binary.LittleEndian.Uint64(b[14:22]),
	}
}

// Synced reports whether the sync field carries SyncMagic.
func (r *Record) Synced() bool {
	return r.Sync == SyncMagic
}

// SlotLen is the number of ring bytes occupied by the record.
func (r *Record) SlotLen() int {
	return DescriptorSize + int(r.Len)
}

// ComputeCRC returns the checksum binding r to the ring offset pos.
// The crc field is replaced by pos for the computation and sync is excluded.
// The register is seeded with all ones and not inverted on output, matching
// the firmware-side crc32_le(~0, ...) used by existing dump parsers.
func ComputeCRC(r Record, pos int64) uint32 {
	var b [DescriptorSize]byte
	r.CRC = uint32(pos)
	r.MarshalTo(b[:])
	return ^crc32.ChecksumIEEE(b[4:])
}

// IsValid reports whether the stored CRC matches the one computed for pos.
// Sync must be checked separately by the caller.
func IsValid(r Record, pos int64) bool {
	return ComputeCRC(r, pos) == r.CRC
}

// FinalizeCRC returns r with its CRC committed for offset pos.
func FinalizeCRC(r Record, pos int64) Record {
	r.CRC = ComputeCRC(r, pos)
	return r
}

// AppendHeaderLine appends the human readable record header followed by
// trailing to dst:
//
//	<lev>[sec.usec] [cCORE] [CTX] [tag] :: trailing
//
// The result never grows beyond cap(dst); excess output is truncated.
func AppendHeaderLine(dst []byte, r Record, trailing string) []byte {
	limit := cap(dst)
	out := appendHeader(dst, r)
	out = append(out, trailing...)
	if len(out) > limit {
		if len(dst) < limit {
			// out no longer shares dst's array once append had to grow.
			copy(dst[len(dst):limit], out[len(dst):limit])
		}
		return dst[:limit]
	}
	return out
}

func appendHeader(dst []byte, r Record) []byte {
	sec := r.Nsec / 1e9
	usec := (r.Nsec % 1e9) / 1e3
	return fmt.Appendf(dst, "<%d>[%6d.%06d] [c%d] [%c] [%s] :: ",
		r.Lev, sec, usec, r.Core, r.Ctx, r.Tag.Name())
}
