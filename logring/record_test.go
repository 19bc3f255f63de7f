package logring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// crc32le is a bit-at-a-time reference of the firmware crc32_le routine.
func crc32le(seed uint32, p []byte) uint32 {
	crc := seed
	for _, b := range p {
		crc ^= uint32(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = crc>>1 ^ 0xEDB88320
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

func sampleRecord() Record {
	return Record{
		Sync: SyncMagic,
		Tag:  TagMIF,
		Len:  5,
		Lev:  6,
		Ctx:  CtxProcess,
		Core: 2,
		Nsec: 1_500_000_000,
	}
}

func TestRecord_Layout(t *testing.T) {
	rec := sampleRecord()
	rec.CRC = 0x11223344

	var b [DescriptorSize]byte
	rec.MarshalTo(b[:])

	assert.Equal(t, []byte{0xEF, 0xBE, 0xAD, 0xDE}, b[0:4], "sync is little-endian")
	assert.Equal(t, []byte{0x44, 0x33, 0x22, 0x11}, b[4:8])
	assert.Equal(t, byte(TagMIF), b[8])
	assert.Equal(t, []byte{5, 0}, b[9:11])
	assert.Equal(t, byte(6), b[11])
	assert.Equal(t, byte('P'), b[12])
	assert.Equal(t, byte(2), b[13])

	assert.Equal(t, rec, UnmarshalRecord(b[:]))
	assert.Equal(t, 22, DescriptorSize)
	assert.Equal(t, DescriptorSize+5, rec.SlotLen())
}

func TestComputeCRC(t *testing.T) {
	t.Run("matches crc32_le seeded with all ones", func(t *testing.T) {
		rec := sampleRecord()
		var b [DescriptorSize]byte
		withPos := rec
		withPos.CRC = 4096
		withPos.MarshalTo(b[:])

		assert.Equal(t, crc32le(^uint32(0), b[4:]), ComputeCRC(rec, 4096))
	})

	t.Run("ignores sync and the stored crc", func(t *testing.T) {
		a := sampleRecord()
		b := a
		b.Sync = 0
		b.CRC = 0xFFFFFFFF
		assert.Equal(t, ComputeCRC(a, 10), ComputeCRC(b, 10))
	})

	t.Run("binds the record to its position", func(t *testing.T) {
		rec := FinalizeCRC(sampleRecord(), 128)
		assert.True(t, IsValid(rec, 128))
		assert.False(t, IsValid(rec, 129))
		assert.False(t, IsValid(rec, 0))
	})

	t.Run("detects a modified field", func(t *testing.T) {
		rec := FinalizeCRC(sampleRecord(), 64)
		rec.Len++
		assert.False(t, IsValid(rec, 64))
	})
}

func TestAppendHeaderLine(t *testing.T) {
	rec := sampleRecord()

	t.Run("full line", func(t *testing.T) {
		out := AppendHeaderLine(make([]byte, 0, 128), rec, "hello")
		assert.Equal(t, "<6>[     1.500000] [c2] [P] [mif] :: hello", string(out))
	})

	t.Run("truncated to capacity", func(t *testing.T) {
		out := AppendHeaderLine(make([]byte, 0, 10), rec, "hello")
		assert.Equal(t, "<6>[     1", string(out))
	})

	t.Run("appends after existing bytes", func(t *testing.T) {
		dst := make([]byte, 0, 64)
		dst = append(dst, "xx"...)
		out := AppendHeaderLine(dst, rec, "")
		require.True(t, len(out) > 2)
		assert.Equal(t, "xx<6>", string(out[:5]))
	})
}

func TestTag(t *testing.T) {
	assert.True(t, TagBinary.IsBinary())
	assert.True(t, LastBinaryTag.IsBinary())
	assert.False(t, TagMIF.IsBinary())
	assert.Equal(t, Tag(5), TagMIF)
	assert.Equal(t, "test_me", TagTestMe.Name())
	assert.Equal(t, "tag200", Tag(200).Name())

	tag, ok := TagByName("wlbt")
	assert.True(t, ok)
	assert.Equal(t, TagWLBT, tag)

	_, ok = TagByName("nope")
	assert.False(t, ok)
}
