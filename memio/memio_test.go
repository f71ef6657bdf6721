package memio_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newhook/riscv-unwind/memio"
	"github.com/newhook/riscv-unwind/uerr"
	"github.com/newhook/riscv-unwind/xlenval"
)

type fakeTarget struct {
	image map[uint64]byte
	low   uint64
	high  uint64
	calls int
}

func newFakeTarget(base uint64, bytes ...byte) *fakeTarget {
	f := &fakeTarget{image: map[uint64]byte{}, low: base, high: base + uint64(len(bytes))}
	for i, b := range bytes {
		f.image[base+uint64(i)] = b
	}
	return f
}

func (f *fakeTarget) ReadMemory(addr uint64, length int) ([]byte, error) {
	f.calls++
	out := make([]byte, 0, length)
	for a := addr; a < addr+uint64(length); a++ {
		b, ok := f.image[a]
		if !ok {
			break
		}
		out = append(out, b)
	}
	if len(out) == 0 {
		return nil, uerr.New(uerr.KindMemoryRead, "unmapped")
	}
	return out, nil
}

func TestReadByteZeroAddressIsInvalid(t *testing.T) {
	m := memio.New(newFakeTarget(0x1000, 1, 2, 3))
	_, err := m.ReadByte(xlenval.Zero)
	assert.True(t, uerr.Is(err, uerr.KindInvalidAddress))
}

func TestReadByteHighHalfSetIsInvalid(t *testing.T) {
	m := memio.New(newFakeTarget(0x1000, 1))
	addr := xlenval.FromU2(0x1000, 1)
	_, err := m.ReadByte(addr)
	assert.True(t, uerr.Is(err, uerr.KindInvalidAddress))
}

func TestReadByteFillsLineOnMissThenHits(t *testing.T) {
	target := newFakeTarget(0x2000, 0xAA, 0xBB, 0xCC)
	m := memio.New(target)
	b, err := m.ReadByte(xlenval.FromU64(0x2001))
	require.NoError(t, err)
	assert.Equal(t, byte(0xBB), b)
	assert.Equal(t, 1, target.calls)

	b2, err := m.ReadByte(xlenval.FromU64(0x2002))
	require.NoError(t, err)
	assert.Equal(t, byte(0xCC), b2)
	assert.Equal(t, 1, target.calls, "second read hit the cached line without another collaborator call")
}

func TestReadByteUnmappedAddressFails(t *testing.T) {
	m := memio.New(newFakeTarget(0x3000, 1))
	_, err := m.ReadByte(xlenval.FromU64(0x9000))
	assert.True(t, uerr.Is(err, uerr.KindMemoryRead))
}

func TestReadU32ComposesLittleEndian(t *testing.T) {
	m := memio.New(newFakeTarget(0x4000, 0x78, 0x56, 0x34, 0x12))
	v, err := m.ReadU32(xlenval.FromU64(0x4000))
	require.NoError(t, err)
	assert.Equal(t, uint64(0x12345678), v.Lo())
}

func TestReadU64ComposesLittleEndian(t *testing.T) {
	m := memio.New(newFakeTarget(0x5000, 1, 0, 0, 0, 0, 0, 0, 0x80))
	v, err := m.ReadU64(xlenval.FromU64(0x5000))
	require.NoError(t, err)
	assert.Equal(t, uint64(0x8000000000000001), v.Lo())
}

func TestReadU128ComposesTwoU64Halves(t *testing.T) {
	bytes := make([]byte, 16)
	bytes[0] = 1  // low half lsb
	bytes[15] = 2 // high half msb
	m := memio.New(newFakeTarget(0x6000, bytes...))
	v, err := m.ReadU128(xlenval.FromU64(0x6000))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v.Lo())
	assert.Equal(t, uint64(0x0200000000000000), v.Hi())
}

func TestMultiByteReadFailsWholeReadOnAnyByteFailure(t *testing.T) {
	// only 2 bytes mapped, a 4-byte read must fail entirely
	m := memio.New(newFakeTarget(0x7000, 1, 2))
	_, err := m.ReadU32(xlenval.FromU64(0x7000))
	assert.Error(t, err)
}

func TestCacheEvictsRoundRobinAcrossManyLines(t *testing.T) {
	target := newFakeTarget(0x8000, make([]byte, memio.CacheLines*memio.LineSize*2)...)
	m := memio.New(target)
	// touch more distinct lines than the cache holds; every one of
	// these misses since each line start is LineSize apart.
	for i := 0; i < memio.CacheLines+2; i++ {
		_, err := m.ReadByte(xlenval.FromU64(0x8000 + uint64(i*memio.LineSize)))
		require.NoError(t, err)
	}
	assert.Equal(t, memio.CacheLines+2, target.calls)
	// the cursor wrapped: the last two reads replaced the first two
	// lines, so the third line still hits and the first one misses.
	_, err := m.ReadByte(xlenval.FromU64(0x8000 + 2*memio.LineSize))
	require.NoError(t, err)
	assert.Equal(t, memio.CacheLines+2, target.calls)
	_, err = m.ReadByte(xlenval.FromU64(0x8000))
	require.NoError(t, err)
	assert.Equal(t, memio.CacheLines+3, target.calls)
}
