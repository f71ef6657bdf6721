// Package memio is the read-through view over a stopped process's
// memory that the interpreter decodes instructions and loads spilled
// registers from. It wraps a minimal collaborator contract with a
// small fully-associative line cache: every cached line is eligible
// for eviction on a miss, with an independent round-robin replacement
// cursor, rather than a single slot that gets reused under pressure.
package memio

import (
	"github.com/newhook/riscv-unwind/uerr"
	"github.com/newhook/riscv-unwind/xlenval"
)

// LineSize is the size, in bytes, of one cache line.
const LineSize = 64

// CacheLines is the number of fully-associative cache lines kept.
const CacheLines = 8

// Collaborator is the process-memory read contract the debugger host
// supplies. A short read (len(data) < length) signals a partial read —
// the host could only prove `len(data)` bytes valid (e.g. a permission
// boundary mid-line) — and is not itself an error; callers may still
// use the returned prefix. A read that cannot produce any valid bytes
// at all should return a non-nil err with no data.
type Collaborator interface {
	ReadMemory(addr uint64, length int) (data []byte, err error)
}

type line struct {
	addr  uint64
	valid int // 0 means the slot is empty
	data  [LineSize]byte
}

// Memory is a request-scoped cache over a Collaborator. It carries no
// state that is safe to share across unwind requests unless the
// caller knows the target address space has not changed since the
// cache was built — the zero value plus New always starts cold.
type Memory struct {
	collab Collaborator
	lines  [CacheLines]line
	cursor int
}

// New builds a cold cache over collab.
func New(collab Collaborator) *Memory {
	return &Memory{collab: collab}
}

// ReadByte reads one byte at addr. addr is a full XLEN-width abstract
// address; a nonzero high 64 bits is unconditionally invalid (128-bit
// memory addressing is a recognized non-goal), and a zero address is
// always invalid.
func (m *Memory) ReadByte(addr xlenval.Value) (byte, error) {
	if addr.Hi() != 0 {
		return 0, uerr.New(uerr.KindInvalidAddress, "address has nonzero high 64 bits")
	}
	a := addr.Lo()
	if a == 0 {
		return 0, uerr.New(uerr.KindInvalidAddress, "address is zero")
	}

	for i := range m.lines {
		ln := &m.lines[i]
		if ln.valid > 0 && a >= ln.addr && a-ln.addr < uint64(ln.valid) {
			return ln.data[a-ln.addr], nil
		}
	}

	idx := m.cursor
	m.cursor = (m.cursor + 1) % CacheLines
	ln := &m.lines[idx]

	data, err := m.collab.ReadMemory(a, LineSize)
	if len(data) == 0 {
		ln.valid = 0
		if err == nil {
			err = uerr.New(uerr.KindMemoryRead, "empty read")
		}
		return 0, uerr.Wrap(uerr.KindMemoryRead, "target memory read failed", err)
	}

	ln.addr = a
	ln.valid = len(data)
	copy(ln.data[:], data)
	return ln.data[0], nil
}

// ReadU32 reads a little-endian 32-bit word; any byte failure fails
// the whole read.
func (m *Memory) ReadU32(addr xlenval.Value) (xlenval.Value, error) {
	return m.readLE(addr, 4)
}

// ReadU64 reads a little-endian 64-bit doubleword.
func (m *Memory) ReadU64(addr xlenval.Value) (xlenval.Value, error) {
	return m.readLE(addr, 8)
}

// ReadU128 reads a little-endian 128-bit quadword by composing two
// 64-bit reads, matching the original's read_u128.
func (m *Memory) ReadU128(addr xlenval.Value) (xlenval.Value, error) {
	lo, err := m.ReadU64(addr)
	if err != nil {
		return xlenval.Zero, err
	}
	hi, err := m.ReadU64(xlenval.AddU(addr, 8))
	if err != nil {
		return xlenval.Zero, err
	}
	return xlenval.FromU2(lo.Lo(), hi.Lo()), nil
}

func (m *Memory) readLE(addr xlenval.Value, n int) (xlenval.Value, error) {
	var v uint64
	for i := 0; i < n; i++ {
		b, err := m.ReadByte(xlenval.AddU(addr, uint64(i)))
		if err != nil {
			return xlenval.Zero, err
		}
		v |= uint64(b) << uint(8*i)
	}
	return xlenval.FromU64(v), nil
}
