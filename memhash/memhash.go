// Package memhash is the bounded address-keyed store the interpreter
// uses to remember values it has itself written to stack memory
// during one unwind attempt, so a later load from the same address
// sees the symbolic value instead of falling through to a real target
// memory read. It is deliberately NOT a growable map: a fixed
// 61-slot open-addressed table with linear probing, where running out
// of slots is a hard, reported error rather than silently dropped
// history or an unbounded allocation.
package memhash

import (
	"github.com/newhook/riscv-unwind/uerr"
	"github.com/newhook/riscv-unwind/xlenval"
)

// Size is the fixed slot count. 61 is prime, so addresses spaced by a
// power-of-two stride land in different home buckets instead of
// crowding into a few of them.
const Size = 61

type slot struct {
	addr     xlenval.Value
	value    xlenval.Value
	bytes    int
	valid    bool
	occupied bool
}

// Hash is one attempt's worth of remembered stack-memory writes. The
// zero value is ready to use.
type Hash struct {
	slots [Size]slot
}

// index finds the slot addr already occupies, or the first free slot
// it would occupy, probing linearly from addr's natural hash bucket.
// It returns -1 if every slot is occupied by a different address.
func index(slots *[Size]slot, addr xlenval.Value) int {
	start := int(addr.Lo() % Size)
	i := start
	for {
		if slots[i].occupied {
			if xlenval.Equal(slots[i].addr, addr, xlenval.XLen128) {
				return i
			}
		} else {
			return i
		}
		i++
		if i >= Size {
			i = 0
		}
		if i == start {
			return -1
		}
	}
}

// Occupancy reports how many of the Size slots currently hold an
// entry, for progress/debugging displays — not used by the crawl
// itself, which only ever needs Read/Write.
func (h *Hash) Occupancy() int {
	n := 0
	for i := range h.slots {
		if h.slots[i].occupied {
			n++
		}
	}
	return n
}

// Read looks up addr. found is false if addr has never been written.
// When found, valid reports whether the stored value is wide enough
// (at least bytes) and was itself a known value at write time —
// mirroring the original's "valid && size >= bytes" check, so a
// narrower or partially-unknown prior store is reported as present
// but not usable.
func (h *Hash) Read(addr xlenval.Value, bytes int) (v xlenval.Value, valid bool, found bool) {
	i := index(&h.slots, addr)
	if i < 0 {
		return xlenval.Zero, false, false
	}
	s := &h.slots[i]
	if !s.occupied || !xlenval.Equal(s.addr, addr, xlenval.XLen128) {
		return xlenval.Zero, false, false
	}
	return s.value, s.valid && s.bytes >= bytes, true
}

// Write records that bytes bytes were stored at addr, with value v
// and the given validity (a store of a fully materialized value is
// valid; a store of a symbolic/unmaterialized register is not). It
// returns a *uerr.Error of KindHashOverflow if every probe slot is
// already occupied by a different address.
func (h *Hash) Write(addr, v xlenval.Value, bytes int, valid bool) error {
	i := index(&h.slots, addr)
	if i < 0 {
		return uerr.New(uerr.KindHashOverflow, "memory hash overflow")
	}
	h.slots[i] = slot{addr: addr, value: v, bytes: bytes, valid: valid, occupied: true}
	return nil
}

// Overlaps reports whether the byte ranges [storeAddr,
// storeAddr+storeWidth) and [regAddr, regAddr+regWidth) intersect; it
// consults no slots. It is used by the store write-barrier
// (regfile.FixupOverlapping) to decide which
// lazily-addressed registers must be materialized before a new store
// can be recorded safely, mirroring mem_hash_write's register-fixup
// loop in the original.
func Overlaps(storeAddr xlenval.Value, storeWidth int, regAddr xlenval.Value, regWidth int) bool {
	storeEnd := xlenval.AddU(storeAddr, uint64(storeWidth))
	regEnd := xlenval.AddU(regAddr, uint64(regWidth))
	if xlenval.CmpUnsigned(regAddr, storeEnd, xlenval.XLen128) >= 0 {
		return false
	}
	if xlenval.CmpUnsigned(regEnd, storeAddr, xlenval.XLen128) <= 0 {
		return false
	}
	return true
}
