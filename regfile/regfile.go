// Package regfile holds the abstract general-purpose register file
// the interpreter operates over during one unwind attempt. Every slot
// carries not just a value but a provenance tag — whether the value
// came from the callee's entry-state frame, is a pointer into the
// frame whose target hasn't been read yet, is a stack address handled
// the same way, or is simply an arbitrary computed value — a closed discriminant
// over a register's state rather than an open-ended tag.
package regfile

import (
	"github.com/newhook/riscv-unwind/memhash"
	"github.com/newhook/riscv-unwind/uerr"
	"github.com/newhook/riscv-unwind/xlenval"
)

var topFrameErr = uerr.New(uerr.KindTopFrameRead, "could not read register from top frame")

// Provenance classifies how a register slot's value was produced.
type Provenance int

const (
	// Unknown means the slot has no known value at all — it must not
	// be trusted for address arithmetic or control flow.
	Unknown Provenance = iota
	// Frame means the value is still the callee's entry-state value
	// for some architectural register, identified by FrameReg — it
	// has not yet been read back from the caller's saved context.
	Frame
	// Addr means v holds a pointer into the stack frame whose target
	// has not yet been materialized; a later use must load it lazily.
	Addr
	// Stack means v holds a stack address whose target has not yet
	// been materialized; ChkLoaded and FixupOverlapping load through it
	// exactly as they do for Addr.
	Stack
	// Other means v is a fully known, materialized value — the
	// general case once anything has actually been computed or loaded.
	Other
)

// RegID numbers the two registers the interpreter's control-flow logic
// singles out by name; all other registers are addressed by their
// architectural index (x0-x31) directly.
type RegID = int

const (
	RA RegID = 1
	SP RegID = 2
)

// Count is the number of integer registers tracked (x0-x31).
const Count = 32

// Slot is one register's abstract state.
type Slot struct {
	Value      xlenval.Value
	Provenance Provenance
	FrameReg   int // valid only when Provenance == Frame
}

// File is the abstract register file for one unwind attempt (or one
// in-flight branch work item's speculative copy of it).
type File struct {
	Regs [Count]Slot
	PC   Slot
}

// FrameReader materializes a Frame-tagged register: its entry-state
// value must be read back from the callee's saved register context
// (the frame description passed to the unwind request), for the top
// frame as well as for outer ones. It returns ok=false when the frame has
// no saved location for that architectural register at all (distinct
// from a read error).
type FrameReader interface {
	ReadFrameRegister(frameReg int) (v xlenval.Value, ok bool, err error)
}

// MemReader loads the bytes content of memory at addr — used both for
// fallthrough target-memory loads and the original's "read from real
// memory" path in load_reg.
type MemReader interface {
	ReadU32(addr xlenval.Value) (xlenval.Value, error)
	ReadU64(addr xlenval.Value) (xlenval.Value, error)
	ReadU128(addr xlenval.Value) (xlenval.Value, error)
}

// Get returns the slot for architectural register r (x0 always reads
// as a known zero, matching RISC-V's hardwired x0).
func (f *File) Get(r int) Slot {
	if r == 0 {
		return Slot{Provenance: Other}
	}
	return f.Regs[r]
}

// Set overwrites the slot for architectural register r. Writes to x0
// are discarded, matching hardware.
func (f *File) Set(r int, s Slot) {
	if r == 0 {
		return
	}
	f.Regs[r] = s
}

// LoadRegLazy implements load_reg_lazy: given an address and a bit
// width, it first checks whether the interpreter has already recorded
// a write to that address in the memory hash (in which case the
// recorded value, or its absence, is authoritative and no real memory
// read happens at all); failing that, for a full-XLEN-width load it
// defers the read by tagging the destination register Addr (a pointer
// into the frame whose target will be read only if actually needed);
// for any other width it falls through to an eager LoadReg.
func LoadRegLazy(h *memhash.Hash, mem MemReader, width int, addr xlenval.Value, xlenBits int, dst *Slot) error {
	if v, valid, found := h.Read(addr, width/8); found {
		if valid {
			*dst = Slot{Value: v, Provenance: Other}
			return nil
		}
		*dst = Slot{}
		return nil
	}
	if width == xlenBits {
		*dst = Slot{Value: addr, Provenance: Addr}
		return nil
	}
	return LoadReg(h, mem, width, addr, dst)
}

// LoadReg implements load_reg: an eager load either from the memory
// hash (if the address was previously written during this attempt) or
// from real target memory otherwise. A materialized result is tagged
// Other, regardless of where it came from; a hash entry for addr that
// is not valid leaves dst Unknown.
func LoadReg(h *memhash.Hash, mem MemReader, width int, addr xlenval.Value, dst *Slot) error {
	if v, valid, found := h.Read(addr, width/8); found {
		if valid {
			*dst = Slot{Value: v, Provenance: Other}
		} else {
			*dst = Slot{}
		}
		return nil
	}

	var v xlenval.Value
	var err error
	switch width {
	case 32:
		v, err = mem.ReadU32(addr)
	case 64:
		v, err = mem.ReadU64(addr)
	case 128:
		v, err = mem.ReadU128(addr)
	}
	if err != nil {
		return err
	}
	*dst = Slot{Value: v, Provenance: Other}
	return nil
}

// ChkLoaded materializes a slot that is still lazily tagged (Addr,
// Stack, or Frame) into a concrete Other-tagged value, leaving Unknown and
// Other slots untouched. frameReader may be nil if this frame has no
// backing saved-register context (the outermost frame being unwound
// from an arbitrary starting register set); a Frame-tagged slot that
// cannot be resolved there demotes to Unknown unless isTopFrame is
// set, in which case that failure is fatal to the whole attempt —
// mirroring chk_reg_loaded's special case for stk_frame->is_top_frame.
func ChkLoaded(h *memhash.Hash, mem MemReader, frameReader FrameReader, xlenBits int, isTopFrame bool, s *Slot) error {
	switch s.Provenance {
	case Unknown, Other:
		return nil
	case Frame:
		if frameReader == nil {
			if isTopFrame {
				return topFrameErr
			}
			s.Provenance = Unknown
			return nil
		}
		v, ok, err := frameReader.ReadFrameRegister(s.FrameReg)
		if err != nil {
			if isTopFrame {
				return err
			}
			s.Provenance = Unknown
			return nil
		}
		if !ok {
			if isTopFrame {
				return topFrameErr
			}
			s.Provenance = Unknown
			return nil
		}
		s.Value = v
		s.Provenance = Other
		return nil
	case Addr, Stack:
		return LoadReg(h, mem, xlenBits, s.Value, s)
	}
	return nil
}

// StoreReg implements store_reg: it first fully materializes register
// r (so the hash never records a lazily-tagged placeholder), then
// records its value in the memory hash at addr. The recorded entry is
// marked valid unless r's value is still Unknown.
func StoreReg(h *memhash.Hash, mem MemReader, frameReader FrameReader, xlenBits int, isTopFrame bool, f *File, r int, addr xlenval.Value, width int) error {
	s := f.Get(r)
	if err := ChkLoaded(h, mem, frameReader, xlenBits, isTopFrame, &s); err != nil {
		return err
	}
	f.Set(r, s)
	return h.Write(addr, s.Value, width/8, s.Provenance != Unknown)
}

// FixupOverlapping materializes every Addr- or Stack-tagged register
// whose outstanding pointer falls within xlenBytes of addr — the write
// barrier a store must run before recording a new hash entry, so a
// later lazy load of one of those registers doesn't read through to
// stale target memory instead of the value just stored. Mirrors the
// register-fixup loop inside the original's mem_hash_write exactly,
// including its use of the full register width (not the store's own
// width) as the conflict window on both sides of the comparison.
func FixupOverlapping(h *memhash.Hash, mem MemReader, f *File, addr xlenval.Value, xlenBytes int) error {
	for i := 1; i < Count; i++ {
		s := &f.Regs[i]
		if s.Provenance != Addr && s.Provenance != Stack {
			continue
		}
		if !memhash.Overlaps(addr, xlenBytes, s.Value, xlenBytes) {
			continue
		}
		if err := LoadReg(h, mem, xlenBytes*8, s.Value, s); err != nil {
			return err
		}
	}
	return nil
}

