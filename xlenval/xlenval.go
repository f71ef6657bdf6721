// Package xlenval implements the abstract integer domain the RISC-V
// unwinder interprets instructions over: a 128-bit-wide container whose
// operations are reinterpreted at whichever architectural width (32, 64
// or 128 bits) the current unwind request selected. Every operation is
// total — none of them trap or panic, mirroring the non-emulating,
// best-effort contract of the interpreter that drives them.
package xlenval

import "math/bits"

// XLen is the architectural integer width selected for one unwind
// request.
type XLen uint

const (
	XLen32  XLen = 32
	XLen64  XLen = 64
	XLen128 XLen = 128
)

// Value is a 128-bit value stored as two 64-bit halves, low-order first.
// Most arithmetic (Add, Sub, And, Or, Xor) operates over the full
// 128-bit container regardless of the selected width; only shifts,
// equality and ordered comparison are width-aware, per the selected
// XLen of the call site.
type Value struct {
	lo uint64
	hi uint64
}

// Zero is the additive identity.
var Zero = Value{}

// FromU64 widens a 64-bit unsigned machine integer into the container.
func FromU64(v uint64) Value { return Value{lo: v} }

// FromU2 builds a value directly from its low and high 64-bit halves.
func FromU2(lo, hi uint64) Value { return Value{lo: lo, hi: hi} }

// FromI64 sign-extends a signed 64-bit machine integer into the
// 128-bit container.
func FromI64(v int64) Value {
	if v < 0 {
		return Value{lo: uint64(v), hi: ^uint64(0)}
	}
	return Value{lo: uint64(v)}
}

// Lo returns the low 64 bits of the container.
func (v Value) Lo() uint64 { return v.lo }

// Hi returns the high 64 bits of the container.
func (v Value) Hi() uint64 { return v.hi }

// IsZero reports whether the full 128-bit container is zero.
func (v Value) IsZero() bool { return v.lo == 0 && v.hi == 0 }

// Add returns a+b over the full 128-bit container (wraparound, no trap).
func Add(a, b Value) Value {
	lo, carry := bits.Add64(a.lo, b.lo, 0)
	hi, _ := bits.Add64(a.hi, b.hi, carry)
	return Value{lo: lo, hi: hi}
}

// Sub returns a-b over the full 128-bit container.
func Sub(a, b Value) Value {
	return Add(a, Neg(b))
}

// Neg returns the two's complement negation of v.
func Neg(v Value) Value {
	lo := ^v.lo
	hi := ^v.hi
	return Add(Value{lo: lo, hi: hi}, Value{lo: 1})
}

// AddU widens a machine uint64 and adds it to v — used for byte-offset
// address arithmetic (e.g. stepping a cache line or hash key forward).
func AddU(v Value, u uint64) Value { return Add(v, FromU64(u)) }

// AddI sign-extends a machine int64 and adds it to v — used for signed
// immediate arithmetic (branch/jump offsets, ADDI-style deltas).
func AddI(v Value, i int64) Value { return Add(v, FromI64(i)) }

// And, Or and Xor operate bitwise over the full 128-bit container.
func And(a, b Value) Value { return Value{lo: a.lo & b.lo, hi: a.hi & b.hi} }
func Or(a, b Value) Value  { return Value{lo: a.lo | b.lo, hi: a.hi | b.hi} }
func Xor(a, b Value) Value { return Value{lo: a.lo ^ b.lo, hi: a.hi ^ b.hi} }

// maskToWidth zeroes every bit at or above the selected width, so that
// width-sensitive operations (shifts, compares) see exactly an XLen-wide
// quantity rather than whatever garbage happens to occupy the unused
// portion of the 128-bit container.
func maskToWidth(v Value, w XLen) Value {
	switch w {
	case XLen32:
		return Value{lo: v.lo & 0xFFFFFFFF}
	case XLen64:
		return Value{lo: v.lo}
	default:
		return v
	}
}

func shl64(x uint64, n uint) uint64 {
	if n >= 64 {
		return 0
	}
	return x << n
}

func shr64(x uint64, n uint) uint64 {
	if n >= 64 {
		return 0
	}
	return x >> n
}

// Sll performs a logical left shift of v, masked to the selected width:
// the shift amount is taken modulo the width, and the result is an
// XLen-wide quantity (bits at or above the width are cleared).
func Sll(v Value, shamt uint, w XLen) Value {
	shamt %= uint(w)
	mv := maskToWidth(v, w)
	switch w {
	case XLen32:
		return maskToWidth(Value{lo: shl64(mv.lo, shamt)}, w)
	case XLen64:
		return Value{lo: shl64(mv.lo, shamt)}
	default:
		if shamt == 0 {
			return mv
		}
		if shamt < 64 {
			return Value{lo: mv.lo << shamt, hi: (mv.hi << shamt) | (mv.lo >> (64 - shamt))}
		}
		return Value{lo: 0, hi: mv.lo << (shamt - 64)}
	}
}

// Srl performs a logical right shift (zero fill), masked to the
// selected width the same way Sll is.
func Srl(v Value, shamt uint, w XLen) Value {
	shamt %= uint(w)
	mv := maskToWidth(v, w)
	switch w {
	case XLen32, XLen64:
		return Value{lo: shr64(mv.lo, shamt)}
	default:
		if shamt == 0 {
			return mv
		}
		if shamt < 64 {
			return Value{lo: (mv.lo >> shamt) | (mv.hi << (64 - shamt)), hi: mv.hi >> shamt}
		}
		return Value{lo: mv.hi >> (shamt - 64), hi: 0}
	}
}

// Sra performs an arithmetic right shift. The fill bit is the sign bit
// of the *selected width*, not of the 128-bit container — a 32-bit SRA
// on a value whose upper 96 bits happen to be nonzero still reads its
// sign from bit 31.
func Sra(v Value, shamt uint, w XLen) Value {
	shamt %= uint(w)
	switch w {
	case XLen32:
		x := int32(uint32(v.lo))
		r := x >> shamt
		return Value{lo: uint64(uint32(r))}
	case XLen64:
		x := int64(v.lo)
		r := x >> shamt
		return Value{lo: uint64(r)}
	default:
		signAll := uint64(0)
		if v.hi>>63 == 1 {
			signAll = ^uint64(0)
		}
		if shamt == 0 {
			return v
		}
		if shamt < 64 {
			lo := (v.lo >> shamt) | (v.hi << (64 - shamt))
			hi := (v.hi >> shamt) | (signAll << (64 - shamt))
			return Value{lo: lo, hi: hi}
		}
		s := shamt - 64
		lo := shr64(v.hi, s) | shl64(signAll, 64-s)
		return Value{lo: lo, hi: signAll}
	}
}

// CmpUnsigned compares a and b as unsigned integers at the selected
// width: -1, 0 or 1.
func CmpUnsigned(a, b Value, w XLen) int {
	ma, mb := maskToWidth(a, w), maskToWidth(b, w)
	if ma.hi != mb.hi {
		if ma.hi < mb.hi {
			return -1
		}
		return 1
	}
	if ma.lo != mb.lo {
		if ma.lo < mb.lo {
			return -1
		}
		return 1
	}
	return 0
}

func signBit(v Value, w XLen) bool {
	switch w {
	case XLen32:
		return v.lo&0x80000000 != 0
	case XLen64:
		return v.lo&0x8000000000000000 != 0
	default:
		return v.hi&0x8000000000000000 != 0
	}
}

// CmpSigned compares a and b as two's-complement integers at the
// selected width: -1, 0 or 1.
func CmpSigned(a, b Value, w XLen) int {
	sa, sb := signBit(a, w), signBit(b, w)
	if sa != sb {
		if sa {
			return -1
		}
		return 1
	}
	return CmpUnsigned(a, b, w)
}

// Equal reports whether a and b carry the same value at the selected
// width.
func Equal(a, b Value, w XLen) bool {
	ma, mb := maskToWidth(a, w), maskToWidth(b, w)
	return ma == mb
}
