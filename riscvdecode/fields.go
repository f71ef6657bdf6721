// Package riscvdecode implements the layered, sound-or-silent RISC-V
// interpreter the unwinder drives forward from a frame's saved PC.
// It recognizes the instructions that matter for unwinding —
// stack-pointer adjustment, RA writes, preserved-register spill/
// reload, returns, and forward branches — and treats everything else
// as a no-op whose written registers simply fall back to Unknown
// provenance on next use, never as a hard failure.
package riscvdecode

import "github.com/newhook/riscv-unwind/uerr"

func opcode(insn uint32) uint32 { return insn & 0x7f }
func rd(insn uint32) int        { return int((insn >> 7) & 0x1f) }
func funct3(insn uint32) uint32 { return (insn >> 12) & 0x7 }
func rs1(insn uint32) int       { return int((insn >> 15) & 0x1f) }
func rs2(insn uint32) int       { return int((insn >> 20) & 0x1f) }
func funct7(insn uint32) uint32 { return (insn >> 25) & 0x7f }

func signExtend(v uint64, bits uint) int64 {
	shift := 64 - bits
	return int64(v<<shift) >> shift
}

func immI(insn uint32) int64 { return signExtend(uint64(insn>>20), 12) }

func immS(insn uint32) int64 {
	v := (insn >> 7) & 0x1f
	v |= ((insn >> 25) & 0x7f) << 5
	return signExtend(uint64(v), 12)
}

func immB(insn uint32) int64 {
	v := ((insn >> 8) & 0xf) << 1
	v |= ((insn >> 25) & 0x3f) << 5
	v |= ((insn >> 7) & 0x1) << 11
	v |= ((insn >> 31) & 0x1) << 12
	return signExtend(uint64(v), 13)
}

func immU(insn uint32) int64 { return int64(int32(insn & 0xfffff000)) }

func immJ(insn uint32) int64 {
	v := ((insn >> 21) & 0x3ff) << 1
	v |= ((insn >> 20) & 0x1) << 11
	v |= ((insn >> 12) & 0xff) << 12
	v |= ((insn >> 31) & 0x1) << 20
	return signExtend(uint64(v), 21)
}

func shamt(insn uint32) uint { return uint((insn >> 20) & 0x7f) }

// gatherBits reassembles a RISC-V compressed-instruction immediate
// from a non-contiguous list of source bit positions, result bit i
// taken from instruction bit positions[i]. This mirrors the original
// decoder's get_imm: the C extension packs immediates across whatever
// bit positions were left over by the 16-bit encoding, so the
// gathering order itself is part of the instruction format, not an
// implementation detail.
func gatherBits(instr uint32, positions []int) uint32 {
	var v uint32
	for i, pos := range positions {
		if instr&(1<<uint(pos)) != 0 {
			v |= 1 << uint(i)
		}
	}
	return v
}

// gatherBitsSigned is gatherBits followed by sign extension from the
// final (most significant) bit position in the list.
func gatherBitsSigned(instr uint32, positions []int) int32 {
	v := gatherBits(instr, positions)
	n := uint(len(positions))
	if v&(1<<(n-1)) != 0 {
		v |= ^uint32(0) << n
	}
	return int32(v)
}

var (
	immBitsW        = []int{6, 10, 11, 12, 5}
	immBitsD        = []int{10, 11, 12, 5, 6}
	immBitsQ        = []int{11, 12, 5, 6, 10}
	immBitsLwSP     = []int{4, 5, 6, 12, 2, 3}
	immBitsLdSP     = []int{5, 6, 12, 2, 3, 4}
	immBitsLqSP     = []int{6, 12, 2, 3, 4, 5}
	immBitsSwSP     = []int{9, 10, 11, 12, 7, 8}
	immBitsSdSP     = []int{10, 11, 12, 7, 8, 9}
	immBitsSqSP     = []int{11, 12, 7, 8, 9, 10}
	immBitsJC       = []int{3, 4, 5, 11, 2, 7, 6, 9, 10, 8, 12}
	immBitsBC       = []int{3, 4, 10, 11, 2, 5, 6, 12}
	immBitsAddiSP   = []int{6, 2, 5, 3, 4, 12}
	immBitsAddiSPN  = []int{6, 5, 11, 12, 7, 8, 9, 10}
	immBitsShift    = []int{2, 3, 4, 5, 6, 12}
)

func illegalInstruction(msg string) error {
	return uerr.New(uerr.KindIllegalInstruction, msg)
}
