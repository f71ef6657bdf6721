// Package riscvasm encodes RISC-V base and compressed instructions
// into their raw bit patterns. It exists to build synthetic memory
// images for exercising riscvdecode and unwind without depending on an
// external toolchain — the instruction formats mirror the RISC-V
// base ISA and C extension manuals, not any particular assembler's
// mnemonic syntax.
package riscvasm

// Register name constants for the registers test programs reach for
// most often. Any integer 0-31 is a valid operand; these just save
// callers from writing magic numbers for the conventional names.
const (
	X0 = 0
	RA = 1
	SP = 2
	GP = 3
	TP = 4
	FP = 8 // alias for x8/s0
)

func field(v int64, bits uint) uint32 { return uint32(v) & ((1 << bits) - 1) }

// --- base 32-bit instruction formats ---

func rType(opcode, rd, funct3, rs1, rs2, funct7 uint32) uint32 {
	return (funct7 << 25) | (rs2 << 20) | (rs1 << 15) | (funct3 << 12) | (rd << 7) | opcode
}

func iType(opcode, rd, funct3, rs1 uint32, imm int32) uint32 {
	return (field(int64(imm), 12) << 20) | (rs1 << 15) | (funct3 << 12) | (rd << 7) | opcode
}

func sType(opcode, funct3, rs1, rs2 uint32, imm int32) uint32 {
	u := field(int64(imm), 12)
	lo := u & 0x1f
	hi := (u >> 5) & 0x7f
	return (hi << 25) | (rs2 << 20) | (rs1 << 15) | (funct3 << 12) | (lo << 7) | opcode
}

func bType(opcode, funct3, rs1, rs2 uint32, imm int32) uint32 {
	u := field(int64(imm), 13)
	bit12 := (u >> 12) & 1
	bits10_5 := (u >> 5) & 0x3f
	bits4_1 := (u >> 1) & 0xf
	bit11 := (u >> 11) & 1
	return (bit12 << 31) | (bits10_5 << 25) | (rs2 << 20) | (rs1 << 15) | (funct3 << 12) | (bits4_1 << 8) | (bit11 << 7) | opcode
}

func uType(opcode, rd uint32, imm int32) uint32 {
	return (uint32(imm) & 0xfffff000) | (rd << 7) | opcode
}

func jType(opcode, rd uint32, imm int32) uint32 {
	u := field(int64(imm), 21)
	bit20 := (u >> 20) & 1
	bits10_1 := (u >> 1) & 0x3ff
	bit11 := (u >> 11) & 1
	bits19_12 := (u >> 12) & 0xff
	return (bit20 << 31) | (bits10_1 << 21) | (bit11 << 20) | (bits19_12 << 12) | (rd << 7) | opcode
}

// Lui encodes "lui rd, imm" (imm already shifted into bits 31:12).
func Lui(rd uint32, imm int32) uint32 { return uType(0x37, rd, imm) }

// Auipc encodes "auipc rd, imm".
func Auipc(rd uint32, imm int32) uint32 { return uType(0x17, rd, imm) }

// Jal encodes "jal rd, offset".
func Jal(rd uint32, offset int32) uint32 { return jType(0x6f, rd, offset) }

// Jalr encodes "jalr rd, offset(rs1)".
func Jalr(rd, rs1 uint32, offset int32) uint32 { return iType(0x67, rd, 0, rs1, offset) }

// Ret encodes the canonical "jalr x0, 0(ra)" return idiom.
func Ret() uint32 { return Jalr(X0, RA, 0) }

func Beq(rs1, rs2 uint32, offset int32) uint32  { return bType(0x63, 0, rs1, rs2, offset) }
func Bne(rs1, rs2 uint32, offset int32) uint32  { return bType(0x63, 1, rs1, rs2, offset) }
func Blt(rs1, rs2 uint32, offset int32) uint32  { return bType(0x63, 4, rs1, rs2, offset) }
func Bge(rs1, rs2 uint32, offset int32) uint32  { return bType(0x63, 5, rs1, rs2, offset) }
func Bltu(rs1, rs2 uint32, offset int32) uint32 { return bType(0x63, 6, rs1, rs2, offset) }
func Bgeu(rs1, rs2 uint32, offset int32) uint32 { return bType(0x63, 7, rs1, rs2, offset) }

func Lb(rd, rs1 uint32, offset int32) uint32  { return iType(0x03, rd, 0, rs1, offset) }
func Lh(rd, rs1 uint32, offset int32) uint32  { return iType(0x03, rd, 1, rs1, offset) }
func Lw(rd, rs1 uint32, offset int32) uint32  { return iType(0x03, rd, 2, rs1, offset) }
func Ld(rd, rs1 uint32, offset int32) uint32  { return iType(0x03, rd, 3, rs1, offset) }
func Lbu(rd, rs1 uint32, offset int32) uint32 { return iType(0x03, rd, 4, rs1, offset) }
func Lhu(rd, rs1 uint32, offset int32) uint32 { return iType(0x03, rd, 5, rs1, offset) }
func Lwu(rd, rs1 uint32, offset int32) uint32 { return iType(0x03, rd, 6, rs1, offset) }

func Sb(rs1, rs2 uint32, offset int32) uint32 { return sType(0x23, 0, rs1, rs2, offset) }
func Sh(rs1, rs2 uint32, offset int32) uint32 { return sType(0x23, 1, rs1, rs2, offset) }
func Sw(rs1, rs2 uint32, offset int32) uint32 { return sType(0x23, 2, rs1, rs2, offset) }
func Sd(rs1, rs2 uint32, offset int32) uint32 { return sType(0x23, 3, rs1, rs2, offset) }

func Addi(rd, rs1 uint32, imm int32) uint32  { return iType(0x13, rd, 0, rs1, imm) }
func Slti(rd, rs1 uint32, imm int32) uint32  { return iType(0x13, rd, 2, rs1, imm) }
func Sltiu(rd, rs1 uint32, imm int32) uint32 { return iType(0x13, rd, 3, rs1, imm) }
func Xori(rd, rs1 uint32, imm int32) uint32  { return iType(0x13, rd, 4, rs1, imm) }
func Ori(rd, rs1 uint32, imm int32) uint32   { return iType(0x13, rd, 6, rs1, imm) }
func Andi(rd, rs1 uint32, imm int32) uint32  { return iType(0x13, rd, 7, rs1, imm) }

// Nop encodes the base-ISA "addi x0, x0, 0" no-op.
func Nop() uint32 { return Addi(X0, X0, 0) }

func Slli(rd, rs1 uint32, shamt uint32) uint32 { return iType(0x13, rd, 1, rs1, int32(shamt)) }
func Srli(rd, rs1 uint32, shamt uint32) uint32 { return iType(0x13, rd, 5, rs1, int32(shamt)) }
func Srai(rd, rs1 uint32, shamt uint32) uint32 {
	return iType(0x13, rd, 5, rs1, int32(shamt|(0x20<<5)))
}

func Add(rd, rs1, rs2 uint32) uint32 { return rType(0x33, rd, 0, rs1, rs2, 0x00) }
func Sub(rd, rs1, rs2 uint32) uint32 { return rType(0x33, rd, 0, rs1, rs2, 0x20) }
func Sll(rd, rs1, rs2 uint32) uint32 { return rType(0x33, rd, 1, rs1, rs2, 0x00) }
func Slt(rd, rs1, rs2 uint32) uint32 { return rType(0x33, rd, 2, rs1, rs2, 0x00) }
func Sltu(rd, rs1, rs2 uint32) uint32 { return rType(0x33, rd, 3, rs1, rs2, 0x00) }
func Xor(rd, rs1, rs2 uint32) uint32 { return rType(0x33, rd, 4, rs1, rs2, 0x00) }
func Srl(rd, rs1, rs2 uint32) uint32 { return rType(0x33, rd, 5, rs1, rs2, 0x00) }
func Sra(rd, rs1, rs2 uint32) uint32 { return rType(0x33, rd, 5, rs1, rs2, 0x20) }
func Or(rd, rs1, rs2 uint32) uint32  { return rType(0x33, rd, 6, rs1, rs2, 0x00) }
func And(rd, rs1, rs2 uint32) uint32 { return rType(0x33, rd, 7, rs1, rs2, 0x00) }

func Addiw(rd, rs1 uint32, imm int32) uint32 { return iType(0x1b, rd, 0, rs1, imm) }
func Slliw(rd, rs1 uint32, shamt uint32) uint32 { return iType(0x1b, rd, 1, rs1, int32(shamt)) }
func Srliw(rd, rs1 uint32, shamt uint32) uint32 { return iType(0x1b, rd, 5, rs1, int32(shamt)) }
func Sraiw(rd, rs1 uint32, shamt uint32) uint32 {
	return iType(0x1b, rd, 5, rs1, int32(shamt|(0x20<<5)))
}

func Addw(rd, rs1, rs2 uint32) uint32 { return rType(0x3b, rd, 0, rs1, rs2, 0x00) }
func Subw(rd, rs1, rs2 uint32) uint32 { return rType(0x3b, rd, 0, rs1, rs2, 0x20) }
func Sllw(rd, rs1, rs2 uint32) uint32 { return rType(0x3b, rd, 1, rs1, rs2, 0x00) }
func Srlw(rd, rs1, rs2 uint32) uint32 { return rType(0x3b, rd, 5, rs1, rs2, 0x00) }
func Sraw(rd, rs1, rs2 uint32) uint32 { return rType(0x3b, rd, 5, rs1, rs2, 0x20) }

// --- 16-bit compressed instruction formats ---

// compressedReg maps a register's offset from x8 (callers pass r-8 for
// x8-x15) to its 3-bit compressed register field.
func compressedReg(r uint32) uint32 { return r & 0x7 }

// scatterBits is the inverse of riscvdecode's gatherBits: it places
// bit i of v into instruction bit position[i], for a non-contiguous
// compressed-immediate field. Using the identical position tables the
// decoder reads back guarantees round-trip correctness.
func scatterBits(v uint32, positions []int) uint32 {
	var out uint32
	for i, pos := range positions {
		if v&(1<<uint(i)) != 0 {
			out |= 1 << uint(pos)
		}
	}
	return out
}

// These mirror riscvdecode's immBits* tables exactly (fields.go is the
// source of truth for bit layout; duplicated here since the table is
// unexported there).
var (
	immBitsW       = []int{6, 10, 11, 12, 5}
	immBitsD       = []int{10, 11, 12, 5, 6}
	immBitsQ       = []int{11, 12, 5, 6, 10}
	immBitsLwSP    = []int{4, 5, 6, 12, 2, 3}
	immBitsLdSP    = []int{5, 6, 12, 2, 3, 4}
	immBitsLqSP    = []int{6, 12, 2, 3, 4, 5}
	immBitsSwSP    = []int{9, 10, 11, 12, 7, 8}
	immBitsSdSP    = []int{10, 11, 12, 7, 8, 9}
	immBitsSqSP    = []int{11, 12, 7, 8, 9, 10}
	immBitsJC      = []int{3, 4, 5, 11, 2, 7, 6, 9, 10, 8, 12}
	immBitsBC      = []int{3, 4, 10, 11, 2, 5, 6, 12}
	immBitsAddiSP  = []int{6, 2, 5, 3, 4, 12}
	immBitsAddiSPN = []int{6, 5, 11, 12, 7, 8, 9, 10}
	immBitsShift   = []int{2, 3, 4, 5, 6, 12}
)

// CNop encodes "c.nop".
func CNop() uint16 { return 0x0001 }

// CAddi encodes "c.addi rd, imm" (rd != 0, imm != 0).
func CAddi(rd uint32, imm int32) uint16 {
	return uint16(0x0001 | (rd << 7) | scatterBits(field(int64(imm), 6), immBitsShift))
}

// CLi encodes "c.li rd, imm" (rd != 0).
func CLi(rd uint32, imm int32) uint16 {
	return uint16(0x4001 | (rd << 7) | scatterBits(field(int64(imm), 6), immBitsShift))
}

// CLui encodes "c.lui rd, imm" (rd != 0, rd != 2, imm != 0). imm is
// the raw 6-bit nonzero-upper-immediate value, not pre-shifted.
func CLui(rd uint32, imm int32) uint16 {
	return uint16(0x6001 | (rd << 7) | scatterBits(field(int64(imm), 6), immBitsShift))
}

// CAddi16sp encodes "c.addi16sp imm" (imm != 0, multiple of 16).
func CAddi16sp(imm int32) uint16 {
	return uint16(0x6101 | scatterBits(field(int64(imm>>4), 6), immBitsAddiSP))
}

// CAddi4spn encodes "c.addi4spn rd', imm" (imm != 0, multiple of 4).
// rd is the full register number (8-15).
func CAddi4spn(rd uint32, imm int32) uint16 {
	return uint16(0x0000 | (compressedReg(rd-8) << 2) | scatterBits(field(int64(imm>>2), 8), immBitsAddiSPN))
}

// CSrli encodes "c.srli rd', shamt" (rd is full register number 8-15).
func CSrli(rd uint32, shamt uint32) uint16 {
	return uint16(0x8001 | (compressedReg(rd-8) << 7) | scatterBits(shamt, immBitsShift))
}

// CSrai encodes "c.srai rd', shamt".
func CSrai(rd uint32, shamt uint32) uint16 {
	return uint16(0x8401 | (compressedReg(rd-8) << 7) | scatterBits(shamt, immBitsShift))
}

// CAndi encodes "c.andi rd', imm".
func CAndi(rd uint32, imm int32) uint16 {
	return uint16(0x8801 | (compressedReg(rd-8) << 7) | scatterBits(field(int64(imm), 6), immBitsShift))
}

func csubGroup(rd, rs2 uint32, funcLo uint32) uint16 {
	return uint16(0x8c01 | (compressedReg(rd-8) << 7) | (compressedReg(rs2-8) << 2) | (funcLo << 5))
}

func CSub(rd, rs2 uint32) uint16 { return csubGroup(rd, rs2, 0) }
func CXor(rd, rs2 uint32) uint16 { return csubGroup(rd, rs2, 1) }
func COr(rd, rs2 uint32) uint16  { return csubGroup(rd, rs2, 2) }
func CAnd(rd, rs2 uint32) uint16 { return csubGroup(rd, rs2, 3) }

func csubwGroup(rd, rs2 uint32, funcLo uint32) uint16 {
	return uint16(0x9c01 | (compressedReg(rd-8) << 7) | (compressedReg(rs2-8) << 2) | (funcLo << 5))
}

func CSubw(rd, rs2 uint32) uint16 { return csubwGroup(rd, rs2, 0) }
func CAddw(rd, rs2 uint32) uint16 { return csubwGroup(rd, rs2, 1) }

// CJ encodes the unconditional "c.j offset" jump.
func CJ(offset int32) uint16 { return jcEncode(0xa001, offset) }

// CJal encodes "c.jal offset" (RV32 only: implicitly links ra).
func CJal(offset int32) uint16 { return jcEncode(0x2001, offset) }

func jcEncode(base uint32, offset int32) uint16 {
	return uint16(base | scatterBits(field(int64(offset>>1), 11), immBitsJC))
}

// CBeqz encodes "c.beqz rs1', offset".
func CBeqz(rs1 uint32, offset int32) uint16 { return bcEncode(0xc001, rs1, offset) }

// CBnez encodes "c.bnez rs1', offset".
func CBnez(rs1 uint32, offset int32) uint16 { return bcEncode(0xe001, rs1, offset) }

func bcEncode(base uint32, rs1 uint32, offset int32) uint16 {
	v := scatterBits(field(int64(offset>>1), 8), immBitsBC)
	return uint16(base | (compressedReg(rs1-8) << 7) | v)
}

// CLwsp encodes "c.lwsp rd, imm" (rd != 0).
func CLwsp(rd uint32, imm int32) uint16 {
	return uint16(0x4002 | (rd << 7) | scatterBits(uint32(imm)/4, immBitsLwSP))
}

// CSwsp encodes "c.swsp rs2, imm".
func CSwsp(rs2 uint32, imm int32) uint16 {
	return uint16(0xc002 | (rs2 << 2) | scatterBits(uint32(imm)/4, immBitsSwSP))
}

// CLdsp encodes "c.ldsp rd, imm" (rd != 0, RV64/128).
func CLdsp(rd uint32, imm int32) uint16 {
	return uint16(0x6002 | (rd << 7) | scatterBits(uint32(imm)/8, immBitsLdSP))
}

// CSdsp encodes "c.sdsp rs2, imm" (RV64/128).
func CSdsp(rs2 uint32, imm int32) uint16 {
	return uint16(0xe002 | (rs2 << 2) | scatterBits(uint32(imm)/8, immBitsSdSP))
}

// CLw/CSw encode "c.lw rd', offset(rs1')" / "c.sw rs2', offset(rs1')".
func CLw(rd, rs1 uint32, offset int32) uint16  { return cwEncode(0x4000, rd-8, rs1, offset) }
func CSw(rs2, rs1 uint32, offset int32) uint16 { return cwEncode(0xc000, rs2-8, rs1, offset) }

func cwEncode(base uint32, rdOrRs2 uint32, rs1 uint32, offset int32) uint16 {
	v := scatterBits(uint32(offset)/4, immBitsW)
	return uint16(base | (compressedReg(rs1-8) << 7) | (compressedReg(rdOrRs2) << 2) | v)
}

// CLd/CSd encode "c.ld rd', offset(rs1')" / "c.sd rs2', offset(rs1')" (RV64/128).
func CLd(rd, rs1 uint32, offset int32) uint16  { return cdEncode(0x6000, rd-8, rs1, offset) }
func CSd(rs2, rs1 uint32, offset int32) uint16 { return cdEncode(0xe000, rs2-8, rs1, offset) }

func cdEncode(base uint32, rdOrRs2 uint32, rs1 uint32, offset int32) uint16 {
	v := scatterBits(uint32(offset)/8, immBitsD)
	return uint16(base | (compressedReg(rs1-8) << 7) | (compressedReg(rdOrRs2) << 2) | v)
}

// CSlli encodes "c.slli rd, shamt" (rd != 0).
func CSlli(rd uint32, shamt uint32) uint16 {
	return uint16(0x0002 | (rd << 7) | scatterBits(shamt, immBitsShift))
}

// CJr encodes "c.jr rs1" (rs1 != 0) — an unconditional jump to a
// register value.
func CJr(rs1 uint32) uint16 { return uint16(0x8002 | (rs1 << 7)) }

// CJalr encodes "c.jalr rs1" (rs1 != 0) — links ra, then jumps.
func CJalr(rs1 uint32) uint16 { return uint16(0x9002 | (rs1 << 7)) }

// CMv encodes "c.mv rd, rs2" (rd != 0, rs2 != 0).
func CMv(rd, rs2 uint32) uint16 { return uint16(0x8002 | (rd << 7) | (rs2 << 2)) }

// CAdd encodes "c.add rd, rs2" (rd != 0, rs2 != 0).
func CAdd(rd, rs2 uint32) uint16 { return uint16(0x9002 | (rd << 7) | (rs2 << 2)) }

// CRet is the conventional leaf-return idiom: "c.jr ra".
func CRet() uint16 { return CJr(RA) }

// Program is an ordered, little-endian instruction stream a test can
// lay down at a base address. Push/PushC append a base/compressed
// instruction in turn; Bytes returns the assembled byte stream.
type Program struct {
	buf []byte
}

// Push appends one 32-bit base instruction.
func (p *Program) Push(instr uint32) *Program {
	p.buf = append(p.buf, byte(instr), byte(instr>>8), byte(instr>>16), byte(instr>>24))
	return p
}

// PushC appends one 16-bit compressed instruction.
func (p *Program) PushC(instr uint16) *Program {
	p.buf = append(p.buf, byte(instr), byte(instr>>8))
	return p
}

// Bytes returns the assembled instruction stream.
func (p *Program) Bytes() []byte { return p.buf }

// Len reports the current length of the assembled stream in bytes.
func (p *Program) Len() int { return len(p.buf) }
