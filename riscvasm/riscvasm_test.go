package riscvasm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newhook/riscv-unwind/memhash"
	"github.com/newhook/riscv-unwind/memio"
	"github.com/newhook/riscv-unwind/regfile"
	"github.com/newhook/riscv-unwind/riscvasm"
	"github.com/newhook/riscv-unwind/riscvdecode"
	"github.com/newhook/riscv-unwind/xlenval"
)

// Canonical encodings below are cross-checked against the well-known
// RISC-V ISA manual reference values, independent of the decoder this
// module ships.
func TestBaseEncodingsMatchKnownValues(t *testing.T) {
	assert.Equal(t, uint32(0x00000013), riscvasm.Nop())
	assert.Equal(t, uint32(0x00008067), riscvasm.Ret())
	assert.Equal(t, uint32(0x003100b3), riscvasm.Add(1, 2, 3))
	assert.Equal(t, uint32(0x40b50533), riscvasm.Sub(10, 10, 11))
}

func TestCompressedEncodingsMatchKnownValues(t *testing.T) {
	assert.Equal(t, uint16(0x0001), riscvasm.CNop())
	assert.Equal(t, uint16(0x8082), riscvasm.CJr(riscvasm.RA))
	assert.Equal(t, uint16(0x4515), riscvasm.CLi(10, 5))
	assert.Equal(t, uint16(0x852e), riscvasm.CMv(10, 11))
	assert.Equal(t, uint16(0x9082), riscvasm.CJalr(riscvasm.RA))
}

type testImage struct{ mem map[uint64]byte }

func newImage() *testImage { return &testImage{mem: map[uint64]byte{}} }

func (img *testImage) ReadMemory(addr uint64, length int) ([]byte, error) {
	out := make([]byte, length)
	for i := 0; i < length; i++ {
		b, ok := img.mem[addr+uint64(i)]
		if !ok {
			return nil, assertErr{}
		}
		out[i] = b
	}
	return out, nil
}

func (img *testImage) putBytes(addr uint64, b []byte) {
	for i, v := range b {
		img.mem[addr+uint64(i)] = v
	}
}

type assertErr struct{}

func (assertErr) Error() string { return "unmapped address" }

func newInterp(img *testImage, pc uint64) *riscvdecode.Interp {
	var regs regfile.File
	return &riscvdecode.Interp{
		XLen:     xlenval.XLen64,
		Regs:     &regs,
		Hash:     &memhash.Hash{},
		Mem:      memio.New(img),
		PC:       xlenval.FromU64(pc),
		WorkList: &riscvdecode.WorkList{},
	}
}

// TestAssembledLeafFunctionReturns builds "addi a0, a0, 1; ret" (one
// base instruction, one compressed) and checks the interpreter both
// recognizes the return and leaves a0 updated along the way.
func TestAssembledLeafFunctionReturns(t *testing.T) {
	img := newImage()
	prog := &riscvasm.Program{}
	prog.Push(riscvasm.Addi(10, 10, 1)).PushC(riscvasm.CRet())
	img.putBytes(0x1000, prog.Bytes())

	i := newInterp(img, 0x1000)
	i.Regs.Set(10, regfile.Slot{Value: xlenval.FromU64(41), Provenance: regfile.Other})
	i.Regs.Set(regfile.RA, regfile.Slot{Value: xlenval.FromU64(0xDEAD0000), Provenance: regfile.Other})
	i.Regs.Set(regfile.SP, regfile.Slot{Value: xlenval.FromU64(0x8000_0000), Provenance: regfile.Other})

	returned, exited, err := i.RunPath()
	require.NoError(t, err)
	assert.True(t, returned)
	assert.False(t, exited)
	assert.Equal(t, uint64(42), i.Regs.Get(10).Value.Lo())
}

// TestAssembledBranchTakenQueuesWorkItem builds "beq x0, x0, +8; <pad>"
// and checks the branch target gets queued (the original decoder
// treats conditional branches as always-queue-both-paths, so even a
// guaranteed-taken comparison both falls through and queues).
func TestAssembledBranchTakenQueuesWorkItem(t *testing.T) {
	img := newImage()
	prog := &riscvasm.Program{}
	prog.Push(riscvasm.Beq(0, 0, 8)).Push(riscvasm.Nop())
	img.putBytes(0x2000, prog.Bytes())

	i := newInterp(img, 0x2000)
	outcome, err := i.Step()
	require.NoError(t, err)
	assert.Equal(t, riscvdecode.OutcomeContinue, outcome)
	assert.Equal(t, uint64(0x2004), i.PC.Lo())

	item, ok := i.WorkList.Pop()
	require.True(t, ok)
	assert.Equal(t, uint64(0x2008), item.PC.Lo())
}

// TestAssembledJalrReturnIdiom confirms "jalr x0, 0(ra)" is recognized
// as a return identically to the compressed "c.jr ra" form.
func TestAssembledJalrReturnIdiom(t *testing.T) {
	img := newImage()
	img.putBytes(0x3000, (&riscvasm.Program{}).Push(riscvasm.Ret()).Bytes())

	i := newInterp(img, 0x3000)
	i.Regs.Set(regfile.RA, regfile.Slot{Value: xlenval.FromU64(0x9999), Provenance: regfile.Other})
	i.Regs.Set(regfile.SP, regfile.Slot{Value: xlenval.FromU64(0x8000_0000), Provenance: regfile.Other})

	outcome, err := i.Step()
	require.NoError(t, err)
	assert.Equal(t, riscvdecode.OutcomeReturn, outcome)
}

// TestAssembledPrologueEpilogueSpillReload builds a minimal
// sd/ld-based frame-pointer save/restore sequence and checks the
// spilled register round-trips through memory.
func TestAssembledPrologueEpilogueSpillReload(t *testing.T) {
	img := newImage()
	prog := &riscvasm.Program{}
	prog.
		Push(riscvasm.Sd(riscvasm.SP, riscvasm.FP, -8)). // sd s0, -8(sp)
		Push(riscvasm.Ld(riscvasm.FP, riscvasm.SP, -8)). // ld s0, -8(sp)
		PushC(riscvasm.CRet())
	img.putBytes(0x4000, prog.Bytes())

	i := newInterp(img, 0x4000)
	i.Regs.Set(riscvasm.SP, regfile.Slot{Value: xlenval.FromU64(0x8000_0100), Provenance: regfile.Other})
	i.Regs.Set(riscvasm.FP, regfile.Slot{Value: xlenval.FromU64(0x1234), Provenance: regfile.Other})
	i.Regs.Set(regfile.RA, regfile.Slot{Value: xlenval.FromU64(0xCAFE), Provenance: regfile.Other})

	returned, _, err := i.RunPath()
	require.NoError(t, err)
	assert.True(t, returned)
	assert.Equal(t, uint64(0x1234), i.Regs.Get(riscvasm.FP).Value.Lo())
}

func TestProgramBytesAreLittleEndian(t *testing.T) {
	p := &riscvasm.Program{}
	p.Push(0x12345678)
	assert.Equal(t, []byte{0x78, 0x56, 0x34, 0x12}, p.Bytes())
	assert.Equal(t, 4, p.Len())
}
