package riscvdecode_test

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newhook/riscv-unwind/memhash"
	"github.com/newhook/riscv-unwind/memio"
	"github.com/newhook/riscv-unwind/regfile"
	"github.com/newhook/riscv-unwind/riscvdecode"
	"github.com/newhook/riscv-unwind/uerr"
	"github.com/newhook/riscv-unwind/xlenval"
)

type fakeTarget struct {
	image map[uint64]byte
}

func newImage(base uint64, words ...uint32) *fakeTarget {
	f := &fakeTarget{image: map[uint64]byte{}}
	addr := base
	for _, w := range words {
		f.image[addr] = byte(w)
		f.image[addr+1] = byte(w >> 8)
		f.image[addr+2] = byte(w >> 16)
		f.image[addr+3] = byte(w >> 24)
		addr += 4
	}
	return f
}

func (f *fakeTarget) putWord(addr uint64, w uint32) {
	f.image[addr] = byte(w)
	f.image[addr+1] = byte(w >> 8)
	f.image[addr+2] = byte(w >> 16)
	f.image[addr+3] = byte(w >> 24)
}

func (f *fakeTarget) ReadMemory(addr uint64, length int) ([]byte, error) {
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

func newInterp(t *testing.T, pc uint64, target *fakeTarget) *riscvdecode.Interp {
	t.Helper()
	var regs regfile.File
	regs.Set(regfile.SP, regfile.Slot{Value: xlenval.FromU64(0x2000), Provenance: regfile.Other})
	return &riscvdecode.Interp{
		XLen:       xlenval.XLen64,
		Regs:       &regs,
		Hash:       &memhash.Hash{},
		Mem:        memio.New(target),
		IsTopFrame: true,
		PC:         xlenval.FromU64(pc),
		WorkList:   &riscvdecode.WorkList{},
		Log:        logrus.StandardLogger(),
	}
}

func TestStepCompressedADDIAdvancesPCAndUpdatesRegister(t *testing.T) {
	// C.ADDI x8, 5 : funct3=000 imm[5]=0 rd=8 imm[4:0]=00101 op=01
	const instr = 0x0415
	img := newImage(0x1000, instr)
	i := newInterp(t, 0x1000, img)
	i.Regs.Set(8, regfile.Slot{Value: xlenval.FromU64(10), Provenance: regfile.Other})

	outcome, err := i.Step()
	require.NoError(t, err)
	assert.Equal(t, riscvdecode.OutcomeContinue, outcome)
	assert.Equal(t, uint64(0x1002), i.PC.Lo())
	assert.Equal(t, uint64(15), i.Regs.Get(8).Value.Lo())
}

func TestStepCompressedIllegalZeroWord(t *testing.T) {
	img := newImage(0x1000, 0x00000000)
	i := newInterp(t, 0x1000, img)
	_, err := i.Step()
	assert.True(t, uerr.Is(err, uerr.KindIllegalInstruction))
}

func TestStepBaseLUISetsUpperImmediate(t *testing.T) {
	// lui x5, 0x12345 -> opcode 0x37, rd=5
	const instr = (0x12345000) | (5 << 7) | 0x37
	img := newImage(0x2000, instr)
	i := newInterp(t, 0x2000, img)

	outcome, err := i.Step()
	require.NoError(t, err)
	assert.Equal(t, riscvdecode.OutcomeContinue, outcome)
	assert.Equal(t, uint64(0x2004), i.PC.Lo())
	assert.Equal(t, uint64(0x12345000), i.Regs.Get(5).Value.Lo())
	assert.Equal(t, regfile.Other, i.Regs.Get(5).Provenance)
}

func TestStepCompressedCJRRaSignalsReturn(t *testing.T) {
	// c.jr ra : instr&0xe003==0x8002, bit12=0, rd=ra(1), rs=0
	const instr = (1 << 7) | 0x8002
	img := newImage(0x3000, instr)
	i := newInterp(t, 0x3000, img)
	i.Regs.Set(regfile.RA, regfile.Slot{Value: xlenval.FromU64(0x4000), Provenance: regfile.Other})

	outcome, err := i.Step()
	require.NoError(t, err)
	assert.Equal(t, riscvdecode.OutcomeReturn, outcome)
}

func TestRunPathSucceedsOnReturnWithKnownSP(t *testing.T) {
	const jr = (1 << 7) | 0x8002 // c.jr ra
	img := newImage(0x5000, jr)
	i := newInterp(t, 0x5000, img)
	i.Regs.Set(regfile.RA, regfile.Slot{Value: xlenval.FromU64(0x9000), Provenance: regfile.Other})

	returned, exited, err := i.RunPath()
	require.NoError(t, err)
	assert.True(t, returned)
	assert.False(t, exited)
}

func TestRunPathFailsOnReturnWithUnknownSP(t *testing.T) {
	const jr = (1 << 7) | 0x8002 // c.jr ra
	img := newImage(0x5000, jr)
	i := newInterp(t, 0x5000, img)
	i.Regs.Set(regfile.RA, regfile.Slot{Value: xlenval.FromU64(0x9000), Provenance: regfile.Other})
	i.Regs.Set(regfile.SP, regfile.Slot{}) // Unknown

	_, _, err := i.RunPath()
	assert.True(t, uerr.Is(err, uerr.KindInvalidSP))
}

func TestRunExploresQueuedBranchAfterPathExit(t *testing.T) {
	// c.jr x5 (rd=5, rs2=0): a jump through a register other than RA
	// exits the path and queues its target 0x7000 for the next path
	const jrX5 = (5 << 7) | 0x8002
	img := newImage(0x6000, jrX5)
	// second path target: 0x7000 holds c.jr ra
	const jrRA = uint32((1 << 7) | 0x8002)
	img.image[0x7000] = byte(jrRA)
	img.image[0x7001] = byte(jrRA >> 8)
	img.image[0x7002] = byte(jrRA >> 16)
	img.image[0x7003] = byte(jrRA >> 24)

	i := newInterp(t, 0x6000, img)
	i.Regs.Set(5, regfile.Slot{Value: xlenval.FromU64(0x7000), Provenance: regfile.Other})
	i.Regs.Set(regfile.RA, regfile.Slot{Value: xlenval.FromU64(0x9000), Provenance: regfile.Other})

	ok := riscvdecode.Run(i)
	assert.True(t, ok)
}

func TestWorkListCapDropsExtraItems(t *testing.T) {
	w := &riscvdecode.WorkList{}
	for n := 0; n < riscvdecode.WorkListCap+5; n++ {
		w.Add(riscvdecode.WorkItem{PC: xlenval.FromU64(uint64(0x1000 + n*4))})
	}
	count := 0
	for {
		if _, ok := w.Pop(); !ok {
			break
		}
		count++
	}
	assert.Equal(t, riscvdecode.WorkListCap, count)
}

func TestWorkListDedupByPC(t *testing.T) {
	w := &riscvdecode.WorkList{}
	w.Add(riscvdecode.WorkItem{PC: xlenval.FromU64(0x1000)})
	w.Add(riscvdecode.WorkItem{PC: xlenval.FromU64(0x1000)})
	_, ok := w.Pop()
	require.True(t, ok)
	_, ok = w.Pop()
	assert.False(t, ok)
}
