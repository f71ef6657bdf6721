// Package rvscenario builds synthetic target images for six canonical
// unwind shapes (leaf return, minimal prologue/epilogue, spill-then-
// reload, a branch that skips an early return, instruction-budget
// exhaustion, and memory-hash overflow) so both CLI front ends can
// demo and drive the unwinder without a captured process image or an
// external toolchain.
package rvscenario

import (
	"fmt"
	"sort"

	"github.com/newhook/riscv-unwind/riscvasm"
)

// Image is a raw target memory image loaded at a fixed base address,
// standing in for a live process's address space.
type Image struct {
	Base uint64
	Data []byte
}

func (m *Image) ReadMemory(addr uint64, length int) ([]byte, error) {
	if addr < m.Base || addr+uint64(length) > m.Base+uint64(len(m.Data)) {
		return nil, fmt.Errorf("address 0x%x+%d outside loaded image [0x%x, 0x%x)", addr, length, m.Base, m.Base+uint64(len(m.Data)))
	}
	off := addr - m.Base
	return m.Data[off : off+uint64(length)], nil
}

// RegisterValue is one entry of a JSON register seed file.
type RegisterValue struct {
	Name      string `json:"name"`
	DwarfID   int    `json:"dwarf_id"`
	Size      int    `json:"size"`
	BigEndian bool   `json:"big_endian"`
	Value     uint64 `json:"value"`
}

// Seed is the top-level shape of a -regs JSON file.
type Seed struct {
	TopFrame  bool            `json:"top_frame"`
	Registers []RegisterValue `json:"registers"`
}

// scenario is a built-in synthetic program, one per end-to-end case
// named in spec.md's testable-properties section (S1-S6). Each
// supplies its own memory image, base load address, register seed and
// XLEN.
type scenario struct {
	xlen int
	base uint64
	prog *riscvasm.Program
	regs Seed
}

var scenarios = map[string]func() scenario{
	"s1": scenarioS1,
	"s2": scenarioS2,
	"s3": scenarioS3,
	"s4": scenarioS4,
	"s5": scenarioS5,
	"s6": scenarioS6,
}

// Names lists the known scenario names in sorted order.
func Names() []string {
	names := make([]string, 0, len(scenarios))
	for k := range scenarios {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func baseRegSeed(topFrame bool, sp, ra, pc uint64) Seed {
	return Seed{
		TopFrame: topFrame,
		Registers: []RegisterValue{
			{Name: "pc", DwarfID: -1, Size: 8, Value: pc},
			{Name: "sp", DwarfID: 2, Size: 8, Value: sp},
			{Name: "ra", DwarfID: 1, Size: 8, Value: ra},
		},
	}
}

// scenarioS1: leaf function, single "c.jr ra".
func scenarioS1() scenario {
	prog := &riscvasm.Program{}
	prog.PushC(riscvasm.CJr(riscvasm.RA))
	return scenario{
		xlen: 64, base: 0x2000, prog: prog,
		regs: baseRegSeed(true, 0x8000_0000, 0x1000, 0x2000),
	}
}

// scenarioS2: minimal prologue/epilogue saving ra and s0 (x8) on the
// stack, then restoring and returning.
func scenarioS2() scenario {
	prog := &riscvasm.Program{}
	prog.
		PushC(riscvasm.CAddi16sp(-16)).
		PushC(riscvasm.CSdsp(riscvasm.RA, 0)).
		PushC(riscvasm.CSdsp(riscvasm.FP, 8)).
		PushC(riscvasm.CLdsp(riscvasm.RA, 0)).
		PushC(riscvasm.CLdsp(riscvasm.FP, 8)).
		PushC(riscvasm.CAddi16sp(16)).
		PushC(riscvasm.CJr(riscvasm.RA))
	regs := baseRegSeed(true, 0x8000_0100, 0xDEAD_BEEF, 0x2000)
	regs.Registers = append(regs.Registers, RegisterValue{Name: "x8", DwarfID: 8, Size: 8})
	return scenario{xlen: 64, base: 0x2000, prog: prog, regs: regs}
}

// scenarioS3: same prologue as S2 but the reload happens before the
// stack is deallocated, to exercise the hash-serves-the-later-load
// path explicitly rather than incidentally.
func scenarioS3() scenario {
	prog := &riscvasm.Program{}
	prog.
		PushC(riscvasm.CAddi16sp(-16)).
		PushC(riscvasm.CSdsp(riscvasm.RA, 0)).
		PushC(riscvasm.CLdsp(riscvasm.RA, 0)).
		PushC(riscvasm.CAddi16sp(16)).
		PushC(riscvasm.CJr(riscvasm.RA))
	return scenario{
		xlen: 64, base: 0x2000, prog: prog,
		regs: baseRegSeed(true, 0x8000_0100, 0xDEAD_BEEF, 0x2000),
	}
}

// scenarioS4: a conditional branch that skips an early return; the
// FIFO branch exploration must still find the return reached via the
// fallthrough path.
func scenarioS4() scenario {
	prog := &riscvasm.Program{}
	prog.
		PushC(riscvasm.CAddi16sp(-16)).
		PushC(riscvasm.CSdsp(riscvasm.RA, 0)).
		PushC(riscvasm.CBeqz(9, 4)). // x9 (s1): compressed-branch register fields only reach x8-x15
		PushC(riscvasm.CJr(riscvasm.RA)).
		PushC(riscvasm.CLdsp(riscvasm.RA, 0)).
		PushC(riscvasm.CAddi16sp(16)).
		PushC(riscvasm.CJr(riscvasm.RA))
	return scenario{
		xlen: 64, base: 0x2000, prog: prog,
		regs: baseRegSeed(true, 0x8000_0100, 0xDEAD_BEEF, 0x2000),
	}
}

// scenarioS5: 200 compressed no-ops that never touch RA or SP,
// exhausting the instruction budget and forcing the leaf fallback.
func scenarioS5() scenario {
	prog := &riscvasm.Program{}
	for n := 0; n < 200; n++ {
		prog.PushC(riscvasm.CNop())
	}
	return scenario{
		xlen: 64, base: 0x4000, prog: prog,
		regs: baseRegSeed(true, 0x8000_0200, 0xCAFE_F00D, 0x4000),
	}
}

// scenarioS6: 62 distinct SP-relative stores before the return,
// overflowing the 61-slot memory hash.
func scenarioS6() scenario {
	prog := &riscvasm.Program{}
	for n := 0; n < 62; n++ {
		prog.Push(riscvasm.Sd(riscvasm.SP, riscvasm.GP, int32(n*8)))
	}
	prog.PushC(riscvasm.CJr(riscvasm.RA))
	return scenario{
		xlen: 64, base: 0x5000, prog: prog,
		regs: baseRegSeed(true, 0x8000_1000, 0xFEED_FACE, 0x5000),
	}
}

// Build materializes a named scenario into an Image, register Seed
// and XLEN ready to hand to a Collaborator.
func Build(name string) (*Image, Seed, int, error) {
	build, ok := scenarios[name]
	if !ok {
		return nil, Seed{}, 0, fmt.Errorf("unknown scenario %q (known: %v)", name, Names())
	}
	s := build()
	return &Image{Base: s.base, Data: s.prog.Bytes()}, s.regs, s.xlen, nil
}
