package riscvdecode

import (
	"github.com/sirupsen/logrus"

	"github.com/newhook/riscv-unwind/memhash"
	"github.com/newhook/riscv-unwind/memio"
	"github.com/newhook/riscv-unwind/regfile"
	"github.com/newhook/riscv-unwind/uerr"
	"github.com/newhook/riscv-unwind/xlenval"
)

// WorkListCap is the maximum number of pending branch targets kept in
// flight at once; items beyond this are silently dropped.
const WorkListCap = 12

// InstructionBudget is the maximum number of instructions interpreted
// along a single path before it is abandoned.
const InstructionBudget = 200

// Outcome classifies how Step ended the current instruction.
type Outcome int

const (
	// OutcomeContinue means decoding should keep fetching at the
	// (possibly just-advanced) PC.
	OutcomeContinue Outcome = iota
	// OutcomeReturn means a C.JR RA (or equivalent) was reached: the
	// whole unwind succeeded along this path.
	OutcomeReturn
	// OutcomeBranchExit means this path ends here (an unconditional
	// jump: C.J, C.JR/C.JALR through a register other than RA, JAL, or
	// a JALR other than "ret"); any target it could resolve was already
	// queued as a work item.
	OutcomeBranchExit
)

// WorkItem is a snapshot taken at a forward branch target: destination
// PC plus a full copy of the register file and memory hash at the
// moment of the branch, so the outer loop can explore it independently
// without the two paths sharing mutable state.
type WorkItem struct {
	PC   xlenval.Value
	Regs regfile.File
	Hash memhash.Hash
}

// WorkList is the bounded, deduplicated FIFO queue of pending branch
// targets explored by Run.
type WorkList struct {
	items []WorkItem
}

// Add enqueues item unless the list is full or already contains an
// item with the same destination PC.
func (w *WorkList) Add(item WorkItem) {
	if len(w.items) >= WorkListCap {
		return
	}
	for _, existing := range w.items {
		if xlenval.Equal(existing.PC, item.PC, xlenval.XLen128) {
			return
		}
	}
	w.items = append(w.items, item)
}

// Items returns a snapshot of the pending work list in FIFO order, for
// progress/debugging displays — not used by Run itself.
func (w *WorkList) Items() []WorkItem {
	out := make([]WorkItem, len(w.items))
	copy(out, w.items)
	return out
}

// Pop removes and returns the oldest item, FIFO order.
func (w *WorkList) Pop() (WorkItem, bool) {
	if len(w.items) == 0 {
		return WorkItem{}, false
	}
	item := w.items[0]
	w.items = w.items[1:]
	return item, true
}

// Interp is one in-flight interpretation of a single path through a
// function, starting at a frame's saved PC.
type Interp struct {
	XLen xlenval.XLen

	Regs *regfile.File
	Hash *memhash.Hash
	Mem  *memio.Memory

	FrameReader regfile.FrameReader
	IsTopFrame  bool

	PC       xlenval.Value
	WorkList *WorkList

	Log logrus.FieldLogger
}

func (i *Interp) chkLoaded(s *regfile.Slot) error {
	return regfile.ChkLoaded(i.Hash, i.Mem, i.FrameReader, int(i.XLen), i.IsTopFrame, s)
}

func (i *Interp) get(r int) regfile.Slot  { return i.Regs.Get(r) }
func (i *Interp) set(r int, s regfile.Slot) { i.Regs.Set(r, s) }

func (i *Interp) chkLoadedReg(r int) error {
	s := i.Regs.Get(r)
	if err := i.chkLoaded(&s); err != nil {
		return err
	}
	i.Regs.Set(r, s)
	return nil
}

func (i *Interp) loadRegLazy(addr xlenval.Value, r int, bits int) error {
	var s regfile.Slot
	if err := regfile.LoadRegLazy(i.Hash, i.Mem, bits, addr, int(i.XLen), &s); err != nil {
		return err
	}
	i.Regs.Set(r, s)
	return nil
}

func (i *Interp) storeReg(addr xlenval.Value, r int, bits int) error {
	if err := regfile.FixupOverlapping(i.Hash, i.Mem, i.Regs, addr, int(i.XLen)/8); err != nil {
		return err
	}
	return regfile.StoreReg(i.Hash, i.Mem, i.FrameReader, int(i.XLen), i.IsTopFrame, i.Regs, r, addr, bits)
}

func (i *Interp) addBranch(target xlenval.Value) {
	item := WorkItem{PC: target}
	item.Regs = *i.Regs
	item.Hash = *i.Hash
	i.WorkList.Add(item)
	if i.Log != nil {
		i.Log.WithField("target", target.Lo()).Debug("queued branch work item")
	}
}

// pcAsOther returns the interpreter's current PC as an Other-tagged
// value — the interpreter always knows its own fetch address
// concretely, so any register derived from PC (AUIPC, JAL's RA write)
// is always a known value, never lazily tagged.
func (i *Interp) pcAsOther() regfile.Slot {
	return regfile.Slot{Value: i.PC, Provenance: regfile.Other}
}

// Step fetches, decodes and executes exactly one instruction at the
// interpreter's current PC, advancing PC on OutcomeContinue. It always
// reads a full 32-bit word at PC regardless of the instruction's
// actual width, matching the original decoder's unconditional
// read_u32 — a compressed instruction's window simply extends two
// bytes past what gets interpreted.
func (i *Interp) Step() (Outcome, error) {
	if i.PC.Lo()%2 != 0 || i.PC.Hi() != 0 {
		return OutcomeContinue, uerr.New(uerr.KindPCMisalignment, "PC is not 2-byte aligned")
	}

	word, err := i.Mem.ReadU32(i.PC)
	if err != nil {
		return OutcomeContinue, err
	}
	if i.Log != nil {
		i.Log.WithFields(logrus.Fields{"pc": i.PC.Lo(), "word": word.Lo()}).Debug("step")
	}

	if word.Lo()&0x3 == 0x3 {
		return i.stepBase(uint32(word.Lo()))
	}
	return i.stepCompressed(uint32(word.Lo()) & 0xffff)
}

func (i *Interp) stepCompressed(instr uint32) (Outcome, error) {
	if instr&0xffff == 0 {
		return OutcomeContinue, illegalInstruction("compressed instruction word is zero")
	}
	outcome, err := decodeCompressed(i, instr)
	if err != nil {
		return OutcomeContinue, err
	}
	if outcome == OutcomeContinue {
		i.PC = xlenval.AddU(i.PC, 2)
	}
	return outcome, nil
}

func (i *Interp) stepBase(instr uint32) (Outcome, error) {
	outcome, err := decodeBase(i, instr)
	if err != nil {
		return OutcomeContinue, err
	}
	if outcome == OutcomeContinue {
		i.PC = xlenval.AddU(i.PC, 4)
	}
	return outcome, nil
}

// RunPath interprets instructions from the interpreter's current
// state until it returns, exits via an unconditional branch, exhausts
// InstructionBudget, or a per-instruction error abandons the path. All
// of these are ordinary path outcomes, not attempt-fatal — the
// original's trace_instructions catches every decode/memory error at
// exactly this granularity and simply moves on to the next queued
// branch target.
func (i *Interp) RunPath() (returned bool, exited bool, pathErr error) {
	if i.PC.IsZero() {
		return false, false, uerr.New(uerr.KindPCUnavailable, "PC == 0")
	}
	for n := 0; n < InstructionBudget; n++ {
		outcome, err := i.Step()
		if err != nil {
			return false, false, err
		}
		switch outcome {
		case OutcomeReturn:
			sp := i.Regs.Get(regfile.SP)
			if err := i.chkLoaded(&sp); err != nil {
				return false, false, err
			}
			i.Regs.Set(regfile.SP, sp)
			if sp.Provenance == regfile.Unknown {
				return false, false, uerr.New(uerr.KindInvalidSP, "SP not available at return")
			}
			return true, false, nil
		case OutcomeBranchExit:
			return false, true, nil
		}
	}
	return false, false, nil
}

// Run drives the bounded, FIFO branch work-list exploration: it
// runs RunPath from the interpreter's initial state, and on any
// non-success outcome (path error, branch exit, or budget exhaustion)
// pops the next queued work item and tries again, until either a path
// returns successfully or the work list is drained. It reports whether
// any path returned; drained-without-success is not itself an error —
// the caller performs the leaf-function fallback in that case.
func Run(i *Interp) bool {
	for {
		returned, _, err := i.RunPath()
		if err != nil && i.Log != nil {
			i.Log.WithError(err).WithField("pc", i.PC.Lo()).Warn("stack crawl: path abandoned")
		}
		if returned {
			return true
		}
		item, ok := i.WorkList.Pop()
		if !ok {
			return false
		}
		i.PC = item.PC
		*i.Regs = item.Regs
		*i.Hash = item.Hash
	}
}
