// Package locexpr implements the small tagged-command sequence the
// unwinder emits in place of a materialized register value when a
// caller register is only known to live at an address-into-frame or
// address-into-stack location rather than as a concrete number: a
// consumer that wants the value evaluates the commands itself rather
// than receiving a pre-computed constant, which keeps the unwinder
// from ever needing to commit to a final value it hasn't actually
// read. This mirrors the original's SFT_CMD_NUMBER / SFT_CMD_RD_MEM /
// SFT_CMD_RD_REG pair-or-singleton command lists.
package locexpr

import "fmt"

// Kind tags one command in an Expr.
type Kind int

const (
	// Number pushes a literal value onto the evaluator's stack.
	Number Kind = iota
	// ReadMemory pops an address and pushes the MemSize-byte value
	// read from it.
	ReadMemory
	// ReadRegister pushes the current value of the register named by
	// RegIndex (an index into the unwinder's register catalog, not a
	// dwarf id — locexpr has no business knowing about the catalog's
	// shape).
	ReadRegister
)

// Command is one step of an Expr.
type Command struct {
	Kind     Kind
	Num      uint64
	MemSize  int
	RegIndex int
}

// PushNumber builds a Number command.
func PushNumber(v uint64) Command { return Command{Kind: Number, Num: v} }

// ReadMem builds a ReadMemory command of the given width in bytes.
func ReadMem(size int) Command { return Command{Kind: ReadMemory, MemSize: size} }

// ReadReg builds a ReadRegister command referring to regIndex.
func ReadReg(regIndex int) Command { return Command{Kind: ReadRegister, RegIndex: regIndex} }

// Expr is an ordered sequence of commands: evaluating it left to right
// against a stack machine yields the register's value.
type Expr []Command

// AddrThenMem builds the two-command form used when a register's
// value lives at a known address: push the address, then read
// size bytes from it. This is the Expr shape for REG_VAL_ADDR and
// REG_VAL_STACK provenances whose address could not be resolved
// against the already-captured memory hash.
func AddrThenMem(addr uint64, size int) Expr {
	return Expr{PushNumber(addr), ReadMem(size)}
}

// FrameRegister builds the single-command form used when a register's
// value is simply another register's value, unread at unwind time
// (REG_VAL_FRAME provenance: the register was never touched by the
// interpreted path, so its caller-frame value is whatever it held on
// entry).
func FrameRegister(regIndex int) Expr {
	return Expr{ReadReg(regIndex)}
}

// String renders Expr in a debug-friendly postfix-ish form, e.g.
// "push 0x1000; read_mem 8" or "read_reg 5".
func (e Expr) String() string {
	s := ""
	for i, c := range e {
		if i > 0 {
			s += "; "
		}
		switch c.Kind {
		case Number:
			s += fmt.Sprintf("push %#x", c.Num)
		case ReadMemory:
			s += fmt.Sprintf("read_mem %d", c.MemSize)
		case ReadRegister:
			s += fmt.Sprintf("read_reg %d", c.RegIndex)
		default:
			s += "?"
		}
	}
	return s
}
