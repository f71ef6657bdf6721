package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/newhook/riscv-unwind/memhash"
	"github.com/newhook/riscv-unwind/memio"
	"github.com/newhook/riscv-unwind/regfile"
	"github.com/newhook/riscv-unwind/riscvdecode"
	"github.com/newhook/riscv-unwind/rvscenario"
	"github.com/newhook/riscv-unwind/xlenval"
)

// stepTick drives the interpreter forward one instruction at a time
// while running (not single-stepped by hand).
type stepTick struct{}

func doStep() tea.Cmd {
	return tea.Tick(150*time.Millisecond, func(t time.Time) tea.Msg {
		return stepTick{}
	})
}

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	changed   = lipgloss.AdaptiveColor{Light: "#FF6B6B", Dark: "#FF6B6B"}

	titleStyle = lipgloss.NewStyle().Foreground(subtle).Padding(0, 1)

	stateStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(highlight).
			Padding(1).
			Width(36)

	regsStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(special).
			Padding(1).
			Width(36)

	worklistStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(special).
			Padding(1).
			Width(36)

	changedStyle = lipgloss.NewStyle().Foreground(changed).Bold(true)

	provenanceStyles = map[regfile.Provenance]lipgloss.Style{
		regfile.Unknown: lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		regfile.Frame:   lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		regfile.Addr:    lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		regfile.Stack:   lipgloss.NewStyle().Foreground(lipgloss.Color("213")),
		regfile.Other:   lipgloss.NewStyle().Foreground(lipgloss.Color("84")),
	}

	provenanceNames = map[regfile.Provenance]string{
		regfile.Unknown: "unk",
		regfile.Frame:   "frm",
		regfile.Addr:    "adr",
		regfile.Stack:   "stk",
		regfile.Other:   "val",
	}
)

// halted classifies why the active path stopped advancing.
type halted int

const (
	haltedNone halted = iota
	haltedReturned
	haltedBranchExit
	haltedError
	haltedDrained
)

// Model is the tracer's tea.Model: it owns one Interp and single-steps
// it, rendering PC, registers with provenance tags, memory-hash
// occupancy and the pending branch work list after every instruction.
type Model struct {
	xlen int
	img  *rvscenario.Image
	seed rvscenario.Seed

	interp   *riscvdecode.Interp
	lastRegs regfile.File
	stepN    int
	halted   halted
	lastErr  error

	paused bool
	width  int
	height int

	showingGoto bool
	gotoInput   textinput.Model
}

func newModel(img *rvscenario.Image, seed rvscenario.Seed, xlen int) (*Model, error) {
	interp, err := buildInterp(img, seed, xlen)
	if err != nil {
		return nil, err
	}
	ti := textinput.New()
	ti.Placeholder = "scenario name, e.g. s4"
	ti.CharLimit = 16
	ti.Width = 20

	return &Model{
		xlen:      xlen,
		img:       img,
		seed:      seed,
		interp:    interp,
		lastRegs:  *interp.Regs,
		paused:    true,
		gotoInput: ti,
	}, nil
}

// buildInterp seeds a fresh Interp directly from concrete register
// values (pc/sp/ra/x8/...), matching the top-frame case: every seeded
// register starts Other-tagged since there is no saved frame context
// behind it to defer a Frame-tagged read to; registers the seed does
// not name stay Unknown.
func buildInterp(img *rvscenario.Image, seed rvscenario.Seed, xlen int) (*riscvdecode.Interp, error) {
	var x xlenval.XLen
	switch xlen {
	case 32:
		x = xlenval.XLen32
	case 64:
		x = xlenval.XLen64
	case 128:
		x = xlenval.XLen128
	default:
		return nil, fmt.Errorf("invalid xlen %d (must be 32, 64 or 128)", xlen)
	}

	var regs regfile.File
	var pc xlenval.Value
	for _, r := range seed.Registers {
		v := xlenval.FromU64(r.Value)
		switch r.Name {
		case "pc":
			pc = v
		case "sp":
			regs.Set(regfile.SP, regfile.Slot{Value: v, Provenance: regfile.Other})
		case "ra":
			regs.Set(regfile.RA, regfile.Slot{Value: v, Provenance: regfile.Other})
		default:
			if r.DwarfID > 0 && r.DwarfID < regfile.Count {
				regs.Set(r.DwarfID, regfile.Slot{Value: v, Provenance: regfile.Other})
			}
		}
	}

	return &riscvdecode.Interp{
		XLen:       x,
		Regs:       &regs,
		Hash:       &memhash.Hash{},
		Mem:        memio.New(img),
		IsTopFrame: seed.TopFrame,
		PC:         pc,
		WorkList:   &riscvdecode.WorkList{},
	}, nil
}

func (m *Model) reset() {
	interp, err := buildInterp(m.img, m.seed, m.xlen)
	if err != nil {
		m.lastErr = err
		return
	}
	m.interp = interp
	m.lastRegs = *interp.Regs
	m.stepN = 0
	m.halted = haltedNone
	m.lastErr = nil
}

func (m *Model) load(name string) {
	img, seed, xlen, err := rvscenario.Build(name)
	if err != nil {
		m.lastErr = err
		return
	}
	m.img, m.seed, m.xlen = img, seed, xlen
	m.reset()
}

// step advances the active path by exactly one instruction, draining
// the branch work list and resuming a fresh path the same way
// riscvdecode.Run does, but one instruction at a time so the tracer
// can show every intermediate state.
func (m *Model) step() {
	if m.halted != haltedNone {
		item, ok := m.interp.WorkList.Pop()
		if !ok {
			return
		}
		m.interp.PC = item.PC
		*m.interp.Regs = item.Regs
		*m.interp.Hash = item.Hash
		m.stepN = 0
		m.halted = haltedNone
		return
	}

	m.lastRegs = *m.interp.Regs
	outcome, err := m.interp.Step()
	m.stepN++
	if err != nil {
		m.halted = haltedError
		m.lastErr = err
		return
	}
	switch outcome {
	case riscvdecode.OutcomeReturn:
		m.halted = haltedReturned
	case riscvdecode.OutcomeBranchExit:
		m.halted = haltedBranchExit
	default:
		if m.stepN >= riscvdecode.InstructionBudget {
			m.halted = haltedDrained
		}
	}
}

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case stepTick:
		if m.paused {
			return m, nil
		}
		m.step()
		return m, doStep()

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		if m.showingGoto {
			switch msg.Type {
			case tea.KeyEnter:
				m.load(strings.TrimSpace(m.gotoInput.Value()))
				m.showingGoto = false
				return m, nil
			case tea.KeyEsc:
				m.showingGoto = false
				return m, nil
			}
			var cmd tea.Cmd
			m.gotoInput, cmd = m.gotoInput.Update(msg)
			return m, cmd
		}

		switch msg.String() {
		case "g":
			m.showingGoto = true
			m.gotoInput.Focus()
			return m, textinput.Blink
		case "q", "ctrl+c":
			return m, tea.Quit
		case "s":
			if m.paused {
				m.step()
			}
		case "p":
			m.paused = !m.paused
			if !m.paused {
				return m, doStep()
			}
		case "r":
			m.reset()
		}
	}
	return m, nil
}

func (m Model) haltedString() string {
	switch m.halted {
	case haltedReturned:
		return "returned"
	case haltedBranchExit:
		return "branch exit (queued)"
	case haltedError:
		return fmt.Sprintf("path error: %v", m.lastErr)
	case haltedDrained:
		return "instruction budget exhausted"
	default:
		return "running"
	}
}

func (m Model) formatState() string {
	return fmt.Sprintf(
		"xlen: %d\nstep: %d\npc:   0x%x\nhash: %d/%d slots\nstatus: %s",
		m.xlen, m.stepN, m.interp.PC.Lo(), m.interp.Hash.Occupancy(), memhash.Size, m.haltedString(),
	)
}

func (m Model) formatReg(id int) string {
	s := m.interp.Regs.Get(id)
	last := m.lastRegs.Get(id)
	style := provenanceStyles[s.Provenance]
	line := fmt.Sprintf("x%-2d %-3s 0x%x", id, provenanceNames[s.Provenance], s.Value.Lo())
	if s.Provenance != last.Provenance || !xlenval.Equal(s.Value, last.Value, xlenval.XLen128) {
		return changedStyle.Render(line)
	}
	return style.Render(line)
}

func (m Model) formatRegs() string {
	var b strings.Builder
	for r := 1; r < regfile.Count; r++ {
		s := m.interp.Regs.Get(r)
		if s.Provenance == regfile.Unknown {
			continue
		}
		b.WriteString(m.formatReg(r))
		b.WriteString("\n")
	}
	if b.Len() == 0 {
		b.WriteString("(no registers known)\n")
	}
	return b.String()
}

func (m Model) formatWorkList() string {
	items := m.interp.WorkList.Items()
	if len(items) == 0 {
		return "(empty)\n"
	}
	var b strings.Builder
	for i, it := range items {
		fmt.Fprintf(&b, "%d: pc=0x%x\n", i, it.PC.Lo())
	}
	return b.String()
}

func (m Model) View() string {
	state := stateStyle.Render(fmt.Sprintf("Interpreter\n\n%s", m.formatState()))
	regs := regsStyle.Render(fmt.Sprintf("Registers (provenance)\n\n%s", m.formatRegs()))
	work := worklistStyle.Render(fmt.Sprintf("Branch work list\n\n%s", m.formatWorkList()))

	right := lipgloss.JoinVertical(lipgloss.Left, state, work)
	content := lipgloss.JoinHorizontal(lipgloss.Top, regs, lipgloss.PlaceHorizontal(3, lipgloss.Left, right))

	var help string
	if !m.paused {
		help = titleStyle.Render("p: pause • q: quit")
	} else {
		help = titleStyle.Render("s: step • p: run • r: reset • g: load scenario • q: quit")
	}

	if m.showingGoto {
		dialog := lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(1).
			Width(30).
			Render("Load scenario:\n\n" + m.gotoInput.View())
		return lipgloss.JoinVertical(lipgloss.Center, content, help, dialog)
	}

	return lipgloss.JoinVertical(lipgloss.Left, content, help)
}
