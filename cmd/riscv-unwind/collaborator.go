package main

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/newhook/riscv-unwind/memio"
	"github.com/newhook/riscv-unwind/rvscenario"
	"github.com/newhook/riscv-unwind/unwind"
)

// cliCollab implements unwind.Collaborator over a loaded memory image
// and a JSON-seeded register catalog — the CLI's analogue of a live
// debugger's frame/process handle.
type cliCollab struct {
	mem      *rvscenario.Image
	regs     []rvscenario.RegisterValue
	defs     []*unwind.RegisterDefinition
	topFrame bool
	log      logrus.FieldLogger
}

func newCLICollab(mem *rvscenario.Image, seed rvscenario.Seed, log logrus.FieldLogger) *cliCollab {
	c := &cliCollab{mem: mem, regs: seed.Registers, topFrame: seed.TopFrame, log: log}
	for _, r := range seed.Registers {
		c.defs = append(c.defs, &unwind.RegisterDefinition{
			Name: r.Name, DwarfID: r.DwarfID, Size: r.Size, BigEndian: r.BigEndian,
		})
	}
	return c
}

func (c *cliCollab) Registers() []*unwind.RegisterDefinition { return c.defs }
func (c *cliCollab) IsTopFrame() bool                        { return c.topFrame }
func (c *cliCollab) Logger() logrus.FieldLogger              { return c.log }
func (c *cliCollab) Memory() memio.Collaborator              { return c.mem }

func (c *cliCollab) ReadRegisterBytes(def *unwind.RegisterDefinition, buf []byte) error {
	for _, r := range c.regs {
		if r.Name != def.Name {
			continue
		}
		for i := 0; i < def.Size; i++ {
			shift := uint(i * 8)
			if def.BigEndian {
				shift = uint((def.Size - 1 - i) * 8)
			}
			buf[i] = byte(r.Value >> shift)
		}
		return nil
	}
	return fmt.Errorf("no seeded value for register %q", def.Name)
}
