// Command riscv-unwind-trace is an interactive debugger for the
// unwinder itself: it single-steps riscvdecode's interpreter over a
// loaded memory image and renders the interpreter's own state — PC,
// registers with their provenance tags, memory-hash occupancy and the
// pending branch work list — one instruction at a time.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/newhook/riscv-unwind/rvscenario"
)

func main() {
	memFile := flag.String("mem", "", "Path to a raw target memory image")
	regsFile := flag.String("regs", "", "Path to a JSON register seed file")
	xlenFlag := flag.Int("xlen", 64, "Integer register width: 32, 64 or 128")
	baseFlag := flag.Uint64("base", 0, "Load address of the memory image (ignored with -asm)")
	asmFlag := flag.String("asm", "", fmt.Sprintf("Load a built-in synthetic scenario instead of -mem/-regs (one of: %v)", rvscenario.Names()))
	flag.Parse()

	var (
		img  *rvscenario.Image
		seed rvscenario.Seed
		xlen = *xlenFlag
		err  error
	)

	if *asmFlag != "" {
		img, seed, xlen, err = rvscenario.Build(*asmFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "riscv-unwind-trace: %v\n", err)
			os.Exit(1)
		}
	} else {
		if *memFile == "" || *regsFile == "" {
			fmt.Fprintln(os.Stderr, "riscv-unwind-trace: -mem and -regs are required unless -asm is given")
			flag.Usage()
			os.Exit(1)
		}
		data, rerr := os.ReadFile(*memFile)
		if rerr != nil {
			fmt.Fprintf(os.Stderr, "riscv-unwind-trace: error reading memory image: %v\n", rerr)
			os.Exit(1)
		}
		img = &rvscenario.Image{Base: *baseFlag, Data: data}

		raw, rerr := os.ReadFile(*regsFile)
		if rerr != nil {
			fmt.Fprintf(os.Stderr, "riscv-unwind-trace: error reading register seed: %v\n", rerr)
			os.Exit(1)
		}
		if rerr = json.Unmarshal(raw, &seed); rerr != nil {
			fmt.Fprintf(os.Stderr, "riscv-unwind-trace: error parsing register seed: %v\n", rerr)
			os.Exit(1)
		}
	}

	m, err := newModel(img, seed, xlen)
	if err != nil {
		fmt.Fprintf(os.Stderr, "riscv-unwind-trace: %v\n", err)
		os.Exit(1)
	}

	p := tea.NewProgram(m)
	if err := p.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "riscv-unwind-trace: %v\n", err)
		os.Exit(1)
	}
}
