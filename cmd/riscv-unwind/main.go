// Command riscv-unwind loads a raw target memory image plus a JSON
// register seed, runs one stack-crawl, and prints the resulting
// caller frame: materialized register values and, where a value
// couldn't be resolved but its provenance could, the location
// expression a consumer would need to evaluate later.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/newhook/riscv-unwind/rvscenario"
	"github.com/newhook/riscv-unwind/unwind"
)

func main() {
	memFile := flag.String("mem", "", "Path to a raw target memory image")
	regsFile := flag.String("regs", "", "Path to a JSON register seed file")
	xlenFlag := flag.Int("xlen", 64, "Integer register width: 32, 64 or 128")
	baseFlag := flag.Uint64("base", 0, "Load address of the memory image (ignored with -asm)")
	pcFlag := flag.Uint64("pc", 0, "Override/supply the top frame's PC (takes precedence over a \"pc\" entry in -regs)")
	asmFlag := flag.String("asm", "", fmt.Sprintf("Run a built-in synthetic scenario instead of -mem/-regs (one of: %v)", rvscenario.Names()))
	verbose := flag.Bool("v", false, "Enable debug logging")
	flag.Parse()

	log := logrus.New()
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	var (
		img  *rvscenario.Image
		seed rvscenario.Seed
		xlen = *xlenFlag
		err  error
	)

	if *asmFlag != "" {
		img, seed, xlen, err = rvscenario.Build(*asmFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "riscv-unwind: %v\n", err)
			os.Exit(1)
		}
	} else {
		if *memFile == "" || *regsFile == "" {
			fmt.Fprintln(os.Stderr, "riscv-unwind: -mem and -regs are required unless -asm is given")
			flag.Usage()
			os.Exit(1)
		}
		data, rerr := os.ReadFile(*memFile)
		if rerr != nil {
			fmt.Fprintf(os.Stderr, "riscv-unwind: error reading memory image: %v\n", rerr)
			os.Exit(1)
		}
		img = &rvscenario.Image{Base: *baseFlag, Data: data}

		raw, rerr := os.ReadFile(*regsFile)
		if rerr != nil {
			fmt.Fprintf(os.Stderr, "riscv-unwind: error reading register seed: %v\n", rerr)
			os.Exit(1)
		}
		if rerr = json.Unmarshal(raw, &seed); rerr != nil {
			fmt.Fprintf(os.Stderr, "riscv-unwind: error parsing register seed: %v\n", rerr)
			os.Exit(1)
		}
	}

	if *pcFlag != 0 {
		seed.Registers = setPC(seed.Registers, *pcFlag)
	}

	collab := newCLICollab(img, seed, log)

	var frame *unwind.Frame
	switch xlen {
	case 32:
		frame, err = unwind.CrawlStackFrameRISCV32(collab)
	case 64:
		frame, err = unwind.CrawlStackFrameRISCV64(collab)
	case 128:
		frame, err = unwind.CrawlStackFrameRISCV128(collab)
	default:
		fmt.Fprintf(os.Stderr, "riscv-unwind: invalid -xlen %d (must be 32, 64 or 128)\n", xlen)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "riscv-unwind: crawl failed: %v\n", err)
		os.Exit(1)
	}
	if frame == nil {
		fmt.Println("no caller frame (SP reads as zero)")
		return
	}

	printFrame(frame)
}

// setPC overrides the "pc" entry of a register seed, or appends one if
// the seed didn't supply its own.
func setPC(regs []rvscenario.RegisterValue, pc uint64) []rvscenario.RegisterValue {
	for i := range regs {
		if regs[i].Name == "pc" {
			regs[i].Value = pc
			return regs
		}
	}
	return append(regs, rvscenario.RegisterValue{Name: "pc", DwarfID: -1, Size: 8, Value: pc})
}

func printFrame(f *unwind.Frame) {
	if f.PC.Materialized {
		fmt.Printf("caller pc  = 0x%x\n", f.PC.Value.Lo())
	} else {
		fmt.Println("caller pc  = <unresolved>")
	}
	if f.HasFramePointer {
		fmt.Printf("caller sp  = 0x%x\n", f.FramePointer)
	} else {
		fmt.Println("caller sp  = <unresolved>")
	}

	if len(f.Registers) == 0 {
		return
	}
	fmt.Println("caller registers:")
	for id := 0; id < 64; id++ {
		r, ok := f.Registers[id]
		if !ok {
			continue
		}
		if r.Materialized {
			fmt.Printf("  x%-2d = 0x%x\n", id, r.Value.Lo())
		} else if r.Expr != nil {
			fmt.Printf("  x%-2d = %s\n", id, r.Expr.String())
		}
	}
}
