// main.go - m68kmon entrypoint: wires interp.CPU into a machine.Machine and
// launches the interactive monitor TUI over it, loading a small built-in
// demo ROM instead of any file loader (spec.md §1(c) excludes persistent
// image formats).

package main

import (
	"fmt"
	"log"
	"os"

	"golang.org/x/term"

	"github.com/m68kcore/machine/interp"
	"github.com/m68kcore/machine/machine"
	"github.com/m68kcore/machine/monitor"
)

// demoROM is a tiny hand-assembled program exercising the reference core's
// supported opcode subset: load D0, store a byte through A0, loop forever.
//
//	0000: 303c 00ff   MOVE.W #$00ff,D0
//	0004: 1080        MOVE.B D0,(A0)
//	0006: 6000 fff8   BRA.W  $0000
var demoROM = []byte{
	0x30, 0x3c, 0x00, 0xff,
	0x10, 0x80,
	0x60, 0x00, 0xff, 0xf8,
}

func main() {
	w, h, err := term.GetSize(int(os.Stdin.Fd()))
	if err != nil {
		w, h = 80, 24
	}
	log.Printf("m68kmon: terminal %dx%d", w, h)

	core := interp.New(nil)

	m, err := machine.New(core, machine.WithTraceLength(32))
	if err != nil {
		log.Fatalf("m68kmon: machine.New: %v", err)
	}
	core.SetMemory(m.Memory)
	core.SetHooks(m.CPU)

	if _, err := m.Memory.AddMemory(0, 1, machine.MemFlagRead|machine.MemFlagWrite); err != nil {
		log.Fatalf("m68kmon: AddMemory: %v", err)
	}
	for i, b := range demoROM {
		m.Memory.Write8(uint32(i), b)
	}
	core.AddrRegs[0] = 0x100

	if err := monitor.Run(m); err != nil {
		fmt.Fprintln(os.Stderr, "m68kmon:", err)
		os.Exit(1)
	}
}
