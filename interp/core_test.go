package interp

import (
	"testing"

	"github.com/m68kcore/machine/machine"
)

func newTestCore(t *testing.T) (*CPU, *machine.Memory, *machine.CPUDriver) {
	t.Helper()
	bus := machine.NewEventBus(nil)
	mem := machine.NewMemory(4, bus)
	if _, err := mem.AddMemory(0, 1, machine.MemFlagRead|machine.MemFlagWrite); err != nil {
		t.Fatalf("AddMemory: %v", err)
	}
	traps := machine.NewTraps(mem, bus)
	tools := machine.NewTools(8, 4, 4, 4, bus)
	core := New(mem)
	driver := machine.NewCPUDriver(core, mem, bus, traps, tools)
	core.SetHooks(driver)
	driver.Init()
	return core, mem, driver
}

func TestCoreMoveImmediateToDn(t *testing.T) {
	core, mem, driver := newTestCore(t)
	// MOVE.W #$1234,D0 at address 0
	mem.Write16(0, 0x303c)
	mem.Write16(2, 0x1234)
	driver.Execute(8)
	if core.DataRegs[0] != 0x1234 {
		t.Fatalf("D0 = %#x, want 0x1234", core.DataRegs[0])
	}
}

func TestCoreMoveByteDnToIndirect(t *testing.T) {
	core, mem, driver := newTestCore(t)
	core.DataRegs[1] = 0xff
	core.AddrRegs[0] = 0x100
	// MOVE.B D1,(A0): dest reg=0 in bits 11-9, dest (An) mode=010 in bits 8-6,
	// src Dn mode=000 reg=1 in bits 5-0 -> 0x1081
	opcode := uint16(0x1000 | (0 << 9) | (2 << 6) | 1)
	mem.Write16(0, opcode)
	driver.Execute(8)
	if got := mem.Read8(0x100); got != 0xff {
		t.Fatalf("(A0) = %#x, want 0xff", got)
	}
}

func TestCoreNopAdvancesPC(t *testing.T) {
	core, mem, driver := newTestCore(t)
	mem.Write16(0, 0x4e71) // NOP
	driver.Execute(4)
	if core.PC != 2 {
		t.Fatalf("PC = %#x, want 2", core.PC)
	}
}

func TestCoreBraW(t *testing.T) {
	core, mem, driver := newTestCore(t)
	mem.Write16(0, 0x6000) // BRA.W
	mem.Write16(2, 0x0010) // displacement +16 from the extension word's own address
	driver.Execute(4)
	if core.PC != 2+0x10 {
		t.Fatalf("PC = %#x, want %#x", core.PC, 2+0x10)
	}
}
