package machine

import "testing"

// fakeInterp is a minimal Interpreter stand-in: it "executes" one
// fixed-cycle instruction at a time, advancing PC by 2 and calling back
// into Hooks exactly as a real 68k core would at each instruction
// boundary. It never raises an A-line trap or interrupt, nor reports a bus
// function code, on its own; tests that need those call CPUDriver's Hooks
// methods directly.
type fakeInterp struct {
	regs        Registers
	hooks       Hooks
	cycleCost   uint32
	totalCycles uint32
}

func newFakeInterp(cycleCost uint32) *fakeInterp {
	return &fakeInterp{cycleCost: cycleCost}
}

func (f *fakeInterp) Reset() {
	f.regs = Registers{SR: 0x2700}
	f.totalCycles = 0
}

func (f *fakeInterp) GetRegisters() Registers  { return f.regs }
func (f *fakeInterp) SetRegisters(r Registers) { f.regs = r }
func (f *fakeInterp) SetIRQ(level int)         {}

func (f *fakeInterp) Run(cycles uint32) uint32 {
	var used uint32
	for used+f.cycleCost <= cycles {
		f.regs.PC += 2
		used += f.cycleCost
		f.totalCycles += f.cycleCost
		if f.hooks != nil {
			f.hooks.OnInstruction(f.regs.PC, f.totalCycles)
			if f.hooks.ShouldStop() {
				break
			}
		}
	}
	return used
}

func newTestDriver(t *testing.T, cycleCost uint32) (*CPUDriver, *fakeInterp, *EventBus, *Tools) {
	t.Helper()
	interp := newFakeInterp(cycleCost)
	bus := NewEventBus(nil)
	mem := NewMemory(2, bus)
	traps := NewTraps(mem, bus)
	tools := NewTools(8, 4, 4, 4, bus)
	driver := NewCPUDriver(interp, mem, bus, traps, tools)
	interp.hooks = driver
	driver.Init()
	return driver, interp, bus, tools
}

func TestCPUExecuteStopsAtFirstEvent(t *testing.T) {
	driver, _, bus, tools := newTestDriver(t, 4)
	driver.OnFunctionCode(6) // raw FC 6 -> FCSuperProg
	tools.Breakpoints.Setup(0, 0x400, FCUserData|FCUserProg|FCSuperData|FCSuperProg, "hit")
	// PC starts at 0 and advances by 2 per instruction; it reaches 0x400
	// after 512 instructions, well inside a 100000-cycle budget.
	n := driver.Execute(0)
	if n == 0 {
		t.Fatalf("Execute reported no events, want a breakpoint hit")
	}
	ev := bus.Snapshot()[0]
	if ev.Kind != Breakpoint || ev.Addr != 0x400 {
		t.Fatalf("event = %+v, want BREAKPOINT at 0x400", ev)
	}
}

func TestCPUBreakpointFunctionCodeMatch(t *testing.T) {
	driver, _, bus, tools := newTestDriver(t, 4)
	driver.OnFunctionCode(6) // raw FC 6 -> FCSuperProg
	tools.Breakpoints.Setup(0, 0x400, FCSuperProg, "super-only")
	driver.Execute(0)
	if bus.NumEvents() != 1 {
		t.Fatalf("NumEvents = %d, want 1", bus.NumEvents())
	}
	ev := bus.Snapshot()[0]
	if ev.Flags != uint32(FCSuperProg) {
		t.Fatalf("event flags = %#x, want FCSuperProg", ev.Flags)
	}
}

func TestCPUBreakpointFunctionCodeMismatchDoesNotFire(t *testing.T) {
	driver, _, bus, tools := newTestDriver(t, 4)
	driver.OnFunctionCode(1) // FCUserData
	tools.Breakpoints.Setup(0, 0x400, FCSuperProg, "super-only")
	// Run a single short slice that cannot reach 0x400's 512 instructions.
	driver.Execute(8)
	if bus.NumEvents() != 0 {
		t.Fatalf("NumEvents = %d, want 0 (FC class mismatch, and budget too small anyway)", bus.NumEvents())
	}
}

func TestCPUExecuteToEventAccumulatesAcrossChunks(t *testing.T) {
	driver, _, _, tools := newTestDriver(t, 4)
	driver.OnFunctionCode(6) // raw FC 6 -> FCSuperProg
	tools.Breakpoints.Setup(0, 0x400, FCUserData|FCUserProg|FCSuperData|FCSuperProg, nil)
	n := driver.ExecuteToEvent(16) // small chunks, forces several Run calls
	if n != 1 {
		t.Fatalf("NumEvents = %d, want 1", n)
	}
	if driver.DoneCycles() == 0 {
		t.Fatalf("DoneCycles = 0, want > 0")
	}
}

func TestCPUTotalCyclesRunsAcrossSlicesUntilReset(t *testing.T) {
	driver, _, _, _ := newTestDriver(t, 4)
	driver.Execute(40)
	first := driver.TotalCycles()
	driver.Execute(40)
	second := driver.TotalCycles()
	if second != first+40 {
		t.Fatalf("TotalCycles after two slices = %d, want %d", second, first+40)
	}
	driver.Reset()
	if driver.TotalCycles() != 0 {
		t.Fatalf("TotalCycles after Reset = %d, want 0", driver.TotalCycles())
	}
}

func TestCPUSetIRQSuppressesNextAutoClear(t *testing.T) {
	driver, _, bus, tools := newTestDriver(t, 4)
	driver.OnFunctionCode(6) // raw FC 6 -> FCSuperProg
	tools.Breakpoints.Setup(0, 0x400, FCUserData|FCUserProg|FCSuperData|FCSuperProg, nil)
	driver.Execute(0) // produces one BREAKPOINT event
	if bus.NumEvents() != 1 {
		t.Fatalf("setup: NumEvents = %d, want 1", bus.NumEvents())
	}
	driver.SetIRQ(2) // clears events now, but suppresses the *next* slice's clear
	if bus.NumEvents() != 0 {
		t.Fatalf("after SetIRQ: NumEvents = %d, want 0", bus.NumEvents())
	}
	driver.OnReset(0x10) // directly simulate an event appearing before the next Execute
	driver.Execute(8)    // must not auto-clear the event raised above
	if bus.NumEvents() != 1 {
		t.Fatalf("event lost despite SetIRQ's dontClear suppression: NumEvents = %d", bus.NumEvents())
	}
}

func TestCPUInstrHookOutcomes(t *testing.T) {
	driver, _, bus, _ := newTestDriver(t, 4)
	calls := 0
	driver.SetInstrHook(func(pc uint32) (any, Outcome) {
		calls++
		if calls == 1 {
			return "ok", OutcomeEvent
		}
		return nil, OutcomeNoEvent
	})
	driver.Execute(8) // budget for two instructions; the first hook's event ends the slice after one
	if bus.NumEvents() != 1 {
		t.Fatalf("NumEvents = %d, want 1 (only the first call reports EVENT)", bus.NumEvents())
	}
	if bus.Snapshot()[0].Kind != InstrHook {
		t.Fatalf("event kind = %v, want INSTR_HOOK", bus.Snapshot()[0].Kind)
	}
}

func TestSRStringTemplate(t *testing.T) {
	// Supervisor bit (position 2, 0x2000) and Zero bit (position 13, 0x4) set.
	sr := uint16(0x2000 | 0x0004)
	got := SRString(sr)
	want := "--S----------Z--"
	if len(want) != len(srFlagTemplate) {
		t.Fatalf("test template length mismatch: %d vs %d", len(want), len(srFlagTemplate))
	}
	if got != want {
		t.Fatalf("SRString(%#04x) = %q, want %q", sr, got, want)
	}
}

func TestRegisterGetSetByName(t *testing.T) {
	driver, _, _, _ := newTestDriver(t, 4)
	if !driver.SetRegister("D3", 0xabcd) {
		t.Fatalf("SetRegister(D3) reported unknown register")
	}
	v, ok := driver.GetRegister("D3")
	if !ok || v != 0xabcd {
		t.Fatalf("GetRegister(D3) = (%#x, %v), want (0xabcd, true)", v, ok)
	}
	if _, ok := driver.GetRegister("D8"); ok {
		t.Fatalf("GetRegister(D8) should be unknown")
	}
}
