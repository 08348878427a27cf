package machine

import "testing"

func newTestTrapsWithFlaggedPage(t *testing.T) (*Traps, *Memory, *EventBus) {
	t.Helper()
	bus := NewEventBus(nil)
	mem := NewMemory(2, bus)
	if _, err := mem.AddMemory(0, 1, MemFlagRead|MemFlagWrite|MemFlagTraps); err != nil {
		t.Fatalf("AddMemory: %v", err)
	}
	return NewTraps(mem, bus), mem, bus
}

func TestTrapOneShotAutoRTSDispatch(t *testing.T) {
	traps, _, bus := newTestTrapsWithFlaggedPage(t)
	opcode := traps.Setup(TrapOneShot|TrapAutoRTS, "payload")
	if opcode == TrapInvalid {
		t.Fatalf("Setup returned TrapInvalid")
	}
	if opcode&0xf000 != TrapOpcodeBase {
		t.Fatalf("opcode %#x not in A-line range", opcode)
	}

	outcome := traps.Dispatch(opcode, 0x400)
	if outcome != AlineRTS {
		t.Fatalf("Dispatch outcome = %v, want AlineRTS", outcome)
	}
	if bus.NumEvents() != 1 {
		t.Fatalf("NumEvents = %d, want 1", bus.NumEvents())
	}
	ev := bus.Snapshot()[0]
	if ev.Kind != AlineTrap || ev.Addr != 0x400 {
		t.Fatalf("event = %+v, want ALINE_TRAP at 0x400", ev)
	}

	// one-shot: the slot must now be free
	if got := traps.Dispatch(opcode, 0x400); got != AlineExcept {
		t.Fatalf("second dispatch of a freed one-shot trap = %v, want AlineExcept", got)
	}
}

func TestTrapRequiresTrapsPageFlag(t *testing.T) {
	bus := NewEventBus(nil)
	mem := NewMemory(2, bus)
	if _, err := mem.AddMemory(0, 1, MemFlagRead|MemFlagWrite); err != nil { // no TRAPS flag
		t.Fatalf("AddMemory: %v", err)
	}
	traps := NewTraps(mem, bus)
	opcode := traps.Setup(TrapDefault, nil)
	if got := traps.Dispatch(opcode, 0x400); got != AlineExcept {
		t.Fatalf("Dispatch on non-TRAPS page = %v, want AlineExcept", got)
	}
}

func TestTrapDisableSuppressesDispatch(t *testing.T) {
	traps, _, _ := newTestTrapsWithFlaggedPage(t)
	opcode := traps.Setup(TrapDefault, nil)
	traps.Disable(opcode)
	if got := traps.Dispatch(opcode, 0x400); got != AlineExcept {
		t.Fatalf("Dispatch on disabled trap = %v, want AlineExcept", got)
	}
}

func TestTrapGlobalDisable(t *testing.T) {
	traps, _, _ := newTestTrapsWithFlaggedPage(t)
	opcode := traps.Setup(TrapDefault, nil)
	traps.GlobalDisable()
	if got := traps.Dispatch(opcode, 0x400); got != AlineExcept {
		t.Fatalf("Dispatch under GlobalDisable = %v, want AlineExcept", got)
	}
}

func TestTrapSetupAbsRejectsDoubleSetup(t *testing.T) {
	traps, _, _ := newTestTrapsWithFlaggedPage(t)
	if got := traps.SetupAbs(5, TrapDefault, nil); got == TrapInvalid {
		t.Fatalf("first SetupAbs failed")
	}
	if got := traps.SetupAbs(5, TrapDefault, nil); got != TrapInvalid {
		t.Fatalf("second SetupAbs on same id = %#x, want TrapInvalid", got)
	}
}

func TestTrapNumFreeTracksAllocation(t *testing.T) {
	traps, _, _ := newTestTrapsWithFlaggedPage(t)
	before := traps.NumFree()
	opcode := traps.Setup(TrapDefault, nil)
	if traps.NumFree() != before-1 {
		t.Fatalf("NumFree after Setup = %d, want %d", traps.NumFree(), before-1)
	}
	traps.Free(opcode)
	if traps.NumFree() != before {
		t.Fatalf("NumFree after Free = %d, want %d", traps.NumFree(), before)
	}
}
