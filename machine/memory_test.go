package machine

import "testing"

func TestMemoryRAMRoundTripBigEndian(t *testing.T) {
	bus := NewEventBus(nil)
	mem := NewMemory(4, bus)
	if _, err := mem.AddMemory(0, 1, MemFlagRead|MemFlagWrite); err != nil {
		t.Fatalf("AddMemory: %v", err)
	}

	mem.Write32(0x100, 0x01020304)
	if got := mem.Read32(0x100); got != 0x01020304 {
		t.Fatalf("Read32 = %#x, want %#x", got, 0x01020304)
	}
	if got := mem.Read8(0x100); got != 0x01 {
		t.Fatalf("Read8 at base = %#x, want 0x01 (big-endian)", got)
	}
	if got := mem.Read16(0x102); got != 0x0304 {
		t.Fatalf("Read16 at +2 = %#x, want 0x0304", got)
	}
	if bus.NumEvents() != 0 {
		t.Fatalf("unexpected events on a clean RAM round trip: %d", bus.NumEvents())
	}
}

func TestMemoryBoundsEventOnOutOfRange(t *testing.T) {
	bus := NewEventBus(nil)
	mem := NewMemory(1, bus) // pages [0,1) => addresses [0, 0x10000)
	_ = mem.Read32(0x20000)
	if bus.NumEvents() != 1 {
		t.Fatalf("NumEvents = %d, want 1", bus.NumEvents())
	}
	ev := bus.Snapshot()[0]
	if ev.Kind != MemBounds {
		t.Fatalf("event kind = %v, want MEM_BOUNDS", ev.Kind)
	}
}

func TestMemoryEmptyRegion(t *testing.T) {
	bus := NewEventBus(nil)
	mem := NewMemory(2, bus)
	if err := mem.AddEmpty(0, 1, MemFlagRead|MemFlagWrite, 0xdeadbeef); err != nil {
		t.Fatalf("AddEmpty: %v", err)
	}
	if got := mem.Read32(0x10); got != 0xdeadbeef {
		t.Fatalf("Read32 = %#x, want 0xdeadbeef", got)
	}
	mem.Write32(0x10, 0x11111111) // discarded, no panic, no event
	if got := mem.Read32(0x10); got != 0xdeadbeef {
		t.Fatalf("Read32 after write = %#x, want unchanged 0xdeadbeef", got)
	}
	if bus.NumEvents() != 0 {
		t.Fatalf("unexpected events against an empty region: %d", bus.NumEvents())
	}
}

func TestMemoryMirrorForwardsUnchangedAddr(t *testing.T) {
	bus := NewEventBus(nil)
	mem := NewMemory(4, bus)
	if _, err := mem.AddMemory(0, 1, MemFlagRead|MemFlagWrite); err != nil {
		t.Fatalf("AddMemory: %v", err)
	}
	if err := mem.AddMirror(2, 1, MemFlagRead|MemFlagWrite, 0); err != nil {
		t.Fatalf("AddMirror: %v", err)
	}
	mem.Write32(0x20030, 0xcafef00d) // page 2, low-16 offset 0x30
	if got := mem.Read32(0x0030); got != 0xcafef00d {
		t.Fatalf("base page after mirror write = %#x, want 0xcafef00d", got)
	}
	if got := mem.Read32(0x20030); got != 0xcafef00d {
		t.Fatalf("mirror page read = %#x, want 0xcafef00d", got)
	}
}

func TestMemorySelfMirrorRejected(t *testing.T) {
	bus := NewEventBus(nil)
	mem := NewMemory(2, bus)
	if err := mem.AddMirror(0, 1, MemFlagRead, 0); err != ErrSelfMirror {
		t.Fatalf("AddMirror self-mirror err = %v, want ErrSelfMirror", err)
	}
}

func TestMemorySpecialOverlay(t *testing.T) {
	bus := NewEventBus(nil)
	mem := NewMemory(1, bus)
	var lastWrite uint32
	_, err := mem.AddSpecial(0, 1,
		func(access int, addr uint32, data any) (uint32, any, Outcome) {
			return 0x42, nil, OutcomeEvent
		},
		nil,
		func(access int, addr uint32, value uint32, data any) (any, Outcome) {
			lastWrite = value
			return nil, OutcomeEvent
		},
		nil,
	)
	if err != nil {
		t.Fatalf("AddSpecial: %v", err)
	}
	if got := mem.Read8(0); got != 0x42 {
		t.Fatalf("Read8 = %#x, want 0x42", got)
	}
	mem.Write8(0, 0x7) // a CPU write calls only the special write callback
	if lastWrite != 0x7 {
		t.Fatalf("lastWrite = %#x, want 0x7", lastWrite)
	}
	// one MemSpecial event for the read, one for the write
	if bus.NumEvents() != 2 {
		t.Fatalf("NumEvents = %d, want 2", bus.NumEvents())
	}
}

func TestMemoryTypedAPIBypassesFlags(t *testing.T) {
	bus := NewEventBus(nil)
	mem := NewMemory(1, bus)
	// A region with WRITE disabled at the flag level still accepts W32/R32
	// since the typed API talks to the underlying buffer directly.
	if _, err := mem.AddMemory(0, 1, MemFlagRead); err != nil {
		t.Fatalf("AddMemory: %v", err)
	}
	if err := mem.W32(0x10, 0x99); err != nil {
		t.Fatalf("W32: %v", err)
	}
	v, err := mem.R32(0x10)
	if err != nil || v != 0x99 {
		t.Fatalf("R32 = (%#x, %v), want (0x99, nil)", v, err)
	}
}

func TestMemoryBCPLPointerTraceSubtype(t *testing.T) {
	bus := NewEventBus(nil)
	mem := NewMemory(1, bus)
	if _, err := mem.AddMemory(0, 1, MemFlagRead|MemFlagWrite); err != nil {
		t.Fatalf("AddMemory: %v", err)
	}
	var kinds []int
	mem.SetAPITraceFunc(func(kind int, addr uint32, extra uint32) {
		kinds = append(kinds, kind)
	})

	if err := mem.WB32(0x10, 0x40); err != nil {
		t.Fatalf("WB32: %v", err)
	}
	v, err := mem.RB32(0x10)
	if err != nil || v != 0x40 {
		t.Fatalf("RB32 = (%#x, %v), want (0x40, nil)", v, err)
	}

	if len(kinds) != 2 || kinds[0] != APIAccessWB32 || kinds[1] != APIAccessRB32 {
		t.Fatalf("trace kinds = %v, want [%#x %#x]", kinds, APIAccessWB32, APIAccessRB32)
	}
}

func TestMemoryBStringRoundTrip(t *testing.T) {
	bus := NewEventBus(nil)
	mem := NewMemory(1, bus)
	if _, err := mem.AddMemory(0, 1, MemFlagRead|MemFlagWrite); err != nil {
		t.Fatalf("AddMemory: %v", err)
	}
	if err := mem.WBString(0x10, "hi"); err != nil {
		t.Fatalf("WBString: %v", err)
	}
	s, err := mem.RBString(0x10)
	if err != nil || s != "hi" {
		t.Fatalf("RBString = (%q, %v), want (hi, nil)", s, err)
	}
}
