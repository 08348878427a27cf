// traps.go - 4096-slot A-line trap table, ported from bare68k's
// machine_src/glue/traps.c.

package machine

// AlineOutcome tells the interpreter how to continue after an A-line fetch.
type AlineOutcome int

const (
	AlineExcept AlineOutcome = iota // raise the standard A-line exception
	AlineNone                       // continue past the opcode
	AlineRTS                        // synthesize a return-from-subroutine
)

type trapSlot struct {
	data  any
	flags int
	prev  int
	next  int
}

// Traps is the 4096-slot A-line trap table (spec.md §4.D).
type Traps struct {
	slots        [NumTraps]trapSlot
	firstFree    int
	numFree      int
	globalEnable bool

	mem *Memory
	bus *EventBus
}

// NewTraps builds the free list over all slots. It installs no hook itself;
// the CPU driver's OnAline calls Dispatch. mem is consulted for the TRAPS
// page flag on dispatch.
func NewTraps(mem *Memory, bus *EventBus) *Traps {
	t := &Traps{mem: mem, bus: bus, globalEnable: true}
	for i := 0; i < NumTraps; i++ {
		t.slots[i] = trapSlot{prev: i - 1, next: i + 1}
	}
	t.slots[0].prev = -1
	t.slots[NumTraps-1].next = -1
	t.firstFree = 0
	t.numFree = NumTraps
	return t
}

func (t *Traps) unlinkFree(id int) {
	s := &t.slots[id]
	if s.prev != -1 {
		t.slots[s.prev].next = s.next
	} else {
		t.firstFree = s.next
	}
	if s.next != -1 {
		t.slots[s.next].prev = s.prev
	}
	t.numFree--
}

func (t *Traps) pushFree(id int) {
	s := &t.slots[id]
	s.prev = -1
	s.next = t.firstFree
	if t.firstFree != -1 {
		t.slots[t.firstFree].prev = id
	}
	t.firstFree = id
	t.numFree++
}

// Setup allocates the first free slot, returning its opcode form
// (0xA000|id), or TrapInvalid if none is free.
func (t *Traps) Setup(flags int, data any) int {
	if t.firstFree == -1 {
		return TrapInvalid
	}
	return t.SetupAbs(t.firstFree, flags, data)
}

// SetupAbs allocates a specific id, unlinking it from the free list by its
// own neighbours (hence the list must be doubly linked).
func (t *Traps) SetupAbs(id int, flags int, data any) int {
	id &= TrapIDMask
	if t.slots[id].flags != 0 {
		return TrapInvalid
	}
	t.unlinkFree(id)
	t.slots[id] = trapSlot{data: data, flags: flags | TrapSetup | TrapEnable}
	return TrapOpcodeBase | id
}

// Free releases the slot addressed by opcode, returning its data, or nil if
// it was not set up.
func (t *Traps) Free(opcode int) any {
	id := opcode & TrapIDMask
	if t.slots[id].flags == 0 {
		return nil
	}
	data := t.slots[id].data
	t.slots[id] = trapSlot{}
	t.pushFree(id)
	return data
}

func (t *Traps) setEnable(opcode int, enable bool) {
	id := opcode & TrapIDMask
	if t.slots[id].flags == 0 {
		return
	}
	if enable {
		t.slots[id].flags |= TrapEnable
	} else {
		t.slots[id].flags &^= TrapEnable
	}
}

func (t *Traps) Enable(opcode int)  { t.setEnable(opcode, true) }
func (t *Traps) Disable(opcode int) { t.setEnable(opcode, false) }

func (t *Traps) GlobalEnable()  { t.globalEnable = true }
func (t *Traps) GlobalDisable() { t.globalEnable = false }

func (t *Traps) NumFree() int { return t.numFree }

// Dispatch is the A-line hook: the interpreter calls it with the opcode
// fetched and the PC it was fetched from.
func (t *Traps) Dispatch(opcode int, pc uint32) AlineOutcome {
	if !t.globalEnable {
		return AlineExcept
	}
	if t.mem.GetMemoryFlags(pc)&MemFlagTraps == 0 {
		return AlineExcept
	}
	id := opcode & TrapIDMask
	slot := &t.slots[id]
	if slot.flags&TrapEnable == 0 {
		return AlineExcept
	}
	flags := slot.flags
	data := slot.data
	if flags&TrapOneShot != 0 {
		t.Free(opcode)
	}
	t.bus.Add(AlineTrap, pc, uint32(opcode), uint32(flags), data)
	if flags&TrapAutoRTS != 0 {
		return AlineRTS
	}
	return AlineNone
}
