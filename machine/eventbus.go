// eventbus.go - bounded event queue, ported from bare68k's cpu_add_event/cpu_get_info

package machine

// Event is one observable condition recorded during an execution slice.
type Event struct {
	Kind   EventKind
	Cycles uint32
	Addr   uint32
	Value  uint32
	Flags  uint32
	Data   any
}

// RunInfo is the immutable snapshot the host inspects after a slice.
type RunInfo struct {
	Events      []Event
	NumEvents   int
	LostEvents  int
	DoneCycles  uint32
	TotalCycles uint32
}

// CleanupFunc releases a host payload attached to an Event when it is
// cleared. It is optional; nil means no cleanup is needed.
type CleanupFunc func(data any)

// CyclesFunc reports the driver's current cycle count, relative to the
// active run slice, at the instant an event is enqueued.
type CyclesFunc func() uint32

// EventBus is a fixed-capacity-8 queue of event records, single-writer
// during a run slice, with an overflow counter and a one-shot
// "end the timeslice" latch fired on the first enqueue of a slice.
type EventBus struct {
	events     [MaxEvents]Event
	numEvents  int
	lostEvents int

	cleanup      CleanupFunc
	cyclesSource CyclesFunc

	// endSlice is invoked exactly once per slice, on the first Add.
	endSlice func()
}

// NewEventBus constructs an empty bus. cleanup may be nil.
func NewEventBus(cleanup CleanupFunc) *EventBus {
	return &EventBus{cleanup: cleanup}
}

// SetEndSliceFunc installs the callback fired exactly once, on the first
// event added after the bus was last cleared. Passing nil disables it.
func (b *EventBus) SetEndSliceFunc(f func()) {
	b.endSlice = f
}

// SetCyclesSource installs the callback Add reads to stamp Event.Cycles.
// Passing nil makes every enqueued event stamp Cycles as 0.
func (b *EventBus) SetCyclesSource(f CyclesFunc) {
	b.cyclesSource = f
}

func (b *EventBus) currentCycles() uint32 {
	if b.cyclesSource != nil {
		return b.cyclesSource()
	}
	return 0
}

// Add stores ev into the next free slot, stamping Cycles from the
// installed CyclesFunc (spec.md §3: "the cycle counter at enqueue time,
// relative to the active run slice"). If the bus is full it increments
// LostEvents and returns false without storing.
func (b *EventBus) Add(kind EventKind, addr, value, flags uint32, data any) bool {
	wasEmpty := b.numEvents == 0
	if b.numEvents >= MaxEvents {
		b.lostEvents++
		return false
	}
	b.events[b.numEvents] = Event{
		Kind:   kind,
		Cycles: b.currentCycles(),
		Addr:   addr,
		Value:  value,
		Flags:  flags,
		Data:   data,
	}
	b.numEvents++
	if wasEmpty && b.endSlice != nil {
		b.endSlice()
	}
	return true
}

// NumEvents reports the number of events currently queued.
func (b *EventBus) NumEvents() int { return b.numEvents }

// LostEvents reports the number of events dropped for lack of capacity
// since the last Clear.
func (b *EventBus) LostEvents() int { return b.lostEvents }

// Snapshot returns a copy of the events queued since the last Clear. The
// returned slice is safe for the host to retain past the next Clear.
func (b *EventBus) Snapshot() []Event {
	out := make([]Event, b.numEvents)
	copy(out, b.events[:b.numEvents])
	return out
}

// Clear invokes the cleanup hook on every stored event's Data, then zeroes
// the counts. It does not touch any cycle accounting, which lives on the
// CPU driver.
func (b *EventBus) Clear() {
	if b.cleanup != nil {
		for i := 0; i < b.numEvents; i++ {
			if b.events[i].Data != nil {
				b.cleanup(b.events[i].Data)
			}
		}
	}
	b.numEvents = 0
	b.lostEvents = 0
}
