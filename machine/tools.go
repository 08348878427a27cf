// tools.go - PC trace ring buffer, breakpoints/watchpoints, and timers,
// ported from bare68k's machine_src/glue/tools.c. The C code's generic
// array_t of raw nodes becomes a generic SlotArray here.

package machine

const (
	slotSetup  = 2
	slotEnable = 1
)

// SlotArray is the shared fixed-capacity, caller-addressed allocation
// protocol used by breakpoints, watchpoints, and timers: a double-setup on
// one id fails, and NextFree returns the lowest unset id.
type SlotArray[T any] struct {
	enable []int
	data   []T
	max    int
}

func NewSlotArray[T any](max int) *SlotArray[T] {
	return &SlotArray[T]{enable: make([]int, max), data: make([]T, max), max: max}
}

func (a *SlotArray[T]) Max() int { return a.max }

func (a *SlotArray[T]) bounds(id int) error {
	if id < 0 || id >= a.max {
		return ErrOutOfBounds
	}
	return nil
}

func (a *SlotArray[T]) Setup(id int, value T) error {
	if err := a.bounds(id); err != nil {
		return err
	}
	if a.enable[id]&slotSetup != 0 {
		return ErrAlreadySetup
	}
	a.enable[id] = slotSetup | slotEnable
	a.data[id] = value
	return nil
}

func (a *SlotArray[T]) Free(id int) (T, error) {
	var zero T
	if err := a.bounds(id); err != nil {
		return zero, err
	}
	if a.enable[id]&slotSetup == 0 {
		return zero, ErrNotSetup
	}
	v := a.data[id]
	a.enable[id] = 0
	a.data[id] = zero
	return v, nil
}

func (a *SlotArray[T]) setEnable(id int, on bool) error {
	if err := a.bounds(id); err != nil {
		return err
	}
	if a.enable[id]&slotSetup == 0 {
		return ErrNotSetup
	}
	if on {
		a.enable[id] |= slotEnable
	} else {
		a.enable[id] &^= slotEnable
	}
	return nil
}

func (a *SlotArray[T]) Enable(id int) error  { return a.setEnable(id, true) }
func (a *SlotArray[T]) Disable(id int) error { return a.setEnable(id, false) }

func (a *SlotArray[T]) IsEnabled(id int) bool {
	if a.bounds(id) != nil {
		return false
	}
	return a.enable[id]&(slotSetup|slotEnable) == slotSetup|slotEnable
}

func (a *SlotArray[T]) Get(id int) (T, bool) {
	var zero T
	if a.bounds(id) != nil || a.enable[id]&slotSetup == 0 {
		return zero, false
	}
	return a.data[id], true
}

// Ptr returns a pointer to slot id's value for in-place mutation (used by
// Timers.Tick). id must already be set up.
func (a *SlotArray[T]) Ptr(id int) *T { return &a.data[id] }

func (a *SlotArray[T]) NextFree() int {
	for i := 0; i < a.max; i++ {
		if a.enable[i]&slotSetup == 0 {
			return i
		}
	}
	return -1
}

// ---- PC trace ----

// PCTrace is a fixed-capacity ring buffer of recently-executed addresses.
type PCTrace struct {
	entries []uint32
	offset  int
	num     int
}

// NewPCTrace allocates a ring of the given capacity. Capacity 0 disables
// tracing.
func NewPCTrace(capacity int) *PCTrace {
	return &PCTrace{entries: make([]uint32, capacity)}
}

func (t *PCTrace) Enabled() bool { return len(t.entries) > 0 }

// Update appends pc at the head, overwriting the oldest entry once full.
func (t *PCTrace) Update(pc uint32) {
	if len(t.entries) == 0 {
		return
	}
	t.entries[t.offset] = pc
	t.offset = (t.offset + 1) % len(t.entries)
	if t.num < len(t.entries) {
		t.num++
	}
}

// Snapshot returns a freshly allocated, chronologically ordered (oldest
// first) copy of the current fill.
func (t *PCTrace) Snapshot() []uint32 {
	if len(t.entries) == 0 || t.num == 0 {
		return nil
	}
	out := make([]uint32, t.num)
	pos := (t.offset + len(t.entries) - t.num) % len(t.entries)
	for i := 0; i < t.num; i++ {
		out[i] = t.entries[pos]
		pos = (pos + 1) % len(t.entries)
	}
	return out
}

// ---- breakpoints / watchpoints ----

type pointEntry struct {
	Addr  uint32
	Flags uint32
	Data  any
}

// Points implements the shared breakpoint/watchpoint slot protocol.
type Points struct {
	arr *SlotArray[pointEntry]
}

func NewPoints(max int) *Points { return &Points{arr: NewSlotArray[pointEntry](max)} }

func (p *Points) Setup(id int, addr uint32, flags uint32, data any) error {
	return p.arr.Setup(id, pointEntry{Addr: addr, Flags: flags, Data: data})
}

func (p *Points) Free(id int) (any, error) {
	e, err := p.arr.Free(id)
	return e.Data, err
}

func (p *Points) Enable(id int) error  { return p.arr.Enable(id) }
func (p *Points) Disable(id int) error { return p.arr.Disable(id) }
func (p *Points) NextFree() int        { return p.arr.NextFree() }

// Check scans ids in order and returns the first enabled point whose addr
// matches exactly and whose stored flags intersect probeFlags.
func (p *Points) Check(addr uint32, probeFlags uint32) (id int, data any, hit bool) {
	for i := 0; i < p.arr.Max(); i++ {
		if !p.arr.IsEnabled(i) {
			continue
		}
		e, _ := p.arr.Get(i)
		if e.Addr == addr && e.Flags&probeFlags != 0 {
			return i, e.Data, true
		}
	}
	return -1, nil, false
}

// ---- timers ----

type timerEntry struct {
	Interval uint32
	Elapsed  uint32
	Data     any
}

// Timers implements the cycle-driven timer array.
type Timers struct {
	arr *SlotArray[timerEntry]
	bus *EventBus
}

func NewTimers(max int, bus *EventBus) *Timers {
	return &Timers{arr: NewSlotArray[timerEntry](max), bus: bus}
}

func (t *Timers) Setup(id int, interval uint32, data any) error {
	return t.arr.Setup(id, timerEntry{Interval: interval, Data: data})
}

func (t *Timers) Free(id int) (any, error) {
	e, err := t.arr.Free(id)
	return e.Data, err
}

func (t *Timers) Enable(id int) error  { return t.arr.Enable(id) }
func (t *Timers) Disable(id int) error { return t.arr.Disable(id) }
func (t *Timers) NextFree() int        { return t.arr.NextFree() }

func (t *Timers) Elapsed(id int) uint32 {
	e, _ := t.arr.Get(id)
	return e.Elapsed
}

// Tick adds elapsedCycles to every enabled timer's running total; each time
// a timer's total reaches its interval, it subtracts the interval and
// enqueues a TIMER event carrying the post-subtraction remainder. Multiple
// firings per tick are permitted, in id order then fire order.
func (t *Timers) Tick(pc uint32, elapsedCycles uint32) {
	for id := 0; id < t.arr.Max(); id++ {
		if !t.arr.IsEnabled(id) {
			continue
		}
		e := t.arr.Ptr(id)
		e.Elapsed += elapsedCycles
		for e.Interval > 0 && e.Elapsed >= e.Interval {
			e.Elapsed -= e.Interval
			t.bus.Add(Timer, pc, uint32(id), e.Elapsed, e.Data)
		}
	}
}

// ---- tools subsystem ----

// Tools bundles the PC trace, breakpoints, watchpoints, and timers behind
// the single subsystem named in spec.md §4.E.
type Tools struct {
	Trace       *PCTrace
	Breakpoints *Points
	Watchpoints *Points
	Timers      *Timers
}

// NewTools builds the four tool arrays. traceLen 0 disables PC tracing;
// maxBreakpoints/maxWatchpoints/maxTimers size their respective slot arrays.
func NewTools(traceLen, maxBreakpoints, maxWatchpoints, maxTimers int, bus *EventBus) *Tools {
	return &Tools{
		Trace:       NewPCTrace(traceLen),
		Breakpoints: NewPoints(maxBreakpoints),
		Watchpoints: NewPoints(maxWatchpoints),
		Timers:      NewTimers(maxTimers, bus),
	}
}

// WatchpointProbe adapts Watchpoints.Check to the Memory.WatchpointProbe
// shape, returning the lowest-id enabled watchpoint whose address and
// flags match.
func (t *Tools) WatchpointProbe(addr uint32, access int) (int, any, bool) {
	return t.Watchpoints.Check(addr, uint32(access))
}
