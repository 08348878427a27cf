// machine.go - wires the Event Bus, Memory, Label Index, Traps, Tools, and
// CPU Driver into the single handle a host program constructs and drives,
// per spec.md §3's lifecycle note: "Memory and Label Index created once
// per machine and freed together; trap table and tools initialized at
// machine init and reset on reset only if the host requests it."

package machine

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Config configures a Machine at construction. NumPages sizes both the
// memory map and the label index; the Tools-related fields size the PC
// trace ring and the breakpoint/watchpoint/timer slot arrays.
type Config struct {
	NumPages       int
	TraceLength    int
	MaxBreakpoints int
	MaxWatchpoints int
	MaxTimers      int
	LabelCleanup   LabelCleanupFunc
	EventCleanup   CleanupFunc
}

// Option mutates a Config; New applies functional options over sensible
// defaults, matching the constructor style used across this package's
// sibling packages.
type Option func(*Config)

func WithLabelCleanup(f LabelCleanupFunc) Option { return func(c *Config) { c.LabelCleanup = f } }
func WithEventCleanup(f CleanupFunc) Option       { return func(c *Config) { c.EventCleanup = f } }
func WithTraceLength(n int) Option                { return func(c *Config) { c.TraceLength = n } }
func WithMaxBreakpoints(n int) Option             { return func(c *Config) { c.MaxBreakpoints = n } }
func WithMaxWatchpoints(n int) Option             { return func(c *Config) { c.MaxWatchpoints = n } }
func WithMaxTimers(n int) Option                  { return func(c *Config) { c.MaxTimers = n } }

func defaultConfig(numPages int) Config {
	return Config{
		NumPages:       numPages,
		TraceLength:    64,
		MaxBreakpoints: 32,
		MaxWatchpoints: 32,
		MaxTimers:      16,
	}
}

// Machine bundles the whole glue layer behind one handle. It is not safe
// for concurrent use beyond the defensive ErrSliceInFlight guard on
// Execute/ExecuteToEvent: the model is single-threaded cooperative
// (spec.md §5), and the semaphore exists only to fail loudly if a host
// violates that from two goroutines at once, not to make the core
// thread-safe in general.
type Machine struct {
	Bus    *EventBus
	Memory *Memory
	Labels *LabelIndex
	Traps  *Traps
	Tools  *Tools
	CPU    *CPUDriver

	sliceGuard *semaphore.Weighted
}

// New constructs a Machine over interp, which must already be default-
// constructed (its own Reset is called by CPU.Init).
func New(interp Interpreter, opts ...Option) (*Machine, error) {
	cfg := defaultConfig(256) // 256 pages * 64KiB = 16MiB default map
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.NumPages <= 0 {
		return nil, ErrZeroPages
	}

	bus := NewEventBus(cfg.EventCleanup)
	mem := NewMemory(cfg.NumPages, bus)
	labels := NewLabelIndex(cfg.NumPages, cfg.LabelCleanup)
	traps := NewTraps(mem, bus)
	tools := NewTools(cfg.TraceLength, cfg.MaxBreakpoints, cfg.MaxWatchpoints, cfg.MaxTimers, bus)
	cpu := NewCPUDriver(interp, mem, bus, traps, tools)

	m := &Machine{
		Bus:        bus,
		Memory:     mem,
		Labels:     labels,
		Traps:      traps,
		Tools:      tools,
		CPU:        cpu,
		sliceGuard: semaphore.NewWeighted(1),
	}
	m.CPU.Init()
	return m, nil
}

// Reset reinitializes the CPU driver. Traps and tools are left untouched;
// ResetTraps reinitializes the trap table on request, and there is no
// corresponding reset for the tools.
func (m *Machine) Reset() {
	m.CPU.Reset()
}

// ResetTraps tears down every configured trap slot, rebuilding the free
// list from scratch.
func (m *Machine) ResetTraps() {
	*m.Traps = *NewTraps(m.Memory, m.Bus)
}

// Execute runs one timeslice, guarding against concurrent invocation from
// another goroutine.
func (m *Machine) Execute(numCycles uint32) (int, error) {
	if !m.sliceGuard.TryAcquire(1) {
		return 0, ErrSliceInFlight
	}
	defer m.sliceGuard.Release(1)
	return m.CPU.Execute(numCycles), nil
}

// ExecuteToEvent runs repeated chunks until an event is raised, guarding
// against concurrent invocation from another goroutine.
func (m *Machine) ExecuteToEvent(cyclesPerRun uint32) (int, error) {
	if !m.sliceGuard.TryAcquire(1) {
		return 0, ErrSliceInFlight
	}
	defer m.sliceGuard.Release(1)
	return m.CPU.ExecuteToEvent(cyclesPerRun), nil
}

// ExecuteContext is ExecuteToEvent with cooperative cancellation: ctx is
// consulted between chunks so a host can bound a slice by wall-clock time
// as well as by cycle budget.
func (m *Machine) ExecuteContext(ctx context.Context, cyclesPerRun uint32) (int, error) {
	if err := m.sliceGuard.Acquire(ctx, 1); err != nil {
		return 0, ErrSliceInFlight
	}
	defer m.sliceGuard.Release(1)
	if cyclesPerRun == 0 {
		cyclesPerRun = DefaultCycles
	}
	m.CPU.beginSlice()
	for m.Bus.NumEvents() == 0 {
		select {
		case <-ctx.Done():
			m.Bus.SetEndSliceFunc(nil)
			return m.Bus.NumEvents(), ctx.Err()
		default:
		}
		used := m.CPU.interp.Run(cyclesPerRun)
		m.CPU.doneCycles += used
		m.CPU.totalCycles += used
		if m.CPU.stopRequested {
			break
		}
	}
	m.Bus.SetEndSliceFunc(nil)
	return m.Bus.NumEvents(), nil
}

// Free releases machine-held state. Memory and the label index are owned
// exclusively by this Machine and are discarded with it.
func (m *Machine) Free() {
	m.CPU.Free()
}
