// cpu.go - the CPU Driver: lifecycle, register access, execute/
// execute-to-event, interrupt delivery, and the per-instruction hook
// fan-out that ties the event bus, trap table, and tools subsystem
// together. Ported in shape from bare68k's machine_src/glue/cpu.c, whose
// m68k_cycles_run()-vs-last_cycles bookkeeping becomes the absCycles/
// lastCycles pair below.

package machine

import "fmt"

// InstrHookFunc is the host's per-instruction callback. The tri-valued
// Outcome controls whether an INSTR_HOOK (or CALLBACK_ERROR) event is
// enqueued.
type InstrHookFunc func(pc uint32) (data any, outcome Outcome)

// IntAckFunc is the host's interrupt-acknowledge callback.
type IntAckFunc func(level int, pc uint32) (vector int, data any, outcome Outcome)

// CPUDriver is the component named in spec.md §4.F.
type CPUDriver struct {
	interp Interpreter
	mem    *Memory
	bus    *EventBus
	traps  *Traps
	tools  *Tools

	instrHook InstrHookFunc
	intAck    IntAckFunc

	currentFC        uint8
	lastCycles       uint32
	sliceStartCycles uint32
	totalCycles      uint32
	doneCycles       uint32
	dontClear        bool
	stopRequested    bool
}

// NewCPUDriver wires an interpreter to the already-constructed core
// components. The driver installs itself as the event bus's cycle source so
// every enqueued Event.Cycles reflects the running cycle count (spec.md §3),
// not a literal 0. It does not install itself as interp's Hooks: the
// Interpreter interface has no method for that, so the caller wires the
// returned driver into its interpreter.
func NewCPUDriver(interp Interpreter, mem *Memory, bus *EventBus, traps *Traps, tools *Tools) *CPUDriver {
	d := &CPUDriver{interp: interp, mem: mem, bus: bus, traps: traps, tools: tools}
	mem.SetFunctionCodeSource(func() uint8 { return d.currentFC })
	mem.SetWatchpointProbe(tools.WatchpointProbe)
	bus.SetCyclesSource(d.currentCycles)
	return d
}

// currentCycles reports the cycle count elapsed since the active slice
// began, derived from the interpreter's running absCycles count last
// reported to OnInstruction.
func (d *CPUDriver) currentCycles() uint32 { return d.lastCycles - d.sliceStartCycles }

// SetInstrHook installs (or clears, with nil) the host's per-instruction
// callback.
func (d *CPUDriver) SetInstrHook(f InstrHookFunc) { d.instrHook = f }

// SetIntAckFunc installs (or clears, with nil) the host's interrupt-ack
// callback.
func (d *CPUDriver) SetIntAckFunc(f IntAckFunc) { d.intAck = f }

// Init brings the driver and its interpreter to a known-reset state.
func (d *CPUDriver) Init() {
	d.currentFC = 0
	d.lastCycles = 0
	d.sliceStartCycles = 0
	d.totalCycles = 0
	d.doneCycles = 0
	d.dontClear = false
	d.interp.Reset()
}

// Reset reinitializes cycle accounting and interpreter state. Unlike the
// interpreter's own RESET instruction (see OnReset), this is the host-
// driven API reset and does not by itself enqueue an event.
func (d *CPUDriver) Reset() {
	d.currentFC = 0
	d.lastCycles = 0
	d.sliceStartCycles = 0
	d.totalCycles = 0
	d.doneCycles = 0
	d.interp.Reset()
}

// Free releases driver-held state. The interpreter and core components
// outlive it; nothing to tear down but kept for lifecycle symmetry with
// Memory/LabelIndex.
func (d *CPUDriver) Free() {}

// GetRegisters returns the interpreter's live register file.
func (d *CPUDriver) GetRegisters() Registers { return d.interp.GetRegisters() }

// SetRegisters overwrites the interpreter's register file.
func (d *CPUDriver) SetRegisters(r Registers) { d.interp.SetRegisters(r) }

// TotalCycles is the running cycle count since the last Reset (spec.md §9:
// not reset between timeslices).
func (d *CPUDriver) TotalCycles() uint32 { return d.totalCycles }

// DoneCycles is the cycle count consumed by the most recent Execute or
// ExecuteToEvent call.
func (d *CPUDriver) DoneCycles() uint32 { return d.doneCycles }

// RunInfo reports the outcome of the most recent slice.
func (d *CPUDriver) RunInfo() RunInfo {
	return RunInfo{
		Events:      d.bus.Snapshot(),
		NumEvents:   d.bus.NumEvents(),
		LostEvents:  d.bus.LostEvents(),
		DoneCycles:  d.doneCycles,
		TotalCycles: d.totalCycles,
	}
}

// Execute runs one timeslice of up to numCycles cycles (DefaultCycles if
// 0), clearing pending events first unless SetIRQ was called since the
// previous slice began. It stops early at the first event.
func (d *CPUDriver) Execute(numCycles uint32) int {
	if numCycles == 0 {
		numCycles = DefaultCycles
	}
	d.beginSlice()
	used := d.interp.Run(numCycles)
	d.endSlice(used)
	return d.bus.NumEvents()
}

// ExecuteToEvent runs repeated cyclesPerRun-sized chunks (DefaultCycles if
// 0) until an event is raised, accumulating DoneCycles across chunks.
func (d *CPUDriver) ExecuteToEvent(cyclesPerRun uint32) int {
	if cyclesPerRun == 0 {
		cyclesPerRun = DefaultCycles
	}
	d.beginSlice()
	for d.bus.NumEvents() == 0 {
		used := d.interp.Run(cyclesPerRun)
		d.doneCycles += used
		d.totalCycles += used
		if d.stopRequested {
			break
		}
	}
	d.bus.SetEndSliceFunc(nil)
	return d.bus.NumEvents()
}

func (d *CPUDriver) beginSlice() {
	if !d.dontClear {
		d.bus.Clear()
	}
	d.dontClear = false
	d.doneCycles = 0
	d.sliceStartCycles = d.lastCycles
	d.stopRequested = false
	d.bus.SetEndSliceFunc(func() { d.stopRequested = true })
}

func (d *CPUDriver) endSlice(used uint32) {
	d.bus.SetEndSliceFunc(nil)
	d.doneCycles = used
	d.totalCycles += used
}

// SetIRQ clears pending events, raises the interrupt in the interpreter,
// and suppresses the next slice's auto-clear so events raised between this
// call and the next Execute are still observable after that slice.
func (d *CPUDriver) SetIRQ(level int) {
	d.bus.Clear()
	d.interp.SetIRQ(level)
	d.dontClear = true
}

// ---- Hooks implementation, called back by the interpreter ----

func (d *CPUDriver) OnReset(pc uint32) {
	d.bus.Add(Reset, pc, 0, 0, nil)
}

func (d *CPUDriver) OnFunctionCode(fc uint8) {
	d.currentFC = fc
}

// OnInstruction updates lastCycles first so every event enqueued below
// (including by Breakpoints.Check and Timers.Tick) stamps against this
// instruction's own cycle position, not the previous instruction's.
func (d *CPUDriver) OnInstruction(pc uint32, absCycles uint32) {
	elapsed := absCycles - d.lastCycles
	d.lastCycles = absCycles

	if d.instrHook != nil {
		data, outcome := d.instrHook(pc)
		switch outcome {
		case OutcomeEvent:
			d.bus.Add(InstrHook, pc, 0, 0, data)
		case OutcomeError:
			d.bus.Add(CallbackError, pc, 0, 0, data)
		}
	}

	if d.tools.Trace.Enabled() {
		d.tools.Trace.Update(pc)
	}

	fcClass := MapFunctionCode(d.currentFC)
	if id, data, hit := d.tools.Breakpoints.Check(pc, uint32(fcClass)); hit {
		d.bus.Add(Breakpoint, pc, uint32(id), uint32(fcClass), data)
	}

	d.tools.Timers.Tick(pc, elapsed)
}

func (d *CPUDriver) OnIntAck(level int, pc uint32) int {
	if d.intAck != nil {
		vector, data, outcome := d.intAck(level, pc)
		switch outcome {
		case OutcomeEvent:
			d.bus.Add(IntAck, pc, uint32(vector), uint32(level), data)
		case OutcomeError:
			d.bus.Add(CallbackError, pc, uint32(vector), uint32(level), data)
		}
		return vector
	}
	return AckAutovector
}

func (d *CPUDriver) OnAline(opcode int, pc uint32) AlineOutcome {
	return d.traps.Dispatch(opcode, pc)
}

func (d *CPUDriver) ShouldStop() bool { return d.stopRequested }

// ---- formatting ----

// GetRegister looks up a single register by name, matching spec.md §6's
// D0-D7/A0-A7/PC/SR/USP/ISP/MSP/VBR set.
func (d *CPUDriver) GetRegister(name string) (uint64, bool) {
	r := d.GetRegisters()
	switch {
	case len(name) == 2 && name[0] == 'D' && name[1] >= '0' && name[1] <= '7':
		return uint64(r.D[name[1]-'0']), true
	case len(name) == 2 && name[0] == 'A' && name[1] >= '0' && name[1] <= '7':
		return uint64(r.A[name[1]-'0']), true
	}
	switch name {
	case "PC":
		return uint64(r.PC), true
	case "SR":
		return uint64(r.SR), true
	case "USP":
		return uint64(r.USP), true
	case "ISP":
		return uint64(r.ISP), true
	case "MSP":
		return uint64(r.MSP), true
	case "VBR":
		return uint64(r.VBR), true
	}
	return 0, false
}

// SetRegister writes a single register by name.
func (d *CPUDriver) SetRegister(name string, value uint64) bool {
	r := d.GetRegisters()
	switch {
	case len(name) == 2 && name[0] == 'D' && name[1] >= '0' && name[1] <= '7':
		r.D[name[1]-'0'] = uint32(value)
	case len(name) == 2 && name[0] == 'A' && name[1] >= '0' && name[1] <= '7':
		r.A[name[1]-'0'] = uint32(value)
	default:
		switch name {
		case "PC":
			r.PC = uint32(value)
		case "SR":
			r.SR = uint16(value)
		case "USP":
			r.USP = uint32(value)
		case "ISP":
			r.ISP = uint32(value)
		case "MSP":
			r.MSP = uint32(value)
		case "VBR":
			r.VBR = uint32(value)
		default:
			return false
		}
	}
	d.SetRegisters(r)
	return true
}

// SRString renders SR against srFlagTemplate: a set bit prints the
// template's letter, a clear bit or a reserved ('?') template position
// prints '-'.
func SRString(sr uint16) string {
	buf := make([]byte, len(srFlagTemplate))
	for i := 0; i < len(srFlagTemplate); i++ {
		ch := srFlagTemplate[i]
		bit := (sr >> uint(15-i)) & 1
		if ch != '?' && bit != 0 {
			buf[i] = ch
		} else {
			buf[i] = '-'
		}
	}
	return string(buf)
}

// RegistersString renders the full register file as the fixed six-line
// block named in spec.md §6.
func (d *CPUDriver) RegistersString() string {
	r := d.GetRegisters()
	return fmt.Sprintf(
		"PC=%08x SR=%04x [%s]\n"+
			"D0=%08x D1=%08x D2=%08x D3=%08x\n"+
			"D4=%08x D5=%08x D6=%08x D7=%08x\n"+
			"A0=%08x A1=%08x A2=%08x A3=%08x\n"+
			"A4=%08x A5=%08x A6=%08x A7=%08x\n"+
			"USP=%08x ISP=%08x MSP=%08x VBR=%08x\n",
		r.PC, r.SR, SRString(r.SR),
		r.D[0], r.D[1], r.D[2], r.D[3],
		r.D[4], r.D[5], r.D[6], r.D[7],
		r.A[0], r.A[1], r.A[2], r.A[3],
		r.A[4], r.A[5], r.A[6], r.A[7],
		r.USP, r.ISP, r.MSP, r.VBR,
	)
}

// InstrString renders a single disassembled line as "%08x: %s".
func InstrString(pc uint32, mnemonic string) string {
	return fmt.Sprintf("%08x: %s", pc, mnemonic)
}
