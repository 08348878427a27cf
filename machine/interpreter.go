// interpreter.go - the callback surface the core expects from the 68k
// interpreter it drives. The interpreter itself is an external black box
// (spec.md §1(a)); this file is only the contract.

package machine

// Registers mirrors the 68k programmer model named in spec.md §6.
type Registers struct {
	D   [8]uint32
	A   [8]uint32
	PC  uint32
	SR  uint16
	USP uint32
	ISP uint32
	MSP uint32
	VBR uint32
}

// AckAutovector is the default interrupt-ack result when no host int-ack
// callback is installed.
const AckAutovector = -1

// Hooks is the capability object the CPU Driver implements; the host wires
// the driver into its interpreter, which invokes these at the documented
// points during Run.
type Hooks interface {
	// OnReset fires when the interpreter itself executes a RESET
	// instruction (not when the host calls CPUDriver.Reset).
	OnReset(pc uint32)
	// OnFunctionCode updates the driver's notion of the current bus
	// function code, fed a raw 0-7 value.
	OnFunctionCode(fc uint8)
	// OnInstruction fires at every instruction boundary. absCycles is the
	// interpreter's running cycle count since its last Reset.
	OnInstruction(pc uint32, absCycles uint32)
	// OnIntAck fires when the interpreter acknowledges an interrupt,
	// returning the vector (or AckAutovector) to use.
	OnIntAck(level int, pc uint32) int
	// OnAline fires when the interpreter fetches an opcode in the A-line
	// range (0xA000-0xAFFF).
	OnAline(opcode int, pc uint32) AlineOutcome
	// ShouldStop reports whether the event bus's end-of-timeslice latch
	// has tripped; the interpreter must stop at the next instruction
	// boundary once this returns true.
	ShouldStop() bool
}

// Interpreter is the fixed callback surface an external 68k core must
// offer (spec.md §1(a), treated as a black box).
type Interpreter interface {
	// Reset reinitializes interpreter-owned state (registers, prefetch,
	// internal cycle counter). It does not call Hooks.OnReset.
	Reset()
	GetRegisters() Registers
	SetRegisters(Registers)
	SetIRQ(level int)
	// Run executes instructions, consulting Hooks.ShouldStop after each
	// one, until cycles is exhausted or a stop is requested. It returns
	// the number of cycles actually consumed.
	Run(cycles uint32) uint32
}
