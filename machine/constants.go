// constants.go - event kinds, callback outcomes, access-word and flag encodings

package machine

// EventKind identifies the reason an Event was enqueued. Values are stable
// and part of the host-facing wire contract.
type EventKind int

const (
	CallbackError EventKind = iota
	Reset
	AlineTrap
	MemAccess
	MemBounds
	MemTrace
	MemSpecial
	InstrHook
	IntAck
	Breakpoint
	Watchpoint
	Timer
)

func (k EventKind) String() string {
	switch k {
	case CallbackError:
		return "CALLBACK_ERROR"
	case Reset:
		return "RESET"
	case AlineTrap:
		return "ALINE_TRAP"
	case MemAccess:
		return "MEM_ACCESS"
	case MemBounds:
		return "MEM_BOUNDS"
	case MemTrace:
		return "MEM_TRACE"
	case MemSpecial:
		return "MEM_SPECIAL"
	case InstrHook:
		return "INSTR_HOOK"
	case IntAck:
		return "INT_ACK"
	case Breakpoint:
		return "BREAKPOINT"
	case Watchpoint:
		return "WATCHPOINT"
	case Timer:
		return "TIMER"
	default:
		return "UNKNOWN"
	}
}

// Outcome is the three-valued result a host callback reports to the core.
type Outcome int

const (
	OutcomeEvent   Outcome = 0
	OutcomeNoEvent Outcome = 1
	OutcomeError   Outcome = -1
)

// Access width plus direction, packed into the low byte of an access word.
const (
	AccessWidth8  = 1
	AccessWidth16 = 2
	AccessWidth32 = 4

	AccessWidthMask = 0x0f
	AccessRead      = 0x10
	AccessWrite     = 0x20
)

// Function-code classes, packed into the high byte of an access word.
const (
	FCMask      = 0xff00
	FCUserData  = 0x1100
	FCUserProg  = 0x1200
	FCSuperData = 0x2100
	FCSuperProg = 0x2200
	FCIntAck    = 0x4000
	FCInvalid   = 0x8000
)

// fcMap translates a raw 3-bit interpreter function code (0-7) into the
// access-word FC class used throughout this package.
var fcMap = [8]int{
	FCInvalid,  // 0
	FCUserData, // 1
	FCUserProg, // 2
	FCInvalid,  // 3
	FCInvalid,  // 4
	FCSuperData, // 5
	FCSuperProg, // 6
	FCIntAck,   // 7
}

// MapFunctionCode maps a raw 0-7 interpreter FC value to its access-word class.
func MapFunctionCode(raw uint8) int {
	return fcMap[raw&7]
}

// AccessWord builds the combined width|direction|FC-class word used to tag
// events and probe watchpoints.
func AccessWord(width int, write bool, fcClass int) int {
	w := width
	if write {
		w |= AccessWrite
	} else {
		w |= AccessRead
	}
	return w | fcClass
}

// API access word subtypes, used for the API-level trace hook.
const (
	APIAccessRBlock   = 0x1100
	APIAccessWBlock   = 0x1200
	APIAccessRCstr    = 0x2100
	APIAccessWCstr    = 0x2200
	APIAccessRBstr    = 0x3100
	APIAccessWBstr    = 0x3200
	APIAccessRB32     = 0x4100
	APIAccessWB32     = 0x4200
	APIAccessBSet     = 0x5400
	APIAccessBCopy    = 0x6400
)

// Memory region flags, combined bitwise.
const (
	MemFlagRead  = 1
	MemFlagWrite = 2
	MemFlagTraps = 4
)

// Trap slot flags.
const (
	TrapDefault  = 0
	TrapOneShot  = 1
	TrapAutoRTS  = 2
	TrapSetup    = 4
	TrapEnable   = 8
)

const (
	// TrapOpcodeBase is OR'd with a trap id to form its A-line opcode.
	TrapOpcodeBase = 0xa000
	// TrapIDMask extracts a trap id from an A-line opcode.
	TrapIDMask = 0x0fff
	// TrapInvalid is returned by Setup when no slot is free.
	TrapInvalid = 0xffff
	// NumTraps is the fixed size of the trap table.
	NumTraps = 0x1000
)

// Page geometry.
const (
	PageSize  = 0x10000
	PageShift = 16
	PageMask  = PageSize - 1
)

// DefaultInvalidValue is returned (truncated to width) for accesses that hit
// no handler, unless overridden via Memory.SetInvalidValue.
const DefaultInvalidValue = 0xffffffff

// DefaultCycles is the cycle budget used by Execute when called with 0.
const DefaultCycles = 100000

// MaxEvents is the fixed capacity of the event bus.
const MaxEvents = 8

// srFlagTemplate is the register-string template for CPUDriver.SRString:
// set bits render as their letter, clear bits render as '-'.
const srFlagTemplate = "T?S??210???XNZVC"
