// scripting.go - a Lua binding over machine.Machine, letting a host script
// special overlays and trap handlers instead of writing Go closures.
// bare68k's original_source exists to let a CPython host script the same
// C core (the vamos AmigaOS environment); this package gives the Go
// module the equivalent capability with gopher-lua. Every Lua-driven
// special overlay still goes through machine.AddSpecial's callback
// outcome contract — scripting widens who writes the callback, not what
// the callback is allowed to do.

package scripting

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/m68kcore/machine/machine"
)

// Script wraps one Lua state bound to a single Machine.
type Script struct {
	L  *lua.LState
	m  *machine.Machine
	id int // next trap data-table registry id
}

// New creates a Script bound to m and loads src as the script body. src is
// executed once immediately, registering any functions it defines.
func New(m *machine.Machine, src string) (*Script, error) {
	L := lua.NewState()
	s := &Script{L: L, m: m}
	L.SetGlobal("special_overlay", L.NewFunction(s.luaSpecialOverlay))
	L.SetGlobal("trap_setup", L.NewFunction(s.luaTrapSetup))
	if err := L.DoString(src); err != nil {
		L.Close()
		return nil, fmt.Errorf("scripting: load: %w", err)
	}
	return s, nil
}

// Close releases the Lua state.
func (s *Script) Close() { s.L.Close() }

func luaOutcome(v lua.LValue) machine.Outcome {
	switch lua.LVAsString(v) {
	case "event":
		return machine.OutcomeEvent
	case "error":
		return machine.OutcomeError
	default:
		return machine.OutcomeNoEvent
	}
}

// luaSpecialOverlay implements the Lua-callable
// special_overlay(startPage, numPages, readFn, writeFn) that installs a
// machine.AddSpecial overlay backed by the two Lua closures.
func (s *Script) luaSpecialOverlay(L *lua.LState) int {
	startPage := L.CheckInt(1)
	numPages := L.CheckInt(2)
	readFn := L.CheckFunction(3)
	writeFn := L.CheckFunction(4)

	read := func(access int, addr uint32, data any) (uint32, any, machine.Outcome) {
		if err := L.CallByParam(lua.P{Fn: readFn, NRet: 2, Protect: true}, lua.LNumber(addr), lua.LNumber(access)); err != nil {
			return 0, err.Error(), machine.OutcomeError
		}
		outcome := luaOutcome(L.Get(-1))
		value := uint32(L.CheckNumber(-2))
		L.Pop(2)
		return value, nil, outcome
	}
	write := func(access int, addr uint32, value uint32, data any) (any, machine.Outcome) {
		if err := L.CallByParam(lua.P{Fn: writeFn, NRet: 1, Protect: true}, lua.LNumber(addr), lua.LNumber(value), lua.LNumber(access)); err != nil {
			return err.Error(), machine.OutcomeError
		}
		outcome := luaOutcome(L.Get(-1))
		L.Pop(1)
		return nil, outcome
	}

	if _, err := s.m.Memory.AddSpecial(startPage, numPages, read, nil, write, nil); err != nil {
		L.RaiseError("special_overlay: %v", err)
	}
	return 0
}

// luaTrapSetup implements the Lua-callable trap_setup(flags, handlerFn),
// registering handlerFn as the trap's data payload (invoked with the
// triggering PC whenever the event surfaces).
func (s *Script) luaTrapSetup(L *lua.LState) int {
	flags := L.CheckInt(1)
	handler := L.CheckFunction(2)
	opcode := s.m.Traps.Setup(flags, handler)
	if opcode == machine.TrapInvalid {
		L.RaiseError("trap_setup: no free trap slot")
	}
	L.Push(lua.LNumber(opcode))
	return 1
}

// DispatchTrapEvent runs the Lua handler registered for a TRAP event's
// payload, if it is a Lua function (i.e. was registered via trap_setup).
// The host calls this after RunInfo reports an ALINE_TRAP event.
func (s *Script) DispatchTrapEvent(ev machine.Event) error {
	handler, ok := ev.Data.(*lua.LFunction)
	if !ok {
		return nil
	}
	return s.L.CallByParam(lua.P{Fn: handler, NRet: 0, Protect: true}, lua.LNumber(ev.Addr))
}
