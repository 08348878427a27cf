// core.go - a minimal 68k interpreter satisfying machine.Interpreter,
// covering NOP, RTS, BRA.W, JMP abs.L, MOVE.W/L #imm,Dn, MOVE.B Dn,(An),
// and A-line passthrough. Structured like IntuitionEngine's M68KCPU
// (register layout), with a single opcode switch, trimmed to the opcode
// subset SPEC_FULL.md names; the full instruction set is out of scope.

package interp

import "github.com/m68kcore/machine/machine"

const (
	srSupervisor = 0x2000
	instrCycles  = 4 // fixed per-instruction cost; this core is not cycle-exact
)

// CPU is the reference interpreter. It owns the 68k register file and
// drives machine.Hooks at each instruction boundary.
type CPU struct {
	PC       uint32
	SR       uint16
	DataRegs [8]uint32
	AddrRegs [8]uint32
	USP      uint32
	SSP      uint32
	VBR      uint32

	cycleCounter uint32

	mem   *machine.Memory
	hooks machine.Hooks
}

// New builds a core wired to mem for instruction fetch and data access. mem
// may be nil if the caller constructs the machine.Machine (and therefore its
// Memory) after the core; wire it in with SetMemory before the first Run.
// Call SetHooks once the driving machine.CPUDriver exists, since
// machine.Interpreter has no room for that wiring step itself.
func New(mem *machine.Memory) *CPU {
	return &CPU{mem: mem, SR: srSupervisor}
}

// SetMemory wires (or rewires) the core's memory backend.
func (c *CPU) SetMemory(mem *machine.Memory) { c.mem = mem }

// SetHooks installs the callback surface the core invokes per instruction.
func (c *CPU) SetHooks(h machine.Hooks) { c.hooks = h }

func (c *CPU) Reset() {
	c.PC = 0
	c.SR = srSupervisor
	c.DataRegs = [8]uint32{}
	c.AddrRegs = [8]uint32{}
	c.cycleCounter = 0
}

func (c *CPU) GetRegisters() machine.Registers {
	r := machine.Registers{
		D:   c.DataRegs,
		A:   c.AddrRegs,
		PC:  c.PC,
		SR:  c.SR,
		USP: c.USP,
		ISP: c.SSP,
		MSP: c.SSP,
		VBR: c.VBR,
	}
	return r
}

func (c *CPU) SetRegisters(r machine.Registers) {
	c.DataRegs = r.D
	c.AddrRegs = r.A
	c.PC = r.PC
	c.SR = r.SR
	c.USP = r.USP
	c.SSP = r.ISP
	c.VBR = r.VBR
}

// SetIRQ is a placeholder: this minimal core does not implement interrupt
// priority masking or pending-interrupt delivery.
func (c *CPU) SetIRQ(level int) {}

func (c *CPU) supervisor() bool { return c.SR&srSupervisor != 0 }

// functionCode returns the raw 0-7 FC value for the access kind just
// performed, following the mapping in machine.MapFunctionCode's table.
func (c *CPU) functionCode(isProgramFetch bool) uint8 {
	switch {
	case c.supervisor() && isProgramFetch:
		return 6
	case c.supervisor():
		return 5
	case isProgramFetch:
		return 2
	default:
		return 1
	}
}

func (c *CPU) fetch16(addr uint32) uint16 {
	if c.hooks != nil {
		c.hooks.OnFunctionCode(c.functionCode(true))
	}
	return c.mem.Read16(addr)
}

func (c *CPU) fetch32(addr uint32) uint32 {
	hi := c.fetch16(addr)
	lo := c.fetch16(addr + 2)
	return uint32(hi)<<16 | uint32(lo)
}

func (c *CPU) pop32() uint32 {
	sp := c.AddrRegs[7]
	v := c.fetch32(sp)
	c.AddrRegs[7] = sp + 4
	return v
}

// Run executes instructions until cycles is exhausted or Hooks.ShouldStop
// reports true after an instruction boundary. It returns the cycles
// actually consumed.
func (c *CPU) Run(cycles uint32) uint32 {
	var used uint32
	for used+instrCycles <= cycles {
		pc := c.PC
		opcode := c.fetch16(pc)
		c.PC += 2
		c.step(opcode, pc)
		used += instrCycles
		c.cycleCounter += instrCycles

		if c.hooks != nil {
			c.hooks.OnInstruction(c.PC, c.cycleCounter)
			if c.hooks.ShouldStop() {
				break
			}
		}
	}
	return used
}

func (c *CPU) step(opcode uint16, pc uint32) {
	switch {
	case opcode == 0x4e71: // NOP
	case opcode == 0x4e75: // RTS
		c.PC = c.pop32()
	case opcode == 0x4ef9: // JMP abs.L
		c.PC = c.fetch32(c.PC)
	case opcode&0xff00 == 0x6000 && opcode&0xff == 0x00: // BRA.W
		base := c.PC
		disp := int16(c.fetch16(c.PC))
		c.PC += 2
		c.PC = uint32(int32(base) + int32(disp))
	case opcode&0xf000 == 0xa000: // A-line: hand off to the trap table
		if c.hooks == nil {
			return
		}
		switch c.hooks.OnAline(int(opcode), pc) {
		case machine.AlineRTS:
			c.PC = c.pop32()
		case machine.AlineExcept:
			// no exception table in this minimal core; treat as a no-op
		case machine.AlineNone:
		}
	case opcode&0xf000 == 0x3000 || opcode&0xf000 == 0x2000: // MOVE.W/L #imm,Dn
		c.decodeMoveImmediateToDn(opcode)
	case opcode&0xf000 == 0x1000: // MOVE.B Dn,(An)
		c.decodeMoveByteDnToIndirect(opcode)
	default:
		// outside the supported subset: treated as a no-op by this
		// reference core.
	}
}

// decodeMoveImmediateToDn handles MOVE.W #imm,Dn (0x3000 size field) and
// MOVE.L #imm,Dn (0x2000 size field), the only two immediate-to-Dn forms
// this core supports.
func (c *CPU) decodeMoveImmediateToDn(opcode uint16) {
	destReg := (opcode >> 9) & 7
	destMode := (opcode >> 6) & 7
	srcMode := (opcode >> 3) & 7
	srcReg := opcode & 7
	if destMode != 0 || srcMode != 7 || srcReg != 4 {
		return // not Dn-direct dest / immediate src
	}
	size := opcode >> 12 // 3 = word, 2 = long
	switch size {
	case 3:
		imm := uint32(c.fetch16(c.PC))
		c.PC += 2
		c.DataRegs[destReg] = c.DataRegs[destReg]&0xffff0000 | imm
	case 2:
		imm := c.fetch32(c.PC)
		c.PC += 4
		c.DataRegs[destReg] = imm
	}
}

// decodeMoveByteDnToIndirect handles MOVE.B Dn,(An).
func (c *CPU) decodeMoveByteDnToIndirect(opcode uint16) {
	destReg := (opcode >> 9) & 7
	destMode := (opcode >> 6) & 7
	srcMode := (opcode >> 3) & 7
	srcReg := opcode & 7
	if destMode != 2 || srcMode != 0 {
		return // not (An) dest / Dn-direct src
	}
	c.mem.Write8(c.AddrRegs[destReg], byte(c.DataRegs[srcReg]))
}
