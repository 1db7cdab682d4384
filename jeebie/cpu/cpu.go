package cpu

import (
	"github.com/jeebie-cgb/jeebie/jeebie/addr"
	"github.com/jeebie-cgb/jeebie/jeebie/memory"
)

// Flag is one of the 4 possible flags used in the flag register (high part of AF)
type Flag uint8

const (
	zeroFlag      Flag = 0x80
	subFlag       Flag = 0x40
	halfCarryFlag Flag = 0x20
	carryFlag     Flag = 0x10
)

// CPU is the main struct holding SM83 state: the 8-bit registers, stack
// pointer and program counter, and the bus it executes against.
type CPU struct {
	bus *memory.MMU

	a, f uint8
	b, c uint8
	d, e uint8
	h, l uint8

	sp uint16
	pc uint16

	currentOpcode uint16

	interruptsEnabled bool
	eiPending         bool
	halted            bool
	haltBug           bool
	stopped           bool

	cycles uint64
}

// New returns a CPU wired to the given bus, with registers set to the
// documented post-boot-ROM state of a CGB console.
func New(bus *memory.MMU) *CPU {
	return &CPU{
		bus: bus,
		a:   0x11,
		f:   0x80,
		b:   0x00,
		c:   0x00,
		d:   0xFF,
		e:   0x56,
		h:   0x00,
		l:   0x0D,
		sp:  0xFFFE,
		pc:  0x0100,
	}
}

// Tick executes a single instruction (servicing a pending interrupt or the
// HALT state first, if applicable) and ticks the bus for the cycles spent.
// It returns the number of T-cycles consumed.
func (c *CPU) Tick() int {
	if c.eiPending {
		c.eiPending = false
		c.interruptsEnabled = true
	}

	if c.stopped {
		// STOP only exits on a joypad edge; the GBC STOP used for a speed
		// switch already resolved synchronously in the opcode itself, so by
		// the time Tick sees c.stopped == true this is a real low-power stop.
		ifReg := c.bus.Read(addr.IF)
		if ifReg&uint8(addr.JoypadInterrupt) != 0 {
			c.stopped = false
		} else {
			c.bus.Tick(1)
			c.cycles += 4
			return 4
		}
	}

	if c.halted {
		imeWasSet := c.interruptsEnabled
		woken, dispatchCycles := c.handleInterrupts()
		if woken {
			c.halted = false
			if !imeWasSet {
				c.haltBug = true
			}
		}
		total := 4 + dispatchCycles
		c.bus.Tick(total / 4)
		c.cycles += uint64(total)
		return total
	}

	opcode := Decode(c)
	if c.currentOpcode&0xFF00 == 0xCB00 {
		c.pc += 2
	} else {
		c.pc++
	}

	cycles := opcode(c)

	if c.interruptsEnabled {
		_, dispatchCycles := c.handleInterrupts()
		cycles += dispatchCycles
	}

	c.bus.Tick(cycles / 4)
	c.cycles += uint64(cycles)

	return cycles
}

// handleInterrupts services the highest-priority pending interrupt, if IME
// is set. It reports whether an interrupt was pending, regardless of
// whether IME allowed it to be serviced (used by HALT to decide whether to
// wake up), and the extra T-cycles the dispatch itself consumed (20 if an
// interrupt was actually serviced, 0 otherwise) so callers can fold that
// cost into the cycle count they report to the bus.
func (c *CPU) handleInterrupts() (bool, int) {
	ifReg := c.bus.Read(addr.IF)
	ieReg := c.bus.Read(addr.IE)
	pending := ifReg & ieReg & 0x1F

	if pending == 0 {
		return false, 0
	}

	if !c.interruptsEnabled {
		return true, 0
	}

	var bitPos uint8
	var vector uint16
	switch {
	case pending&0x01 != 0:
		bitPos, vector = 0, 0x40
	case pending&0x02 != 0:
		bitPos, vector = 1, 0x48
	case pending&0x04 != 0:
		bitPos, vector = 2, 0x50
	case pending&0x08 != 0:
		bitPos, vector = 3, 0x58
	default:
		bitPos, vector = 4, 0x60
	}

	c.bus.Write(addr.IF, ifReg&^(1<<bitPos))
	c.interruptsEnabled = false
	c.pushStack(c.pc)
	c.pc = vector

	return true, 20
}

// GetPC returns the current program counter, for diagnostics and debug logging.
func (c *CPU) GetPC() uint16 {
	return c.pc
}

// GetSP returns the current stack pointer, for diagnostics and debug logging.
func (c *CPU) GetSP() uint16 {
	return c.sp
}

// GetA returns the accumulator register, for diagnostics and debug logging.
func (c *CPU) GetA() uint8 { return c.a }

// GetB returns register B, for diagnostics and debug logging.
func (c *CPU) GetB() uint8 { return c.b }

// GetC returns register C, for diagnostics and debug logging.
func (c *CPU) GetC() uint8 { return c.c }

// GetD returns register D, for diagnostics and debug logging.
func (c *CPU) GetD() uint8 { return c.d }

// GetE returns register E, for diagnostics and debug logging.
func (c *CPU) GetE() uint8 { return c.e }

// GetH returns register H, for diagnostics and debug logging.
func (c *CPU) GetH() uint8 { return c.h }

// GetL returns register L, for diagnostics and debug logging.
func (c *CPU) GetL() uint8 { return c.l }

// GetF returns the flag register, for diagnostics and debug logging.
func (c *CPU) GetF() uint8 { return c.f }

// GetFlagString renders the flag register as the classic "ZNHC" letters,
// with a dash standing in for any flag that is not set.
func (c *CPU) GetFlagString() string {
	flags := [4]byte{'-', '-', '-', '-'}
	if c.isSetFlag(zeroFlag) {
		flags[0] = 'Z'
	}
	if c.isSetFlag(subFlag) {
		flags[1] = 'N'
	}
	if c.isSetFlag(halfCarryFlag) {
		flags[2] = 'H'
	}
	if c.isSetFlag(carryFlag) {
		flags[3] = 'C'
	}
	return string(flags[:])
}

// IsHalted reports whether the CPU is currently in the HALT state.
func (c *CPU) IsHalted() bool { return c.halted }

// InterruptsEnabled reports whether IME is currently set.
func (c *CPU) InterruptsEnabled() bool { return c.interruptsEnabled }

// GetCycles returns the total number of T-cycles executed since reset.
func (c *CPU) GetCycles() uint64 { return c.cycles }

func (c *CPU) setFlag(flag Flag) {
	c.f |= uint8(flag)
}

func (c *CPU) resetFlag(flag Flag) {
	c.f &^= uint8(flag)
}

func (c *CPU) setFlagToCondition(flag Flag, condition bool) {
	if condition {
		c.setFlag(flag)
	} else {
		c.resetFlag(flag)
	}
}

func (c *CPU) isSetFlag(flag Flag) bool {
	return c.f&uint8(flag) != 0
}

func (c *CPU) flagToBit(flag Flag) uint8 {
	if c.isSetFlag(flag) {
		return 1
	}
	return 0
}
