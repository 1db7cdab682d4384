package memory

import (
	"github.com/jeebie-cgb/jeebie/jeebie/addr"
	"github.com/jeebie-cgb/jeebie/jeebie/bit"
)

// Timer encapsulates the Game Boy timer/DIV/TIMA/TMA/TAC behavior.
//
// The internal counter is tracked at M-cycle granularity (1 M-cycle = 4 T-cycles),
// which shifts the hardware's T-cycle bit positions {9,3,5,7} down by two to {7,1,3,5}.
type Timer struct {
	systemCounter uint16 // internal 14-bit (M-cycle) counter, DIV is bits 13-6
	lastTimerBit  bool   // previous state of the TAC-selected bit, for edge detection
	timaOverflow  int    // M-cycles remaining in the TIMA-overflow delay window
	timaDelayInt  bool   // delayed interrupt/TMA-reload flag, fires 1 M-cycle after overflow

	// Timer registers
	div  byte
	tima byte
	tma  byte
	tac  byte

	// IRQ requester callback
	TimerInterruptHandler func()

	// DividerResetHandler is notified whenever the internal counter is
	// reset (DIV write or STOP), so anything else that derives its own
	// timing from the system divider (the APU's frame sequencer) can
	// realign itself the same way it would on real hardware.
	DividerResetHandler func()
}

// tacBitPosition maps the TAC clock-select bits to the system counter bit
// they watch for a falling edge on, at M-cycle granularity.
var tacBitPosition = [4]uint16{7, 1, 3, 5}

// SetSeed initializes the internal divider counter and writes DIV accordingly.
func (t *Timer) SetSeed(seed uint16) {
	t.systemCounter = seed
	t.lastTimerBit = false
	t.timaOverflow = 0
	t.timaDelayInt = false
	t.div = byte(t.systemCounter >> 6)
}

// Tick advances the timer by the given number of M-cycles.
func (t *Timer) Tick(mCycles int) {
	for range mCycles {
		t.step()
	}
}

func (t *Timer) step() {
	if t.timaDelayInt {
		if t.TimerInterruptHandler != nil {
			t.TimerInterruptHandler()
		}
		t.timaDelayInt = false
	}

	if t.timaOverflow > 0 {
		t.timaOverflow--
		if t.timaOverflow == 0 {
			t.tima = t.tma
			t.timaDelayInt = true
		}
	}

	t.systemCounter++
	t.div = byte(t.systemCounter >> 6)

	t.evaluateEdge()
}

func (t *Timer) evaluateEdge() {
	timerEnabled := (t.tac & 0x04) != 0
	if !timerEnabled {
		t.lastTimerBit = false
		return
	}

	bitPosition := tacBitPosition[t.tac&0x03]
	currentBit := bit.IsSet16(bitPosition, t.systemCounter)

	if t.lastTimerBit && !currentBit {
		t.incrementTIMA()
	}
	t.lastTimerBit = currentBit
}

func (t *Timer) incrementTIMA() {
	if t.timaOverflow > 0 {
		return
	}
	if t.tima == 0xFF {
		t.tima = 0x00
		t.timaOverflow = 1
	} else {
		t.tima++
	}
}

func (t *Timer) Read(address uint16) byte {
	switch address {
	case addr.DIV:
		return t.div
	case addr.TIMA:
		return t.tima
	case addr.TMA:
		return t.tma
	case addr.TAC:
		return t.tac | 0xF8
	default:
		return 0xFF
	}
}

func (t *Timer) Write(address uint16, value byte) {
	switch address {
	case addr.DIV:
		// any write resets the entire internal counter, which can trigger a
		// spurious TIMA increment if the TAC-selected bit was set beforehand.
		t.systemCounter = 0
		t.div = 0
		t.evaluateEdge()
		if t.DividerResetHandler != nil {
			t.DividerResetHandler()
		}
	case addr.TIMA:
		// a write during the overflow delay window cancels the pending reload.
		t.tima = value
		t.timaOverflow = 0
		t.timaDelayInt = false
	case addr.TMA:
		t.tma = value
	case addr.TAC:
		t.tac = value
		t.evaluateEdge()
	}
}

// ResetSystemCounter clears the internal divider counter, mirroring a DIV
// write. Used by STOP, which resets the divider circuit on real hardware.
func (t *Timer) ResetSystemCounter() {
	t.systemCounter = 0
	t.div = 0
	t.evaluateEdge()
	if t.DividerResetHandler != nil {
		t.DividerResetHandler()
	}
}
