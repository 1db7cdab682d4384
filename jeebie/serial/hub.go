// Package serial models the Game Boy's link port (SB/SC) as a small shift
// register fed to an ordered set of passive sinks, rather than a real peer
// device — no link cable emulation is attempted.
package serial

import (
	"github.com/jeebie-cgb/jeebie/jeebie/addr"
	"github.com/jeebie-cgb/jeebie/jeebie/bit"
)

// Sink observes completed serial transfers. Implementations must not block.
type Sink interface {
	// ByteTransferred is called with the outgoing byte once a transfer completes.
	ByteTransferred(b byte)
}

// Hub is the SB/SC transfer shift register. It fans completed bytes out to
// every registered Sink in order and requests the Serial interrupt on
// completion, exactly like the DMG/CGB link port hardware.
type Hub struct {
	irqHandler func()
	sb, sc     byte

	transferActive bool
	countdown      int
	immediate      bool
	defaultRX      byte

	sinks []Sink
}

type HubOption func(*Hub)

// WithFixedTiming makes transfers complete after a fixed countdown
// (~4096 T-cycles per byte on DMG) instead of instantly.
func WithFixedTiming() HubOption { return func(h *Hub) { h.immediate = false } }

// WithSink registers an additional ordered sink for completed bytes.
func WithSink(s Sink) HubOption { return func(h *Hub) { h.sinks = append(h.sinks, s) } }

// NewHub creates a serial link hub. The irq callback is invoked on transfer
// completion and should request the Serial interrupt.
func NewHub(irq func(), opts ...HubOption) *Hub {
	h := &Hub{
		irqHandler: irq,
		immediate:  true,
		defaultRX:  0xFF,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.Reset()
	return h
}

func (h *Hub) Write(address uint16, value byte) {
	switch address {
	case addr.SB:
		h.sb = value
	case addr.SC:
		h.sc = value
		h.maybeStartTransfer()
	default:
		panic("serial.Hub: invalid write address")
	}
}

func (h *Hub) Read(address uint16) byte {
	switch address {
	case addr.SB:
		return h.sb
	case addr.SC:
		return h.sc | 0x7C
	default:
		panic("serial.Hub: invalid read address")
	}
}

func (h *Hub) Tick(cycles int) {
	if h.immediate || !h.transferActive {
		return
	}
	h.countdown -= cycles
	if h.countdown <= 0 {
		h.completeTransfer()
		h.countdown = 0
	}
}

func (h *Hub) Reset() {
	h.sb = 0x00
	h.sc = 0x00
	h.transferActive = false
	h.countdown = 0
}

func (h *Hub) maybeStartTransfer() {
	if h.transferActive {
		return
	}
	// a transfer starts when bit 7 (start) and bit 0 (clock source) of SC are set.
	if !bit.IsSet(7, h.sc) || !bit.IsSet(0, h.sc) {
		return
	}

	for _, sink := range h.sinks {
		sink.ByteTransferred(h.sb)
	}

	if h.immediate {
		h.completeTransfer()
		return
	}

	h.transferActive = true
	h.countdown = 4096
}

func (h *Hub) completeTransfer() {
	h.sb = h.defaultRX
	h.sc = bit.Clear(7, h.sc)
	h.transferActive = false
	if h.irqHandler != nil {
		h.irqHandler()
	}
}
