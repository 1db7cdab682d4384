package memory

import (
	"fmt"
	"log/slog"

	"github.com/jeebie-cgb/jeebie/jeebie/addr"
	"github.com/jeebie-cgb/jeebie/jeebie/audio"
	"github.com/jeebie-cgb/jeebie/jeebie/bit"
	"github.com/jeebie-cgb/jeebie/jeebie/serial"
)

type memRegion uint8

const (
	regionROM memRegion = iota
	regionVRAM
	regionExtRAM
	regionWRAM
	regionEcho
	regionOAM
	regionUnused
	regionIO
	regionHRAM
)

// JoypadKey represents a key on the Gameboy joypad
type JoypadKey uint8

const (
	JoypadRight JoypadKey = iota
	JoypadLeft
	JoypadUp
	JoypadDown
	JoypadA
	JoypadB
	JoypadSelect
	JoypadStart
)

// SerialPort is the minimal interface for a serial device connected to SB/SC.
// Implementations MUST only accept reads/writes to addr.SB and addr.SC.
type SerialPort interface {
	Write(address uint16, value byte)
	Read(address uint16) byte
	Tick(cycles int)
	Reset()
}

// ioSlot describes one byte of the FF00-FFFF I/O space. A nil Read/Write
// falls back to plain array-backed storage, which covers the majority of
// registers (LCDC, SCX, BGP, ...) that have no side effects of their own.
type ioSlot struct {
	read  func(m *MMU) byte
	write func(m *MMU, value byte)
}

// MMU allows access to all memory mapped I/O and data/registers
type MMU struct {
	cart *Cartridge
	mbc  MBC

	memory    []byte
	regionMap [256]memRegion
	ioSlots   [256]ioSlot

	// CGB VRAM: 2 banks of 8KB, selected by VBK bit 0.
	vram [2][0x2000]byte
	vbk  uint8

	// CGB WRAM: 8 banks of 4KB; bank 0 is always mapped at 0xC000-0xCFFF,
	// SVBK selects which bank (1-7, 0 behaves as 1) sits at 0xD000-0xDFFF.
	wram [8][0x1000]byte
	svbk uint8

	bgPalette  CRAM
	objPalette CRAM

	hdma hdma
	dma  oamDMA

	key1        uint8
	doubleSpeed bool

	bootROM        []byte
	bootROMEnabled bool

	cgbMode bool

	APU *audio.APU

	joypadButtons uint8 // Actual state of buttons A/B/Start/Select, mapped to low bits of P1
	joypadDpad    uint8 // Actual state of d-pad directions, mapped to low bits of P1

	serial SerialPort
	timer  Timer

	// ppuMode reports the PPU's current mode (0-3, matching STAT bits 1-0),
	// used to gate CPU access to VRAM/OAM the way real hardware does. Wired
	// up by the emulator core once the GPU exists; nil (no gating) until then.
	ppuMode func() int
}

// SetPPUModeProvider wires the PPU's mode into the bus so Read/Write can
// enforce the VRAM (mode 3) / OAM (modes 2-3) CPU-access lockout.
func (m *MMU) SetPPUModeProvider(f func() int) { m.ppuMode = f }

func (m *MMU) vramBlockedForCPU(address uint16) bool {
	return address >= 0x8000 && address <= 0x9FFF && m.ppuMode != nil && m.ppuMode() == 3
}

func (m *MMU) oamBlockedForCPU(address uint16) bool {
	if address < 0xFE00 || address > 0xFE9F || m.ppuMode == nil {
		return false
	}
	mode := m.ppuMode()
	return mode == 2 || mode == 3
}

// ReadPPU performs a PPU-internal read, bypassing the CPU-facing VRAM/OAM
// access gating: the PPU always has a direct path to its own memory, only
// the CPU bus is locked out while the PPU is scanning OAM/VRAM.
func (m *MMU) ReadPPU(address uint16) byte { return m.readRaw(address) }

// New creates a new memory unity with default data, i.e. nothing cartridge loaded.
// Equivalent to turning on a Gameboy without a cartridge in.
func New() *MMU {
	mmu := &MMU{
		memory:         make([]byte, 0x10000),
		cart:           NewCartridge(),
		APU:            audio.New(),
		joypadButtons:  0x0F,
		joypadDpad:     0x0F,
		bootROM:        bootROMCGB,
		bootROMEnabled: true,
	}
	hub := serial.NewHub(func() { mmu.RequestInterrupt(addr.SerialInterrupt) })
	mmu.serial = hub
	mmu.timer.TimerInterruptHandler = func() { mmu.RequestInterrupt(addr.TimerInterrupt) }
	mmu.timer.DividerResetHandler = func() { mmu.APU.Resync() }
	initRegionMap(mmu)
	initIOSlots(mmu)
	return mmu
}

// Tick advances any i/o that needs it, given a count of M-cycles.
func (m *MMU) Tick(mCycles int) {
	m.timer.Tick(mCycles)
	if m.serial != nil {
		m.serial.Tick(mCycles * 4)
	}
	if m.APU != nil {
		// the APU keeps the base clock rate in double speed
		apuCycles := mCycles * 4
		if m.doubleSpeed {
			apuCycles = mCycles * 2
		}
		m.APU.Tick(apuCycles)
	}
	for range mCycles {
		m.dma.tick(m.readRaw, m.writeRaw)
	}
}

// SetTimerSeed initializes the internal timer divider seed and DIV register.
func (m *MMU) SetTimerSeed(seed uint16) {
	m.timer.SetSeed(seed)
}

// ResetDivider clears the internal divider counter, the same reset STOP
// performs on real hardware.
func (m *MMU) ResetDivider() {
	m.timer.ResetSystemCounter()
}

// EnableCGBMode records whether the cartridge runs in CGB mode; IsCGBMode
// reports it (the PPU uses it to choose CRAM or DMG palettes). The CGB
// registers (KEY1, VBK, SVBK, HDMA, palette RAM) respond in either mode.
func (m *MMU) EnableCGBMode(enabled bool) {
	m.cgbMode = enabled
}

func (m *MMU) IsCGBMode() bool { return m.cgbMode }

// NewWithCartridge creates a new memory unit with the provided cartridge data loaded.
// Equivalent to turning on a Gameboy with a cartridge in.
func NewWithCartridge(cart *Cartridge) *MMU {
	mmu := New()
	mmu.cart = cart
	mmu.EnableCGBMode(cart.CGBSupport() != CGBUnsupported)

	switch cart.mbcType {
	case NoMBCType:
		mmu.mbc = NewNoMBC(cart.data)
	case MBC1Type, MBC1MultiType:
		mmu.mbc = NewMBC1(cart.data, cart.hasBattery, cart.ramBankCount)
	case MBC2Type:
		mmu.mbc = NewMBC2(cart.data)
	case MBC3Type:
		mmu.mbc = NewMBC3(cart.data, cart.ramBankCount, cart.hasRTC, nil)
	case MBC5Type:
		mmu.mbc = NewMBC5(cart.data, cart.hasRumble, cart.ramBankCount)
	case MBCUnknownType:
		slog.Warn("unsupported MBC type, falling back to no MBC", "cartType", cart.cartType)
		mmu.mbc = NewNoMBC(cart.data)
	default:
		panic(fmt.Sprintf("unsupported MBC type: %d", cart.mbcType))
	}

	return mmu
}

func initRegionMap(m *MMU) {
	// ROM: 0x0000-0x7FFF
	for i := 0x00; i <= 0x7F; i++ {
		m.regionMap[i] = regionROM
	}
	// VRAM: 0x8000-0x9FFF
	for i := 0x80; i <= 0x9F; i++ {
		m.regionMap[i] = regionVRAM
	}
	// External RAM: 0xA000-0xBFFF
	for i := 0xA0; i <= 0xBF; i++ {
		m.regionMap[i] = regionExtRAM
	}
	// Work RAM: 0xC000-0xDFFF
	for i := 0xC0; i <= 0xDF; i++ {
		m.regionMap[i] = regionWRAM
	}
	// Echo RAM: 0xE000-0xFDFF
	for i := 0xE0; i <= 0xFD; i++ {
		m.regionMap[i] = regionEcho
	}
	// OAM: 0xFE00-0xFE9F, Unused: 0xFEA0-0xFEFF
	m.regionMap[0xFE] = regionOAM
	// IO + HRAM: 0xFF00-0xFFFF
	m.regionMap[0xFF] = regionIO
}

// initIOSlots wires the handful of FF00-FFFF registers that have side
// effects beyond plain byte storage. Everything not listed here defaults to
// reading/writing the raw backing array.
func initIOSlots(m *MMU) {
	s := &m.ioSlots

	s[uint8(addr.P1)] = ioSlot{
		read:  func(m *MMU) byte { return m.memory[addr.P1] },
		write: func(m *MMU, v byte) { m.writeJoypad(v) },
	}
	s[uint8(addr.SB)] = ioSlot{
		read:  func(m *MMU) byte { return m.serial.Read(addr.SB) },
		write: func(m *MMU, v byte) { m.serial.Write(addr.SB, v) },
	}
	s[uint8(addr.SC)] = ioSlot{
		read:  func(m *MMU) byte { return m.serial.Read(addr.SC) },
		write: func(m *MMU, v byte) { m.serial.Write(addr.SC, v) },
	}
	s[uint8(addr.DIV)] = ioSlot{
		read:  func(m *MMU) byte { return m.timer.Read(addr.DIV) },
		write: func(m *MMU, v byte) { m.timer.Write(addr.DIV, v) },
	}
	s[uint8(addr.TIMA)] = ioSlot{
		read:  func(m *MMU) byte { return m.timer.Read(addr.TIMA) },
		write: func(m *MMU, v byte) { m.timer.Write(addr.TIMA, v) },
	}
	s[uint8(addr.TMA)] = ioSlot{
		read:  func(m *MMU) byte { return m.timer.Read(addr.TMA) },
		write: func(m *MMU, v byte) { m.timer.Write(addr.TMA, v) },
	}
	s[uint8(addr.TAC)] = ioSlot{
		read:  func(m *MMU) byte { return m.timer.Read(addr.TAC) },
		write: func(m *MMU, v byte) { m.timer.Write(addr.TAC, v) },
	}
	s[uint8(addr.IF)] = ioSlot{
		// the upper 3 bits are unused and always read back as 1.
		read:  func(m *MMU) byte { return m.memory[addr.IF] | 0xE0 },
		write: func(m *MMU, v byte) { m.memory[addr.IF] = v | 0xE0 },
	}
	s[uint8(addr.DMA)] = ioSlot{
		read: func(m *MMU) byte { return m.memory[addr.DMA] },
		write: func(m *MMU, v byte) {
			m.memory[addr.DMA] = v
			m.dma.start(uint16(v) << 8)
		},
	}

	// CGB registers; they are wired whatever the CGB mode flag says.
	s[uint8(addr.KEY1)] = ioSlot{
		read:  func(m *MMU) byte { return m.key1 | 0x7E },
		write: func(m *MMU, v byte) { m.key1 = (m.key1 & 0x80) | (v & 0x01) },
	}
	s[uint8(addr.VBK)] = ioSlot{
		read:  func(m *MMU) byte { return m.vbk | 0xFE },
		write: func(m *MMU, v byte) { m.vbk = v & 0x01 },
	}
	s[uint8(addr.BootROMDisable)] = ioSlot{
		read: func(m *MMU) byte { return m.memory[addr.BootROMDisable] },
		write: func(m *MMU, v byte) {
			m.memory[addr.BootROMDisable] = v
			if v != 0 {
				m.bootROMEnabled = false
			}
		},
	}
	s[uint8(addr.HDMA1)] = ioSlot{write: func(m *MMU, v byte) { m.hdma.srcHi = v }}
	s[uint8(addr.HDMA2)] = ioSlot{write: func(m *MMU, v byte) { m.hdma.srcLo = v }}
	s[uint8(addr.HDMA3)] = ioSlot{write: func(m *MMU, v byte) { m.hdma.dstHi = v }}
	s[uint8(addr.HDMA4)] = ioSlot{write: func(m *MMU, v byte) { m.hdma.dstLo = v }}
	s[uint8(addr.HDMA5)] = ioSlot{
		read: func(m *MMU) byte { return m.hdma.ReadHDMA5() },
		write: func(m *MMU, v byte) {
			m.hdma.WriteHDMA5(v, m.readRaw, m.writeVRAMBank0or1)
		},
	}
	s[uint8(addr.RP)] = ioSlot{
		// no IR peer is ever connected; reads as if nothing is detected.
		read: func(m *MMU) byte { return 0x3E },
	}
	s[uint8(addr.BGPI)] = ioSlot{
		read:  func(m *MMU) byte { return m.bgPalette.ReadIndex() },
		write: func(m *MMU, v byte) { m.bgPalette.WriteIndex(v) },
	}
	s[uint8(addr.BGPD)] = ioSlot{
		read:  func(m *MMU) byte { return m.bgPalette.ReadData() },
		write: func(m *MMU, v byte) { m.bgPalette.WriteData(v) },
	}
	s[uint8(addr.OBPI)] = ioSlot{
		read:  func(m *MMU) byte { return m.objPalette.ReadIndex() },
		write: func(m *MMU, v byte) { m.objPalette.WriteIndex(v) },
	}
	s[uint8(addr.OBPD)] = ioSlot{
		read:  func(m *MMU) byte { return m.objPalette.ReadData() },
		write: func(m *MMU, v byte) { m.objPalette.WriteData(v) },
	}
	s[uint8(addr.SVBK)] = ioSlot{
		read: func(m *MMU) byte { return m.svbk | 0xF8 },
		write: func(m *MMU, v byte) {
			bank := v & 0x07
			if bank == 0 {
				bank = 1
			}
			m.svbk = bank
		},
	}

	// APU registers all funnel into the audio package.
	for a := addr.AudioStart; a <= addr.AudioEnd; a++ {
		addrCopy := a
		s[uint8(addrCopy)] = ioSlot{
			read:  func(m *MMU) byte { return m.APU.ReadRegister(addrCopy) },
			write: func(m *MMU, v byte) { m.APU.WriteRegister(addrCopy, v) },
		}
	}
}

// BGPalette and ObjPalette expose CGB palette RAM for the PPU's color pipeline.
func (m *MMU) BGPalette() *CRAM  { return &m.bgPalette }
func (m *MMU) ObjPalette() *CRAM { return &m.objPalette }

// WRAMBank returns the currently selected high WRAM bank (1-7).
func (m *MMU) WRAMBank() uint8 {
	if m.svbk == 0 {
		return 1
	}
	return m.svbk
}

// VRAMBank returns the currently selected VRAM bank (0-1).
func (m *MMU) VRAMBank() uint8 { return m.vbk & 0x01 }

// ReadVRAMBank reads directly from a specific VRAM bank, bypassing VBK. Used
// by the PPU to fetch CGB tile attributes (always bank 1) independent of
// whatever the CPU currently has VBK pointed at.
func (m *MMU) ReadVRAMBank(bank uint8, address uint16) byte {
	return m.vram[bank&1][address-0x8000]
}

func (m *MMU) writeVRAMBank0or1(address uint16, value byte) {
	m.vram[m.VRAMBank()][address-0x8000] = value
}

// KEY1/DoubleSpeed expose the speed-switch state to the core runtime.
func (m *MMU) DoubleSpeed() bool        { return m.doubleSpeed }
func (m *MMU) SpeedSwitchArmed() bool   { return m.key1&0x01 != 0 }
func (m *MMU) PerformSpeedSwitch() {
	m.doubleSpeed = !m.doubleSpeed
	m.key1 &= ^uint8(0x01)
	if m.doubleSpeed {
		m.key1 |= 0x80
	} else {
		m.key1 &= ^uint8(0x80)
	}
}

// HDMAActive reports whether an H-Blank HDMA transfer is in flight.
func (m *MMU) HDMAActive() bool { return m.hdma.active && m.hdma.hblankMode }

// TickHBlankHDMA copies one 16-byte block; called by the PPU on entering H-Blank.
func (m *MMU) TickHBlankHDMA() {
	m.hdma.TickHBlank(m.readRaw, m.writeVRAMBank0or1)
}

// OAMDMAActive reports whether the CPU's bus access is currently restricted
// to HRAM by an in-flight OAM DMA transfer.
func (m *MMU) OAMDMAActive() bool { return m.dma.active }

// RequestInterrupt sets the interrupt flag (IF register) of the chosen interrupt to 1.
func (m *MMU) RequestInterrupt(interrupt addr.Interrupt) {
	interruptFlags := m.Read(addr.IF)

	var bitPos uint8
	switch interrupt {
	case addr.VBlankInterrupt:
		bitPos = 0
	case addr.LCDSTATInterrupt:
		bitPos = 1
	case addr.TimerInterrupt:
		bitPos = 2
	case addr.SerialInterrupt:
		bitPos = 3
	case addr.JoypadInterrupt:
		bitPos = 4
	default:
		panic(fmt.Sprintf("Unknown interrupt: 0x%02X", uint8(interrupt)))
	}

	newFlags := bit.Set(bitPos, interruptFlags)

	m.Write(addr.IF, newFlags)
}

func (m *MMU) ReadBit(index uint8, address uint16) bool {
	return bit.IsSet(index, m.Read(address))
}

func (m *MMU) SetBit(index uint8, address uint16, set bool) {
	value := m.Read(address)
	if set {
		value = bit.Set(index, value)
	} else {
		value = bit.Reset(index, value)
	}
	m.Write(address, value)
}

// Read performs a CPU-visible read, honoring OAM DMA's HRAM-only lockout.
func (m *MMU) Read(address uint16) byte {
	if m.dma.blocksCPUBusAccess(address) {
		return 0xFF
	}
	if m.vramBlockedForCPU(address) || m.oamBlockedForCPU(address) {
		return 0xFF
	}
	return m.readRaw(address)
}

// readRaw reads without the OAM DMA lockout; used internally by DMA/HDMA
// transfers, which must see through to the real memory.
func (m *MMU) readRaw(address uint16) byte {
	switch m.regionMap[address>>8] {
	case regionROM:
		inHeaderGap := address >= bootROMHeaderGapStart && address < bootROMHeaderGapEnd
		if m.bootROMEnabled && !inHeaderGap && address < uint16(len(m.bootROM)) {
			return m.bootROM[address]
		}
		if m.mbc == nil {
			slog.Warn("Reading from ROM with no cartridge", "addr", fmt.Sprintf("0x%04X", address))
			return 0xFF
		}
		return m.mbc.Read(address)
	case regionExtRAM:
		if m.mbc == nil {
			return 0xFF
		}
		return m.mbc.Read(address)
	case regionVRAM:
		return m.vram[m.VRAMBank()][address-0x8000]
	case regionWRAM:
		if address <= 0xCFFF {
			return m.wram[0][address-0xC000]
		}
		return m.wram[m.WRAMBank()][address-0xD000]
	case regionEcho:
		return m.readRaw(address - 0x2000)
	case regionOAM:
		if address <= 0xFE9F {
			return m.memory[address]
		}
		return 0xFF // unused area 0xFEA0-0xFEFF
	case regionIO:
		if slot := m.ioSlots[uint8(address)]; slot.read != nil {
			return slot.read(m)
		}
		return m.memory[address]
	default:
		panic(fmt.Sprintf("Attempted read at unmapped address: 0x%X", address))
	}
}

// Write performs a CPU-visible write, honoring OAM DMA's HRAM-only lockout.
func (m *MMU) Write(address uint16, value byte) {
	if m.dma.blocksCPUBusAccess(address) {
		return
	}
	if m.vramBlockedForCPU(address) || m.oamBlockedForCPU(address) {
		return
	}
	m.writeRaw(address, value)
}

func (m *MMU) writeRaw(address uint16, value byte) {
	switch m.regionMap[address>>8] {
	case regionROM:
		if m.mbc == nil {
			slog.Warn("Writing to ROM with no cartridge", "addr", fmt.Sprintf("0x%04X", address), "value", fmt.Sprintf("0x%02X", value))
			return
		}
		m.mbc.Write(address, value)
	case regionExtRAM:
		if m.mbc == nil {
			return
		}
		m.mbc.Write(address, value)
	case regionVRAM:
		m.vram[m.VRAMBank()][address-0x8000] = value
	case regionWRAM:
		if address <= 0xCFFF {
			m.wram[0][address-0xC000] = value
		} else {
			m.wram[m.WRAMBank()][address-0xD000] = value
		}
	case regionEcho:
		m.writeRaw(address-0x2000, value)
	case regionOAM:
		if address <= 0xFE9F {
			m.memory[address] = value
		}
	case regionIO:
		if slot := m.ioSlots[uint8(address)]; slot.write != nil {
			slot.write(m, value)
			return
		}
		m.memory[address] = value
	default:
		panic(fmt.Sprintf("Attempted write at unmapped address: 0x%X", address))
	}
}

// writeJoypad handles writes to P1 (0xFF00): only the selection bits (4-5)
// are writable, the rest of the register is derived from button state.
func (m *MMU) writeJoypad(value uint8) {
	m.memory[addr.P1] = value & 0b00110000
	m.updateJoypadRegister()
}

// updateJoypadRegister sets the joypad register (P1) according to selection bits
// and hardware (buttons) status.
//
// In real hw, this register is actually just a selector (bits 4-5) that control
// to which set of buttons the low bits (0-3) are mapped to. The selection
// bits are active-low.
//
// The mapping:
//   - if bit 4 is clear, bits 0-3 are mapped to the 4 d-pad directions
//   - if bit 5 is clear, bits 0-3 are mapped to A, B, Start, Select
//   - if both are clear, hw does an AND of both button sets
//   - if neither is clear, return 0x0F (high impedence state)
//
// Note that 1 -> button released, 0 -> button pressed.
// Bits 6-7 are unused, they always read as 1 on real hardware.
func (m *MMU) updateJoypadRegister() {
	p1 := m.memory[addr.P1]
	result := uint8(0b11000000) // Bits 6-7 are always read as 1
	result |= p1 & 0b00110000   // Keep selection bits 4-5

	selectDpad := !bit.IsSet(4, p1)
	selectButtons := !bit.IsSet(5, p1)

	switch {
	case selectButtons && !selectDpad:
		result |= m.joypadButtons & 0x0F
	case selectDpad && !selectButtons:
		result |= m.joypadDpad & 0x0F
	case selectButtons && selectDpad:
		result |= m.joypadButtons & m.joypadDpad & 0x0F
	default:
		result |= 0x0F
	}

	m.memory[addr.P1] = result
}

func (m *MMU) HandleKeyPress(key JoypadKey) {
	oldButtons := m.joypadButtons
	oldDpad := m.joypadDpad

	switch key {
	case JoypadRight:
		m.joypadDpad = bit.Reset(0, m.joypadDpad)
	case JoypadLeft:
		m.joypadDpad = bit.Reset(1, m.joypadDpad)
	case JoypadUp:
		m.joypadDpad = bit.Reset(2, m.joypadDpad)
	case JoypadDown:
		m.joypadDpad = bit.Reset(3, m.joypadDpad)
	case JoypadA:
		m.joypadButtons = bit.Reset(0, m.joypadButtons)
	case JoypadB:
		m.joypadButtons = bit.Reset(1, m.joypadButtons)
	case JoypadSelect:
		m.joypadButtons = bit.Reset(2, m.joypadButtons)
	case JoypadStart:
		m.joypadButtons = bit.Reset(3, m.joypadButtons)
	}

	buttonTransitions := oldButtons & ^m.joypadButtons
	dpadTransitions := oldDpad & ^m.joypadDpad
	if buttonTransitions|dpadTransitions != 0 {
		m.RequestInterrupt(addr.JoypadInterrupt)
	}

	m.updateJoypadRegister()
}

func (m *MMU) HandleKeyRelease(key JoypadKey) {
	switch key {
	case JoypadRight:
		m.joypadDpad = bit.Set(0, m.joypadDpad)
	case JoypadLeft:
		m.joypadDpad = bit.Set(1, m.joypadDpad)
	case JoypadUp:
		m.joypadDpad = bit.Set(2, m.joypadDpad)
	case JoypadDown:
		m.joypadDpad = bit.Set(3, m.joypadDpad)
	case JoypadA:
		m.joypadButtons = bit.Set(0, m.joypadButtons)
	case JoypadB:
		m.joypadButtons = bit.Set(1, m.joypadButtons)
	case JoypadSelect:
		m.joypadButtons = bit.Set(2, m.joypadButtons)
	case JoypadStart:
		m.joypadButtons = bit.Set(3, m.joypadButtons)
	}

	m.updateJoypadRegister()
}
