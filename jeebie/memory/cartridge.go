package memory

import "github.com/jeebie-cgb/jeebie/jeebie/util"

const titleLength = 11

const (
	entryPointAddress       = 0x100
	logoAddress             = 0x104
	titleAddress            = 0x134
	manufacturerCodeAddress = 0x13F
	cgbFlagAddress          = 0x143
	newLicenseCodeAddress   = 0x144
	sgbFlagAddress          = 0x146
	cartridgeTypeAddress    = 0x147
	romSizeAddress          = 0x148
	ramSizeAddress          = 0x149
	destinationCodeAddress  = 0x14A
	oldLicenseCodeAddress   = 0x14B
	versionNumberAddress    = 0x14C
	headerChecksumAddress   = 0x14D
	globalChecksumAddress   = 0x14E
)

// MBCType identifies which memory bank controller a cartridge uses.
type MBCType uint8

const (
	NoMBCType MBCType = iota
	MBC1Type
	MBC1MultiType
	MBC2Type
	MBC3Type
	MBC5Type
	MBCUnknownType
)

// CGBSupport describes how strongly a cartridge opts into Color hardware.
type CGBSupport uint8

const (
	// CGBUnsupported cartridges run in DMG compatibility mode.
	CGBUnsupported CGBSupport = iota
	// CGBEnhanced cartridges run on DMG too, but use CGB features when present.
	CGBEnhanced
	// CGBOnly cartridges refuse to boot on a DMG.
	CGBOnly
)

type Cartridge struct {
	data           []byte
	title          string
	headerChecksum uint16
	globalChecksum uint16
	version        uint8
	cartType       uint8
	romSizeCode    uint8
	ramSizeCode    uint8

	mbcType      MBCType
	hasBattery   bool
	hasRTC       bool
	hasRumble    bool
	romBankCount uint16
	ramBankCount uint8
	cgb          CGBSupport
}

// NewCartridge creates an empty cartridge, useful only for debugging purposes.
func NewCartridge() *Cartridge {
	return &Cartridge{
		data:         make([]byte, 0x10000),
		mbcType:      NoMBCType,
		romBankCount: 2,
	}
}

// NewCartridgeWithData initializes a new Cartridge from a slice of bytes.
func NewCartridgeWithData(bytes []byte) *Cartridge {
	titleBytes := bytes[titleAddress : titleAddress+titleLength]

	cart := &Cartridge{
		data:           make([]byte, len(bytes)),
		title:          cleanGameboyTitle(titleBytes),
		headerChecksum: util.CombineBytes(bytes[headerChecksumAddress+1], bytes[headerChecksumAddress]),
		globalChecksum: util.CombineBytes(bytes[globalChecksumAddress+1], bytes[globalChecksumAddress]),
		version:        bytes[versionNumberAddress],
		cartType:       bytes[cartridgeTypeAddress],
		romSizeCode:    bytes[romSizeAddress],
		ramSizeCode:    bytes[ramSizeAddress],
	}

	copy(cart.data, bytes)

	cart.romBankCount = romBankCountForCode(cart.romSizeCode)
	cart.ramBankCount = ramBankCountForCode(cart.ramSizeCode)
	cart.mbcType, cart.hasBattery, cart.hasRTC, cart.hasRumble = decodeCartType(cart.cartType)
	cart.cgb = decodeCGBFlag(bytes[cgbFlagAddress])

	// MBC2 has its own built-in 512x4bit RAM, never external RAM banks.
	if cart.mbcType == MBC2Type {
		cart.ramBankCount = 0
	}

	return cart
}

// romBankCountForCode maps the 0x148 header byte to a ROM bank count.
// Standard codes (0x00-0x08) double starting from 2; codes above that are
// a handful of oddball sizes not used by licensed titles and are treated
// as unknown and reported as 0.
func romBankCountForCode(code uint8) uint16 {
	if code <= 0x08 {
		return 2 << code
	}
	return 0
}

// ramBankCountForCode maps the 0x149 header byte to a count of 8KB RAM banks.
func ramBankCountForCode(code uint8) uint8 {
	switch code {
	case 0x00:
		return 0
	case 0x01:
		return 1 // unofficial 2KB bank, treated as a single partial bank
	case 0x02:
		return 1
	case 0x03:
		return 4
	case 0x04:
		return 16
	case 0x05:
		return 8
	default:
		return 0
	}
}

// decodeCartType maps the 0x147 cartridge type byte to an MBC family plus
// the auxiliary hardware (battery/RTC/rumble) that family byte implies.
func decodeCartType(code uint8) (mbc MBCType, battery, rtc, rumble bool) {
	switch code {
	case 0x00:
		return NoMBCType, false, false, false
	case 0x08:
		return NoMBCType, false, false, false
	case 0x09:
		return NoMBCType, true, false, false
	case 0x01, 0x02:
		return MBC1Type, false, false, false
	case 0x03:
		return MBC1Type, true, false, false
	case 0x05:
		return MBC2Type, false, false, false
	case 0x06:
		return MBC2Type, true, false, false
	case 0x0F:
		return MBC3Type, true, true, false
	case 0x10:
		return MBC3Type, true, true, false
	case 0x11, 0x12:
		return MBC3Type, false, false, false
	case 0x13:
		return MBC3Type, true, false, false
	case 0x19, 0x1A:
		return MBC5Type, false, false, false
	case 0x1B:
		return MBC5Type, true, false, false
	case 0x1C, 0x1D:
		return MBC5Type, false, false, true
	case 0x1E:
		return MBC5Type, true, false, true
	default:
		return MBCUnknownType, false, false, false
	}
}

func decodeCGBFlag(value uint8) CGBSupport {
	switch value {
	case 0xC0:
		return CGBOnly
	case 0x80:
		return CGBEnhanced
	default:
		return CGBUnsupported
	}
}

// Title returns the cleaned up game title read from the cartridge header.
func (c *Cartridge) Title() string { return c.title }

// CGBSupport reports the level of Color hardware support this cartridge declares.
func (c *Cartridge) CGBSupport() CGBSupport { return c.cgb }

// HasBattery reports whether the cartridge's RAM (and RTC, if present) survives power-off.
func (c *Cartridge) HasBattery() bool { return c.hasBattery }

// ReadByte reads a byte at the specified address. Does not check bounds, so the caller must make sure the
// address is valid for the cartridge.
func (c Cartridge) ReadByte(addr uint16) uint8 {
	return c.data[addr]
}

// WriteByte attempts a write to the specified address. Writing to a cartridge has sense if the cartridge
// has extra RAM or for some special operations, like switching ROM banks.
func (c Cartridge) WriteByte(addr uint16, value uint8) uint8 {
	return c.data[addr]
}
