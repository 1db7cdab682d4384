package memory

import _ "embed"

// bootROMCGB is a stand-in for Nintendo's CGB boot ROM. Nintendo's firmware
// is copyrighted and is not redistributed here; this asset is sized and
// positioned like the real thing (0x000-0x0FF, then 0x200-0x8FF, with
// 0x100-0x1FF always passed through to the cartridge header) but its bytes
// are a placeholder, not working boot-up code. See DESIGN.md for the
// overlay-behavior limitation this implies.
//
//go:embed assets/bootrom_cgb.bin
var bootROMCGB []byte

// bootROMHeaderGapStart and bootROMHeaderGapEnd mark the cartridge-header
// window the real boot ROM also lets pass through unmodified while it is
// still mapped, so early header reads always see cartridge data.
const (
	bootROMHeaderGapStart = 0x0100
	bootROMHeaderGapEnd   = 0x0200
)
