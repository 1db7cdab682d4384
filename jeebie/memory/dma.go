package memory

// oamDMA models the OAM DMA transfer (writes to FF46) as a ticking state
// machine instead of an instantaneous copy: real hardware takes 160 M-cycles
// to move the 160 source bytes into OAM, and the CPU can only access HRAM
// while a transfer is in flight.
type oamDMA struct {
	active    bool
	source    uint16
	bytesDone int
}

func (d *oamDMA) start(source uint16) {
	d.active = true
	d.source = source
	d.bytesDone = 0
}

// tick advances the transfer by one M-cycle, copying a single byte via the
// supplied read/write callbacks (so it can see through MBC/echo mapping the
// same way a regular CPU read would).
func (d *oamDMA) tick(read func(uint16) byte, write func(uint16, byte)) {
	if !d.active {
		return
	}
	write(0xFE00+uint16(d.bytesDone), read(d.source+uint16(d.bytesDone)))
	d.bytesDone++
	if d.bytesDone >= 160 {
		d.active = false
	}
}

// blocksCPUBusAccess reports whether the CPU may not touch the given region
// while a DMA transfer is in progress. Real hardware only still permits HRAM.
func (d *oamDMA) blocksCPUBusAccess(address uint16) bool {
	return d.active && address < 0xFF80
}
