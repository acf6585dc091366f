package ppu

// ReadRegister services a CPU read of $2000-$2007 (mirrored through
// $3FFF). The caller must have caught the PPU up to the access time.
func (p *PPU) ReadRegister(address uint16) uint8 {
	switch address & 0x2007 {
	case 0x2002:
		return p.readStatus()
	case 0x2004:
		return p.readOAMData()
	case 0x2007:
		return p.readData()
	}
	// Write-only registers read back nothing useful.
	return 0
}

// WriteRegister services a CPU write of $2000-$2007.
func (p *PPU) WriteRegister(address uint16, value uint8) {
	switch address & 0x2007 {
	case 0x2000:
		p.writeControl(value)
	case 0x2001:
		p.writeMask(value)
	case 0x2003:
		p.oamAddr = value
	case 0x2004:
		p.writeOAMData(value)
	case 0x2005:
		p.writeScroll(value)
	case 0x2006:
		p.writeAddress(value)
	case 0x2007:
		p.writeData(value)
	}
}

func (p *PPU) writeControl(value uint8) {
	wasEnabled := p.nmiEnable

	p.t = p.t&^0x0C00 | uint16(value&0x03)<<10
	if value&0x04 != 0 {
		p.incrementStride = 32
	} else {
		p.incrementStride = 1
	}
	if value&0x08 != 0 {
		p.spriteTableBase = 0x1000
	} else {
		p.spriteTableBase = 0x0000
	}
	if value&0x10 != 0 {
		p.bgTableBase = 0x1000
	} else {
		p.bgTableBase = 0x0000
	}
	p.tallSprites = value&0x20 != 0
	p.nmiEnable = value&0x80 != 0

	// Raising NMI-enable while VBlank is already set produces an
	// immediate NMI edge.
	if !wasEnabled && p.nmiEnable && p.vblank && p.nmi != nil {
		p.nmi(p.time)
	}
}

func (p *PPU) writeMask(value uint8) {
	p.greyscale = value&0x01 != 0
	p.clipBG = value&0x02 == 0
	p.clipSpr = value&0x04 == 0
	p.showBG = value&0x08 != 0
	p.showSpr = value&0x10 != 0
	p.tint = value >> 5
}

// readStatus returns the status flags, clears VBlank and resets the write
// toggle. Reading on the exact dot VBlank was set suppresses the flag and
// the NMI for that frame.
func (p *PPU) readStatus() uint8 {
	var status uint8
	if p.spriteOverflow {
		status |= 0x20
	}
	if p.sprite0Hit {
		status |= 0x40
	}
	if p.vblank {
		if p.time == p.vblankSetAt {
			// Read raced the flag being set: the flag is missed and
			// the NMI for this frame is suppressed.
			if p.nmiCancel != nil {
				p.nmiCancel()
			}
		} else {
			status |= 0x80
		}
	}
	p.vblank = false
	p.w = false
	return status
}

func (p *PPU) readOAMData() uint8 {
	// During rendering the OAM port returns whatever the sprite
	// evaluation hardware is touching; model it as open data.
	if p.renderingEnabled() && (p.scanline < p.params.VisibleLines) {
		return 0xFF
	}
	return p.oam[p.oamAddr]
}

func (p *PPU) writeOAMData(value uint8) {
	p.oam[p.oamAddr] = value
	p.oamAddr++
}

// WriteOAM stores one byte through the DMA port, advancing the OAM
// address exactly as $2004 writes do.
func (p *PPU) WriteOAM(value uint8) {
	p.writeOAMData(value)
}

func (p *PPU) writeScroll(value uint8) {
	if !p.w {
		p.t = p.t&^0x001F | uint16(value)>>3
		p.fineX = value & 0x07
	} else {
		p.t = p.t&^0x7000 | uint16(value&0x07)<<12
		p.t = p.t&^0x03E0 | uint16(value&0xF8)<<2
	}
	p.w = !p.w
}

func (p *PPU) writeAddress(value uint8) {
	if !p.w {
		// Bit 14 is cleared by the first write.
		p.t = p.t&0x00FF | uint16(value&0x3F)<<8
	} else {
		p.t = p.t&0x7F00 | uint16(value)
		p.v = p.t
		p.mem.OnPPUAddress(p.v & 0x3FFF)
	}
	p.w = !p.w
}

// readData reads through the $2007 port. Non-palette reads return the
// internal buffer and refill it from the current address; palette reads
// bypass the buffer but refill it from the underlying nametable.
func (p *PPU) readData() uint8 {
	address := p.v & 0x3FFF
	var value uint8
	if address >= 0x3F00 {
		value = p.readPaletteIndex(address & 0x1F)
		if p.greyscale {
			value &= 0x30
		}
		p.mem.OnPPUAddress(address)
		p.readBuffer = p.vram[p.nametableIndex(address&0x2FFF)]
	} else {
		value = p.readBuffer
		p.readBuffer = p.read(address)
	}
	p.incrementAddress()
	return value
}

func (p *PPU) writeData(value uint8) {
	p.writeBus(p.v&0x3FFF, value)
	p.incrementAddress()
}

// incrementAddress applies the $2007 post-access increment. During
// rendering the address circuitry is busy scrolling, so the access
// perturbs the scroll counters instead.
func (p *PPU) incrementAddress() {
	if p.renderingEnabled() &&
		(p.scanline < p.params.VisibleLines || p.scanline == -1) {
		p.incrementCoarseX()
		p.incrementY()
		return
	}
	p.v = (p.v + p.incrementStride) & 0x7FFF
}
