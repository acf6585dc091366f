package ppu

import "errors"

// SaveRegisters packs the register-file state the memory registry
// snapshots: the loopy registers, control and mask latches, status flags
// and the read buffer.
func (p *PPU) SaveRegisters() []byte {
	var ctrl uint8
	if p.incrementStride == 32 {
		ctrl |= 0x04
	}
	if p.spriteTableBase == 0x1000 {
		ctrl |= 0x08
	}
	if p.bgTableBase == 0x1000 {
		ctrl |= 0x10
	}
	if p.tallSprites {
		ctrl |= 0x20
	}
	if p.nmiEnable {
		ctrl |= 0x80
	}

	var mask uint8
	if p.greyscale {
		mask |= 0x01
	}
	if !p.clipBG {
		mask |= 0x02
	}
	if !p.clipSpr {
		mask |= 0x04
	}
	if p.showBG {
		mask |= 0x08
	}
	if p.showSpr {
		mask |= 0x10
	}
	mask |= p.tint << 5

	var flags uint8
	if p.w {
		flags |= 0x01
	}
	if p.vblank {
		flags |= 0x02
	}
	if p.sprite0Hit {
		flags |= 0x04
	}
	if p.spriteOverflow {
		flags |= 0x08
	}
	if p.odd {
		flags |= 0x10
	}

	return []byte{
		uint8(p.v), uint8(p.v >> 8),
		uint8(p.t), uint8(p.t >> 8),
		p.fineX, ctrl, mask, flags,
		p.oamAddr, p.readBuffer,
	}
}

// RestoreRegisters unpacks a SaveRegisters blob.
func (p *PPU) RestoreRegisters(data []byte) error {
	if len(data) != 10 {
		return errors.New("ppu register blob has wrong length")
	}
	p.v = uint16(data[0]) | uint16(data[1])<<8
	p.t = uint16(data[2]) | uint16(data[3])<<8
	p.fineX = data[4]

	// Control and mask route through the register decoders so the
	// derived fields stay consistent; the decoders touch T's nametable
	// bits, so reapply T afterwards.
	t := p.t
	nmi := p.nmi
	p.nmi = nil // no NMI edge from restoring state
	p.writeControl(data[5])
	p.nmi = nmi
	p.writeMask(data[6])
	p.t = t

	flags := data[7]
	p.w = flags&0x01 != 0
	p.vblank = flags&0x02 != 0
	p.sprite0Hit = flags&0x04 != 0
	p.spriteOverflow = flags&0x08 != 0
	p.odd = flags&0x10 != 0

	p.oamAddr = data[8]
	p.readBuffer = data[9]
	return nil
}
