package apu

import "errors"

// SaveRegisters packs the externally visible APU state for the memory
// registry: sequencer mode, channel enables, length counters, and the
// audible positions of the free-running units.
func (a *APU) SaveRegisters() []byte {
	var mode uint8
	if a.mode5 {
		mode |= 0x80
	}
	if a.inhibitIRQ {
		mode |= 0x40
	}

	var enables uint8
	if a.pulse1.enabled {
		enables |= 0x01
	}
	if a.pulse2.enabled {
		enables |= 0x02
	}
	if a.triangle.enabled {
		enables |= 0x04
	}
	if a.noise.enabled {
		enables |= 0x08
	}

	return []byte{
		mode, enables,
		a.pulse1.length, a.pulse2.length, a.triangle.length, a.noise.length,
		a.triangle.seqPos,
		uint8(a.noise.shift), uint8(a.noise.shift >> 8),
		a.dmc.dac,
		uint8(a.dmc.currentAddress), uint8(a.dmc.currentAddress >> 8),
		uint8(a.dmc.bytesRemaining), uint8(a.dmc.bytesRemaining >> 8),
	}
}

// RestoreRegisters unpacks a SaveRegisters blob.
func (a *APU) RestoreRegisters(data []byte) error {
	if len(data) != 14 {
		return errors.New("apu register blob has wrong length")
	}
	a.mode5 = data[0]&0x80 != 0
	a.inhibitIRQ = data[0]&0x40 != 0
	a.pulse1.enabled = data[1]&0x01 != 0
	a.pulse2.enabled = data[1]&0x02 != 0
	a.triangle.enabled = data[1]&0x04 != 0
	a.noise.enabled = data[1]&0x08 != 0
	a.pulse1.length = data[2]
	a.pulse2.length = data[3]
	a.triangle.length = data[4]
	a.noise.length = data[5]
	a.triangle.seqPos = data[6] & 0x1F
	a.noise.shift = uint16(data[7]) | uint16(data[8])<<8
	a.dmc.dac = data[9] & 0x7F
	a.dmc.currentAddress = uint16(data[10]) | uint16(data[11])<<8
	a.dmc.bytesRemaining = uint16(data[12]) | uint16(data[13])<<8
	return nil
}
