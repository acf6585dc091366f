package cartridge

import "bytes"

// romSpec describes a synthetic iNES image for tests.
type romSpec struct {
	mapperID   uint8
	prgBanks   uint8 // 16KB units
	chrBanks   uint8 // 8KB units, 0 selects CHR RAM
	vertical   bool
	battery    bool
	trainer    []uint8
	fourScreen bool
	prgFill    func(i int) uint8
	chrFill    func(i int) uint8
}

// buildROM assembles an iNES stream from the description.
func buildROM(spec romSpec) *bytes.Reader {
	var buf bytes.Buffer

	flags6 := spec.mapperID << 4
	if spec.vertical {
		flags6 |= 0x01
	}
	if spec.battery {
		flags6 |= 0x02
	}
	if spec.trainer != nil {
		flags6 |= 0x04
	}
	if spec.fourScreen {
		flags6 |= 0x08
	}

	buf.WriteString("NES\x1A")
	buf.WriteByte(spec.prgBanks)
	buf.WriteByte(spec.chrBanks)
	buf.WriteByte(flags6)
	buf.WriteByte(spec.mapperID & 0xF0)
	buf.Write(make([]byte, 8))

	if spec.trainer != nil {
		t := make([]byte, 512)
		copy(t, spec.trainer)
		buf.Write(t)
	}

	prg := make([]byte, int(spec.prgBanks)*prgBankSize)
	for i := range prg {
		if spec.prgFill != nil {
			prg[i] = spec.prgFill(i)
		}
	}
	buf.Write(prg)

	chr := make([]byte, int(spec.chrBanks)*chrBankSize)
	for i := range chr {
		if spec.chrFill != nil {
			chr[i] = spec.chrFill(i)
		}
	}
	buf.Write(chr)

	return bytes.NewReader(buf.Bytes())
}

// bankTag returns a byte identifying the 8KB bank an offset falls in,
// useful for checking bank-switch routing.
func bankTag(i int) uint8 { return uint8(i / 0x2000) }
