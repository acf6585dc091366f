package cartridge

// Mapper002 implements UxROM (mapper 2): a single write-only PRG bank
// register at $8000-$FFFF selecting the 16KB bank at $8000, with the last
// bank fixed at $C000. CHR is always 8KB RAM or ROM with no switching.
type Mapper002 struct {
	cart    *Cartridge
	prgBank uint8
}

// NewMapper002 creates a UxROM mapper.
func NewMapper002(cart *Cartridge) *Mapper002 {
	return &Mapper002{cart: cart}
}

func (m *Mapper002) CPURead(address uint16) uint8 {
	switch {
	case address >= 0xC000:
		return m.cart.readPRGBanked(len(m.cart.prgROM)/prgBankSize-1, prgBankSize, address&0x3FFF)
	case address >= 0x8000:
		return m.cart.readPRGBanked(int(m.prgBank), prgBankSize, address&0x3FFF)
	case address >= 0x6000:
		return m.cart.sram[address-0x6000]
	}
	return 0
}

func (m *Mapper002) CPUWrite(address uint16, value uint8) {
	switch {
	case address >= 0x8000:
		m.prgBank = value & 0x0F
	case address >= 0x6000:
		m.cart.sram[address-0x6000] = value
	}
}

func (m *Mapper002) PPURead(address uint16) uint8 {
	return m.cart.readCHRBanked(0, chrBankSize, address&0x1FFF)
}

func (m *Mapper002) PPUWrite(address uint16, value uint8) {
	m.cart.writeCHRBanked(0, chrBankSize, address&0x1FFF, value)
}

func (m *Mapper002) Mirroring() MirrorMode { return m.cart.mirror }

func (m *Mapper002) OnPPUAddress(address uint16) {}

func (m *Mapper002) OnCPUClock(cycles int64) {}
