package cartridge

import (
	"strings"
	"testing"
)

func TestLoadRejectsBadMagic(t *testing.T) {
	if _, err := LoadFromReader(strings.NewReader("XXXX not an ines file at all, padding padding")); err == nil {
		t.Error("expected error for bad magic")
	}
}

func TestLoadRejectsZeroPRG(t *testing.T) {
	rom := buildROM(romSpec{mapperID: 0, prgBanks: 0, chrBanks: 1})
	if _, err := LoadFromReader(rom); err == nil {
		t.Error("expected error for zero PRG size")
	}
}

func TestLoadRejectsUnsupportedMapper(t *testing.T) {
	rom := buildROM(romSpec{mapperID: 66, prgBanks: 1, chrBanks: 1})
	if _, err := LoadFromReader(rom); err == nil {
		t.Error("expected error for unsupported mapper")
	}
}

func TestLoadRejectsTruncatedPRG(t *testing.T) {
	full := buildROM(romSpec{mapperID: 0, prgBanks: 2, chrBanks: 1})
	data := make([]byte, full.Len()-prgBankSize)
	full.Read(data)
	if _, err := LoadFromReader(strings.NewReader(string(data[:len(data)]))); err == nil {
		t.Error("expected error for truncated PRG data")
	}
}

func TestHeaderFields(t *testing.T) {
	cases := []struct {
		name   string
		spec   romSpec
		mirror MirrorMode
		chrRAM bool
	}{
		{"horizontal", romSpec{mapperID: 0, prgBanks: 1, chrBanks: 1}, MirrorHorizontal, false},
		{"vertical", romSpec{mapperID: 0, prgBanks: 1, chrBanks: 1, vertical: true}, MirrorVertical, false},
		{"four screen wins", romSpec{mapperID: 0, prgBanks: 1, chrBanks: 1, vertical: true, fourScreen: true}, MirrorFourScreen, false},
		{"chr ram", romSpec{mapperID: 0, prgBanks: 1, chrBanks: 0}, MirrorHorizontal, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cart, err := LoadFromReader(buildROM(tc.spec))
			if err != nil {
				t.Fatalf("LoadFromReader: %v", err)
			}
			if got := cart.Mapper().Mirroring(); got != tc.mirror {
				t.Errorf("mirroring = %v, want %v", got, tc.mirror)
			}
			if cart.HasCHRRAM() != tc.chrRAM {
				t.Errorf("HasCHRRAM = %v, want %v", cart.HasCHRRAM(), tc.chrRAM)
			}
		})
	}
}

func TestTrainerLoadsAt7000(t *testing.T) {
	trainer := []uint8{0xDE, 0xAD, 0xBE, 0xEF}
	cart, err := LoadFromReader(buildROM(romSpec{mapperID: 0, prgBanks: 1, chrBanks: 1, trainer: trainer}))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	for i, want := range trainer {
		if got := cart.Mapper().CPURead(0x7000 + uint16(i)); got != want {
			t.Errorf("trainer[%d] at $%04X = %#02x, want %#02x", i, 0x7000+i, got, want)
		}
	}
}

func TestBatteryFlag(t *testing.T) {
	cart, err := LoadFromReader(buildROM(romSpec{mapperID: 0, prgBanks: 1, chrBanks: 1, battery: true}))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if !cart.HasBattery() {
		t.Error("battery flag not honoured")
	}
	if len(cart.SRAM()) != 0x2000 {
		t.Errorf("SRAM size = %d, want 8192", len(cart.SRAM()))
	}
}
