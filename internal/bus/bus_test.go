package bus

import (
	"testing"

	"nescore/internal/apu"
	"nescore/internal/cartridge"
	"nescore/internal/input"
	"nescore/internal/ppu"
)

// fakeClock satisfies Clock with adjustable state.
type fakeClock struct {
	time   int64
	cycles int64
	stalls []int64
}

func (f *fakeClock) Time() int64         { return f.time }
func (f *fakeClock) Cycles() int64       { return f.cycles }
func (f *fakeClock) Pause(cycles int64)  { f.stalls = append(f.stalls, cycles) }

// testMapper is a minimal in-memory mapper.
type testMapper struct {
	prg  [0x8000]uint8
	sram [0x2000]uint8
	chr  [0x2000]uint8
}

func (m *testMapper) CPURead(address uint16) uint8 {
	if address >= 0x8000 {
		return m.prg[address-0x8000]
	}
	if address >= 0x6000 {
		return m.sram[address-0x6000]
	}
	return 0
}

func (m *testMapper) CPUWrite(address uint16, value uint8) {
	if address >= 0x6000 && address < 0x8000 {
		m.sram[address-0x6000] = value
	}
}

func (m *testMapper) PPURead(address uint16) uint8         { return m.chr[address&0x1FFF] }
func (m *testMapper) PPUWrite(address uint16, value uint8) { m.chr[address&0x1FFF] = value }
func (m *testMapper) Mirroring() cartridge.MirrorMode      { return cartridge.MirrorHorizontal }
func (m *testMapper) OnPPUAddress(address uint16)          {}
func (m *testMapper) OnCPUClock(cycles int64)              {}

func newTestBus() (*Bus, *fakeClock, *testMapper) {
	mapper := &testMapper{}
	p := ppu.New(mapper, ppu.ParamsFor(cartridge.NTSC))
	a := apu.New(apu.ParamsFor(cartridge.NTSC))
	b := New(p, a, mapper, input.NewPorts())
	clock := &fakeClock{}
	b.SetClock(clock)
	return b, clock, mapper
}

func TestRAMMirroring(t *testing.T) {
	b, _, _ := newTestBus()
	b.Write(0x0000, 0x11)
	for _, mirror := range []uint16{0x0800, 0x1000, 0x1800} {
		if got := b.Read(mirror); got != 0x11 {
			t.Errorf("RAM mirror $%04X = %#02x, want 0x11", mirror, got)
		}
	}
	b.Write(0x1FFF, 0x22)
	if got := b.Read(0x07FF); got != 0x22 {
		t.Errorf("RAM mirror write-through = %#02x, want 0x22", got)
	}
}

func TestPPURegisterMirroring(t *testing.T) {
	b, _, _ := newTestBus()
	// $2006/$2007 through a high mirror address.
	b.Write(0x3FF6, 0x21)
	b.Write(0x3FF6, 0x00)
	b.Write(0x3FF7, 0x42)
	b.Write(0x2006, 0x21)
	b.Write(0x2006, 0x00)
	b.Read(0x2007) // prime buffer
	if got := b.Read(0x2007); got != 0x42 {
		t.Errorf("nametable readback via mirror = %#02x, want 0x42", got)
	}
}

func TestOpenBusRegions(t *testing.T) {
	b, _, _ := newTestBus()
	if got := b.Read(0x4018); got != 0x40 {
		t.Errorf("$4018 = %#02x, want 0x40 (I/O open bus)", got)
	}
	if got := b.Read(0x5123); got != 0x00 {
		t.Errorf("$5123 = %#02x, want 0x00 (expansion open bus)", got)
	}
}

func TestMapperRouting(t *testing.T) {
	b, _, m := newTestBus()
	m.prg[0x1234] = 0x99
	if got := b.Read(0x9234); got != 0x99 {
		t.Errorf("PRG read = %#02x, want 0x99", got)
	}
	b.Write(0x6100, 0x55)
	if got := b.Read(0x6100); got != 0x55 {
		t.Errorf("work RAM readback = %#02x, want 0x55", got)
	}
}

func TestOAMDMACopiesPageAndStalls(t *testing.T) {
	b, clock, _ := newTestBus()
	for i := uint16(0); i < 256; i++ {
		b.Write(0x0200+i, uint8(i))
	}
	b.Write(0x2003, 0x00) // OAM address 0
	clock.cycles = 100    // even
	b.Write(0x4014, 0x02)

	if len(clock.stalls) != 1 || clock.stalls[0] != 513 {
		t.Fatalf("stalls = %v, want [513]", clock.stalls)
	}

	b.Write(0x2003, 0x40)
	if got := b.Read(0x2004); got != 0x40 {
		t.Errorf("OAM[0x40] = %#02x, want 0x40", got)
	}
}

func TestOAMDMAOddCycleStallsOneMore(t *testing.T) {
	b, clock, _ := newTestBus()
	clock.cycles = 101
	b.Write(0x4014, 0x02)
	if len(clock.stalls) != 1 || clock.stalls[0] != 514 {
		t.Errorf("stalls = %v, want [514]", clock.stalls)
	}
}

func TestControllerPortReads(t *testing.T) {
	b, _, _ := newTestBus()
	b.Write(0x4016, 1)
	b.Write(0x4016, 0)
	// No source attached: eight 0 bits, high bits from open bus.
	if got := b.Read(0x4016); got != 0x40 {
		t.Errorf("$4016 = %#02x, want 0x40", got)
	}
}

func TestAPUStatusRouting(t *testing.T) {
	b, _, _ := newTestBus()
	b.Write(0x4015, 0x01)
	b.Write(0x4003, 0x00)
	if got := b.Read(0x4015); got&0x01 == 0 {
		t.Error("$4015 read did not reach the APU")
	}
}

func TestDMAReadSkipsRegisters(t *testing.T) {
	b, _, m := newTestBus()
	m.prg[0] = 0xAB
	if got := b.DMARead(0x8000); got != 0xAB {
		t.Errorf("DMARead PRG = %#02x, want 0xAB", got)
	}
	if got := b.DMARead(0x2002); got != 0x00 {
		t.Errorf("DMARead register space = %#02x, want open bus", got)
	}
}
