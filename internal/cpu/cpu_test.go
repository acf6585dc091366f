package cpu

import "testing"

// mockBus implements Bus over a flat 64KB array and records accesses.
type mockBus struct {
	data   [0x10000]uint8
	reads  []uint16
	writes []uint16
}

func (m *mockBus) Read(address uint16) uint8 {
	m.reads = append(m.reads, address)
	return m.data[address]
}

func (m *mockBus) Write(address uint16, value uint8) {
	m.writes = append(m.writes, address)
	m.data[address] = value
}

func (m *mockBus) load(address uint16, program ...uint8) {
	copy(m.data[address:], program)
}

// newTestCPU builds a CPU with the reset vector pointing at $8000 and the
// reset sequence already run. Divider 1 keeps master time equal to cycles.
func newTestCPU(program ...uint8) (*CPU, *mockBus) {
	bus := &mockBus{}
	bus.data[resetVector] = 0x00
	bus.data[resetVector+1] = 0x80
	bus.load(0x8000, program...)
	c := New(bus, 1)
	c.Reset()
	return c, bus
}

// run executes n instructions.
func run(c *CPU, n int) {
	for i := 0; i < n; i++ {
		c.step()
	}
}

func TestResetSequence(t *testing.T) {
	c, _ := newTestCPU()
	if c.PC != 0x8000 {
		t.Errorf("PC = %#04x, want 0x8000", c.PC)
	}
	if !c.I {
		t.Error("I flag must be set after reset")
	}
	if c.Cycles() != 7 {
		t.Errorf("reset consumed %d cycles, want 7", c.Cycles())
	}
}

func TestLDAImmediateFlags(t *testing.T) {
	cases := []struct {
		value   uint8
		z, n    bool
	}{
		{0x00, true, false},
		{0x42, false, false},
		{0x80, false, true},
	}
	for _, tc := range cases {
		c, _ := newTestCPU(0xA9, tc.value)
		run(c, 1)
		if c.A != tc.value || c.Z != tc.z || c.N != tc.n {
			t.Errorf("LDA #%#02x: A=%#02x Z=%v N=%v, want Z=%v N=%v",
				tc.value, c.A, c.Z, c.N, tc.z, tc.n)
		}
	}
}

func TestADCOverflowAndCarry(t *testing.T) {
	cases := []struct {
		a, operand uint8
		carryIn    bool
		want       uint8
		c, v       bool
	}{
		{0x50, 0x10, false, 0x60, false, false},
		{0x50, 0x50, false, 0xA0, false, true},
		{0xD0, 0x90, false, 0x60, true, true},
		{0xFF, 0x01, false, 0x00, true, false},
		{0x00, 0x00, true, 0x01, false, false},
	}
	for _, tc := range cases {
		c, _ := newTestCPU(0x69, tc.operand)
		c.A = tc.a
		c.C = tc.carryIn
		run(c, 1)
		if c.A != tc.want || c.C != tc.c || c.V != tc.v {
			t.Errorf("ADC %#02x+%#02x: A=%#02x C=%v V=%v, want A=%#02x C=%v V=%v",
				tc.a, tc.operand, c.A, c.C, c.V, tc.want, tc.c, tc.v)
		}
	}
}

func TestSBCViaComplement(t *testing.T) {
	c, _ := newTestCPU(0xE9, 0x10)
	c.A = 0x50
	c.C = true
	run(c, 1)
	if c.A != 0x40 || !c.C {
		t.Errorf("SBC: A=%#02x C=%v, want A=0x40 C=true", c.A, c.C)
	}
}

func TestInstructionCycleCounts(t *testing.T) {
	cases := []struct {
		name    string
		program []uint8
		setup   func(*CPU, *mockBus)
		cycles  int64
	}{
		{"LDA imm", []uint8{0xA9, 0x01}, nil, 2},
		{"LDA zp", []uint8{0xA5, 0x10}, nil, 3},
		{"LDA zp,X", []uint8{0xB5, 0x10}, nil, 4},
		{"LDA abs", []uint8{0xAD, 0x00, 0x02}, nil, 4},
		{"LDA abs,X same page", []uint8{0xBD, 0x00, 0x02}, nil, 4},
		{"LDA abs,X page cross", []uint8{0xBD, 0xFF, 0x02},
			func(c *CPU, b *mockBus) { c.X = 1 }, 5},
		{"LDA (zp,X)", []uint8{0xA1, 0x10}, nil, 6},
		{"LDA (zp),Y same page", []uint8{0xB1, 0x10}, nil, 5},
		{"LDA (zp),Y page cross", []uint8{0xB1, 0x10},
			func(c *CPU, b *mockBus) {
				b.data[0x10] = 0xFF
				b.data[0x11] = 0x02
				c.Y = 1
			}, 6},
		{"STA abs,X never shorter", []uint8{0x9D, 0x00, 0x02}, nil, 5},
		{"ASL abs,X always 7", []uint8{0x1E, 0x00, 0x02}, nil, 7},
		{"INC zp", []uint8{0xE6, 0x10}, nil, 5},
		{"JMP abs", []uint8{0x4C, 0x00, 0x90}, nil, 3},
		{"JMP ind", []uint8{0x6C, 0x00, 0x02}, nil, 5},
		{"JSR", []uint8{0x20, 0x00, 0x90}, nil, 6},
		{"PHA", []uint8{0x48}, nil, 3},
		{"PLA", []uint8{0x68}, nil, 4},
		{"NOP", []uint8{0xEA}, nil, 2},
		{"BRK", []uint8{0x00}, nil, 7},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, b := newTestCPU(tc.program...)
			if tc.setup != nil {
				tc.setup(c, b)
			}
			before := c.Cycles()
			run(c, 1)
			if got := c.Cycles() - before; got != tc.cycles {
				t.Errorf("consumed %d cycles, want %d", got, tc.cycles)
			}
		})
	}
}

func TestBranchCycles(t *testing.T) {
	// BNE not taken: 2 cycles.
	c, _ := newTestCPU(0xD0, 0x10)
	c.Z = true
	before := c.Cycles()
	run(c, 1)
	if got := c.Cycles() - before; got != 2 {
		t.Errorf("branch not taken: %d cycles, want 2", got)
	}

	// Taken, same page: 3.
	c, _ = newTestCPU(0xD0, 0x10)
	c.Z = false
	before = c.Cycles()
	run(c, 1)
	if got := c.Cycles() - before; got != 3 {
		t.Errorf("branch taken: %d cycles, want 3", got)
	}
	if c.PC != 0x8012 {
		t.Errorf("PC = %#04x, want 0x8012", c.PC)
	}

	// Taken across a page: 4.
	c, b := newTestCPU()
	b.load(0x80F0, 0xD0, 0x20)
	c.PC = 0x80F0
	c.Z = false
	before = c.Cycles()
	run(c, 1)
	if got := c.Cycles() - before; got != 4 {
		t.Errorf("branch across page: %d cycles, want 4", got)
	}
}

func TestRMWWritesTwice(t *testing.T) {
	c, b := newTestCPU(0xE6, 0x10) // INC $10
	b.data[0x10] = 5
	run(c, 1)
	if b.data[0x10] != 6 {
		t.Errorf("INC result = %d, want 6", b.data[0x10])
	}
	// Old value write-back then new value, on consecutive cycles.
	if len(b.writes) != 2 || b.writes[0] != 0x10 || b.writes[1] != 0x10 {
		t.Errorf("writes = %v, want [0x10 0x10]", b.writes)
	}
}

func TestIndexedWritePhantomRead(t *testing.T) {
	c, b := newTestCPU(0x9D, 0xFF, 0x02) // STA $02FF,X
	c.X = 1
	c.A = 0x77
	run(c, 1)

	// The partially indexed address $0200 is read before $0300 is written.
	var sawPhantom bool
	for _, addr := range b.reads {
		if addr == 0x0200 {
			sawPhantom = true
		}
	}
	if !sawPhantom {
		t.Error("missing phantom read of the unfixed page")
	}
	if b.data[0x0300] != 0x77 {
		t.Error("store landed at the wrong address")
	}
}

func TestJMPIndirectPageWrapBug(t *testing.T) {
	c, b := newTestCPU(0x6C, 0xFF, 0x02)
	b.data[0x02FF] = 0x34
	b.data[0x0300] = 0x99 // must NOT be used
	b.data[0x0200] = 0x12
	run(c, 1)
	if c.PC != 0x1234 {
		t.Errorf("PC = %#04x, want 0x1234 (page-wrap bug)", c.PC)
	}
}

func TestStackRoundTrip(t *testing.T) {
	c, _ := newTestCPU(
		0x20, 0x10, 0x80, // JSR $8010
	)
	c.bus.(*mockBus).load(0x8010, 0x60) // RTS
	run(c, 2)
	if c.PC != 0x8003 {
		t.Errorf("PC after JSR/RTS = %#04x, want 0x8003", c.PC)
	}
}

func TestUnknownOpcodeHalts(t *testing.T) {
	c, _ := newTestCPU(0x02) // JAM
	var snap Snapshot
	called := 0
	c.SetPanicHandler(func(s Snapshot) {
		snap = s
		called++
	})
	run(c, 3)
	if !c.Halted() {
		t.Fatal("CPU should be halted")
	}
	if called != 1 {
		t.Errorf("panic handler called %d times, want 1", called)
	}
	if snap.PC != 0x8000 {
		t.Errorf("snapshot PC = %#04x, want 0x8000", snap.PC)
	}
	// Execute must make no further progress.
	cycles := c.Cycles()
	c.Execute(c.Time() + 100)
	if c.Cycles() != cycles {
		t.Error("halted CPU consumed cycles")
	}
}

func TestNMITakenAtInstructionBoundary(t *testing.T) {
	c, b := newTestCPU(0xEA, 0xEA, 0xEA)
	b.data[nmiVector] = 0x00
	b.data[nmiVector+1] = 0x90

	c.NMIPulse(c.Time() - 3)
	run(c, 1) // interrupt sequence replaces the decode
	if c.PC != 0x9000 {
		t.Errorf("PC = %#04x, want NMI vector target 0x9000", c.PC)
	}
	if !c.I {
		t.Error("I must be set by the interrupt sequence")
	}
}

func TestNMIEdgeWithinTwoCyclesWaits(t *testing.T) {
	c, b := newTestCPU(0xEA, 0xEA, 0xEA)
	b.data[nmiVector] = 0x00
	b.data[nmiVector+1] = 0x90

	// Edge on the boundary itself: too late for this sample point.
	c.NMIPulse(c.Time())
	run(c, 1)
	if c.PC == 0x9000 {
		t.Fatal("NMI recognised too early")
	}
	run(c, 1) // recognised at the next boundary
	if c.PC != 0x9000 {
		t.Errorf("PC = %#04x, want 0x9000", c.PC)
	}
}

func TestIRQMaskedByIFlag(t *testing.T) {
	c, b := newTestCPU(0xEA, 0xEA)
	b.data[irqVector] = 0x00
	b.data[irqVector+1] = 0xA0

	c.AssertIRQ(IRQFrame, c.Time()-3)
	run(c, 2) // I is set after reset: both NOPs execute
	if c.PC != 0x8002 {
		t.Errorf("PC = %#04x, want 0x8002 (IRQ masked)", c.PC)
	}
}

func TestCLIDelaysIRQByOneInstruction(t *testing.T) {
	c, b := newTestCPU(0x58, 0xEA, 0xEA) // CLI, NOP, NOP
	b.data[irqVector] = 0x00
	b.data[irqVector+1] = 0xA0

	c.AssertIRQ(IRQFrame, c.Time()-3)
	run(c, 1) // CLI; recognition still sees the old I
	if c.PC != 0x8001 {
		t.Fatalf("PC = %#04x, want 0x8001", c.PC)
	}
	run(c, 1) // one more instruction executes before the IRQ
	if c.PC != 0x8002 {
		t.Fatalf("PC = %#04x, want 0x8002 (delay instruction)", c.PC)
	}
	run(c, 1)
	if c.PC != 0xA000 {
		t.Errorf("PC = %#04x, want 0xA000 (IRQ taken)", c.PC)
	}
}

func TestIRQLevelClearedBeforeSample(t *testing.T) {
	c, _ := newTestCPU(0x58, 0xEA, 0xEA, 0xEA)
	c.AssertIRQ(IRQFrame, c.Time())
	c.ClearIRQ(IRQFrame)
	run(c, 4)
	if c.PC != 0x8004 {
		t.Errorf("PC = %#04x, want 0x8004 (cleared IRQ must not fire)", c.PC)
	}
}

func TestNMIWinsRaceAgainstIRQ(t *testing.T) {
	c, b := newTestCPU(0x58, 0xEA, 0xEA)
	b.data[nmiVector] = 0x00
	b.data[nmiVector+1] = 0x90
	b.data[irqVector] = 0x00
	b.data[irqVector+1] = 0xA0

	run(c, 2) // CLI plus its delay instruction
	c.NMIPulse(c.Time() - 4)
	c.AssertIRQ(IRQFrame, c.Time()-4)
	run(c, 1)
	if c.PC != 0x9000 {
		t.Errorf("PC = %#04x, want NMI target 0x9000", c.PC)
	}
}

func TestInterruptPushesStatusWithoutB(t *testing.T) {
	c, b := newTestCPU(0xEA, 0xEA)
	b.data[nmiVector] = 0x00
	b.data[nmiVector+1] = 0x90
	c.NMIPulse(c.Time() - 3)
	run(c, 1)

	pushed := b.data[stackBase+uint16(c.SP)+1] // status is the last push
	if pushed&0x10 != 0 {
		t.Error("hardware interrupt must push status with B clear")
	}
	if pushed&0x20 == 0 {
		t.Error("unused bit must read as set")
	}
}

func TestPauseStallsAtBoundary(t *testing.T) {
	c, _ := newTestCPU(0xEA, 0xEA)
	before := c.Cycles()
	c.Pause(513)
	run(c, 1)
	if got := c.Cycles() - before; got != 513+2 {
		t.Errorf("stall+NOP consumed %d cycles, want 515", got)
	}
}

func TestUndocumentedLAX(t *testing.T) {
	c, b := newTestCPU(0xA7, 0x10)
	b.data[0x10] = 0x5A
	run(c, 1)
	if c.A != 0x5A || c.X != 0x5A {
		t.Errorf("LAX: A=%#02x X=%#02x, want both 0x5A", c.A, c.X)
	}
}

func TestUndocumentedSAX(t *testing.T) {
	c, b := newTestCPU(0x87, 0x10)
	c.A = 0xF0
	c.X = 0x3C
	run(c, 1)
	if b.data[0x10] != 0x30 {
		t.Errorf("SAX stored %#02x, want 0x30", b.data[0x10])
	}
}

func TestUndocumentedDCP(t *testing.T) {
	c, b := newTestCPU(0xC7, 0x10)
	b.data[0x10] = 0x11
	c.A = 0x10
	run(c, 1)
	if b.data[0x10] != 0x10 {
		t.Errorf("DCP memory = %#02x, want 0x10", b.data[0x10])
	}
	if !c.Z || !c.C {
		t.Errorf("DCP compare flags Z=%v C=%v, want both true", c.Z, c.C)
	}
}

func TestUndocumentedISCSLORLASRERRA(t *testing.T) {
	// ISC: INC then SBC.
	c, b := newTestCPU(0xE7, 0x10)
	b.data[0x10] = 0x0F
	c.A = 0x20
	c.C = true
	run(c, 1)
	if b.data[0x10] != 0x10 || c.A != 0x10 {
		t.Errorf("ISC: mem=%#02x A=%#02x, want 0x10 0x10", b.data[0x10], c.A)
	}

	// SLO: ASL then ORA.
	c, b = newTestCPU(0x07, 0x10)
	b.data[0x10] = 0x81
	c.A = 0x01
	run(c, 1)
	if b.data[0x10] != 0x02 || c.A != 0x03 || !c.C {
		t.Errorf("SLO: mem=%#02x A=%#02x C=%v", b.data[0x10], c.A, c.C)
	}

	// RLA: ROL then AND.
	c, b = newTestCPU(0x27, 0x10)
	b.data[0x10] = 0x40
	c.A = 0xFF
	run(c, 1)
	if b.data[0x10] != 0x80 || c.A != 0x80 {
		t.Errorf("RLA: mem=%#02x A=%#02x", b.data[0x10], c.A)
	}

	// SRE: LSR then EOR.
	c, b = newTestCPU(0x47, 0x10)
	b.data[0x10] = 0x02
	c.A = 0x00
	run(c, 1)
	if b.data[0x10] != 0x01 || c.A != 0x01 {
		t.Errorf("SRE: mem=%#02x A=%#02x", b.data[0x10], c.A)
	}

	// RRA: ROR then ADC.
	c, b = newTestCPU(0x67, 0x10)
	b.data[0x10] = 0x02
	c.A = 0x01
	c.C = false
	run(c, 1)
	if b.data[0x10] != 0x01 || c.A != 0x02 {
		t.Errorf("RRA: mem=%#02x A=%#02x", b.data[0x10], c.A)
	}
}

func TestShiftTimeRebasesLatches(t *testing.T) {
	c, _ := newTestCPU(0xEA)
	c.NMIPulse(100)
	c.ShiftTime(50)
	if c.nmiTime != 50 {
		t.Errorf("nmiTime = %d, want 50", c.nmiTime)
	}
}
