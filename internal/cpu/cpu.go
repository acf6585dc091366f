// Package cpu implements the 6502 CPU core with cycle-accurate memory
// access against the system bus.
package cpu

import "errors"

// AddressingMode selects how an instruction resolves its operand.
type AddressingMode int

const (
	Implied AddressingMode = iota
	Accumulator
	Immediate
	ZeroPage
	ZeroPageX
	ZeroPageY
	Relative
	Absolute
	AbsoluteX
	AbsoluteY
	Indirect
	IndexedIndirect // (zp,X)
	IndirectIndexed // (zp),Y
)

const (
	stackBase = 0x0100

	nmiVector   = 0xFFFA
	resetVector = 0xFFFC
	irqVector   = 0xFFFE
)

// IRQ source bits. The CPU samples the OR of all asserted sources.
const (
	IRQFrame uint8 = 1 << iota
	IRQDMC
	IRQMapper
)

// irqLatchState controls when a level IRQ may be recognised. ExecuteDelay
// covers the one-instruction window after CLI, SEI, PLP and RTI during
// which the previous I flag still gates recognition.
type irqLatchState uint8

const (
	irqLow irqLatchState = iota
	irqReady
	irqExecuteDelay
)

// Bus is the CPU's view of memory. Every call costs exactly one CPU cycle,
// which the CPU accounts before the access reaches the bus.
type Bus interface {
	Read(address uint16) uint8
	Write(address uint16, value uint8)
}

// Snapshot is the register file handed to the panic callback when the CPU
// halts on an unknown opcode.
type Snapshot struct {
	PC uint16
	A  uint8
	X  uint8
	Y  uint8
	SP uint8
	P  uint8
}

// TraceSink receives one record per executed instruction when tracing is
// wired in at construction.
type TraceSink interface {
	Trace(pc uint16, opcode uint8, name string, regs Snapshot)
}

// CPU is the 6502 interpreter. It advances the master clock by the
// configured divider on every cycle it consumes.
type CPU struct {
	A  uint8
	X  uint8
	Y  uint8
	SP uint8
	PC uint16

	// Status flags
	C bool
	Z bool
	I bool
	D bool
	B bool
	V bool
	N bool

	bus     Bus
	divider int64

	cycles int64 // CPU cycles since power-up
	time   int64 // master ticks

	// NMI is edge triggered and sticky until vectored.
	nmiPending bool
	nmiTime    int64

	// IRQ is level triggered from OR-wired sources.
	irqSources uint8
	irqTime    int64
	irqState   irqLatchState
	delayedI   bool // I flag gating recognition during ExecuteDelay

	pendingStall int64

	halted  bool
	panicFn func(Snapshot)
	trace   TraceSink
}

// New creates a CPU on the given bus, advancing the master clock by
// divider ticks per CPU cycle.
func New(bus Bus, divider int64) *CPU {
	return &CPU{
		bus:      bus,
		divider:  divider,
		SP:       0xFD,
		I:        true,
		delayedI: true,
		irqState: irqLow,
	}
}

// SetPanicHandler wires the callback invoked once when the CPU halts on an
// unknown opcode.
func (c *CPU) SetPanicHandler(fn func(Snapshot)) { c.panicFn = fn }

// SetTraceSink wires an optional per-instruction trace receiver.
func (c *CPU) SetTraceSink(sink TraceSink) { c.trace = sink }

// Cycles returns CPU cycles consumed since power-up.
func (c *CPU) Cycles() int64 { return c.cycles }

// Time returns the CPU's position on the master timeline.
func (c *CPU) Time() int64 { return c.time }

// Halted reports whether the CPU hit an unknown opcode and stopped.
func (c *CPU) Halted() bool { return c.halted }

// ShiftTime rebases the CPU's master-time bookkeeping; called when the
// scheduler rebases the whole timeline.
func (c *CPU) ShiftTime(delta int64) {
	c.time -= delta
	if c.nmiPending {
		c.nmiTime -= delta
	}
	if c.irqSources != 0 {
		c.irqTime -= delta
	}
}

// tick consumes one CPU cycle.
func (c *CPU) tick() {
	c.cycles++
	c.time += c.divider
}

// read performs one bus read, costing one cycle. The device observes the
// master time of the access.
func (c *CPU) read(address uint16) uint8 {
	c.tick()
	return c.bus.Read(address)
}

func (c *CPU) write(address uint16, value uint8) {
	c.tick()
	c.bus.Write(address, value)
}

func (c *CPU) read16(address uint16) uint16 {
	lo := uint16(c.read(address))
	hi := uint16(c.read(address + 1))
	return hi<<8 | lo
}

// read16Bug reads a 16-bit vector with the 6502 page-wrap defect: the high
// byte comes from the start of the same page when the low byte sits at $xxFF.
func (c *CPU) read16Bug(address uint16) uint16 {
	lo := uint16(c.read(address))
	hiAddr := address&0xFF00 | uint16(uint8(address)+1)
	hi := uint16(c.read(hiAddr))
	return hi<<8 | lo
}

func (c *CPU) push(value uint8) {
	c.write(stackBase+uint16(c.SP), value)
	c.SP--
}

func (c *CPU) pop() uint8 {
	c.SP++
	return c.read(stackBase + uint16(c.SP))
}

func (c *CPU) setZN(value uint8) {
	c.Z = value == 0
	c.N = value&0x80 != 0
}

// StatusByte packs the flags into the pushed format; the unused bit reads
// as set, B as requested.
func (c *CPU) StatusByte(b bool) uint8 {
	var p uint8 = 0x20
	if c.C {
		p |= 0x01
	}
	if c.Z {
		p |= 0x02
	}
	if c.I {
		p |= 0x04
	}
	if c.D {
		p |= 0x08
	}
	if b {
		p |= 0x10
	}
	if c.V {
		p |= 0x40
	}
	if c.N {
		p |= 0x80
	}
	return p
}

// SetStatusByte unpacks a pulled status byte. B and the unused bit only
// exist on the stack.
func (c *CPU) SetStatusByte(p uint8) {
	c.C = p&0x01 != 0
	c.Z = p&0x02 != 0
	c.I = p&0x04 != 0
	c.D = p&0x08 != 0
	c.V = p&0x40 != 0
	c.N = p&0x80 != 0
}

func (c *CPU) snapshot() Snapshot {
	return Snapshot{PC: c.PC, A: c.A, X: c.X, Y: c.Y, SP: c.SP, P: c.StatusByte(false)}
}

// RegisterFile returns the architectural register state for snapshotting.
func (c *CPU) RegisterFile() Snapshot {
	return c.snapshot()
}

// RestoreRegisterFile loads a 7-byte register blob written by the memory
// registry: PC low, PC high, A, X, Y, SP, P.
func (c *CPU) RestoreRegisterFile(data []byte) error {
	if len(data) != 7 {
		return errors.New("cpu register blob has wrong length")
	}
	c.PC = uint16(data[0]) | uint16(data[1])<<8
	c.A = data[2]
	c.X = data[3]
	c.Y = data[4]
	c.SP = data[5]
	c.SetStatusByte(data[6])
	return nil
}

// Reset runs the 7-cycle reset sequence: five internal cycles with no bus
// access stand in for the dummy stack reads, SP is set to $FD, I is set,
// and PC loads from the reset vector in two reads.
func (c *CPU) Reset() {
	c.halted = false
	for i := 0; i < 5; i++ {
		c.tick()
	}
	c.SP = 0xFD
	c.I = true
	c.delayedI = true
	c.irqState = irqLow
	c.nmiPending = false
	c.PC = c.read16(resetVector)
}

// NMIPulse records an NMI edge observed at the given master time. The
// latch is sticky until the CPU vectors through $FFFA.
func (c *CPU) NMIPulse(time int64) {
	if !c.nmiPending {
		c.nmiPending = true
		c.nmiTime = time
	}
}

// CancelNMI revokes an NMI edge that has not been serviced yet; the PPU
// uses this for the VBlank status-read suppression race.
func (c *CPU) CancelNMI() {
	c.nmiPending = false
}

// AssertIRQ raises a level IRQ source at the given master time.
func (c *CPU) AssertIRQ(source uint8, time int64) {
	if c.irqSources == 0 {
		c.irqTime = time
	}
	c.irqSources |= source
}

// ClearIRQ lowers a level IRQ source.
func (c *CPU) ClearIRQ(source uint8) {
	c.irqSources &^= source
}

// IRQAsserted reports whether any IRQ source is high.
func (c *CPU) IRQAsserted() bool { return c.irqSources != 0 }

// Pause steals the given number of CPU cycles for DMA. The stall is
// consumed at the next instruction boundary.
func (c *CPU) Pause(cycles int64) {
	c.pendingStall += cycles
}

// Execute runs whole instructions until the master clock reaches
// untilTime, or until the CPU halts.
func (c *CPU) Execute(untilTime int64) {
	for c.time < untilTime && !c.halted {
		c.step()
	}
}

// step consumes any pending DMA stall, services a recognised interrupt, or
// executes one instruction.
func (c *CPU) step() {
	if c.halted {
		return
	}
	for c.pendingStall > 0 {
		c.pendingStall--
		c.tick()
	}

	if c.pollInterrupts() {
		return
	}

	opPC := c.PC
	opcode := c.read(c.PC)
	c.PC++

	inst := &instructions[opcode]
	if inst.Name == "" {
		c.halt(opPC)
		return
	}

	if c.trace != nil {
		c.trace.Trace(opPC, opcode, inst.Name, c.snapshot())
	}

	consumed := c.cycles
	address, pageCrossed := c.operandAddress(inst.Mode, inst.WriteTarget)

	total := int64(inst.Cycles)
	if pageCrossed && inst.PagePenalty {
		total++
	}

	c.executeInstruction(opcode, inst, address)

	// The latched I flag for interrupt recognition trails CLI, SEI, PLP
	// and RTI by one instruction.
	switch opcode {
	case 0x58, 0x78, 0x28, 0x40: // CLI, SEI, PLP, RTI
		c.irqState = irqExecuteDelay
	default:
		c.delayedI = c.I
		if c.irqState != irqExecuteDelay {
			if c.I {
				c.irqState = irqLow
			} else {
				c.irqState = irqReady
			}
		}
	}

	// Internal cycles not represented by a bus access.
	for c.cycles-consumed+1 < total {
		c.tick()
	}
}

// halt stops the CPU permanently and reports the register file once.
func (c *CPU) halt(pc uint16) {
	c.halted = true
	c.PC = pc
	if c.panicFn != nil {
		c.panicFn(c.snapshot())
	}
}

// pollInterrupts implements the end-of-instruction interrupt sample. An
// interrupt is taken when its line was asserted at least two CPU cycles
// before the instruction boundary; NMI wins a same-instant race.
func (c *CPU) pollInterrupts() bool {
	limit := c.time - 2*c.divider

	if c.nmiPending && c.nmiTime <= limit {
		c.nmiPending = false
		c.interrupt(nmiVector)
		c.resolveIRQState()
		return true
	}

	maskI := c.I
	if c.irqState == irqExecuteDelay {
		maskI = c.delayedI
	}
	if c.irqSources != 0 && !maskI && c.irqTime <= limit {
		c.interrupt(irqVector)
		c.resolveIRQState()
		return true
	}
	if c.irqState == irqExecuteDelay {
		c.resolveIRQState()
	}
	return false
}

func (c *CPU) resolveIRQState() {
	c.delayedI = c.I
	if c.I {
		c.irqState = irqLow
	} else {
		c.irqState = irqReady
	}
}

// interrupt runs the 7-cycle hardware interrupt sequence: two dead cycles,
// PC and status pushed (B clear), I set, vector fetched.
func (c *CPU) interrupt(vector uint16) {
	c.tick()
	c.tick()
	c.push(uint8(c.PC >> 8))
	c.push(uint8(c.PC))
	c.push(c.StatusByte(false))
	c.I = true
	c.PC = c.read16(vector)
}

// operandAddress resolves the operand for the given mode, consuming the
// exact bus cycles the hardware does. For indexed modes the partially
// indexed address is read whenever the hardware would: always on writes,
// on page crossings for reads.
func (c *CPU) operandAddress(mode AddressingMode, forWrite bool) (uint16, bool) {
	switch mode {
	case Implied, Accumulator:
		return 0, false

	case Immediate:
		addr := c.PC
		c.PC++
		return addr, false

	case ZeroPage:
		return uint16(c.read(c.PC)), c.pcInc()

	case ZeroPageX:
		base := c.read(c.PC)
		c.pcInc()
		c.tick() // index add
		return uint16(base + c.X), false

	case ZeroPageY:
		base := c.read(c.PC)
		c.pcInc()
		c.tick()
		return uint16(base + c.Y), false

	case Absolute:
		addr := c.read16(c.PC)
		c.PC += 2
		return addr, false

	case AbsoluteX:
		return c.indexedAbsolute(uint16(c.X), forWrite)

	case AbsoluteY:
		return c.indexedAbsolute(uint16(c.Y), forWrite)

	case Indirect:
		ptr := c.read16(c.PC)
		c.PC += 2
		return c.read16Bug(ptr), false

	case IndexedIndirect:
		zp := c.read(c.PC)
		c.pcInc()
		c.tick() // index add
		lo := uint16(c.read(uint16(zp + c.X)))
		hi := uint16(c.read(uint16(zp + c.X + 1)))
		return hi<<8 | lo, false

	case IndirectIndexed:
		zp := c.read(c.PC)
		c.pcInc()
		lo := uint16(c.read(uint16(zp)))
		hi := uint16(c.read(uint16(zp + 1)))
		base := hi<<8 | lo
		addr := base + uint16(c.Y)
		crossed := base&0xFF00 != addr&0xFF00
		if forWrite || crossed {
			// Read of the not-yet-fixed address.
			c.read(base&0xFF00 | addr&0x00FF)
		}
		return addr, crossed

	case Relative:
		// The branch handler fetches its own operand.
		return 0, false
	}
	return 0, false
}

// pcInc advances PC and always reports no page crossing; it exists so
// single-byte operand fetch sites stay one-liners.
func (c *CPU) pcInc() bool {
	c.PC++
	return false
}

func (c *CPU) indexedAbsolute(index uint16, forWrite bool) (uint16, bool) {
	base := c.read16(c.PC)
	c.PC += 2
	addr := base + index
	crossed := base&0xFF00 != addr&0xFF00
	if forWrite || crossed {
		c.read(base&0xFF00 | addr&0x00FF)
	}
	return addr, crossed
}

// branch fetches the displacement and moves PC when taken; a taken branch
// costs one extra cycle, two when it crosses a page.
func (c *CPU) branch(taken bool) {
	offset := int8(c.read(c.PC))
	c.PC++
	if !taken {
		return
	}
	c.tick()
	target := uint16(int32(c.PC) + int32(offset))
	if target&0xFF00 != c.PC&0xFF00 {
		c.tick()
	}
	c.PC = target
}

// rmw performs the 6502 read-modify-write pattern: the old value is
// written back before the new one, on consecutive cycles.
func (c *CPU) rmw(address uint16, modify func(uint8) uint8) uint8 {
	value := c.read(address)
	c.write(address, value)
	value = modify(value)
	c.write(address, value)
	return value
}
