// Package nes composes the CPU, PPU, APU, bus and cartridge into a
// running console driven by the master-clock event scheduler.
package nes

import (
	"nescore/internal/apu"
	"nescore/internal/bus"
	"nescore/internal/cartridge"
	"nescore/internal/clock"
	"nescore/internal/cpu"
	"nescore/internal/input"
	"nescore/internal/ppu"
	"nescore/internal/state"
)

// rebasePeriod bounds master times: once the timeline passes this many
// ticks, everything is shifted back toward zero.
const rebasePeriod = int64(1) << 30

// Console owns every core component and the scheduler that orders them.
type Console struct {
	sched *clock.Scheduler
	cpu   *cpu.CPU
	ppu   *ppu.PPU
	apu   *apu.APU
	bus   *bus.Bus
	cart  *cartridge.Cartridge
	ports *input.Ports
	reg   *state.Registry

	evVBlank   *clock.Event
	evDMC      *clock.Event
	evAPUFrame *clock.Event
	evFrame    *clock.Event
	evRebase   *clock.Event

	frameCount   uint64
	frameBudget  uint64
	lastCPUClock int64

	panicFn func(cpu.Snapshot)
}

// New builds a console around a loaded cartridge. The TV system comes
// from the cartridge header.
func New(cart *cartridge.Cartridge) *Console {
	tv := cart.TVSystem()
	apuParams := apu.ParamsFor(tv)

	c := &Console{
		sched: clock.New(),
		cart:  cart,
		ports: input.NewPorts(),
		reg:   state.NewRegistry(),
	}

	c.ppu = ppu.New(cart.Mapper(), ppu.ParamsFor(tv))
	c.apu = apu.New(apuParams)
	c.bus = bus.New(c.ppu, c.apu, cart.Mapper(), c.ports)
	c.cpu = cpu.New(c.bus, apuParams.Divider)
	c.bus.SetClock(c.cpu)

	// Interrupt wiring: the CPU samples the OR of all level sources.
	c.apu.SetIRQLines(
		func(source uint8, at int64) {
			c.cpu.AssertIRQ(c.mapIRQSource(source), at)
		},
		func(source uint8) {
			c.cpu.ClearIRQ(c.mapIRQSource(source))
		},
	)
	cart.SetIRQLine(func(asserted bool) {
		if asserted {
			c.cpu.AssertIRQ(cpu.IRQMapper, c.cpu.Time())
		} else {
			c.cpu.ClearIRQ(cpu.IRQMapper)
		}
	})
	cart.SetCycleSource(c.cpu.Cycles)
	cart.SetDotSource(c.ppu.Dots)

	c.apu.SetDMAAccess(c.bus.DMARead, c.cpu.Pause)
	c.apu.SetDMCStartHook(func() {
		c.sched.Schedule(c.evDMC, c.apu.NextDMCTime())
	})

	c.ppu.SetNMICallback(c.cpu.NMIPulse)
	c.ppu.SetNMICancel(c.cpu.CancelNMI)
	c.ppu.SetFrameCallback(func(int64) { c.frameCount++ })

	c.cpu.SetPanicHandler(func(snap cpu.Snapshot) {
		c.sched.Terminate()
		if c.panicFn != nil {
			c.panicFn(snap)
		}
	})

	// Registration order decides same-instant event ordering: the NMI
	// source first, then DMC-IRQ ahead of frame-IRQ.
	c.evVBlank = c.sched.Register("ppu.vblank", c.onVBlankEvent)
	c.evDMC = c.sched.Register("apu.dmc", c.onDMCEvent)
	c.evAPUFrame = c.sched.Register("apu.frame", c.onAPUFrameEvent)
	c.evFrame = c.sched.Register("ppu.frame", c.onFrameEvent)
	c.evRebase = c.sched.Register("clock.rebase", c.onRebaseEvent)

	c.registerState()
	c.powerUp()
	return c
}

func (c *Console) mapIRQSource(source uint8) uint8 {
	if source == apu.IRQSourceDMC {
		return cpu.IRQDMC
	}
	return cpu.IRQFrame
}

// registerState enrols every component's snapshot hooks.
func (c *Console) registerState() {
	c.reg.RegisterBytes(state.BlobCPURAM, c.bus.RAM())
	c.reg.Register(state.BlobCPURegisters,
		func() []byte {
			s := c.cpu.RegisterFile()
			return []byte{uint8(s.PC), uint8(s.PC >> 8), s.A, s.X, s.Y, s.SP, s.P}
		},
		c.cpu.RestoreRegisterFile)
	c.reg.Register(state.BlobPPURegisters, c.ppu.SaveRegisters, c.ppu.RestoreRegisters)
	c.reg.RegisterBytes(state.BlobPPUNametables, c.ppu.VRAM())
	c.reg.RegisterBytes(state.BlobPPUPalette, c.ppu.Palette())
	c.reg.RegisterBytes(state.BlobPPUOAM, c.ppu.OAM())
	c.reg.Register(state.BlobAPURegisters, c.apu.SaveRegisters, c.apu.RestoreRegisters)
	c.reg.RegisterBytes(state.BlobCartridgeSRAM, c.cart.SRAM())
	if c.cart.HasCHRRAM() {
		c.reg.RegisterBytes(state.BlobCartridgeCHRRAM, c.cart.CHRMem())
	}
}

// powerUp runs the reset sequence and plants the initial events.
func (c *Console) powerUp() {
	c.cpu.Reset()
	c.ppu.SetTime(0)
	c.apu.SetTime(0)

	c.sched.Schedule(c.evVBlank, c.ppu.NextVBlankTime())
	c.sched.Schedule(c.evFrame, c.ppu.NextFrameTime())
	c.sched.Schedule(c.evAPUFrame, c.apu.NextSequencerTime())
	c.sched.Schedule(c.evRebase, rebasePeriod)
}

// Reset performs a console reset: CPU reset vector, PPU raster restart,
// APU silencing. RAM, VRAM and the APU sequencer mode persist.
func (c *Console) Reset() {
	c.cpu.Reset()
	c.ppu.Reset()
	c.apu.Reset()
	c.ports.Reset()
}

// CPU exposes the processor, mainly for tests and the trace front-end.
func (c *Console) CPU() *cpu.CPU { return c.cpu }

// PPU exposes the raster engine.
func (c *Console) PPU() *ppu.PPU { return c.ppu }

// APU exposes the audio unit.
func (c *Console) APU() *apu.APU { return c.apu }

// Ports exposes the controller ports for front-end wiring.
func (c *Console) Ports() *input.Ports { return c.ports }

// Registry exposes the state registry for snapshotting.
func (c *Console) Registry() *state.Registry { return c.reg }

// Cartridge returns the inserted cartridge.
func (c *Console) Cartridge() *cartridge.Cartridge { return c.cart }

// FrameCount returns completed frames since power-up.
func (c *Console) FrameCount() uint64 { return c.frameCount }

// SetVideoSink wires the video front-end.
func (c *Console) SetVideoSink(sink ppu.VideoSink) { c.ppu.SetVideoSink(sink) }

// SetAudioSink wires the audio front-end.
func (c *Console) SetAudioSink(sink apu.AudioSink) { c.apu.SetAudioSink(sink) }

// SetFrameCallback wires the frame-timing callback; the console's own
// frame counting is kept regardless.
func (c *Console) SetFrameCallback(fn func(durationMasterTicks int64)) {
	c.ppu.SetFrameCallback(func(d int64) {
		c.frameCount++
		if fn != nil {
			fn(d)
		}
	})
}

// SetPanicCallback wires the CPU halt reporter.
func (c *Console) SetPanicCallback(fn func(cpu.Snapshot)) { c.panicFn = fn }

// SetTraceSink wires the per-instruction trace capability.
func (c *Console) SetTraceSink(sink cpu.TraceSink) { c.cpu.SetTraceSink(sink) }

// Run drives the scheduler until Stop is called or the CPU halts.
func (c *Console) Run() {
	c.frameBudget = 0
	c.sched.Run(c.wait)
}

// RunFrames emulates until the given number of additional frames has
// completed. Used by headless operation and tests.
func (c *Console) RunFrames(n uint64) {
	c.frameBudget = c.frameCount + n
	c.sched.Run(c.wait)
	c.frameBudget = 0
}

// Stop requests cooperative termination; safe to call from callbacks.
func (c *Console) Stop() { c.sched.Terminate() }

// wait advances the CPU to the next event deadline.
func (c *Console) wait(until int64) {
	c.cpu.Execute(until)
	if c.cpu.Halted() {
		c.sched.Terminate()
	}
}

func (c *Console) onVBlankEvent() {
	c.ppu.CatchUp(c.evVBlank.Time())
	c.sched.SetTime(c.evVBlank, c.ppu.NextVBlankTime())
}

func (c *Console) onFrameEvent() {
	c.ppu.CatchUp(c.evFrame.Time())
	c.apu.CatchUp(c.evFrame.Time())
	c.feedMapperClock()
	c.sched.SetTime(c.evFrame, c.ppu.NextFrameTime())
	if c.frameBudget != 0 && c.frameCount >= c.frameBudget {
		c.sched.Terminate()
	}
}

func (c *Console) onAPUFrameEvent() {
	c.apu.CatchUp(c.evAPUFrame.Time())
	c.sched.SetTime(c.evAPUFrame, c.apu.NextSequencerTime())
	if c.apu.DMCActive() && !c.evDMC.Enabled() {
		c.sched.Schedule(c.evDMC, c.apu.NextDMCTime())
	}
}

func (c *Console) onDMCEvent() {
	c.apu.CatchUp(c.evDMC.Time())
	if c.apu.DMCActive() {
		c.sched.SetTime(c.evDMC, c.apu.NextDMCTime())
	} else {
		c.sched.Disable(c.evDMC)
	}
}

// feedMapperClock forwards elapsed CPU cycles to mappers with CPU-driven
// counters.
func (c *Console) feedMapperClock() {
	cycles := c.cpu.Cycles()
	if delta := cycles - c.lastCPUClock; delta > 0 {
		c.cart.Mapper().OnCPUClock(delta)
	}
	c.lastCPUClock = cycles
}

// onRebaseEvent shifts the whole timeline back toward zero so master
// times stay bounded.
func (c *Console) onRebaseEvent() {
	delta := c.sched.Now()
	c.sched.ResetBase(delta)
	c.cpu.ShiftTime(delta)
	c.ppu.ShiftTime(delta)
	c.apu.ShiftTime(delta)
	c.sched.SetTime(c.evRebase, c.sched.Now()+rebasePeriod)
}
