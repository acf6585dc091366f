package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/glog"

	"nescore/internal/audio"
	"nescore/internal/cartridge"
	"nescore/internal/cpu"
	"nescore/internal/graphics"
	"nescore/internal/nes"
)

// buttonState feeds one controller from a backend's keyboard polling.
type buttonState struct {
	buttons uint8
}

func (s *buttonState) Buttons() uint8 { return s.buttons }

// Emulator binds a console to the configured front-ends and implements
// the backend's Machine contract.
type Emulator struct {
	config   *Config
	console  *nes.Console
	renderer *graphics.FrameRenderer
	backend  graphics.Backend
	sound    *audio.PortAudioSink

	pad1 buttonState
	pad2 buttonState

	romPath  string
	sramPath string
	haltSnap *cpu.Snapshot
}

// NewEmulator loads the ROM and assembles the console with its
// front-ends.
func NewEmulator(config *Config, romPath string) (*Emulator, error) {
	cart, err := cartridge.LoadFromFile(romPath)
	if err != nil {
		return nil, err
	}
	applyRegion(cart, config.Emulation.Region)

	e := &Emulator{
		config:  config,
		console: nes.New(cart),
		romPath: romPath,
	}

	backend, err := graphics.NewBackend(config.Video.Backend)
	if err != nil {
		return nil, err
	}
	e.backend = backend

	processor := graphics.NewVideoProcessor(config.Video.Brightness, config.Video.Contrast)
	e.renderer = graphics.NewFrameRenderer(processor)
	e.console.SetVideoSink(e.renderer)

	e.console.Ports().Controller1.SetSource(&e.pad1)
	e.console.Ports().Controller2.SetSource(&e.pad2)

	e.console.SetPanicCallback(func(snap cpu.Snapshot) {
		e.haltSnap = &snap
		glog.Errorf("CPU halted at PC=%04X A=%02X X=%02X Y=%02X S=%02X P=%02X",
			snap.PC, snap.A, snap.X, snap.Y, snap.SP, snap.P)
	})

	if config.Debug.Trace {
		e.console.SetTraceSink(logTraceSink{})
	}

	if config.Audio.Enabled && !backend.Headless() {
		rate := config.Audio.SampleRate
		if rate == 0 {
			rate = 44100
		}
		sound, err := audio.NewPortAudioSink(audio.MasterHz(cart.TVSystem()), rate, config.Audio.Volume)
		if err != nil {
			// Audio is best-effort: a missing device should not stop
			// emulation.
			glog.Errorf("audio disabled: %v", err)
		} else {
			e.sound = sound
			e.console.SetAudioSink(sound)
		}
	}

	e.sramPath = filepath.Join(config.Paths.SRAMDir,
		strings.TrimSuffix(filepath.Base(romPath), filepath.Ext(romPath))+".sav")
	e.loadSRAM()

	return e, nil
}

// applyRegion forces the TV system when the config overrides "auto".
func applyRegion(cart *cartridge.Cartridge, region string) {
	switch region {
	case "ntsc":
		cart.SetTVSystem(cartridge.NTSC)
	case "pal":
		cart.SetTVSystem(cartridge.PAL)
	case "dendy":
		cart.SetTVSystem(cartridge.Dendy)
	}
}

// Run drives the selected backend until exit, then persists battery RAM.
func (e *Emulator) Run(frames uint64) error {
	glog.Infof("running %s (mapper %d) on %s backend",
		filepath.Base(e.romPath), e.console.Cartridge().MapperID(), e.backend.Name())

	err := e.backend.Run(e, graphics.Config{
		WindowTitle: fmt.Sprintf("nescore - %s", filepath.Base(e.romPath)),
		Scale:       e.config.Video.Scale,
		VSync:       e.config.Video.VSync,
		Frames:      frames,
	})

	if e.sound != nil {
		e.sound.Close()
	}
	e.saveSRAM()

	if err != nil {
		return err
	}
	if e.haltSnap != nil {
		return fmt.Errorf("CPU halted at PC=%04X", e.haltSnap.PC)
	}
	return nil
}

// Console exposes the underlying console, mainly for tests.
func (e *Emulator) Console() *nes.Console { return e.console }

// StepFrame advances one video frame; backends call this once per display
// refresh.
func (e *Emulator) StepFrame() (*[graphics.FrameWidth * graphics.FrameHeight]uint32, error) {
	e.console.RunFrames(1)
	if e.haltSnap != nil {
		frame, _ := e.renderer.Frame()
		return frame, fmt.Errorf("CPU halted at PC=%04X", e.haltSnap.PC)
	}
	frame, _ := e.renderer.Frame()
	return frame, nil
}

// SetButtons1 updates controller 1 from the backend.
func (e *Emulator) SetButtons1(buttons uint8) { e.pad1.buttons = buttons }

// SetButtons2 updates controller 2 from the backend.
func (e *Emulator) SetButtons2(buttons uint8) { e.pad2.buttons = buttons }

// loadSRAM restores battery-backed work RAM from disk.
func (e *Emulator) loadSRAM() {
	if !e.console.Cartridge().HasBattery() {
		return
	}
	data, err := os.ReadFile(e.sramPath)
	if err != nil {
		if !os.IsNotExist(err) {
			glog.Errorf("reading %s: %v", e.sramPath, err)
		}
		return
	}
	copy(e.console.Cartridge().SRAM(), data)
	glog.Infof("loaded battery RAM from %s", e.sramPath)
}

// saveSRAM persists battery-backed work RAM.
func (e *Emulator) saveSRAM() {
	if !e.console.Cartridge().HasBattery() {
		return
	}
	if err := os.WriteFile(e.sramPath, e.console.Cartridge().SRAM(), 0o644); err != nil {
		glog.Errorf("writing %s: %v", e.sramPath, err)
		return
	}
	glog.Infof("saved battery RAM to %s", e.sramPath)
}

// logTraceSink routes the CPU trace capability to the process log.
type logTraceSink struct{}

func (logTraceSink) Trace(pc uint16, opcode uint8, name string, regs cpu.Snapshot) {
	glog.Infof("%04X  %02X %s  A:%02X X:%02X Y:%02X P:%02X SP:%02X",
		pc, opcode, name, regs.A, regs.X, regs.Y, regs.P, regs.SP)
}
