package graphics

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/golang/glog"
	"github.com/hajimehoshi/ebiten/v2"

	"nescore/internal/input"
)

// EbitengineBackend presents frames through an Ebitengine window and maps
// the keyboard onto the two controller ports.
type EbitengineBackend struct{}

// NewEbitengineBackend creates an Ebitengine backend.
func NewEbitengineBackend() Backend {
	return &EbitengineBackend{}
}

func (b *EbitengineBackend) Name() string   { return "ebitengine" }
func (b *EbitengineBackend) Headless() bool { return false }

// errQuit distinguishes a user-requested close from a machine error.
var errQuit = errors.New("window closed")

// ebitengineGame adapts the machine to ebiten.Game: one Update is one
// emulated frame.
type ebitengineGame struct {
	machine Machine
	image   *ebiten.Image
	pixels  []byte
	err     error
}

// player1Keys maps keyboard keys to controller 1 buttons.
var player1Keys = map[ebiten.Key]input.Button{
	ebiten.KeyZ:          input.ButtonA,
	ebiten.KeyX:          input.ButtonB,
	ebiten.KeyShiftRight: input.ButtonSelect,
	ebiten.KeyEnter:      input.ButtonStart,
	ebiten.KeyArrowUp:    input.ButtonUp,
	ebiten.KeyArrowDown:  input.ButtonDown,
	ebiten.KeyArrowLeft:  input.ButtonLeft,
	ebiten.KeyArrowRight: input.ButtonRight,
}

func (g *ebitengineGame) Update() error {
	if ebiten.IsKeyPressed(ebiten.KeyEscape) {
		return errQuit
	}

	var buttons uint8
	for key, button := range player1Keys {
		if ebiten.IsKeyPressed(key) {
			buttons |= uint8(button)
		}
	}
	g.machine.SetButtons1(buttons)

	frame, err := g.machine.StepFrame()
	if err != nil {
		g.err = err
		return err
	}

	// ARGB to RGBA bytes for WritePixels.
	for i, px := range frame {
		binary.BigEndian.PutUint32(g.pixels[i*4:], px<<8|px>>24)
	}
	g.image.WritePixels(g.pixels)
	return nil
}

func (g *ebitengineGame) Draw(screen *ebiten.Image) {
	screen.DrawImage(g.image, nil)
}

func (g *ebitengineGame) Layout(outsideWidth, outsideHeight int) (int, int) {
	return FrameWidth, FrameHeight
}

// Run opens the window and hands the loop to Ebitengine.
func (b *EbitengineBackend) Run(machine Machine, config Config) error {
	scale := config.Scale
	if scale <= 0 {
		scale = 3
	}
	ebiten.SetWindowSize(FrameWidth*scale, FrameHeight*scale)
	ebiten.SetWindowTitle(config.WindowTitle)
	ebiten.SetVsyncEnabled(config.VSync)

	game := &ebitengineGame{
		machine: machine,
		image:   ebiten.NewImage(FrameWidth, FrameHeight),
		pixels:  make([]byte, FrameWidth*FrameHeight*4),
	}

	glog.Infof("ebitengine window %dx%d", FrameWidth*scale, FrameHeight*scale)
	if err := ebiten.RunGame(game); err != nil && !errors.Is(err, errQuit) {
		return fmt.Errorf("ebitengine loop: %w", err)
	}
	return nil
}
