package graphics

import (
	"fmt"
	"os"

	"github.com/golang/glog"
)

// TerminalBackend renders a reduced ASCII view of the framebuffer, useful
// for debugging over a plain console.
type TerminalBackend struct{}

// NewTerminalBackend creates a terminal backend.
func NewTerminalBackend() Backend {
	return &TerminalBackend{}
}

func (b *TerminalBackend) Name() string   { return "terminal" }
func (b *TerminalBackend) Headless() bool { return true }

// shades maps luminance to characters, darkest first.
const shades = " .:-=+*#%@"

// Run steps the configured number of frames, printing every thirtieth.
func (b *TerminalBackend) Run(machine Machine, config Config) error {
	frames := config.Frames
	if frames == 0 {
		frames = 60
	}
	glog.Infof("terminal run: %d frames", frames)

	for i := uint64(0); i < frames; i++ {
		frame, err := machine.StepFrame()
		if err != nil {
			return err
		}
		if i%30 == 0 {
			b.print(frame)
		}
	}
	return nil
}

// print downsamples 4x8 pixel blocks to one character.
func (b *TerminalBackend) print(frame *[FrameWidth * FrameHeight]uint32) {
	for y := 0; y < FrameHeight; y += 8 {
		line := make([]byte, 0, FrameWidth/4)
		for x := 0; x < FrameWidth; x += 4 {
			var sum uint32
			for dy := 0; dy < 8; dy++ {
				for dx := 0; dx < 4; dx++ {
					px := frame[(y+dy)*FrameWidth+x+dx]
					r := px >> 16 & 0xFF
					g := px >> 8 & 0xFF
					bl := px & 0xFF
					sum += (r*299 + g*587 + bl*114) / 1000
				}
			}
			avg := sum / 32
			line = append(line, shades[int(avg)*len(shades)/256])
		}
		fmt.Fprintln(os.Stdout, string(line))
	}
	fmt.Fprintln(os.Stdout)
}
