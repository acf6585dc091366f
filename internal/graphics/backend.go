// Package graphics provides the video front-ends: a palette-to-RGBA frame
// renderer and the pluggable display backends that present frames and
// collect controller input.
package graphics

import "fmt"

// Machine is the emulation a backend drives: StepFrame advances exactly
// one video frame and returns the rendered framebuffer; the button setters
// feed controller state for the following frame.
type Machine interface {
	StepFrame() (*[FrameWidth * FrameHeight]uint32, error)
	SetButtons1(buttons uint8)
	SetButtons2(buttons uint8)
}

// NES output dimensions.
const (
	FrameWidth  = 256
	FrameHeight = 240
)

// Config selects and parameterises a backend.
type Config struct {
	WindowTitle string
	Scale       int
	VSync       bool

	// Headless options.
	Frames uint64
}

// Backend presents frames and runs the outer loop.
type Backend interface {
	// Name identifies the backend in configuration and logs.
	Name() string

	// Headless reports whether the backend opens no window.
	Headless() bool

	// Run drives the machine until the user quits, the frame budget is
	// exhausted, or an error occurs.
	Run(machine Machine, config Config) error
}

// NewBackend resolves a backend by its configuration name.
func NewBackend(name string) (Backend, error) {
	switch name {
	case "ebitengine", "":
		return NewEbitengineBackend(), nil
	case "gl":
		return NewGLBackend(), nil
	case "headless":
		return NewHeadlessBackend(), nil
	case "terminal":
		return NewTerminalBackend(), nil
	default:
		return nil, fmt.Errorf("unknown graphics backend: %q", name)
	}
}
