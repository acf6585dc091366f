package graphics

import "github.com/golang/glog"

// HeadlessBackend runs the machine with no display, for batch runs and
// tests.
type HeadlessBackend struct{}

// NewHeadlessBackend creates a headless backend.
func NewHeadlessBackend() Backend {
	return &HeadlessBackend{}
}

func (b *HeadlessBackend) Name() string   { return "headless" }
func (b *HeadlessBackend) Headless() bool { return true }

// Run steps the configured number of frames (one when unset).
func (b *HeadlessBackend) Run(machine Machine, config Config) error {
	frames := config.Frames
	if frames == 0 {
		frames = 1
	}
	glog.Infof("headless run: %d frames", frames)
	for i := uint64(0); i < frames; i++ {
		if _, err := machine.StepFrame(); err != nil {
			return err
		}
	}
	return nil
}
