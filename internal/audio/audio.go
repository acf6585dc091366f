// Package audio consumes the APU's (level, duration) change events and
// turns them into a fixed-rate sample stream for the audio front-end.
package audio

import "nescore/internal/cartridge"

// MasterHz returns the master oscillator rate in ticks per second.
func MasterHz(tv cartridge.TVSystem) float64 {
	switch tv {
	case cartridge.PAL, cartridge.Dendy:
		return 26601712.0
	default:
		return 21477272.0
	}
}

// Resampler integrates the change-event stream into evenly spaced
// samples: each output sample is the time-weighted average of the DAC
// level over its window.
type Resampler struct {
	ticksPerSample float64
	pos            float64
	acc            float64
	level          float64
	emit           func(sample float32)
}

// NewResampler creates a resampler producing sampleRate samples per
// emulated second, delivered through emit.
func NewResampler(masterHz float64, sampleRate int, emit func(sample float32)) *Resampler {
	return &Resampler{
		ticksPerSample: masterHz / float64(sampleRate),
		emit:           emit,
	}
}

// PushSample implements the APU sink contract: the previous level held for
// duration master ticks, then the level changed to level.
func (r *Resampler) PushSample(level float64, duration int64) {
	remaining := float64(duration)
	for remaining > 0 {
		span := r.ticksPerSample - r.pos
		if span > remaining {
			span = remaining
		}
		r.acc += r.level * span
		r.pos += span
		remaining -= span
		if r.pos >= r.ticksPerSample {
			r.emit(float32(r.acc / r.ticksPerSample))
			r.acc = 0
			r.pos = 0
		}
	}
	r.level = level
}
