package audio

import (
	"fmt"

	"github.com/golang/glog"
	"github.com/gordonklaus/portaudio"
)

// PortAudioSink plays the resampled stream through the default output
// device. Samples queue in a buffered channel; the device callback drains
// it and pads with silence on underrun.
type PortAudioSink struct {
	*Resampler
	stream  *portaudio.Stream
	channel chan float32
	volume  float32
}

// NewPortAudioSink opens the default stereo output at the given rate.
func NewPortAudioSink(masterHz float64, sampleRate int, volume float32) (*PortAudioSink, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialising portaudio: %w", err)
	}

	s := &PortAudioSink{
		channel: make(chan float32, sampleRate),
		volume:  volume,
	}
	s.Resampler = NewResampler(masterHz, sampleRate, s.enqueue)

	cb := func(out []float32) {
		for i := 0; i < len(out); i += 2 {
			select {
			case x := <-s.channel:
				out[i] = x
				out[i+1] = x
			default:
				out[i] = 0
				out[i+1] = 0
			}
		}
	}
	stream, err := portaudio.OpenDefaultStream(0, 2, float64(sampleRate), 0, cb)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("opening audio stream: %w", err)
	}
	s.stream = stream
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("starting audio stream: %w", err)
	}
	glog.Infof("portaudio stream at %d Hz", sampleRate)
	return s, nil
}

// enqueue pushes one sample, dropping it when the device is behind.
func (s *PortAudioSink) enqueue(sample float32) {
	select {
	case s.channel <- sample * s.volume:
	default:
	}
}

// Close stops the stream and releases the device.
func (s *PortAudioSink) Close() {
	if s.stream != nil {
		s.stream.Close()
	}
	portaudio.Terminate()
}
