package synth

import (
	"errors"
	"fmt"

	"github.com/book-expert/voiceclone/internal/audio"
	"github.com/book-expert/voiceclone/internal/core"
)

const maxWaveformRank = 3

// ErrUnsupportedShape is returned when an engine waveform cannot be reduced
// to a channels x samples layout.
var ErrUnsupportedShape = errors.New("unsupported waveform shape")

// Flatten squeezes leading singleton dimensions off w and returns it as an
// interleaved clip. [N], [1,N] and [1,1,N] become mono; [C,N] and [1,C,N]
// become C channels.
func Flatten(w *core.Waveform, fallbackRate int) (*audio.Clip, error) {
	if w == nil {
		return nil, fmt.Errorf("%w: nil waveform", ErrUnsupportedShape)
	}

	shape := w.Shape
	if len(shape) == 0 || len(shape) > maxWaveformRank {
		return nil, fmt.Errorf("%w: rank %d", ErrUnsupportedShape, len(shape))
	}

	total := 1
	for _, dim := range shape {
		if dim <= 0 {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedShape, shape)
		}

		total *= dim
	}

	if total != len(w.Samples) {
		return nil, fmt.Errorf("%w: shape %v holds %d samples, got %d", ErrUnsupportedShape, shape, total, len(w.Samples))
	}

	for len(shape) > 1 && shape[0] == 1 {
		shape = shape[1:]
	}

	if len(shape) > 2 {
		return nil, fmt.Errorf("%w: %v has a non-singleton batch dimension", ErrUnsupportedShape, w.Shape)
	}

	channels := 1
	if len(shape) == 2 {
		channels = shape[0]
	}

	if channels > audio.MaxChannels {
		return nil, fmt.Errorf("%w: %d channels", ErrUnsupportedShape, channels)
	}

	rate := w.SampleRate
	if rate <= 0 {
		rate = fallbackRate
	}

	return &audio.Clip{
		Samples:    interleave(w.Samples, channels),
		SampleRate: rate,
		Channels:   channels,
	}, nil
}

// interleave converts channel-major samples to frame-major order.
func interleave(samples []float32, channels int) []float64 {
	out := make([]float64, len(samples))
	frames := len(samples) / channels

	for channel := range channels {
		for frame := range frames {
			out[frame*channels+channel] = float64(samples[channel*frames+frame])
		}
	}

	return out
}
