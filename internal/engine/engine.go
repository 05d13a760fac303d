// Package engine provides the core.Engine implementations that reach the
// external text-to-speech model: an HTTP service or a local command.
package engine

import (
	"errors"
	"fmt"

	"github.com/book-expert/logger"
	"github.com/book-expert/voiceclone/internal/audio"
	"github.com/book-expert/voiceclone/internal/config"
	"github.com/book-expert/voiceclone/internal/core"
)

// Engine errors.
var (
	ErrTextEmpty     = errors.New("text cannot be empty")
	ErrEmptyAudio    = errors.New("engine returned no audio")
	ErrUnknownKind   = errors.New("unknown engine kind")
	ErrMalformedWave = errors.New("malformed waveform response")
)

// New builds the engine selected by cfg.Engine.Kind.
func New(cfg *config.Config, log *logger.Logger) (core.Engine, error) {
	switch cfg.Engine.Kind {
	case config.EngineKindHTTP:
		return NewHTTPEngine(cfg.Engine.URL, cfg.Synthesizer.Timeout(), log), nil
	case config.EngineKindCommand:
		return NewCommandEngine(cfg.Engine.Command, cfg.Engine.Args, log), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Engine.Kind)
	}
}

// clipToWaveform converts an interleaved clip to a channel-major waveform:
// [N] for mono, [C,N] otherwise.
func clipToWaveform(clip *audio.Clip) *core.Waveform {
	frames := clip.Frames()
	channels := clip.Channels

	samples := make([]float32, len(clip.Samples))

	for frame := range frames {
		for channel := range channels {
			samples[channel*frames+frame] = float32(clip.Samples[frame*channels+channel])
		}
	}

	shape := []int{frames}
	if channels > 1 {
		shape = []int{channels, frames}
	}

	return &core.Waveform{Shape: shape, Samples: samples, SampleRate: clip.SampleRate}
}
